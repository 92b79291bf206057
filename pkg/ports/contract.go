package ports

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/aretw0/chatflow/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunSessionStoreContract runs a suite of tests to verify that a SessionStore implementation
// adheres to the defined interface contract, including the uniqueness rule.
func RunSessionStoreContract(t *testing.T, store SessionStore) {
	ctx := context.Background()
	suffix := time.Now().Format("20060102150405.000000000")
	now := time.Now().UTC().Truncate(time.Millisecond)

	newKey := func(name string) domain.ContactKey {
		return domain.ContactKey{ContactID: name + "-" + suffix, PhoneNumberID: "phone-1", ProjectID: "proj-1"}
	}
	newSession := func(id string, key domain.ContactKey) *domain.Session {
		return domain.NewSession(id+"-"+suffix, key, "tenant-1", "flow-1", "start", now)
	}

	t.Run("Create and Find", func(t *testing.T) {
		key := newKey("create")
		s := newSession("create", key)
		s.CollectedData["name"] = "Ana"

		require.NoError(t, store.Create(ctx, s), "Create should not return error")

		found, err := store.FindActiveByContact(ctx, key)
		require.NoError(t, err, "FindActiveByContact should not return error")
		assert.Equal(t, s.ID, found.ID)
		assert.Equal(t, "start", found.CurrentNodeID)
		assert.Equal(t, domain.StatusActive, found.Status)
		assert.Equal(t, "Ana", found.CollectedData["name"])
		assert.True(t, s.LastActivityAt.Equal(found.LastActivityAt))
	})

	t.Run("Find Non-Existent", func(t *testing.T) {
		_, err := store.FindActiveByContact(ctx, newKey("nobody"))
		assert.ErrorIs(t, err, domain.ErrSessionNotFound)

		_, err = store.Get(ctx, "non-existent-"+suffix)
		assert.ErrorIs(t, err, domain.ErrSessionNotFound)
	})

	t.Run("Duplicate Create Conflicts", func(t *testing.T) {
		key := newKey("dup")
		require.NoError(t, store.Create(ctx, newSession("dup-1", key)))

		err := store.Create(ctx, newSession("dup-2", key))
		assert.ErrorIs(t, err, domain.ErrSessionConflict)
	})

	t.Run("Awaiting Input Still Blocks", func(t *testing.T) {
		key := newKey("await")
		s := newSession("await-1", key)
		require.NoError(t, store.Create(ctx, s))

		s.Park(domain.ResumeContext{NodeID: "ask", AwaitingFieldID: "email"})
		require.NoError(t, store.Save(ctx, s))

		err := store.Create(ctx, newSession("await-2", key))
		assert.ErrorIs(t, err, domain.ErrSessionConflict)

		found, err := store.FindActiveByContact(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, domain.StatusAwaitingInput, found.Status)
		assert.Equal(t, "email", found.AwaitingFieldID)
	})

	t.Run("Terminal Save Releases Contact", func(t *testing.T) {
		for _, status := range []domain.SessionStatus{domain.StatusEnded, domain.StatusLiveAgentHandoff} {
			key := newKey("release-" + string(status))
			s := newSession("release-"+string(status), key)
			require.NoError(t, store.Create(ctx, s))

			s.Status = status
			require.NoError(t, store.Save(ctx, s))

			_, err := store.FindActiveByContact(ctx, key)
			assert.ErrorIs(t, err, domain.ErrSessionNotFound)

			// Terminal sessions are kept.
			kept, err := store.Get(ctx, s.ID)
			require.NoError(t, err)
			assert.Equal(t, status, kept.Status)

			require.NoError(t, store.Create(ctx, newSession("again-"+string(status), key)))
		}
	})

	t.Run("Returned Sessions Are Copies", func(t *testing.T) {
		key := newKey("copy")
		s := newSession("copy", key)
		require.NoError(t, store.Create(ctx, s))

		s.CollectedData["leak"] = "yes"
		found, err := store.FindActiveByContact(ctx, key)
		require.NoError(t, err)
		assert.NotContains(t, found.CollectedData, "leak")
	})

	t.Run("Concurrent Create Admits One", func(t *testing.T) {
		key := newKey("race")
		const n = 8

		var wg sync.WaitGroup
		errs := make([]error, n)
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				errs[i] = store.Create(ctx, newSession(fmt.Sprintf("race-%d", i), key))
			}(i)
		}
		wg.Wait()

		ok := 0
		for _, err := range errs {
			if err == nil {
				ok++
				continue
			}
			assert.ErrorIs(t, err, domain.ErrSessionConflict)
		}
		assert.Equal(t, 1, ok, "exactly one concurrent Create must win")
	})

	t.Run("List", func(t *testing.T) {
		s1 := newSession("list-1", newKey("list-1"))
		s2 := newSession("list-2", newKey("list-2"))
		require.NoError(t, store.Create(ctx, s1))
		require.NoError(t, store.Create(ctx, s2))

		sessions, err := store.List(ctx)
		require.NoError(t, err)
		assert.Contains(t, sessions, s1.ID)
		assert.Contains(t, sessions, s2.ID)
	})
}
