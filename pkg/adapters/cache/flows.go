// Package cache decorates flow providers with an in-process, expiring cache.
package cache

import (
	"context"
	"time"

	"github.com/aretw0/chatflow/pkg/domain"
	"github.com/aretw0/chatflow/pkg/ports"
	c "github.com/patrickmn/go-cache"
)

// DefaultTTL bounds how long a stale flow definition can be served when the
// underlying provider cannot signal changes.
const DefaultTTL = time.Minute

// Flows caches lookups of a ports.FlowProvider. Misses are never cached so a
// newly published flow becomes triggerable on the next event.
type Flows struct {
	inner ports.FlowProvider
	cache *c.Cache
}

// NewFlows wraps inner. A ttl of zero uses DefaultTTL.
func NewFlows(inner ports.FlowProvider, ttl time.Duration) *Flows {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Flows{
		inner: inner,
		cache: c.New(ttl, 2*ttl),
	}
}

func triggerKey(projectID, tenantID, keyword string) string {
	return "trigger:" + projectID + ":" + tenantID + ":" + domain.NormalizeKeyword(keyword)
}

func idKey(flowID string) string {
	return "id:" + flowID
}

func (f *Flows) FindActiveByTrigger(ctx context.Context, projectID, tenantID, keyword string) (*domain.Flow, error) {
	key := triggerKey(projectID, tenantID, keyword)
	if v, found := f.cache.Get(key); found {
		return v.(*domain.Flow), nil
	}
	flow, err := f.inner.FindActiveByTrigger(ctx, projectID, tenantID, keyword)
	if err != nil {
		return nil, err
	}
	f.cache.SetDefault(key, flow)
	f.cache.SetDefault(idKey(flow.ID), flow)
	return flow, nil
}

func (f *Flows) FindByID(ctx context.Context, flowID string) (*domain.Flow, error) {
	if v, found := f.cache.Get(idKey(flowID)); found {
		return v.(*domain.Flow), nil
	}
	flow, err := f.inner.FindByID(ctx, flowID)
	if err != nil {
		return nil, err
	}
	f.cache.SetDefault(idKey(flowID), flow)
	return flow, nil
}

// ListFlows is passed through when the inner provider supports it.
func (f *Flows) ListFlows(ctx context.Context) ([]domain.Flow, error) {
	lister, ok := f.inner.(ports.FlowLister)
	if !ok {
		return nil, nil
	}
	return lister.ListFlows(ctx)
}

// Invalidate drops every cached flow.
func (f *Flows) Invalidate() {
	f.cache.Flush()
}

// Len returns the number of cached entries.
func (f *Flows) Len() int {
	return f.cache.ItemCount()
}

// WatchInvalidation flushes the cache whenever the inner provider reports a
// change. It returns false when the inner provider is not watchable.
func (f *Flows) WatchInvalidation(ctx context.Context) (bool, error) {
	w, ok := f.inner.(ports.Watchable)
	if !ok {
		return false, nil
	}
	changes, err := w.Watch(ctx)
	if err != nil {
		return true, err
	}
	go func() {
		for range changes {
			f.Invalidate()
		}
	}()
	return true, nil
}
