package middleware

import (
	"context"
	"regexp"

	"github.com/aretw0/chatflow/pkg/domain"
	"github.com/aretw0/chatflow/pkg/ports"
)

// Mask replaces the value of a sensitive field.
const Mask = "***"

type piiNotifier struct {
	next     ports.Notifier
	patterns []*regexp.Regexp
}

// NewPIINotifier creates a middleware that masks collected fields whose id
// matches one of the patterns before session diffs reach real-time
// subscribers. Stored sessions keep the real values.
func NewPIINotifier(patternStrings []string) NotifierMiddleware {
	patterns := make([]*regexp.Regexp, len(patternStrings))
	for i, p := range patternStrings {
		patterns[i] = regexp.MustCompile(p)
	}
	return func(next ports.Notifier) ports.Notifier {
		return &piiNotifier{next: next, patterns: patterns}
	}
}

func (m *piiNotifier) Publish(ctx context.Context, n domain.Notification) error {
	if n.Diff != nil && len(n.Diff.CollectedData) > 0 {
		// Copy: the diff may still be referenced by the engine.
		diff := *n.Diff
		diff.CollectedData = maskFields(n.Diff.CollectedData, m.patterns)
		n.Diff = &diff
	}
	return m.next.Publish(ctx, n)
}

// MaskSession returns a copy of s with sensitive collected fields masked.
func MaskSession(s *domain.Session, patternStrings []string) *domain.Session {
	patterns := make([]*regexp.Regexp, len(patternStrings))
	for i, p := range patternStrings {
		patterns[i] = regexp.MustCompile(p)
	}
	out := s.Clone()
	out.CollectedData = maskFields(s.CollectedData, patterns)
	return out
}

func maskFields(data map[string]string, patterns []*regexp.Regexp) map[string]string {
	out := make(map[string]string, len(data))
	for k, v := range data {
		out[k] = v
		for _, p := range patterns {
			if p.MatchString(k) {
				out[k] = Mask
				break
			}
		}
	}
	return out
}
