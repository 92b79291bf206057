package cli

import (
	"context"
	"errors"
	"log/slog"

	"github.com/aretw0/chatflow/pkg/domain"
	"github.com/aretw0/chatflow/pkg/ports"
)

type fanOut struct {
	sinks  []ports.Notifier
	logger *slog.Logger
}

// FanOut publishes every notification to all sinks. A failing sink does not
// stop the others; the errors are joined.
func FanOut(logger *slog.Logger, sinks ...ports.Notifier) ports.Notifier {
	if len(sinks) == 1 {
		return sinks[0]
	}
	return &fanOut{sinks: sinks, logger: logger}
}

func (f *fanOut) Publish(ctx context.Context, n domain.Notification) error {
	var errs []error
	for _, s := range f.sinks {
		if err := s.Publish(ctx, n); err != nil {
			f.logger.Warn("Notification sink failed", "tenant_id", n.TenantID, "kind", n.Kind, "err", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
