package observability

import (
	"context"
	"log/slog"

	"github.com/aretw0/formbridge/pkg/domain"
)

// LoggingHooks logs every lifecycle event on logger.
func LoggingHooks(logger *slog.Logger) domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnMapped: func(ctx context.Context, e *domain.MappingEvent) {
			level := slog.LevelDebug
			if len(e.Duplicates) > 0 {
				level = slog.LevelWarn
			}
			logger.Log(ctx, level, "form_mapped",
				"mapping", e.Mapping,
				"submission_id", e.SubmissionID,
				"visible", e.Visible,
				"hidden", e.Hidden,
				"duplicates", e.Duplicates,
			)
		},
		OnDispatched: func(ctx context.Context, e *domain.DispatchEvent) {
			if e.Err != nil {
				logger.ErrorContext(ctx, "dispatch_failed",
					"mapping", e.Mapping,
					"submission_id", e.SubmissionID,
					"operation", e.Operation,
					"duration", e.Duration,
					"err", e.Err,
				)
				return
			}
			logger.InfoContext(ctx, "dispatched",
				"mapping", e.Mapping,
				"submission_id", e.SubmissionID,
				"operation", e.Operation,
				"instance_id", e.InstanceID,
				"duration", e.Duration,
			)
		},
	}
}

// Compose merges hook sets. Callbacks run in argument order; nil callbacks are skipped.
func Compose(hooks ...domain.LifecycleHooks) domain.LifecycleHooks {
	var mapped []func(context.Context, *domain.MappingEvent)
	var dispatched []func(context.Context, *domain.DispatchEvent)
	for _, h := range hooks {
		if h.OnMapped != nil {
			mapped = append(mapped, h.OnMapped)
		}
		if h.OnDispatched != nil {
			dispatched = append(dispatched, h.OnDispatched)
		}
	}

	var out domain.LifecycleHooks
	if len(mapped) > 0 {
		out.OnMapped = func(ctx context.Context, e *domain.MappingEvent) {
			for _, fn := range mapped {
				fn(ctx, e)
			}
		}
	}
	if len(dispatched) > 0 {
		out.OnDispatched = func(ctx context.Context, e *domain.DispatchEvent) {
			for _, fn := range dispatched {
				fn(ctx, e)
			}
		}
	}
	return out
}
