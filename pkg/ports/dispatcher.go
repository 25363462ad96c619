package ports

import (
	"context"

	"github.com/aretw0/formbridge/pkg/domain"
)

// Dispatcher delivers a mapped submission to the BPM engine.
// pkg/client provides the HTTP implementation.
type Dispatcher interface {
	// RaiseEvent starts a new process instance by raising sub.EventName.
	RaiseEvent(ctx context.Context, sub domain.Submission) (domain.Receipt, error)

	// ContinueInstance resumes the process instance sub.InstanceID.
	ContinueInstance(ctx context.Context, sub domain.Submission) (domain.Receipt, error)
}

// Dispatch routes sub to the engine call matching its operation.
func Dispatch(ctx context.Context, d Dispatcher, sub domain.Submission) (domain.Receipt, error) {
	if sub.Operation() == domain.OperationContinue {
		return d.ContinueInstance(ctx, sub)
	}
	return d.RaiseEvent(ctx, sub)
}
