package observability

import "context"

// Checker reports the health of one dependency. Check must honour ctx.
type Checker interface {
	// Name identifies the component in the readiness body ("postgres", "redis").
	Name() string
	Check(ctx context.Context) error
}
