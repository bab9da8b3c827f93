package approval

import (
	"context"
	"fmt"
	"time"

	"github.com/viant/exegol/model"
	"github.com/viant/exegol/service/state"
)

// DecisionFunc decides what to do with a pending request.
// Return (true,  "") to approve
//
//	(false, "…") to deny with reason.
type DecisionFunc func(r *model.PermissionRequest) (approved bool, reason string)

// AutoDecider starts a goroutine that polls ListPending and applies fn to
// every matching request. It returns stop(); call it (or cancel ctx) to exit.
func AutoDecider(ctx context.Context,
	svc Service,
	fn DecisionFunc,
	interval time.Duration,
	filters ...state.Filter) (stop func()) {

	if interval <= 0 {
		interval = 20 * time.Millisecond
	}
	done := make(chan struct{})
	exited := make(chan struct{})

	go func() {
		defer close(exited)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-done:
				return
			case <-ticker.C:
				reqs, _ := svc.ListPending(ctx, filters...)
				for _, r := range reqs {
					ok, reason := fn(r)
					// a concurrent decider may have won; ErrAlreadyResolved is expected
					_, _ = svc.Decide(ctx, r.ID, ok, reason)
				}
			}
		}
	}()
	return func() {
		select {
		case <-done:
		default:
			close(done)
		}
		<-exited
	}
}

// AutoApprove automatically approves all pending requests.
func AutoApprove(ctx context.Context,
	svc Service,
	interval time.Duration,
	filters ...state.Filter) func() {
	return AutoDecider(ctx, svc,
		func(*model.PermissionRequest) (bool, string) { return true, "" }, interval, filters...)
}

// AutoReject automatically denies all pending requests with the given reason.
func AutoReject(ctx context.Context,
	svc Service,
	reason string,
	interval time.Duration,
	filters ...state.Filter) func() {
	return AutoDecider(ctx, svc,
		func(*model.PermissionRequest) (bool, string) { return false, reason }, interval, filters...)
}

// WaitForDecision polls a request until it is resolved or timeout elapses.
func WaitForDecision(ctx context.Context, svc Service, id string, timeout time.Duration) (*model.PermissionRequest, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for {
		request, err := svc.Request(ctx, id)
		if err != nil {
			return nil, err
		}
		if request.Status.Terminal() {
			return request, nil
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("request %s still pending after %s: %w", id, timeout, ctx.Err())
		case <-ticker.C:
		}
	}
}
