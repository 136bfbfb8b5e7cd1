package identity

import (
	"context"
	"sync"
	"time"
)

const defaultNotifyTimeout = 30 * time.Second

// AsyncNotifier delivers notices in the background so the request that
// triggered them does not wait on mail or SMS gateways. Delivery errors are
// logged.
type AsyncNotifier struct {
	next    Notifier
	logger  Logger
	timeout time.Duration
	wg      sync.WaitGroup
}

func NewAsyncNotifier(next Notifier) *AsyncNotifier {
	return &AsyncNotifier{
		next:    normalizeNotifier(next),
		logger:  defLogger{},
		timeout: defaultNotifyTimeout,
	}
}

func (n *AsyncNotifier) WithLogger(logger Logger) *AsyncNotifier {
	n.logger = normalizeLogger(logger)
	return n
}

func (n *AsyncNotifier) WithTimeout(timeout time.Duration) *AsyncNotifier {
	if timeout > 0 {
		n.timeout = timeout
	}
	return n
}

func (n *AsyncNotifier) SendConfirmation(ctx context.Context, msg ConfirmationNotice) error {
	n.dispatch(ctx, "confirmation", func(ctx context.Context) error {
		return n.next.SendConfirmation(ctx, msg)
	})
	return nil
}

func (n *AsyncNotifier) SendPasswordReset(ctx context.Context, msg PasswordResetNotice) error {
	n.dispatch(ctx, "password_reset", func(ctx context.Context) error {
		return n.next.SendPasswordReset(ctx, msg)
	})
	return nil
}

// Wait blocks until every dispatched notice finished.
func (n *AsyncNotifier) Wait() {
	n.wg.Wait()
}

func (n *AsyncNotifier) dispatch(ctx context.Context, kind string, send func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), n.timeout)

	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		defer cancel()

		if err := send(ctx); err != nil {
			n.logger.Error("notification delivery failed", "kind", kind, "error", err)
		}
	}()
}

// NotifierFuncs adapts plain functions to the Notifier interface. A nil
// function drops the notice.
type NotifierFuncs struct {
	Confirmation  func(ctx context.Context, msg ConfirmationNotice) error
	PasswordReset func(ctx context.Context, msg PasswordResetNotice) error
}

func (f NotifierFuncs) SendConfirmation(ctx context.Context, msg ConfirmationNotice) error {
	if f.Confirmation == nil {
		return nil
	}
	return f.Confirmation(ctx, msg)
}

func (f NotifierFuncs) SendPasswordReset(ctx context.Context, msg PasswordResetNotice) error {
	if f.PasswordReset == nil {
		return nil
	}
	return f.PasswordReset(ctx, msg)
}

func normalizeNotifier(n Notifier) Notifier {
	if n == nil {
		return NotifierFuncs{}
	}
	return n
}
