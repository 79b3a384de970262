// Package retry provides bounded retry and backoff for flaky browser
// interactions against the EPMA web application.
//
// EPMA re-renders the notes pane after most actions, so clicks land on
// overlays and element handles go stale. Those failures are transient and
// are retried; anything untyped is treated as a page in an unknown state
// and is returned immediately.
//
// Retrying a single step:
//
//	err := retry.Do(func() error {
//		return note.Click(ctx)
//	}, &retry.Config{
//		MaxAttempts: 3,
//		Backoff:     &retry.ConstantBackoff{Delay: 500 * time.Millisecond},
//		Context:     ctx,
//	})
//
// Per error type:
//
//	r := retry.NewUIRetrier(cfg.Retry.MaxAttempts,
//		retry.NewErrorTypeBackoff(cfg.Retry, cfg.Timing.InterceptedBackoff), log)
//	title, err := retry.DoTyped(ctx, r, func() (string, error) {
//		return session.SuppressActiveNote(ctx)
//	})
//
//   - Stale elements and intercepted clicks: a fixed pause while EPMA's
//     overlay clears and the notes pane settles
//   - Timeouts: exponential backoff, only where the caller opts in with RetryIf
//   - Auth, input and not found errors: no retry
package retry
