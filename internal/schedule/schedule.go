// Package schedule runs periodic tasks that share one cancellation token.
package schedule

import (
	"context"
	"sync"
	"time"
)

// Token owns a group of periodic tasks. Cancelling it stops every task
// started from it; no task body begins after Cancel returns.
type Token struct {
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewToken derives a token from parent; cancelling parent cancels the token.
func NewToken(parent context.Context) *Token {
	ctx, cancel := context.WithCancel(parent)
	return &Token{ctx: ctx, cancel: cancel}
}

// Every runs fn each interval until the token is cancelled. fn receives the
// token context and must not block past its cancellation.
func (t *Token) Every(interval time.Duration, fn func(ctx context.Context)) {
	if interval <= 0 {
		return
	}
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-t.ctx.Done():
				return
			case <-ticker.C:
				// A tick may race with cancellation; cancellation wins.
				if t.ctx.Err() != nil {
					return
				}
				fn(t.ctx)
			}
		}
	}()
}

// Cancel stops all tasks. It does not wait, so a task body may call it.
func (t *Token) Cancel() {
	t.cancel()
}

// Wait blocks until every task goroutine has returned. Never call it from
// inside a task body.
func (t *Token) Wait() {
	t.wg.Wait()
}

// Cancelled reports whether the token has been cancelled.
func (t *Token) Cancelled() bool {
	return t.ctx.Err() != nil
}
