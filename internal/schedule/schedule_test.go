package schedule

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestEveryRunsUntilCancelled(t *testing.T) {
	tok := NewToken(context.Background())
	var runs int32
	tok.Every(5*time.Millisecond, func(context.Context) {
		atomic.AddInt32(&runs, 1)
	})

	assert.Eventually(t, func() bool { return atomic.LoadInt32(&runs) >= 3 }, time.Second, time.Millisecond)

	tok.Cancel()
	tok.Wait()
	after := atomic.LoadInt32(&runs)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, after, atomic.LoadInt32(&runs), "no run after cancel+wait")
	assert.True(t, tok.Cancelled())
}

func TestCancelFromInsideTask(t *testing.T) {
	tok := NewToken(context.Background())
	var runs int32
	tok.Every(time.Millisecond, func(context.Context) {
		atomic.AddInt32(&runs, 1)
		tok.Cancel()
	})

	done := make(chan struct{})
	go func() {
		tok.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Wait did not return after in-task cancel")
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&runs))
}

func TestParentCancellationStopsTasks(t *testing.T) {
	parent, cancel := context.WithCancel(context.Background())
	tok := NewToken(parent)
	tok.Every(time.Millisecond, func(context.Context) {})
	tok.Every(0, func(context.Context) { t.Fatal("zero interval must not run") })

	cancel()
	tok.Wait()
	assert.True(t, tok.Cancelled())
}
