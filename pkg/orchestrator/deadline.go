package orchestrator

import "time"

// deadlineTimer implements the keepalive-deadline design of
// original_source/.../policy_executor/timeout_monitor.py's TimeoutMonitor,
// re-expressed with a time.Timer instead of asyncio's wait_for/Event pair:
// Reset drains and restarts the timer so only the latest deadline can ever
// fire, exactly like the Python version's deadline-updated Event waking a
// sleeping coroutine to recompute its sleep.
type deadlineTimer struct {
	timeout time.Duration
	timer   *time.Timer
}

// newDeadlineTimer returns a deadlineTimer. A zero timeout disables the
// deadline: C() then returns a channel that never fires.
func newDeadlineTimer(timeout time.Duration) *deadlineTimer {
	d := &deadlineTimer{timeout: timeout}
	if timeout <= 0 {
		d.timer = time.NewTimer(time.Duration(1<<63 - 1))
		return d
	}
	d.timer = time.NewTimer(timeout)
	return d
}

// C returns the channel that fires when the deadline elapses.
func (d *deadlineTimer) C() <-chan time.Time { return d.timer.C }

// Reset pushes the deadline back to now + timeout. A no-op if the
// deadline is disabled.
func (d *deadlineTimer) Reset() {
	if d.timeout <= 0 {
		return
	}
	if !d.timer.Stop() {
		select {
		case <-d.timer.C:
		default:
		}
	}
	d.timer.Reset(d.timeout)
}

// Stop releases the underlying timer.
func (d *deadlineTimer) Stop() {
	d.timer.Stop()
}
