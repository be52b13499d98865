package flows

import (
	"time"

	"github.com/matheuscscp/oauth2-flow-coordinator/internal/logging"
	"github.com/matheuscscp/oauth2-flow-coordinator/internal/registry"
)

// supervise runs the per-flow poll loop in its own goroutine. Each iteration
// waits for the next scheduled tick, a kick from the redirect capture or a
// cancel, or coordinator shutdown, then runs tick. A non-empty outcome ends
// the loop and is counted exactly once.
func (c *Coordinator) supervise(rec *registry.Record, kind string,
	interval func() time.Duration, tick func() string) {

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for {
			timer := time.NewTimer(interval())
			select {
			case <-timer.C:
			case <-rec.Kicked():
				timer.Stop()
			case <-c.stop:
				timer.Stop()
				return
			}
			if outcome := tick(); outcome != "" {
				c.flowsFinished.WithLabelValues(kind, outcome).Inc()
				logging.WithFlow(string(rec.Target().Kind), rec.Target().ID).
					WithField("outcome", outcome).Info("authorization flow finished")
				return
			}
		}
	}()
}

// commonTick handles the phase checks shared by both engines. It returns the
// outcome when the flow is already over, and whether the caller should keep
// working on the record.
func (c *Coordinator) commonTick(rec *registry.Record) (outcome string, proceed bool) {
	if rec.Cancelled() {
		c.reg.Remove(rec.Target())
		return "cancelled", false
	}
	if s := rec.Snapshot(); s.Phase.Terminal() {
		return outcomeOf(s.Phase), false
	}
	if rec.Age(c.nowFunc()) > c.conf.Flows.Timeout {
		if rec.Expire() {
			return "timeout", false
		}
		// Lost the race against a concurrent cancel or transition.
		if rec.Cancelled() {
			c.reg.Remove(rec.Target())
			return "cancelled", false
		}
		return outcomeOf(rec.Snapshot().Phase), false
	}
	return "", true
}
