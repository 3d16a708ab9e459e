package presence

import (
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/GoSim-25-26J-441/go-collab-graph/internal/collab_graph/domain"
)

type queuedIntent struct {
	key string
	msg domain.Message
}

// throttle emits at most one message per key per interval. A message
// submitted while its key is still queued replaces the queued one and
// moves to the tail; the queue drains strictly in order, so a waiting head
// holds back everything behind it.
type throttle struct {
	interval time.Duration
	now      func() time.Time
	send     func(domain.Message)

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	queue    []queuedIntent
	timer    *time.Timer
	stopped  bool

	// serializes flushes so sends leave in queue order
	flushMu sync.Mutex
}

func newThrottle(interval time.Duration, send func(domain.Message)) *throttle {
	return &throttle{
		interval: interval,
		now:      time.Now,
		send:     send,
		limiters: make(map[string]*rate.Limiter),
	}
}

func (t *throttle) submit(key string, msg domain.Message) {
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return
	}
	for i, q := range t.queue {
		if q.key == key {
			t.queue = append(t.queue[:i], t.queue[i+1:]...)
			break
		}
	}
	t.queue = append(t.queue, queuedIntent{key: key, msg: msg})
	t.mu.Unlock()

	t.flush()
}

func (t *throttle) flush() {
	t.flushMu.Lock()
	defer t.flushMu.Unlock()

	for _, msg := range t.takeReady() {
		t.send(msg)
	}
}

func (t *throttle) takeReady() []domain.Message {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.stopped {
		return nil
	}
	now := t.now()
	var ready []domain.Message
	for len(t.queue) > 0 {
		head := t.queue[0]
		lim := t.limiter(head.key)
		if !lim.AllowN(now, 1) {
			t.scheduleLocked(t.waitFor(lim, now))
			break
		}
		ready = append(ready, head.msg)
		t.queue = t.queue[1:]
	}
	return ready
}

func (t *throttle) limiter(key string) *rate.Limiter {
	lim, ok := t.limiters[key]
	if !ok {
		limit := rate.Inf
		if t.interval > 0 {
			limit = rate.Every(t.interval)
		}
		lim = rate.NewLimiter(limit, 1)
		t.limiters[key] = lim
	}
	return lim
}

func (t *throttle) waitFor(lim *rate.Limiter, now time.Time) time.Duration {
	missing := 1 - lim.TokensAt(now)
	wait := time.Duration(missing * float64(t.interval))
	if wait < time.Millisecond {
		wait = time.Millisecond
	}
	return wait
}

func (t *throttle) scheduleLocked(wait time.Duration) {
	if t.timer != nil {
		t.timer.Stop()
	}
	t.timer = time.AfterFunc(wait, t.flush)
}

// pending returns the number of queued intents
func (t *throttle) pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.queue)
}

// stop cancels the trailing timer and discards queued intents
func (t *throttle) stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopped = true
	t.queue = nil
	if t.timer != nil {
		t.timer.Stop()
	}
}
