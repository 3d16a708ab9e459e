package presence

import (
	"sort"
	"time"

	"github.com/GoSim-25-26J-441/go-collab-graph/internal/collab_graph/domain"
)

// maxPendingPerSender caps buffered messages from a sender we have not seen join
const maxPendingPerSender = 32

type pendingMessage struct {
	msg domain.Message
	at  time.Time
}

// roster tracks remote collaborators. It is not safe for concurrent use;
// the session serializes access.
type roster struct {
	entries map[string]*domain.Collaborator
	pending map[string][]pendingMessage
}

func newRoster() *roster {
	return &roster{
		entries: make(map[string]*domain.Collaborator),
		pending: make(map[string][]pendingMessage),
	}
}

// upsert records a live join. Empty fields keep their previous value.
func (r *roster) upsert(c domain.Collaborator, now time.Time) {
	if cur, ok := r.entries[c.ID]; ok {
		c = c.MergeFrom(*cur)
	} else {
		c = c.Clone()
	}
	c.Active = true
	c.LastActive = now
	r.entries[c.ID] = &c
}

// mergeSnapshot records one entry of a bulk roster, trusting its activity flag
func (r *roster) mergeSnapshot(c domain.Collaborator, now time.Time) {
	c = c.Clone()
	if c.LastActive.IsZero() || c.LastActive.After(now) || c.Active {
		c.LastActive = now
	}
	r.entries[c.ID] = &c
}

// replace swaps the whole roster for a snapshot
func (r *roster) replace(users []domain.Collaborator, now time.Time) {
	r.entries = make(map[string]*domain.Collaborator, len(users))
	for _, u := range users {
		r.mergeSnapshot(u, now)
	}
}

func (r *roster) markLeft(id string, now time.Time) bool {
	delete(r.pending, id)
	e, ok := r.entries[id]
	if !ok {
		return false
	}
	e.Active = false
	e.LastActive = now
	return true
}

func (r *roster) touch(id string, now time.Time) bool {
	e, ok := r.entries[id]
	if !ok {
		return false
	}
	e.Active = true
	e.LastActive = now
	return true
}

func (r *roster) setCursor(id string, p domain.Point, now time.Time) bool {
	if !r.touch(id, now) {
		return false
	}
	r.entries[id].Cursor = &p
	return true
}

func (r *roster) setZoom(id string, level float64, now time.Time) bool {
	if !r.touch(id, now) {
		return false
	}
	r.entries[id].Zoom = level
	return true
}

// sweep marks entries silent for longer than timeout inactive and purges
// inactive entries older than retention
func (r *roster) sweep(now time.Time, timeout, retention time.Duration) bool {
	changed := false
	for id, e := range r.entries {
		idle := now.Sub(e.LastActive)
		if e.Active && idle > timeout {
			e.Active = false
			changed = true
		}
		if !e.Active && idle > retention {
			delete(r.entries, id)
			changed = true
		}
	}
	return changed
}

// buffer holds a message from an unknown sender, dropping the oldest once
// the per-sender cap is reached
func (r *roster) buffer(msg domain.Message, now time.Time) {
	q := r.pending[msg.SenderID]
	if len(q) >= maxPendingPerSender {
		q = q[1:]
	}
	r.pending[msg.SenderID] = append(q, pendingMessage{msg: msg, at: now})
}

func (r *roster) takePending(id string) []domain.Message {
	q := r.pending[id]
	if len(q) == 0 {
		return nil
	}
	delete(r.pending, id)
	out := make([]domain.Message, len(q))
	for i, p := range q {
		out[i] = p.msg
	}
	return out
}

// expirePending drops buffered messages older than ttl and returns how many
func (r *roster) expirePending(now time.Time, ttl time.Duration) int {
	dropped := 0
	for id, q := range r.pending {
		kept := q[:0]
		for _, p := range q {
			if now.Sub(p.at) > ttl {
				dropped++
				continue
			}
			kept = append(kept, p)
		}
		if len(kept) == 0 {
			delete(r.pending, id)
		} else {
			r.pending[id] = kept
		}
	}
	return dropped
}

func (r *roster) get(id string) (domain.Collaborator, bool) {
	e, ok := r.entries[id]
	if !ok {
		return domain.Collaborator{}, false
	}
	return e.Clone(), true
}

// list returns copies sorted by id
func (r *roster) list() []domain.Collaborator {
	out := make([]domain.Collaborator, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// colors returns the colors held by active collaborators
func (r *roster) colors() map[string]bool {
	used := make(map[string]bool, len(r.entries))
	for _, e := range r.entries {
		if e.Active && e.Color != "" {
			used[e.Color] = true
		}
	}
	return used
}
