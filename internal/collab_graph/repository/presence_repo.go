package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"

	"github.com/GoSim-25-26J-441/go-collab-graph/internal/collab_graph/domain"
)

const (
	rosterKeyPrefix = "collab:roster:"  // Hash of collaborator id -> presence JSON: collab:roster:{session_id}
	sessionSetKey   = "collab:sessions" // Set of session ids that currently have a roster
	rosterTTL       = 24 * time.Hour    // TTL for an idle session roster
	maxTxRetries    = 5                 // optimistic transaction attempts before giving up
)

// SweepResult counts what a sweep changed
type SweepResult struct {
	Sessions    int
	Deactivated int
	Purged      int
}

// PresenceRepository stores session rosters in Redis
type PresenceRepository struct {
	client *redis.Client
}

// NewPresenceRepository creates a new PresenceRepository
func NewPresenceRepository(client *redis.Client) *PresenceRepository {
	return &PresenceRepository{client: client}
}

// Upsert records a join. Fields the join leaves empty keep their stored value.
func (r *PresenceRepository) Upsert(ctx context.Context, sessionID string, c domain.Collaborator, now time.Time) error {
	if c.ID == "" {
		return fmt.Errorf("collaborator id is required")
	}
	return r.update(ctx, sessionID, c.ID, true, func(cur *domain.Collaborator, exists bool) {
		next := c.Clone()
		if exists {
			next = c.MergeFrom(*cur)
		}
		next.Active = true
		next.LastActive = now
		*cur = next
	})
}

// MarkLeft flags a collaborator inactive; the entry is purged by Sweep
// once the retention window passes
func (r *PresenceRepository) MarkLeft(ctx context.Context, sessionID, id string, now time.Time) error {
	return r.update(ctx, sessionID, id, false, func(cur *domain.Collaborator, _ bool) {
		cur.Active = false
		cur.LastActive = now
	})
}

// Touch refreshes a collaborator's activity
func (r *PresenceRepository) Touch(ctx context.Context, sessionID, id string, now time.Time) error {
	return r.update(ctx, sessionID, id, false, func(cur *domain.Collaborator, _ bool) {
		cur.Active = true
		cur.LastActive = now
	})
}

// SetCursor stores the latest cursor position
func (r *PresenceRepository) SetCursor(ctx context.Context, sessionID, id string, p domain.Point, now time.Time) error {
	return r.update(ctx, sessionID, id, false, func(cur *domain.Collaborator, _ bool) {
		cur.Cursor = &p
		cur.Active = true
		cur.LastActive = now
	})
}

// SetZoom stores the latest zoom level
func (r *PresenceRepository) SetZoom(ctx context.Context, sessionID, id string, level float64, now time.Time) error {
	return r.update(ctx, sessionID, id, false, func(cur *domain.Collaborator, _ bool) {
		cur.Zoom = level
		cur.Active = true
		cur.LastActive = now
	})
}

// Get retrieves one collaborator
func (r *PresenceRepository) Get(ctx context.Context, sessionID, id string) (domain.Collaborator, error) {
	raw, err := r.client.HGet(ctx, rosterKey(sessionID), id).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.Collaborator{}, domain.ErrCollaboratorNotFound
	}
	if err != nil {
		return domain.Collaborator{}, fmt.Errorf("failed to get collaborator: %w", err)
	}
	var c domain.Collaborator
	if err := sonic.Unmarshal(raw, &c); err != nil {
		return domain.Collaborator{}, fmt.Errorf("failed to unmarshal collaborator: %w", err)
	}
	return c, nil
}

// List returns the session roster sorted by collaborator id
func (r *PresenceRepository) List(ctx context.Context, sessionID string) ([]domain.Collaborator, error) {
	entries, err := r.client.HGetAll(ctx, rosterKey(sessionID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list roster: %w", err)
	}

	out := make([]domain.Collaborator, 0, len(entries))
	for id, raw := range entries {
		var c domain.Collaborator
		if err := sonic.UnmarshalString(raw, &c); err != nil {
			return nil, fmt.Errorf("failed to unmarshal collaborator %s: %w", id, err)
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Sessions returns the ids of sessions with a stored roster
func (r *PresenceRepository) Sessions(ctx context.Context) ([]string, error) {
	ids, err := r.client.SMembers(ctx, sessionSetKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	sort.Strings(ids)
	return ids, nil
}

// Sweep marks collaborators idle for longer than timeout inactive and
// deletes inactive ones idle for longer than retention. Empty rosters are
// dropped from the session set.
func (r *PresenceRepository) Sweep(ctx context.Context, now time.Time, timeout, retention time.Duration) (SweepResult, error) {
	sessions, err := r.Sessions(ctx)
	if err != nil {
		return SweepResult{}, err
	}

	var res SweepResult
	for _, sessionID := range sessions {
		deactivated, purged, err := r.sweepSession(ctx, sessionID, now, timeout, retention)
		if err != nil {
			return res, err
		}
		res.Sessions++
		res.Deactivated += deactivated
		res.Purged += purged
	}
	return res, nil
}

func (r *PresenceRepository) sweepSession(ctx context.Context, sessionID string, now time.Time, timeout, retention time.Duration) (int, int, error) {
	key := rosterKey(sessionID)
	var deactivated, purged int

	txf := func(tx *redis.Tx) error {
		deactivated, purged = 0, 0
		entries, err := tx.HGetAll(ctx, key).Result()
		if err != nil {
			return fmt.Errorf("failed to read roster %s: %w", sessionID, err)
		}

		updates := make(map[string]string)
		var deletes []string
		for id, raw := range entries {
			var c domain.Collaborator
			if err := sonic.UnmarshalString(raw, &c); err != nil {
				deletes = append(deletes, id)
				continue
			}
			idle := now.Sub(c.LastActive)
			if c.Active && idle > timeout {
				c.Active = false
				deactivated++
				data, err := sonic.MarshalString(c)
				if err != nil {
					return fmt.Errorf("failed to marshal collaborator: %w", err)
				}
				updates[id] = data
			}
			if !c.Active && idle > retention {
				delete(updates, id)
				deletes = append(deletes, id)
			}
		}
		purged = len(deletes)
		remaining := len(entries) - len(deletes)

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			for id, data := range updates {
				pipe.HSet(ctx, key, id, data)
			}
			if len(deletes) > 0 {
				pipe.HDel(ctx, key, deletes...)
			}
			if remaining == 0 {
				pipe.Del(ctx, key)
				pipe.SRem(ctx, sessionSetKey, sessionID)
			}
			return nil
		})
		return err
	}

	if err := r.withRetry(ctx, txf, key); err != nil {
		return 0, 0, fmt.Errorf("failed to sweep roster %s: %w", sessionID, err)
	}
	return deactivated, purged, nil
}

// update applies fn to one stored collaborator inside an optimistic
// transaction. Missing entries fail with ErrCollaboratorNotFound unless
// create is set.
func (r *PresenceRepository) update(ctx context.Context, sessionID, id string, create bool, fn func(cur *domain.Collaborator, exists bool)) error {
	if sessionID == "" {
		return fmt.Errorf("session id is required")
	}
	key := rosterKey(sessionID)

	txf := func(tx *redis.Tx) error {
		var cur domain.Collaborator
		exists := true
		raw, err := tx.HGet(ctx, key, id).Bytes()
		switch {
		case errors.Is(err, redis.Nil):
			exists = false
		case err != nil:
			return fmt.Errorf("failed to get collaborator: %w", err)
		default:
			if err := sonic.Unmarshal(raw, &cur); err != nil {
				return fmt.Errorf("failed to unmarshal collaborator: %w", err)
			}
		}
		if !exists && !create {
			return domain.ErrCollaboratorNotFound
		}

		fn(&cur, exists)
		cur.ID = id
		data, err := sonic.Marshal(cur)
		if err != nil {
			return fmt.Errorf("failed to marshal collaborator: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, id, data)
			pipe.Expire(ctx, key, rosterTTL)
			pipe.SAdd(ctx, sessionSetKey, sessionID)
			return nil
		})
		return err
	}

	return r.withRetry(ctx, txf, key)
}

func (r *PresenceRepository) withRetry(ctx context.Context, txf func(*redis.Tx) error, keys ...string) error {
	for i := 0; i < maxTxRetries; i++ {
		err := r.client.Watch(ctx, txf, keys...)
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
	}
	return redis.TxFailedErr
}

func rosterKey(sessionID string) string {
	return rosterKeyPrefix + sessionID
}
