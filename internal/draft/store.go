package draft

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/noah-isme/tourbook/internal/booking"
	"github.com/noah-isme/tourbook/internal/lock"
)

// ErrNotFound is returned for unknown, malformed or expired draft ids.
var ErrNotFound = errors.New("draft: not found")

const keyPrefix = "draft:"

// Store keeps booking sessions in Redis between requests.
type Store struct {
	rdb     redis.Cmdable
	locker  lock.Locker
	ttl     time.Duration
	lockTTL time.Duration

	// Now is handed to every loaded session. Defaults to time.Now.
	Now func() time.Time
}

// NewStore constructs a draft store. Drafts expire ttl after their last write.
func NewStore(rdb redis.Cmdable, ttl, lockTTL time.Duration) *Store {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	if lockTTL <= 0 {
		lockTTL = 15 * time.Second
	}
	return &Store{
		rdb:     rdb,
		locker:  lock.Locker{R: rdb},
		ttl:     ttl,
		lockTTL: lockTTL,
	}
}

func key(id string) string     { return keyPrefix + id }
func lockKey(id string) string { return keyPrefix + id + ":lock" }

func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

// Create stores a new session and returns its id.
func (s *Store) Create(ctx context.Context, sess *booking.Session) (string, error) {
	id := uuid.NewString()
	if err := s.save(ctx, id, sess); err != nil {
		return "", err
	}
	return id, nil
}

// Load fetches a session.
func (s *Store) Load(ctx context.Context, id string) (*booking.Session, error) {
	if !validID(id) {
		return nil, ErrNotFound
	}
	data, err := s.rdb.Get(ctx, key(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("draft: load: %w", err)
	}
	sess := &booking.Session{Now: s.Now}
	if err := json.Unmarshal(data, sess); err != nil {
		return nil, fmt.Errorf("draft: decode: %w", err)
	}
	return sess, nil
}

// Update loads the session under the draft's lock, applies fn and writes the
// result back. The session is written even when fn fails; fn's error is
// returned to the caller.
func (s *Store) Update(ctx context.Context, id string, fn func(*booking.Session) error) (*booking.Session, error) {
	if !validID(id) {
		return nil, ErrNotFound
	}
	var out *booking.Session
	err := s.locker.WithLock(ctx, lockKey(id), s.lockTTL, func(ctx context.Context) error {
		sess, err := s.Load(ctx, id)
		if err != nil {
			return err
		}
		fnErr := fn(sess)
		if err := s.save(ctx, id, sess); err != nil {
			return err
		}
		out = sess
		return fnErr
	})
	return out, err
}

// Delete removes a draft.
func (s *Store) Delete(ctx context.Context, id string) error {
	if !validID(id) {
		return ErrNotFound
	}
	n, err := s.rdb.Del(ctx, key(id)).Result()
	if err != nil {
		return fmt.Errorf("draft: delete: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) save(ctx context.Context, id string, sess *booking.Session) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("draft: encode: %w", err)
	}
	if err := s.rdb.Set(ctx, key(id), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("draft: save: %w", err)
	}
	return nil
}
