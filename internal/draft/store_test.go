package draft_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/tourbook/internal/booking"
	"github.com/noah-isme/tourbook/internal/draft"
	"github.com/noah-isme/tourbook/internal/pricing"
	"github.com/noah-isme/tourbook/internal/roster"
)

func newStore(t *testing.T) (*miniredis.Miniredis, *draft.Store) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, draft.NewStore(rdb, time.Hour, time.Second)
}

func TestCreateLoadRoundTrip(t *testing.T) {
	mr, store := newStore(t)
	ctx := context.Background()

	sess := booking.New(booking.ModeCreate, 3)
	sess.SelectSchedule(9, pricing.UnitPrices{Adult: 1_000_000})
	id, err := store.Create(ctx, sess)
	require.NoError(t, err)
	require.True(t, mr.Exists("draft:"+id))
	require.Equal(t, time.Hour, mr.TTL("draft:"+id))

	loaded, err := store.Load(ctx, id)
	require.NoError(t, err)
	require.Equal(t, int64(9), loaded.ScheduleID)
	require.Equal(t, pricing.Money(1_000_000), loaded.Quote().Total)
}

func TestLoadUnknownDraft(t *testing.T) {
	_, store := newStore(t)
	_, err := store.Load(context.Background(), "not-a-uuid")
	require.ErrorIs(t, err, draft.ErrNotFound)
	_, err = store.Load(context.Background(), "0b6f7a52-8f1c-4c0f-9a3e-6d3c2b1a0f00")
	require.ErrorIs(t, err, draft.ErrNotFound)
}

func TestDraftExpires(t *testing.T) {
	mr, store := newStore(t)
	ctx := context.Background()
	id, err := store.Create(ctx, booking.New(booking.ModeCreate, 3))
	require.NoError(t, err)

	mr.FastForward(2 * time.Hour)
	_, err = store.Load(ctx, id)
	require.ErrorIs(t, err, draft.ErrNotFound)
}

func TestUpdatePersistsEvenWhenCallbackFails(t *testing.T) {
	_, store := newStore(t)
	ctx := context.Background()
	id, err := store.Create(ctx, booking.New(booking.ModeCreate, 3))
	require.NoError(t, err)

	boom := errors.New("boom")
	_, err = store.Update(ctx, id, func(s *booking.Session) error {
		s.ValidateAll()
		return boom
	})
	require.ErrorIs(t, err, boom)

	loaded, err := store.Load(ctx, id)
	require.NoError(t, err)
	rows := loaded.Roster.Rows(roster.Adult)
	require.Equal(t, roster.MsgRequired, rows[0].Errors[roster.FieldFullName])
}

func TestConcurrentUpdatesDoNotLoseWrites(t *testing.T) {
	_, store := newStore(t)
	ctx := context.Background()
	id, err := store.Create(ctx, booking.New(booking.ModeCreate, 3))
	require.NoError(t, err)

	const workers = 5
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.Update(ctx, id, func(s *booking.Session) error {
				_, err := s.SetCount(roster.Child, 1)
				return err
			})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	loaded, err := store.Load(ctx, id)
	require.NoError(t, err)
	require.Equal(t, workers, loaded.Roster.Count(roster.Child))
}

func TestDelete(t *testing.T) {
	_, store := newStore(t)
	ctx := context.Background()
	id, err := store.Create(ctx, booking.New(booking.ModeCreate, 3))
	require.NoError(t, err)

	require.NoError(t, store.Delete(ctx, id))
	require.ErrorIs(t, store.Delete(ctx, id), draft.ErrNotFound)
}
