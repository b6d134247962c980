package user

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Proton-105/himera-trader/internal/domain"
	"github.com/Proton-105/himera-trader/internal/repository"
)

type fakeRepo struct {
	users   map[int64]domain.User
	upserts int
	finds   int
	err     error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{users: make(map[int64]domain.User)}
}

func (r *fakeRepo) FindByTelegramID(_ context.Context, id int64) (*domain.User, error) {
	r.finds++
	u, ok := r.users[id]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	return &u, nil
}

func (r *fakeRepo) Upsert(_ context.Context, u *domain.User) (bool, error) {
	r.upserts++
	if r.err != nil {
		return false, r.err
	}
	existing, ok := r.users[u.TelegramID]
	if ok {
		u.ID, u.CreatedAt = existing.ID, existing.CreatedAt
	} else {
		u.ID = int64(len(r.users) + 1)
		u.CreatedAt = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	}
	r.users[u.TelegramID] = *u
	return !ok, nil
}

func setup(t *testing.T) (*miniredis.Miniredis, *fakeRepo, *Service) {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	repo := newFakeRepo()
	svc := NewService(repo, NewCache(rdb), time.Minute, slog.New(slog.NewTextHandler(io.Discard, nil)))
	return mr, repo, svc
}

func TestService_UpsertSkipsDatabaseWhileCached(t *testing.T) {
	mr, repo, svc := setup(t)
	ctx := context.Background()

	created, err := svc.Upsert(ctx, &domain.User{TelegramID: 42, FirstName: "Ann"})
	require.NoError(t, err)
	assert.True(t, created)

	again := &domain.User{TelegramID: 42, FirstName: "Ann"}
	created, err = svc.Upsert(ctx, again)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, 1, repo.upserts)
	assert.Equal(t, int64(1), again.ID)
	assert.False(t, again.CreatedAt.IsZero())

	mr.FastForward(2 * time.Minute)
	_, err = svc.Upsert(ctx, &domain.User{TelegramID: 42, FirstName: "Ann"})
	require.NoError(t, err)
	assert.Equal(t, 2, repo.upserts)
}

func TestService_ProfileChangeIsWritten(t *testing.T) {
	_, repo, svc := setup(t)
	ctx := context.Background()

	_, err := svc.Upsert(ctx, &domain.User{TelegramID: 7, Username: "old"})
	require.NoError(t, err)
	_, err = svc.Upsert(ctx, &domain.User{TelegramID: 7, Username: "new"})
	require.NoError(t, err)

	assert.Equal(t, 2, repo.upserts)
	assert.Equal(t, "new", repo.users[7].Username)
}

func TestService_FindReadsThrough(t *testing.T) {
	_, repo, svc := setup(t)
	ctx := context.Background()
	repo.users[9] = domain.User{ID: 3, TelegramID: 9, FirstName: "Bo"}

	u, err := svc.FindByTelegramID(ctx, 9)
	require.NoError(t, err)
	assert.Equal(t, "Bo", u.FirstName)

	_, err = svc.FindByTelegramID(ctx, 9)
	require.NoError(t, err)
	assert.Equal(t, 1, repo.finds)

	_, err = svc.FindByTelegramID(ctx, 10)
	assert.ErrorIs(t, err, repository.ErrUserNotFound)
}

func TestService_RedisDownFallsThrough(t *testing.T) {
	mr, repo, svc := setup(t)
	mr.Close()

	created, err := svc.Upsert(context.Background(), &domain.User{TelegramID: 1})
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, 1, repo.upserts)
}

func TestService_RepositoryErrorPropagates(t *testing.T) {
	_, repo, svc := setup(t)
	repo.err = errors.New("db down")

	_, err := svc.Upsert(context.Background(), &domain.User{TelegramID: 1})
	assert.Error(t, err)
}

func TestCache_Invalidate(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	c := NewCache(rdb)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, &domain.User{TelegramID: 5}, time.Minute))
	assert.True(t, mr.Exists("users:profile:5"))

	require.NoError(t, c.Invalidate(ctx, 5))
	u, err := c.Get(ctx, 5)
	require.NoError(t, err)
	assert.Nil(t, u)

	var disabled *Cache
	u, err = disabled.Get(ctx, 5)
	assert.NoError(t, err)
	assert.Nil(t, u)
}
