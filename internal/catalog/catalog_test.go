package catalog

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"nook/internal/db"
	"nook/internal/lanes"
	"nook/internal/promotions"
	"nook/internal/slots"
	"nook/internal/timewindow"
)

type mockStore struct {
	mock.Mock
}

func (m *mockStore) ListPromotions(ctx context.Context) ([]promotions.Rule, error) {
	args := m.Called(ctx)
	return args.Get(0).([]promotions.Rule), args.Error(1)
}

func (m *mockStore) ListLaneBlocks(ctx context.Context, laneID string, from, to time.Time) ([]lanes.LaneBlock, error) {
	args := m.Called(ctx, laneID, from, to)
	return args.Get(0).([]lanes.LaneBlock), args.Error(1)
}

func (m *mockStore) ListServices(ctx context.Context) ([]db.Service, error) {
	args := m.Called(ctx)
	return args.Get(0).([]db.Service), args.Error(1)
}

func (m *mockStore) ListLanes(ctx context.Context) ([]db.Lane, error) {
	args := m.Called(ctx)
	return args.Get(0).([]db.Lane), args.Error(1)
}

func fixture() ([]promotions.Rule, []lanes.LaneBlock, []db.Service, []db.Lane) {
	start, _ := timewindow.ParseClock("16:00")
	end, _ := timewindow.ParseClock("18:00")
	rules := []promotions.Rule{
		{ID: "spring", Kind: promotions.KindPercentage, Value: 20, Scope: promotions.ScopeAllServices, IsActive: true,
			Window: timewindow.Window{Dates: timewindow.DateRange{End: timewindow.Date{Year: 2024, Month: time.May, Day: 31}}}},
		{ID: "happy", Kind: promotions.KindHappyHour, HappyHourModel: promotions.KindFixedAmount, Value: 1500,
			Scope: promotions.ScopeSpecificService, TargetID: "massage-60", IsActive: true,
			Window: timewindow.Window{Times: timewindow.TimeRange{Start: start, End: end}, Weekdays: []time.Weekday{time.Friday}}},
	}
	blocks := []lanes.LaneBlock{{
		ID: "b1", LaneID: "lane-1", CenterID: "madrid-centro", Reason: "maintenance",
		Start: time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC), End: time.Date(2024, 1, 1, 11, 0, 0, 0, time.UTC),
	}}
	services := []db.Service{{ID: "massage-60", Name: "Masaje", BasePriceCents: 8000, DurationMinutes: 60, IsActive: true}}
	laneList := []db.Lane{{ID: "lane-1", CenterID: "madrid-centro", IsActive: true,
		Schedule: slots.Schedule{StartTime: "10:00", EndTime: "21:00", SlotDuration: 30}}}
	return rules, blocks, services, laneList
}

func newMockStore() *mockStore {
	rules, blocks, services, laneList := fixture()
	store := &mockStore{}
	store.On("ListPromotions", mock.Anything).Return(rules, nil)
	store.On("ListLaneBlocks", mock.Anything, "", time.Time{}, time.Time{}).Return(blocks, nil)
	store.On("ListServices", mock.Anything).Return(services, nil)
	store.On("ListLanes", mock.Anything).Return(laneList, nil)
	return store
}

func TestSnapshot_LoadsOnceUntilInvalidated(t *testing.T) {
	ctx := context.Background()
	store := newMockStore()
	cat := New(store, 0, nil)

	first, err := cat.Snapshot(ctx)
	require.NoError(t, err)
	second, err := cat.Snapshot(ctx)
	require.NoError(t, err)

	assert.Same(t, first, second)
	store.AssertNumberOfCalls(t, "ListPromotions", 1)

	cat.Invalidate(ctx)
	third, err := cat.Snapshot(ctx)
	require.NoError(t, err)
	assert.NotSame(t, first, third)
	store.AssertNumberOfCalls(t, "ListPromotions", 2)
}

func TestSnapshot_TTL(t *testing.T) {
	ctx := context.Background()
	store := newMockStore()
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	cat := New(store, time.Minute, nil, WithClock(func() time.Time { return now }))

	_, err := cat.Snapshot(ctx)
	require.NoError(t, err)

	now = now.Add(59 * time.Second)
	_, err = cat.Snapshot(ctx)
	require.NoError(t, err)
	store.AssertNumberOfCalls(t, "ListPromotions", 1)

	now = now.Add(time.Second)
	_, err = cat.Snapshot(ctx)
	require.NoError(t, err)
	store.AssertNumberOfCalls(t, "ListPromotions", 2)
}

func TestSnapshot_StoreError(t *testing.T) {
	store := &mockStore{}
	store.On("ListPromotions", mock.Anything).Return([]promotions.Rule(nil), errors.New("disk on fire"))

	_, err := New(store, 0, nil).Snapshot(context.Background())
	assert.ErrorContains(t, err, "load promotions")
}

func TestSnapshot_Lookups(t *testing.T) {
	snap, err := New(newMockStore(), 0, nil).Snapshot(context.Background())
	require.NoError(t, err)

	svc, err := snap.Service("massage-60")
	require.NoError(t, err)
	assert.Equal(t, int64(8000), svc.BasePriceCents)

	_, err = snap.Service("nope")
	assert.ErrorIs(t, err, ErrUnknownService)

	_, err = snap.Lane("lane-9")
	assert.ErrorIs(t, err, ErrUnknownLane)
}

func newRedis(t *testing.T) (*miniredis.Miniredis, *RedisCache) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, NewRedisCache(client, "")
}

func TestRedisCache_SharesSnapshotAcrossInstances(t *testing.T) {
	ctx := context.Background()
	mr, cache := newRedis(t)

	writer := newMockStore()
	snapA, err := New(writer, time.Minute, nil, WithCache(cache)).Snapshot(ctx)
	require.NoError(t, err)
	assert.True(t, mr.Exists(DefaultKey))

	// A second instance reads from redis without touching its store.
	reader := &mockStore{}
	snapB, err := New(reader, time.Minute, nil, WithCache(cache)).Snapshot(ctx)
	require.NoError(t, err)
	reader.AssertNotCalled(t, "ListPromotions", mock.Anything)

	assert.Equal(t, snapA.Promotions, snapB.Promotions)
	assert.Equal(t, snapA.Blocks, snapB.Blocks)
	assert.Equal(t, snapA.Services, snapB.Services)
	assert.Equal(t, snapA.Lanes, snapB.Lanes)
	assert.True(t, snapA.LoadedAt.Equal(snapB.LoadedAt))
}

func TestRedisCache_TTLAndInvalidate(t *testing.T) {
	ctx := context.Background()
	mr, cache := newRedis(t)

	cat := New(newMockStore(), time.Minute, nil, WithCache(cache))
	_, err := cat.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, time.Minute, mr.TTL(DefaultKey))

	cat.Invalidate(ctx)
	assert.False(t, mr.Exists(DefaultKey))

	snap, err := cache.Get(ctx)
	require.NoError(t, err)
	assert.Nil(t, snap)
}

func TestRedisCache_FallsBackWhenUnavailable(t *testing.T) {
	ctx := context.Background()
	mr, cache := newRedis(t)
	mr.Close()

	store := newMockStore()
	snap, err := New(store, time.Minute, nil, WithCache(cache)).Snapshot(ctx)
	require.NoError(t, err)
	assert.Len(t, snap.Promotions, 2)
	store.AssertNumberOfCalls(t, "ListPromotions", 1)
}

func TestRedisCache_CorruptValue(t *testing.T) {
	mr, cache := newRedis(t)
	require.NoError(t, mr.Set(DefaultKey, "{not json"))

	_, err := cache.Get(context.Background())
	assert.ErrorContains(t, err, "decode snapshot")
}
