package accrual

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solalog/solalog-server/internal/model"
	"github.com/solalog/solalog-server/internal/station"
	"github.com/solalog/solalog-server/internal/store"
	"github.com/solalog/solalog-server/internal/title"
	"github.com/solalog/solalog-server/internal/weather"
	"github.com/solalog/solalog-server/pkg/openweather"
)

const (
	tokyoLat = 35.681236
	tokyoLon = 139.767125
	farLat   = 35.0
	farLon   = 139.0
)

// fakeWeather returns queued condition codes, repeating the last one.
type fakeWeather struct {
	mu    sync.Mutex
	codes []int
	err   error
	calls int
}

func (f *fakeWeather) Current(_ context.Context, _, _ float64) (*openweather.Conditions, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	code := f.codes[0]
	if len(f.codes) > 1 {
		f.codes = f.codes[1:]
	}
	return &openweather.Conditions{Code: code, PlaceName: "Chiyoda"}, nil
}

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type fixture struct {
	svc   *Service
	store *store.SQLiteStore
	wx    *fakeWeather
	clock *clock
}

func newFixture(t *testing.T, codes ...int) *fixture {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "accrual.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))

	if len(codes) == 0 {
		codes = []int{800}
	}
	wx := &fakeWeather{codes: codes}
	clk := &clock{t: time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)}
	idx := station.NewIndex([]station.Station{
		{Name: "東京", Line: "JR山手線", Lat: tokyoLat, Lon: tokyoLon},
	}, 70)

	svc := NewService(st, idx, wx, WithClock(clk.Now), WithTxTimeout(10*time.Second))
	return &fixture{svc: svc, store: st, wx: wx, clock: clk}
}

func (f *fixture) user(t *testing.T, name string, g model.Gender) model.Identity {
	t.Helper()
	u, err := f.store.CreateUser(context.Background(), name, g)
	require.NoError(t, err)
	return model.Identity{UserID: u.ID, Username: u.Username}
}

func (f *fixture) get(t *testing.T, id model.Identity) *model.User {
	t.Helper()
	u, err := f.store.GetUser(context.Background(), id.UserID)
	require.NoError(t, err)
	return u
}

func TestLogLocation_EndToEnd(t *testing.T) {
	f := newFixture(t, 800)
	id := f.user(t, "hana", model.GenderFemale)

	res, err := f.svc.LogLocation(context.Background(), id, model.NewPoint(tokyoLat, tokyoLon))
	require.NoError(t, err)
	assert.Equal(t, weather.Sunny, res.Weather)
	assert.Equal(t, 1.0, res.ScoreDelta)
	assert.Equal(t, 1.0, res.Score)
	assert.Equal(t, "Chiyoda", res.PlaceName)
	assert.True(t, res.MissedTrain)
	assert.Equal(t, "東京", res.Station)

	u := f.get(t, id)
	assert.Equal(t, 1.0, u.Score)
	assert.Equal(t, 1, u.MissedTrainCount)
	require.NotNil(t, u.LastMissedAt)
	assert.True(t, f.clock.Now().Equal(*u.LastMissedAt))

	st, err := f.svc.Status(context.Background(), id.UserID)
	require.NoError(t, err)
	assert.Equal(t, 1, st.Counts[weather.Sunny])
	assert.Equal(t, 0, st.Counts[weather.Rainy])
	assert.Len(t, st.Counts, len(weather.Categories()))
	assert.Equal(t, title.Ordinary, st.Title)
	assert.Equal(t, 1, st.MissedTrainCount)
}

func TestLogLocation_UpstreamFailureRollsBack(t *testing.T) {
	f := newFixture(t)
	f.wx.err = errors.New("provider down")
	id := f.user(t, "ren", model.GenderMale)

	_, err := f.svc.LogLocation(context.Background(), id, model.NewPoint(tokyoLat, tokyoLon))
	require.Error(t, err)
	assert.Equal(t, KindUpstream, KindOf(err))

	u := f.get(t, id)
	assert.Zero(t, u.MissedTrainCount)
	assert.Nil(t, u.LastMissedAt)
	assert.Zero(t, u.Score)

	locs, err := f.svc.LatestLocations(context.Background())
	require.NoError(t, err)
	assert.Empty(t, locs)
}

func TestLogLocation_InvalidInput(t *testing.T) {
	f := newFixture(t)
	id := f.user(t, "ren", model.GenderMale)
	lat := 35.0

	tests := []struct {
		name string
		p    model.Point
	}{
		{"missing longitude", model.Point{Latitude: &lat}},
		{"missing both", model.Point{}},
		{"latitude out of range", model.NewPoint(91, 0)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.LogLocation(context.Background(), id, tt.p)
			require.Error(t, err)
			assert.Equal(t, KindInvalidInput, KindOf(err))
		})
	}
	assert.Zero(t, f.wx.calls)

	_, err := f.svc.LogLocation(context.Background(), model.Identity{}, model.NewPoint(1, 1))
	assert.Equal(t, KindInvalidInput, KindOf(err))
}

func TestLogLocation_MissCooldown(t *testing.T) {
	f := newFixture(t)
	id := f.user(t, "ren", model.GenderMale)
	near := model.NewPoint(tokyoLat, tokyoLon)
	ctx := context.Background()

	res, err := f.svc.LogLocation(ctx, id, near)
	require.NoError(t, err)
	assert.True(t, res.MissedTrain)

	f.clock.Advance(29 * time.Minute)
	res, err = f.svc.LogLocation(ctx, id, near)
	require.NoError(t, err)
	assert.False(t, res.MissedTrain)
	assert.Equal(t, 1, f.get(t, id).MissedTrainCount)

	// 31 minutes after the last counted miss.
	f.clock.Advance(2 * time.Minute)
	res, err = f.svc.LogLocation(ctx, id, near)
	require.NoError(t, err)
	assert.True(t, res.MissedTrain)
	assert.Equal(t, 2, f.get(t, id).MissedTrainCount)
}

func TestLogLocation_FarFromStations(t *testing.T) {
	f := newFixture(t)
	id := f.user(t, "ren", model.GenderMale)

	res, err := f.svc.LogLocation(context.Background(), id, model.NewPoint(farLat, farLon))
	require.NoError(t, err)
	assert.False(t, res.MissedTrain)
	assert.Empty(t, res.Station)

	u := f.get(t, id)
	assert.Zero(t, u.MissedTrainCount)
	assert.Nil(t, u.LastMissedAt)
	assert.Equal(t, 1.0, u.Score)
}

func TestLogLocation_ConcurrentIncrementsOnce(t *testing.T) {
	f := newFixture(t)
	id := f.user(t, "ren", model.GenderMale)

	const n = 8
	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		missed int
		errs   []error
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := f.svc.LogLocation(context.Background(), id, model.NewPoint(tokyoLat, tokyoLon))
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
				return
			}
			if res.MissedTrain {
				missed++
			}
		}()
	}
	wg.Wait()

	require.Empty(t, errs)
	assert.Equal(t, 1, missed)

	u := f.get(t, id)
	assert.Equal(t, 1, u.MissedTrainCount)
	assert.Equal(t, float64(n), u.Score)
}

func TestLogLocation_ScoreSequence(t *testing.T) {
	// sunny, rainy, snowy
	f := newFixture(t, 800, 500, 600)
	id := f.user(t, "sora", model.GenderOther)

	var last *LogResult
	for i := 0; i < 3; i++ {
		res, err := f.svc.LogLocation(context.Background(), id, model.NewPoint(farLat, farLon))
		require.NoError(t, err)
		last = res
	}
	assert.Equal(t, weather.Snowy, last.Weather)
	assert.Equal(t, 2.0, last.Score)
	assert.Equal(t, 2.0, f.get(t, id).Score)

	st, err := f.svc.Status(context.Background(), id.UserID)
	require.NoError(t, err)
	assert.Equal(t, 1, st.Counts[weather.Sunny])
	assert.Equal(t, 1, st.Counts[weather.Rainy])
	assert.Equal(t, 1, st.Counts[weather.Snowy])
}

func TestLogLocation_UnknownUser(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.LogLocation(context.Background(),
		model.Identity{UserID: "missing"}, model.NewPoint(farLat, farLon))
	require.Error(t, err)
	assert.Equal(t, KindStorage, KindOf(err))
	assert.ErrorIs(t, err, store.ErrUserNotFound)
}

func TestLogLocation_StorageFailure(t *testing.T) {
	f := newFixture(t)
	id := f.user(t, "ren", model.GenderMale)
	require.NoError(t, f.store.Close())

	_, err := f.svc.LogLocation(context.Background(), id, model.NewPoint(farLat, farLon))
	require.Error(t, err)
	assert.Equal(t, KindStorage, KindOf(err))
}

func addScore(t *testing.T, st store.Store, userID string, delta float64) {
	t.Helper()
	err := st.InTx(context.Background(), func(tx store.Tx) error {
		_, err := tx.AddScore(context.Background(), userID, delta)
		return err
	})
	require.NoError(t, err)
}

func TestStatus_Titles(t *testing.T) {
	f := newFixture(t)
	hana := f.user(t, "hana", model.GenderFemale)
	ren := f.user(t, "ren", model.GenderMale)
	addScore(t, f.store, hana.UserID, 150)
	addScore(t, f.store, ren.UserID, -600)

	st, err := f.svc.Status(context.Background(), hana.UserID)
	require.NoError(t, err)
	assert.Equal(t, title.SunnyWoman, st.Title)

	st, err = f.svc.Status(context.Background(), ren.UserID)
	require.NoError(t, err)
	assert.Equal(t, title.StormCaller, st.Title)
}

func TestStatus_UnknownUser(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Status(context.Background(), "missing")
	assert.ErrorIs(t, err, store.ErrUserNotFound)
	assert.Equal(t, KindStorage, KindOf(err))
}

func TestRanking(t *testing.T) {
	f := newFixture(t)
	for i, name := range []string{"a", "b", "c", "d", "e", "f", "g", "h", "i", "j", "k", "l"} {
		id := f.user(t, name, model.GenderFemale)
		addScore(t, f.store, id.UserID, float64(i*60))
	}

	got, err := f.svc.Ranking(context.Background())
	require.NoError(t, err)
	require.Len(t, got, RankingSize)
	assert.Equal(t, "l", got[0].Username)
	assert.Equal(t, 660.0, got[0].Score)
	assert.Equal(t, title.SolarDeity, got[0].Title)
	for i := 1; i < len(got); i++ {
		assert.GreaterOrEqual(t, got[i-1].Score, got[i].Score)
	}
	// 120 is the lowest score that makes the top ten.
	assert.Equal(t, title.SunnyWoman, got[RankingSize-1].Title)
}

func TestLatestLocations(t *testing.T) {
	f := newFixture(t, 800, 500)
	id := f.user(t, "hana", model.GenderFemale)

	_, err := f.svc.LogLocation(context.Background(), id, model.NewPoint(farLat, farLon))
	require.NoError(t, err)
	f.clock.Advance(time.Minute)
	_, err = f.svc.LogLocation(context.Background(), id, model.NewPoint(35.5, 139.5))
	require.NoError(t, err)

	locs, err := f.svc.LatestLocations(context.Background())
	require.NoError(t, err)
	require.Len(t, locs, 1)
	assert.Equal(t, "hana", locs[0].Username)
	assert.Equal(t, 35.5, locs[0].Latitude)
	assert.Equal(t, weather.Rainy, locs[0].Weather)
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, KindUnknown, KindOf(errors.New("x")))
	assert.Equal(t, KindUnknown, KindOf(nil))
	err := newError(KindUpstream, errors.New("down"))
	assert.Equal(t, KindUpstream, KindOf(err))
	assert.Contains(t, err.Error(), "upstream: down")
	assert.Equal(t, "invalid input", KindInvalidInput.String())
	assert.Equal(t, "unknown", Kind(42).String())
}
