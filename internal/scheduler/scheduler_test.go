package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/bwmarrin/snowflake"
	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/gymledger/internal/clock"
	"github.com/smallbiznis/gymledger/internal/config"
	"github.com/smallbiznis/gymledger/internal/ratelimit"
	settingdomain "github.com/smallbiznis/gymledger/internal/setting/domain"
	vatdomain "github.com/smallbiznis/gymledger/internal/vat/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubVat struct {
	calls int
	err   error
}

func (s *stubVat) Positions(context.Context) ([]vatdomain.Position, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return []vatdomain.Position{
		{EntityID: 1, Name: "Studio Ltd", Risk: vatdomain.RiskLow},
		{EntityID: 2, Name: "Classes Ltd", Risk: vatdomain.RiskCritical},
	}, nil
}

func (s *stubVat) Position(context.Context, snowflake.ID) (*vatdomain.Position, error) {
	return nil, nil
}

func (s *stubVat) CurrentYear() vatdomain.Year {
	return vatdomain.YearFor(time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC))
}

type stubSettings struct {
	settingdomain.Service
	purged int64
	calls  int
}

func (s *stubSettings) PurgeExpired(context.Context) (int64, error) {
	s.calls++
	return s.purged, nil
}

func newScheduler(t *testing.T, locker *ratelimit.Locker, vat *stubVat, settings *stubSettings) *Scheduler {
	t.Helper()
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	sched, err := New(Params{
		Cfg: config.Config{Jobs: config.JobsConfig{
			Enabled:           true,
			RecomputeVATCron:  "*/15 * * * *",
			PurgeSettingsCron: "5 * * * *",
			LockTTL:           time.Minute,
		}},
		Log:        zap.NewNop(),
		GenID:      node,
		Clock:      clock.NewFakeClock(time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)),
		VatSvc:     vat,
		SettingSvc: settings,
		Locker:     locker,
	})
	require.NoError(t, err)
	return sched
}

func TestNewRegistersCronEntries(t *testing.T) {
	sched := newScheduler(t, nil, &stubVat{}, &stubSettings{})
	assert.Len(t, sched.cron.Entries(), 2)
}

func TestNewRejectsBadCronSpec(t *testing.T) {
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	_, err = New(Params{
		Cfg:        config.Config{Jobs: config.JobsConfig{RecomputeVATCron: "every now and then"}},
		Log:        zap.NewNop(),
		GenID:      node,
		Clock:      clock.NewFakeClock(time.Now()),
		VatSvc:     &stubVat{},
		SettingSvc: &stubSettings{},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), JobRecomputeVAT)
}

func TestNewRequiresDependencies(t *testing.T) {
	_, err := New(Params{Log: zap.NewNop()})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestRunJobWithoutLocker(t *testing.T) {
	vat := &stubVat{}
	settings := &stubSettings{purged: 3}
	sched := newScheduler(t, nil, vat, settings)

	require.NoError(t, sched.RunJob(context.Background(), JobRecomputeVAT))
	require.NoError(t, sched.RunJob(context.Background(), JobPurgeSettings))

	assert.Equal(t, 1, vat.calls)
	assert.Equal(t, 1, settings.calls)
}

func TestRunJobUnknown(t *testing.T) {
	sched := newScheduler(t, nil, &stubVat{}, &stubSettings{})
	err := sched.RunJob(context.Background(), "send_invoices")
	assert.ErrorIs(t, err, ErrUnknownJob)
}

func TestRunJobWrapsFailure(t *testing.T) {
	boom := errors.New("db down")
	sched := newScheduler(t, nil, &stubVat{err: boom}, &stubSettings{})

	err := sched.RunJob(context.Background(), JobRecomputeVAT)
	require.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), JobRecomputeVAT)
}

func TestRunJobSkipsWhenAnotherReplicaHoldsLock(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	locker := ratelimit.NewLocker(client)

	vat := &stubVat{}
	sched := newScheduler(t, locker, vat, &stubSettings{})

	token, ok, err := locker.TryLock(context.Background(), "job:"+JobRecomputeVAT, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, sched.RunJob(context.Background(), JobRecomputeVAT))
	assert.Equal(t, 0, vat.calls)

	require.NoError(t, locker.Release(context.Background(), "job:"+JobRecomputeVAT, token))
	require.NoError(t, sched.RunJob(context.Background(), JobRecomputeVAT))
	assert.Equal(t, 1, vat.calls)
}
