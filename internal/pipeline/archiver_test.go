package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/sudomarket/internal/domain"
)

type fakeArchiver struct {
	cutoffs []time.Time
	n       int64
	err     error
}

func (f *fakeArchiver) ArchiveValuations(_ context.Context, before time.Time) (int64, error) {
	f.cutoffs = append(f.cutoffs, before)
	return f.n, f.err
}

type fakeLocks struct {
	held     bool
	released int
}

func (l *fakeLocks) Acquire(context.Context, string, time.Duration) (func(), error) {
	if l.held {
		return nil, domain.ErrLockHeld
	}
	return func() { l.released++ }, nil
}

func testLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestArchiverRunCutoff(t *testing.T) {
	fa := &fakeArchiver{n: 12}
	locks := &fakeLocks{}
	a := NewArchiver(fa, locks, 30*24*time.Hour, "testnet", testLogger())
	now := time.Date(2024, 4, 1, 3, 0, 0, 0, time.UTC)
	a.now = func() time.Time { return now }

	n, err := a.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(12), n)
	require.Len(t, fa.cutoffs, 1)
	assert.Equal(t, time.Date(2024, 3, 2, 3, 0, 0, 0, time.UTC), fa.cutoffs[0])
	assert.Equal(t, 1, locks.released)
}

func TestArchiverRunSkipsWhenLockHeld(t *testing.T) {
	fa := &fakeArchiver{}
	a := NewArchiver(fa, &fakeLocks{held: true}, time.Hour, "testnet", testLogger())

	n, err := a.Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, fa.cutoffs)
}

func TestArchiverRunError(t *testing.T) {
	fa := &fakeArchiver{err: errors.New("s3 down")}
	a := NewArchiver(fa, nil, time.Hour, "testnet", testLogger())
	_, err := a.Run(context.Background())
	assert.ErrorContains(t, err, "s3 down")
}

type fakeAlerts struct{ events []string }

func (f *fakeAlerts) Notify(_ context.Context, event, _, _ string) error {
	f.events = append(f.events, event)
	return nil
}

func TestArchiverRunAlerts(t *testing.T) {
	alerts := &fakeAlerts{}
	a := NewArchiver(&fakeArchiver{n: 3}, nil, time.Hour, "testnet", testLogger()).WithAlerts(alerts)
	_, err := a.Run(context.Background())
	require.NoError(t, err)

	a = NewArchiver(&fakeArchiver{}, nil, time.Hour, "testnet", testLogger()).WithAlerts(alerts)
	_, err = a.Run(context.Background())
	require.NoError(t, err)

	a = NewArchiver(&fakeArchiver{err: errors.New("s3 down")}, nil, time.Hour, "testnet", testLogger()).WithAlerts(alerts)
	_, err = a.Run(context.Background())
	require.Error(t, err)

	assert.Equal(t, []string{domain.EventArchiveCompleted, domain.EventArchiveFailed}, alerts.events)
}

func TestScheduleNext(t *testing.T) {
	base := time.Date(2024, 1, 31, 22, 17, 30, 0, time.UTC) // Wednesday
	cases := []struct {
		expr string
		want time.Time
	}{
		{"* * * * *", time.Date(2024, 1, 31, 22, 18, 0, 0, time.UTC)},
		{"0 3 * * *", time.Date(2024, 2, 1, 3, 0, 0, 0, time.UTC)},
		{"*/15 * * * *", time.Date(2024, 1, 31, 22, 30, 0, 0, time.UTC)},
		{"0 3 1 * *", time.Date(2024, 2, 1, 3, 0, 0, 0, time.UTC)},
		{"30 9 * * 1-5", time.Date(2024, 2, 1, 9, 30, 0, 0, time.UTC)},
		{"0 0 * * 0", time.Date(2024, 2, 4, 0, 0, 0, 0, time.UTC)},
		{"5,50 22 * * *", time.Date(2024, 1, 31, 22, 50, 0, 0, time.UTC)},
	}
	for _, tc := range cases {
		t.Run(tc.expr, func(t *testing.T) {
			s, err := ParseSchedule(tc.expr)
			require.NoError(t, err)
			got, err := s.Next(base)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestParseScheduleRejects(t *testing.T) {
	for _, expr := range []string{"", "* * * *", "60 * * * *", "* 24 * * *", "*/0 * * * *", "5-1 * * * *", "a * * * *"} {
		_, err := ParseSchedule(expr)
		assert.Error(t, err, expr)
	}
}

func TestScheduleNextImpossible(t *testing.T) {
	s, err := ParseSchedule("0 0 31 2 *")
	require.NoError(t, err)
	_, err = s.Next(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	assert.Error(t, err)
}
