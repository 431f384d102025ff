package app

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/sudomarket/internal/config"
	"github.com/alanyoungcy/sudomarket/internal/domain"
)

func testLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestRunFailsOnMissingDeployment(t *testing.T) {
	cfg := config.Defaults()
	cfg.Deployment.Dir = t.TempDir()
	a := New(&cfg, testLogger())
	defer a.Close()

	err := a.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "wire")
}

func TestOptionalCollaboratorsStayNil(t *testing.T) {
	deps := &Dependencies{}
	assert.Nil(t, historyReader(deps))
	assert.Nil(t, archiveRunner(deps))
	assert.Nil(t, snapshotRecorder(nil))
}

func TestNewRecorderNeedsStore(t *testing.T) {
	cfg := config.Defaults()
	a := New(&cfg, testLogger())
	assert.Nil(t, a.newRecorder(&Dependencies{}))
}

func TestNewNotifierHonoursEventFilter(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	n := newNotifier(config.NotifyConfig{
		DiscordWebhookURL: srv.URL,
		Events:            []string{domain.EventArchiveFailed},
	}, testLogger())

	require.NoError(t, n.Notify(context.Background(), domain.EventArchiveCompleted, "t", "m"))
	require.NoError(t, n.Notify(context.Background(), domain.EventArchiveFailed, "t", "m"))
	assert.Equal(t, int32(1), hits.Load())
}
