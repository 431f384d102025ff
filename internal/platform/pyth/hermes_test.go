package pyth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alanyoungcy/sudomarket/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const latestBody = `{
  "binary": {"encoding": "hex", "data": ["504e4155010000"]},
  "parsed": [
    {
      "id": "50c67b3fd225db8912a424dd4baed60ffdde625ed2feaaf283724f9608fea266",
      "price": {"price": "151234567", "conf": "12000", "expo": -8, "publish_time": 1700000000},
      "ema_price": {"price": "150000000", "conf": "13000", "expo": -8, "publish_time": 1700000000}
    }
  ]
}`

func newHermes(t *testing.T, handler http.HandlerFunc) *HermesClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewHermesClient(srv.URL, 5*time.Second)
}

func TestLatestPrices(t *testing.T) {
	var gotIDs []string
	var gotParsed string
	c := newHermes(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/updates/price/latest", r.URL.Path)
		gotIDs = r.URL.Query()["ids[]"]
		gotParsed = r.URL.Query().Get("parsed")
		w.Write([]byte(latestBody))
	})

	feeds, err := c.LatestPrices(context.Background(), []string{"aa", "bb"})
	require.NoError(t, err)
	assert.Equal(t, []string{"aa", "bb"}, gotIDs)
	assert.Equal(t, "true", gotParsed)

	require.Len(t, feeds, 1)
	f := feeds[0]
	assert.Equal(t, int64(151234567), f.Price)
	assert.Equal(t, uint64(12000), f.Conf)
	assert.Equal(t, int32(-8), f.Expo)
	assert.Equal(t, int64(150000000), f.EMAPrice)
	assert.Equal(t, int64(1700000000), f.PublishTime.Unix())
	assert.InDelta(t, 1.51234567, f.Value(), 1e-9)
}

func TestLatestUpdatesDecodesHex(t *testing.T) {
	c := newHermes(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "false", r.URL.Query().Get("parsed"))
		assert.Equal(t, "hex", r.URL.Query().Get("encoding"))
		w.Write([]byte(latestBody))
	})

	updates, err := c.LatestUpdates(context.Background(), []string{"aa"})
	require.NoError(t, err)
	require.Len(t, updates, 1)
	assert.Equal(t, []byte{'P', 'N', 'A', 'U', 1, 0, 0}, updates[0])
}

func TestLatestUpdatesEmptyData(t *testing.T) {
	c := newHermes(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"binary":{"encoding":"hex","data":[]}}`))
	})
	_, err := c.LatestUpdates(context.Background(), []string{"aa"})
	assert.True(t, errors.Is(err, domain.ErrParse))
}

func TestHermesStatusMapping(t *testing.T) {
	cases := []struct {
		status int
		want   error
	}{
		{http.StatusInternalServerError, domain.ErrRemoteUnavailable},
		{http.StatusTooManyRequests, domain.ErrRemoteUnavailable},
		{http.StatusNotFound, domain.ErrNotFound},
	}
	for _, tc := range cases {
		t.Run(http.StatusText(tc.status), func(t *testing.T) {
			c := newHermes(t, func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "nope", tc.status)
			})
			_, err := c.LatestPrices(context.Background(), []string{"aa"})
			assert.True(t, errors.Is(err, tc.want), "got %v", err)
		})
	}
}

func TestHermesTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()
	c := NewHermesClient(srv.URL, time.Second)

	_, err := c.LatestUpdates(context.Background(), []string{"aa"})
	assert.True(t, errors.Is(err, domain.ErrRemoteUnavailable))
}

func TestNoIDsSkipsRequest(t *testing.T) {
	called := false
	c := newHermes(t, func(w http.ResponseWriter, r *http.Request) {
		called = true
	})
	feeds, err := c.LatestPrices(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, feeds)
	assert.False(t, called)
}

func TestHermesURL(t *testing.T) {
	assert.Equal(t, MainnetHermesURL, HermesURL("mainnet"))
	assert.Equal(t, TestnetHermesURL, HermesURL("testnet"))
}
