package sentinel

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forest-guardian/field-indices-cli/internal/config"
	"github.com/forest-guardian/field-indices-cli/internal/retry"
)

// fakeHub serves the token endpoint and delegates API calls to api.
func fakeHub(t *testing.T, api http.HandlerFunc) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		id, _, ok := r.BasicAuth()
		if !ok {
			id = r.FormValue("client_id")
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = fmt.Fprintf(w, `{"access_token":"tok-%s","token_type":"bearer","expires_in":3600}`, id)
	})
	mux.HandleFunc("/api/", api)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestClient(t *testing.T, srv *httptest.Server, ids, secrets string) *Client {
	t.Helper()
	c, err := NewClient(context.Background(), config.SentinelConfig{
		BaseURL:           srv.URL,
		TokenURL:          srv.URL + "/token",
		ClientID:          ids,
		ClientSecret:      secrets,
		Collection:        "sentinel-2-l2a",
		MaxCloudCover:     40,
		Resolution:        10,
		RequestsPerSecond: 1000,
	})
	require.NoError(t, err)
	c.retry = retry.Config{MaxAttempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: 2 * time.Millisecond}
	return c
}

func TestNewClientRequiresCredentials(t *testing.T) {
	_, err := NewClient(context.Background(), config.SentinelConfig{TokenURL: "http://x"})
	assert.ErrorIs(t, err, ErrMissingCredentials)

	_, err = NewClient(context.Background(), config.SentinelConfig{TokenURL: "http://x", ClientID: "a,b", ClientSecret: "s"})
	assert.Error(t, err)
}

func TestSearchScenesFollowsPagination(t *testing.T) {
	var calls atomic.Int32
	srv := fakeHub(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, catalogPath, r.URL.Path)
		assert.Equal(t, "Bearer tok-id", r.Header.Get("Authorization"))

		var req catalogRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, []string{"sentinel-2-l2a"}, req.Collections)
		assert.Equal(t, "eo:cloud_cover < 40", req.Filter)
		assert.True(t, strings.HasPrefix(req.Datetime, "2021-01-01T00:00:00Z/2021-12-31T23:59:59.999"))

		calls.Add(1)
		if req.Next == 0 {
			_, _ = w.Write([]byte(`{"features":[
				{"id":"S2B_b","properties":{"datetime":"2021-06-10T13:46:00Z","eo:cloud_cover":12}},
				{"id":"S2A_a","properties":{"datetime":"2021-03-02T13:46:00Z","eo:cloud_cover":3.5}}
			],"context":{"next":2,"returned":2}}`))
			return
		}
		assert.Equal(t, 2, req.Next)
		_, _ = w.Write([]byte(`{"features":[
			{"id":"S2A_c","properties":{"datetime":"2021-12-31T13:46:00Z","eo:cloud_cover":0}},
			{"id":"S2A_late","properties":{"datetime":"2022-01-01T13:46:00Z","eo:cloud_cover":0}}
		],"context":{"returned":2}}`))
	})

	c := newTestClient(t, srv, "id", "secret")
	from := time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC)
	scenes, err := c.SearchScenes(context.Background(), orb.Bound{Min: orb.Point{-54.4, -21.6}, Max: orb.Point{-54.3, -21.5}}, from, from.AddDate(1, 0, 0))
	require.NoError(t, err)

	assert.EqualValues(t, 2, calls.Load())
	require.Len(t, scenes, 3)
	assert.Equal(t, "S2A_a", scenes[0].ID)
	assert.Equal(t, "S2B_b", scenes[1].ID)
	assert.Equal(t, "S2A_c", scenes[2].ID)
	assert.Equal(t, time.Date(2021, 12, 31, 0, 0, 0, 0, time.UTC), scenes[2].Day())
}

func TestSearchScenesRejectsEmptyRange(t *testing.T) {
	srv := fakeHub(t, func(w http.ResponseWriter, r *http.Request) {})
	c := newTestClient(t, srv, "id", "secret")
	now := time.Now()
	_, err := c.SearchScenes(context.Background(), orb.Bound{}, now, now)
	assert.Error(t, err)
}

func TestRequestImage(t *testing.T) {
	srv := fakeHub(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, processPath, r.URL.Path)
		assert.Equal(t, "image/tiff", r.Header.Get("Accept"))

		var payload struct {
			Input struct {
				Data []struct {
					Type       string `json:"type"`
					DataFilter struct {
						TimeRange struct {
							From string `json:"from"`
							To   string `json:"to"`
						} `json:"timeRange"`
						MaxCloudCoverage float64 `json:"maxCloudCoverage"`
					} `json:"dataFilter"`
				} `json:"data"`
			} `json:"input"`
			Output struct {
				Width  int `json:"width"`
				Height int `json:"height"`
			} `json:"output"`
			Evalscript string `json:"evalscript"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		require.Len(t, payload.Input.Data, 1)
		assert.Equal(t, "2021-07-04T00:00:00Z", payload.Input.Data[0].DataFilter.TimeRange.From)
		assert.Equal(t, "2021-07-04T23:59:59Z", payload.Input.Data[0].DataFilter.TimeRange.To)
		assert.Equal(t, 40.0, payload.Input.Data[0].DataFilter.MaxCloudCoverage)
		assert.Positive(t, payload.Output.Width)
		assert.Positive(t, payload.Output.Height)
		assert.Contains(t, payload.Evalscript, "SCL")
		assert.Contains(t, payload.Evalscript, "dataMask")

		_, _ = w.Write([]byte("II*\x00tiff"))
	})

	c := newTestClient(t, srv, "id", "secret")
	poly := orb.Polygon{{{-54.40, -21.60}, {-54.39, -21.60}, {-54.39, -21.59}, {-54.40, -21.60}}}
	data, err := c.RequestImage(context.Background(), poly, time.Date(2021, 7, 4, 13, 46, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, []byte("II*\x00tiff"), data)
}

func TestRequestImageNotFound(t *testing.T) {
	srv := fakeHub(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no data", http.StatusNotFound)
	})
	c := newTestClient(t, srv, "id", "secret")
	_, err := c.RequestImage(context.Background(), orb.Polygon{{{0, 0}, {0.01, 0}, {0.01, 0.01}, {0, 0}}}, time.Now())
	assert.ErrorIs(t, err, ErrImageNotFound)
}

func TestPostRetriesThrottledRequests(t *testing.T) {
	var calls atomic.Int32
	srv := fakeHub(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, "slow down", http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(`{"features":[],"context":{}}`))
	})

	c := newTestClient(t, srv, "id", "secret")
	now := time.Now()
	scenes, err := c.SearchScenes(context.Background(), orb.Bound{}, now.Add(-time.Hour), now)
	require.NoError(t, err)
	assert.Empty(t, scenes)
	assert.EqualValues(t, 3, calls.Load())
}

func TestPostDoesNotRetryBadRequest(t *testing.T) {
	var calls atomic.Int32
	srv := fakeHub(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "bad evalscript", http.StatusBadRequest)
	})

	c := newTestClient(t, srv, "id", "secret")
	_, err := c.RequestImage(context.Background(), orb.Polygon{{{0, 0}, {0.01, 0}, {0.01, 0.01}, {0, 0}}}, time.Now())
	require.Error(t, err)
	assert.EqualValues(t, 1, calls.Load())

	var httpErr *retry.HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusBadRequest, httpErr.StatusCode)
}

func TestPostRotatesRejectedCredentials(t *testing.T) {
	srv := fakeHub(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok-good" {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		_, _ = w.Write([]byte(`{"features":[],"context":{}}`))
	})

	c := newTestClient(t, srv, "bad,good", "s1,s2")
	now := time.Now()
	_, err := c.SearchScenes(context.Background(), orb.Bound{}, now.Add(-time.Hour), now)
	require.NoError(t, err)

	idx, _ := c.credential()
	assert.Equal(t, 1, idx)
}

func TestPostFailsWhenEveryCredentialIsRejected(t *testing.T) {
	srv := fakeHub(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	})

	c := newTestClient(t, srv, "a,b", "s1,s2")
	now := time.Now()
	_, err := c.SearchScenes(context.Background(), orb.Bound{}, now.Add(-time.Hour), now)
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestImageSize(t *testing.T) {
	assert.Equal(t, 1, calculatePixels(0, 10))
	assert.Equal(t, maxPixels, calculatePixels(10, 10))
	assert.Equal(t, 111, calculatePixels(0.01, 10))

	w, h := ImageSize(orb.Bound{Min: orb.Point{-54.4, -21.6}, Max: orb.Point{-54.39, -21.59}}, 10)
	assert.Equal(t, 111, h)
	assert.Less(t, w, h)
	assert.Greater(t, w, 100)
}
