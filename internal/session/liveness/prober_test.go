package liveness

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"intellib/pkg/platform/sentinel"
)

func TestHTTPProber(t *testing.T) {
	ctx := context.Background()

	t.Run("2xx is healthy", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/api/health", r.URL.Path)
			assert.Equal(t, http.MethodGet, r.Method)
			w.WriteHeader(http.StatusNoContent)
		}))
		defer srv.Close()

		require.NoError(t, NewHTTPProber(srv.URL+"/api/health").Probe(ctx))
	})

	t.Run("non-2xx is unavailable", func(t *testing.T) {
		for _, status := range []int{http.StatusInternalServerError, http.StatusServiceUnavailable, http.StatusNotFound} {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(status)
			}))
			err := NewHTTPProber(srv.URL + "/api/health").Probe(ctx)
			srv.Close()

			require.Error(t, err)
			assert.ErrorIs(t, err, sentinel.ErrUnavailable)
		}
	})

	t.Run("slow endpoint times out", func(t *testing.T) {
		release := make(chan struct{})
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-release:
			case <-r.Context().Done():
			}
		}))
		defer srv.Close()
		defer close(release)

		start := time.Now()
		err := NewHTTPProber(srv.URL+"/api/health", WithProbeTimeout(50*time.Millisecond)).Probe(ctx)
		assert.ErrorIs(t, err, sentinel.ErrUnavailable)
		assert.Less(t, time.Since(start), time.Second)
	})

	t.Run("connection refused is unavailable", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		url := srv.URL
		srv.Close()

		err := NewHTTPProber(url + "/api/health").Probe(ctx)
		assert.ErrorIs(t, err, sentinel.ErrUnavailable)
	})
}
