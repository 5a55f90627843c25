package health

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
)

func probe(t *testing.T, endpoint http.HandlerFunc) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()
	endpoint(w, req)
	return w
}

func TestLiveEndpoint(t *testing.T) {
	t.Run("passing checks", func(t *testing.T) {
		s := New()
		s.AddLivenessCheck("always-ok", time.Second, func(context.Context) error { return nil })

		w := probe(t, s.LiveEndpoint)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), "always-ok")
	})

	t.Run("failing check", func(t *testing.T) {
		s := New()
		s.AddLivenessCheck("broken", time.Second, func(context.Context) error {
			return errors.New("dependency down")
		})

		w := probe(t, s.LiveEndpoint)

		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		assert.Contains(t, w.Body.String(), "dependency down")
	})
}

func TestReadyEndpoint(t *testing.T) {
	t.Run("not ready until flagged", func(t *testing.T) {
		s := New()

		assert.Equal(t, http.StatusServiceUnavailable, probe(t, s.ReadyEndpoint).Code)

		s.SetReady(true)
		assert.Equal(t, http.StatusOK, probe(t, s.ReadyEndpoint).Code)

		s.SetReady(false)
		assert.Equal(t, http.StatusServiceUnavailable, probe(t, s.ReadyEndpoint).Code)
	})

	t.Run("failing readiness check overrides the gate", func(t *testing.T) {
		s := New()
		s.SetReady(true)
		s.AddReadinessCheck("db", time.Second, func(context.Context) error {
			return errors.New("no connection")
		})

		assert.Equal(t, http.StatusServiceUnavailable, probe(t, s.ReadyEndpoint).Code)
	})

	t.Run("check timeout propagates through context", func(t *testing.T) {
		s := New()
		s.SetReady(true)
		s.AddReadinessCheck("slow", 10*time.Millisecond, func(ctx context.Context) error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Second):
				return nil
			}
		})

		assert.Equal(t, http.StatusServiceUnavailable, probe(t, s.ReadyEndpoint).Code)
	})
}

func TestGoroutineCountCheck(t *testing.T) {
	assert.NoError(t, GoroutineCountCheck(100000)(context.Background()))
	assert.Error(t, GoroutineCountCheck(0)(context.Background()))
}
