// internal/metrics/collector_test.go
package metrics

import (
	"context"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/pilot/api/schemas"
	"github.com/xkilldash9x/pilot/internal/notify"
	"github.com/xkilldash9x/pilot/internal/stability"
)

func TestCollector_ObserveAction(t *testing.T) {
	c := NewCollector("test", zaptest.NewLogger(t))

	c.ObserveAction(schemas.SourceBrowser, schemas.ActionClick, schemas.StatusSuccess, 300*time.Millisecond)
	c.ObserveAction(schemas.SourceBrowser, schemas.ActionClick, schemas.StatusSuccess, 200*time.Millisecond)
	c.ObserveAction(schemas.SourceDesktop, schemas.ActionLaunch, schemas.StatusError, 0)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.actionsTotal.WithLabelValues("browser", "click", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.actionsTotal.WithLabelValues("desktop", "launch", "error")))
	// Rejected directives carry no latency.
	assert.Equal(t, 1, testutil.CollectAndCount(c.actionDuration))
}

func TestCollector_ObserveSettle(t *testing.T) {
	c := NewCollector("test", zaptest.NewLogger(t))

	c.ObserveSettle(schemas.SourceBrowser, stability.Result{Outcome: stability.TimedOut, Elapsed: 5 * time.Second})
	c.ObserveSettle(schemas.SourceBrowser, stability.Result{Outcome: stability.Stable, Elapsed: time.Second})
	c.ObserveSettle(schemas.SourceDesktop, stability.Result{Outcome: stability.Settled, Elapsed: 2 * time.Second})

	assert.Equal(t, 1.0, testutil.ToFloat64(c.settleTotal.WithLabelValues("browser", stability.TimedOut.String())))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.settleTotal.WithLabelValues("desktop", stability.Settled.String())))
}

func TestCollector_CountingPublisher(t *testing.T) {
	c := NewCollector("test", zaptest.NewLogger(t))
	rec := &notify.Recorder{}
	pub := c.Publisher(rec)

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		require.NoError(t, pub.Publish(ctx, schemas.SourceBrowser, schemas.NotifyLoadingState, schemas.LoadingState{IsLoading: true}))
	}
	require.NoError(t, pub.Publish(ctx, schemas.SourceBrowser, schemas.NotifyPageReady, nil))

	assert.Len(t, rec.Events(), 4, "events pass through")
	assert.Equal(t, 3.0, testutil.ToFloat64(c.notifications.WithLabelValues("browser", string(schemas.NotifyLoadingState))))
}

func TestCollector_Handler(t *testing.T) {
	c := NewCollector("pilot", zaptest.NewLogger(t))
	c.RecordHTTPRequest("POST", "/v1/turns", 200, 10*time.Millisecond)

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `pilot_http_requests_total{method="POST",route="/v1/turns",status="200"} 1`)
	assert.Contains(t, string(body), "go_goroutines")
}
