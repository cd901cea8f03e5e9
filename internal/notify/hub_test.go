// internal/notify/hub_test.go
package notify_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	jsoniter "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/pilot/api/schemas"
	"github.com/xkilldash9x/pilot/internal/notify"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func receive(t *testing.T, ch <-chan schemas.Notification) schemas.Notification {
	t.Helper()
	select {
	case n, ok := <-ch:
		require.True(t, ok, "channel closed unexpectedly")
		return n
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for notification")
		return schemas.Notification{}
	}
}

func TestHub_PreservesEmissionOrderPerKind(t *testing.T) {
	hub := notify.NewHub(zaptest.NewLogger(t), 128)
	defer hub.Shutdown()

	events, unsubscribe := hub.Subscribe(schemas.NotifyLoadingState)
	defer unsubscribe()

	ctx := context.Background()
	for i := 0; i < 50; i++ {
		p := float64(i)
		require.NoError(t, hub.Publish(ctx, schemas.SourceBrowser, schemas.NotifyLoadingState, schemas.LoadingState{IsLoading: true, ProgressPercent: &p}))
		// Interleave another kind that this subscriber does not want.
		require.NoError(t, hub.Publish(ctx, schemas.SourceBrowser, schemas.NotifyActionPerformed, nil))
	}

	for i := 0; i < 50; i++ {
		n := receive(t, events)
		state := n.Payload.(schemas.LoadingState)
		assert.Equal(t, float64(i), *state.ProgressPercent)
		assert.NotEmpty(t, n.ID)
		assert.False(t, n.Timestamp.IsZero())
	}
}

func TestHub_WildcardReceivesEverything(t *testing.T) {
	hub := notify.NewHub(zaptest.NewLogger(t), 16)
	defer hub.Shutdown()

	all, unsubscribe := hub.Subscribe()
	defer unsubscribe()

	ctx := context.Background()
	require.NoError(t, hub.Publish(ctx, schemas.SourceBrowser, schemas.NotifyURLChange, schemas.URLChangePayload{URL: "https://a.test"}))
	require.NoError(t, hub.Publish(ctx, schemas.SourceDesktop, schemas.NotifyActionError, schemas.ActionErrorPayload{Action: schemas.ActionClick}))

	assert.Equal(t, schemas.NotifyURLChange, receive(t, all).Kind)
	second := receive(t, all)
	assert.Equal(t, schemas.NotifyActionError, second.Kind)
	assert.Equal(t, schemas.SourceDesktop, second.Source)
}

func TestHub_FullSubscriberDropsInsteadOfBlocking(t *testing.T) {
	hub := notify.NewHub(zaptest.NewLogger(t), 1)
	defer hub.Shutdown()

	_, unsubscribe := hub.Subscribe(schemas.NotifyActionPerformed)
	defer unsubscribe()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	for i := 0; i < 10; i++ {
		require.NoError(t, hub.Publish(ctx, schemas.SourceBrowser, schemas.NotifyActionPerformed, i))
	}

	assert.Eventually(t, func() bool { return hub.Dropped() > 0 }, time.Second, 5*time.Millisecond)
}

func TestHub_Shutdown(t *testing.T) {
	hub := notify.NewHub(zaptest.NewLogger(t), 8)
	events, unsubscribe := hub.Subscribe(schemas.NotifyPageReady)

	require.NoError(t, hub.Publish(context.Background(), schemas.SourceBrowser, schemas.NotifyPageReady, nil))
	hub.Shutdown()

	// Accepted events are still delivered before the channel closes.
	n, ok := <-events
	require.True(t, ok)
	assert.Equal(t, schemas.NotifyPageReady, n.Kind)
	_, ok = <-events
	assert.False(t, ok)

	assert.ErrorIs(t, hub.Publish(context.Background(), schemas.SourceBrowser, schemas.NotifyPageReady, nil), notify.ErrHubClosed)
	// Unsubscribing after shutdown and shutting down twice are both safe.
	unsubscribe()
	hub.Shutdown()

	late, _ := hub.Subscribe()
	_, ok = <-late
	assert.False(t, ok, "subscriptions after shutdown are closed immediately")
}

func TestRecorder(t *testing.T) {
	var rec notify.Recorder
	ctx := context.Background()
	require.NoError(t, rec.Publish(ctx, schemas.SourceBrowser, schemas.NotifyInputFocused, nil))
	require.NoError(t, rec.Publish(ctx, schemas.SourceBrowser, schemas.NotifyActionPerformed, nil))

	assert.Equal(t, []schemas.NotificationKind{schemas.NotifyInputFocused, schemas.NotifyActionPerformed}, rec.Kinds())
	assert.Len(t, rec.OfKind(schemas.NotifyActionPerformed), 1)
	rec.Reset()
	assert.Empty(t, rec.Events())
}

func TestWSManager_StreamsNotifications(t *testing.T) {
	logger := zaptest.NewLogger(t)
	hub := notify.NewHub(logger, 16)
	defer hub.Shutdown()

	manager := notify.NewWSManager(logger, hub, []string{"*"})
	ctx, cancel := context.WithCancel(context.Background())
	runDone := make(chan struct{})
	go func() {
		defer close(runDone)
		manager.Run(ctx)
	}()
	defer func() {
		cancel()
		<-runDone
	}()

	server := httptest.NewServer(http.HandlerFunc(manager.HandleWS))
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	defer conn.Close()

	require.Eventually(t, func() bool { return manager.ClientCount() == 1 }, 2*time.Second, 5*time.Millisecond)

	for i := 0; i < 3; i++ {
		url := fmt.Sprintf("https://example.test/%d", i)
		require.NoError(t, hub.Publish(context.Background(), schemas.SourceBrowser, schemas.NotifyURLChange, schemas.URLChangePayload{URL: url}))
	}

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	for i := 0; i < 3; i++ {
		_, raw, err := conn.ReadMessage()
		require.NoError(t, err)

		var got struct {
			Kind    string `json:"kind"`
			Source  string `json:"source"`
			Payload struct {
				URL string `json:"url"`
			} `json:"payload"`
		}
		require.NoError(t, jsoniter.Unmarshal(raw, &got))
		assert.Equal(t, "url-change", got.Kind)
		assert.Equal(t, "browser", got.Source)
		assert.Equal(t, fmt.Sprintf("https://example.test/%d", i), got.Payload.URL)
	}
}

func TestWSManager_RejectsUnknownOrigin(t *testing.T) {
	logger := zaptest.NewLogger(t)
	hub := notify.NewHub(logger, 4)
	defer hub.Shutdown()

	manager := notify.NewWSManager(logger, hub, []string{"https://allowed.test"})
	server := httptest.NewServer(http.HandlerFunc(manager.HandleWS))
	defer server.Close()

	header := http.Header{"Origin": []string{"https://evil.test"}}
	_, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(server.URL, "http"), header)
	require.Error(t, err)
	require.NotNil(t, resp)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}
