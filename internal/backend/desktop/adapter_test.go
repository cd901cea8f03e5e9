// internal/backend/desktop/adapter_test.go
package desktop

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/pilot/api/schemas"
	"github.com/xkilldash9x/pilot/internal/backend"
	"github.com/xkilldash9x/pilot/internal/config"
	"github.com/xkilldash9x/pilot/internal/notify"
	"github.com/xkilldash9x/pilot/internal/stability"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// timeline records commands and waits in the order they happen.
type timeline struct {
	mu     sync.Mutex
	events []string
}

func (tl *timeline) add(e string) {
	tl.mu.Lock()
	defer tl.mu.Unlock()
	tl.events = append(tl.events, e)
}

func (tl *timeline) all() []string {
	tl.mu.Lock()
	defer tl.mu.Unlock()
	return append([]string(nil), tl.events...)
}

func (tl *timeline) count(prefix string) int {
	n := 0
	for _, e := range tl.all() {
		if strings.HasPrefix(e, prefix) {
			n++
		}
	}
	return n
}

// fakeRunner answers commands through respond and logs them to the timeline.
type fakeRunner struct {
	tl      *timeline
	respond func(cmd []string) (string, error)
}

func (f *fakeRunner) Run(_ context.Context, cmd ...string) (string, error) {
	f.tl.add("exec:" + strings.Join(cmd, " "))
	if f.respond != nil {
		out, err := f.respond(cmd)
		if !errors.Is(err, errUnhandled) {
			return out, err
		}
	}
	return defaultResponse(cmd)
}

// errUnhandled lets a responder defer to defaultResponse.
var errUnhandled = errors.New("unhandled")

func defaultResponse(cmd []string) (string, error) {
	switch {
	case cmd[0] == "pgrep":
		return "4242\n", nil
	case cmd[0] == "sh" && len(cmd) > 2 && strings.Contains(cmd[2], "import -window root"):
		return "iVBORw0KGgo=\n", nil
	}
	return "", nil
}

type fakeInspector struct {
	running bool
	err     error
}

func (f fakeInspector) ContainerRunning(context.Context) (bool, error) { return f.running, f.err }

type fixture struct {
	tl      *timeline
	runner  *fakeRunner
	rec     *notify.Recorder
	clock   *fakeClock
	adapter *Adapter
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func testConfig() config.DesktopConfig {
	cfg := config.NewDefaultConfig().Desktop
	cfg.Enabled = true
	cfg.Container = "desktop-test"
	return cfg
}

func newFixture(t *testing.T, inspector Inspector) *fixture {
	t.Helper()
	tl := &timeline{}
	f := &fixture{
		tl:     tl,
		runner: &fakeRunner{tl: tl},
		rec:    &notify.Recorder{},
		clock:  &fakeClock{now: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)},
	}
	sleep := func(_ context.Context, d time.Duration) error {
		tl.add("sleep:" + d.String())
		return nil
	}
	monitor := func(d time.Duration) stability.Monitor {
		return stability.MonitorFunc(func(context.Context) (stability.Result, error) {
			tl.add("settle:" + d.String())
			return stability.Result{Outcome: stability.Settled, Elapsed: d}, nil
		})
	}
	f.adapter = New(f.runner, inspector, testConfig(), zaptest.NewLogger(t), f.rec,
		withTiming(sleep, monitor), WithClock(f.clock.Now))
	return f
}

func req(action schemas.ActionKind, coord *schemas.Coordinate) backend.Request {
	return backend.Request{Directive: schemas.ActionDirective{Action: action, Source: schemas.SourceDesktop}, Coordinate: coord}
}

func TestScroll_WheelClicksThenContentDelayThenScreenshot(t *testing.T) {
	f := newFixture(t, nil)
	r := req(schemas.ActionScroll, nil)
	r.Direction = schemas.ScrollDown

	resp := f.adapter.ExecuteAction(context.Background(), r)

	require.True(t, resp.Succeeded(), resp.Message)
	assert.Equal(t, "Scrolled down", resp.Message)
	assert.Equal(t, backend.PNGDataURIPrefix+"iVBORw0KGgo=", resp.Screenshot)
	assert.Equal(t, []string{
		"exec:pgrep -f firefox",
		"exec:xdotool click 5",
		"sleep:100ms",
		"exec:xdotool click 5",
		"settle:1s",
		"exec:sh -c import -window root png:- | base64 -w0",
	}, f.tl.all())
}

func TestScrollUp_UsesWheelUpButton(t *testing.T) {
	f := newFixture(t, nil)
	resp := f.adapter.ExecuteAction(context.Background(), req(schemas.ActionScrollUp, nil))
	require.True(t, resp.Succeeded())
	assert.Equal(t, 2, f.tl.count("exec:xdotool click 4"))
}

func TestClickAndDoubleClick(t *testing.T) {
	f := newFixture(t, nil)

	resp := f.adapter.ExecuteAction(context.Background(), req(schemas.ActionClick, &schemas.Coordinate{X: 450, Y: 300}))
	require.True(t, resp.Succeeded(), resp.Message)
	resp = f.adapter.ExecuteAction(context.Background(), req(schemas.ActionDoubleClick, &schemas.Coordinate{X: 10, Y: 20}))
	require.True(t, resp.Succeeded(), resp.Message)

	events := f.tl.all()
	assert.Contains(t, events, "exec:xdotool mousemove --sync 450 300 click 1")
	assert.Contains(t, events, "exec:xdotool mousemove --sync 10 20 click --repeat 2 --delay 100 1")
	assert.Equal(t, 2, f.tl.count("settle:2s"))

	performed := f.rec.OfKind(schemas.NotifyActionPerformed)
	require.Len(t, performed, 2)
	assert.Equal(t, schemas.SourceDesktop, performed[0].Source)
	assert.Equal(t, schemas.ActionDoubleClick, performed[1].Payload.(schemas.ActionPerformedPayload).Action)
}

func TestType_SingleInjectionCommand(t *testing.T) {
	f := newFixture(t, nil)
	r := req(schemas.ActionType, nil)
	r.Directive.Text = "-rf hello world"

	resp := f.adapter.ExecuteAction(context.Background(), r)

	require.True(t, resp.Succeeded(), resp.Message)
	assert.Equal(t, 1, f.tl.count("exec:xdotool type"))
	assert.Contains(t, f.tl.all(), "exec:xdotool type --clearmodifiers --delay 12 -- -rf hello world")
	assert.Equal(t, 1, f.tl.count("settle:500ms"))
}

func TestKeyPress_TranslatesThroughKeymap(t *testing.T) {
	f := newFixture(t, nil)
	r := req(schemas.ActionKeyPress, nil)
	r.Directive.Key = "Enter"

	resp := f.adapter.ExecuteAction(context.Background(), r)

	require.True(t, resp.Succeeded(), resp.Message)
	assert.Contains(t, f.tl.all(), "exec:xdotool key --clearmodifiers Return")
}

func TestUnsupportedActionSkipsReadinessGuard(t *testing.T) {
	f := newFixture(t, nil)

	resp := f.adapter.ExecuteAction(context.Background(), req(schemas.ActionDetectLoading, nil))

	assert.Equal(t, schemas.StatusError, resp.Status)
	assert.Equal(t, "Unsupported action: detectLoading", resp.Message)
	assert.Empty(t, f.tl.all())
	assert.Len(t, f.rec.OfKind(schemas.NotifyActionError), 1)
}

func TestReadinessGuard(t *testing.T) {
	click := req(schemas.ActionClick, &schemas.Coordinate{X: 1, Y: 1})

	t.Run("target process missing", func(t *testing.T) {
		f := newFixture(t, fakeInspector{running: true})
		f.runner.respond = func(cmd []string) (string, error) {
			if cmd[0] == "pgrep" {
				return "", &ExecError{Cmd: cmd, ExitCode: 1}
			}
			return "", errUnhandled
		}

		resp := f.adapter.ExecuteAction(context.Background(), click)

		assert.Equal(t, schemas.StatusError, resp.Status)
		assert.Equal(t, "firefox is not running in the desktop container", resp.Message)
		assert.Equal(t, 0, f.tl.count("exec:xdotool"), "no input command may run")

		errs := f.rec.OfKind(schemas.NotifyActionError)
		require.Len(t, errs, 1)
		assert.Equal(t, schemas.ActionClick, errs[0].Payload.(schemas.ActionErrorPayload).Action)
	})

	t.Run("container stopped", func(t *testing.T) {
		f := newFixture(t, fakeInspector{running: false})
		f.runner.respond = func(cmd []string) (string, error) {
			if cmd[0] == "pgrep" {
				return "", errors.New("connection refused")
			}
			return "", errUnhandled
		}

		resp := f.adapter.ExecuteAction(context.Background(), click)
		assert.Equal(t, "Desktop container desktop-test is not running", resp.Message)
	})

	t.Run("transport failure", func(t *testing.T) {
		f := newFixture(t, fakeInspector{running: true})
		f.runner.respond = func(cmd []string) (string, error) {
			if cmd[0] == "pgrep" {
				return "", errors.New("connection reset")
			}
			return "", errUnhandled
		}

		resp := f.adapter.ExecuteAction(context.Background(), click)
		assert.Equal(t, "Failed to reach the desktop container", resp.Message)
		assert.Contains(t, resp.Error, "connection reset")
	})
}

func TestCommandFailureCarriesRawDetail(t *testing.T) {
	f := newFixture(t, nil)
	f.runner.respond = func(cmd []string) (string, error) {
		if cmd[0] == "xdotool" {
			return "", &ExecError{Cmd: cmd, ExitCode: 1, Stderr: "Can't open display\n"}
		}
		return "", errUnhandled
	}

	resp := f.adapter.ExecuteAction(context.Background(), req(schemas.ActionClick, &schemas.Coordinate{X: 1, Y: 1}))

	assert.Equal(t, schemas.StatusError, resp.Status)
	assert.Equal(t, "Desktop command failed: Can't open display", resp.Message)
	assert.Contains(t, resp.Error, "exited with code 1")
}

// helperResponder answers the URL helper with url, and window lookups with titles.
func helperResponder(helperURL string, titles map[string]string) func(cmd []string) (string, error) {
	return func(cmd []string) (string, error) {
		switch {
		case cmd[0] == "sh" && len(cmd) == 2 && strings.Contains(cmd[1], "url-helper-"):
			return helperURL, nil
		case len(cmd) > 2 && cmd[0] == "xdotool" && cmd[1] == "search":
			var ids []string
			for id := range titles {
				ids = append(ids, id)
			}
			return strings.Join(ids, "\n"), nil
		case len(cmd) > 2 && cmd[0] == "xdotool" && cmd[1] == "getwindowname":
			return titles[cmd[2]], nil
		}
		return "", errUnhandled
	}
}

func TestGetURL_CachedWithinTTL(t *testing.T) {
	f := newFixture(t, nil)
	f.runner.respond = helperResponder("https://example.test/inbox\n", nil)
	getURL := req(schemas.ActionGetURL, nil)

	first := f.adapter.ExecuteAction(context.Background(), getURL)
	require.True(t, first.Succeeded(), first.Message)
	assert.Equal(t, "https://example.test/inbox", first.Message)
	assert.Equal(t, 1, f.tl.count("exec:sh /tmp/url-helper-"))

	f.clock.Advance(1500 * time.Millisecond)
	second := f.adapter.ExecuteAction(context.Background(), getURL)
	assert.Equal(t, "https://example.test/inbox", second.Message)
	assert.Equal(t, 1, f.tl.count("exec:sh /tmp/url-helper-"), "served from cache")

	f.clock.Advance(time.Second)
	f.adapter.ExecuteAction(context.Background(), getURL)
	assert.Equal(t, 2, f.tl.count("exec:sh /tmp/url-helper-"), "re-extracted after the TTL")
	assert.Equal(t, 2, f.tl.count("exec:rm -f /tmp/url-helper-"), "helper removed every time")
}

func TestGetURL_FallsBackToWindowTitles(t *testing.T) {
	f := newFixture(t, nil)
	f.runner.respond = helperResponder("not a url", map[string]string{
		"8388621": "Inbox - https://mail.test/u/0 - Mozilla Firefox",
	})

	resp := f.adapter.ExecuteAction(context.Background(), req(schemas.ActionGetURL, nil))

	require.True(t, resp.Succeeded(), resp.Message)
	assert.Equal(t, "https://mail.test/u/0", resp.Message)
	assert.Equal(t, 1, f.tl.count("exec:rm -f /tmp/url-helper-"))
}

func TestGetURL_DegradesToSentinelAndCachesIt(t *testing.T) {
	f := newFixture(t, nil)
	f.runner.respond = func(cmd []string) (string, error) {
		switch {
		case cmd[0] == "sh" && len(cmd) > 3 && strings.Contains(cmd[2], "base64 -d"):
			return "", &ExecError{Cmd: cmd, ExitCode: 1, Stderr: "read-only file system"}
		case cmd[0] == "xdotool" && cmd[1] == "search":
			return "", &ExecError{Cmd: cmd, ExitCode: 1}
		}
		return "", errUnhandled
	}

	resp := f.adapter.ExecuteAction(context.Background(), req(schemas.ActionGetURL, nil))
	require.True(t, resp.Succeeded(), resp.Message)
	assert.Equal(t, schemas.NoURL, resp.Message)
	assert.Equal(t, 1, f.tl.count("exec:rm -f /tmp/url-helper-"), "cleanup runs even when the helper never ran")

	f.adapter.ExecuteAction(context.Background(), req(schemas.ActionGetURL, nil))
	assert.Equal(t, 1, f.tl.count("exec:xdotool search"), "the sentinel is cached too")
}

func TestErrorNotificationCarriesCachedURL(t *testing.T) {
	f := newFixture(t, nil)
	f.runner.respond = helperResponder("https://cached.test/", nil)
	require.True(t, f.adapter.ExecuteAction(context.Background(), req(schemas.ActionGetURL, nil)).Succeeded())

	r := req(schemas.ActionKeyPress, nil)
	r.Directive.Key = "no such key!"
	resp := f.adapter.ExecuteAction(context.Background(), r)
	require.Equal(t, schemas.StatusError, resp.Status)

	errs := f.rec.OfKind(schemas.NotifyActionError)
	require.Len(t, errs, 1)
	assert.Equal(t, "https://cached.test/", errs[0].Payload.(schemas.ActionErrorPayload).URL)
}

func TestCaptureState(t *testing.T) {
	f := newFixture(t, nil)
	f.runner.respond = helperResponder("https://state.test/", nil)

	state, err := f.adapter.CaptureState(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "https://state.test/", state.URL)
	assert.True(t, strings.HasPrefix(state.Screenshot, backend.PNGDataURIPrefix))
}

func TestSettle_DefaultsToFallbackRace(t *testing.T) {
	a := New(&fakeRunner{tl: &timeline{}}, nil, testConfig(), zaptest.NewLogger(t), &notify.Recorder{})

	assert.Equal(t, stability.RaceMonitor{Fallback: time.Second}, a.monitor(time.Second))
}
