package statewatch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/omenav/internal/a11y"
	"github.com/xkilldash9x/omenav/internal/a11y/fixture"
	"github.com/xkilldash9x/omenav/internal/config"
	"github.com/xkilldash9x/omenav/internal/fsutil"
	"github.com/xkilldash9x/omenav/internal/navstore"
)

const (
	mailID  = "com.apple.mail"
	notesID = "com.apple.Notes"
	viewer  = "Mail.messageViewer"
)

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) HandleEvent(_ context.Context, ev Event) error {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
	return nil
}

func (r *recorder) kinds() []EventKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]EventKind, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Kind
	}
	return out
}

func (r *recorder) count(kind EventKind) int {
	n := 0
	for _, k := range r.kinds() {
		if k == kind {
			n++
		}
	}
	return n
}

func (r *recorder) last() Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.events[len(r.events)-1]
}

type env struct {
	t        *testing.T
	dir      string
	platform *fixture.Platform
	watcher  *Watcher
	rec      *recorder
	paths    config.PathsConfig
}

func newEnv(t *testing.T) *env {
	t.Helper()
	dir := t.TempDir()
	p := fixture.New()
	p.AddApp(mailID, &App{Running: true, PID: 88, Root: &fixture.Node{Role: "AXApplication", Title: "Mail"}})
	p.AddApp(notesID, &App{Running: true, PID: 99, Root: &fixture.Node{Role: "AXApplication", Title: "Notes"}})

	paths := config.PathsConfig{StateDir: dir}
	cfg := config.WatcherConfig{
		TargetAppID:     mailID,
		WindowRefPrefix: viewer,
		PollInterval:    200 * time.Millisecond,
		HandleRetries:   3,
		HandleBackoff:   time.Millisecond,
		WriteBackStatus: true,
	}
	w := New(cfg, paths, p, a11y.NewRegistry(zaptest.NewLogger(t)), zaptest.NewLogger(t))
	w.now = func() time.Time { return time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC) }
	rec := &recorder{}
	w.Subscribe(rec)
	return &env{t: t, dir: dir, platform: p, watcher: w, rec: rec, paths: paths}
}

// App aliases the fixture type to keep tables short.
type App = fixture.App

func (e *env) declare(appID, status string) {
	e.t.Helper()
	body := fmt.Sprintf(`{"active_bundle_id": %q, "status": %q, "writer": "winD"}`, appID, status)
	require.NoError(e.t, fsutil.WriteFileAtomic(e.paths.ActiveTargetFile(), []byte(body), 0o644))
}

func (e *env) window(appID, ref, title string) {
	e.t.Helper()
	body := fmt.Sprintf(`{"active_target": {"type": "window", "window_ref": %q, "window_title": %q}, "windows": []}`, ref, title)
	require.NoError(e.t, fsutil.WriteFileAtomic(e.paths.WindowStateFile(appID), []byte(body), 0o644))
}

func (e *env) readActive() map[string]any {
	e.t.Helper()
	data, err := os.ReadFile(e.paths.ActiveTargetFile())
	require.NoError(e.t, err)
	doc, err := parseActiveTarget(data)
	require.NoError(e.t, err)
	return doc.raw
}

func TestActiveTargetTransitions(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	e.declare(mailID, "running")
	e.watcher.evaluateActiveTarget(ctx, true)

	s := e.watcher.Snapshot()
	assert.Equal(t, PhaseRunning, s.Phase)
	assert.True(t, s.AppRunning)
	require.NotNil(t, s.Handle)
	assert.Equal(t, 88, s.Handle.PID)
	h, err := e.watcher.Handle()
	require.NoError(t, err)
	assert.Same(t, s.Handle, h)

	e.platform.SetRunning(mailID, false)
	e.declare(mailID, "quit")
	e.watcher.evaluateActiveTarget(ctx, false)

	s = e.watcher.Snapshot()
	assert.Equal(t, PhaseStopped, s.Phase)
	assert.Nil(t, s.Handle)
	_, err = e.watcher.Handle()
	assert.ErrorIs(t, err, ErrNoHandle)

	e.platform.SetRunning(mailID, true)
	e.declare(mailID, "running")
	e.watcher.evaluateActiveTarget(ctx, false)
	assert.Equal(t, PhaseRunning, e.watcher.Snapshot().Phase)
	assert.Equal(t, 2, e.platform.Acquires(mailID), "a relaunch acquires a fresh handle")

	assert.Equal(t, []EventKind{EventAppRunning, EventAppStopped, EventAppRunning}, e.rec.kinds())
}

func TestUnchangedRunningTargetKeepsHandle(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.declare(mailID, "running")
	e.watcher.evaluateActiveTarget(ctx, false)
	e.watcher.evaluateActiveTarget(ctx, false)
	assert.Equal(t, 1, e.platform.Acquires(mailID))

	e.watcher.evaluateActiveTarget(ctx, true)
	assert.Equal(t, 2, e.platform.Acquires(mailID), "force re-acquires")
}

func TestTriggerFiresOncePerTransition(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.declare(mailID, "running")
	e.watcher.evaluateActiveTarget(ctx, true)

	e.window(mailID, viewer, "Lunch on Friday")
	e.watcher.evaluateWindow(ctx)
	assert.Equal(t, 1, e.rec.count(EventExtract))

	ev := e.rec.last()
	assert.Equal(t, EventExtract, ev.Kind)
	assert.Equal(t, navstore.Context{AppID: mailID, WindowClass: viewer}, ev.Context)
	assert.Equal(t, "Lunch on Friday", ev.WindowTitle)
	assert.NotEqual(t, uuid.Nil, ev.ID)

	for i := 0; i < 3; i++ {
		e.window(mailID, viewer, "Lunch on Friday")
		e.watcher.evaluateWindow(ctx)
	}
	assert.Equal(t, 1, e.rec.count(EventExtract), "identical writes do not fire again")

	e.window(mailID, viewer, "Invoice 42")
	e.watcher.evaluateWindow(ctx)
	assert.Equal(t, 2, e.rec.count(EventExtract))

	e.window(mailID, viewer+".2", "Invoice 42")
	e.watcher.evaluateWindow(ctx)
	assert.Equal(t, 3, e.rec.count(EventExtract), "a different matched window fires")

	e.window(mailID, "Mail.compose", "New Message")
	e.watcher.evaluateWindow(ctx)
	assert.Equal(t, 3, e.rec.count(EventExtract))
	assert.False(t, e.watcher.triggerSnapshot().extracted)
	assert.Equal(t, "Mail.compose", e.watcher.Snapshot().ActiveWindowRef)

	e.window(mailID, viewer+".2", "Invoice 42")
	e.watcher.evaluateWindow(ctx)
	assert.Equal(t, 4, e.rec.count(EventExtract), "returning to the watched window fires")
}

func TestWindowIgnoredUnlessRunning(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.platform.SetRunning(mailID, false)
	e.declare(mailID, "quit")
	e.watcher.evaluateActiveTarget(ctx, true)

	e.window(mailID, viewer, "Inbox")
	e.watcher.evaluateWindow(ctx)
	assert.Zero(t, e.rec.count(EventExtract))
	assert.Empty(t, e.watcher.Snapshot().ActiveWindowRef)
}

func TestAppChangeResetsTrigger(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.declare(mailID, "running")
	e.watcher.evaluateActiveTarget(ctx, true)
	e.window(mailID, viewer, "Inbox")
	e.watcher.evaluateWindow(ctx)
	require.Equal(t, 1, e.rec.count(EventExtract))

	e.declare(notesID, "running")
	e.watcher.evaluateActiveTarget(ctx, false)
	s := e.watcher.Snapshot()
	assert.Equal(t, notesID, s.ActiveAppID)
	assert.Equal(t, PhaseIdle, s.Phase, "a non-target app is idle")
	assert.Nil(t, s.Handle)
	assert.Empty(t, s.ActiveWindowRef, "state is replaced, not patched")
	assert.Equal(t, trigger{}, e.watcher.triggerSnapshot())
	assert.Equal(t, 1, e.rec.count(EventAppChanged))

	// Back to Mail: a fresh handle and, since the window file still shows the
	// viewer, a new extraction.
	e.declare(mailID, "running")
	e.watcher.evaluateActiveTarget(ctx, false)
	assert.Equal(t, PhaseRunning, e.watcher.Snapshot().Phase)
	assert.Equal(t, 2, e.rec.count(EventExtract))
	assert.Equal(t, 2, e.rec.count(EventAppChanged))
}

func TestFollowAnyAppWhenTargetUnset(t *testing.T) {
	e := newEnv(t)
	e.watcher.cfg.TargetAppID = ""
	e.declare(notesID, "running")
	e.watcher.evaluateActiveTarget(context.Background(), true)
	s := e.watcher.Snapshot()
	assert.Equal(t, PhaseRunning, s.Phase)
	assert.Equal(t, 99, s.Handle.PID)
}

func TestAcquireFailsClosed(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.platform.SetAcquireFailures(mailID, 3)

	e.declare(mailID, "running")
	e.watcher.evaluateActiveTarget(ctx, true)

	s := e.watcher.Snapshot()
	assert.Equal(t, PhaseStopped, s.Phase)
	assert.True(t, s.AppRunning)
	assert.Nil(t, s.Handle)
	assert.Equal(t, 3, e.platform.Acquires(mailID), "retries are bounded")
	_, err := e.watcher.Handle()
	assert.ErrorIs(t, err, ErrNoHandle)

	e.watcher.evaluateActiveTarget(ctx, false)
	assert.Equal(t, PhaseRunning, e.watcher.Snapshot().Phase)
}

func TestAcquireRetriesUntilSuccess(t *testing.T) {
	e := newEnv(t)
	e.platform.SetAcquireFailures(mailID, 2)
	e.declare(mailID, "running")
	e.watcher.evaluateActiveTarget(context.Background(), true)
	assert.Equal(t, PhaseRunning, e.watcher.Snapshot().Phase)
	assert.Equal(t, 3, e.platform.Acquires(mailID))
}

func TestMalformedStateIsIgnored(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.declare(mailID, "running")
	e.watcher.evaluateActiveTarget(ctx, true)
	e.window(mailID, viewer, "Inbox")
	e.watcher.evaluateWindow(ctx)
	before := e.watcher.Snapshot()
	trig := e.watcher.triggerSnapshot()

	require.NoError(t, os.WriteFile(e.paths.ActiveTargetFile(), []byte("{not json"), 0o644))
	e.watcher.evaluateActiveTarget(ctx, false)
	require.NoError(t, os.WriteFile(e.paths.WindowStateFile(mailID), []byte("[1,2"), 0o644))
	e.watcher.evaluateWindow(ctx)

	assert.Equal(t, before, e.watcher.Snapshot())
	assert.Equal(t, trig, e.watcher.triggerSnapshot())
	assert.Equal(t, 1, e.rec.count(EventExtract))
}

func TestIncompleteStateIsIgnored(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.declare(mailID, "running")
	e.watcher.evaluateActiveTarget(ctx, true)
	e.window(mailID, viewer, "Inbox")
	e.watcher.evaluateWindow(ctx)
	before := e.watcher.Snapshot()
	require.NotNil(t, before.Handle)

	for _, body := range []string{`{"status":"running"}`, `{"active_bundle_id": 7, "status":"running"}`} {
		require.NoError(t, os.WriteFile(e.paths.ActiveTargetFile(), []byte(body), 0o644))
		e.watcher.evaluateActiveTarget(ctx, false)
		assert.Equal(t, before, e.watcher.Snapshot(), body)
	}
	assert.Zero(t, e.rec.count(EventAppChanged))

	require.NoError(t, os.WriteFile(e.paths.WindowStateFile(mailID), []byte(`{"windows":[]}`), 0o644))
	e.watcher.evaluateWindow(ctx)
	assert.Equal(t, before, e.watcher.Snapshot())
	assert.True(t, e.watcher.triggerSnapshot().extracted)

	e.window(mailID, viewer, "Inbox")
	e.watcher.evaluateWindow(ctx)
	assert.Equal(t, 1, e.rec.count(EventExtract), "the unchanged window does not fire again")
}

// TestMailScenario walks a full session. Acquiring the handle evaluates the
// window file at once, so after a relaunch the extraction fires on
// acquisition and the following same-title write is a repeat.
func TestMailScenario(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	e.declare(mailID, "running")
	e.watcher.evaluateActiveTarget(ctx, true)
	e.window(mailID, viewer+".1", "Inbox")
	e.watcher.evaluateWindow(ctx)
	assert.Equal(t, 1, e.rec.count(EventExtract))

	e.window(mailID, viewer+".1", "Inbox")
	e.watcher.evaluateWindow(ctx)
	assert.Equal(t, 1, e.rec.count(EventExtract))

	e.window(mailID, viewer+".1", "Sent")
	e.watcher.evaluateWindow(ctx)
	assert.Equal(t, 2, e.rec.count(EventExtract))

	e.platform.SetRunning(mailID, false)
	e.declare(mailID, "quit")
	e.watcher.evaluateActiveTarget(ctx, false)
	assert.Nil(t, e.watcher.Snapshot().Handle)
	assert.Equal(t, trigger{}, e.watcher.triggerSnapshot())

	e.platform.SetRunning(mailID, true)
	e.declare(mailID, "running")
	e.watcher.evaluateActiveTarget(ctx, false)
	require.NotNil(t, e.watcher.Snapshot().Handle)
	assert.Equal(t, 3, e.rec.count(EventExtract), "the relaunch extracts the open window")

	e.window(mailID, viewer+".1", "Sent")
	e.watcher.evaluateWindow(ctx)
	assert.Equal(t, 3, e.rec.count(EventExtract))

	e.window(mailID, viewer+".1", "Inbox")
	e.watcher.evaluateWindow(ctx)
	assert.Equal(t, 4, e.rec.count(EventExtract))
	assert.Equal(t, 2, e.platform.Acquires(mailID))
}

func TestStatusWriteBack(t *testing.T) {
	t.Run("declared status is corrected", func(t *testing.T) {
		e := newEnv(t)
		e.declare(mailID, "quit")
		e.watcher.evaluateActiveTarget(context.Background(), true)

		doc := e.readActive()
		assert.Equal(t, "running", doc["status"])
		assert.Equal(t, "2026-06-01T08:00:00Z", doc["last_updated"])
		assert.Equal(t, "winD", doc["writer"], "unrelated fields are preserved")
		assert.Equal(t, mailID, doc["active_bundle_id"])
	})

	t.Run("matching status is left alone", func(t *testing.T) {
		e := newEnv(t)
		e.declare(mailID, "running")
		e.watcher.evaluateActiveTarget(context.Background(), true)
		_, touched := e.readActive()["last_updated"]
		assert.False(t, touched)
	})

	t.Run("disabled", func(t *testing.T) {
		e := newEnv(t)
		e.watcher.cfg.WriteBackStatus = false
		e.declare(mailID, "quit")
		e.watcher.evaluateActiveTarget(context.Background(), true)
		assert.Equal(t, "quit", e.readActive()["status"])
	})

	t.Run("other apps are never written", func(t *testing.T) {
		e := newEnv(t)
		e.declare(notesID, "quit")
		e.watcher.evaluateActiveTarget(context.Background(), true)
		assert.Equal(t, "quit", e.readActive()["status"])
	})
}

func TestHandlerFailuresDoNotStopDelivery(t *testing.T) {
	e := newEnv(t)
	w := e.watcher
	w.handlers = nil
	w.Subscribe(HandlerFunc(func(context.Context, Event) error { return errors.New("refresh failed") }))
	w.Subscribe(HandlerFunc(func(context.Context, Event) error { panic("boom") }))
	w.Subscribe(e.rec)

	e.declare(mailID, "running")
	assert.NotPanics(t, func() { w.evaluateActiveTarget(context.Background(), true) })
	assert.Equal(t, []EventKind{EventAppRunning}, e.rec.kinds())
}

func TestPollInterval(t *testing.T) {
	assert.Equal(t, 200*time.Millisecond, pollInterval(0))
	assert.Equal(t, 500*time.Millisecond, pollInterval(500*time.Millisecond))
	assert.Equal(t, time.Second, pollInterval(time.Minute))
}

func TestRunFollowsFiles(t *testing.T) {
	e := newEnv(t)
	registry := a11y.NewRegistry(zaptest.NewLogger(t))
	e.watcher.registry = registry

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.watcher.Run(ctx) }()

	require.Eventually(t, func() bool { return registry.Len() == 1 }, 2*time.Second, 10*time.Millisecond)

	e.declare(mailID, "running")
	require.Eventually(t, func() bool { return e.watcher.Snapshot().Phase == PhaseRunning }, 3*time.Second, 10*time.Millisecond)

	e.window(mailID, viewer, "Inbox")
	require.Eventually(t, func() bool { return e.rec.count(EventExtract) == 1 }, 3*time.Second, 10*time.Millisecond)

	e.platform.SetRunning(mailID, false)
	e.declare(mailID, "quit")
	require.Eventually(t, func() bool { return e.watcher.Snapshot().Phase == PhaseStopped }, 3*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("watcher did not stop")
	}
	assert.NoError(t, registry.Close())
	assert.Equal(t, 1, e.rec.count(EventExtract))
}

func TestRunCreatesStateDir(t *testing.T) {
	e := newEnv(t)
	e.watcher.paths.StateDir = filepath.Join(e.dir, "not", "yet")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, e.watcher.Run(ctx))
	_, err := os.Stat(e.watcher.paths.StateDir)
	assert.NoError(t, err)
}
