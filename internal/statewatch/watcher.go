// Package statewatch follows the files written by the external window-state
// writers, keeps the current target application's state, and emits an
// extraction event once per transition of the watched window.
package statewatch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/omenav/internal/a11y"
	"github.com/xkilldash9x/omenav/internal/config"
	"github.com/xkilldash9x/omenav/internal/navstore"
)

const (
	minPollInterval = 200 * time.Millisecond
	maxPollInterval = time.Second
)

// Watcher owns TargetState and the trigger record. Only the goroutine running
// Run mutates them; everything else reads snapshots.
type Watcher struct {
	cfg      config.WatcherConfig
	paths    config.PathsConfig
	platform a11y.Platform
	registry *a11y.Registry
	logger   *zap.Logger

	mu    sync.RWMutex
	state TargetState
	trig  trigger

	hmu      sync.RWMutex
	handlers []Handler

	// Owned by the Run goroutine.
	seen map[string]fingerprint

	now            func() time.Time
	backoffFactory func() backoff.BackOff
}

// New builds a watcher. registry receives the file subscription created by Run
// and may be nil.
func New(cfg config.WatcherConfig, paths config.PathsConfig, platform a11y.Platform, registry *a11y.Registry, logger *zap.Logger) *Watcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	w := &Watcher{
		cfg:      cfg,
		paths:    paths,
		platform: platform,
		registry: registry,
		logger:   logger.Named("statewatch"),
		state:    TargetState{Phase: PhaseIdle},
		seen:     make(map[string]fingerprint),
		now:      time.Now,
	}
	w.backoffFactory = func() backoff.BackOff {
		retries := w.cfg.HandleRetries - 1
		if retries < 0 {
			retries = 0
		}
		return backoff.WithMaxRetries(backoff.NewConstantBackOff(w.cfg.HandleBackoff), uint64(retries))
	}
	return w
}

// Subscribe registers h for every future event.
func (w *Watcher) Subscribe(h Handler) {
	w.hmu.Lock()
	w.handlers = append(w.handlers, h)
	w.hmu.Unlock()
}

// Snapshot returns a copy of the current state.
func (w *Watcher) Snapshot() TargetState {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.state
}

// Handle returns the current application handle, or ErrNoHandle.
func (w *Watcher) Handle() (*a11y.Handle, error) {
	s := w.Snapshot()
	if !s.HasHandle() {
		return nil, ErrNoHandle
	}
	return s.Handle, nil
}

// CurrentContext returns the navigation context of the active window.
func (w *Watcher) CurrentContext() navstore.Context {
	s := w.Snapshot()
	return w.contextFor(s.ActiveAppID, s.ActiveWindowRef)
}

func (w *Watcher) contextFor(appID, windowRef string) navstore.Context {
	class := w.cfg.WindowRefPrefix
	if class == "" {
		class = windowRef
	}
	return navstore.Context{AppID: appID, WindowClass: class}
}

func (w *Watcher) activeTargetPath() string {
	return filepath.Clean(w.paths.ActiveTargetFile())
}

func (w *Watcher) windowStatePath(appID string) string {
	if w.cfg.WindowStateFile != "" {
		return filepath.Clean(w.cfg.WindowStateFile)
	}
	if appID == "" {
		return ""
	}
	return filepath.Clean(w.paths.WindowStateFile(appID))
}

func pollInterval(d time.Duration) time.Duration {
	switch {
	case d < minPollInterval:
		return minPollInterval
	case d > maxPollInterval:
		return maxPollInterval
	}
	return d
}

// Run evaluates both state files once, then follows them until ctx is done.
func (w *Watcher) Run(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating file watcher: %w", err)
	}
	defer fsw.Close()
	if w.registry != nil {
		if err := w.registry.Register("statewatch.fsnotify", fsw); err != nil {
			return fmt.Errorf("registering file watcher: %w", err)
		}
	}

	for _, dir := range w.watchDirs() {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating %s: %w", dir, err)
		}
		if err := fsw.Add(dir); err != nil {
			return fmt.Errorf("watching %s: %w", dir, err)
		}
		w.logger.Debug("Watching directory.", zap.String("dir", dir))
	}

	w.evaluateActiveTarget(ctx, true)
	w.evaluateWindow(ctx)

	ticker := time.NewTicker(pollInterval(w.cfg.PollInterval))
	defer ticker.Stop()

	w.logger.Info("State watcher started.",
		zap.String("active_target", w.activeTargetPath()),
		zap.String("target_app_id", w.cfg.TargetAppID))

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("State watcher stopping.")
			return nil
		case ev, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			w.handleFileEvent(ctx, ev)
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("File watcher error.", zap.Error(err))
		case <-ticker.C:
			w.poll(ctx)
		}
	}
}

func (w *Watcher) watchDirs() []string {
	dirs := []string{filepath.Dir(w.activeTargetPath())}
	if w.cfg.WindowStateFile != "" {
		d := filepath.Dir(filepath.Clean(w.cfg.WindowStateFile))
		if d != dirs[0] {
			dirs = append(dirs, d)
		}
	}
	return dirs
}

func (w *Watcher) handleFileEvent(ctx context.Context, ev fsnotify.Event) {
	if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
		return
	}
	name := filepath.Clean(ev.Name)
	switch name {
	case w.activeTargetPath():
		w.evaluateActiveTarget(ctx, false)
	case w.windowStatePath(w.Snapshot().ActiveAppID):
		w.evaluateWindow(ctx)
	}
}

// poll catches notifications the platform dropped by comparing fingerprints.
func (w *Watcher) poll(ctx context.Context) {
	if w.changed(w.activeTargetPath()) {
		w.logger.Debug("Active target changed without notification.")
		w.evaluateActiveTarget(ctx, false)
	}
	s := w.Snapshot()
	if s.Phase != PhaseRunning {
		return
	}
	if p := w.windowStatePath(s.ActiveAppID); p != "" && w.changed(p) {
		w.logger.Debug("Window state changed without notification.")
		w.evaluateWindow(ctx)
	}
}

func (w *Watcher) changed(path string) bool {
	fp := stat(path)
	return fp.exists && fp != w.seen[path]
}

// readFile reads path and remembers its fingerprint as evaluated.
func (w *Watcher) readFile(path string) ([]byte, error) {
	fp := stat(path)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	w.seen[path] = fp
	return data, nil
}

// evaluateActiveTarget re-derives the phase from the active-target file and
// the platform. force re-acquires the handle even if one is held.
func (w *Watcher) evaluateActiveTarget(ctx context.Context, force bool) {
	path := w.activeTargetPath()
	data, err := w.readFile(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			w.logger.Warn("Could not read active target, keeping state.", zap.String("path", path), zap.Error(err))
		}
		return
	}
	doc, err := parseActiveTarget(data)
	if err != nil {
		w.logger.Warn("Malformed active target, keeping state.", zap.String("path", path), zap.Error(err))
		return
	}

	prev := w.Snapshot()
	next := prev

	if doc.AppID != prev.ActiveAppID {
		if prev.ActiveAppID != "" {
			w.emit(ctx, Event{Kind: EventAppChanged, Reason: fmt.Sprintf("active app changed from %s", prev.ActiveAppID), AppID: doc.AppID})
		}
		// Pass through IDLE: nothing from the previous app carries over.
		next = TargetState{ActiveAppID: doc.AppID, Phase: PhaseIdle}
		w.resetTrigger()
		prev = next
	}

	isTarget := doc.AppID != "" && (w.cfg.TargetAppID == "" || doc.AppID == w.cfg.TargetAppID)
	if !isTarget {
		next.Phase, next.AppRunning, next.Handle = PhaseIdle, false, nil
		w.commit(next)
		return
	}

	running, err := w.platform.IsRunning(ctx, doc.AppID)
	if err != nil {
		w.logger.Warn("Platform running check failed, using declared status.", zap.String("app_id", doc.AppID), zap.Error(err))
		running = doc.Status == statusRunning
	}
	w.writeBackStatus(doc, running)

	if !running {
		next.Phase, next.AppRunning, next.Handle = PhaseStopped, false, nil
		w.commit(next)
		w.resetTrigger()
		if prev.Phase == PhaseRunning {
			w.emit(ctx, Event{Kind: EventAppStopped, Reason: "application quit", AppID: doc.AppID})
		}
		return
	}

	next.AppRunning = true
	if prev.Phase == PhaseRunning && prev.Handle != nil && !force {
		w.commit(next)
		return
	}

	handle, err := w.acquire(ctx, doc.AppID)
	if err != nil {
		w.logger.Warn("Could not acquire application handle.", zap.String("app_id", doc.AppID), zap.Error(err))
		next.Phase, next.Handle = PhaseStopped, nil
		w.commit(next)
		return
	}
	next.Phase, next.Handle = PhaseRunning, handle
	w.commit(next)
	w.resetTrigger()
	w.logger.Info("Application handle acquired.", zap.String("app_id", doc.AppID), zap.Int("pid", handle.PID))
	w.emit(ctx, Event{Kind: EventAppRunning, Reason: "application running", AppID: doc.AppID})

	// The window file may already show the watched window. Evaluating it now
	// means a relaunch extracts on acquisition rather than on the next write,
	// and that next write with the same title is a repeat.
	if !force {
		w.evaluateWindow(ctx)
	}
}

func (w *Watcher) acquire(ctx context.Context, appID string) (*a11y.Handle, error) {
	var handle *a11y.Handle
	attempt := 0
	op := func() error {
		attempt++
		h, err := w.platform.Acquire(ctx, appID)
		if err != nil {
			w.logger.Debug("Handle acquisition attempt failed.", zap.Int("attempt", attempt), zap.Error(err))
			return err
		}
		handle = h
		return nil
	}
	if err := backoff.Retry(op, backoff.WithContext(w.backoffFactory(), ctx)); err != nil {
		return nil, fmt.Errorf("after %d attempts: %w", attempt, err)
	}
	return handle, nil
}

func (w *Watcher) writeBackStatus(doc activeTargetDoc, running bool) {
	if !w.cfg.WriteBackStatus {
		return
	}
	derived := statusQuit
	if running {
		derived = statusRunning
	}
	if doc.Status == derived {
		return
	}
	data, err := doc.withStatus(derived, w.now())
	if err != nil {
		w.logger.Warn("Could not encode status write-back.", zap.Error(err))
		return
	}
	path := w.activeTargetPath()
	if err := writeBack(path, data); err != nil {
		w.logger.Warn("Status write-back failed.", zap.String("path", path), zap.Error(err))
		return
	}
	// Our own write must not look like an external change.
	w.seen[path] = stat(path)
	w.logger.Info("Corrected declared status.", zap.String("app_id", doc.AppID), zap.String("from", doc.Status), zap.String("to", derived))
}

// evaluateWindow applies the window-state file to the trigger record.
func (w *Watcher) evaluateWindow(ctx context.Context) {
	s := w.Snapshot()
	if s.Phase != PhaseRunning {
		return
	}
	path := w.windowStatePath(s.ActiveAppID)
	data, err := w.readFile(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			w.logger.Warn("Could not read window state, keeping state.", zap.String("path", path), zap.Error(err))
		}
		return
	}
	ref, title, err := parseWindowState(data)
	if err != nil {
		w.logger.Warn("Malformed window state, keeping state.", zap.String("path", path), zap.Error(err))
		return
	}

	var reason string
	w.mu.Lock()
	w.state.ActiveWindowRef = ref
	w.state.ActiveWindowTitle = title
	if strings.HasPrefix(ref, w.cfg.WindowRefPrefix) && ref != "" {
		switch {
		case !w.trig.extracted:
			reason = "watched window appeared"
		case ref != w.trig.lastRef:
			reason = "watched window changed"
		case title != w.trig.lastTitle:
			reason = "window title changed"
		}
		w.trig.extracted = true
	} else {
		w.trig.extracted = false
	}
	w.trig.lastRef = ref
	w.trig.lastTitle = title
	w.mu.Unlock()

	if reason == "" {
		return
	}
	w.emit(ctx, Event{Kind: EventExtract, Reason: reason, AppID: s.ActiveAppID, WindowRef: ref, WindowTitle: title})
}

func (w *Watcher) commit(next TargetState) {
	w.mu.Lock()
	w.state = next
	w.mu.Unlock()
}

func (w *Watcher) resetTrigger() {
	w.mu.Lock()
	w.trig = trigger{}
	w.mu.Unlock()
}

// triggerSnapshot is used by tests.
func (w *Watcher) triggerSnapshot() trigger {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.trig
}

func (w *Watcher) emit(ctx context.Context, ev Event) {
	ev.ID = uuid.New()
	ev.At = w.now().UTC()
	ev.Context = w.contextFor(ev.AppID, ev.WindowRef)

	w.logger.Info("Watcher event.",
		zap.String("kind", string(ev.Kind)),
		zap.String("reason", ev.Reason),
		zap.String("app_id", ev.AppID),
		zap.String("window_ref", ev.WindowRef),
		zap.String("event_id", ev.ID.String()))

	w.hmu.RLock()
	handlers := append([]Handler(nil), w.handlers...)
	w.hmu.RUnlock()

	for _, h := range handlers {
		w.dispatch(ctx, h, ev)
	}
}

func (w *Watcher) dispatch(ctx context.Context, h Handler, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("Event handler panicked.", zap.String("kind", string(ev.Kind)), zap.Any("panic_value", r))
		}
	}()
	if err := h.HandleEvent(ctx, ev); err != nil {
		w.logger.Warn("Event handler failed.", zap.String("kind", string(ev.Kind)), zap.Error(err))
	}
}
