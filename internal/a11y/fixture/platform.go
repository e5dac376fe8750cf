package fixture

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	json "github.com/json-iterator/go"
	"gopkg.in/yaml.v3"

	"github.com/xkilldash9x/omenav/internal/a11y"
	"github.com/xkilldash9x/omenav/internal/humanoid"
)

// App describes one fixture application.
type App struct {
	Running bool  `json:"running" yaml:"running"`
	PID     int   `json:"pid,omitempty" yaml:"pid,omitempty"`
	Root    *Node `json:"root" yaml:"root"`
	// AcquireFailures makes the next N Acquire calls fail.
	AcquireFailures int `json:"acquire_failures,omitempty" yaml:"acquire_failures,omitempty"`
}

// File is the on-disk fixture layout.
type File struct {
	Apps map[string]*App `json:"apps" yaml:"apps"`
}

// Platform implements a11y.Platform over fixture trees.
type Platform struct {
	mu       sync.Mutex
	apps     map[string]*App
	acquires map[string]int
	events   []humanoid.MouseEventData
	sleeps   []time.Duration
	// RealSleep makes Sleep actually wait.
	RealSleep bool
}

var _ a11y.Platform = (*Platform)(nil)

// New returns an empty platform.
func New() *Platform {
	return &Platform{apps: make(map[string]*App), acquires: make(map[string]int)}
}

// LoadFile reads a fixture from a .json, .yaml or .yml file.
func LoadFile(path string) (*Platform, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading fixture: %w", err)
	}
	var f File
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &f)
	default:
		err = json.Unmarshal(data, &f)
	}
	if err != nil {
		return nil, fmt.Errorf("parsing fixture %s: %w", path, err)
	}
	p := New()
	for id, app := range f.Apps {
		if app.Root == nil {
			return nil, fmt.Errorf("fixture app %s has no root", id)
		}
		p.AddApp(id, app)
	}
	return p, nil
}

// AddApp registers or replaces an application.
func (p *Platform) AddApp(appID string, app *App) {
	p.mu.Lock()
	p.apps[appID] = app
	p.mu.Unlock()
}

// SetRunning flips an application's running flag.
func (p *Platform) SetRunning(appID string, running bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if app, ok := p.apps[appID]; ok {
		app.Running = running
	}
}

// SetAcquireFailures makes the next n Acquire calls for appID fail.
func (p *Platform) SetAcquireFailures(appID string, n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if app, ok := p.apps[appID]; ok {
		app.AcquireFailures = n
	}
}

// IsRunning implements a11y.Platform.
func (p *Platform) IsRunning(_ context.Context, appID string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	app, ok := p.apps[appID]
	return ok && app.Running, nil
}

// Acquire implements a11y.Platform.
func (p *Platform) Acquire(_ context.Context, appID string) (*a11y.Handle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.acquires[appID]++
	app, ok := p.apps[appID]
	if !ok || !app.Running {
		return nil, fmt.Errorf("acquire %s: %w", appID, a11y.ErrAppNotRunning)
	}
	if app.AcquireFailures > 0 {
		app.AcquireFailures--
		return nil, errors.New("fixture: application not yet responding")
	}
	return &a11y.Handle{AppID: appID, PID: app.PID, Root: app.Root, AcquiredAt: time.Now()}, nil
}

// Acquires returns how many times Acquire was called for appID.
func (p *Platform) Acquires(appID string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.acquires[appID]
}

// Sleep implements humanoid.Executor.
func (p *Platform) Sleep(ctx context.Context, d time.Duration) error {
	p.mu.Lock()
	p.sleeps = append(p.sleeps, d)
	wait := p.RealSleep
	p.mu.Unlock()
	if !wait {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// DispatchMouseEvent implements humanoid.Executor by recording the event.
func (p *Platform) DispatchMouseEvent(_ context.Context, data humanoid.MouseEventData) error {
	p.mu.Lock()
	p.events = append(p.events, data)
	p.mu.Unlock()
	return nil
}

// MouseEvents returns a copy of every dispatched mouse event.
func (p *Platform) MouseEvents() []humanoid.MouseEventData {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]humanoid.MouseEventData, len(p.events))
	copy(out, p.events)
	return out
}
