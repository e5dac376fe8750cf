// Package journal appends fired watcher events to a JSON Lines file so other
// processes can consume them, and follows that file for the CLI.
package journal

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/hpcloud/tail"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/omenav/internal/statewatch"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Journal appends events to one file.
type Journal struct {
	path   string
	logger *zap.Logger
	mu     sync.Mutex
}

// New returns a journal writing to path. The file and its directory are
// created on first append.
func New(path string, logger *zap.Logger) *Journal {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Journal{path: path, logger: logger.Named("journal")}
}

// Path returns the journal file.
func (j *Journal) Path() string { return j.path }

// Append writes ev as one line.
func (j *Journal) Append(ev statewatch.Event) error {
	line, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encoding event: %w", err)
	}
	line = append(line, '\n')

	j.mu.Lock()
	defer j.mu.Unlock()
	if err := os.MkdirAll(filepath.Dir(j.path), 0o755); err != nil {
		return fmt.Errorf("creating journal directory: %w", err)
	}
	f, err := os.OpenFile(j.path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("opening journal: %w", err)
	}
	if _, err := f.Write(line); err != nil {
		f.Close()
		return fmt.Errorf("appending to journal: %w", err)
	}
	return f.Close()
}

// HandleEvent implements statewatch.Handler.
func (j *Journal) HandleEvent(_ context.Context, ev statewatch.Event) error {
	if err := j.Append(ev); err != nil {
		return err
	}
	j.logger.Debug("Event journaled.", zap.String("event_id", ev.ID.String()))
	return nil
}

// ReadAll returns every decodable event in path. A missing file is empty.
func ReadAll(path string) ([]statewatch.Event, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("opening journal: %w", err)
	}
	defer f.Close()

	var out []statewatch.Event
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		ev, ok := decode(scanner.Bytes())
		if ok {
			out = append(out, ev)
		}
	}
	if err := scanner.Err(); err != nil {
		return out, fmt.Errorf("reading journal: %w", err)
	}
	return out, nil
}

func decode(line []byte) (statewatch.Event, bool) {
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return statewatch.Event{}, false
	}
	var ev statewatch.Event
	if err := json.Unmarshal(line, &ev); err != nil {
		return statewatch.Event{}, false
	}
	return ev, true
}

// Follow calls fn for every event appended to path until ctx is done or fn
// returns an error. With fromStart the existing content is replayed first.
func Follow(ctx context.Context, path string, fromStart bool, logger *zap.Logger, fn func(statewatch.Event) error) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("journal-follow")

	whence := io.SeekEnd
	if fromStart {
		whence = io.SeekStart
	}
	t, err := tail.TailFile(path, tail.Config{
		Follow:    true,
		ReOpen:    true,
		MustExist: false,
		Location:  &tail.SeekInfo{Offset: 0, Whence: whence},
		Logger:    tail.DiscardingLogger,
	})
	if err != nil {
		return fmt.Errorf("following journal: %w", err)
	}
	defer func() {
		_ = t.Stop()
		t.Cleanup()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-t.Lines:
			if !ok {
				return t.Err()
			}
			if line.Err != nil {
				logger.Warn("Error reading journal.", zap.Error(line.Err))
				continue
			}
			ev, ok := decode([]byte(line.Text))
			if !ok {
				logger.Debug("Skipping undecodable journal line.")
				continue
			}
			if err := fn(ev); err != nil {
				return err
			}
		}
	}
}
