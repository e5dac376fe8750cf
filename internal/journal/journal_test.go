package journal

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/omenav/internal/navstore"
	"github.com/xkilldash9x/omenav/internal/statewatch"
)

func event(title string) statewatch.Event {
	return statewatch.Event{
		ID:          uuid.New(),
		Kind:        statewatch.EventExtract,
		Reason:      "window title changed",
		AppID:       "com.apple.mail",
		WindowRef:   "Mail.messageViewer",
		WindowTitle: title,
		Context:     navstore.Context{AppID: "com.apple.mail", WindowClass: "Mail.messageViewer"},
		At:          time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC),
	}
}

func TestAppendAndReadAll(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "events.jsonl")
	j := New(path, zaptest.NewLogger(t))

	first, second := event("Inbox"), event("Invoice 42")
	require.NoError(t, j.HandleEvent(context.Background(), first))
	require.NoError(t, j.Append(second))

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString("garbage\n\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	got, err := ReadAll(path)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, first.ID, got[0].ID)
	assert.Equal(t, "Invoice 42", got[1].WindowTitle)
	assert.Equal(t, first.Context, got[0].Context)
	assert.True(t, first.At.Equal(got[0].At))
}

func TestReadAllMissing(t *testing.T) {
	got, err := ReadAll(filepath.Join(t.TempDir(), "none.jsonl"))
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestAppendFailure(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0o644))

	j := New(filepath.Join(blocker, "events.jsonl"), nil)
	assert.Error(t, j.HandleEvent(context.Background(), event("x")))
}

func TestFollow(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.jsonl")
	j := New(path, nil)
	require.NoError(t, j.Append(event("before")))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	var titles []string
	done := make(chan error, 1)
	go func() {
		done <- Follow(ctx, path, true, zaptest.NewLogger(t), func(ev statewatch.Event) error {
			mu.Lock()
			defer mu.Unlock()
			titles = append(titles, ev.WindowTitle)
			if len(titles) == 2 {
				return errStop
			}
			return nil
		})
	}()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(titles) == 1
	}, 3*time.Second, 10*time.Millisecond)
	require.NoError(t, j.Append(event("after")))

	select {
	case err := <-done:
		assert.ErrorIs(t, err, errStop)
	case <-time.After(5 * time.Second):
		t.Fatal("follow did not deliver the appended event")
	}
	assert.Equal(t, []string{"before", "after"}, titles)
}

var errStop = errors.New("stop")
