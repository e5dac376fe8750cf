package statewatch

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/xkilldash9x/omenav/internal/fsutil"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Status values used in the active-target file.
const (
	statusRunning = "running"
	statusQuit    = "quit"
)

// activeTargetDoc is the active-target file. raw keeps every field so a
// status write-back preserves what other writers put there.
type activeTargetDoc struct {
	AppID  string
	Status string
	raw    map[string]any
}

func parseActiveTarget(data []byte) (activeTargetDoc, error) {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return activeTargetDoc{}, fmt.Errorf("parsing active target: %w", err)
	}
	if raw == nil {
		return activeTargetDoc{}, errors.New("parsing active target: not an object")
	}
	doc := activeTargetDoc{raw: raw}
	doc.AppID, _ = raw["active_bundle_id"].(string)
	if doc.AppID == "" {
		return activeTargetDoc{}, errors.New("parsing active target: active_bundle_id missing or not a string")
	}
	doc.Status, _ = raw["status"].(string)
	return doc, nil
}

// withStatus returns the document re-encoded with a new status and timestamp.
func (d activeTargetDoc) withStatus(status string, at time.Time) ([]byte, error) {
	out := make(map[string]any, len(d.raw)+2)
	for k, v := range d.raw {
		out[k] = v
	}
	out["status"] = status
	out["last_updated"] = at.UTC().Format(time.RFC3339)
	b, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(b, '\n'), nil
}

type windowDoc struct {
	ActiveTarget *struct {
		WindowRef   *string `json:"window_ref"`
		WindowTitle string  `json:"window_title"`
	} `json:"active_target"`
}

// parseWindowState decodes the first JSON object in data, so both a single
// pretty-printed object and a one-line JSONL record are accepted. A document
// without active_target.window_ref carries no usable state.
func parseWindowState(data []byte) (ref, title string, err error) {
	var doc windowDoc
	dec := json.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&doc); err != nil {
		return "", "", fmt.Errorf("parsing window state: %w", err)
	}
	if doc.ActiveTarget == nil || doc.ActiveTarget.WindowRef == nil {
		return "", "", errors.New("parsing window state: active_target.window_ref missing")
	}
	return *doc.ActiveTarget.WindowRef, doc.ActiveTarget.WindowTitle, nil
}

// fingerprint identifies a file version for the poll fallback.
type fingerprint struct {
	modTime time.Time
	size    int64
	exists  bool
}

func stat(path string) fingerprint {
	fi, err := os.Stat(path)
	if err != nil {
		return fingerprint{}
	}
	return fingerprint{modTime: fi.ModTime(), size: fi.Size(), exists: true}
}

func writeBack(path string, data []byte) error {
	return fsutil.WriteFileAtomic(path, data, 0o644)
}
