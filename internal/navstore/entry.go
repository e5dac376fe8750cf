package navstore

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/xkilldash9x/omenav/internal/a11y"
)

// PathSeparator joins path steps in logs and in joined-path lookups.
const PathSeparator = " > "

// Extra keys written by the crawler.
const (
	ExtraLogicalID  = "logical_id"
	ExtraRowIndex   = "row_index"
	ExtraIdentifier = "identifier"
	ExtraShortcut   = "shortcut"
	ExtraEnabled    = "enabled"
	ExtraSelected   = "selected"
	ExtraParentDesc = "parent_description"
)

// Entry is one navigation map record: a logical path to an element plus the
// center of its last known bounding box.
type Entry struct {
	Path        []string       `json:"path"`
	Role        string         `json:"role,omitempty"`
	Title       string         `json:"title,omitempty"`
	Description string         `json:"description,omitempty"`
	ClickPoint  *a11y.Point    `json:"click_point,omitempty"`
	Extra       map[string]any `json:"extra,omitempty"`
	CapturedAt  time.Time      `json:"captured_at"`
}

// JoinedPath renders the path as "A > B > C".
func (e Entry) JoinedPath() string {
	return strings.Join(e.Path, PathSeparator)
}

// LogicalID returns extra.logical_id, or "".
func (e Entry) LogicalID() string {
	if e.Extra == nil {
		return ""
	}
	s, _ := e.Extra[ExtraLogicalID].(string)
	return s
}

// Label is the title, falling back to the description.
func (e Entry) Label() string {
	if e.Title != "" {
		return e.Title
	}
	return e.Description
}

// pathKey is an unambiguous key for duplicate detection.
func (e Entry) pathKey() string {
	return strings.Join(e.Path, "\x00")
}

// Context scopes one navigation map: an application and a window class.
type Context struct {
	AppID       string `json:"app_id"`
	WindowClass string `json:"window_class"`
}

func (c Context) String() string {
	return c.AppID + "/" + c.WindowClass
}

const (
	filePrefix = "appNav_"
	fileSuffix = ".jsonl"
)

// escapeName keeps file names portable and reversible. Bytes outside
// [A-Za-z0-9.-] become %XX, so '_' never appears and the first underscore
// after the prefix separates the app id from the window class.
func escapeName(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '.', c == '-':
			b.WriteByte(c)
		default:
			fmt.Fprintf(&b, "%%%02X", c)
		}
	}
	return b.String()
}

// FileName returns appNav_<app>_<window_class>.jsonl with both parts escaped.
// Distinct contexts always get distinct names.
func (c Context) FileName() string {
	return fmt.Sprintf("%s%s_%s%s", filePrefix, escapeName(c.AppID), escapeName(c.WindowClass), fileSuffix)
}

// parseFileName reverses FileName.
func parseFileName(name string) (Context, bool) {
	if !strings.HasPrefix(name, filePrefix) || !strings.HasSuffix(name, fileSuffix) {
		return Context{}, false
	}
	core := strings.TrimSuffix(strings.TrimPrefix(name, filePrefix), fileSuffix)
	app, window, ok := strings.Cut(core, "_")
	if !ok {
		return Context{}, false
	}
	var err error
	if app, err = url.PathUnescape(app); err != nil {
		return Context{}, false
	}
	if window, err = url.PathUnescape(window); err != nil {
		return Context{}, false
	}
	return Context{AppID: app, WindowClass: window}, true
}
