// Package navstore persists navigation maps as JSON Lines, one file per
// application and window class.
package navstore

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/omenav/internal/fsutil"
)

// ErrInvalidEntry is returned by Save for entries with an empty or duplicate path.
var ErrInvalidEntry = errors.New("invalid navigation entry")

// maxLineSize bounds a single JSONL record.
const maxLineSize = 1 << 20

var errLineTooLong = errors.New("line exceeds maximum record size")

// readLine returns the next line without its terminator. A line longer than
// maxLineSize is consumed whole and reported as errLineTooLong.
func readLine(r *bufio.Reader) ([]byte, error) {
	var buf []byte
	tooLong := false
	for {
		frag, isPrefix, err := r.ReadLine()
		if err != nil {
			return nil, err
		}
		if !tooLong {
			if len(buf)+len(frag) > maxLineSize {
				tooLong, buf = true, nil
			} else {
				buf = append(buf, frag...)
			}
		}
		if !isPrefix {
			if tooLong {
				return nil, errLineTooLong
			}
			return buf, nil
		}
	}
}

var json = jsoniter.Config{
	EscapeHTML:             false,
	SortMapKeys:            true,
	ValidateJsonRawMessage: true,
}.Froze()

// Store reads and writes navigation maps under one directory.
type Store struct {
	dir    string
	logger *zap.Logger
	// mu serializes writers in this process. Other processes only ever
	// observe whole files because of the atomic rename.
	mu sync.Mutex
}

// New returns a store rooted at dir. The directory is created on first Save.
func New(dir string, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{dir: dir, logger: logger.Named("navstore")}
}

// Dir returns the store directory.
func (s *Store) Dir() string { return s.dir }

// Path returns the file backing c.
func (s *Store) Path(c Context) string {
	return filepath.Join(s.dir, c.FileName())
}

func parseLine(line []byte) (Entry, error) {
	var e Entry
	if err := json.Unmarshal(line, &e); err != nil {
		return Entry{}, err
	}
	if len(e.Path) == 0 {
		return Entry{}, fmt.Errorf("%w: empty path", ErrInvalidEntry)
	}
	return e, nil
}

func encodeEntry(e Entry) ([]byte, error) {
	b, err := json.Marshal(e)
	if err != nil {
		return nil, err
	}
	return append(b, '\n'), nil
}

// Load returns every valid entry for c in file order. A missing file yields an
// empty slice. Malformed lines and repeated paths are skipped one at a time.
func (s *Store) Load(c Context) []Entry {
	entries := []Entry{}
	path := s.Path(c)

	f, err := os.Open(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			s.logger.Warn("Could not open navigation map.", zap.String("path", path), zap.Error(err))
		}
		return entries
	}
	defer f.Close()

	seen := make(map[string]struct{})
	reader := bufio.NewReaderSize(f, 64*1024)
	lineNo := 0
	for {
		raw, err := readLine(reader)
		if errors.Is(err, io.EOF) {
			break
		}
		lineNo++
		if errors.Is(err, errLineTooLong) {
			s.logger.Debug("Skipping oversized navigation line.", zap.String("path", path), zap.Int("line", lineNo))
			continue
		}
		if err != nil {
			s.logger.Warn("Navigation map read stopped early.", zap.String("path", path), zap.Error(err))
			break
		}
		line := bytes.TrimSpace(raw)
		if len(line) == 0 {
			continue
		}
		e, err := parseLine(line)
		if err != nil {
			s.logger.Debug("Skipping malformed navigation line.",
				zap.String("path", path), zap.Int("line", lineNo), zap.Error(err))
			continue
		}
		key := e.pathKey()
		if _, dup := seen[key]; dup {
			s.logger.Debug("Skipping duplicate navigation path.",
				zap.String("path", path), zap.Int("line", lineNo), zap.String("entry", e.JoinedPath()))
			continue
		}
		seen[key] = struct{}{}
		entries = append(entries, e)
	}
	return entries
}

// Save replaces the map for c with entries.
func (s *Store) Save(c Context, entries []Entry) error {
	var buf bytes.Buffer
	seen := make(map[string]struct{}, len(entries))
	for i, e := range entries {
		if len(e.Path) == 0 {
			return fmt.Errorf("%w: entry %d has an empty path", ErrInvalidEntry, i)
		}
		key := e.pathKey()
		if _, dup := seen[key]; dup {
			return fmt.Errorf("%w: entry %d repeats path %q", ErrInvalidEntry, i, e.JoinedPath())
		}
		seen[key] = struct{}{}

		line, err := encodeEntry(e)
		if err != nil {
			return fmt.Errorf("encoding entry %d: %w", i, err)
		}
		buf.Write(line)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := fsutil.WriteFileAtomic(s.Path(c), buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("saving navigation map %s: %w", c, err)
	}
	s.logger.Debug("Saved navigation map.", zap.Stringer("context", c), zap.Int("entries", len(entries)))
	return nil
}

// Find returns the first entry of c, in file order, accepted by match.
func (s *Store) Find(c Context, match Matcher) (Entry, bool) {
	for _, e := range s.Load(c) {
		if match(e) {
			return e, true
		}
	}
	return Entry{}, false
}

// Contexts lists the stored maps, sorted by file name.
func (s *Store) Contexts() ([]Context, error) {
	dirEntries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("listing %s: %w", s.dir, err)
	}
	var out []Context
	for _, de := range dirEntries {
		if de.IsDir() {
			continue
		}
		if c, ok := parseFileName(de.Name()); ok {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FileName() < out[j].FileName() })
	return out, nil
}

// Delete removes the map for c. Deleting a missing map is not an error.
func (s *Store) Delete(c Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.Remove(s.Path(c)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("deleting navigation map %s: %w", c, err)
	}
	return nil
}
