// Package audit persists an append-only JSONL trail of every pipeline stage.
package audit

import (
	"bufio"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/invoice-recon/internal/model"
)

// Layout selects how sessions map to files.
type Layout string

const (
	// LayoutPerSession writes each session to audit-<session>.jsonl.
	LayoutPerSession Layout = "per_session"
	// LayoutShared writes every session to a single audit.jsonl.
	LayoutShared Layout = "shared"
)

const sharedFile = "audit.jsonl"

// ErrInvalidSession is returned for session ids that are not safe to use in
// a file name.
var ErrInvalidSession = eris.New("audit: invalid session id")

var sessionPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.-]{0,127}$`)

// ValidSessionID reports whether id may name a session.
func ValidSessionID(id string) bool {
	return sessionPattern.MatchString(id) && !strings.Contains(id, "..")
}

// maxLine bounds a single JSONL record on read.
const maxLine = 16 << 20

// record is the on-disk shape of one entry.
type record struct {
	Timestamp string  `json:"ts"`
	SessionID string  `json:"session_id"`
	Type      string  `json:"type"`
	Data      payload `json:"data"`
}

type payload struct {
	Input  any `json:"input"`
	Output any `json:"output"`
}

type readRecord struct {
	Timestamp string `json:"ts"`
	SessionID string `json:"session_id"`
	Type      string `json:"type"`
	Data      struct {
		Input  json.RawMessage `json:"input"`
		Output json.RawMessage `json:"output"`
	} `json:"data"`
}

// Trail owns the audit directory. Appends are serialised per file path and
// each entry reaches the file in a single write.
type Trail struct {
	dir    string
	layout Layout
	now    func() time.Time

	mu    sync.Mutex
	files map[string]*fileState
}

// fileState serialises appends to one file and holds its latest timestamp.
// refs counts appends holding or waiting on mu.
type fileState struct {
	mu   sync.Mutex
	refs int
	last time.Time
}

// New creates a Trail rooted at dir, creating it if needed.
func New(dir string, layout Layout) (*Trail, error) {
	switch layout {
	case "":
		layout = LayoutPerSession
	case LayoutPerSession, LayoutShared:
	default:
		return nil, eris.Errorf("audit: unknown layout %q", layout)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, eris.Wrapf(err, "audit: create dir %s", dir)
	}
	return &Trail{
		dir:    dir,
		layout: layout,
		now:    time.Now,
		files:  make(map[string]*fileState),
	}, nil
}

// Dir returns the audit directory.
func (t *Trail) Dir() string { return t.dir }

// Path returns the file the session's entries are written to.
func (t *Trail) Path(sessionID string) string {
	if t.layout == LayoutShared {
		return filepath.Join(t.dir, sharedFile)
	}
	return filepath.Join(t.dir, "audit-"+sessionID+".jsonl")
}

// Session returns a writer bound to one session.
func (t *Trail) Session(sessionID string) *Session {
	return &Session{trail: t, id: sessionID}
}

// Session appends entries for a single session.
type Session struct {
	trail *Trail
	id    string
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// Path returns the file backing the session.
func (s *Session) Path() string { return s.trail.Path(s.id) }

// Log appends one entry. Input and output must be JSON-serialisable.
func (s *Session) Log(stage string, input, output any) error {
	return s.trail.append(s.id, stage, input, output)
}

func (t *Trail) append(sessionID, stage string, input, output any) error {
	if !ValidSessionID(sessionID) {
		return eris.Wrapf(ErrInvalidSession, "audit: %q", sessionID)
	}
	path := t.Path(sessionID)
	st := t.acquire(path)
	defer t.release(st)

	rec := record{
		Timestamp: t.stamp(st).Format(time.RFC3339Nano),
		SessionID: sessionID,
		Type:      stage,
		Data:      payload{Input: input, Output: output},
	}
	line, err := json.Marshal(rec)
	if err != nil {
		return eris.Wrapf(err, "audit: encode %s entry", stage)
	}
	line = append(line, '\n')

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return eris.Wrapf(err, "audit: open %s", path)
	}
	defer f.Close()

	if _, err := f.Write(line); err != nil {
		return eris.Wrapf(err, "audit: write %s", path)
	}
	return nil
}

// stamp returns the entry timestamp, never earlier than the previous entry
// in the same file. The caller holds st.mu.
func (t *Trail) stamp(st *fileState) time.Time {
	ts := t.now().UTC()
	if ts.Before(st.last) {
		ts = st.last
	}
	st.last = ts
	return ts
}

func (t *Trail) acquire(path string) *fileState {
	t.mu.Lock()
	st, ok := t.files[path]
	if !ok {
		st = &fileState{}
		t.files[path] = st
	}
	st.refs++
	t.mu.Unlock()

	st.mu.Lock()
	return st
}

func (t *Trail) release(st *fileState) {
	st.mu.Unlock()
	t.mu.Lock()
	st.refs--
	t.mu.Unlock()
}

// Prune drops the in-memory state of files with no append since before
// cutoff and returns how many were dropped. Entries written after a prune
// are ordered from the wall clock again, so cutoff should lie well past any
// expected clock step.
func (t *Trail) Prune(cutoff time.Time) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for path, st := range t.files {
		if st.refs > 0 || !st.last.Before(cutoff) {
			continue
		}
		delete(t.files, path)
		n++
	}
	return n
}

// Tracked returns the number of files with in-memory state.
func (t *Trail) Tracked() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.files)
}

// Read returns the session's entries in file order. Malformed lines are
// skipped; a session with no file yields no entries.
func (t *Trail) Read(sessionID string) ([]model.AuditEntry, error) {
	if !ValidSessionID(sessionID) {
		return nil, eris.Wrapf(ErrInvalidSession, "audit: %q", sessionID)
	}
	path := t.Path(sessionID)
	st := t.acquire(path)
	defer t.release(st)

	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "audit: open %s", path)
	}
	defer f.Close()

	var entries []model.AuditEntry
	skipped := 0
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), maxLine)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec readRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			skipped++
			continue
		}
		ts, err := time.Parse(time.RFC3339Nano, rec.Timestamp)
		if err != nil || rec.Type == "" {
			skipped++
			continue
		}
		if rec.SessionID != sessionID {
			continue
		}
		entries = append(entries, model.AuditEntry{
			Timestamp: ts,
			SessionID: rec.SessionID,
			Stage:     rec.Type,
			Input:     raw(rec.Data.Input),
			Output:    raw(rec.Data.Output),
		})
	}
	if err := scanner.Err(); err != nil {
		return entries, eris.Wrapf(err, "audit: scan %s", path)
	}
	if skipped > 0 {
		zap.L().Warn("audit: skipped malformed entries",
			zap.String("path", path),
			zap.Int("skipped", skipped),
		)
	}
	return entries, nil
}

func raw(m json.RawMessage) any {
	if len(m) == 0 || string(m) == "null" {
		return nil
	}
	return m
}
