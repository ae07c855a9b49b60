package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"openclaw/internal/agent"

	"github.com/google/uuid"
)

// Record is the on-disk shape of a saved conversation.
type Record struct {
	// Name is the on-disk file name without extension. Populated by List,
	// never serialized.
	Name string `json:"-"`

	ID       string          `json:"id"`
	Workdir  string          `json:"workdir,omitempty"`
	Messages []agent.Message `json:"messages"`
	Updated  time.Time       `json:"updated"`
}

// Session is a conversation backed by a JSON file. It implements
// agent.Conversation; mutations stay in memory until Save.
type Session struct {
	path string
	rec  Record
}

// Dir returns the sessions directory. An empty configured value resolves
// to ~/.openclaw/sessions.
func Dir(configured string) (string, error) {
	if configured != "" {
		return configured, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("determining home directory: %w", err)
	}
	return filepath.Join(home, ".openclaw", "sessions"), nil
}

// sanitizeName strips path separators, leading dots, and a trailing .json
// so a session name can never escape the sessions directory.
func sanitizeName(name string) (string, error) {
	base := filepath.Base(name)
	if base == "." || base == string(filepath.Separator) {
		base = ""
	}
	cleaned := strings.TrimLeft(base, ".")
	cleaned = strings.TrimSuffix(cleaned, ".json")
	if cleaned == "" {
		return "", fmt.Errorf("invalid session name %q", name)
	}
	return cleaned, nil
}

// Path resolves a session name to its file path inside dir.
func Path(dir, name string) (string, error) {
	safe, err := sanitizeName(name)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, safe+".json"), nil
}

// New creates an empty session that will save to path.
func New(path string) *Session {
	return &Session{
		path: path,
		rec:  Record{ID: uuid.NewString()},
	}
}

// Load reads an existing session file.
func Load(path string) (*Session, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading session %s: %w", path, err)
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("parsing session %s: %w", path, err)
	}
	return &Session{path: path, rec: rec}, nil
}

// LoadOrCreate opens the named session in dir, creating an empty one when
// no file exists yet.
func LoadOrCreate(dir, name string) (*Session, error) {
	path, err := Path(dir, name)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(path); err == nil {
		return Load(path)
	}
	return New(path), nil
}

// Save writes the session atomically: marshal to a temp file in the same
// directory, then rename over the target.
func (s *Session) Save() error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating session directory %s: %w", dir, err)
	}

	s.rec.Updated = time.Now()
	data, err := json.MarshalIndent(s.rec, "", "  ")
	if err != nil {
		return fmt.Errorf("serializing session: %w", err)
	}

	tmp := filepath.Join(dir, ".session-"+uuid.NewString()+".tmp")
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing temp session file %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("renaming session file to %s: %w", s.path, err)
	}
	return nil
}

func (s *Session) Path() string { return s.path }

func (s *Session) ID() string { return s.rec.ID }

// SetWorkdir records the working directory the session belongs to.
func (s *Session) SetWorkdir(dir string) { s.rec.Workdir = dir }

func (s *Session) Messages() []agent.Message { return s.rec.Messages }

func (s *Session) AddUserMessage(text string) {
	s.rec.Messages = append(s.rec.Messages, agent.UserText(text))
}

func (s *Session) AddAssistantMessage(content []agent.ContentBlock) {
	s.rec.Messages = append(s.rec.Messages, agent.Message{Role: agent.RoleAssistant, Content: content})
}

func (s *Session) PushMessage(msg agent.Message) {
	s.rec.Messages = append(s.rec.Messages, msg)
}

func (s *Session) ReplaceMessages(msgs []agent.Message) {
	s.rec.Messages = msgs
}

// Clear drops all messages but keeps the session identity and path.
func (s *Session) Clear() {
	s.rec.Messages = nil
}

// Last returns the most recently modified session in dir.
func Last(dir string) (*Session, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var (
		newest     string
		newestTime time.Time
	)
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if newest == "" || info.ModTime().After(newestTime) {
			newest = e.Name()
			newestTime = info.ModTime()
		}
	}
	if newest == "" {
		return nil, errors.New("no sessions found")
	}
	return Load(filepath.Join(dir, newest))
}

// List returns session records in dir sorted newest first. When showAll is
// false, records are filtered to the given workdir.
func List(dir string, showAll bool, workdir string) ([]Record, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	var records []Record
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			continue
		}
		var rec Record
		if err := json.Unmarshal(data, &rec); err != nil {
			continue
		}
		if showAll || rec.Workdir == "" || workdir == "" || samePath(rec.Workdir, workdir) {
			rec.Name = strings.TrimSuffix(e.Name(), ".json")
			records = append(records, rec)
		}
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].Updated.After(records[j].Updated)
	})
	return records, nil
}

func samePath(a, b string) bool {
	if a == b {
		return true
	}
	absA, errA := filepath.Abs(a)
	absB, errB := filepath.Abs(b)
	if errA != nil || errB != nil {
		return false
	}
	return absA == absB
}
