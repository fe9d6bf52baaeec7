// Package conversation implements the C3 Conversation Store: an
// append-only, turn-indexed history per session, with context
// snapshots and optional persistence to one JSON file per session id
// (spec.md §6.4). Grounded on spec.md §3's Turn/Conversation
// description and the teacher's session-scoped state shape
// (pkg/session); ids are generated with google/uuid per the teacher's
// own dependency.
package conversation

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/localcoder/agentkernel/internal/apperrors"
	"github.com/localcoder/agentkernel/internal/domain"
)

// Conversation holds the append-only turn log for one session.
// Invariant: turns are append-only and ordered by timestamp (spec §3).
type Conversation struct {
	mu        sync.Mutex
	SessionID string        `json:"sessionId"`
	Turns     []domain.Turn `json:"turns"`
	nextID    int64
}

// New creates an empty conversation with a fresh session id.
func New() *Conversation {
	return &Conversation{SessionID: uuid.NewString()}
}

// AppendTurn appends a new turn with outcome=pending and the next
// monotonically increasing id, and returns it (spec §4.8 step 1).
func (c *Conversation) AppendTurn(input string, snapshot domain.ContextSnapshot) *domain.Turn {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.nextID++
	turn := domain.Turn{
		ID: c.nextID,
		// UTC with no monotonic reading, so the value survives the
		// Store's JSON round trip unchanged.
		Timestamp: time.Now().UTC().Round(0),
		Input:     input,
		Outcome:   domain.OutcomePending,
		Context:   snapshot,
	}
	c.Turns = append(c.Turns, turn)
	return &c.Turns[len(c.Turns)-1]
}

// UpdateTurn mutates the turn with the given id via fn, under the
// conversation's append lock (spec §5: "Conversation Store appends are
// serialized per conversation").
func (c *Conversation) UpdateTurn(id int64, fn func(*domain.Turn)) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i := range c.Turns {
		if c.Turns[i].ID == id {
			fn(&c.Turns[i])
			return nil
		}
	}
	return apperrors.Validation("conversation", "UpdateTurn", "no turn with that id", nil)
}

// RecentFiles returns the deduplicated RecentFiles entries of the turns'
// context snapshots, most recent turn first, walking back turn by turn
// and stopping once n*4 or more files have been collected. ActiveFiles
// are not included.
func (c *Conversation) RecentFiles(n int) []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	seen := make(map[string]bool)
	var out []string
	for i := len(c.Turns) - 1; i >= 0 && len(out) < n*4; i-- {
		for _, f := range c.Turns[i].Context.RecentFiles {
			if !seen[f] {
				seen[f] = true
				out = append(out, f)
			}
		}
	}
	return out
}

// Len returns the number of turns recorded so far.
func (c *Conversation) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.Turns)
}

// Snapshot returns a copy of the turn slice for safe external iteration.
func (c *Conversation) Snapshot() []domain.Turn {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]domain.Turn, len(c.Turns))
	copy(out, c.Turns)
	return out
}

// Store persists conversations under dataDir, one JSON file per session
// id (spec §6.4).
type Store struct {
	dataDir string
}

// NewStore creates a persistence layer rooted at dataDir.
func NewStore(dataDir string) *Store {
	return &Store{dataDir: dataDir}
}

func (s *Store) path(sessionID string) string {
	return filepath.Join(s.dataDir, sessionID+".json")
}

// Save writes the conversation's turns to its session file, atomically
// (temp file + rename), matching the filesystem tool's write idiom.
func (s *Store) Save(c *Conversation) error {
	c.mu.Lock()
	data, err := json.MarshalIndent(c.Turns, "", "  ")
	sessionID := c.SessionID
	c.mu.Unlock()
	if err != nil {
		return apperrors.IO("conversation", "Save", "failed to marshal turns", err)
	}

	if err := os.MkdirAll(s.dataDir, 0o755); err != nil {
		return apperrors.IO("conversation", "Save", "failed to create data directory", err)
	}

	tmp, err := os.CreateTemp(s.dataDir, ".tmp-*")
	if err != nil {
		return apperrors.IO("conversation", "Save", "failed to create temp file", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return apperrors.IO("conversation", "Save", "failed to write temp file", err)
	}
	if err := tmp.Close(); err != nil {
		return apperrors.IO("conversation", "Save", "failed to close temp file", err)
	}
	if err := os.Rename(tmp.Name(), s.path(sessionID)); err != nil {
		return apperrors.IO("conversation", "Save", "failed to rename temp file into place", err)
	}
	return nil
}

// Load reads a conversation's turns back from its session file.
func (s *Store) Load(sessionID string) (*Conversation, error) {
	data, err := os.ReadFile(s.path(sessionID))
	if err != nil {
		return nil, apperrors.IO("conversation", "Load", "failed to read session file", err)
	}

	var turns []domain.Turn
	if err := json.Unmarshal(data, &turns); err != nil {
		return nil, apperrors.Validation("conversation", "Load", "failed to parse session file", err)
	}

	var maxID int64
	for _, t := range turns {
		if t.ID > maxID {
			maxID = t.ID
		}
	}

	return &Conversation{SessionID: sessionID, Turns: turns, nextID: maxID}, nil
}
