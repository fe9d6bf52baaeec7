// Package editor implements the C6 Safe Code Editor: an atomic,
// backup-based multi-file mutation engine with pre-write validation and
// transactional rollback. Grounded on the filesystem tool's
// backup-then-atomic-write idiom, generalized here to the full
// proposed -> validated -> applied lifecycle and multi-file transaction
// spec.md §4.4 describes.
package editor

import (
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	dmp "github.com/sergi/go-diff/diffmatchpatch"

	"github.com/localcoder/agentkernel/internal/apperrors"
	"github.com/localcoder/agentkernel/internal/domain"
)

// ValidationLevel is the caller-requested depth of pre-write checking.
type ValidationLevel string

const (
	LevelSyntax      ValidationLevel = "syntax"
	LevelSemantic    ValidationLevel = "semantic"
	LevelFullProject ValidationLevel = "full_project"
	LevelAIEnhanced  ValidationLevel = "ai_enhanced"
)

// Editor mutates one or more files such that either all declared
// changes are visible or none are. applyEdits is serialized globally
// (spec §5: "Safe Code Editor serializes applyEdits globally ... to
// preserve the atomicity invariant"); createEdit/cancelEdit may run
// concurrently.
type Editor struct {
	backupDir string

	mu        sync.Mutex // guards pending and the fields of pending edits
	pending   map[string]*domain.Edit
	applyLock sync.Mutex // dedicated lock for the global applyEdits transaction
}

// New creates an editor that writes backups under backupDir.
func New(backupDir string) *Editor {
	return &Editor{backupDir: backupDir, pending: make(map[string]*domain.Edit)}
}

// CreateEdit reads the file's current content, runs extension-dispatched
// syntax validation, and stores a pending Edit without writing to disk
// (spec §4.4: "Does not write").
func (e *Editor) CreateEdit(path, newContent, description string, level ValidationLevel) (*domain.Edit, domain.EditResult) {
	original, err := os.ReadFile(path)
	if err != nil {
		// A brand-new file has no original content; treat as empty.
		if !os.IsNotExist(err) {
			res := domain.EditResult{Success: false, Error: err.Error()}
			return nil, res
		}
		original = nil
	}

	var validationErrors []string
	if level == LevelSyntax || level == LevelSemantic || level == LevelFullProject || level == LevelAIEnhanced {
		validationErrors = append(validationErrors, validateSyntax(path, newContent)...)
	}
	if level == LevelSemantic || level == LevelFullProject || level == LevelAIEnhanced {
		validationErrors = append(validationErrors, validateSemantic(string(original), newContent)...)
	}

	edit := &domain.Edit{
		ID:               uuid.NewString(),
		FilePath:         path,
		OriginalContent:  string(original),
		NewContent:       newContent,
		Applied:          false,
		Timestamp:        time.Now(),
		ValidationPassed: len(validationErrors) == 0,
		Description:      description,
	}

	e.mu.Lock()
	e.pending[edit.ID] = edit
	e.mu.Unlock()

	return edit, domain.EditResult{EditID: edit.ID, Success: len(validationErrors) == 0, ValidationErrors: validationErrors}
}

// CancelEdit removes a pending edit without touching disk (spec §4.4).
func (e *Editor) CancelEdit(id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.pending[id]; !ok {
		return apperrors.Validation("editor", "CancelEdit", "no pending edit with that id", nil)
	}
	delete(e.pending, id)
	return nil
}

// backupPath derives <backupDir>/<sha1(path)>-<unix_ms>.bak (spec §6.4).
func (e *Editor) backupPath(path string) string {
	h := sha1.Sum([]byte(path))
	return filepath.Join(e.backupDir, fmt.Sprintf("%s-%d.bak", hex.EncodeToString(h[:]), time.Now().UnixMilli()))
}

// ApplyEdit writes a backup of the original bytes, then atomically
// writes newContent, then marks the edit applied. Invariant (i): no file
// is mutated before its original bytes exist under backupPath. An edit
// that failed validation is refused without touching disk.
func (e *Editor) ApplyEdit(id string) domain.EditResult {
	e.mu.Lock()
	edit, ok := e.pending[id]
	e.mu.Unlock()
	if !ok {
		return domain.EditResult{EditID: id, Success: false, Error: "no pending edit with that id"}
	}
	if !edit.ValidationPassed {
		return domain.EditResult{EditID: id, Success: false, Error: "edit did not pass validation"}
	}

	if err := e.writeBackup(edit); err != nil {
		return domain.EditResult{EditID: id, Success: false, Error: err.Error()}
	}
	if err := atomicWrite(edit.FilePath, edit.NewContent); err != nil {
		return domain.EditResult{EditID: id, Success: false, Error: err.Error()}
	}

	e.mu.Lock()
	edit.Applied = true
	e.mu.Unlock()

	return domain.EditResult{EditID: id, Success: true}
}

func (e *Editor) writeBackup(edit *domain.Edit) error {
	if err := os.MkdirAll(e.backupDir, 0o755); err != nil {
		return apperrors.Safety("editor", "writeBackup", "failed to create backup directory", err)
	}
	backupPath := e.backupPath(edit.FilePath)
	if err := os.WriteFile(backupPath, []byte(edit.OriginalContent), 0o644); err != nil {
		return apperrors.Safety("editor", "writeBackup", "failed to write backup file", err)
	}
	e.mu.Lock()
	edit.BackupPath = backupPath
	e.mu.Unlock()
	return nil
}

// atomicWrite is the same temp-file-then-rename idiom the filesystem
// tool uses, kept local to avoid a dependency on internal/tools here.
func atomicWrite(path, content string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return apperrors.IO("editor", "atomicWrite", "failed to create directory", err)
	}
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return apperrors.IO("editor", "atomicWrite", "failed to create temp file", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.WriteString(content); err != nil {
		tmp.Close()
		return apperrors.IO("editor", "atomicWrite", "failed to write temp file", err)
	}
	if err := tmp.Close(); err != nil {
		return apperrors.IO("editor", "atomicWrite", "failed to close temp file", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return apperrors.IO("editor", "atomicWrite", "failed to rename temp file into place", err)
	}
	return nil
}

// ApplyEdits applies a set of pending edits as one transaction: sorted
// by path, applied in order; on first failure, every already-applied
// edit in this call is rolled back in reverse order (spec §4.4).
// Invariant (ii): after return, every applied edit has a recoverable
// backup, and every non-applied edit's file equals its pre-edit content.
func (e *Editor) ApplyEdits(ids []string) []domain.EditResult {
	e.applyLock.Lock()
	defer e.applyLock.Unlock()

	e.mu.Lock()
	edits := make([]*domain.Edit, 0, len(ids))
	for _, id := range ids {
		if edit, ok := e.pending[id]; ok {
			edits = append(edits, edit)
		}
	}
	e.mu.Unlock()

	sort.Slice(edits, func(i, j int) bool { return edits[i].FilePath < edits[j].FilePath })

	results := make(map[string]domain.EditResult, len(ids))
	var applied []string

	for _, edit := range edits {
		res := e.ApplyEdit(edit.ID)
		results[edit.ID] = res
		if !res.Success {
			for i := len(applied) - 1; i >= 0; i-- {
				e.RollbackEdit(applied[i])
			}
			for _, remaining := range edits {
				if _, done := results[remaining.ID]; !done {
					results[remaining.ID] = domain.EditResult{EditID: remaining.ID, Success: false, Error: "transaction aborted: prior edit failed"}
				}
			}
			break
		}
		applied = append(applied, edit.ID)
	}

	out := make([]domain.EditResult, len(ids))
	for i, id := range ids {
		out[i] = results[id]
	}
	return out
}

// RollbackEdit restores a file from its backup and marks the edit
// un-applied.
func (e *Editor) RollbackEdit(id string) error {
	e.mu.Lock()
	edit, ok := e.pending[id]
	e.mu.Unlock()
	if !ok {
		return apperrors.Validation("editor", "RollbackEdit", "no edit with that id", nil)
	}
	if edit.BackupPath == "" {
		return apperrors.Validation("editor", "RollbackEdit", "edit has no backup to restore from", nil)
	}

	backup, err := os.ReadFile(edit.BackupPath)
	if err != nil {
		return apperrors.IO("editor", "RollbackEdit", "failed to read backup file", err)
	}
	if err := atomicWrite(edit.FilePath, string(backup)); err != nil {
		return err
	}

	e.mu.Lock()
	edit.Applied = false
	e.mu.Unlock()
	return nil
}

// CleanupBackups removes backup files older than maxAge, left as an
// explicit caller operation rather than a background schedule.
func (e *Editor) CleanupBackups(maxAge time.Duration) error {
	entries, err := os.ReadDir(e.backupDir)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return apperrors.IO("editor", "CleanupBackups", "failed to list backup directory", err)
	}

	cutoff := time.Now().Add(-maxAge)
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".bak") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			os.Remove(filepath.Join(e.backupDir, entry.Name()))
		}
	}
	return nil
}

// validateSyntax dispatches on file extension (spec §4.4 SYNTAX level).
func validateSyntax(path, content string) []string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		var v interface{}
		if err := json.Unmarshal([]byte(content), &v); err != nil {
			return []string{fmt.Sprintf("invalid JSON: %s", err)}
		}
	case ".js", ".ts", ".jsx", ".tsx", ".go", ".c", ".h", ".java", ".rs":
		return checkBalancedBraces(content)
	case ".py":
		return checkPythonIndentation(content)
	case ".md":
		return checkMarkdownStructure(content)
	default:
		return checkGeneric(content)
	}
	return nil
}

func checkBalancedBraces(content string) []string {
	var stack []rune
	pairs := map[rune]rune{')': '(', ']': '[', '}': '{'}
	inString := rune(0)
	for i, r := range content {
		if inString != 0 {
			if r == inString && (i == 0 || content[i-1] != '\\') {
				inString = 0
			}
			continue
		}
		switch r {
		case '"', '\'', '`':
			inString = r
		case '(', '[', '{':
			stack = append(stack, r)
		case ')', ']', '}':
			if len(stack) == 0 || stack[len(stack)-1] != pairs[r] {
				return []string{fmt.Sprintf("unbalanced %c", r)}
			}
			stack = stack[:len(stack)-1]
		}
	}
	if len(stack) > 0 {
		return []string{"unclosed bracket(s) at end of file"}
	}
	return nil
}

func checkPythonIndentation(content string) []string {
	var errs []string
	for i, line := range strings.Split(content, "\n") {
		if strings.Contains(line, "\t") && strings.Contains(line, "    ") {
			errs = append(errs, fmt.Sprintf("line %d: mixed tabs and spaces", i+1))
		}
	}
	return errs
}

// checkMarkdownStructure flags ATX headings with no space after the
// marker and heading levels that skip a depth (e.g. h1 straight to
// h3), and notes a non-empty document with no heading at all.
func checkMarkdownStructure(content string) []string {
	var errs []string
	lastLevel := 0
	seenHeading := false
	for i, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if !strings.HasPrefix(trimmed, "#") {
			continue
		}
		level := 0
		for level < len(trimmed) && trimmed[level] == '#' {
			level++
		}
		if level > 6 {
			continue // not a heading, e.g. a horizontal rule of hashes
		}
		if level < len(trimmed) && trimmed[level] != ' ' {
			errs = append(errs, fmt.Sprintf("line %d: heading marker not followed by a space", i+1))
			continue
		}
		if seenHeading && level > lastLevel+1 {
			errs = append(errs, fmt.Sprintf("line %d: heading level skips from h%d to h%d", i+1, lastLevel, level))
		}
		lastLevel = level
		seenHeading = true
	}
	if !seenHeading && strings.TrimSpace(content) != "" {
		errs = append(errs, "document has no heading")
	}
	return errs
}

func checkGeneric(content string) []string {
	var errs []string
	for i, line := range strings.Split(content, "\n") {
		if len(line) > 500 {
			errs = append(errs, fmt.Sprintf("line %d exceeds 500 characters", i+1))
		}
	}
	return errs
}

// validateSemantic compares old and new content for dropped import
// lines using a structural diff, rather than a line-count heuristic
// (spec §4.4 SEMANTIC level: "reference and import checks").
func validateSemantic(original, updated string) []string {
	differ := dmp.New()
	diffs := differ.DiffMain(original, updated, false)

	var errs []string
	for _, d := range diffs {
		if d.Type != dmp.DiffDelete {
			continue
		}
		for _, line := range strings.Split(d.Text, "\n") {
			trimmed := strings.TrimSpace(line)
			if isImportLine(trimmed) {
				errs = append(errs, fmt.Sprintf("import removed: %q", trimmed))
			}
		}
	}
	return errs
}

func isImportLine(line string) bool {
	return strings.HasPrefix(line, "import ") ||
		strings.HasPrefix(line, "from ") ||
		strings.HasPrefix(line, "require(") ||
		strings.HasPrefix(line, "#include")
}
