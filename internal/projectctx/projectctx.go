// Package projectctx implements the C2 Project Context store: a
// gitignore-aware file index over a repository root, relevance-ranked
// slicing for prompt construction, and filesystem-watcher-driven
// invalidation. Grounded on spec.md §3's ProjectContext description;
// the index+watcher shape follows the teacher's use of fsnotify for
// config hot-reload (its pkg/config loader), generalized here to file
// indexing.
package projectctx

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	gitignore "github.com/sabhiram/go-gitignore"

	"github.com/localcoder/agentkernel/internal/apperrors"
)

// FileInfo is one indexed file (spec.md §3: "relativePath, language,
// size, mtime, importance score").
type FileInfo struct {
	RelativePath string
	Language     string
	Size         int64
	ModTime      time.Time
	Importance   float64
}

// defaultExcludes are directory names never walked regardless of
// .gitignore content — version-control and dependency caches that would
// otherwise dominate the index.
var defaultExcludes = map[string]bool{
	".git":         true,
	"node_modules": true,
	"vendor":       true,
	".agentkernel": true,
}

// languageByExt maps a file extension to a coarse language label used
// for relevance ranking and the S1 "what language is this project"
// scenario.
var languageByExt = map[string]string{
	".go":   "Go",
	".ts":   "TypeScript",
	".tsx":  "TypeScript",
	".js":   "JavaScript",
	".jsx":  "JavaScript",
	".py":   "Python",
	".rb":   "Ruby",
	".java": "Java",
	".rs":   "Rust",
	".c":    "C",
	".h":    "C",
	".cpp":  "C++",
	".md":   "Markdown",
	".yaml": "YAML",
	".yml":  "YAML",
	".json": "JSON",
}

// Index is the project context store. It is safe for concurrent use:
// the watcher goroutine is the sole writer, readers take a read lock
// (spec §5: "Project Context index is updated by a single writer ...
// readers observe a consistent snapshot per call").
type Index struct {
	root string

	mu    sync.RWMutex
	files map[string]FileInfo

	ignorer *gitignore.GitIgnore
	watcher *fsnotify.Watcher
}

// New builds an index by walking root once. The returned Index has no
// running watcher; call Watch to start invalidation.
func New(root string) (*Index, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, apperrors.Validation("projectctx", "New", "invalid project root", err)
	}

	ignorer, _ := gitignore.CompileIgnoreFile(filepath.Join(absRoot, ".gitignore"))

	idx := &Index{root: absRoot, files: make(map[string]FileInfo), ignorer: ignorer}
	if err := idx.reindex(); err != nil {
		return nil, err
	}
	return idx, nil
}

// Root returns the absolute project root this index was built from.
func (idx *Index) Root() string { return idx.root }

func (idx *Index) reindex() error {
	files := make(map[string]FileInfo)

	err := filepath.Walk(idx.root, func(p string, info os.FileInfo, walkErr error) error {
		if walkErr != nil {
			return nil
		}
		rel, relErr := filepath.Rel(idx.root, p)
		if relErr != nil {
			return nil
		}
		if rel == "." {
			return nil
		}
		if info.IsDir() {
			if defaultExcludes[info.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		if idx.ignorer != nil && idx.ignorer.MatchesPath(rel) {
			return nil
		}

		files[rel] = FileInfo{
			RelativePath: rel,
			Language:     languageFor(rel),
			Size:         info.Size(),
			ModTime:      info.ModTime(),
			Importance:   importanceFor(rel),
		}
		return nil
	})
	if err != nil {
		return apperrors.IO("projectctx", "reindex", "failed to walk project root", err)
	}

	idx.mu.Lock()
	idx.files = files
	idx.mu.Unlock()
	return nil
}

func languageFor(rel string) string {
	if lang, ok := languageByExt[strings.ToLower(filepath.Ext(rel))]; ok {
		return lang
	}
	return ""
}

// importanceFor is a cheap heuristic: root-level and common entry-point
// files rank higher than deeply nested or test files.
func importanceFor(rel string) float64 {
	score := 1.0
	depth := strings.Count(rel, string(filepath.Separator))
	score -= float64(depth) * 0.1

	base := filepath.Base(rel)
	if base == "main.go" || base == "index.ts" || base == "index.js" || base == "README.md" {
		score += 0.5
	}
	if strings.Contains(base, "_test.") || strings.Contains(base, ".test.") {
		score -= 0.3
	}
	if score < 0 {
		score = 0
	}
	return score
}

// Files returns a snapshot of the current index, sorted by relative
// path for deterministic iteration.
func (idx *Index) Files() []FileInfo {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	out := make([]FileInfo, 0, len(idx.files))
	for _, fi := range idx.files {
		out = append(out, fi)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RelativePath < out[j].RelativePath })
	return out
}

// PrimaryLanguage returns the most common language label across
// indexed files, used to answer questions like S1's "what language is
// this project". Markdown, YAML and JSON files are not counted; ties go
// to the alphabetically first label.
func (idx *Index) PrimaryLanguage() string {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	notCode := map[string]bool{"Markdown": true, "YAML": true, "JSON": true}
	counts := make(map[string]int)
	for _, fi := range idx.files {
		if fi.Language != "" && !notCode[fi.Language] {
			counts[fi.Language]++
		}
	}
	best, bestCount := "", 0
	for lang, count := range counts {
		if count > bestCount || (count == bestCount && lang < best) {
			best, bestCount = lang, count
		}
	}
	return best
}

// GetRelevantContext returns a slice of files relevant to prompt, bounded
// by maxTokens using a 4-chars-per-token estimate against each file's
// size (spec §3: "getRelevantContext(prompt, maxTokens) returning a
// bounded slice"). Relevance combines importance score with a naive
// substring match against the prompt. Files are taken in ranked order
// while any budget remains, so the last file taken can carry the total
// past maxTokens (a single file larger than the budget is still returned).
func (idx *Index) GetRelevantContext(prompt string, maxTokens int) []FileInfo {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	type scored struct {
		fi    FileInfo
		score float64
	}
	candidates := make([]scored, 0, len(idx.files))
	lowerPrompt := strings.ToLower(prompt)
	for _, fi := range idx.files {
		score := fi.Importance
		if lowerPrompt != "" && strings.Contains(lowerPrompt, strings.ToLower(filepath.Base(fi.RelativePath))) {
			score += 2.0
		}
		candidates = append(candidates, scored{fi, score})
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return candidates[i].fi.RelativePath < candidates[j].fi.RelativePath
	})

	const charsPerToken = 4
	budget := maxTokens * charsPerToken
	var out []FileInfo
	for _, c := range candidates {
		if budget <= 0 {
			break
		}
		out = append(out, c.fi)
		budget -= int(c.fi.Size)
	}
	return out
}

// Watch starts a filesystem watcher goroutine that invalidates (re-reads)
// affected index entries on write/create/remove/rename events, until ctx
// is cancelled or Close is called.
func (idx *Index) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return apperrors.IO("projectctx", "Watch", "failed to create filesystem watcher", err)
	}
	idx.watcher = watcher

	if err := filepath.Walk(idx.root, func(p string, info os.FileInfo, walkErr error) error {
		if walkErr != nil || !info.IsDir() {
			return nil
		}
		if defaultExcludes[info.Name()] {
			return filepath.SkipDir
		}
		return watcher.Add(p)
	}); err != nil {
		return apperrors.IO("projectctx", "Watch", "failed to register directories with watcher", err)
	}

	go idx.watchLoop(ctx)
	return nil
}

func (idx *Index) watchLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			idx.watcher.Close()
			return
		case event, ok := <-idx.watcher.Events:
			if !ok {
				return
			}
			idx.invalidate(event.Name)
		case _, ok := <-idx.watcher.Errors:
			if !ok {
				return
			}
		}
	}
}

// invalidate re-reads a single path's FileInfo, or removes it from the
// index if it no longer exists.
func (idx *Index) invalidate(path string) {
	rel, err := filepath.Rel(idx.root, path)
	if err != nil {
		return
	}

	info, statErr := os.Stat(path)
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if statErr != nil {
		delete(idx.files, rel)
		return
	}
	if info.IsDir() {
		return
	}
	if idx.ignorer != nil && idx.ignorer.MatchesPath(rel) {
		delete(idx.files, rel)
		return
	}
	idx.files[rel] = FileInfo{
		RelativePath: rel,
		Language:     languageFor(rel),
		Size:         info.Size(),
		ModTime:      info.ModTime(),
		Importance:   importanceFor(rel),
	}
}

// Close stops the watcher, if running.
func (idx *Index) Close() error {
	if idx.watcher == nil {
		return nil
	}
	return idx.watcher.Close()
}
