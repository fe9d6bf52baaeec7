package domain

import "time"

// Edit is a single-file mutation proposal with captured original content.
// Invariant (spec §3): an applied edit's BackupPath must point to a
// readable file containing exactly OriginalContent until rollback or
// cleanup.
type Edit struct {
	ID                string    `json:"id"`
	FilePath          string    `json:"filePath"`
	OriginalContent   string    `json:"originalContent"`
	NewContent        string    `json:"newContent"`
	BackupPath        string    `json:"backupPath,omitempty"`
	Applied           bool      `json:"applied"`
	Timestamp         time.Time `json:"timestamp"`
	ValidationPassed  bool      `json:"validationPassed"`
	Description       string    `json:"description,omitempty"`
}

// EditResult is returned from createEdit/applyEdit/applyEdits.
type EditResult struct {
	EditID           string   `json:"editId"`
	Success          bool     `json:"success"`
	ValidationErrors []string `json:"validationErrors,omitempty"`
	Error            string   `json:"error,omitempty"`
}
