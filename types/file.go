package types

import "time"

// ChangeKind is the filesystem operation observed.
type ChangeKind string

const (
	FileCreated  ChangeKind = "created"
	FileModified ChangeKind = "modified"
	FileDeleted  ChangeKind = "deleted"
)

// Category is the semantic class of a monitored file.
type Category string

const (
	CategoryLog        Category = "log"
	CategoryScreenshot Category = "screenshot"
	CategoryConfig     Category = "config"
	CategorySession    Category = "session"
	CategoryTemplate   Category = "template"
	CategoryOther      Category = "other"
)

// FileChangeEvent is built per observed filesystem event and delivered to subscribers.
type FileChangeEvent struct {
	Kind        ChangeKind     `json:"kind"`
	Path        string         `json:"path"`
	Root        string         `json:"root"`
	Category    Category       `json:"category"`
	Timestamp   time.Time      `json:"timestamp"`
	Size        *int64         `json:"size,omitempty"`
	ContentHash string         `json:"content_hash,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// FileInfo describes a file found under a monitored root.
type FileInfo struct {
	Path     string    `json:"path"`
	Name     string    `json:"name"`
	Root     string    `json:"root"`
	Category Category  `json:"category"`
	Size     int64     `json:"size"`
	ModTime  time.Time `json:"modified"`
}

// CountSize aggregates a file count and total byte size.
type CountSize struct {
	Count int   `json:"count"`
	Size  int64 `json:"size"`
}

// RootStats aggregates one monitored root.
type RootStats struct {
	Files      int              `json:"files"`
	Size       int64            `json:"size"`
	Categories map[Category]int `json:"categories"`
}

// FileStatistics aggregates all monitored roots.
type FileStatistics struct {
	TotalFiles int                    `json:"total_files"`
	TotalSize  int64                  `json:"total_size"`
	Categories map[Category]CountSize `json:"categories"`
	Roots      map[string]RootStats   `json:"roots"`
}

// LogMatch is one line matched by a log search.
type LogMatch struct {
	File       string    `json:"file"`
	LineNumber int       `json:"line_number"`
	Line       string    `json:"line"`
	Timestamp  time.Time `json:"timestamp"`
}
