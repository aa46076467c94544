// Package storage defines the output tree file-system abstraction.
package storage

import "time"

// Entry describes one JSON document in the output tree.
type Entry struct {
	Path      string    `json:"path"`
	Size      int64     `json:"size"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Provider is the interface for output tree file operations. All paths are
// slash-separated and relative to the tree root.
type Provider interface {
	// Root returns the absolute path of the tree root.
	Root() string
	// EnsureDir creates dir and any missing parents. Existing directories are fine.
	EnsureDir(dir string) error
	// Write atomically writes content to path, replacing any existing file.
	Write(path string, content []byte) error
	// Read returns the raw bytes of the file at path.
	Read(path string) ([]byte, error)
	// List returns every .json file under dir, sorted by path.
	List(dir string) ([]Entry, error)
	// Dirs returns the names of the immediate subdirectories of dir.
	Dirs(dir string) ([]string, error)
}
