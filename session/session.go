// Package session persists the small amount of per-user state that survives
// between runs: the project identifier obtained from the one-time Gemini
// Code Assist onboarding flow.
package session

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/duneagent/dune/errors"
)

// Cache stores a project/session identifier as a small JSON file on disk.
// It is read once at startup and written once after a successful onboarding.
type Cache struct {
	path string
}

type cacheFile struct {
	ProjectID string `json:"project_id"`
}

// NewCache returns a cache rooted in the user's dune directory
// (~/.dune/project_id.json).
func NewCache() (*Cache, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, errors.Wrapf(err, "could not determine home directory")
	}
	return &Cache{path: filepath.Join(home, ".dune", "project_id.json")}, nil
}

// NewCacheAt returns a cache backed by an explicit file path.
func NewCacheAt(path string) *Cache {
	return &Cache{path: path}
}

// Load returns the cached project ID, or "" if no usable cache exists.
// A missing or corrupt cache file is not an error; onboarding simply runs
// again and rewrites it.
func (c *Cache) Load() string {
	data, err := os.ReadFile(c.path)
	if err != nil {
		return ""
	}
	var f cacheFile
	if err := json.Unmarshal(data, &f); err != nil {
		return ""
	}
	return f.ProjectID
}

// Save writes the project ID to disk, creating the parent directory if needed.
func (c *Cache) Save(projectID string) error {
	if err := os.MkdirAll(filepath.Dir(c.path), 0755); err != nil {
		return errors.Wrapf(err, "could not create cache directory")
	}
	data, err := json.Marshal(cacheFile{ProjectID: projectID})
	if err != nil {
		return errors.Wrapf(err, "failed to serialize project ID cache")
	}
	return os.WriteFile(c.path, data, 0644)
}

// Clear deletes the cache file. Clearing a cache that does not exist is a
// no-op.
func (c *Cache) Clear() error {
	err := os.Remove(c.path)
	if err != nil && !os.IsNotExist(err) {
		return errors.Wrapf(err, "failed to clear project ID cache")
	}
	return nil
}

// Path returns the on-disk location of the cache file.
func (c *Cache) Path() string { return c.path }
