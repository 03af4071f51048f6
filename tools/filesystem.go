package tools

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/duneagent/dune/config"
	"github.com/duneagent/dune/errors"
)

// DefaultReadLimit caps how many bytes read_file returns. Truncation past
// the cap is silent; the model is expected to ask for more if it needs it.
const DefaultReadLimit = 10000

// ReadFileTool reads a single file, bounded by a maximum byte count.
type ReadFileTool struct {
	fsAccess *config.FilesystemAccess
}

func (t *ReadFileTool) Descriptor() Descriptor {
	return Descriptor{
		Name:        "read_file",
		Description: "Read the contents of a file. Output is truncated past max_bytes (default 10000).",
		Parameters: &Schema{
			Type: "object",
			Properties: map[string]*Schema{
				"path":      {Type: "string", Description: "The path to the file to read."},
				"max_bytes": {Type: "integer", Description: "Maximum number of bytes to return. Defaults to 10000."},
			},
			Required: []string{"path"},
		},
	}
}

func (t *ReadFileTool) Execute(ctx context.Context, args map[string]interface{}) (map[string]interface{}, error) {
	path, err := stringArg(args, "path")
	if err != nil {
		return nil, err
	}
	maxBytes, err := optionalIntArg(args, "max_bytes", DefaultReadLimit)
	if err != nil {
		return nil, err
	}

	hidden, err := isPathRestricted(path, t.fsAccess.Hidden)
	if err != nil {
		return nil, err
	}
	if hidden {
		return nil, errors.New("access denied: path '%s' is hidden", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read file '%s'", path)
	}
	if maxBytes > 0 && len(data) > maxBytes {
		data = data[:maxBytes]
	}
	return map[string]interface{}{"contents": string(data)}, nil
}

// ReadManyFilesTool reads several files in one call. Failures are
// independent per file: a missing file yields an error entry for that file
// without aborting the others.
type ReadManyFilesTool struct {
	fsAccess *config.FilesystemAccess
}

func (t *ReadManyFilesTool) Descriptor() Descriptor {
	return Descriptor{
		Name:        "read_many_files",
		Description: "Read the contents of multiple files at once.",
		Parameters: &Schema{
			Type: "object",
			Properties: map[string]*Schema{
				"paths": {
					Type:        "array",
					Description: "A list of file paths to read.",
					Items:       &Schema{Type: "string"},
				},
			},
			Required: []string{"paths"},
		},
	}
}

func (t *ReadManyFilesTool) Execute(ctx context.Context, args map[string]interface{}) (map[string]interface{}, error) {
	paths, err := stringListArg(args, "paths")
	if err != nil {
		return nil, err
	}

	results := make(map[string]interface{}, len(paths))
	for _, path := range paths {
		hidden, err := isPathRestricted(path, t.fsAccess.Hidden)
		if err != nil {
			results[path] = map[string]interface{}{"error": err.Error()}
			continue
		}
		if hidden {
			results[path] = map[string]interface{}{"error": fmt.Sprintf("access denied: path '%s' is hidden", path)}
			continue
		}
		data, err := os.ReadFile(path)
		if err != nil {
			results[path] = map[string]interface{}{"error": err.Error()}
			continue
		}
		results[path] = string(data)
	}
	return results, nil
}

// WriteFileTool replaces a file's content entirely, creating parent
// directories as needed.
type WriteFileTool struct {
	fsAccess *config.FilesystemAccess
}

func (t *WriteFileTool) Descriptor() Descriptor {
	return Descriptor{
		Name:        "write_file",
		Description: "Write content to a file, replacing it entirely. Parent directories are created as needed.",
		Parameters: &Schema{
			Type: "object",
			Properties: map[string]*Schema{
				"path":    {Type: "string", Description: "The path to the file to write."},
				"content": {Type: "string", Description: "The full content to write."},
			},
			Required: []string{"path", "content"},
		},
	}
}

func (t *WriteFileTool) Execute(ctx context.Context, args map[string]interface{}) (map[string]interface{}, error) {
	path, err := stringArg(args, "path")
	if err != nil {
		return nil, err
	}
	content, err := stringArg(args, "content")
	if err != nil {
		return nil, err
	}

	if err := t.checkWritable(path); err != nil {
		return nil, err
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, errors.Wrapf(err, "failed to create parent directories for '%s'", path)
		}
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return nil, errors.Wrapf(err, "failed to write to file '%s'", path)
	}
	return map[string]interface{}{
		"success": true,
		"path":    path,
		"bytes":   len(content),
	}, nil
}

func (t *WriteFileTool) checkWritable(path string) error {
	hidden, err := isPathRestricted(path, t.fsAccess.Hidden)
	if err != nil {
		return err
	}
	if hidden {
		return errors.New("access denied: path '%s' is hidden", path)
	}
	readOnly, err := isPathRestricted(path, t.fsAccess.ReadOnly)
	if err != nil {
		return err
	}
	if readOnly {
		return errors.New("access denied: path '%s' is read-only", path)
	}
	return nil
}

// LsTool lists a directory. Stat failures on individual entries degrade to
// a partial record instead of aborting the whole listing.
type LsTool struct{}

func (t *LsTool) Descriptor() Descriptor {
	return Descriptor{
		Name:        "ls",
		Description: "List the contents of a directory, similar to `ls -l`.",
		Parameters: &Schema{
			Type: "object",
			Properties: map[string]*Schema{
				"path": {Type: "string", Description: "The directory to list. Defaults to the current directory."},
			},
		},
	}
}

func (t *LsTool) Execute(ctx context.Context, args map[string]interface{}) (map[string]interface{}, error) {
	path, err := optionalStringArg(args, "path", ".")
	if err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, errors.Wrapf(err, "path '%s' is not a readable directory", path)
	}

	files := make([]map[string]interface{}, 0, len(entries))
	for _, entry := range entries {
		info, err := entry.Info()
		if err != nil {
			// Broken symlinks and friends still get a partial record.
			files = append(files, map[string]interface{}{
				"name":  entry.Name(),
				"type":  "unknown",
				"error": "could not stat file",
			})
			continue
		}
		kind := "file"
		if entry.IsDir() {
			kind = "dir"
		}
		files = append(files, map[string]interface{}{
			"name":        entry.Name(),
			"type":        kind,
			"size":        info.Size(),
			"modified_at": info.ModTime().Format(time.RFC3339),
		})
	}
	sort.Slice(files, func(i, j int) bool {
		return files[i]["name"].(string) < files[j]["name"].(string)
	})
	return map[string]interface{}{"files": files}, nil
}
