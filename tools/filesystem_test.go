package tools

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/duneagent/dune/config"
)

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestReadFile(t *testing.T) {
	path := writeTemp(t, "greeting.txt", "hello")
	tool := &ReadFileTool{fsAccess: &config.FilesystemAccess{}}

	payload, err := tool.Execute(context.Background(), map[string]interface{}{"path": path})
	require.NoError(t, err)
	assert.Equal(t, "hello", payload["contents"])
}

func TestReadFileTruncatesSilently(t *testing.T) {
	path := writeTemp(t, "big.txt", strings.Repeat("x", 200))
	tool := &ReadFileTool{fsAccess: &config.FilesystemAccess{}}

	payload, err := tool.Execute(context.Background(), map[string]interface{}{
		"path":      path,
		"max_bytes": float64(50),
	})
	require.NoError(t, err)
	contents := payload["contents"].(string)
	assert.Len(t, contents, 50)
}

func TestReadFileMissingPath(t *testing.T) {
	tool := &ReadFileTool{fsAccess: &config.FilesystemAccess{}}
	_, err := tool.Execute(context.Background(), map[string]interface{}{
		"path": filepath.Join(t.TempDir(), "nope.txt"),
	})
	assert.Error(t, err)
}

func TestReadFileHiddenPathDenied(t *testing.T) {
	path := writeTemp(t, "secret.pem", "key material")
	tool := &ReadFileTool{fsAccess: &config.FilesystemAccess{Hidden: []string{"**/*.pem"}}}

	_, err := tool.Execute(context.Background(), map[string]interface{}{"path": path})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "hidden")
}

func TestReadManyFilesIsolatesFailures(t *testing.T) {
	good := writeTemp(t, "good.txt", "fine")
	bad := filepath.Join(t.TempDir(), "missing.txt")
	tool := &ReadManyFilesTool{fsAccess: &config.FilesystemAccess{}}

	payload, err := tool.Execute(context.Background(), map[string]interface{}{
		"paths": []interface{}{good, bad},
	})
	require.NoError(t, err, "one missing file does not abort the batch")
	assert.Equal(t, "fine", payload[good])

	entry, ok := payload[bad].(map[string]interface{})
	require.True(t, ok)
	assert.NotEmpty(t, entry["error"])
}

func TestReadManyFilesReportsBadHiddenPattern(t *testing.T) {
	path := writeTemp(t, "plain.txt", "fine")
	tool := &ReadManyFilesTool{fsAccess: &config.FilesystemAccess{Hidden: []string{"["}}}

	payload, err := tool.Execute(context.Background(), map[string]interface{}{
		"paths": []interface{}{path},
	})
	require.NoError(t, err)

	entry, ok := payload[path].(map[string]interface{})
	require.True(t, ok, "a broken restriction pattern must not grant access")
	assert.Contains(t, entry["error"], "invalid glob pattern")
}

func TestWriteFileCreatesParents(t *testing.T) {
	path := filepath.Join(t.TempDir(), "deep", "nested", "out.txt")
	tool := &WriteFileTool{fsAccess: &config.FilesystemAccess{}}

	payload, err := tool.Execute(context.Background(), map[string]interface{}{
		"path":    path,
		"content": "created",
	})
	require.NoError(t, err)
	assert.Equal(t, true, payload["success"])
	assert.Equal(t, 7, payload["bytes"])

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "created", string(data))
}

func TestWriteFileRespectsReadOnlyPatterns(t *testing.T) {
	path := writeTemp(t, "locked.txt", "original")
	tool := &WriteFileTool{fsAccess: &config.FilesystemAccess{ReadOnly: []string{"**/locked.txt"}}}

	_, err := tool.Execute(context.Background(), map[string]interface{}{
		"path":    path,
		"content": "tampered",
	})
	require.Error(t, err)

	data, readErr := os.ReadFile(path)
	require.NoError(t, readErr)
	assert.Equal(t, "original", string(data))
}

func TestLsListsSorted(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.txt"), []byte("b"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("a"), 0644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0755))

	tool := &LsTool{}
	payload, err := tool.Execute(context.Background(), map[string]interface{}{"path": dir})
	require.NoError(t, err)

	files := payload["files"].([]map[string]interface{})
	require.Len(t, files, 3)
	assert.Equal(t, "a.txt", files[0]["name"])
	assert.Equal(t, "file", files[0]["type"])
	assert.Equal(t, "b.txt", files[1]["name"])
	assert.Equal(t, "sub", files[2]["name"])
	assert.Equal(t, "dir", files[2]["type"])
}

func TestLsUnreadableDirectory(t *testing.T) {
	tool := &LsTool{}
	_, err := tool.Execute(context.Background(), map[string]interface{}{
		"path": filepath.Join(t.TempDir(), "missing"),
	})
	assert.Error(t, err)
}
