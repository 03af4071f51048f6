package tools

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"regexp"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/duneagent/dune/config"
	"github.com/duneagent/dune/errors"
)

// GlobTool finds files and directories matching a glob pattern, with
// recursive '**' support.
type GlobTool struct{}

func (t *GlobTool) Descriptor() Descriptor {
	return Descriptor{
		Name:        "glob",
		Description: "Find files and directories matching a glob pattern (e.g. 'src/**/*.go').",
		Parameters: &Schema{
			Type: "object",
			Properties: map[string]*Schema{
				"pattern": {Type: "string", Description: "The glob pattern to match."},
			},
			Required: []string{"pattern"},
		},
	}
}

func (t *GlobTool) Execute(ctx context.Context, args map[string]interface{}) (map[string]interface{}, error) {
	pattern, err := stringArg(args, "pattern")
	if err != nil {
		return nil, err
	}
	matches, err := doublestar.FilepathGlob(pattern)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid glob pattern '%s'", pattern)
	}
	if matches == nil {
		matches = []string{}
	}
	return map[string]interface{}{"matches": matches}, nil
}

// GrepTool searches for a regex pattern across an explicit list of files.
// Each file fails in isolation: an unreadable path records an error entry
// without affecting the other files.
type GrepTool struct {
	fsAccess *config.FilesystemAccess
}

func (t *GrepTool) Descriptor() Descriptor {
	return Descriptor{
		Name:        "grep",
		Description: "Search for a regex pattern in one or more files.",
		Parameters: &Schema{
			Type: "object",
			Properties: map[string]*Schema{
				"query": {Type: "string", Description: "The regex pattern to search for."},
				"paths": {
					Type:        "array",
					Description: "A list of file paths to search in.",
					Items:       &Schema{Type: "string"},
				},
				"case_sensitive": {Type: "boolean", Description: "Whether the search is case-sensitive. Defaults to true."},
			},
			Required: []string{"query", "paths"},
		},
	}
}

func (t *GrepTool) Execute(ctx context.Context, args map[string]interface{}) (map[string]interface{}, error) {
	query, err := stringArg(args, "query")
	if err != nil {
		return nil, err
	}
	paths, err := stringListArg(args, "paths")
	if err != nil {
		return nil, err
	}
	caseSensitive, err := optionalBoolArg(args, "case_sensitive", true)
	if err != nil {
		return nil, err
	}

	if !caseSensitive {
		query = "(?i)" + query
	}
	re, err := regexp.Compile(query)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid regex pattern '%s'", query)
	}

	results := make(map[string]interface{}, len(paths))
	for _, path := range paths {
		matches, err := t.grepFile(re, path)
		if err != nil {
			results[path] = map[string]interface{}{"error": err.Error()}
			continue
		}
		if len(matches) == 0 {
			results[path] = "No matches found."
			continue
		}
		results[path] = matches
	}
	return results, nil
}

func (t *GrepTool) grepFile(re *regexp.Regexp, path string) ([]string, error) {
	hidden, err := isPathRestricted(path, t.fsAccess.Hidden)
	if err != nil {
		return nil, err
	}
	if hidden {
		return nil, fmt.Errorf("access denied: path '%s' is hidden", path)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var matches []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		if re.MatchString(line) {
			matches = append(matches, fmt.Sprintf("%d: %s", lineNo, line))
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return matches, nil
}
