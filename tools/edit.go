package tools

import (
	"context"
	"os"
	"strings"

	"github.com/duneagent/dune/config"
	"github.com/duneagent/dune/errors"
)

// EditTool performs a literal search-and-replace on a file. Only the first
// occurrence is replaced; the file is left byte-for-byte unchanged when the
// search text is absent or the file is missing.
type EditTool struct {
	fsAccess *config.FilesystemAccess
}

func (t *EditTool) Descriptor() Descriptor {
	return Descriptor{
		Name: "edit",
		Description: "Search for a specific piece of text in a file and replace its first occurrence. " +
			"Always use read_file first to see the exact current content; search_text must match " +
			"whitespace and indentation precisely.",
		Parameters: &Schema{
			Type: "object",
			Properties: map[string]*Schema{
				"path": {Type: "string", Description: "The path to the file to edit."},
				"search_text": {
					Type: "string",
					Description: "The exact literal text to replace, including several lines of " +
						"context before and after the target text.",
				},
				"replace_text": {Type: "string", Description: "The exact literal text to replace search_text with."},
			},
			Required: []string{"path", "search_text", "replace_text"},
		},
	}
}

func (t *EditTool) Execute(ctx context.Context, args map[string]interface{}) (map[string]interface{}, error) {
	path, searchText, replaceText, err := editArgs(args)
	if err != nil {
		return nil, err
	}

	if err := t.checkWritable(path); err != nil {
		return nil, err
	}

	newContent, occurrences, err := ProposeEdit(path, searchText, replaceText)
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(path, []byte(newContent), 0644); err != nil {
		return nil, errors.Wrapf(err, "failed to write edited file '%s'", path)
	}
	return map[string]interface{}{
		"success":     true,
		"path":        path,
		"occurrences": occurrences,
	}, nil
}

func (t *EditTool) checkWritable(path string) error {
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

// ProposeEdit computes the post-edit content of a file without writing it.
// The approval gate uses it to render a diff preview before the edit runs.
// It returns the new content and how many occurrences of the search text
// exist in the original.
func ProposeEdit(path, searchText, replaceText string) (string, int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", 0, errors.Wrapf(err, "file not found at '%s'", path)
	}
	original := string(data)
	occurrences := strings.Count(original, searchText)
	if occurrences == 0 {
		return "", 0, errors.New("search text not found in '%s'; use read_file to see the exact content", path)
	}
	// Replacing only the first occurrence is the safer default.
	return strings.Replace(original, searchText, replaceText, 1), occurrences, nil
}

func editArgs(args map[string]interface{}) (path, searchText, replaceText string, err error) {
	if path, err = stringArg(args, "path"); err != nil {
		return
	}
	if searchText, err = stringArg(args, "search_text"); err != nil {
		return
	}
	replaceText, err = stringArg(args, "replace_text")
	return
}

// EditArgs extracts and validates the edit tool's argument triple. The agent
// uses it when building the diff preview for the approval prompt.
func EditArgs(args map[string]interface{}) (path, searchText, replaceText string, err error) {
	return editArgs(args)
}
