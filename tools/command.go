package tools

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"

	"github.com/duneagent/dune/errors"
)

// ShellTool runs a shell command and captures its output. A non-zero exit
// is reported in the result payload, not raised as an execution error, so
// the model can read the failure and adapt.
type ShellTool struct {
	allowedCommands []string
}

func (t *ShellTool) Descriptor() Descriptor {
	desc := "Execute a shell command and capture stdout/stderr."
	if len(t.allowedCommands) > 0 {
		desc += " Allowed command patterns:\n"
		for _, cmd := range t.allowedCommands {
			desc += fmt.Sprintf("- %s\n", cmd)
		}
	}
	return Descriptor{
		Name:        "shell",
		Description: desc,
		Parameters: &Schema{
			Type: "object",
			Properties: map[string]*Schema{
				"command": {Type: "string", Description: "The shell command to execute."},
			},
			Required: []string{"command"},
		},
	}
}

func (t *ShellTool) Execute(ctx context.Context, args map[string]interface{}) (map[string]interface{}, error) {
	command, err := stringArg(args, "command")
	if err != nil {
		return nil, err
	}

	allowed, err := isCommandAllowed(command, t.allowedCommands)
	if err != nil {
		return nil, err
	}
	if !allowed {
		return nil, errors.New("command '%s' is not in the list of allowed commands", command)
	}

	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	result := map[string]interface{}{
		"stdout": stdout.String(),
		"stderr": stderr.String(),
	}
	if runErr != nil {
		if exitErr, ok := runErr.(*exec.ExitError); ok {
			result["error"] = fmt.Sprintf("command failed with exit code %d", exitErr.ExitCode())
			return result, nil
		}
		return nil, errors.Wrapf(runErr, "failed to start command '%s'", command)
	}
	return result, nil
}
