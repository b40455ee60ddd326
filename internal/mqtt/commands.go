package mqtt

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Commands accepted on <prefix>/commands/<name>.
const (
	CmdRun          = "run"
	CmdValidate     = "validate"
	CmdProcess      = "process"
	CmdDebug        = "debug"
	CmdLoadTemplate = "load_template"
)

var knownCommands = []string{CmdRun, CmdValidate, CmdProcess, CmdDebug, CmdLoadTemplate}

// CommandPayload is a v1 editor command. The command name comes from the
// topic; an explicit "command" field must agree with it.
type CommandPayload struct {
	Version   int             `json:"version"`
	Command   string          `json:"command"`
	RequestID string          `json:"request_id,omitempty"`
	BlockID   string          `json:"block_id,omitempty"`
	Enabled   *bool           `json:"enabled,omitempty"`
	Template  json.RawMessage `json:"template,omitempty"`
}

// CommandResult is published on <prefix>/results/<name>.
type CommandResult struct {
	RequestID string      `json:"request_id,omitempty"`
	Command   string      `json:"command"`
	OK        bool        `json:"ok"`
	Error     string      `json:"error,omitempty"`
	Data      interface{} `json:"data,omitempty"`
}

// ParseCommand parses a command payload for the named command. An empty
// payload is a bare command.
func ParseCommand(name string, data []byte) (*CommandPayload, error) {
	payload := CommandPayload{Version: 1}
	if len(strings.TrimSpace(string(data))) > 0 {
		if err := json.Unmarshal(data, &payload); err != nil {
			return nil, fmt.Errorf("invalid command JSON: %w", err)
		}
	}

	if payload.Version != 1 {
		return nil, fmt.Errorf("unsupported command version: %d", payload.Version)
	}
	if payload.Command != "" && payload.Command != name {
		return nil, fmt.Errorf("command %q does not match topic %q", payload.Command, name)
	}
	payload.Command = name

	if !containsString(knownCommands, name) {
		return nil, fmt.Errorf("unknown command: %s", name)
	}

	switch name {
	case CmdProcess:
		if payload.BlockID == "" {
			return nil, fmt.Errorf("block_id is required")
		}
	case CmdDebug:
		if payload.Enabled == nil {
			return nil, fmt.Errorf("enabled is required")
		}
	case CmdLoadTemplate:
		if len(payload.Template) == 0 {
			return nil, fmt.Errorf("template is required")
		}
	}

	return &payload, nil
}

func containsString(slice []string, val string) bool {
	for _, s := range slice {
		if s == val {
			return true
		}
	}
	return false
}
