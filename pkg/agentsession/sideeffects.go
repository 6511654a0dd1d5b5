package agentsession

import (
	"encoding/json"
	"fmt"
)

const (
	maxStoredCallChars = 4000
	elisionMarker      = "\n... (elided, %d chars omitted) ...\n"
)

// writeToolNames, readToolNames, deleteToolNames, and shellToolNames
// name the worker's tool surface this package knows how to classify
// (spec §4.7 step 4). Exposed as data, matching the word-list-as-
// configuration convention used for the CLI driver's stderr classifier.
var (
	writeToolNames  = map[string]bool{"write_file": true, "save_file": true, "create_file": true}
	readToolNames   = map[string]bool{"read_file": true, "view_file": true}
	deleteToolNames = map[string]bool{"delete_file": true, "remove_file": true}
	shellToolNames  = map[string]bool{"run_shell_command": true, "shell": true, "execute": true, "bash": true}
)

// toolPath extracts a "path" or "file" field from a tool's JSON input.
func toolPath(input json.RawMessage) string {
	var v struct {
		Path string `json:"path"`
		File string `json:"file"`
	}
	if err := json.Unmarshal(input, &v); err != nil {
		return ""
	}
	if v.Path != "" {
		return v.Path
	}
	return v.File
}

func toolCommand(input json.RawMessage) string {
	var v struct {
		Command string `json:"command"`
	}
	if err := json.Unmarshal(input, &v); err != nil {
		return ""
	}
	return v.Command
}

// applyToolUse classifies one tool_use event into the session's
// SideEffects (spec §4.7 step 4). Shell calls are recorded without an
// exit code (HasExit false) until recordShellExit attaches one; deletes
// are classified immediately, without waiting for tool_result
// confirmation (see DESIGN.md).
func (eff *SideEffects) applyToolUse(name string, input json.RawMessage) {
	switch {
	case writeToolNames[name]:
		path := toolPath(input)
		if path == "" {
			return
		}
		if contains(eff.Created, path) || contains(eff.Modified, path) {
			return
		}
		if contains(eff.Read, path) {
			eff.Modified = append(eff.Modified, path)
		} else {
			eff.Created = append(eff.Created, path)
		}
	case readToolNames[name]:
		if path := toolPath(input); path != "" && !contains(eff.Read, path) {
			eff.Read = append(eff.Read, path)
		}
	case deleteToolNames[name]:
		if path := toolPath(input); path != "" && !contains(eff.Deleted, path) {
			eff.Deleted = append(eff.Deleted, path)
		}
	case shellToolNames[name]:
		if cmd := toolCommand(input); cmd != "" {
			eff.Shell = append(eff.Shell, ShellCall{Command: cmd})
		}
	}
}

// recordShellExit attaches an exit code to the most recent shell call
// matching command, once its tool_result arrives.
func (eff *SideEffects) recordShellExit(command string, exitCode int) {
	for i := len(eff.Shell) - 1; i >= 0; i-- {
		if eff.Shell[i].Command == command && !eff.Shell[i].HasExit {
			eff.Shell[i].ExitCode = exitCode
			eff.Shell[i].HasExit = true
			return
		}
	}
}

func contains(set []string, v string) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}

// truncateMid keeps the head and tail of s and elides the middle, to
// bound memory for large call inputs/outputs (spec §4.7 step 4).
func truncateMid(s string) string {
	if len(s) <= maxStoredCallChars {
		return s
	}
	half := maxStoredCallChars / 2
	elided := len(s) - maxStoredCallChars
	return s[:half] + fmt.Sprintf(elisionMarker, elided) + s[len(s)-half:]
}
