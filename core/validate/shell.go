// Package validate rejects unsafe free-form shell strings before they can
// reach the spawner.
package validate

import (
	"fmt"
	"strings"
)

// dangerous holds the shell metacharacters that are never allowed in a
// free-form command string. Order matters only for which pattern gets
// named first in the error message.
var dangerous = []string{"||", "&&", "|", ";", "$(", "`", ">", "<", "&"}

// ShellCommandError reports which disallowed pattern triggered rejection.
type ShellCommandError struct {
	Command string
	Pattern string
}

func (e *ShellCommandError) Error() string {
	return fmt.Sprintf("unsafe shell command %q: contains %q; use a pixi task instead", e.Command, e.Pattern)
}

// ShellCommand rejects a command string containing any of |, ;, &&, ||,
// $(, a backtick, >, <, or &. "||" and "&&" are checked before "|" and "&"
// so that, e.g., "&&" is reported rather than the "&" it also contains.
func ShellCommand(command string) error {
	for _, pattern := range dangerous {
		if strings.Contains(command, pattern) {
			return &ShellCommandError{Command: command, Pattern: pattern}
		}
	}
	return nil
}
