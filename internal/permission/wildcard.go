package permission

import (
	"strings"
)

// MatchBashPermission finds the configured action for cmd, trying the
// most specific pattern first.
func MatchBashPermission(cmd BashCommand, permissions map[string]PermissionAction) PermissionAction {
	cmdWithSubcommand := cmd.Name
	if cmd.Subcommand != "" {
		cmdWithSubcommand = cmd.Name + " " + cmd.Subcommand
	}

	if cmd.Subcommand != "" {
		if action, ok := permissions[cmdWithSubcommand+" *"]; ok {
			return action
		}
	}

	if action, ok := permissions[cmd.Name+" *"]; ok {
		return action
	}

	if action, ok := permissions[cmd.Name]; ok {
		return action
	}

	if action, ok := permissions["*"]; ok {
		return action
	}

	return ActionAsk
}

// MatchPattern reports whether cmd matches pattern, where pattern is
// "command subcommand *", "command *", or "*".
func MatchPattern(pattern string, cmd BashCommand) bool {
	parts := strings.Split(pattern, " ")
	if len(parts) == 0 {
		return false
	}

	if parts[0] == "*" && len(parts) == 1 {
		return true
	}

	if parts[0] != "*" && parts[0] != cmd.Name {
		return false
	}

	if len(parts) == 1 {
		return cmd.Name == parts[0] && len(cmd.Args) == 0
	}

	if parts[len(parts)-1] == "*" {
		for i := 1; i < len(parts)-1; i++ {
			argIndex := i - 1
			if argIndex >= len(cmd.Args) {
				return false
			}
			if parts[i] != "*" && parts[i] != cmd.Args[argIndex] {
				return false
			}
		}
		return true
	}

	if len(parts)-1 != len(cmd.Args) {
		return false
	}
	for i := 1; i < len(parts); i++ {
		if parts[i] != cmd.Args[i-1] {
			return false
		}
	}
	return true
}

// BuildPattern derives a permission pattern for cmd, e.g. "git commit -m
// msg" -> "git commit *".
func BuildPattern(cmd BashCommand) string {
	if cmd.Subcommand != "" {
		return cmd.Name + " " + cmd.Subcommand + " *"
	}
	return cmd.Name + " *"
}

// BuildPatterns derives deduplicated patterns for a parsed command list,
// skipping "cd" which the sandbox handles separately.
func BuildPatterns(commands []BashCommand) []string {
	seen := make(map[string]bool)
	var patterns []string

	for _, cmd := range commands {
		if cmd.Name == "cd" {
			continue
		}

		pattern := BuildPattern(cmd)
		if !seen[pattern] {
			seen[pattern] = true
			patterns = append(patterns, pattern)
		}
	}

	return patterns
}
