package agentcfg

// BuiltIn returns CLIO's default agent profiles, adapted from the teacher's
// `agent.BuiltInAgents` (build/plan/general/explore) onto operation-key glob
// patterns instead of bare bash-command prefixes.
func BuiltIn() map[string]*Profile {
	return map[string]*Profile{
		"build": {
			Name:        "build",
			Description: "primary agent for executing tasks and making changes",
			Mode:        ModePrimary,
			BuiltIn:     true,
			Tools:       map[string]bool{"*": true},
			Permission: map[string]Action{
				"*": ActionAllow,
			},
			DoomLoopAction: ActionAsk,
		},
		"plan": {
			Name:        "plan",
			Description: "planning agent for analysis and exploration without making changes",
			Mode:        ModePrimary,
			BuiltIn:     true,
			Tools: map[string]bool{
				"read_file": true, "list_dir": true, "glob": true, "grep": true,
				"bash": true, "write_file": false, "edit_file": false,
			},
			Permission: map[string]Action{
				"bash:git status*": ActionAllow,
				"bash:git diff*":   ActionAllow,
				"bash:git log*":    ActionAllow,
				"bash:*":           ActionDeny,
				"write_file:**":    ActionDeny,
				"edit_file:**":     ActionDeny,
				"*":                ActionAsk,
			},
			DoomLoopAction: ActionDeny,
		},
		"general": {
			Name:        "general",
			Description: "general-purpose subagent for searches and exploration",
			Mode:        ModeSubagent,
			BuiltIn:     true,
			Tools: map[string]bool{
				"read_file": true, "list_dir": true, "glob": true, "grep": true,
				"web_fetch": true, "bash": false, "write_file": false, "edit_file": false,
			},
			Permission: map[string]Action{
				"bash:*":        ActionDeny,
				"write_file:**": ActionDeny,
				"edit_file:**":  ActionDeny,
				"*":             ActionAllow,
			},
			DoomLoopAction: ActionDeny,
		},
		"explore": {
			Name:        "explore",
			Description: "fast agent specialized for codebase exploration",
			Mode:        ModeSubagent,
			BuiltIn:     true,
			Tools: map[string]bool{
				"read_file": true, "list_dir": true, "glob": true, "grep": true,
				"bash": false, "write_file": false, "edit_file": false, "web_fetch": false,
			},
			Permission: map[string]Action{
				"bash:*":        ActionDeny,
				"write_file:**": ActionDeny,
				"edit_file:**":  ActionDeny,
				"*":             ActionAllow,
			},
			DoomLoopAction: ActionDeny,
		},
	}
}
