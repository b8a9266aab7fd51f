package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/tidwall/jsonc"

	"github.com/clio-agent/clio/pkg/types"
)

// Load loads configuration from multiple sources, lowest to highest
// precedence:
//  1. Global config (~/.opencode/ — TypeScript compatible)
//  2. Global config (~/.config/opencode/ — XDG compatible)
//  3. Project configs, discovered by walking up from directory to the
//     nearest .git boundary or filesystem root, applied outermost first
//  4. OPENCODE_CONFIG (explicit file path)
//  5. OPENCODE_CONFIG_CONTENT (inline JSON)
//  6. Environment variable overrides
func Load(directory string) (*types.Config, error) {
	config := &types.Config{
		Provider: make(map[string]types.ProviderConfig),
		Agent:    make(map[string]types.AgentConfig),
	}

	globalPath := globalConfigDir()
	loadConfigFile(filepath.Join(globalPath, "opencode.json"), config)
	loadConfigFile(filepath.Join(globalPath, "opencode.jsonc"), config)

	xdgPath := GetPaths().Config
	loadConfigFile(filepath.Join(xdgPath, "opencode.json"), config)
	loadConfigFile(filepath.Join(xdgPath, "opencode.jsonc"), config)

	for _, dir := range projectDirs(directory) {
		loadConfigFile(filepath.Join(dir, "opencode.json"), config)
		loadConfigFile(filepath.Join(dir, "opencode.jsonc"), config)
		if filepath.Join(dir, ".opencode") == filepath.Clean(globalPath) {
			continue // already applied as the global config
		}
		loadConfigFile(filepath.Join(dir, ".opencode", "opencode.json"), config)
		loadConfigFile(filepath.Join(dir, ".opencode", "opencode.jsonc"), config)
	}

	if explicit := os.Getenv("OPENCODE_CONFIG"); explicit != "" {
		loadConfigFile(explicit, config)
	}

	if inline := os.Getenv("OPENCODE_CONFIG_CONTENT"); inline != "" {
		applyConfigBytes([]byte(inline), ".", config)
	}

	applyEnvOverrides(config)

	return config, nil
}

// globalConfigDir returns the TypeScript-compatible global config
// directory, honoring OPENCODE_CONFIG_DIR.
func globalConfigDir() string {
	if dir := os.Getenv("OPENCODE_CONFIG_DIR"); dir != "" {
		return dir
	}
	return filepath.Join(os.Getenv("HOME"), ".opencode")
}

// projectDirs walks up from directory to the repository root (a .git
// boundary) or the filesystem root, returning the chain outermost-first so
// the caller can apply configs with the nearest directory winning.
func projectDirs(directory string) []string {
	if directory == "" {
		return nil
	}

	abs, err := filepath.Abs(directory)
	if err != nil {
		abs = directory
	}

	var chain []string
	dir := abs
	for {
		chain = append(chain, dir)

		if _, err := os.Stat(filepath.Join(dir, ".git")); err == nil {
			break
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	// Reverse so the outermost ancestor is applied first.
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain
}

// loadConfigFile reads, interpolates, and merges a single config file into
// config. A missing file returns the read error and leaves config
// unchanged; Load ignores that error and moves on to the next source.
func loadConfigFile(path string, config *types.Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	if strings.HasSuffix(path, ".jsonc") {
		data = jsonc.ToJSON(data)
	} else {
		data = stripJSONComments(data)
	}

	return applyConfigBytes(data, filepath.Dir(path), config)
}

// applyConfigBytes interpolates {env:}/{file:} placeholders, unmarshals the
// result, and merges it into config.
func applyConfigBytes(data []byte, baseDir string, config *types.Config) error {
	data = interpolate(data, baseDir)

	var fileConfig types.Config
	if err := json.Unmarshal(data, &fileConfig); err != nil {
		return err
	}

	mergeConfig(config, &fileConfig)
	return nil
}

var (
	envPlaceholder  = regexp.MustCompile(`\{env:([A-Za-z_][A-Za-z0-9_]*)\}`)
	filePlaceholder = regexp.MustCompile(`\{file:([^}]+)\}`)
)

// interpolate expands {env:VAR} and {file:path} placeholders found inside
// string values. {file:path} paths are resolved relative to baseDir, with
// ~ expanded to the user's home directory; a missing file leaves the
// placeholder untouched.
func interpolate(data []byte, baseDir string) []byte {
	data = envPlaceholder.ReplaceAllFunc(data, func(match []byte) []byte {
		name := envPlaceholder.FindSubmatch(match)[1]
		return []byte(os.Getenv(string(name)))
	})

	data = filePlaceholder.ReplaceAllFunc(data, func(match []byte) []byte {
		path := string(filePlaceholder.FindSubmatch(match)[1])
		resolved := path
		switch {
		case strings.HasPrefix(path, "~"):
			resolved = filepath.Join(os.Getenv("HOME"), strings.TrimPrefix(path, "~"))
		case !filepath.IsAbs(path):
			resolved = filepath.Join(baseDir, path)
		}

		content, err := os.ReadFile(resolved)
		if err != nil {
			return match
		}

		escaped, err := json.Marshal(strings.TrimRight(string(content), "\n"))
		if err != nil {
			return match
		}
		// Strip the surrounding quotes json.Marshal added; the
		// placeholder already sits inside a quoted JSON string.
		return escaped[1 : len(escaped)-1]
	})

	return data
}

// stripJSONComments removes // and /* */ comments from a .json file that
// was written with JSONC-style comments despite its extension.
func stripJSONComments(data []byte) []byte {
	return jsonc.ToJSON(data)
}

// mergeConfig merges source into target, field by field: scalars and
// pointers from source win when set, maps are merged key-by-key with
// source winning on conflicts.
func mergeConfig(target, source *types.Config) {
	if source.Schema != "" {
		target.Schema = source.Schema
	}
	if source.Username != "" {
		target.Username = source.Username
	}
	if source.Model != "" {
		target.Model = source.Model
	}
	if source.SmallModel != "" {
		target.SmallModel = source.SmallModel
	}
	if source.Theme != "" {
		target.Theme = source.Theme
	}
	if source.Share != "" {
		target.Share = source.Share
	}

	if len(source.Instructions) > 0 {
		target.Instructions = append(target.Instructions, source.Instructions...)
	}

	mergeBoolMap(&target.Tools, source.Tools)
	mergeStringMap(&target.PromptVariables, source.PromptVariables)

	if source.Provider != nil {
		if target.Provider == nil {
			target.Provider = make(map[string]types.ProviderConfig)
		}
		for k, v := range source.Provider {
			target.Provider[k] = v
		}
	}

	if source.Agent != nil {
		if target.Agent == nil {
			target.Agent = make(map[string]types.AgentConfig)
		}
		for k, v := range source.Agent {
			target.Agent[k] = v
		}
	}

	if source.Command != nil {
		if target.Command == nil {
			target.Command = make(map[string]types.CommandConfig)
		}
		for k, v := range source.Command {
			target.Command[k] = v
		}
	}

	if source.MCP != nil {
		if target.MCP == nil {
			target.MCP = make(map[string]types.MCPConfig)
		}
		for k, v := range source.MCP {
			target.MCP[k] = v
		}
	}

	if source.Formatter != nil {
		if target.Formatter == nil {
			target.Formatter = make(map[string]types.FormatterConfig)
		}
		for k, v := range source.Formatter {
			target.Formatter[k] = v
		}
	}

	if source.Permission != nil {
		target.Permission = source.Permission
	}
	if source.LSP != nil {
		target.LSP = source.LSP
	}
	if source.Watcher != nil {
		target.Watcher = source.Watcher
	}
	if source.Experimental != nil {
		target.Experimental = source.Experimental
	}

	if source.Redaction.Level != "" {
		target.Redaction = source.Redaction
	}
	if source.Context != (types.ContextConfig{}) {
		target.Context = source.Context
	}
	if source.Broker != (types.BrokerConfig{}) {
		target.Broker = source.Broker
	}
}

func mergeBoolMap(target *map[string]bool, source map[string]bool) {
	if source == nil {
		return
	}
	if *target == nil {
		*target = make(map[string]bool)
	}
	for k, v := range source {
		(*target)[k] = v
	}
}

func mergeStringMap(target *map[string]string, source map[string]string) {
	if source == nil {
		return
	}
	if *target == nil {
		*target = make(map[string]string)
	}
	for k, v := range source {
		(*target)[k] = v
	}
}

// applyEnvOverrides applies the environment variables that take precedence
// over every file source.
func applyEnvOverrides(config *types.Config) {
	providerEnvMap := map[string]string{
		"anthropic": "ANTHROPIC_API_KEY",
		"openai":    "OPENAI_API_KEY",
		"google":    "GOOGLE_API_KEY",
		"bedrock":   "AWS_ACCESS_KEY_ID",
	}

	for provider, envVar := range providerEnvMap {
		if apiKey := os.Getenv(envVar); apiKey != "" {
			if config.Provider == nil {
				config.Provider = make(map[string]types.ProviderConfig)
			}
			p := config.Provider[provider]
			if p.APIKey == "" {
				p.APIKey = apiKey
				config.Provider[provider] = p
			}
		}
	}

	if model := os.Getenv("OPENCODE_MODEL"); model != "" {
		config.Model = model
	}

	if smallModel := os.Getenv("OPENCODE_SMALL_MODEL"); smallModel != "" {
		config.SmallModel = smallModel
	}

	if permJSON := os.Getenv("OPENCODE_PERMISSION"); permJSON != "" {
		var perm types.PermissionConfig
		if err := json.Unmarshal([]byte(permJSON), &perm); err == nil {
			config.Permission = &perm
		}
	}
}

// Save writes config as indented JSON to path, creating parent directories
// as needed.
func Save(config *types.Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}
