package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/tidwall/jsonc"

	"github.com/conduit-ai/conduit/internal/mcp"
)

// ProviderConfig holds the credentials and defaults for one LLM backend.
type ProviderConfig struct {
	APIKey    string `json:"api_key,omitempty"`
	BaseURL   string `json:"base_url,omitempty"`
	Model     string `json:"model,omitempty"`
	MaxTokens int    `json:"max_tokens,omitempty"`
	Disabled  bool   `json:"disabled,omitempty"`
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Host string `json:"host,omitempty"`
	Port int    `json:"port,omitempty"`
}

// CodeConfig holds code-interpreter settings.
type CodeConfig struct {
	Enabled bool   `json:"enabled,omitempty"`
	Gateway string `json:"gateway,omitempty"`
	// TimeoutSeconds bounds one execution; expiry is reported as output.
	TimeoutSeconds int `json:"timeout_seconds,omitempty"`
}

// WebFetchConfig restricts the web_fetch tool.
type WebFetchConfig struct {
	// AllowedHosts are glob patterns; empty means any host.
	AllowedHosts []string `json:"allowed_hosts,omitempty"`
}

// Config is the merged runtime configuration.
type Config struct {
	Model      string `json:"model,omitempty"`
	TaskModel  string `json:"task_model,omitempty"`
	DataDir    string `json:"data_dir,omitempty"`
	TagsFile   string `json:"tags_file,omitempty"`
	Policy     string `json:"policy,omitempty"`
	EnableTags bool   `json:"enable_tags,omitempty"`

	// TagSets restricts generated chat tags to this list when non-empty.
	TagSets []string `json:"tag_sets,omitempty"`

	// DirectToolTimeoutSeconds bounds how long a session waits for a
	// client-executed tool result.
	DirectToolTimeoutSeconds int `json:"direct_tool_timeout_seconds,omitempty"`

	Provider map[string]ProviderConfig   `json:"provider,omitempty"`
	Server   *ServerConfig               `json:"server,omitempty"`
	Code     *CodeConfig                 `json:"code,omitempty"`
	MCP      map[string]mcp.ServerConfig `json:"mcp,omitempty"`
	WebFetch *WebFetchConfig             `json:"web_fetch,omitempty"`

	LogLevel  string `json:"log_level,omitempty"`
	LogToFile bool   `json:"log_to_file,omitempty"`
}

// CodeTimeout returns the configured execution timeout.
func (c *Config) CodeTimeout() time.Duration {
	if c.Code == nil || c.Code.TimeoutSeconds <= 0 {
		return 60 * time.Second
	}
	return time.Duration(c.Code.TimeoutSeconds) * time.Second
}

// DirectToolTimeout returns the configured direct-tool wait.
func (c *Config) DirectToolTimeout() time.Duration {
	if c.DirectToolTimeoutSeconds <= 0 {
		return 60 * time.Second
	}
	return time.Duration(c.DirectToolTimeoutSeconds) * time.Second
}

// Load merges configuration from multiple sources, later sources winning:
//  1. Global config (~/.config/conduit/conduit.json or .jsonc)
//  2. Project config (<directory>/conduit.json or .jsonc)
//  3. CONDUIT_CONFIG file
//  4. CONDUIT_CONFIG_CONTENT inline JSON
//  5. Environment variables
func Load(directory string) (*Config, error) {
	config := &Config{
		Provider: make(map[string]ProviderConfig),
	}

	loaded := make(map[string]bool)
	loadOnce := func(path, baseDir string) {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return
		}
		if loaded[absPath] {
			return
		}
		if loadConfigFile(path, config, baseDir) == nil {
			loaded[absPath] = true
		}
	}

	globalPath := GetPaths().Config
	loadOnce(filepath.Join(globalPath, "conduit.json"), globalPath)
	loadOnce(filepath.Join(globalPath, "conduit.jsonc"), globalPath)

	if directory != "" {
		loadOnce(filepath.Join(directory, "conduit.json"), directory)
		loadOnce(filepath.Join(directory, "conduit.jsonc"), directory)
	}

	if configPath := os.Getenv("CONDUIT_CONFIG"); configPath != "" {
		loadOnce(configPath, filepath.Dir(configPath))
	}

	if content := os.Getenv("CONDUIT_CONFIG_CONTENT"); content != "" {
		var inline Config
		if err := json.Unmarshal([]byte(content), &inline); err == nil {
			mergeConfig(config, &inline)
		}
	}

	applyEnvOverrides(config)
	applyDefaults(config)

	return config, nil
}

// loadConfigFile loads a single config file with interpolation support.
func loadConfigFile(path string, config *Config, baseDir string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	data = jsonc.ToJSON(data)
	data = interpolate(data, baseDir)

	var fileConfig Config
	if err := json.Unmarshal(data, &fileConfig); err != nil {
		return err
	}

	mergeConfig(config, &fileConfig)
	return nil
}

// interpolate processes {env:VAR} and {file:path} placeholders.
func interpolate(data []byte, baseDir string) []byte {
	str := string(data)

	envPattern := regexp.MustCompile(`\{env:([^}]+)\}`)
	str = envPattern.ReplaceAllStringFunc(str, func(match string) string {
		varName := envPattern.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})

	filePattern := regexp.MustCompile(`\{file:([^}]+)\}`)
	str = filePattern.ReplaceAllStringFunc(str, func(match string) string {
		filePath := filePattern.FindStringSubmatch(match)[1]

		if strings.HasPrefix(filePath, "~/") {
			filePath = filepath.Join(os.Getenv("HOME"), filePath[2:])
		} else if !filepath.IsAbs(filePath) {
			filePath = filepath.Join(baseDir, filePath)
		}

		content, err := os.ReadFile(filePath)
		if err != nil {
			return match
		}

		escaped := strings.ReplaceAll(strings.TrimSpace(string(content)), "\\", "\\\\")
		escaped = strings.ReplaceAll(escaped, "\"", "\\\"")
		escaped = strings.ReplaceAll(escaped, "\n", "\\n")
		escaped = strings.ReplaceAll(escaped, "\r", "\\r")
		escaped = strings.ReplaceAll(escaped, "\t", "\\t")
		return escaped
	})

	return []byte(str)
}

// mergeConfig merges source into target, source fields winning when set.
func mergeConfig(target, source *Config) {
	if source.Model != "" {
		target.Model = source.Model
	}
	if source.TaskModel != "" {
		target.TaskModel = source.TaskModel
	}
	if source.DataDir != "" {
		target.DataDir = source.DataDir
	}
	if source.TagsFile != "" {
		target.TagsFile = source.TagsFile
	}
	if source.Policy != "" {
		target.Policy = source.Policy
	}
	if source.EnableTags {
		target.EnableTags = true
	}
	if len(source.TagSets) > 0 {
		target.TagSets = source.TagSets
	}
	if source.DirectToolTimeoutSeconds > 0 {
		target.DirectToolTimeoutSeconds = source.DirectToolTimeoutSeconds
	}
	if source.LogLevel != "" {
		target.LogLevel = source.LogLevel
	}
	if source.LogToFile {
		target.LogToFile = true
	}

	if source.Provider != nil {
		if target.Provider == nil {
			target.Provider = make(map[string]ProviderConfig)
		}
		for k, v := range source.Provider {
			target.Provider[k] = v
		}
	}
	if source.Server != nil {
		target.Server = source.Server
	}
	if source.Code != nil {
		target.Code = source.Code
	}
	if source.MCP != nil {
		if target.MCP == nil {
			target.MCP = make(map[string]mcp.ServerConfig)
		}
		for k, v := range source.MCP {
			target.MCP[k] = v
		}
	}
	if source.WebFetch != nil {
		target.WebFetch = source.WebFetch
	}
}

// applyEnvOverrides applies environment variables, the highest-priority
// source.
func applyEnvOverrides(config *Config) {
	providerEnvMap := map[string]string{
		"anthropic": "ANTHROPIC_API_KEY",
		"openai":    "OPENAI_API_KEY",
		"ark":       "ARK_API_KEY",
	}

	for providerID, envVar := range providerEnvMap {
		apiKey := os.Getenv(envVar)
		if apiKey == "" {
			continue
		}
		p := config.Provider[providerID]
		if p.APIKey == "" {
			p.APIKey = apiKey
			config.Provider[providerID] = p
		}
	}

	if model := os.Getenv("CONDUIT_MODEL"); model != "" {
		config.Model = model
	}
	if model := os.Getenv("CONDUIT_TASK_MODEL"); model != "" {
		config.TaskModel = model
	}
	if dir := os.Getenv("CONDUIT_DATA_DIR"); dir != "" {
		config.DataDir = dir
	}
	if gateway := os.Getenv("CONDUIT_CODE_GATEWAY"); gateway != "" {
		if config.Code == nil {
			config.Code = &CodeConfig{}
		}
		config.Code.Gateway = gateway
		config.Code.Enabled = true
	}
	if level := os.Getenv("CONDUIT_LOG_LEVEL"); level != "" {
		config.LogLevel = level
	}
}

func applyDefaults(config *Config) {
	if config.DataDir == "" {
		config.DataDir = GetPaths().Data
	}
	if config.Policy == "" {
		config.Policy = "realtime"
	}
	if config.Server == nil {
		config.Server = &ServerConfig{}
	}
	if config.Server.Host == "" {
		config.Server.Host = "127.0.0.1"
	}
	if config.Server.Port == 0 {
		config.Server.Port = 4096
	}
	if config.TaskModel == "" {
		config.TaskModel = config.Model
	}
}

// Save writes the configuration to a file.
func Save(config *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
