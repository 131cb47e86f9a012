package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/ingla/pram/keyio"
	"github.com/ingla/pram/radix"
	"github.com/ingla/pram/team"
)

// Defaults applied when a field is missing from the file
const (
	DefaultNumDigits   = 2
	DefaultPort        = "5044"
	DefaultReadTimeout = 5 * time.Second
	DefaultBatchMax    = 1000000
)

type SortConfig struct {
	NumDigits  int    `toml:"numDigits"`
	TeamSize   int    `toml:"teamSize"`
	Input      string `toml:"input"`
	Output     string `toml:"output"`
	Format     string `toml:"format"`
	Sequential bool   `toml:"sequential"`
}

type InspectConfig struct {
	PlotPath string `toml:"plotPath"`
	TUI      bool   `toml:"tui"`
}

type ServeConfig struct {
	Port        string        `toml:"port"`
	ReadTimeout time.Duration `toml:"readTimeout"`
	BatchMax    int           `toml:"batchMax"`
	Output      string        `toml:"output"`
}

type Config struct {
	Sort    *SortConfig    `toml:"sort"`
	Inspect *InspectConfig `toml:"inspect"`
	Serve   *ServeConfig   `toml:"serve"`
}

func LoadConfig(configPath string) (*Config, error) {
	configData, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var rawConfig map[string]any
	if _, err := toml.Decode(string(configData), &rawConfig); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	config := &Config{}
	for key, value := range rawConfig {
		section, ok := value.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%q must be a table", key)
		}
		switch key {
		case "sort":
			config.Sort = parseSortConfig(section)
		case "inspect":
			config.Inspect = parseInspectConfig(section)
		case "serve":
			config.Serve, err = parseServeConfig(section)
			if err != nil {
				return nil, fmt.Errorf("parsing serve config: %w", err)
			}
		default:
			return nil, fmt.Errorf("unknown config section %q", key)
		}
	}

	if config.Sort == nil {
		config.Sort = parseSortConfig(nil)
	}
	if config.Inspect == nil {
		config.Inspect = &InspectConfig{}
	}
	if config.Serve == nil {
		config.Serve, _ = parseServeConfig(nil)
	}

	return config, nil
}

func parseSortConfig(m map[string]any) *SortConfig {
	config := &SortConfig{NumDigits: DefaultNumDigits}
	if v, ok := m["numDigits"].(int64); ok {
		config.NumDigits = int(v)
	}
	if v, ok := m["teamSize"].(int64); ok {
		config.TeamSize = int(v)
	}
	if v, ok := m["input"].(string); ok {
		config.Input = v
	}
	if v, ok := m["output"].(string); ok {
		config.Output = v
	}
	if v, ok := m["format"].(string); ok {
		config.Format = v
	}
	if v, ok := m["sequential"].(bool); ok {
		config.Sequential = v
	}
	return config
}

func parseInspectConfig(m map[string]any) *InspectConfig {
	config := &InspectConfig{}
	if v, ok := m["plotPath"].(string); ok {
		config.PlotPath = v
	}
	if v, ok := m["tui"].(bool); ok {
		config.TUI = v
	}
	return config
}

func parseServeConfig(m map[string]any) (*ServeConfig, error) {
	config := &ServeConfig{
		Port:        DefaultPort,
		ReadTimeout: DefaultReadTimeout,
		BatchMax:    DefaultBatchMax,
	}
	if v, ok := m["port"].(string); ok {
		config.Port = v
	}
	if v, ok := m["readTimeout"].(string); ok {
		duration, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("invalid readTimeout %q: %w", v, err)
		}
		config.ReadTimeout = duration
	}
	if v, ok := m["batchMax"].(int64); ok {
		config.BatchMax = int(v)
	}
	if v, ok := m["output"].(string); ok {
		config.Output = v
	}
	return config, nil
}

// TeamSize resolves a configured team size; 0 means one worker per CPU
func TeamSize(configured int) int {
	if configured == 0 {
		return team.DefaultSize()
	}
	return configured
}

// ValidateSortParameters checks the parameters shared by every sorting command
func (c *Config) ValidateSortParameters() error {
	if c.Sort == nil {
		return fmt.Errorf("sort configuration section is required")
	}
	if c.Sort.NumDigits < 1 || c.Sort.NumDigits > radix.MaxDigits {
		return fmt.Errorf("numDigits must be between 1 and %d, got %d", radix.MaxDigits, c.Sort.NumDigits)
	}
	if c.Sort.TeamSize < 0 {
		return fmt.Errorf("teamSize must be 0 (one per CPU) or positive, got %d", c.Sort.TeamSize)
	}
	if _, err := keyio.ParseFormat(c.Sort.Format); err != nil {
		return err
	}
	return nil
}

func (c *Config) ValidateSort() error {
	if err := c.ValidateSortParameters(); err != nil {
		return err
	}

	if c.Sort.Input == "" {
		return fmt.Errorf("input is required in sort configuration")
	}

	// Check if input exists
	if _, err := os.Stat(c.Sort.Input); os.IsNotExist(err) {
		return fmt.Errorf("input file does not exist: %s", c.Sort.Input)
	}

	return nil
}

func (c *Config) ValidateInspect() error {
	if err := c.ValidateSort(); err != nil {
		return err
	}
	if c.Sort.Sequential {
		return fmt.Errorf("inspect needs the parallel sort, sequential must be false")
	}
	if c.Inspect == nil || (c.Inspect.PlotPath == "" && !c.Inspect.TUI) {
		return fmt.Errorf("inspect needs plotPath or tui in inspect configuration")
	}
	return nil
}

func (c *Config) ValidateServe() error {
	if err := c.ValidateSortParameters(); err != nil {
		return err
	}
	if c.Serve == nil {
		return fmt.Errorf("serve configuration section is required")
	}

	if c.Serve.Port == "" {
		return fmt.Errorf("port is required in serve configuration")
	}
	if c.Serve.ReadTimeout <= 0 {
		return fmt.Errorf("readTimeout must be positive, got %s", c.Serve.ReadTimeout)
	}
	if c.Serve.BatchMax < 1 {
		return fmt.Errorf("batchMax must be positive, got %d", c.Serve.BatchMax)
	}

	return nil
}
