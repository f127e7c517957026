package config

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/praxisai/crewkit/pkg/embeddings"
	"github.com/praxisai/crewkit/pkg/llm"
	"github.com/praxisai/crewkit/pkg/memory"
	"github.com/praxisai/crewkit/pkg/process"
)

// Config is the declarative description of a crew: the provider, the
// shared memory and knowledge settings, the agents and the task graph.
// Values of the form ${VAR} are expanded from the environment at load
// time so API keys never live in the file itself.
type Config struct {
	Name    string        `yaml:"name" validate:"required"`
	Mode    string        `yaml:"mode" validate:"omitempty,oneof=sequential workflow hierarchical"`
	MaxIter int           `yaml:"max_iter" validate:"omitempty,min=1"`
	LLM     LLMConfig     `yaml:"llm" validate:"required"`
	Memory  *MemoryConfig `yaml:"memory"`
	Agents  []AgentConfig `yaml:"agents" validate:"omitempty,dive"`
	Tasks   []TaskConfig  `yaml:"tasks" validate:"required,min=1,dive"`
}

// LLMConfig selects and tunes the completion provider
type LLMConfig struct {
	Provider    string  `yaml:"provider" validate:"required,oneof=openai gemini"`
	Model       string  `yaml:"model"`
	APIKey      string  `yaml:"api_key"`
	BaseURL     string  `yaml:"base_url"`
	Temperature float32 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
}

// MemoryConfig configures the shared tiered memory store
type MemoryConfig struct {
	Backend          string  `yaml:"backend" validate:"required,oneof=vector sqlite redis"`
	Path             string  `yaml:"path"`
	RedisURL         string  `yaml:"redis_url"`
	QualityThreshold float64 `yaml:"quality_threshold" validate:"omitempty,min=0,max=1"`
	Demotion         string  `yaml:"demotion" validate:"omitempty,oneof=demote reject"`
	MaxResults       int     `yaml:"max_results" validate:"omitempty,min=1"`

	// Embedding and vector settings, used by the vector backend
	Embeddings embeddings.Config   `yaml:"embeddings"`
	Vector     VectorBackendConfig `yaml:"vector"`
}

// VectorBackendConfig selects the vector store behind the vector backend
type VectorBackendConfig struct {
	Type      string                 `yaml:"type" validate:"omitempty,oneof=local qdrant"`
	Dimension int                    `yaml:"dimension"`
	Options   map[string]interface{} `yaml:"options"`
}

// AgentConfig declares a named agent
type AgentConfig struct {
	Name  string   `yaml:"name" validate:"required"`
	Role  string   `yaml:"role" validate:"required"`
	Goals []string `yaml:"goals"`
}

// TaskConfig declares one task of the graph. Context and routing refer to
// other tasks by name; names are resolved to ids when the process is
// built.
type TaskConfig struct {
	Name           string            `yaml:"name" validate:"required"`
	Description    string            `yaml:"description" validate:"required"`
	ExpectedOutput string            `yaml:"expected_output"`
	Type           string            `yaml:"type" validate:"omitempty,oneof=standard decision loop"`
	Agent          string            `yaml:"agent"`
	Context        []string          `yaml:"context"`
	RetainContext  bool              `yaml:"retain_full_context"`
	Format         string            `yaml:"format" validate:"omitempty,oneof=raw json file"`
	OutputFile     string            `yaml:"output_file"`
	MaxRetries     int               `yaml:"max_retries" validate:"omitempty,min=0"`
	Memory         bool              `yaml:"memory"`
	QualityCheck   bool              `yaml:"quality_check"`
	NextTasks      map[string]string `yaml:"next_tasks"`
	LoopSource     string            `yaml:"loop_source"`
	LoopItems      []string          `yaml:"loop_items"`
}

var validate = validator.New()

// Load reads, env-expands and validates a YAML config file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates raw YAML config bytes
func Parse(data []byte) (*Config, error) {
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	if err := checkReferences(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// checkReferences verifies that task context, routing and agent names
// resolve within the config
func checkReferences(cfg *Config) error {
	taskNames := make(map[string]struct{}, len(cfg.Tasks))
	for _, task := range cfg.Tasks {
		if _, dup := taskNames[task.Name]; dup {
			return fmt.Errorf("invalid config: duplicate task name %q", task.Name)
		}
		taskNames[task.Name] = struct{}{}
	}

	agentNames := make(map[string]struct{}, len(cfg.Agents))
	for _, agent := range cfg.Agents {
		agentNames[agent.Name] = struct{}{}
	}

	for _, task := range cfg.Tasks {
		for _, dep := range task.Context {
			if _, ok := taskNames[dep]; !ok {
				return fmt.Errorf("invalid config: task %q references unknown task %q", task.Name, dep)
			}
		}
		for label, target := range task.NextTasks {
			if _, ok := taskNames[target]; !ok {
				return fmt.Errorf("invalid config: task %q routes %q to unknown task %q", task.Name, label, target)
			}
		}
		if task.Agent != "" {
			if _, ok := agentNames[task.Agent]; !ok {
				return fmt.Errorf("invalid config: task %q references unknown agent %q", task.Name, task.Agent)
			}
		}
	}
	return nil
}

// LLMProviderType maps the config provider name onto the llm package type
func (c *LLMConfig) LLMProviderType() llm.ProviderType {
	return llm.ProviderType(c.Provider)
}

// LLMConfigValue builds the llm package config
func (c *LLMConfig) LLMConfigValue() *llm.Config {
	return &llm.Config{
		Model:       c.Model,
		Temperature: c.Temperature,
		MaxTokens:   c.MaxTokens,
		APIKey:      c.APIKey,
		BaseURL:     c.BaseURL,
	}
}

// MemoryConfigValue builds the memory package config, applying defaults
// for unset fields
func (c *MemoryConfig) MemoryConfigValue() *memory.Config {
	out := memory.DefaultConfig()
	if c == nil {
		return out
	}
	if c.QualityThreshold > 0 {
		out.QualityThreshold = c.QualityThreshold
	}
	if c.Demotion == "reject" {
		out.Demotion = memory.PolicyReject
	}
	if c.MaxResults > 0 {
		out.MaxResults = c.MaxResults
	}
	return out
}

// ProcessMode maps the config mode onto the process package mode
func (c *Config) ProcessMode() process.Mode {
	switch c.Mode {
	case "workflow":
		return process.ModeWorkflow
	case "hierarchical":
		return process.ModeHierarchical
	default:
		return process.ModeSequential
	}
}
