package config

import (
	"context"
	"fmt"
	"time"

	"github.com/praxisai/crewkit/pkg/agents"
	"github.com/praxisai/crewkit/pkg/embeddings"
	"github.com/praxisai/crewkit/pkg/llm"
	"github.com/praxisai/crewkit/pkg/memory"
	"github.com/praxisai/crewkit/pkg/memory/vector"
	"github.com/praxisai/crewkit/pkg/process"
	"github.com/praxisai/crewkit/pkg/quality"
	"github.com/praxisai/crewkit/pkg/tasks"
	"github.com/praxisai/crewkit/pkg/utils"
)

// defaultRedisTTL bounds how long redis-backed memories live
const defaultRedisTTL = 24 * time.Hour

// Build assembles a runnable process from a validated config: provider,
// agents, memory backend and the task graph with name references resolved
// to task ids.
func Build(ctx context.Context, cfg *Config, logger *utils.Logger) (*process.Process, error) {
	if logger == nil {
		logger = utils.NewLogger(false)
	}

	provider, err := llm.NewProvider(ctx, cfg.LLM.LLMProviderType(), cfg.LLM.LLMConfigValue())
	if err != nil {
		return nil, fmt.Errorf("building llm provider: %w", err)
	}

	store, err := buildMemory(ctx, cfg.Memory, logger)
	if err != nil {
		return nil, fmt.Errorf("building memory: %w", err)
	}

	opts := []process.ProcessOption{
		process.WithMode(cfg.ProcessMode()),
		process.WithLogger(logger),
		process.WithEvaluator(quality.NewHeuristicEvaluator()),
	}
	if cfg.MaxIter > 0 {
		opts = append(opts, process.WithMaxIter(cfg.MaxIter))
	}
	if store != nil {
		opts = append(opts, process.WithMemory(store))
	}
	if cfg.ProcessMode() == process.ModeHierarchical {
		names := make([]string, 0, len(cfg.Agents))
		for _, a := range cfg.Agents {
			names = append(names, a.Name)
		}
		opts = append(opts, process.WithManager(process.NewLLMManager(provider, names)))
	}

	p := process.NewProcess(cfg.Name, opts...)

	for _, ac := range cfg.Agents {
		agentOpts := []agents.AgentOption{agents.WithLogger(logger)}
		if store != nil {
			agentOpts = append(agentOpts, agents.WithMemory(store))
		}
		agent := agents.NewAgent(ac.Name, ac.Role, ac.Goals, provider, agentOpts...)
		p.RegisterAgent(ac.Name, agent)
	}

	if err := buildTasks(cfg, p); err != nil {
		return nil, err
	}

	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// buildTasks creates the task graph in two passes: tasks first, then
// context and routing references resolved from names to ids
func buildTasks(cfg *Config, p *process.Process) error {
	byName := make(map[string]*tasks.Task, len(cfg.Tasks))
	built := make([]*tasks.Task, 0, len(cfg.Tasks))

	for _, tc := range cfg.Tasks {
		opts := []tasks.Option{
			tasks.WithRetainFullContext(tc.RetainContext),
			tasks.WithMaxRetries(tc.MaxRetries),
			tasks.WithMemory(tc.Memory),
			tasks.WithQualityCheck(tc.QualityCheck),
		}
		if tc.Type != "" {
			opts = append(opts, tasks.WithType(tasks.Type(tc.Type)))
		}
		if tc.Agent != "" {
			opts = append(opts, tasks.WithAgent(tc.Agent))
		}
		if tc.Format != "" {
			opts = append(opts, tasks.WithFormat(tasks.Format(tc.Format)))
		}
		if tc.OutputFile != "" {
			opts = append(opts, tasks.WithOutputFile(tc.OutputFile, true))
		}
		if tc.LoopSource != "" {
			opts = append(opts, tasks.WithLoopSource(tc.LoopSource))
		}
		if len(tc.LoopItems) > 0 {
			opts = append(opts, tasks.WithLoopItems(tc.LoopItems...))
		}

		task, err := tasks.NewTask(tc.Name, tc.Description, tc.ExpectedOutput, opts...)
		if err != nil {
			return fmt.Errorf("building task %q: %w", tc.Name, err)
		}
		byName[tc.Name] = task
		built = append(built, task)
	}

	for i, tc := range cfg.Tasks {
		task := built[i]
		for _, dep := range tc.Context {
			task.Context = append(task.Context, byName[dep].ID)
		}
		if len(tc.NextTasks) > 0 {
			task.NextTasks = make(map[string]string, len(tc.NextTasks))
			for label, target := range tc.NextTasks {
				task.NextTasks[label] = byName[target].ID
			}
		}
	}

	for _, task := range built {
		if err := p.AddTask(task); err != nil {
			return err
		}
	}
	return nil
}

// buildMemory assembles the configured memory backend. A nil memory
// section means the process runs without shared memory.
func buildMemory(ctx context.Context, cfg *MemoryConfig, logger *utils.Logger) (*memory.Store, error) {
	if cfg == nil {
		return nil, nil
	}

	var storage memory.Storage
	switch cfg.Backend {
	case "sqlite":
		s, err := memory.NewSQLiteStorage(cfg.Path)
		if err != nil {
			return nil, err
		}
		storage = s
	case "redis":
		s, err := memory.NewRedisStorage(cfg.RedisURL, defaultRedisTTL)
		if err != nil {
			return nil, err
		}
		storage = s
	case "vector":
		embedder, err := embeddings.NewModel(ctx, cfg.Embeddings)
		if err != nil {
			return nil, fmt.Errorf("building embedder: %w", err)
		}

		vcfg := vector.Config{
			Type:      cfg.Vector.Type,
			Dimension: cfg.Vector.Dimension,
			Options:   cfg.Vector.Options,
		}
		if vcfg.Type == "" {
			vcfg.Type = string(vector.TypeLocal)
		}
		if vcfg.Dimension == 0 {
			vcfg.Dimension = embedder.Dimension()
		}
		store, err := vector.NewStore(ctx, vcfg)
		if err != nil {
			return nil, fmt.Errorf("building vector store: %w", err)
		}
		storage = memory.NewVectorStorage(embeddings.NewCachedModel(embedder), store)
	default:
		return nil, fmt.Errorf("unsupported memory backend: %s", cfg.Backend)
	}

	return memory.NewStore(storage, cfg.MemoryConfigValue(), memory.WithLogger(logger)), nil
}
