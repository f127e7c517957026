package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/praxisai/crewkit/pkg/config"
	"github.com/praxisai/crewkit/pkg/tasks"
	"github.com/praxisai/crewkit/pkg/utils"
)

func main() {
	ctx := context.Background()

	// Load .env if present; real environments set variables directly
	_ = godotenv.Load()

	verbose := os.Getenv("CREWKIT_VERBOSE") != ""
	logger := utils.NewLogger(verbose)
	defer logger.Sync()

	configPath := os.Getenv("CREWKIT_CONFIG")
	if configPath == "" {
		configPath = "crew.yaml"
	}

	logger.Info("loading crew config from %s", configPath)
	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Error("failed to load config: %v", err)
		os.Exit(1)
	}

	p, err := config.Build(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to build process: %v", err)
		os.Exit(1)
	}

	logger.Info("running crew %q", cfg.Name)
	start := time.Now()

	result, err := p.Run(ctx, paramsFromEnv())
	if err != nil {
		logger.Error("run failed: %v", err)
		os.Exit(1)
	}

	logger.Info("crew %q finished in %s (completed: %v)", cfg.Name, time.Since(start).Round(time.Millisecond), result.Completed)

	for _, id := range result.Order {
		r := result.Results[id]
		fmt.Printf("== %s [%s]\n", r.Name, r.Status)
		if r.Output != nil {
			fmt.Println(r.Output.Raw)
		}
		if r.Err != nil {
			fmt.Printf("error: %v\n", r.Err)
		}
		fmt.Println()
	}

	for _, r := range result.Results {
		if r.Status == tasks.StatusSkipped {
			fmt.Printf("== %s [skipped]\n", r.Name)
		}
	}

	if result.FailureReason != nil {
		logger.Error("run incomplete: %v", result.FailureReason)
		os.Exit(1)
	}
}

// paramsFromEnv collects CREWKIT_PARAM_* variables as task params, so
// descriptions can reference {placeholders} without editing the config
func paramsFromEnv() map[string]string {
	const prefix = "CREWKIT_PARAM_"
	params := make(map[string]string)
	for _, kv := range os.Environ() {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(key, prefix) {
			continue
		}
		name := strings.ToLower(strings.TrimPrefix(key, prefix))
		if name != "" {
			params[name] = value
		}
	}
	return params
}
