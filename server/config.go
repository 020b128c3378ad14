package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/caarlos0/env/v11"
)

// Config is everything the process reads from the environment at startup.
// Model tuning knobs (temperature, reasoning effort, OpenRouter routing)
// stay as plain env vars consumed inside the llm package.
type Config struct {
	Port        string `env:"PORT" envDefault:"8080"`
	DatabaseURL string `env:"DATABASE_URL"`
	AutoMigrate bool   `env:"AUTO_MIGRATE" envDefault:"false"`

	Model   string `env:"OPENAI_MODEL"`
	Company string `env:"MINEBENCH_COMPANY" envDefault:""`

	Difficulty string `env:"MINEBENCH_DIFFICULTY" envDefault:"easy"`
	Games      int    `env:"MINEBENCH_GAMES" envDefault:"10"`
	MaxMoves   int    `env:"MAX_MOVES" envDefault:"400"`
	BoardSeed  int64  `env:"BOARD_SEED" envDefault:"0"`

	MaxSeconds    int    `env:"MAX_SECONDS" envDefault:"0"`
	StopFile      string `env:"STOP_FILE" envDefault:""`
	StopImmediate bool   `env:"STOP_IMMEDIATE" envDefault:"false"`
}

func loadConfig() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parse env: %w", err)
	}
	cfg.Difficulty = strings.ToLower(strings.TrimSpace(cfg.Difficulty))
	if cfg.Games <= 0 {
		cfg.Games = 10
	}
	if cfg.MaxMoves <= 0 {
		cfg.MaxMoves = 400
	}
	return cfg, nil
}

// loadAPIKeyFromSecret lets deployments mount the key as a file instead of
// an env var (OPENAI_API_KEY_FILE / OPENROUTER_API_KEY_FILE).
func loadAPIKeyFromSecret() {
	pairs := [][2]string{
		{"OPENAI_API_KEY", "OPENAI_API_KEY_FILE"},
		{"OPENROUTER_API_KEY", "OPENROUTER_API_KEY_FILE"},
	}
	for _, p := range pairs {
		if strings.TrimSpace(os.Getenv(p[0])) != "" {
			continue
		}
		path := strings.TrimSpace(os.Getenv(p[1]))
		if path == "" {
			continue
		}
		b, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		if key := strings.TrimSpace(string(b)); key != "" {
			os.Setenv(p[0], key)
		}
	}
}

func mustEnv(key string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		fmt.Fprintf(os.Stderr, "missing required env %s\n", key)
		os.Exit(1)
	}
	return v
}
