package cli

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"os"

	"github.com/switchyard-dev/switchyard"
	"github.com/switchyard-dev/switchyard/internal/logging"
	"github.com/switchyard-dev/switchyard/pkg/adapters/file"
	"github.com/switchyard-dev/switchyard/pkg/adapters/model"
	"github.com/switchyard-dev/switchyard/pkg/adapters/redis"
	"github.com/switchyard-dev/switchyard/pkg/domain"
	"github.com/switchyard-dev/switchyard/pkg/persistence/middleware"
	"github.com/switchyard-dev/switchyard/pkg/ports"
)

// NewLogger builds the CLI logger; an explicit level flag wins over the
// config file.
func NewLogger(cfg *Config, levelFlag string) *slog.Logger {
	level := cfg.LogLevel
	if levelFlag != "" {
		level = levelFlag
	}
	return logging.New(logging.ParseLevel(level))
}

// NewStore picks the state store: Redis when configured, the local file
// store otherwise. The second return value is the checkpoint store, nil
// when the backend does not support checkpoints. When
// SWITCHYARD_ENCRYPTION_KEY holds a base64-encoded 32-byte key, snapshots
// are encrypted at rest; checkpoints are stored through the backend
// directly.
func NewStore(cfg *Config) (ports.StateStore, ports.CheckpointStore, error) {
	var store ports.StateStore
	var checkpoints ports.CheckpointStore
	if cfg.Redis.Address != "" {
		rs := redis.New(cfg.Redis.Address, cfg.Redis.Password, cfg.Redis.DB)
		store, checkpoints = rs, rs
	} else {
		store = file.NewStore(cfg.SessionDir)
	}

	if encoded := os.Getenv("SWITCHYARD_ENCRYPTION_KEY"); encoded != "" {
		key, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return nil, nil, fmt.Errorf("SWITCHYARD_ENCRYPTION_KEY is not valid base64: %w", err)
		}
		if len(key) != 32 {
			return nil, nil, fmt.Errorf("SWITCHYARD_ENCRYPTION_KEY must decode to 32 bytes, got %d", len(key))
		}
		store = middleware.Chain(store, middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{
			ActiveKey: key,
		}))
	}
	return store, checkpoints, nil
}

// NewModelClient builds the model client from the environment, or nil when
// no API key is present. Machines without agent decisions run fine without
// one.
func NewModelClient(cfg *Config, logger *slog.Logger) ports.ModelClient {
	apiKey := os.Getenv("SWITCHYARD_API_KEY")
	if apiKey == "" {
		apiKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	if apiKey == "" {
		return nil
	}

	opts := []model.ClientOption{model.WithClientLogger(logger)}
	if cfg.Model.Name != "" {
		opts = append(opts, model.WithModel(cfg.Model.Name))
	}
	if cfg.Model.MaxTokens > 0 {
		opts = append(opts, model.WithMaxTokens(cfg.Model.MaxTokens))
	}
	if cfg.Model.BaseURL != "" {
		opts = append(opts, model.WithBaseURL(cfg.Model.BaseURL))
	}
	return model.NewClient(apiKey, opts...)
}

// NewEngine assembles the facade engine from the CLI configuration.
func NewEngine(cfg *Config, logger *slog.Logger, store ports.StateStore, hooks domain.LifecycleHooks) *switchyard.Engine {
	opts := []switchyard.Option{
		switchyard.WithLogger(logger),
		switchyard.WithLimits(cfg.Limits),
		switchyard.WithHooks(hooks),
	}
	if client := NewModelClient(cfg, logger); client != nil {
		opts = append(opts, switchyard.WithModelClient(client))
	}
	if store != nil {
		opts = append(opts, switchyard.WithStore(store))
	}
	return switchyard.New(opts...)
}

// LoadMachine reads and parses a machine definition from disk.
func LoadMachine(ctx context.Context, path string) (*domain.Graph, error) {
	return file.NewLoader().Load(ctx, path)
}
