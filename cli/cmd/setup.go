package cmd

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/sluice/adapter"
	"github.com/pithecene-io/sluice/adapter/redis"
	"github.com/pithecene-io/sluice/adapter/webhook"
	"github.com/pithecene-io/sluice/bridge"
	"github.com/pithecene-io/sluice/cli/config"
)

// loadConfig reads the config file named by --config, or returns an empty
// config when the flag is unset.
func loadConfig(c *cli.Context) (*config.Config, error) {
	path := c.String("config")
	if path == "" {
		return &config.Config{}, nil
	}
	return config.Load(path)
}

// bridgeConfigFrom maps file config onto bridge.Config. Unset values
// stay zero so the bridge applies its own defaults.
func bridgeConfigFrom(cfg *config.Config) bridge.Config {
	return bridge.Config{
		MaxChunkSize:   cfg.Bridge.MaxChunkSize,
		SessionTimeout: cfg.Bridge.SessionTimeout.Duration,
		ReaperInterval: cfg.Bridge.ReaperInterval.Duration,
		ChunkDelay:     cfg.Bridge.ChunkDelay.Duration,
	}
}

// buildAdapter constructs the session event adapter named by the config,
// or nil when no adapter is configured.
func buildAdapter(cfg config.AdapterConfig) (adapter.Adapter, error) {
	switch cfg.Type {
	case "":
		return nil, nil
	case "redis":
		retries := redis.DefaultRetries
		if cfg.Retries != nil {
			retries = *cfg.Retries
		}
		return redis.New(redis.Config{
			URL:     cfg.URL,
			Channel: cfg.Channel,
			Timeout: cfg.Timeout.Duration,
			Retries: retries,
		})
	case "webhook":
		retries := webhook.DefaultRetries
		if cfg.Retries != nil {
			retries = *cfg.Retries
		}
		return webhook.New(webhook.Config{
			URL:     cfg.URL,
			Headers: cfg.Headers,
			Timeout: cfg.Timeout.Duration,
			Retries: retries,
		})
	default:
		return nil, fmt.Errorf("unknown adapter type: %s", cfg.Type)
	}
}
