// Package config loads environment-driven service configuration once at
// process start.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	Server Server
	Pool   Pool
	Nav    Nav
	Proxy  Proxy
	LLM    LLM
	Batch  Batch
	Cache  Cache
}

type Server struct {
	Port            int
	ShutdownTimeout time.Duration
}

type Pool struct {
	Size     int
	Headless bool
}

// Nav paces navigations to the same retailer host.
type Nav struct {
	GapMin time.Duration
	GapMax time.Duration
}

type Proxy struct {
	Server   string
	Username string
	Password string
}

type LLM struct {
	Provider string
	APIKey   string
	BaseURL  string
	Model    string
}

type Batch struct {
	Concurrency int
}

type Cache struct {
	Size int
	TTL  time.Duration
}

func Load() (*Config, error) {
	cfg := &Config{
		Server: Server{
			Port:            getEnvInt("PORT", 8087),
			ShutdownTimeout: time.Duration(getEnvInt("SHUTDOWN_TIMEOUT_SECONDS", 30)) * time.Second,
		},
		Pool: Pool{
			Size:     getEnvInt("POOL_SIZE", 3),
			Headless: getEnvBool("HEADLESS", true),
		},
		Nav: Nav{
			GapMin: time.Duration(getEnvInt("NAV_GAP_MIN_MS", 1000)) * time.Millisecond,
			GapMax: time.Duration(getEnvInt("NAV_GAP_MAX_MS", 3000)) * time.Millisecond,
		},
		Proxy: Proxy{
			Server:   getEnv("PROXY_SERVER", ""),
			Username: getEnv("PROXY_USERNAME", ""),
			Password: getEnv("PROXY_PASSWORD", ""),
		},
		LLM: LLM{
			Provider: getEnv("LLM_PROVIDER", "openai"),
			APIKey:   getEnv("LLM_API_KEY", ""),
			BaseURL:  getEnv("LLM_BASE_URL", ""),
			Model:    getEnv("LLM_MODEL", ""),
		},
		Batch: Batch{
			Concurrency: getEnvInt("BATCH_CONCURRENCY", 3),
		},
		Cache: Cache{
			Size: getEnvInt("CACHE_SIZE", 256),
			TTL:  time.Duration(getEnvInt("CACHE_TTL_SECONDS", 300)) * time.Second,
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Pool.Size < 1 {
		return fmt.Errorf("pool size must be at least 1, got %d", c.Pool.Size)
	}
	if c.Batch.Concurrency < 1 {
		return fmt.Errorf("batch concurrency must be at least 1, got %d", c.Batch.Concurrency)
	}
	// Queueing inside the pool instead of the batch layer is harmless but
	// less observable, so clamp rather than reject.
	if c.Batch.Concurrency > c.Pool.Size {
		c.Batch.Concurrency = c.Pool.Size
	}
	if c.Nav.GapMax < c.Nav.GapMin {
		c.Nav.GapMax = c.Nav.GapMin
	}
	if c.Proxy.Username != "" && c.Proxy.Server == "" {
		return fmt.Errorf("proxy credentials set without PROXY_SERVER")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}
