package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Port           int           `envconfig:"PORT" default:"8080"`
	DatabaseURL    string        `envconfig:"DATABASE_URL"`
	SQLitePath     string        `envconfig:"SQLITE_PATH" default:"./data/boards.db"`
	JWTSecret      string        `envconfig:"JWT_SECRET"`
	AllowedOrigins string        `envconfig:"ALLOWED_ORIGINS" default:"http://localhost:5173,http://localhost:3000"`
	MaxHistory     int           `envconfig:"MAX_HISTORY" default:"200"`
	CellSize       float64       `envconfig:"CELL_SIZE" default:"256"`
	FrameInterval  time.Duration `envconfig:"FRAME_INTERVAL" default:"16ms"`
	SaveInterval   time.Duration `envconfig:"SAVE_INTERVAL" default:"5s"`
	LogLevel       string        `envconfig:"LOG_LEVEL" default:"info"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch {
	case c.MaxHistory < 1:
		return fmt.Errorf("MAX_HISTORY must be positive, got %d", c.MaxHistory)
	case c.CellSize <= 0:
		return fmt.Errorf("CELL_SIZE must be positive, got %v", c.CellSize)
	case c.FrameInterval <= 0:
		return fmt.Errorf("FRAME_INTERVAL must be positive, got %v", c.FrameInterval)
	case c.SaveInterval <= 0:
		return fmt.Errorf("SAVE_INTERVAL must be positive, got %v", c.SaveInterval)
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	return nil
}

// Level parses LogLevel.
func (c *Config) Level() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(c.LogLevel))); err != nil {
		return 0, fmt.Errorf("LOG_LEVEL: %w", err)
	}
	return level, nil
}
