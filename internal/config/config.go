package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	domcart "github.com/Zhima-Mochi/minishop-cart/internal/domain/cart"
)

const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
)

// Config is the whole application configuration.
type Config struct {
	Service string  `yaml:"service" validate:"required"`
	Env     string  `yaml:"env" validate:"required"`
	HTTP    HTTP    `yaml:"http"`
	Log     Log     `yaml:"log"`
	Cart    Cart    `yaml:"cart"`
	Catalog Catalog `yaml:"catalog"`
}

type HTTP struct {
	Addr            string        `yaml:"addr" validate:"required"`
	ReadTimeout     time.Duration `yaml:"read_timeout" validate:"gte=0"`
	WriteTimeout    time.Duration `yaml:"write_timeout" validate:"gte=0"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" validate:"gt=0"`
}

type Log struct {
	Level string `yaml:"level" validate:"omitempty,oneof=debug info warn error"`
	File  string `yaml:"file"`
}

type Cart struct {
	IdleTTL       time.Duration `yaml:"idle_ttl" validate:"gt=0"`
	SweepInterval time.Duration `yaml:"sweep_interval" validate:"gt=0"`
}

type Catalog struct {
	Driver      string `yaml:"driver" validate:"oneof=memory postgres"`
	DatabaseURL string `yaml:"database_url" validate:"required_if=Driver postgres"`
	// Products seeds the in-memory catalog: product id -> on-hand units.
	Products map[string]int `yaml:"products" validate:"dive,keys,required,endkeys,gte=0"`
}

// Default returns the configuration used when no file or environment overrides are present.
func Default() Config {
	return Config{
		Service: "minishop-cart",
		Env:     "dev",
		HTTP: HTTP{
			Addr:            ":8080",
			ReadTimeout:     5 * time.Second,
			WriteTimeout:    10 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Log: Log{Level: "info"},
		Cart: Cart{
			IdleTTL:       domcart.DefaultIdleTTL,
			SweepInterval: domcart.DefaultSweepInterval,
		},
		Catalog: Catalog{Driver: DriverMemory},
	}
}

// Load builds the configuration from defaults, the optional YAML file at path, and environment overrides,
// then validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	if err := applyEnv(&cfg, os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// MustLoad is like Load but panics on error.
func MustLoad(path string) *Config {
	cfg, err := Load(path)
	if err != nil {
		panic(err)
	}
	return cfg
}

func (c *Config) Validate() error {
	err := validator.New(validator.WithRequiredStructEnabled()).Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("config: %w", err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
	}
	return fmt.Errorf("config: invalid: %s", strings.Join(msgs, "; "))
}

type lookupFunc func(string) (string, bool)

func applyEnv(cfg *Config, lookup lookupFunc) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	dur := func(key string, dst *time.Duration) error {
		v, ok := lookup(key)
		if !ok || v == "" {
			return nil
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("config: %s: %w", key, err)
		}
		*dst = d
		return nil
	}

	str("SERVICE_NAME", &cfg.Service)
	str("ENV", &cfg.Env)
	str("HTTP_ADDR", &cfg.HTTP.Addr)
	str("LOG_LEVEL", &cfg.Log.Level)
	str("LOG_FILE", &cfg.Log.File)
	str("CATALOG_DRIVER", &cfg.Catalog.Driver)
	str("DATABASE_URL", &cfg.Catalog.DatabaseURL)
	cfg.Log.Level = strings.ToLower(cfg.Log.Level)

	if err := dur("CART_IDLE_TTL", &cfg.Cart.IdleTTL); err != nil {
		return err
	}
	return dur("CART_SWEEP_INTERVAL", &cfg.Cart.SweepInterval)
}
