package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	StoreMemory = "memory"
	StoreSQLite = "sqlite"
)

// DefaultAllowedOrigins lists the browser origins served out of the box.
var DefaultAllowedOrigins = []string{
	"https://mbtq.dev",
	"https://www.mbtq.dev",
	"https://admin.mbtquniverse.com",
	"https://deafauth.mbtq.dev",
	"http://localhost:3000",
	"http://localhost:8080",
}

// Config holds application level configuration aggregated from env/config files.
type Config struct {
	Server struct {
		Addr string
		Mode string
	}
	Auth struct {
		JWTSecret       string
		Issuer          string
		Audience        string
		TokenTTLMinutes int
		BcryptCost      int
	}
	Store struct {
		Driver string
		DSN    string
	}
	Log struct {
		Level  string
		Format string
	}
	CORS struct {
		AllowedOrigins []string
	}
}

// TokenTTL returns the configured token lifetime.
func (c Config) TokenTTL() time.Duration {
	return time.Duration(c.Auth.TokenTTLMinutes) * time.Minute
}

// Validate rejects configurations the service must not start with.
func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Auth.JWTSecret) == "" {
		errs = append(errs, errors.New("auth jwt secret is required (DEAFAUTH_JWT_SECRET)"))
	}
	if c.Auth.TokenTTLMinutes <= 0 {
		errs = append(errs, fmt.Errorf("auth token ttl must be positive, got %d minutes", c.Auth.TokenTTLMinutes))
	}
	switch c.Server.Mode {
	case "debug", "release", "test":
	default:
		errs = append(errs, fmt.Errorf("unknown server mode %q", c.Server.Mode))
	}
	switch c.Store.Driver {
	case StoreMemory, StoreSQLite:
	default:
		errs = append(errs, fmt.Errorf("unknown store driver %q", c.Store.Driver))
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("unknown log format %q", c.Log.Format))
	}
	return errors.Join(errs...)
}

// Load reads configuration from environment variables, an optional .env file and
// an optional config file in the working directory.
func Load() (Config, error) {
	return load(".")
}

func load(dir string) (Config, error) {
	// .env never overrides variables already set in the environment
	_ = godotenv.Load(filepath.Join(dir, ".env"))

	v := viper.New()
	v.SetEnvPrefix("DEAFAUTH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("server.addr", "0.0.0.0:8080")
	v.SetDefault("server.mode", "release")
	v.SetDefault("auth.jwtsecret", "")
	v.SetDefault("auth.issuer", "deafauth.mbtq.dev")
	v.SetDefault("auth.audience", "mbtq-ecosystem")
	v.SetDefault("auth.tokenttlminutes", 120)
	v.SetDefault("auth.bcryptcost", 10)
	v.SetDefault("store.driver", StoreMemory)
	v.SetDefault("store.dsn", ":memory:")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("cors.allowedorigins", DefaultAllowedOrigins)

	if err := v.BindEnv("auth.jwtsecret", "DEAFAUTH_AUTH_JWTSECRET", "DEAFAUTH_JWT_SECRET", "JWT_SECRET_KEY"); err != nil {
		return Config{}, fmt.Errorf("bind jwt secret env: %w", err)
	}

	v.SetConfigName("config")
	v.AddConfigPath(dir)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.CORS.AllowedOrigins = splitOrigins(cfg.CORS.AllowedOrigins)

	return cfg, nil
}

// splitOrigins accepts both list values and a single comma separated env value.
func splitOrigins(in []string) []string {
	var out []string
	for _, item := range in {
		for _, origin := range strings.Split(item, ",") {
			if origin = strings.TrimSpace(origin); origin != "" {
				out = append(out, origin)
			}
		}
	}
	return out
}
