// Package config loads service configuration from the environment, with an
// optional .env file applied first.
package config

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/pentouz/rate-engine/pricing"
)

type Config struct {
	Server struct {
		Env      string `envconfig:"ENV" default:"development"`
		LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
		Host     string `envconfig:"HOST" default:""`
		Port     int    `envconfig:"PORT" default:"8080"`
		Shutdown struct {
			GracePeriodSeconds int64 `envconfig:"GRACE_PERIOD_SECONDS" default:"10"`
		} `envconfig:"SHUTDOWN"`
	} `envconfig:"SERVER"`

	App struct {
		CORS struct {
			AllowCredentials bool     `envconfig:"ALLOW_CREDENTIALS" default:"true"`
			AllowedHeaders   []string `envconfig:"ALLOWED_HEADERS" default:"Accept,Authorization,Content-Type,X-Request-ID"`
			AllowedMethods   []string `envconfig:"ALLOWED_METHODS" default:"GET,POST,PUT,DELETE,OPTIONS"`
			AllowedOrigins   []string `envconfig:"ALLOWED_ORIGINS" default:"http://localhost:3000,http://localhost:5173"`
			MaxAgeSeconds    int      `envconfig:"MAX_AGE_SECONDS" default:"300"`
		} `envconfig:"CORS"`
	} `envconfig:"APP"`

	Pricing struct {
		TaxRate              decimal.Decimal   `envconfig:"TAX_RATE" default:"0.18"`
		BaseCurrency         string            `envconfig:"BASE_CURRENCY" default:"INR"`
		CurrencyExponent     int32             `envconfig:"CURRENCY_EXPONENT" default:"2"`
		SearchConcurrency    int               `envconfig:"SEARCH_CONCURRENCY" default:"8"`
		SearchTimeoutSeconds int               `envconfig:"SEARCH_TIMEOUT_SECONDS" default:"10"`
		FXRates              map[string]string `envconfig:"FX_RATES"` // "USD/INR:83.25,EUR/INR:90.10"
	} `envconfig:"PRICING"`

	DB struct {
		SQLite struct {
			Path string `envconfig:"PATH"` // empty keeps data in memory
		} `envconfig:"SQLITE"`
	} `envconfig:"DB"`

	Cache struct {
		Redis struct {
			Primary struct {
				Host     string `envconfig:"HOST"` // empty disables the inventory cache
				Port     string `envconfig:"PORT" default:"6379"`
				Password string `envconfig:"PASSWORD"`
				DB       int    `envconfig:"DB"`
			} `envconfig:"PRIMARY"`
		} `envconfig:"REDIS"`
		TTL int `envconfig:"TTL" default:"60"` // seconds
	} `envconfig:"CACHE"`
}

// Load reads envFile (if it exists) into the environment, then processes
// the environment into a Config.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			log.Debug().Err(err).Str("file", envFile).Msg("no .env file loaded, using process environment")
		} else {
			log.Info().Str("file", envFile).Msg("loaded variables from .env file")
		}
	}

	var conf Config
	if err := envconfig.Process("", &conf); err != nil {
		return nil, fmt.Errorf("processing environment: %w", err)
	}
	if err := conf.Validate(); err != nil {
		return nil, err
	}
	return &conf, nil
}

// Validate checks the pricing settings the engine cannot run without.
func (c *Config) Validate() error {
	p := c.Pricing
	if p.TaxRate.IsNegative() || p.TaxRate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return fmt.Errorf("PRICING_TAX_RATE must be in [0, 1), got %s", p.TaxRate)
	}
	if strings.TrimSpace(p.BaseCurrency) == "" {
		return errors.New("PRICING_BASE_CURRENCY is required")
	}
	if p.CurrencyExponent < 0 || p.CurrencyExponent > 4 {
		return fmt.Errorf("PRICING_CURRENCY_EXPONENT must be in [0, 4], got %d", p.CurrencyExponent)
	}
	if p.SearchConcurrency < 0 {
		return fmt.Errorf("PRICING_SEARCH_CONCURRENCY cannot be negative, got %d", p.SearchConcurrency)
	}
	if _, err := c.Converter(); err != nil {
		return err
	}
	return nil
}

func (c *Config) Addr() string {
	return net.JoinHostPort(c.Server.Host, strconv.Itoa(c.Server.Port))
}

func (c *Config) IsDevelopment() bool {
	return c.Server.Env == "" || c.Server.Env == "development" || c.Server.Env == "local"
}

func (c *Config) BaseCurrency() pricing.Currency {
	return pricing.Currency(strings.ToUpper(c.Pricing.BaseCurrency))
}

func (c *Config) SearchTimeout() time.Duration {
	return time.Duration(c.Pricing.SearchTimeoutSeconds) * time.Second
}

func (c *Config) GracePeriod() time.Duration {
	return time.Duration(c.Server.Shutdown.GracePeriodSeconds) * time.Second
}

func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.Cache.TTL) * time.Second
}

func (c *Config) RedisAddr() string {
	r := c.Cache.Redis.Primary
	if r.Host == "" {
		return ""
	}
	return net.JoinHostPort(r.Host, r.Port)
}

// Converter builds the static FX table from PRICING_FX_RATES.
func (c *Config) Converter() (*pricing.StaticConverter, error) {
	conv := pricing.NewStaticConverter()
	for pair, raw := range c.Pricing.FXRates {
		from, to, ok := strings.Cut(pair, "/")
		if !ok || from == "" || to == "" {
			return nil, fmt.Errorf("PRICING_FX_RATES: pair %q must look like USD/INR", pair)
		}
		rate, err := decimal.NewFromString(strings.TrimSpace(raw))
		if err != nil || !rate.IsPositive() {
			return nil, fmt.Errorf("PRICING_FX_RATES: rate %q for %s is not a positive number", raw, pair)
		}
		conv.SetRate(pricing.Currency(strings.ToUpper(from)), pricing.Currency(strings.ToUpper(to)), rate)
	}
	return conv, nil
}
