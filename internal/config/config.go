package config

import (
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator"
	_ "github.com/joho/godotenv/autoload"
	"github.com/knadh/koanf"
	"github.com/knadh/koanf/providers/env"
)

type Config struct {
	Primary     Primary           `koanf:"primary"`
	Server      ServerConfig      `koanf:"server"`
	Database    DatabaseConfig    `koanf:"database"`
	PostFinance PostFinanceConfig `koanf:"postfinance"`
	Checkout    CheckoutConfig    `koanf:"checkout"`
	Sweep       SweepConfig       `koanf:"sweep"`
	Mailer      MailerConfig      `koanf:"mailer"`
	Logger      LoggerConfig      `koanf:"logger"`
}

type Primary struct {
	Env string `koanf:"env" validate:"required"`
}

type ServerConfig struct {
	Port         string        `koanf:"port" validate:"required"`
	ReadTimeout  time.Duration `koanf:"read_timeout" validate:"required"`
	WriteTimeout time.Duration `koanf:"write_timeout" validate:"required"`
	IdleTimeout  time.Duration `koanf:"idle_timeout" validate:"required"`
}

type DatabaseConfig struct {
	Host            string        `koanf:"host" validate:"required"`
	Port            int           `koanf:"port" validate:"required"`
	User            string        `koanf:"user" validate:"required"`
	Password        string        `koanf:"password" validate:"required"`
	Name            string        `koanf:"name" validate:"required"`
	SSLMode         string        `koanf:"ssl_mode" validate:"required"`
	MaxOpenConns    int           `koanf:"max_open_conns" validate:"required"`
	MaxIdleConns    int           `koanf:"max_idle_conns" validate:"required"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime" validate:"required"`
	ConnMaxIdleTime time.Duration `koanf:"conn_max_idle_time" validate:"required"`
}

type PostFinanceConfig struct {
	BaseURL string        `koanf:"base_url" validate:"required"`
	SpaceID int64         `koanf:"space_id" validate:"required"`
	UserID  int64         `koanf:"user_id" validate:"required"`
	AuthKey string        `koanf:"auth_key" validate:"required"`
	Timeout time.Duration `koanf:"timeout"`

	// WebhookSecret is the base64 key the gateway signs webhook bodies
	// with. Signature checks are skipped when unset.
	WebhookSecret string `koanf:"webhook_secret"`
}

type CheckoutConfig struct {
	BaseReturnURL         string  `koanf:"base_return_url" validate:"required"`
	CaptureMode           string  `koanf:"capture_mode" validate:"oneof=immediate deferred"`
	AllowedPaymentMethods []int64 `koanf:"allowed_payment_methods"`
}

type SweepConfig struct {
	Interval    time.Duration `koanf:"interval" validate:"required"`
	BatchSize   int           `koanf:"batch_size" validate:"required"`
	GracePeriod time.Duration `koanf:"grace_period" validate:"required"`
}

type MailerConfig struct {
	Host     string `koanf:"host" validate:"required"`
	Port     int    `koanf:"port" validate:"required"`
	Username string `koanf:"username"`
	Password string `koanf:"password"`
	From     string `koanf:"from" validate:"required"`
}

type LoggerConfig struct {
	Level string `koanf:"level"`
}

// NewLogger builds the application logger with the configured level.
func (c LoggerConfig) NewLogger() *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(c.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
}

func LoadConfig() (*Config, error) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelError,
	}))
	k := koanf.New(".")

	err := k.Load(env.Provider("PFSUB_", ".", func(s string) string {
		return strings.ReplaceAll(
			strings.ToLower(strings.TrimPrefix(s, "PFSUB_")),
			"__",
			".",
		)
	}), nil)
	if err != nil {
		logger.Error("failed to load environment variables", "error", err)
		return nil, err
	}

	mainConfig := &Config{}

	err = k.Unmarshal("", mainConfig)
	if err != nil {
		logger.Error("could not unmarshal main config", "error", err)
		return nil, err
	}

	validate := validator.New()

	err = validate.Struct(mainConfig)
	if err != nil {
		logger.Error("config validation failed", "error", err)
		return nil, err
	}

	return mainConfig, nil
}
