package config

import (
	"time"

	"github.com/RassulYunussov/svcclient"
)

// Config holds the admin service configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server" validate:"required"`
	Auth     AuthConfig     `mapstructure:"auth" validate:"required"`
	Services ServicesConfig `mapstructure:"services" validate:"required"`
}

type ServerConfig struct {
	Port            int           `mapstructure:"port" validate:"required,gt=0,lt=65536"`
	ServiceName     string        `mapstructure:"service_name" validate:"required"`
	LogLevel        string        `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"gt=0"`
}

type AuthConfig struct {
	JWTSecret     string        `mapstructure:"jwt_secret" validate:"required,min=32"`
	TokenLifetime time.Duration `mapstructure:"token_lifetime" validate:"gt=0"`
	AdminEmail    string        `mapstructure:"admin_email" validate:"required,email"`
	AdminPassword string        `mapstructure:"admin_password" validate:"required"`
}

// TargetConfig describes one upstream service reached through svcclient.
type TargetConfig struct {
	URL     string        `mapstructure:"url" validate:"required,url"`
	Timeout time.Duration `mapstructure:"timeout" validate:"gt=0"`
	Retries int           `mapstructure:"retries" validate:"gte=0"`
}

type ServicesConfig struct {
	Catalog TargetConfig `mapstructure:"catalog" validate:"required"`
}

func (t TargetConfig) ClientConfig(serviceName string) svcclient.ClientConfig {
	return svcclient.ClientConfig{
		BaseAddress: t.URL,
		ServiceName: serviceName,
		Timeout:     t.Timeout,
		MaxRetries:  t.Retries,
	}
}
