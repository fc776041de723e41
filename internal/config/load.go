package config

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// env names shared with the other services of the deployment
var envBindings = map[string]string{
	"server.port":          "PORT",
	"server.service_name":  "SERVICE_NAME",
	"server.log_level":     "LOG_LEVEL",
	"auth.jwt_secret":      "JWT_SECRET",
	"services.catalog.url": "CATALOG_SERVICE_URL",
}

// Load reads defaults, then the optional config file, then the environment.
// Environment variables win; besides the names in envBindings every key is
// also reachable as ADMIN_<SECTION>_<KEY>.
func Load(configFile string) (*Config, error) {
	v := viper.New()

	v.SetDefault("server.port", 3009)
	v.SetDefault("server.service_name", "admin-service")
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("auth.token_lifetime", "24h")
	v.SetDefault("auth.admin_email", "admin@bookzilla.com")
	v.SetDefault("auth.admin_password", "admin123")
	v.SetDefault("services.catalog.url", "http://catalog-service:3002")
	v.SetDefault("services.catalog.timeout", "15s")
	v.SetDefault("services.catalog.retries", 2)

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", configFile, err)
		}
	}

	v.SetEnvPrefix("ADMIN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, env := range envBindings {
		if err := v.BindEnv(key, "ADMIN_"+strings.ToUpper(strings.ReplaceAll(key, ".", "_")), env); err != nil {
			return nil, fmt.Errorf("error binding %s: %w", key, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshalling config: %w", err)
	}
	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}
