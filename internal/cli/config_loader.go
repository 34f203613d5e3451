package cli

import (
	"errors"
	"os"

	"mailcrawl/internal/config"
	"mailcrawl/internal/secrets"
)

// loadConfig loads the effective configuration and resolves the endpoint
// password: environment first, then the config file, then the keyring entry
// for the configured username.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return cfg, err
	}

	if _, ok := os.LookupEnv("MAILCRAWL_ENDPOINT_PASSWORD"); ok {
		cfg.Endpoint.PasswordSource = "env"
		return cfg, nil
	}

	if cfg.Endpoint.Password != "" {
		cfg.Endpoint.PasswordSource = "config"
		return cfg, nil
	}

	if cfg.Endpoint.Username == "" {
		return cfg, nil
	}

	password, err := secrets.GetPassword(cfg.Endpoint.Username)
	if err != nil {
		if errors.Is(err, secrets.ErrSecretNotFound) {
			return cfg, nil
		}
		return cfg, err
	}

	cfg.Endpoint.Password = password
	cfg.Endpoint.PasswordSource = "keyring"
	return cfg, nil
}
