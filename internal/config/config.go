// Package config loads the broker's flat, environment-variable-driven
// configuration (§6 of the protocol specification): there is no nested
// or hierarchical configuration surface here, so this stays a plain
// struct with defaults rather than reaching for a config framework.
package config

import (
	"os"
	"strconv"

	"github.com/cockroachdb/errors"
)

// Config holds every recognized runtime option.
type Config struct {
	Host string
	Port string

	ServerCert string
	ServerKey  string
	CACert     string
	MutualTLS  bool

	DBPath        string
	FernetKeyPath string
}

// Default returns sane defaults for local development, with every field
// overridable via environment variable.
func Default() *Config {
	return &Config{
		Host:          "0.0.0.0",
		Port:          "8883",
		ServerCert:    "",
		ServerKey:     "",
		CACert:        "",
		MutualTLS:     false,
		DBPath:        "./data/broker.db",
		FernetKeyPath: "./data/fernet.key",
	}
}

// Load builds a Config from Default(), overridden by any of HOST, PORT,
// SERVER_CERT, SERVER_KEY, CA_CERT, MUTUAL_TLS, DB_PATH, FERNET_KEY_PATH
// present in the environment.
func Load() (*Config, error) {
	c := Default()

	if v := os.Getenv("HOST"); v != "" {
		c.Host = v
	}
	if v := os.Getenv("PORT"); v != "" {
		c.Port = v
	}
	if v := os.Getenv("SERVER_CERT"); v != "" {
		c.ServerCert = v
	}
	if v := os.Getenv("SERVER_KEY"); v != "" {
		c.ServerKey = v
	}
	if v := os.Getenv("CA_CERT"); v != "" {
		c.CACert = v
	}
	if v := os.Getenv("MUTUAL_TLS"); v != "" {
		mutual, err := strconv.ParseBool(v)
		if err != nil {
			return nil, errors.Wrap(err, "config: MUTUAL_TLS must be a boolean")
		}
		c.MutualTLS = mutual
	}
	if v := os.Getenv("DB_PATH"); v != "" {
		c.DBPath = v
	}
	if v := os.Getenv("FERNET_KEY_PATH"); v != "" {
		c.FernetKeyPath = v
	}

	return c, nil
}

// Addr is the host:port pair ready for net.Listen.
func (c *Config) Addr() string {
	return c.Host + ":" + c.Port
}

// RequiresTLS reports whether enough material is configured to build a
// TLS context. Bootstrap treats a missing cert/key pair as fatal.
func (c *Config) RequiresTLS() bool {
	return c.ServerCert != "" && c.ServerKey != ""
}
