package config

import (
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix namespaces environment variables: DOCSTORE_DSN and so on.
const EnvPrefix = "docstore"

// Keys understood by Resolve. Flags with these names override the file.
const (
	KeyConfig        = "config"
	KeyDriver        = "driver"
	KeyDSN           = "dsn"
	KeyTable         = "table"
	KeyPageSize      = "page-size"
	KeyEncryptionKey = "encryption-key"
	KeyHashFilters   = "hash-filters"
	KeyStrictDecode  = "strict-decode"
	KeyLogLevel      = "log-level"
)

// NewViper returns a viper instance reading DOCSTORE_* variables.
// .env and .env.local in the working directory are loaded first when
// present.
func NewViper() *viper.Viper {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	return v
}

// Resolve builds the effective configuration: defaults, then the file
// named by the config key (if any), then any key set in v.
func Resolve(v *viper.Viper) (Config, error) {
	cfg := Default()
	if path := v.GetString(KeyConfig); path != "" {
		loaded, err := Load(path)
		if err != nil {
			return Config{}, err
		}
		cfg = loaded
	}

	if v.IsSet(KeyDriver) {
		cfg.Driver = v.GetString(KeyDriver)
	}
	if v.IsSet(KeyDSN) {
		cfg.DSN = v.GetString(KeyDSN)
	}
	if v.IsSet(KeyTable) {
		cfg.Table = v.GetString(KeyTable)
	}
	if v.IsSet(KeyPageSize) {
		cfg.PageSize = v.GetInt(KeyPageSize)
	}
	if v.IsSet(KeyEncryptionKey) {
		cfg.EncryptionKey = v.GetString(KeyEncryptionKey)
	}
	if v.IsSet(KeyHashFilters) {
		cfg.HashFilters = v.GetBool(KeyHashFilters)
	}
	if v.IsSet(KeyStrictDecode) {
		cfg.StrictDecode = v.GetBool(KeyStrictDecode)
	}
	if v.IsSet(KeyLogLevel) {
		cfg.LogLevel = v.GetString(KeyLogLevel)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}
