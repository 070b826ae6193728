// Package config loads layered configuration: defaults, an optional YAML
// file, then FIN_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix namespaces environment overrides: api.base_url is read from
// FIN_API_BASE_URL.
const EnvPrefix = "FIN"

// HomeDir is the per-user directory searched for config files.
const HomeDir = ".fin-dashboard"

// Load returns a viper instance for name. location is either a config file
// or a directory to search before the working directory, ./config and
// ~/.fin-dashboard. Missing files are fine; malformed ones are not.
func Load(location, name string) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if isFile(location) {
		v.SetConfigFile(location)
	} else {
		v.SetConfigName(name)
		v.SetConfigType("yaml")
		for _, dir := range searchPaths(location) {
			v.AddConfigPath(dir)
		}
	}

	err := v.ReadInConfig()
	var notFound viper.ConfigFileNotFoundError
	switch {
	case err == nil, errors.As(err, &notFound):
		return v, nil
	default:
		return nil, fmt.Errorf("read config: %w", err)
	}
}

func searchPaths(extra string) []string {
	paths := []string{".", "config"}
	if extra != "" {
		paths = append([]string{extra}, paths...)
	}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, HomeDir))
	}
	return paths
}

func isFile(path string) bool {
	if path == "" {
		return false
	}
	fi, err := os.Stat(path)
	return err == nil && fi.Mode().IsRegular()
}

// GetEnv returns the environment value of key, or fallback when unset or
// empty.
func GetEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}
