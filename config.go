package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/xplshn/tracerr2"
	"gopkg.in/yaml.v3"
)

const (
	defaultPort   = 8080
	defaultRoot   = "."
	defaultReadme = "README.md"
)

type Config struct {
	Host        string
	Port        int
	Root        string
	OpenBrowser bool
	Readme      string
}

// FileConfig mirrors Config with pointer fields so that keys missing from the
// YAML file keep their defaults.
type FileConfig struct {
	Host        *string `yaml:"host"`
	Port        *int    `yaml:"port"`
	Root        *string `yaml:"root"`
	OpenBrowser *bool   `yaml:"open-browser"`
	Readme      *string `yaml:"readme"`
}

func defaultConfig() *Config {
	return &Config{
		Port:        defaultPort,
		Root:        defaultRoot,
		OpenBrowser: true,
		Readme:      defaultReadme,
	}
}

func (c *Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

func siteURL(port int) string {
	return fmt.Sprintf("http://localhost:%d", port)
}

var envRef = regexp.MustCompile(`\{\{\s*env\.(\w+)\s*\}\}`)

// expandEnv substitutes {{ env.NAME }} references and reports every
// variable that is unset or empty, not just the first one.
func expandEnv(data []byte) ([]byte, error) {
	var missing []string
	expanded := envRef.ReplaceAllFunc(data, func(ref []byte) []byte {
		name := string(envRef.FindSubmatch(ref)[1])
		if value := os.Getenv(name); value != "" {
			return []byte(value)
		}
		if !slices.Contains(missing, name) {
			missing = append(missing, name)
		}
		return nil
	})
	if len(missing) > 0 {
		return nil, tracerr.New(fmt.Sprintf("environment variables not set or empty: %s", strings.Join(missing, ", ")))
	}
	return expanded, nil
}

func readConfigFile(path string, logger *slog.Logger) (*FileConfig, error) {
	logger.Info("loading configuration file", "path", path)
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, tracerr.Wrapf(err, "error reading config file %s", path)
	}
	expanded, err := expandEnv(raw)
	if err != nil {
		return nil, tracerr.Wrapf(err, "config file %s", path)
	}

	// Unknown keys are rejected so a typo does not silently fall back to a default.
	var fc FileConfig
	dec := yaml.NewDecoder(bytes.NewReader(expanded))
	dec.KnownFields(true)
	if err := dec.Decode(&fc); err != nil && !errors.Is(err, io.EOF) {
		return nil, tracerr.Wrapf(err, "error parsing config file %s", path)
	}
	return &fc, nil
}

func resolveConfig(fc *FileConfig) (*Config, error) {
	cfg := defaultConfig()
	if fc == nil {
		return cfg, nil
	}
	if fc.Host != nil {
		cfg.Host = *fc.Host
	}
	if fc.Port != nil {
		cfg.Port = *fc.Port
	}
	if fc.Root != nil {
		cfg.Root = *fc.Root
	}
	if fc.OpenBrowser != nil {
		cfg.OpenBrowser = *fc.OpenBrowser
	}
	if fc.Readme != nil {
		cfg.Readme = *fc.Readme
	}

	if cfg.Port < 0 || cfg.Port > 65535 {
		return nil, tracerr.New(fmt.Sprintf("port %d out of range", cfg.Port))
	}
	if cfg.Root == "" {
		cfg.Root = defaultRoot
	}
	return cfg, nil
}

// loadConfig returns the built-in defaults when path is empty.
func loadConfig(path string, logger *slog.Logger) (*Config, error) {
	if path == "" {
		return defaultConfig(), nil
	}
	fc, err := readConfigFile(path, logger)
	if err != nil {
		return nil, err
	}
	return resolveConfig(fc)
}
