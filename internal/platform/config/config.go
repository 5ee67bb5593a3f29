package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	FileName           = "config.yaml"
	exportDirName      = "cordova-room-plan"
	defaultListen      = "127.0.0.1:8787"
	defaultLogLevel    = "info"
	defaultStartupWait = 3 * time.Second
)

type Config struct {
	HomeDir  string        `yaml:"-"`
	WorkDir  string        `yaml:"work_dir"`
	DBPath   string        `yaml:"db_path"`
	LogLevel string        `yaml:"log_level"`
	LogFile  string        `yaml:"log_file"`
	Scanner  ScannerConfig `yaml:"scanner"`
	Gateway  GatewayConfig `yaml:"gateway"`
}

type ScannerConfig struct {
	Binary       string        `yaml:"binary"`
	SHA256       string        `yaml:"sha256"`
	StartTimeout time.Duration `yaml:"start_timeout"`
	Coaching     bool          `yaml:"coaching"`
}

type GatewayConfig struct {
	Listen         string   `yaml:"listen"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// New returns the defaults rooted at homeDir.
func New(homeDir string) (Config, error) {
	if homeDir == "" {
		return Config{}, fmt.Errorf("home dir is required")
	}
	return Config{
		HomeDir:  homeDir,
		WorkDir:  filepath.Join(os.TempDir(), exportDirName),
		DBPath:   filepath.Join(homeDir, "roomscan.db"),
		LogLevel: defaultLogLevel,
		LogFile:  filepath.Join(homeDir, "roomscan.log"),
		Scanner: ScannerConfig{
			Binary:       filepath.Join(homeDir, "plugins", "scanner"),
			StartTimeout: defaultStartupWait,
			Coaching:     true,
		},
		Gateway: GatewayConfig{Listen: defaultListen},
	}, nil
}

// Load overlays the YAML file at path on the defaults. An empty path means
// <home>/config.yaml, which may be absent.
func Load(homeDir, path string) (Config, error) {
	cfg, err := New(homeDir)
	if err != nil {
		return Config{}, err
	}
	explicit := path != ""
	if !explicit {
		path = filepath.Join(homeDir, FileName)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && !explicit {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.HomeDir = homeDir
	cfg.resolvePaths()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.HomeDir == "" {
		return fmt.Errorf("home dir is required")
	}
	if c.WorkDir == "" {
		return fmt.Errorf("work_dir is required")
	}
	if c.Scanner.StartTimeout <= 0 {
		return fmt.Errorf("scanner.start_timeout must be positive")
	}
	if c.Gateway.Listen == "" {
		return fmt.Errorf("gateway.listen is required")
	}
	return nil
}

func (c *Config) resolvePaths() {
	c.DBPath = c.resolve(c.DBPath)
	c.LogFile = c.resolve(c.LogFile)
	c.Scanner.Binary = c.resolve(c.Scanner.Binary)
}

func (c Config) resolve(path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(c.HomeDir, path)
}
