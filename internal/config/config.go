package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	domain "github.com/bryanwahyu/scan-trigger/internal/domain/scans"
)

const (
	DefaultPort        = 5001
	DefaultScript      = "scan.py"
	DefaultInterpreter = "python"
)

type Config struct {
	Server struct {
		Port              int           `yaml:"port"`
		ReadHeaderTimeout time.Duration `yaml:"readHeaderTimeout"`
		IdleTimeout       time.Duration `yaml:"idleTimeout"`
		ShutdownTimeout   time.Duration `yaml:"shutdownTimeout"`
	} `yaml:"server"`

	Scan struct {
		// InstallRoot is the directory Script is resolved against. Empty means
		// the directory holding the running executable.
		InstallRoot string   `yaml:"installRoot"`
		Script      string   `yaml:"script"`
		Interpreter string   `yaml:"interpreter"`
		Args        []string `yaml:"args"`
		WorkDir     string   `yaml:"workDir"`
		Env         []string `yaml:"env"`
	} `yaml:"scan"`

	CORS struct {
		AllowedOrigins   []string `yaml:"allowedOrigins"`
		AllowCredentials bool     `yaml:"allowCredentials"`
		MaxAge           int      `yaml:"maxAge"`
	} `yaml:"cors"`

	Log struct {
		Level string `yaml:"level"`
	} `yaml:"log"`

	RateLimit struct {
		// RequestsPerSecond <= 0 disables limiting.
		RequestsPerSecond float64 `yaml:"requestsPerSecond"`
		Burst             int     `yaml:"burst"`
	} `yaml:"rateLimit"`
}

// Default returns the configuration used when no file is present.
func Default() Config {
	var cfg Config
	cfg.Server.Port = DefaultPort
	cfg.Server.ReadHeaderTimeout = 10 * time.Second
	cfg.Server.IdleTimeout = 60 * time.Second
	cfg.Server.ShutdownTimeout = 5 * time.Second
	cfg.Scan.Script = DefaultScript
	cfg.Scan.Interpreter = DefaultInterpreter
	cfg.CORS.AllowedOrigins = []string{"*"}
	cfg.Log.Level = "info"
	return cfg
}

// Load baca file config.yaml on top of Default, then applies env overrides.
// When optional is true a missing file is not an error.
func Load(path string, optional bool) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", path, err)
		}
	case optional && errors.Is(err, fs.ErrNotExist):
	default:
		return Config{}, err
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup("PORT"); ok && v != "" {
		p, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("PORT: %w", err)
		}
		c.Server.Port = p
	}
	if v, ok := lookup("SCAN_SCRIPT"); ok && v != "" {
		c.Scan.Script = v
	}
	// set but empty means run the script directly
	if v, ok := lookup("SCAN_INTERPRETER"); ok {
		c.Scan.Interpreter = v
	}
	if v, ok := lookup("INSTALL_ROOT"); ok && v != "" {
		c.Scan.InstallRoot = v
	}
	if v, ok := lookup("LOG_LEVEL"); ok && v != "" {
		c.Log.Level = v
	}
	if v, ok := lookup("CORS_ALLOWED_ORIGINS"); ok && v != "" {
		var origins []string
		for _, o := range strings.Split(v, ",") {
			if o = strings.TrimSpace(o); o != "" {
				origins = append(origins, o)
			}
		}
		c.CORS.AllowedOrigins = origins
	}
	return nil
}

func (c Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	if strings.TrimSpace(c.Scan.Script) == "" {
		return errors.New("scan.script is required")
	}
	if c.RateLimit.RequestsPerSecond > 0 && c.RateLimit.Burst <= 0 {
		return errors.New("rateLimit.burst must be positive when rateLimit.requestsPerSecond is set")
	}
	return nil
}

// Addr is the listen address for the HTTP server.
func (c Config) Addr() string {
	return fmt.Sprintf(":%d", c.Server.Port)
}

// ResolveCommand builds the scan command. Relative paths are joined onto the
// install root, never onto the process working directory.
func (c Config) ResolveCommand() (domain.Command, error) {
	root := c.Scan.InstallRoot
	if root == "" {
		exe, err := os.Executable()
		if err != nil {
			return domain.Command{}, fmt.Errorf("locate executable: %w", err)
		}
		if exe, err = filepath.EvalSymlinks(exe); err != nil {
			return domain.Command{}, fmt.Errorf("locate executable: %w", err)
		}
		root = filepath.Dir(exe)
	}
	root, err := filepath.Abs(root)
	if err != nil {
		return domain.Command{}, fmt.Errorf("install root: %w", err)
	}

	dir := root
	if c.Scan.WorkDir != "" {
		dir = under(root, c.Scan.WorkDir)
	}

	return domain.Command{
		Interpreter: c.Scan.Interpreter,
		Path:        under(root, c.Scan.Script),
		Args:        append([]string(nil), c.Scan.Args...),
		Dir:         dir,
		Env:         append([]string(nil), c.Scan.Env...),
	}, nil
}

func under(root, p string) string {
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(root, p)
}
