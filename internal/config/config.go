package config

import (
	"encoding/json"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/typlive/typlive/internal/errors"
)

const (
	// ConfigFileName is the name of the optional configuration file.
	ConfigFileName = "typlive.json"

	// DefaultAddress is the default serving address.
	DefaultAddress = "127.0.0.1"

	// DefaultPort is the default serving port.
	DefaultPort = 5599

	// OutputFileName is the fixed name of the compiled artifact when
	// recompilation is enabled.
	OutputFileName = "output.pdf"

	// DefaultCompiler is the default compiler executable.
	DefaultCompiler = "typst"

	// DefaultMaxBrokenPipes is how many consecutive broken-pipe sends a
	// session tolerates before giving up on the connection.
	DefaultMaxBrokenPipes = 1

	// DefaultWriteTimeout bounds a single refresh write.
	DefaultWriteTimeout = "10s"

	// DefaultLogLevel is the default log level.
	DefaultLogLevel = "info"
)

// Config is the complete server configuration.
type Config struct {
	// Address is the address to serve on.
	Address string `json:"address,omitempty"`

	// Port is the port to serve on.
	Port int `json:"port,omitempty"`

	// Filename is the source document, or the artifact itself when
	// NoRecompile is set.
	Filename string `json:"filename,omitempty"`

	// NoRecompile serves Filename as-is instead of compiling it.
	NoRecompile bool `json:"noRecompile,omitempty"`

	// Compiler configures the external document compiler.
	Compiler CompilerConfig `json:"compiler,omitempty"`

	// Watch contains extra paths to watch for changes.
	Watch []string `json:"watch,omitempty"`

	// Ignore contains glob patterns to skip while watching.
	Ignore []string `json:"ignore,omitempty"`

	// Session contains notification session settings.
	Session SessionConfig `json:"session,omitempty"`

	// DisableMetrics turns off the /metrics endpoint.
	DisableMetrics bool `json:"disableMetrics,omitempty"`

	// OpenBrowser opens the landing page on start.
	OpenBrowser bool `json:"openBrowser,omitempty"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `json:"logLevel,omitempty"`

	// configPath stores the path where the config was loaded from.
	configPath string
}

// CompilerConfig configures the external compiler.
type CompilerConfig struct {
	// Command is the compiler executable.
	Command string `json:"command,omitempty"`

	// Args are extra arguments appended after the input and output paths.
	Args []string `json:"args,omitempty"`
}

// SessionConfig configures notification sessions.
type SessionConfig struct {
	// MaxBrokenPipes is the number of consecutive broken-pipe sends tolerated.
	// A negative value disables the limit.
	MaxBrokenPipes int `json:"maxBrokenPipes,omitempty"`

	// WriteTimeout bounds one refresh write (e.g., "10s").
	WriteTimeout string `json:"writeTimeout,omitempty"`
}

// New creates a new Config with default values.
func New() *Config {
	return &Config{
		Address: DefaultAddress,
		Port:    DefaultPort,
		Compiler: CompilerConfig{
			Command: DefaultCompiler,
		},
		Session: SessionConfig{
			MaxBrokenPipes: DefaultMaxBrokenPipes,
			WriteTimeout:   DefaultWriteTimeout,
		},
		LogLevel: DefaultLogLevel,
	}
}

// Load reads configuration from typlive.json in the specified directory.
func Load(dir string) (*Config, error) {
	return LoadFile(filepath.Join(dir, ConfigFileName))
}

// LoadOrDefault loads typlive.json from dir when present and falls back to
// defaults otherwise.
func LoadOrDefault(dir string) (*Config, error) {
	if !Exists(dir) {
		return New(), nil
	}
	return Load(dir)
}

// LoadFile reads configuration from the specified file path.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.New("T100").
				WithDetail("No config file found at " + path).
				WithSuggestion("Check the --config path or remove the flag to use defaults")
		}
		return nil, errors.New("T101").Wrap(err)
	}

	cfg := New()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, errors.New("T101").
			WithDetail("Failed to parse " + filepath.Base(path) + ": " + err.Error()).
			WithSuggestion("Check that the config file is valid JSON")
	}

	cfg.configPath = path
	cfg.applyDefaults()

	return cfg, nil
}

// Path returns the path where the config was loaded from.
func (c *Config) Path() string {
	return c.configPath
}

// Dir returns the directory containing the config file.
func (c *Config) Dir() string {
	if c.configPath == "" {
		return ""
	}
	return filepath.Dir(c.configPath)
}

// applyDefaults fills in default values for empty fields.
func (c *Config) applyDefaults() {
	if c.Address == "" {
		c.Address = DefaultAddress
	}
	if c.Port == 0 {
		c.Port = DefaultPort
	}
	if c.Compiler.Command == "" {
		c.Compiler.Command = DefaultCompiler
	}
	if c.Session.MaxBrokenPipes == 0 {
		c.Session.MaxBrokenPipes = DefaultMaxBrokenPipes
	}
	if c.Session.WriteTimeout == "" {
		c.Session.WriteTimeout = DefaultWriteTimeout
	}
	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}

	// Paths in the file are relative to the file.
	if c.Filename != "" {
		c.Filename = c.resolve(c.Filename)
	}
	for i, p := range c.Watch {
		c.Watch[i] = c.resolve(p)
	}
}

// Validate checks if the configuration is usable.
func (c *Config) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return errors.New("T102").
			WithDetail("Port must be between 0 and 65535, got " + strconv.Itoa(c.Port))
	}
	if c.Filename == "" {
		return errors.New("T103").
			WithSuggestion("Pass the document to preview, e.g. 'typlive main.typ'")
	}
	if _, err := os.Stat(c.Filename); err != nil {
		// Served as-is, the artifact may legitimately not exist yet.
		if !c.NoRecompile || !os.IsNotExist(err) {
			return errors.New("T104").
				WithDetail("Cannot access " + c.Filename).
				Wrap(err)
		}
	}
	for _, pattern := range c.Ignore {
		if !doublestar.ValidatePattern(pattern) {
			return errors.New("T105").
				WithDetail("Pattern " + strconv.Quote(pattern) + " is not a valid glob")
		}
	}
	if _, err := time.ParseDuration(c.Session.WriteTimeout); err != nil {
		return errors.Newf(errors.CategoryConfig, "invalid session write timeout %q", c.Session.WriteTimeout).Wrap(err)
	}
	return nil
}

// ServeAddress returns the host:port string to listen on.
func (c *Config) ServeAddress() string {
	return net.JoinHostPort(c.Address, strconv.Itoa(c.Port))
}

// URL returns the landing page URL.
func (c *Config) URL() string {
	return "http://" + c.ServeAddress()
}

// ArtifactPath returns the file the artifact responder serves: Filename
// verbatim when recompilation is disabled, otherwise the fixed output file
// next to the source.
func (c *Config) ArtifactPath() string {
	if c.NoRecompile {
		return c.Filename
	}
	return filepath.Join(filepath.Dir(c.Filename), OutputFileName)
}

// WriteTimeout returns the parsed session write timeout.
func (c *Config) WriteTimeout() time.Duration {
	d, err := time.ParseDuration(c.Session.WriteTimeout)
	if err != nil || d <= 0 {
		d, _ = time.ParseDuration(DefaultWriteTimeout)
	}
	return d
}

func (c *Config) resolve(path string) string {
	if path == "" || filepath.IsAbs(path) || c.Dir() == "" {
		return path
	}
	return filepath.Join(c.Dir(), path)
}

// Exists checks if a config file exists in the given directory.
func Exists(dir string) bool {
	_, err := os.Stat(filepath.Join(dir, ConfigFileName))
	return err == nil
}
