package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/koding/wsrelay/pkg/common"
)

// Config holds the runtime configuration of the relay server
type Config struct {
	// ListenAddr is the address the HTTP server listens on
	ListenAddr string

	// Path is the HTTP path clients connect to
	Path string

	// TargetURL is the ws:// or wss:// URL every client is relayed to
	TargetURL string

	// LogLevel is the klog verbosity
	LogLevel int

	// LogFile, if set, redirects logs from stderr to the file
	LogFile string

	// NaturalTunnel forwards all non hop-by-hop request headers to the target
	NaturalTunnel bool

	// ForwardPath appends the client's request path and query to TargetURL
	ForwardPath bool

	WholeText        bool
	TextBufferSize   int
	WholeBinary      bool
	BinaryBufferSize int

	errs []string
}

// Load creates a Config by reading from environment variables
// and applying defaults where values are not set
func Load() *Config {
	c := &Config{
		ListenAddr: getEnvOrDefault("WSRELAY_LISTEN_ADDR", ":8080"),
		Path:       getEnvOrDefault("WSRELAY_PATH", "/"),
		TargetURL:  getEnvOrDefault("WSRELAY_TARGET_URL", ""),
		LogFile:    getEnvOrDefault("WSRELAY_LOG_FILE", ""),
	}
	c.LogLevel = c.intEnv("WSRELAY_LOG_LEVEL", 2)
	c.NaturalTunnel = c.boolEnv("WSRELAY_NATURAL_TUNNEL", false)
	c.ForwardPath = c.boolEnv("WSRELAY_FORWARD_PATH", false)
	c.WholeText = c.boolEnv("WSRELAY_WHOLE_TEXT", false)
	c.TextBufferSize = c.intEnv("WSRELAY_TEXT_BUFFER_SIZE", common.DefaultBufferSize)
	c.WholeBinary = c.boolEnv("WSRELAY_WHOLE_BINARY", false)
	c.BinaryBufferSize = c.intEnv("WSRELAY_BINARY_BUFFER_SIZE", common.DefaultBufferSize)
	return c
}

// Validate checks that required configuration values are present and well formed
func (c *Config) Validate() error {
	problems := append([]string(nil), c.errs...)

	if c.TargetURL == "" {
		problems = append(problems, "missing WSRELAY_TARGET_URL")
	} else if _, err := c.Target(); err != nil {
		problems = append(problems, err.Error())
	}
	if !strings.HasPrefix(c.Path, "/") {
		problems = append(problems, fmt.Sprintf("path %q must start with /", c.Path))
	}
	if c.TextBufferSize <= 0 {
		problems = append(problems, "text buffer size must be positive")
	}
	if c.BinaryBufferSize <= 0 {
		problems = append(problems, "binary buffer size must be positive")
	}

	if len(problems) > 0 {
		return errors.Errorf("invalid configuration: %s", strings.Join(problems, ", "))
	}
	return nil
}

// Target parses TargetURL
func (c *Config) Target() (*url.URL, error) {
	u, err := url.Parse(c.TargetURL)
	if err != nil {
		return nil, errors.Wrap(err, "invalid target URL")
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return nil, errors.Errorf("target URL scheme must be ws or wss, got %q", u.Scheme)
	}
	if u.Host == "" {
		return nil, errors.Errorf("target URL %q has no host", c.TargetURL)
	}
	return u, nil
}

// RelayOptions returns the relay options, applied to both directions
func (c *Config) RelayOptions() common.RelayOptions {
	direction := common.DirectionOptions{
		Text:   common.MessageOptions{Whole: c.WholeText, BufferSize: c.TextBufferSize},
		Binary: common.MessageOptions{Whole: c.WholeBinary, BufferSize: c.BinaryBufferSize},
	}
	return common.RelayOptions{
		ClientToTarget: direction,
		TargetToClient: direction,
	}
}

func (c *Config) intEnv(key string, defaultValue int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		c.errs = append(c.errs, fmt.Sprintf("%s: %q is not an integer", key, val))
		return defaultValue
	}
	return n
}

func (c *Config) boolEnv(key string, defaultValue bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		c.errs = append(c.errs, fmt.Sprintf("%s: %q is not a boolean", key, val))
		return defaultValue
	}
	return b
}

// getEnvOrDefault retrieves an environment variable or returns a default value
func getEnvOrDefault(key, defaultValue string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultValue
}
