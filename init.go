package wsrelay

import (
	"flag"
	"strconv"

	"github.com/pkg/errors"
	klog "k8s.io/klog/v2"
)

// LogLevel is the klog verbosity used by the relay.
type LogLevel int64

const (
	LogLevelDefault   LogLevel = iota
	LogLevelErrorOnly          // 1
	LogLevelStandard           // 2: connection lifecycle
	LogLevelElevated           // 3: errors detected on sessions
	LogLevelFull               // 4: every relayed message
	LogLevelTrace              // 5: close reasons and endpoints
	LogLevelVerbose            // 6: message sizes per chunk
)

// InitOptions configure logging.
type InitOptions struct {
	LogLevel      LogLevel
	DebugFilePath string
}

// Init configures klog. The flags are registered on a private FlagSet so the
// caller's command line is left alone.
func Init(init InitOptions) error {
	if init.LogLevel == LogLevelDefault {
		init.LogLevel = LogLevelStandard
	}

	fs := flag.NewFlagSet("klog", flag.ContinueOnError)
	klog.InitFlags(fs)

	if err := fs.Set("v", strconv.FormatInt(int64(init.LogLevel), 10)); err != nil {
		return errors.Wrap(err, "setting log level")
	}
	if init.DebugFilePath != "" {
		if err := fs.Set("logtostderr", "false"); err != nil {
			return errors.Wrap(err, "disabling stderr logging")
		}
		if err := fs.Set("log_file", init.DebugFilePath); err != nil {
			return errors.Wrap(err, "setting log file")
		}
	}
	return nil
}
