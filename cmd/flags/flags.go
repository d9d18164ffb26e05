package flags

import (
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ruteri/bank-session-client/common"
	"github.com/ruteri/bank-session-client/httpserver"
	"github.com/urfave/cli/v2"
)

func SetupLogger(cCtx *cli.Context) (log *slog.Logger) {
	logJSON := cCtx.Bool(LogJsonFlag.Name)
	logDebug := cCtx.Bool(LogDebugFlag.Name)
	logUID := cCtx.Bool(LogUidFlag.Name)
	logService := cCtx.String("log-service")

	logger := common.SetupLogger(&common.LoggingOpts{
		Debug:   logDebug,
		JSON:    logJSON,
		Service: logService,
		Version: common.Version,
	})

	if logUID {
		id := uuid.Must(uuid.NewRandom())
		logger = logger.With("uid", id.String())
	}
	return logger
}

func ConfigureServer(cCtx *cli.Context, logger *slog.Logger, listenAddr string) *httpserver.HTTPServerConfig {
	metricsAddr := cCtx.String(MetricsAddrFlag.Name)
	enablePprof := cCtx.Bool(PprofFlag.Name)
	drainDuration := time.Duration(cCtx.Int64(DrainSecondsFlag.Name)) * time.Second

	return &httpserver.HTTPServerConfig{
		ListenAddr:               listenAddr,
		MetricsAddr:              metricsAddr,
		Log:                      logger,
		EnablePprof:              enablePprof,
		DrainDuration:            drainDuration,
		GracefulShutdownDuration: 30 * time.Second,
		ReadTimeout:              60 * time.Second,
		WriteTimeout:             30 * time.Second,
	}
}

var LogJsonFlag = &cli.BoolFlag{
	Name:  "log-json",
	Value: false,
	Usage: "log in JSON format",
}
var LogDebugFlag = &cli.BoolFlag{
	Name:  "log-debug",
	Value: false,
	Usage: "log debug messages",
}
var LogUidFlag = &cli.BoolFlag{
	Name:  "log-uid",
	Value: false,
	Usage: "generate a uuid and add to all log messages",
}

// LogServiceFlagFn returns the log-service flag defaulting to service.
var LogServiceFlagFn = func(service string) *cli.StringFlag {
	return &cli.StringFlag{
		Name:  "log-service",
		Value: service,
		Usage: "add 'service' tag to logs",
	}
}

var PprofFlag = &cli.BoolFlag{
	Name:  "pprof",
	Value: false,
	Usage: "enable pprof debug endpoint",
}
var DrainSecondsFlag = &cli.Int64Flag{
	Name:  "drain-seconds",
	Value: 45,
	Usage: "seconds to wait in drain HTTP request",
}
var MetricsAddrFlag = &cli.StringFlag{
	Name:  "metrics-addr",
	Value: "127.0.0.1:8090",
	Usage: "address to listen on for Prometheus metrics",
}

// LogFlags are shared by every binary.
var LogFlags = []cli.Flag{
	LogJsonFlag,
	LogDebugFlag,
	LogUidFlag,
}

// ServerFlags are shared by binaries hosting an httpserver.Server.
var ServerFlags = []cli.Flag{
	PprofFlag,
	DrainSecondsFlag,
	MetricsAddrFlag,
}

// WithEnvPrefix returns copies of fs, each bound to an environment variable
// named PREFIX_FLAG_NAME, e.g. BANKCTL_LOG_JSON. The shared flag values are
// left untouched, so binaries can bind the same flags to different prefixes.
func WithEnvPrefix(prefix string, fs []cli.Flag) []cli.Flag {
	out := make([]cli.Flag, 0, len(fs))
	for _, f := range fs {
		env := prefix + "_" + envName(f.Names()[0])
		switch f := f.(type) {
		case *cli.StringFlag:
			c := *f
			c.EnvVars = withEnv(f.EnvVars, env)
			out = append(out, &c)
		case *cli.StringSliceFlag:
			c := *f
			c.EnvVars = withEnv(f.EnvVars, env)
			out = append(out, &c)
		case *cli.BoolFlag:
			c := *f
			c.EnvVars = withEnv(f.EnvVars, env)
			out = append(out, &c)
		case *cli.Int64Flag:
			c := *f
			c.EnvVars = withEnv(f.EnvVars, env)
			out = append(out, &c)
		case *cli.DurationFlag:
			c := *f
			c.EnvVars = withEnv(f.EnvVars, env)
			out = append(out, &c)
		default:
			out = append(out, f)
		}
	}
	return out
}

func withEnv(envVars []string, env string) []string {
	if slices.Contains(envVars, env) {
		return slices.Clone(envVars)
	}
	return append(slices.Clone(envVars), env)
}

func envName(flag string) string {
	return strings.ToUpper(strings.ReplaceAll(flag, "-", "_"))
}
