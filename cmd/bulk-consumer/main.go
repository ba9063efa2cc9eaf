package main

import (
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/drone/envsubst"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"
	"github.com/grafana/dskit/flagext"
	"github.com/prometheus/client_golang/prometheus"
	ver "github.com/prometheus/client_golang/prometheus/collectors/version"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/common/version"
	"golang.org/x/time/rate"
	"gopkg.in/yaml.v2"

	"github.com/cm-well/bulk-consumer/modules/bulkconsume"
	"github.com/cm-well/bulk-consumer/modules/bulkconsume/fieldcache"
	"github.com/cm-well/bulk-consumer/modules/bulkconsume/formatters"
	"github.com/cm-well/bulk-consumer/modules/bulkconsume/indexclient"
	"github.com/cm-well/bulk-consumer/modules/bulkconsume/qpparser"
)

const appName = "bulk-consumer"

// Version is set via build flag -ldflags -X main.Version
var (
	Version  string
	Branch   string
	Revision string
)

func init() {
	version.Version = Version
	version.Branch = Branch
	version.Revision = Revision

	prometheus.MustRegister(ver.NewCollector(appName))
}

func main() {
	printVersion := flag.Bool("version", false, "Print version and exit")
	printExampleConfig := flag.Bool("config.example", false, "Print example configuration and exit")

	cfg, configVerify, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed parsing config: %v\n", err)
		os.Exit(1)
	}
	if *printVersion {
		fmt.Println(version.Print(appName))
		os.Exit(0)
	}
	if *printExampleConfig {
		fmt.Print(ExampleConfig())
		os.Exit(0)
	}

	logger := log.NewLogfmtLogger(log.NewSyncWriter(os.Stdout))
	logger = log.With(logger, "ts", log.DefaultTimestampUTC)
	logger = level.NewFilter(logger, level.AllowInfo())

	configValid := true
	if warnings := cfg.CheckConfig(); len(warnings) != 0 {
		level.Warn(logger).Log("msg", "-- CONFIGURATION WARNINGS --")
		for _, w := range warnings {
			output := []any{"msg", w.Message}
			if w.Explain != "" {
				output = append(output, "explain", w.Explain)
			}
			level.Warn(logger).Log(output...)
		}
		configValid = false
	}

	if configVerify {
		if err := cfg.Validate(); err != nil {
			level.Error(logger).Log("msg", "invalid configuration", "err", err)
			os.Exit(1)
		}
		if !configValid {
			os.Exit(1)
		}
		level.Info(logger).Log("msg", "configuration is valid")
		os.Exit(0)
	}

	if err := cfg.Validate(); err != nil {
		level.Error(logger).Log("msg", "invalid configuration", "err", err)
		os.Exit(1)
	}

	level.Info(logger).Log(
		"msg", "starting bulk consume coordinator",
		"version", Version,
		"indexEndpoint", cfg.Index.Endpoint,
	)

	reg := prometheus.DefaultRegisterer

	cache, err := newFieldCache(*cfg, logger)
	if err != nil {
		level.Error(logger).Log("msg", "failed to build field-types cache", "err", err)
		os.Exit(1)
	}

	var limiter *rate.Limiter
	if cfg.RateLimit.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit.RequestsPerSecond), cfg.RateLimit.Burst)
	}

	fastIndex := indexclient.New(cfg.Index, log.With(logger, "index", "fast"))
	sources := bulkconsume.SourceSelector{Fast: fastIndex}
	if cfg.SlowIndex.Endpoint != "" {
		sources.Slow = indexclient.New(cfg.SlowIndex, log.With(logger, "index", "slow"))
	}

	finder := bulkconsume.NewFinder(fastIndex, limiter, reg, log.With(logger, "component", "range-finder"))

	dispatcher := bulkconsume.NewDispatcher(cfg.Dispatcher, bulkconsume.Dependencies{
		Finder:            finder,
		Prober:            fastIndex,
		FieldFilterParser: qpparser.New(cache),
		Sources:           sources,
		BodyResolver:      fastIndex,
		Formatters:        formatters.New(),
		Logger:            log.With(logger, "component", "dispatcher"),
	}, reg)

	router := mux.NewRouter()
	dispatcher.RegisterRoutes(router)
	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	router.HandleFunc("/ready", readyHandler).Methods(http.MethodGet)

	addr := fmt.Sprintf("%s:%d", cfg.HTTPListenAddress, cfg.HTTPListenPort)
	server := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	done := make(chan bool, 1)
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		level.Info(logger).Log("msg", "shutting down server...")
		if err := server.Close(); err != nil {
			level.Error(logger).Log("msg", "error during shutdown", "err", err)
		}
		done <- true
	}()

	level.Info(logger).Log("msg", "server listening", "addr", addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		level.Error(logger).Log("msg", "server error", "err", err)
		os.Exit(1)
	}

	<-done
	level.Info(logger).Log("msg", "server stopped")
}

func readyHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprint(w, "ready")
}

func newFieldCache(cfg Config, logger log.Logger) (fieldcache.Cache, error) {
	if cfg.FieldCache.Backend == "redis" {
		client := redis.NewClient(&redis.Options{Addr: cfg.FieldCache.RedisAddr})
		level.Info(logger).Log("msg", "using redis field-types cache", "addr", cfg.FieldCache.RedisAddr)
		return fieldcache.NewRedis(client, cfg.FieldCache.RedisPrefix, cfg.FieldCache.RedisTTL), nil
	}
	return fieldcache.NewLRU(cfg.FieldCache.LRUSize)
}

func loadConfig() (*Config, bool, error) {
	const (
		configFileOption      = "config.file"
		configExpandEnvOption = "config.expand-env"
		configVerifyOption    = "config.verify"
	)

	var (
		configFile      string
		configExpandEnv bool
		configVerify    bool
	)

	args := os.Args[1:]
	config := &Config{}

	fs := flag.NewFlagSet("", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.StringVar(&configFile, configFileOption, "", "")
	fs.BoolVar(&configExpandEnv, configExpandEnvOption, false, "")
	fs.BoolVar(&configVerify, configVerifyOption, false, "")

	for len(args) > 0 {
		_ = fs.Parse(args)
		args = args[1:]
	}

	config.RegisterFlagsAndApplyDefaults("", flag.CommandLine)

	if configFile != "" {
		buff, err := os.ReadFile(configFile)
		if err != nil {
			return nil, false, fmt.Errorf("failed to read configFile %s: %w", configFile, err)
		}

		if configExpandEnv {
			s, err := envsubst.EvalEnv(string(buff))
			if err != nil {
				return nil, false, fmt.Errorf("failed to expand env vars from configFile %s: %w", configFile, err)
			}
			buff = []byte(s)
		}

		err = yaml.UnmarshalStrict(buff, config)
		if err != nil {
			return nil, false, fmt.Errorf("failed to parse configFile %s: %w", configFile, err)
		}
	}

	flagext.IgnoredFlag(flag.CommandLine, configFileOption, "Configuration file to load")
	flagext.IgnoredFlag(flag.CommandLine, configExpandEnvOption, "Whether to expand environment variables in config file")
	flagext.IgnoredFlag(flag.CommandLine, configVerifyOption, "Verify configuration and exit")
	flag.Parse()

	return config, configVerify, nil
}
