package main

import (
	"context"
	"errors"
	"flag"
	"io"
	"log/slog"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
	"github.com/openstack/ironic-prometheus-exporter/collector"
	"github.com/openstack/ironic-prometheus-exporter/config"
	"github.com/openstack/ironic-prometheus-exporter/notifier"
	"github.com/openstack/ironic-prometheus-exporter/textfile"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/exporter-toolkit/web"
	"golang.org/x/sync/errgroup"
)

var (
	webConfig     = flag.String("web.config-file", "", "Path to web configuration file.")
	configFile    = flag.String("config.file", "config.yml", "Path to configuration file.")
	pprofEnabled  = flag.Bool("pprof.enabled", false, "Enable pprof handler at /debug/pprof")
	listenAddress = flag.String(
		"web.listen-address",
		":9608",
		"Address to listen on for web interface and telemetry.",
	)
	safeConfig = &config.SafeConfig{
		Config: &config.Config{},
	}
	logLevel = new(slog.LevelVar)
	reloadCh = make(chan chan error)
)

func reloadHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost && r.Method != http.MethodPut {
			http.Error(w, "Only PUT and POST methods are allowed", http.StatusBadRequest)
			return
		}
		slog.Info("Triggered configuration reload from /-/reload HTTP endpoint")

		rc := make(chan error, 1)
		select {
		case reloadCh <- rc:
		case <-r.Context().Done():
			return
		}
		if err := <-rc; err != nil {
			http.Error(w, "failed to reload config file", http.StatusInternalServerError)
			return
		}

		w.WriteHeader(http.StatusOK)
		if _, err := io.WriteString(w, "Configuration reloaded successfully!"); err != nil {
			slog.Warn("failed to send configuration reload status message")
		}
	}
}

// reload re-reads the config file. Only the log level is applied to the running exporter.
func reload(logger *slog.Logger, source string) error {
	previous := safeConfig.Current()
	if err := safeConfig.ReloadConfig(*configFile); err != nil {
		logger.Error("failed to reload config file", slog.String("source", source), slog.Any("error", err))
		return err
	}
	current := safeConfig.Current()
	logLevel.Set(parseLogLevel(current.Loglevel))
	logger.Info("config file reloaded", slog.String("source", source), slog.String("loglevel", logLevel.Level().String()))
	if restartRequired(previous, current) {
		logger.Warn("changes to location, amqp or json_metrics take effect after a restart")
	}
	return nil
}

func restartRequired(previous, current *config.Config) bool {
	return previous.Location != current.Location ||
		!cmp.Equal(previous.AMQP, current.AMQP) ||
		!cmp.Equal(previous.JSONMetrics, current.JSONMetrics)
}

// Parse the log level from input
func parseLogLevel(level string) slog.Level {
	ret := slog.LevelInfo
	switch level {
	case "debug":
		ret = slog.LevelDebug
	case "info":
		ret = slog.LevelInfo
	case "warn", "warning":
		ret = slog.LevelWarn
	case "error":
		ret = slog.LevelError
	default:
		slog.Warn("Invalid loglevel provided. Fallback to default", slog.String("loglevel", level))
	}

	return ret
}

func newLogger(out *os.File, level slog.Leveler) *slog.Logger {
	if isatty.IsTerminal(out.Fd()) {
		return slog.New(tint.NewHandler(out, &tint.Options{
			Level:      level,
			TimeFormat: time.TimeOnly,
		}))
	}
	return slog.New(slog.NewJSONHandler(out, &slog.HandlerOptions{Level: level}))
}

// configLoop serialises every config reload trigger: SIGHUP, /-/reload and file changes.
func configLoop(ctx context.Context, logger *slog.Logger, changed <-chan struct{}) error {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-hup:
			_ = reload(logger, "SIGHUP")
		case <-changed:
			_ = reload(logger, "file watch")
		case rc := <-reloadCh:
			rc <- reload(logger, "/-/reload")
		}
	}
}

func newMux(logger *slog.Logger, writer *textfile.Writer, self *prometheus.Registry) *http.ServeMux {
	mux := http.NewServeMux()

	mux.Handle("/metrics", textfile.Handler(writer.Dir, logger)) // Node metrics written from notifications.
	mux.Handle("/internal/metrics", promhttp.HandlerFor(self, promhttp.HandlerOpts{Registry: self}))
	mux.Handle("/-/reload", reloadHandler())

	if *pprofEnabled {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)

		logger.Info("pprof endpoints enabled", slog.Any("endpoint", "/debug/pprof/"))
	}

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		// nolint
		w.Write([]byte(`<html>
            <head>
            <title>Ironic Prometheus Exporter</title>
            </head>
            <body>
            <h1>Ironic Prometheus Exporter</h1>
            <p><a href="/metrics">Baremetal metrics</a></p>
            <p><a href="/internal/metrics">Exporter metrics</a></p>
            </body>
            </html>`))
	})
	return mux
}

func run(logger *slog.Logger, cfg *config.Config) error {
	descriptions, err := collector.LoadDescriptions()
	if err != nil {
		return err
	}
	processor, err := collector.NewProcessor(logger, descriptions, cfg.JSONMetrics)
	if err != nil {
		return err
	}
	writer, err := textfile.NewWriter(cfg.Location)
	if err != nil {
		return err
	}

	self := prometheus.NewRegistry()
	self.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := notifier.NewMetrics(self)
	driver := notifier.NewFileDriver(processor, writer, metrics, logger)
	listener := notifier.NewListener(notifier.NewAmqpClient(), cfg.AMQP, driver, metrics, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	g, ctx := errgroup.WithContext(ctx)

	changed := make(chan struct{}, 1)
	watcher, err := config.NewWatcher(*configFile, logger)
	if err != nil {
		logger.Warn("config file changes will only be applied on SIGHUP or /-/reload", slog.Any("error", err))
	} else {
		g.Go(func() error {
			return watcher.Run(ctx, func() {
				select {
				case changed <- struct{}{}:
				default:
				}
			})
		})
	}
	g.Go(func() error { return configLoop(ctx, logger, changed) })
	g.Go(func() error { return listener.Run(ctx) })

	srv := &http.Server{
		Handler:           newMux(logger, writer, self),
		ReadHeaderTimeout: 10 * time.Second,
	}
	g.Go(func() error {
		exporterToolkitConf := web.FlagConfig{
			WebListenAddresses: &([]string{*listenAddress}),
			WebConfigFile:      webConfig,
		}
		logger.Info("Exporter started", slog.String("listenAddress", *listenAddress), slog.String("location", writer.Dir()))
		if err := web.ListenAndServe(srv, &exporterToolkitConf, logger); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func main() {
	flag.Parse()

	logger := newLogger(os.Stdout, logLevel)
	slog.SetDefault(logger)
	logger.Info("Starting ironic-prometheus-exporter")

	// load config first time
	if err := safeConfig.ReloadConfig(*configFile); err != nil {
		logger.Error("Error parsing config file", slog.Any("error", err))
		os.Exit(1)
	}
	cfg := safeConfig.Current()
	logLevel.Set(parseLogLevel(cfg.Loglevel))
	logger.Info("Config successfully parsed", slog.String("loglevel", logLevel.Level().String()))

	if err := run(logger, cfg); err != nil {
		logger.Error("exporter stopped", slog.Any("error", err))
		os.Exit(1)
	}
}
