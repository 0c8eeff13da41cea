package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/roach88/kcibridge/internal/channel"
	"github.com/roach88/kcibridge/internal/config"
)

const shutdownTimeout = 5 * time.Second

// runtime is the process-wide state a bridge command sets up before it
// starts its loop: config, logger, metrics registry, tracer and the
// resources to release on exit.
type runtime struct {
	cfg         *config.Config
	logger      *slog.Logger
	registry    *prometheus.Registry
	tracer      trace.Tracer
	metricsAddr string // Actual listen address, empty when disabled

	closers []func(context.Context) error
}

// newRuntime loads config and applies flag overrides. Config errors are
// ExitCommandError.
func newRuntime(opts *RootOptions, cmd *cobra.Command) (*runtime, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid configuration", err)
	}
	if opts.LogFormat != "" {
		cfg.Logging.Format = opts.LogFormat
	}
	if opts.Verbose {
		cfg.Logging.Level = "debug"
	}
	if opts.MetricsAddr != "" {
		cfg.Metrics.Addr = opts.MetricsAddr
	}
	if opts.TraceFile != "" {
		cfg.Tracing.File = opts.TraceFile
	}

	r := &runtime{
		cfg:      cfg,
		logger:   newLogger(cmd.ErrOrStderr(), cfg.Logging),
		registry: prometheus.NewRegistry(),
		tracer:   noop.NewTracerProvider().Tracer(""),
	}
	slog.SetDefault(r.logger)

	r.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	if err := r.startTracing(); err != nil {
		r.close()
		return nil, WrapExitError(ExitCommandError, "failed to start tracing", err)
	}
	if err := r.startMetrics(); err != nil {
		r.close()
		return nil, WrapExitError(ExitCommandError, "failed to start metrics server", err)
	}
	return r, nil
}

func newLogger(w io.Writer, cfg config.LoggingConfig) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	handlerOpts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, handlerOpts))
	}
	return slog.New(slog.NewTextHandler(w, handlerOpts))
}

// startTracing exports spans to cfg.Tracing.File when set.
func (r *runtime) startTracing() error {
	path := r.cfg.Tracing.File
	if path == "" {
		return nil
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	exporter, err := stdouttrace.New(stdouttrace.WithWriter(f))
	if err != nil {
		f.Close()
		return err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSyncer(exporter),
		sdktrace.WithResource(resource.NewSchemaless(
			attribute.String("service.name", "kcibridge"),
		)),
	)
	otel.SetTracerProvider(tp)
	r.tracer = tp.Tracer("github.com/roach88/kcibridge")

	r.closers = append(r.closers, func(ctx context.Context) error {
		return errors.Join(tp.Shutdown(ctx), f.Close())
	})
	r.logger.Info("tracing enabled", "file", path)
	return nil
}

// startMetrics serves the registry on cfg.Metrics.Addr when set.
func (r *runtime) startMetrics() error {
	addr := r.cfg.Metrics.Addr
	if addr == "" {
		return nil
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry}))
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			r.logger.Error("metrics server stopped", "error", err)
		}
	}()

	r.metricsAddr = ln.Addr().String()
	r.closers = append(r.closers, srv.Shutdown)
	r.logger.Info("serving metrics", "addr", r.metricsAddr)
	return nil
}

// dial opens a NATS connection that is drained on close.
func (r *runtime) dial(url string) (*nats.Conn, error) {
	nc, err := channel.DialNATS(url, channel.DialOptions{
		Name:   r.cfg.Channel.ClientName,
		Token:  r.cfg.APIToken,
		Logger: r.logger,
	})
	if err != nil {
		return nil, err
	}
	r.closers = append(r.closers, func(context.Context) error {
		return nc.Drain()
	})
	return nc, nil
}

// openStream picks the node source for a bridge command: an injected
// channel, a replay file, or the configured NATS subject. The NATS
// connection is returned for reuse and is nil otherwise.
func (r *runtime) openStream(input string, injected channel.Channel) (channel.Channel, *nats.Conn, error) {
	if injected != nil {
		return injected, nil, nil
	}
	if input != "" {
		fc, err := channel.LoadFile(input)
		if err != nil {
			return nil, nil, WrapExitError(ExitCommandError, "failed to load input", err)
		}
		r.logger.Info("replaying nodes from file", "path", input, "records", fc.Len())
		return fc, nil, nil
	}

	nc, err := r.dial(r.cfg.Channel.URL)
	if err != nil {
		return nil, nil, WrapExitError(ExitFailure, "failed to connect to node stream", err)
	}
	return channel.NewNATSChannel(nc, r.cfg.Channel.Subject), nc, nil
}

// close releases resources in reverse order of acquisition.
func (r *runtime) close() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i](ctx); err != nil {
			r.logger.Error("error during shutdown", "error", err)
		}
	}
	r.closers = nil
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
// Use command's context if available (for testing), otherwise create one.
func signalContext(cmd *cobra.Command, logger *slog.Logger) (context.Context, context.CancelFunc) {
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		defer signal.Stop(sigChan) // Prevent signal handler leak
		select {
		case sig := <-sigChan:
			logger.Info("received signal, shutting down", "signal", sig.String())
			cancel()
		case <-ctx.Done():
			// Parent context cancelled (e.g., from test)
		}
	}()

	return ctx, cancel
}

// listenBanner prints the operator-facing start lines.
func listenBanner(w io.Writer, what string) {
	fmt.Fprintf(w, "%s started. Listening for events...\n", what)
	fmt.Fprintln(w, "Press Ctrl-C to stop.")
}
