package runtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/capturelabs/capture-core/internal/audio"
	"github.com/capturelabs/capture-core/internal/bus"
	"github.com/capturelabs/capture-core/internal/capture"
	"github.com/capturelabs/capture-core/internal/config"
	"github.com/capturelabs/capture-core/internal/forward"
	"github.com/capturelabs/capture-core/internal/journal"
	"github.com/capturelabs/capture-core/internal/natsserver"
	"github.com/capturelabs/capture-core/internal/protocol"
	"github.com/capturelabs/capture-core/internal/ratelimit"
	"github.com/capturelabs/capture-core/internal/transcribe"
)

// Runtime owns the lifecycle of every service component: telemetry, the
// optional message bus, the journal, the limiter sweep and both HTTP
// listeners.
type Runtime struct {
	cfg     config.Config
	version string
	logger  *slog.Logger

	httpServer    *http.Server
	metricsServer *http.Server
	telemetryDone func(context.Context) error

	ready atomic.Bool
	wg    sync.WaitGroup
}

func New(cfg config.Config, version string, logger *slog.Logger) *Runtime {
	return &Runtime{
		cfg:     cfg,
		version: version,
		logger:  logger,
	}
}

// Start brings up the service and blocks until ctx is cancelled, then
// shuts everything down in reverse order.
func (r *Runtime) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	tel, err := newTelemetry(r.cfg, r.version, r.logger)
	if err != nil {
		return fmt.Errorf("failed to setup telemetry: %w", err)
	}
	r.telemetryDone = tel.Shutdown

	var embedded *natsserver.EmbeddedServer
	var busClient *bus.Client
	if r.cfg.Bus.Enabled {
		busCfg := r.cfg.Bus
		embedded, err = natsserver.Start(busCfg, r.logger)
		if err != nil {
			return fmt.Errorf("failed to start embedded nats: %w", err)
		}
		if embedded != nil {
			busCfg.Servers = []string{fmt.Sprintf("nats://127.0.0.1:%d", busCfg.Port)}
		}
		busClient, err = bus.Connect(ctx, busCfg, r.logger)
		if err != nil {
			embedded.Shutdown()
			return fmt.Errorf("failed to connect to nats: %w", err)
		}
	}
	defer func() {
		busClient.Close()
		embedded.Shutdown()
	}()

	store, err := journal.Open(ctx, r.cfg.Journal, r.logger)
	if err != nil {
		return fmt.Errorf("failed to open journal: %w", err)
	}
	defer store.Close()

	limiter := ratelimit.New(r.cfg.RateLimit, ratelimit.NewMemoryStore(), r.logger)
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		limiter.Run(ctx)
	}()

	transcriber, err := transcribe.New(r.cfg.Transcriber)
	if err != nil {
		return fmt.Errorf("failed to build transcriber: %w", err)
	}

	var publisher capture.Publisher
	if busClient != nil {
		publisher = busClient
	}

	svc := capture.NewService(r.cfg.Audio, capture.Deps{
		Auth:        capture.NewAuthorizer(r.cfg.Auth),
		Limiter:     limiter,
		Converter:   audio.NewPipeline(r.cfg.Audio.TargetSampleRate),
		Transcriber: transcriber,
		Forwarder:   forward.New(r.cfg.Forwarder, r.logger),
		Recorder:    store,
		Publisher:   publisher,
	}, r.logger)

	mux := http.NewServeMux()
	mux.Handle("/v1/capture", capture.NewHandler(svc, r.logger))
	mux.HandleFunc("/health", r.handleHealthJSON)
	mux.HandleFunc("/healthz", r.handleHealth)
	mux.HandleFunc("/readyz", r.handleReady)

	addr := fmt.Sprintf("%s:%d", r.cfg.HTTP.Bind, r.cfg.HTTP.Port)
	r.httpServer = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := r.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			r.logger.Error("http server failed", slog.String("error", err.Error()))
		}
	}()

	if handler := tel.MetricsHandler(); handler != nil {
		metricsMux := http.NewServeMux()
		metricsMux.Handle("/metrics", handler)
		r.metricsServer = &http.Server{
			Addr:              r.cfg.Telemetry.PrometheusBind,
			Handler:           metricsMux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			if err := r.metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				r.logger.Error("metrics server failed", slog.String("error", err.Error()))
			}
		}()
	}

	r.ready.Store(true)
	r.logger.Info("capture service started",
		slog.String("addr", addr),
		slog.String("transcriber", r.cfg.Transcriber.Mode),
		slog.Bool("bus", r.cfg.Bus.Enabled))

	<-ctx.Done()
	r.ready.Store(false)
	r.logger.Info("capture service stopping")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := r.httpServer.Shutdown(shutdownCtx); err != nil {
		r.logger.Error("http shutdown error", slog.String("error", err.Error()))
	}
	if r.metricsServer != nil {
		if err := r.metricsServer.Shutdown(shutdownCtx); err != nil {
			r.logger.Error("metrics shutdown error", slog.String("error", err.Error()))
		}
	}
	cancel()
	r.wg.Wait()

	if r.telemetryDone != nil {
		if err := r.telemetryDone(shutdownCtx); err != nil {
			r.logger.Error("telemetry shutdown error", slog.String("error", err.Error()))
		}
	}

	return nil
}

func (r *Runtime) handleHealthJSON(w http.ResponseWriter, _ *http.Request) {
	resp := protocol.HealthResponse{
		Success:   true,
		Status:    "healthy",
		Timestamp: time.Now().UnixMilli(),
		Version:   r.version,
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		r.logger.Warn("failed to encode health response", slog.String("error", err.Error()))
	}
}

func (r *Runtime) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (r *Runtime) handleReady(w http.ResponseWriter, _ *http.Request) {
	if r.ready.Load() {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
		return
	}
	w.WriteHeader(http.StatusServiceUnavailable)
	_, _ = w.Write([]byte("not ready"))
}
