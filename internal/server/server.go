// Package server orchestrates all components: COMMS connection, backend,
// callback registry, dispatcher and HTTP health.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	commsserver "github.com/nats-io/nats-server/v2/server"
	comms "github.com/nats-io/nats.go"

	"github.com/morezero/iris-bridge/internal/config"
	"github.com/morezero/iris-bridge/pkg/bootstrap"
	"github.com/morezero/iris-bridge/pkg/callbacks"
	"github.com/morezero/iris-bridge/pkg/commsutil"
	"github.com/morezero/iris-bridge/pkg/db"
	"github.com/morezero/iris-bridge/pkg/dispatcher"
	"github.com/morezero/iris-bridge/pkg/events"
	"github.com/morezero/iris-bridge/pkg/hal"
	"github.com/morezero/iris-bridge/pkg/transport"
	"github.com/morezero/iris-bridge/pkg/wire"
)

const logPrefix = "server:server"

// Server is the Iris service orchestrator.
type Server struct {
	cfg        *config.Config
	embedded   *commsserver.Server
	nc         *comms.Conn
	pool       *pgxpool.Pool
	repo       *db.Repository
	backend    hal.Backend
	registry   *callbacks.Registry
	disp       *dispatcher.Dispatcher
	transport  *transport.Comms
	service    transport.Server
	subject    string
	commsURL   string
	httpServer *http.Server
}

// ParseLogLevel maps LOG_LEVEL to a slog level. Unknown values mean info.
func ParseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Run starts the server, blocks until shutdown signal, then cleans up.
func Run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("%s - failed to load config: %w", logPrefix, err)
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: ParseLogLevel(cfg.LogLevel)})))

	if err := cfg.ValidateForServe(); err != nil {
		return err
	}
	slog.Info(fmt.Sprintf("%s - Starting iris-bridge", logPrefix))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s, err := Start(ctx, cfg)
	if err != nil {
		return err
	}

	httpAddr := fmt.Sprintf(":%d", cfg.HTTPPort)
	s.httpServer = &http.Server{Addr: httpAddr, Handler: s.Handler()}
	go func() {
		slog.Info(fmt.Sprintf("%s - HTTP health server listening on %s", logPrefix, httpAddr))
		if err := s.httpServer.ListenAndServe(); err != http.ErrServerClosed {
			slog.Error(fmt.Sprintf("%s - HTTP server error: %v", logPrefix, err))
		}
	}()

	slog.Info(fmt.Sprintf("%s - Iris service is ready", logPrefix))

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	slog.Info(fmt.Sprintf("%s - Received signal %s, shutting down", logPrefix, sig))

	shutdownCtx, shutdownCancel := context.WithTimeout(ctx, 10*time.Second)
	defer shutdownCancel()
	s.Shutdown(shutdownCtx)

	slog.Info(fmt.Sprintf("%s - Shutdown complete", logPrefix))
	return nil
}

// Start builds every component and serves the Iris subject. It does not start
// the HTTP listener; Run does.
func Start(ctx context.Context, cfg *config.Config) (*Server, error) {
	s := &Server{cfg: cfg, commsURL: cfg.COMMSURL}
	ok := false
	defer func() {
		if !ok {
			s.Shutdown(context.Background())
		}
	}()

	// Step 1: Load seed config
	seed, err := loadSeed(cfg.SeedFile)
	if err != nil {
		return nil, fmt.Errorf("%s - failed to load seed config: %w", logPrefix, err)
	}

	// Step 2: COMMS, optionally in-process
	if cfg.COMMSEmbedded {
		ns, err := commsutil.StartEmbedded("127.0.0.1", cfg.COMMSEmbeddedPort)
		if err != nil {
			return nil, fmt.Errorf("%s - failed to start embedded COMMS: %w", logPrefix, err)
		}
		s.embedded = ns
		s.commsURL = ns.ClientURL()
	}
	nc, err := commsutil.Connect(s.commsURL, cfg.COMMSName, nil)
	if err != nil {
		return nil, fmt.Errorf("%s - failed to connect to COMMS: %w", logPrefix, err)
	}
	s.nc = nc
	slog.Info(fmt.Sprintf("%s - Connected to COMMS at %s", logPrefix, s.commsURL))

	// Step 3: Backend
	if err := s.buildBackend(ctx, seed); err != nil {
		return nil, err
	}

	// Step 4: Seed defaults
	if _, err := hal.Apply(ctx, s.backend, seed); err != nil {
		return nil, fmt.Errorf("%s - failed to apply seed: %w", logPrefix, err)
	}

	// Step 5: Registry and change mirror
	mode, err := callbacks.ParseMode(cfg.CallbackMode)
	if err != nil {
		return nil, err
	}
	s.transport = transport.NewComms(nc, &transport.CommsOpts{CallTimeout: cfg.RequestTimeout})
	s.registry = callbacks.New(transport.Sender{T: s.transport}, &callbacks.Options{Mode: mode, Timeout: cfg.CallbackTimeout})

	var publisher events.EventPublisher = &events.NoOpPublisher{}
	if cfg.ChangeEventSubject != "" {
		publisher = events.NewCommsPublisher(nc, &events.CommsPublisherOpts{GlobalChangeSubject: cfg.ChangeEventSubject})
	}

	// Step 6: Dispatcher on the service subject
	s.disp = dispatcher.NewDispatcher(s.backend, s.registry, &dispatcher.Opts{
		Instance:    cfg.Instance,
		Publisher:   publisher,
		NotifyOnSet: cfg.NotifyOnSet,
	})
	s.subject = cfg.ServiceSubject
	if s.subject == "" {
		s.subject = commsutil.BuildServiceSubject(cfg.Instance, wire.InterfaceVersion)
	}
	h := s.disp.Handler()
	requestTimeout := cfg.RequestTimeout
	s.service, err = s.transport.Serve(s.subject, func(ctx context.Context, data []byte) ([]byte, error) {
		reqCtx, cancel := context.WithTimeout(ctx, requestTimeout)
		defer cancel()
		return h(reqCtx, data)
	})
	if err != nil {
		return nil, fmt.Errorf("%s - failed to serve %s: %w", logPrefix, s.subject, err)
	}
	slog.Info(fmt.Sprintf("%s - Iris %s (mode=%s backend=%s)", logPrefix, s.subject, mode, cfg.Backend))

	ok = true
	return s, nil
}

func loadSeed(path string) (*bootstrap.SeedConfig, error) {
	if path != "" {
		return bootstrap.LoadSeedFile(path)
	}
	return bootstrap.LoadSeedConfig()
}

// chipFeature prefers a positive seed value over IRIS_CHIP_FEATURE.
func chipFeature(cfg *config.Config, seed *bootstrap.SeedConfig) int32 {
	if seed != nil && seed.ChipFeature > 0 {
		return seed.ChipFeature
	}
	return cfg.ChipFeature
}

func (s *Server) buildBackend(ctx context.Context, seed *bootstrap.SeedConfig) error {
	chip := chipFeature(s.cfg, seed)
	if s.cfg.Backend != config.BackendPostgres {
		s.backend = hal.NewMemory(&hal.MemoryOpts{ChipFeature: chip, Supported: seed.Supported})
		return nil
	}

	pool, err := db.NewPool(ctx, s.cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("%s - failed to connect to database: %w", logPrefix, err)
	}
	s.pool = pool
	if s.cfg.RunMigrations {
		migrations, err := db.LoadMigrations(s.cfg.MigrationPath)
		if err != nil {
			return fmt.Errorf("%s - failed to load migrations: %w", logPrefix, err)
		}
		if err := db.RunMigrations(ctx, pool, migrations); err != nil {
			return fmt.Errorf("%s - failed to run migrations: %w", logPrefix, err)
		}
	}
	s.repo = db.NewRepository(pool)
	s.backend = hal.NewStore(s.repo, s.cfg.Instance, &hal.StoreOpts{ChipFeature: chip, Supported: seed.Supported})
	return nil
}

// Subject returns the served Iris subject.
func (s *Server) Subject() string { return s.subject }

// COMMSURL returns the broker URL the server connected to.
func (s *Server) COMMSURL() string { return s.commsURL }

// Dispatcher exposes the dispatcher so in-process drivers can raise changes.
func (s *Server) Dispatcher() *dispatcher.Dispatcher { return s.disp }

// Shutdown stops serving and releases every resource. It is safe on a
// partially started server.
func (s *Server) Shutdown(ctx context.Context) {
	if s.service != nil {
		if err := s.service.Stop(); err != nil {
			slog.Warn(fmt.Sprintf("%s - stop service: %v", logPrefix, err))
		}
	}
	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			slog.Warn(fmt.Sprintf("%s - HTTP shutdown: %v", logPrefix, err))
		}
	}
	if s.disp != nil {
		s.disp.Close()
	}
	if s.transport != nil {
		_ = s.transport.Close()
	}
	if s.nc != nil {
		if err := s.nc.Drain(); err != nil {
			s.nc.Close()
		}
	}
	if s.pool != nil {
		s.pool.Close()
	}
	if s.embedded != nil {
		s.embedded.Shutdown()
		s.embedded.WaitForShutdown()
	}
}

// HealthChecks holds individual health check results.
type HealthChecks struct {
	COMMS    bool `json:"comms"`
	Database bool `json:"database,omitempty"`
}

// HealthOutput is the /health response body.
type HealthOutput struct {
	Status    string       `json:"status"`
	Instance  string       `json:"instance"`
	Subject   string       `json:"subject"`
	Backend   string       `json:"backend"`
	Callbacks int          `json:"callbacks"`
	Checks    HealthChecks `json:"checks"`
	Timestamp string       `json:"timestamp"`
}

// Health reports broker connectivity and, for the postgres backend, a DB ping.
func (s *Server) Health(ctx context.Context) *HealthOutput {
	out := &HealthOutput{
		Status:    "healthy",
		Instance:  s.cfg.Instance,
		Subject:   s.subject,
		Backend:   s.cfg.Backend,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	if s.registry != nil {
		out.Callbacks = s.registry.Len()
	}
	out.Checks.COMMS = s.nc != nil && s.nc.IsConnected()
	if !out.Checks.COMMS {
		out.Status = "unhealthy"
	}
	if s.repo != nil {
		out.Checks.Database = s.repo.Ping(ctx) == nil
		if !out.Checks.Database {
			out.Status = "unhealthy"
		}
	}
	return out
}

// Handler returns the HTTP mux: home page, /health, /ready and /features.
func (s *Server) Handler() http.Handler {
	healthTimeout := s.cfg.HealthCheckTimeout
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleHome())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		healthCtx, cancel := context.WithTimeout(r.Context(), healthTimeout)
		defer cancel()
		h := s.Health(healthCtx)
		w.Header().Set("Content-Type", "application/json")
		if h.Status != "healthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(h)
	})
	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "ready"})
	})
	mux.HandleFunc("/features", s.handleFeatures())
	return mux
}

// featuresOutput is the /features response body.
type featuresOutput struct {
	Instance    string        `json:"instance"`
	ChipFeature int32         `json:"chipFeature"`
	Features    []hal.Feature `json:"features"`
}

func (s *Server) listFeatures(ctx context.Context) (*featuresOutput, error) {
	if s.backend == nil {
		return nil, errors.New("backend not ready")
	}
	features, err := s.backend.Features(ctx)
	if err != nil {
		return nil, err
	}
	chip, err := s.backend.ChipFeature(ctx)
	if err != nil {
		chip = -1
	}
	return &featuresOutput{Instance: s.cfg.Instance, ChipFeature: chip, Features: features}, nil
}

func (s *Server) handleFeatures() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), s.cfg.HealthCheckTimeout)
		defer cancel()
		out, err := s.listFeatures(ctx)
		w.Header().Set("Content-Type", "application/json")
		if err != nil {
			slog.Error(fmt.Sprintf("%s - list features: %v", logPrefix, err))
			w.WriteHeader(http.StatusInternalServerError)
			json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
			return
		}
		json.NewEncoder(w).Encode(out)
	}
}

// homePageTemplate is the HTML for the service home page.
const homePageTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8">
  <meta name="viewport" content="width=device-width, initial-scale=1">
  <title>Iris Bridge</title>
  <style>
    body { background: #fff; color: #000; font-family: system-ui, sans-serif; margin: 0; padding: 2rem; line-height: 1.5; }
    h1, h2 { color: #0066cc; }
    .status-healthy { color: #0066cc; font-weight: bold; }
    .status-unhealthy { color: #cc0000; font-weight: bold; }
    table { border-collapse: collapse; max-width: 900px; margin-top: 0.5rem; }
    th, td { text-align: left; padding: 0.5rem 0.75rem; border: 1px solid #ccc; }
    th { background: #f0f4f8; color: #0066cc; }
    .error { color: #cc0000; }
  </style>
</head>
<body>
  <h1>Iris Bridge</h1>
  <section>
    <h2>Health</h2>
    <p>Status: <span class="status-{{.Health.Status}}">{{.Health.Status}}</span></p>
    <p>Instance: {{.Health.Instance}} on <code>{{.Health.Subject}}</code> ({{.Health.Backend}})</p>
    <p>Registered callbacks: {{.Health.Callbacks}}</p>
  </section>
  <section>
    <h2>Features</h2>
    {{if .FeaturesError}}
    <p class="error">Could not load features: {{.FeaturesError}}</p>
    {{else}}
    <p>Chip feature: {{.Features.ChipFeature}}</p>
    {{if not .Features.Features}}
    <p>No feature values stored.</p>
    {{else}}
    <table>
      <thead><tr><th>Type</th><th>Values</th><th>Modified</th></tr></thead>
      <tbody>
      {{range .Features.Features}}
      <tr><td>{{.Type}}</td><td>{{.Values}}</td><td>{{.Modified.Format "2006-01-02T15:04:05Z07:00"}}</td></tr>
      {{end}}
      </tbody>
    </table>
    {{end}}
    {{end}}
  </section>
</body>
</html>
`

// homeData is the data passed to the home page template.
type homeData struct {
	Health        *HealthOutput
	Features      *featuresOutput
	FeaturesError string
}

// handleHome returns an HTTP handler for the service home page.
func (s *Server) handleHome() http.HandlerFunc {
	tmpl := template.Must(template.New("home").Parse(homePageTemplate))
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), s.cfg.HealthCheckTimeout)
		defer cancel()

		data := homeData{Health: s.Health(ctx)}
		features, err := s.listFeatures(ctx)
		if err != nil {
			data.FeaturesError = err.Error()
		} else {
			data.Features = features
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if err := tmpl.Execute(w, data); err != nil {
			slog.Error(fmt.Sprintf("%s - home template execute: %v", logPrefix, err))
			http.Error(w, "internal error", http.StatusInternalServerError)
		}
	}
}
