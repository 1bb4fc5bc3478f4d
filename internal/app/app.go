// Package app wires all Medscribe subsystems into a running application.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run serves the HTTP API until the context is cancelled, and
// Shutdown tears everything down in order.
//
// For testing, inject mock implementations via functional options
// (WithStore, WithMetrics, etc.). When an option is not provided, New
// creates real implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/arogyalabs/medscribe/internal/config"
	"github.com/arogyalabs/medscribe/internal/correct"
	"github.com/arogyalabs/medscribe/internal/health"
	"github.com/arogyalabs/medscribe/internal/observe"
	"github.com/arogyalabs/medscribe/internal/pharma"
	"github.com/arogyalabs/medscribe/internal/prescription"
	"github.com/arogyalabs/medscribe/internal/resilience"
	"github.com/arogyalabs/medscribe/internal/server"
	"github.com/arogyalabs/medscribe/pkg/consultstore"
	"github.com/arogyalabs/medscribe/pkg/consultstore/postgres"
	"github.com/arogyalabs/medscribe/pkg/provider/embeddings"
	"github.com/arogyalabs/medscribe/pkg/provider/llm"
	"github.com/arogyalabs/medscribe/pkg/provider/stt"
)

// readHeaderTimeout bounds how long a client may take to send headers.
const readHeaderTimeout = 10 * time.Second

// Providers holds one interface value per provider slot. Nil means the
// provider is not configured. Populated by main.go via the config registry.
type Providers struct {
	STT        stt.Provider
	LLM        llm.Provider
	Embeddings embeddings.Provider
}

// App owns all subsystem lifetimes and serves the Medscribe consultation API.
type App struct {
	cfg       *config.Config
	providers *Providers

	// Breaker-wrapped provider views. Nil when the slot is not configured.
	stt        stt.Provider
	llm        llm.Provider
	embeddings embeddings.Provider

	// Subsystems — initialised in New, torn down in Shutdown.
	store     consultstore.Store
	formulary []string
	matcher   *pharma.Matcher
	extractor *prescription.Extractor
	corrector *correct.Corrector
	metrics   *observe.Metrics
	health    *health.Handler
	sessions  *SessionManager
	srv       *server.Server
	httpSrv   *http.Server

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithStore injects a consultation store instead of connecting to Postgres.
func WithStore(s consultstore.Store) Option {
	return func(a *App) { a.store = s }
}

// WithMetrics injects a metrics set instead of using the process defaults.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. The providers struct
// comes from main.go (populated via the config registry). Use Option
// functions to inject test doubles for any subsystem.
//
// New performs all initialisation synchronously: store connection, formulary
// loading, attribution pipeline assembly, and HTTP server construction.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	a := &App{
		cfg:       cfg,
		providers: providers,
	}
	for _, o := range opts {
		o(a)
	}

	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	// Remote providers go behind circuit breakers. Even with a single
	// backend configured, the breaker stops a flapping provider from
	// stalling live consultations.
	a.wrapProviders()

	// ── 1. Consultation store ────────────────────────────────────────────
	if err := a.initStore(ctx); err != nil {
		return nil, fmt.Errorf("app: init store: %w", err)
	}

	// ── 2. Formulary + drug name matcher ─────────────────────────────────
	if err := a.initFormulary(); err != nil {
		return nil, fmt.Errorf("app: init formulary: %w", err)
	}
	a.extractor = prescription.NewExtractor(a.matcher)

	// ── 3. LLM attribution review ────────────────────────────────────────
	if cfg.Attribution.LLMReview {
		if a.llm == nil {
			return nil, fmt.Errorf("app: attribution.llm_review requires an LLM provider")
		}
		a.corrector = correct.New(a.llm)
	}

	// ── 4. Live session manager ──────────────────────────────────────────
	a.sessions = NewSessionManager(SessionManagerConfig{
		STT:              a.stt,
		Store:            a.store,
		Extractor:        a.extractor,
		Embedder:         a.embeddings,
		Metrics:          a.metrics,
		Language:         string(cfg.Attribution.DefaultLanguage),
		Keywords:         formularyKeywords(a.formulary, cfg.Formulary.KeywordBoost),
		TrustDiarization: cfg.Attribution.RemapSpeakerIndices,
	})

	// ── 5. HTTP API ──────────────────────────────────────────────────────
	a.srv = server.New(server.Config{
		Store:     a.store,
		Corrector: a.corrector,
		Extractor: a.extractor,
		Embedder:  a.embeddings,
		Metrics:   a.metrics,
		Health:    a.health,
	})
	a.httpSrv = &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           a.srv.Routes(),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	return a, nil
}

// ─── Init helpers ────────────────────────────────────────────────────────────

// wrapProviders puts each configured remote provider behind its own circuit
// breaker. Provider names from the config feed the breaker labels so log
// lines identify the failing backend.
func (a *App) wrapProviders() {
	fbCfg := resilience.FallbackConfig{}

	if a.providers.STT != nil {
		a.stt = resilience.NewSTTFallback(a.providers.STT, providerLabel(a.cfg.Providers.STT.Name, "stt"), fbCfg)
	}
	if a.providers.LLM != nil {
		a.llm = resilience.NewLLMFallback(a.providers.LLM, providerLabel(a.cfg.Providers.LLM.Name, "llm"), fbCfg)
	}
	if a.providers.Embeddings != nil {
		a.embeddings = resilience.NewEmbeddingsFallback(a.providers.Embeddings, providerLabel(a.cfg.Providers.Embeddings.Name, "embeddings"), fbCfg)
	}
}

func providerLabel(name, fallback string) string {
	if name == "" {
		return fallback
	}
	return name
}

// initStore connects the PostgreSQL consultation store or uses an injected
// one. The Postgres pool is wired into the readiness probe.
func (a *App) initStore(ctx context.Context) error {
	if a.store != nil {
		a.health = health.New()
		return nil
	}

	dsn := a.cfg.Storage.PostgresDSN
	if dsn == "" {
		return fmt.Errorf("storage.postgres_dsn is required when a store is not injected")
	}

	dims := a.cfg.Storage.EmbeddingDimensions
	if dims == 0 {
		dims = 1536 // sensible default for OpenAI text-embedding-3-small
	}
	if a.embeddings != nil {
		if d := a.embeddings.Dimensions(); d > 0 {
			dims = d
		}
	}

	store, err := postgres.NewStore(ctx, dsn, dims)
	if err != nil {
		return err
	}
	a.store = store
	a.health = health.New(health.PingChecker("postgres", store))
	a.closers = append(a.closers, func() error {
		store.Close()
		return nil
	})
	return nil
}

// initFormulary loads the drug formulary and builds the phonetic matcher.
func (a *App) initFormulary() error {
	formulary := pharma.DefaultFormulary
	if path := a.cfg.Formulary.Path; path != "" {
		loaded, err := pharma.LoadFormulary(path)
		if err != nil {
			return fmt.Errorf("load formulary %q: %w", path, err)
		}
		formulary = loaded
		slog.Info("loaded formulary", "path", path, "drugs", len(loaded))
	}
	a.formulary = formulary
	a.matcher = pharma.New(formulary)
	return nil
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run serves the HTTP API and blocks until ctx is cancelled or the listener
// fails. On cancellation the server drains in-flight requests before Run
// returns ctx's error.
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		var err error
		if tls := a.cfg.Server.TLS; tls != nil {
			slog.Info("listening", "addr", a.httpSrv.Addr, "tls", true)
			err = a.httpSrv.ListenAndServeTLS(tls.CertFile, tls.KeyFile)
		} else {
			slog.Info("listening", "addr", a.httpSrv.Addr)
			err = a.httpSrv.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("app: serve: %w", err)
	})

	g.Go(func() error {
		<-ctx.Done()
		// Unblocks ListenAndServe; full teardown happens in Shutdown.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.httpSrv.Shutdown(shutdownCtx); err != nil {
			slog.Warn("http server drain error", "err", err)
		}
		return ctx.Err()
	})

	return g.Wait()
}

// Sessions returns the live consultation session manager.
func (a *App) Sessions() *SessionManager {
	return a.sessions
}

// ApplyConfig applies a hot-reloadable configuration change: formulary swaps
// rebuild the matcher and extractor (pushed into the HTTP API and session
// manager) and the STT keyword boosts; attribution toggles rebuild the LLM
// review pass and the live-session defaults. Listen address changes require
// a restart and are ignored here.
func (a *App) ApplyConfig(cfg *config.Config) error {
	diff := config.Diff(a.cfg, cfg)
	if !diff.Changed() {
		return nil
	}

	a.cfg = cfg

	if diff.FormularyChanged {
		if err := a.initFormulary(); err != nil {
			return fmt.Errorf("app: reload formulary: %w", err)
		}
		a.extractor = prescription.NewExtractor(a.matcher)
		a.srv.SetExtractor(a.extractor)
		a.sessions.SetExtractor(a.extractor)
		keywords := formularyKeywords(a.formulary, cfg.Formulary.KeywordBoost)
		if err := a.sessions.UpdateKeywords(keywords); err != nil {
			slog.Warn("mid-session keyword update failed", "err", err)
		}
	}

	if diff.AttributionChanged {
		if cfg.Attribution.LLMReview {
			if a.llm == nil {
				return fmt.Errorf("app: attribution.llm_review requires an LLM provider")
			}
			a.corrector = correct.New(a.llm)
		} else {
			a.corrector = nil
		}
		a.srv.SetCorrector(a.corrector)
		a.sessions.SetLanguage(string(cfg.Attribution.DefaultLanguage))
		a.sessions.SetTrustDiarization(cfg.Attribution.RemapSpeakerIndices)
	}

	slog.Info("configuration reloaded",
		"log_level", diff.LogLevelChanged,
		"formulary", diff.FormularyChanged,
		"attribution", diff.AttributionChanged,
	)
	return nil
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown tears down all subsystems in order: the active live session (if
// any) is finished first so its consultation record is complete, then the
// HTTP server, then the store. It respects the context deadline: if ctx
// expires before all closers finish, remaining closers are skipped and the
// context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		if a.sessions.IsActive() {
			if _, err := a.sessions.Stop(ctx); err != nil {
				slog.Warn("live session stop error", "err", err)
			}
		}

		if err := a.httpSrv.Shutdown(ctx); err != nil {
			slog.Warn("http server shutdown error", "err", err)
		}

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

// formularyKeywords converts the formulary into STT recognition boosts.
// A zero boost disables keyword hinting entirely.
func formularyKeywords(formulary []string, boost float64) []stt.KeywordBoost {
	if boost <= 0 {
		return nil
	}
	keywords := make([]stt.KeywordBoost, 0, len(formulary))
	for _, drug := range formulary {
		keywords = append(keywords, stt.KeywordBoost{Keyword: drug, Boost: boost})
	}
	return keywords
}
