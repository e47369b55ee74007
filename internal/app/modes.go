package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/imperfectform/predictbot/internal/bot"
	"github.com/imperfectform/predictbot/internal/crypto"
	"github.com/imperfectform/predictbot/internal/domain"
	"github.com/imperfectform/predictbot/internal/oracle"
	"github.com/imperfectform/predictbot/internal/pipeline"
	"github.com/imperfectform/predictbot/internal/server"
	"github.com/imperfectform/predictbot/internal/server/handler"
	"github.com/imperfectform/predictbot/internal/server/ws"
	"github.com/imperfectform/predictbot/internal/sweat"
)

// ServerMode serves the HTTP API and the WebSocket hub. Scans run only on
// demand through POST /api/bot/resolve.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting server mode")

	g, ctx := errgroup.WithContext(ctx)
	a.startLiveRelay(ctx, g, deps)
	a.startHTTPServer(ctx, g, deps, a.newResolver(deps))
	return g.Wait()
}

// ResolverMode runs the auto-resolve loop and the event pipeline without an
// HTTP surface.
func (a *App) ResolverMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting resolver mode")

	g, ctx := errgroup.WithContext(ctx)
	a.startResolver(ctx, g, a.newResolver(deps))
	a.startPipeline(ctx, g, deps)
	return g.Wait()
}

// FullMode runs everything: the HTTP API and hub, the resolver loop, and the
// event pipeline that feeds the hub.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")

	g, ctx := errgroup.WithContext(ctx)
	resolver := a.newResolver(deps)
	a.startResolver(ctx, g, resolver)
	a.startPipeline(ctx, g, deps)
	a.startHTTPServer(ctx, g, deps, resolver)
	return g.Wait()
}

// goLoop runs fn in g. Cancellation is a clean exit; any other return stops
// the group.
func goLoop(ctx context.Context, g *errgroup.Group, name string, fn func(context.Context) error) {
	g.Go(func() error {
		err := fn(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if err == nil {
			return fmt.Errorf("%s stopped unexpectedly", name)
		}
		return fmt.Errorf("%s: %w", name, err)
	})
}

func (a *App) newOracle(deps *Dependencies) oracle.Oracle {
	router := oracle.NewRouter()
	if deps.WorkoutStore != nil {
		router.Handle(domain.CategoryFitness, oracle.NewFitness(deps.WorkoutStore, nil))
	}
	if len(deps.Heads) > 0 {
		router.Handle(domain.CategoryChain, oracle.NewChain(deps.Heads, a.cfg.Bot.ChainHeadCache.Duration, nil))
	}
	return router
}

func (a *App) newResolver(deps *Dependencies) *bot.Resolver {
	chains := a.cfg.Bot.ResolveChains
	if len(chains) == 0 {
		chains = deps.Registry.Keys()
	}
	return bot.NewResolver(bot.ResolverConfig{
		Chains:      chains,
		Interval:    a.cfg.Bot.ResolveInterval.Duration,
		Concurrency: a.cfg.Bot.ResolveConcurrency,
		LockTTL:     a.cfg.Bot.ResolveLockTTL.Duration,
	}, bot.ResolverDeps{
		Client:   deps.Client,
		Oracle:   a.newOracle(deps),
		Signer:   deps.Signer,
		Locks:    deps.LockManager,
		Audit:    deps.AuditStore,
		Notifier: deps.Notifier,
		Bus:      deps.SignalBus,
	}, a.logger)
}

func (a *App) startResolver(ctx context.Context, g *errgroup.Group, resolver *bot.Resolver) {
	if !a.cfg.Bot.ResolveEnabled {
		a.logger.InfoContext(ctx, "bot.resolve_enabled is false; scans run only on demand")
		return
	}
	goLoop(ctx, g, "resolver", resolver.Run)
}

func (a *App) newOrchestrator(deps *Dependencies) *bot.Orchestrator {
	var extractor bot.Extractor = bot.NewHeuristicExtractor(nil)
	if a.cfg.Bot.Extractor == "llm" && deps.LLM != nil {
		extractor = bot.NewLLMExtractor(deps.LLM, nil)
	}
	return bot.NewOrchestrator(bot.OrchestratorConfig{
		DefaultChain: deps.Registry.Default().Key,
		DraftTTL:     a.cfg.Bot.DraftTTL.Duration,
		DedupTTL:     a.cfg.Bot.DedupTTL.Duration,
	}, bot.OrchestratorDeps{
		Extractor: extractor,
		Client:    deps.Client,
		Signer:    deps.Signer,
		Drafts:    deps.Drafts,
		Dedup:     deps.Dedup,
		Index:     deps.PredictionIndex,
		Notifier:  deps.Notifier,
	}, a.logger)
}

func (a *App) newSweatService(deps *Dependencies) *sweat.Service {
	var verifier sweat.Verifier = sweat.NewHeuristicVerifier(deps.WorkoutStore)
	if a.cfg.Sweat.Verifier == "llm" && deps.LLM != nil {
		verifier = sweat.NewLLMVerifier(deps.LLM, a.cfg.Sweat.MinConfidence)
	}
	return sweat.NewService(sweat.Config{
		LockTTL:       a.cfg.Sweat.LockTTL.Duration,
		VerifyTimeout: a.cfg.Sweat.VerifyTimeout.Duration,
	}, sweat.Deps{
		Client:   deps.Client,
		Signer:   deps.Signer,
		Verifier: verifier,
		Locks:    deps.LockManager,
		Audit:    deps.AuditStore,
		Attempts: deps.ChallengeStore,
		Archiver: deps.Archiver,
		Notifier: deps.Notifier,
	}, a.logger)
}

func (a *App) newRelay(deps *Dependencies, sinks pipeline.RelayDeps) *pipeline.Relay {
	sinks.Client = deps.Client
	sinks.Bus = deps.SignalBus
	return pipeline.NewRelay(pipeline.RelayConfig{
		Chains:       deps.Registry.Keys(),
		Interval:     a.cfg.Pipeline.RelayInterval.Duration,
		ArchiveBatch: a.cfg.Pipeline.ArchiveBatch,
	}, sinks, a.logger)
}

// startPipeline adds the event relay and, when Postgres and S3 are both
// wired, the scheduled audit archive.
func (a *App) startPipeline(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	if !a.cfg.Pipeline.Enabled {
		a.logger.InfoContext(ctx, "pipeline.enabled is false; ledger events are not relayed")
		return
	}
	relay := a.newRelay(deps, pipeline.RelayDeps{
		Index:    deps.PredictionIndex,
		Archiver: deps.Archiver,
	})

	var audit *pipeline.AuditArchiver
	if deps.Archiver != nil && deps.AuditStore != nil {
		audit = pipeline.NewAuditArchiver(deps.Archiver, a.cfg.Pipeline.ArchiveRetentionDays, nil, a.logger)
	}
	orch := pipeline.NewOrchestrator(relay, audit, a.cfg.Pipeline.ArchiveCron, a.logger)
	goLoop(ctx, g, "pipeline", orch.Run)
}

// startLiveRelay feeds the hub and invalidates the read cache in server
// mode. With Redis the bus and cache are shared, and the resolver process's
// relay already publishes into them.
func (a *App) startLiveRelay(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	switch {
	case !a.cfg.Pipeline.Enabled:
		a.logger.InfoContext(ctx, "pipeline.enabled is false; ws clients receive no ledger events")
		return
	case a.cfg.Redis.Enabled:
		a.logger.InfoContext(ctx, "ledger events arrive over the shared redis bus")
		return
	}
	relay := a.newRelay(deps, pipeline.RelayDeps{})
	goLoop(ctx, g, "relay", relay.RunLoop)
}

// startHTTPServer adds the HTTP server and WebSocket hub to g. The server is
// shut down gracefully when ctx is cancelled.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies, scanner handler.Scanner) {
	var webhook *crypto.WebhookAuth
	if a.cfg.Server.WebhookSecret != "" {
		webhook = &crypto.WebhookAuth{
			Secret:    a.cfg.Server.WebhookSecret,
			Tolerance: a.cfg.Server.WebhookTolerance.Duration,
		}
	}

	orch := a.newOrchestrator(deps)
	handlers := server.Handlers{
		Health:      handler.NewHealthHandler(a.cfg.Mode, deps.Checks, a.logger),
		Predictions: handler.NewPredictionHandler(deps.Client, orch, a.logger),
		Bot:         handler.NewBotHandler(orch, scanner, webhook, a.logger),
		Sweat:       handler.NewSweatHandler(a.newSweatService(deps), a.logger),
	}

	hub := ws.NewHub(deps.SignalBus, a.logger, ws.Config{
		Mode:      a.cfg.Mode,
		Chains:    deps.Registry.Keys(),
		StartedAt: time.Now().UTC(),
	})
	goLoop(ctx, g, "ws hub", hub.Run)

	srv := server.NewServer(server.Config{
		Port:          a.cfg.Server.Port,
		CORSOrigins:   a.cfg.Server.CORSOrigins,
		APIKey:        a.cfg.Server.APIKey,
		RateLimit:     a.cfg.Server.RateLimit,
		RateWindow:    a.cfg.Server.RateWindow.Duration,
		WebhookSigned: webhook != nil,
	}, handlers, hub, deps.RateLimiter, a.logger)

	if a.cfg.Server.APIKey == "" {
		a.logger.WarnContext(ctx, "server.api_key is empty; the API is unauthenticated")
	}

	g.Go(func() error {
		a.logger.InfoContext(ctx, "HTTP server listening",
			slog.Int("port", a.cfg.Server.Port),
			slog.String("url", fmt.Sprintf("http://localhost:%d", a.cfg.Server.Port)),
		)
		return srv.Start()
	})

	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}
