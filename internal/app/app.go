package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"NewsGrinder/internal/candidates"
	"NewsGrinder/internal/config"
	"NewsGrinder/internal/cooldown"
	"NewsGrinder/internal/domain"
	"NewsGrinder/internal/infrastructure/aggregator"
	"NewsGrinder/internal/infrastructure/archive"
	"NewsGrinder/internal/infrastructure/browser"
	"NewsGrinder/internal/infrastructure/fetcher"
	"NewsGrinder/internal/infrastructure/llm"
	"NewsGrinder/internal/infrastructure/parser"
	"NewsGrinder/internal/infrastructure/scheduler"
	"NewsGrinder/internal/infrastructure/search"
	"NewsGrinder/internal/infrastructure/storage"
	"NewsGrinder/internal/infrastructure/telegram"
	"NewsGrinder/internal/logging"
	"NewsGrinder/internal/metrics"
	"NewsGrinder/internal/ports"
	"NewsGrinder/internal/ratelimit"
	"NewsGrinder/internal/sources"
	"NewsGrinder/internal/table"
	"NewsGrinder/internal/usecase"
	"NewsGrinder/internal/verify"
)

// Application wires configs to use cases and lifecycle orchestration.
type Application struct {
	cfg      config.Config
	logger   *slog.Logger
	store    *storage.SQLRepository
	table    *table.Table
	autosave *scheduler.Autosave
	browser  *browser.Browser
	fetchLog *logging.FetchLog
	metrics  *metrics.Metrics

	pipeline *usecase.Pipeline
	adder    *usecase.Adder
}

// New opens the row store, loads the table and builds every adapter.
func New(ctx context.Context, cfg config.Config, baseLogger *slog.Logger) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.MaxStringLength)
	}

	fetchLog, err := logging.OpenFetchLog(cfg.Logging.FetchLogFile, cfg.Logging.MaxStringLength)
	if err != nil {
		return nil, err
	}

	store, err := storage.Open(ctx, storage.Options{
		Driver:           cfg.Store.Driver,
		DSN:              cfg.Store.DSN,
		MaxCellChars:     cfg.Store.MaxCellChars,
		DropOversize:     cfg.Store.DropOversize,
		OversizeLogLimit: cfg.Store.OversizeLogLimit,
	}, baseLogger.With("component", "store"))
	if err != nil {
		_ = fetchLog.Close()
		return nil, fmt.Errorf("open store: %w", err)
	}
	sheet, err := store.LoadRows(ctx)
	if err != nil {
		_ = store.Close()
		_ = fetchLog.Close()
		return nil, fmt.Errorf("load rows: %w", err)
	}

	tbl := table.New(sheet)
	autosave := scheduler.NewAutosave(cfg.Store.SaveDebounce, func(ctx context.Context) error {
		return store.SaveAllRows(ctx, tbl.Snapshot())
	}, baseLogger.With("component", "autosave"))
	tbl.OnChange(autosave.Queue)

	m := metrics.New()
	a := &Application{
		cfg:      cfg,
		logger:   baseLogger,
		store:    store,
		table:    tbl,
		autosave: autosave,
		fetchLog: fetchLog,
		metrics:  m,
	}

	orchestrator := a.buildOrchestrator(m)
	var notifier ports.Notifier
	if tg := telegram.NewNotifier(cfg.Notifications.Telegram.BotToken, cfg.Notifications.Telegram.ChatID); tg.Configured() {
		notifier = tg
	}

	a.pipeline = usecase.NewPipeline(usecase.PipelineDeps{
		Table:        tbl,
		Store:        store,
		Orchestrator: orchestrator,
		Autosave:     autosave,
		Notifier:     notifier,
		Logger:       baseLogger.With("component", "pipeline"),
		TopicIDs:     cfg.TopicIDs(),
		DigestLimit:  cfg.Run.DigestLimit,
	})
	a.adder = usecase.NewAdder(tbl, orchestrator, autosave, baseLogger.With("component", "add"))
	return a, nil
}

func (a *Application) buildOrchestrator(m *metrics.Metrics) *usecase.Orchestrator {
	cfg, logger := a.cfg, a.logger
	client := &http.Client{Timeout: cfg.Fetch.Timeout}

	tracker := cooldown.NewTracker(nil, logger.With("component", "cooldown"))
	direct := fetcher.New(client, tracker, fetcher.Options{
		Attempts:             cfg.Fetch.Attempts,
		Timeout:              cfg.Fetch.Timeout,
		UserAgent:            cfg.Fetch.UserAgent,
		StatusCooldowns:      cfg.Fetch.StatusCooldowns,
		NetworkErrorCooldown: cfg.Fetch.NetworkErrorCooldown,
		ProxyReaderURL:       cfg.Fetch.ProxyReaderURL,
		ArchiveHosts:         cfg.Fetch.ArchiveHosts,
		ArchiveDelay:         cfg.Fetch.ArchiveDelay,
		ArchiveCooldown:      cfg.Fetch.ArchiveCooldown,
		WaybackURL:           cfg.Fetch.WaybackURL,
	}, logger.With("component", "fetcher"), m)

	decodeGate := ratelimit.NewGate("url_decode", cfg.RateLimits.URLDecodeDelay,
		ratelimit.WithGrowth(cfg.RateLimits.URLDecodeIncrement, cfg.RateLimits.URLDecodeMax),
		ratelimit.WithLogger(logger))
	searchGate := ratelimit.NewGate("news_search", cfg.Search.Aggregator.Delay, ratelimit.WithLogger(logger))
	verifyGate := ratelimit.NewGate("verify", cfg.RateLimits.VerifyDelay, ratelimit.WithLogger(logger))
	aiGate := ratelimit.NewGate("ai", 0, ratelimit.WithLogger(logger))

	agg := cfg.Search.Aggregator
	decoder := aggregator.NewDecoder(client, agg.BaseURL, decodeGate, cfg.Run.DecodeAttempts, logger.With("component", "decoder"))
	news := aggregator.NewSearcher(client, agg.BaseURL, agg.Params, searchGate, logger.With("component", "news_search"), m)

	ext := cfg.Search.External
	external := search.New(search.Options{
		Enabled:        ext.Enabled,
		Provider:       ext.Provider,
		APIKey:         ext.APIKey,
		MaxResults:     ext.MaxResults,
		Timeout:        ext.Timeout,
		AggregatorHost: news.Host(),
	}, search.DefaultRegistry(), logger.With("component", "external_search"), m)

	var judge ports.MatchJudge
	var summarizer ports.Summarizer
	if cfg.ChatGPT.APIKey != "" {
		chat := llm.NewChatGPTClient(cfg.ChatGPT)
		judge = llm.NewMatcher(chat, cfg.Verify.Model, cfg.Verify.SummaryMaxChars, logger.With("component", "matcher"))
		summarizer = llm.NewSummarizer(chat, cfg.ChatGPT, logger.With("component", "summarizer"))
	} else {
		logger.Warn("chatgpt api key is not set, summaries and verification are unavailable")
	}
	verifier := verify.New(judge, verifyGate, verify.Options{
		Gate:          verify.Gate{Mode: verify.Mode(cfg.Verify.Mode), ShortThreshold: cfg.Verify.ShortThreshold},
		MinConfidence: cfg.Verify.MinConfidence,
		FailOpen:      cfg.Verify.FailOpen,
		MaxChars:      cfg.Verify.MaxChars,
	}, logger.With("component", "verify"))

	deps := usecase.OrchestratorDeps{
		Fetcher:    direct,
		Extractor:  parser.NewExtractor(domain.MinTextLength),
		Verifier:   verifier,
		Decoder:    decoder,
		News:       news,
		External:   external,
		Archive:    archive.NewDisk(cfg.Archive.Dir),
		Summarizer: summarizer,
		Candidates: candidates.NewResolver(
			sources.NewTrustTable(cfg.Agencies.Levels, cfg.Agencies.DefaultLevel),
			cfg.Agencies.MinLevel,
			cfg.Agencies.FallbackMinLevel,
		),
		AIGate:  aiGate,
		Events:  logging.NewEvents(logger.With("component", "resolver"), a.fetchLog),
		Metrics: m,
	}
	if cfg.Browser.Enabled {
		a.browser = browser.New(browser.Options{
			Headless:          cfg.Browser.Headless,
			ArchiveHost:       cfg.Browser.ArchiveHost,
			CaptchaTimeout:    cfg.Browser.CaptchaTimeout,
			NavigationTimeout: cfg.Browser.NavigationTimeout,
		}, logger.With("component", "browser"))
		deps.Browser = a.browser
	}

	return usecase.NewOrchestrator(deps, usecase.OrchestratorOptions{
		FetchAttempts:      cfg.Fetch.Attempts,
		DecodeFailurePause: cfg.Run.DecodeFailurePause,
		AggregatorHost:     news.Host(),
		TopicName:          cfg.TopicName,
		AIDelay: func(tokens int) time.Duration {
			return llm.DelayForTokens(tokens, cfg.ChatGPT.TokensPerMinute)
		},
	})
}

// Run performs a single summarize batch.
func (a *Application) Run(ctx context.Context) error {
	a.serveMetrics(ctx)
	_, err := a.pipeline.Run(ctx)
	return err
}

// Watch runs the batch on the configured interval until ctx is done.
func (a *Application) Watch(ctx context.Context) error {
	a.serveMetrics(ctx)
	sched := usecase.NewScheduler(
		scheduler.NewIntervalScheduler(a.cfg.Scheduler.Interval),
		a.pipeline,
		a.logger.With("component", "scheduler"),
	)
	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	a.logger.Info("watching", "interval", a.cfg.Scheduler.Interval, "timezone", a.cfg.Scheduler.Location().String())
	<-ctx.Done()
	return sched.Stop(context.WithoutCancel(ctx))
}

// Add processes the given URLs, or the rows marked for manual add when urls
// is empty.
func (a *Application) Add(ctx context.Context, urls []string, opts usecase.AddOptions) ([]*domain.Event, error) {
	if len(urls) == 0 {
		return a.adder.AddMarked(ctx)
	}
	return a.adder.AddAll(ctx, urls, opts)
}

// Close flushes pending saves and releases the browser, the store and the
// fetch log.
func (a *Application) Close(ctx context.Context) error {
	var errs []error
	if err := a.autosave.Flush(ctx); err != nil {
		errs = append(errs, fmt.Errorf("flush: %w", err))
	}
	if a.browser != nil {
		if err := a.browser.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close browser: %w", err))
		}
	}
	if err := a.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close store: %w", err))
	}
	if err := a.fetchLog.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close fetch log: %w", err))
	}
	return errors.Join(errs...)
}

func (a *Application) serveMetrics(ctx context.Context) {
	if a.cfg.Metrics.Addr == "" {
		return
	}
	go func() {
		if err := a.metrics.Serve(ctx, a.cfg.Metrics.Addr, a.logger.With("component", "metrics")); err != nil {
			a.logger.Warn("metrics stopped", "error", err)
		}
	}()
}
