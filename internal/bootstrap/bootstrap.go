// Package bootstrap assembles the server from configuration and runs it
// until a signal or a fatal error.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"proscan-server-go/internal/app/services"
	"proscan-server-go/internal/domain/auth"
	"proscan-server-go/internal/domain/decode"
	platformconfig "proscan-server-go/internal/platform/config"
	platformerrors "proscan-server-go/internal/platform/errors"
	platformlogging "proscan-server-go/internal/platform/logging"
	platformobservability "proscan-server-go/internal/platform/observability"
	platformstorage "proscan-server-go/internal/platform/storage"
	httptransport "proscan-server-go/internal/transport/http"
	"proscan-server-go/internal/transport/stream"
	"proscan-server-go/internal/transport/ws"
)

const (
	shutdownTimeout = 15 * time.Second
	pruneInterval   = time.Hour
)

// Options are the command line inputs.
type Options struct {
	ConfigPath string
	Version    string
	// DisableDotEnv skips loading a .env file.
	DisableDotEnv bool
}

type stepFn func(context.Context, *appState) error

type initStep struct {
	ID        string
	Title     string
	DependsOn []string
	Kind      platformerrors.Kind
	Execute   stepFn
}

type appState struct {
	opts                  Options
	loader                *platformconfig.Loader
	config                *platformconfig.Config
	configFromFile        bool
	logger                *platformlogging.Logger
	observabilityShutdown platformobservability.ShutdownFunc
	db                    *gorm.DB
	history               *platformstorage.ScanRepository
	publisher             *stream.Publisher
	decoder               *decode.Decoder
	hub                   *ws.Hub
	scanner               *services.ScannerService
	tokens                *auth.AuthToken
}

// close releases what the init steps acquired, in reverse order.
func (s *appState) close(ctx context.Context) {
	if s.scanner != nil {
		if err := s.scanner.Close(ctx); err != nil {
			s.logger.WarnTag(platformlogging.TagBoot, "persistence did not drain: %v", err)
		}
	}
	if s.hub != nil {
		s.hub.CloseAll()
	}
	if s.publisher != nil {
		_ = s.publisher.Close()
	}
	if s.db != nil {
		if err := platformstorage.Close(s.db); err != nil {
			s.logger.WarnTag(platformlogging.TagStorage, "database close: %v", err)
		}
	}
	if s.observabilityShutdown != nil {
		_ = s.observabilityShutdown(ctx)
	}
}

// Run starts the whole service lifecycle: load configuration, initialise
// dependencies, serve, and shut down gracefully.
func Run(ctx context.Context, opts Options) error {
	state := &appState{opts: opts}

	steps := InitGraph()
	if err := executeInitSteps(ctx, steps, state); err != nil {
		if state.logger != nil {
			state.logger.ErrorTag(platformlogging.TagBoot, "startup failed: %v", err)
			closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			state.close(closeCtx)
			cancel()
			state.logger.Close()
		}
		return err
	}
	logger := state.logger
	defer logger.Close()

	logBootstrapGraph(steps, logger)

	rootCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	signalCtx, stop := signal.NotifyContext(rootCtx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, groupCtx := errgroup.WithContext(rootCtx)

	if err := startServices(state, group, groupCtx); err != nil {
		cancel()
		_ = group.Wait()
		closeCtx, closeCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		state.close(closeCtx)
		closeCancel()
		return err
	}

	err := waitForShutdown(signalCtx, groupCtx, cancel, logger, group)

	closeCtx, closeCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	state.close(closeCtx)
	closeCancel()

	logger.InfoTag(platformlogging.TagBoot, "shutdown complete")
	return err
}

func logBootstrapGraph(steps []initStep, logger *platformlogging.Logger) {
	for _, step := range steps {
		deps := "-"
		if len(step.DependsOn) > 0 {
			deps = strings.Join(step.DependsOn, ", ")
		}
		logger.DebugTag(platformlogging.TagBoot, "init step %s (%s) after [%s]", step.ID, step.Title, deps)
	}
}

func executeInitSteps(ctx context.Context, steps []initStep, state *appState) error {
	if state == nil {
		return platformerrors.New(
			platformerrors.KindBootstrap,
			"execute init steps",
			"nil bootstrap state",
		)
	}

	completed := make(map[string]struct{}, len(steps))
	for _, step := range steps {
		for _, dep := range step.DependsOn {
			if _, ok := completed[dep]; !ok {
				return platformerrors.New(
					platformerrors.KindBootstrap,
					step.ID,
					fmt.Sprintf("dependency %s not satisfied", dep),
				)
			}
		}
		if step.Execute == nil {
			return platformerrors.New(
				platformerrors.KindBootstrap,
				step.ID,
				"missing execute function",
			)
		}
		if err := step.Execute(ctx, state); err != nil {
			var typed *platformerrors.Error
			if errors.As(err, &typed) {
				return err
			}

			kind := step.Kind
			if kind == "" {
				kind = platformerrors.KindBootstrap
			}
			return platformerrors.Wrap(kind, step.ID, "bootstrap step failed", err)
		}
		completed[step.ID] = struct{}{}
	}
	return nil
}

func InitGraph() []initStep {
	return []initStep{
		{
			ID:      "config:load",
			Title:   "Load configuration",
			Kind:    platformerrors.KindConfig,
			Execute: loadConfigStep,
		},
		{
			ID:        "logging:init-provider",
			Title:     "Initialise logging provider",
			DependsOn: []string{"config:load"},
			Execute:   initLoggingStep,
		},
		{
			ID:        "observability:setup-hooks",
			Title:     "Setup observability hooks",
			DependsOn: []string{"logging:init-provider"},
			Execute:   setupObservabilityStep,
		},
		{
			ID:        "storage:open-history",
			Title:     "Open scan history database",
			DependsOn: []string{"logging:init-provider"},
			Kind:      platformerrors.KindStorage,
			Execute:   openHistoryStep,
		},
		{
			ID:        "stream:connect",
			Title:     "Connect redis event stream",
			DependsOn: []string{"logging:init-provider"},
			Kind:      platformerrors.KindTransport,
			Execute:   connectStreamStep,
		},
		{
			ID:        "decoder:init",
			Title:     "Initialise symbol decoder",
			DependsOn: []string{"config:load"},
			Kind:      platformerrors.KindAnalysis,
			Execute:   initDecoderStep,
		},
		{
			ID:        "scanner:init-service",
			Title:     "Initialise scanner service",
			DependsOn: []string{"observability:setup-hooks", "storage:open-history", "stream:connect", "decoder:init"},
			Execute:   initScannerStep,
		},
	}
}

func loadConfigStep(_ context.Context, state *appState) error {
	loader := platformconfig.NewLoader(state.opts.ConfigPath).WithDotEnv(!state.opts.DisableDotEnv)
	res, err := loader.Load()
	if err != nil {
		return err
	}
	state.loader = loader
	state.config = res.Config
	state.configFromFile = res.FromFile
	return nil
}

func initLoggingStep(_ context.Context, state *appState) error {
	cfg := state.config.Log
	logger, err := platformlogging.New(platformlogging.Config{
		Level:    cfg.Level,
		Dir:      cfg.Dir,
		Filename: cfg.File,
	})
	if err != nil {
		return platformerrors.Wrap(platformerrors.KindBootstrap, "logging:init-provider", "failed to open log file", err)
	}
	state.logger = logger
	if state.configFromFile {
		logger.InfoTag(platformlogging.TagConfig, "configuration loaded from %s", state.loader.Path())
	} else {
		logger.WarnTag(platformlogging.TagConfig, "%s not found, running with defaults", state.loader.Path())
	}
	return nil
}

func setupObservabilityStep(ctx context.Context, state *appState) error {
	cfg := platformobservability.Config{
		Enabled: state.config.Observability.Enabled,
	}
	shutdown, err := platformobservability.Setup(ctx, cfg, state.logger.Slog())
	if err != nil {
		return platformerrors.Wrap(platformerrors.KindBootstrap, "observability:setup-hooks", "failed to setup observability hooks", err)
	}
	state.observabilityShutdown = shutdown
	return nil
}

func openHistoryStep(ctx context.Context, state *appState) error {
	cfg := state.config.Storage
	if !cfg.Enabled {
		state.logger.InfoTag(platformlogging.TagStorage, "scan history disabled")
		return nil
	}
	db, err := platformstorage.Open(ctx, cfg.Path)
	if err != nil {
		return err
	}
	state.db = db
	state.history = platformstorage.NewScanRepository(db)
	state.logger.InfoTag(platformlogging.TagStorage, "scan history at %s", cfg.Path)
	return nil
}

// connectStreamStep treats redis as optional: a failed connection is logged
// and scanning continues without the stream mirror.
func connectStreamStep(ctx context.Context, state *appState) error {
	cfg := state.config.Redis
	if !cfg.Enabled {
		return nil
	}
	connectCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	pub, err := stream.NewPublisher(connectCtx, stream.Config{
		Addr:     cfg.Addr,
		Username: cfg.Username,
		Password: cfg.Password,
		DB:       cfg.DB,
		Stream:   cfg.Stream,
		MaxLen:   cfg.MaxLen,
	})
	if err != nil {
		state.logger.WarnTag(platformlogging.TagRedis, "event stream disabled: %v", err)
		return nil
	}
	state.publisher = pub
	state.logger.InfoTag(platformlogging.TagRedis, "publishing scan events to %s on %s", pub.Stream(), cfg.Addr)
	return nil
}

func initDecoderStep(_ context.Context, state *appState) error {
	cfg := state.config.Decoder
	dec, err := decode.New(decode.Options{
		Formats:       cfg.Formats,
		TryHarder:     cfg.TryHarder,
		LinearPadding: cfg.LinearPadding,
	})
	if err != nil {
		return err
	}
	state.decoder = dec
	return nil
}

func initScannerStep(_ context.Context, state *appState) error {
	state.hub = ws.NewHub(state.logger)
	state.tokens = auth.NewAuthToken(state.config.Server.TokenSecret)

	sc := services.ScannerConfig{
		Config:      state.config,
		Logger:      state.logger,
		Decoder:     state.decoder,
		Broadcaster: state.hub,
	}
	if state.history != nil {
		sc.History = state.history
	}
	if state.publisher != nil {
		sc.Publisher = state.publisher
	}
	scanner, err := services.NewScannerService(sc)
	if err != nil {
		return err
	}
	state.scanner = scanner
	return nil
}

func startServices(state *appState, g *errgroup.Group, groupCtx context.Context) error {
	if _, err := startHTTPServer(state, g, groupCtx); err != nil {
		return err
	}
	startConfigWatcher(state, g, groupCtx)
	startHistoryPruner(state, g, groupCtx)

	if state.config.Processing.AutoStart {
		if err := state.scanner.Start(groupCtx); err != nil {
			// the operator can retry from the panel once the source is back
			state.logger.ErrorTag(platformlogging.TagScan, "autostart failed: %v", err)
		}
	}
	return nil
}

// buildRouter assembles the HTTP surface over the initialised components.
func buildRouter(ctx context.Context, state *appState) (*gin.Engine, error) {
	cfg := state.config
	router, err := httptransport.Build(httptransport.Options{
		Config:         cfg,
		Logger:         state.logger,
		AuthMiddleware: httptransport.BearerAuth(state.tokens),
		StaticRoot:     cfg.Server.WebDir,
		SnapshotDir:    cfg.Output.SaveDir,
	})
	if err != nil {
		return nil, err
	}

	httptransport.NewScannerHandler(ctx, state.scanner, state.logger).RegisterRoutes(router)
	httptransport.NewSystemHandler(state.opts.Version, state.hub).RegisterRoutes(router)

	wsRouter := ws.NewRouter(state.hub, state.logger, ws.RouterOptions{})
	router.Engine.GET("/ws/scans", gin.WrapF(wsRouter.Handle))

	router.Engine.NoRoute(func(c *gin.Context) {
		httptransport.RespondError(c, http.StatusNotFound, "not found", nil)
	})
	return router.Engine, nil
}

func startHTTPServer(state *appState, g *errgroup.Group, groupCtx context.Context) (*http.Server, error) {
	engine, err := buildRouter(groupCtx, state)
	if err != nil {
		return nil, platformerrors.Wrap(platformerrors.KindTransport, "http:build-router", "failed to build router", err)
	}

	cfg := state.config.Server
	addr := net.JoinHostPort(cfg.IP, strconv.Itoa(cfg.Port))
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, platformerrors.Wrap(platformerrors.KindTransport, "http:listen", "failed to listen on "+addr, err)
	}

	logger := state.logger
	httpServer := &http.Server{
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g.Go(func() error {
		logger.InfoTag(platformlogging.TagHTTP, "listening on http://%s", listener.Addr())

		go func() {
			<-groupCtx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := httpServer.Shutdown(shutdownCtx); err != nil {
				logger.ErrorTag(platformlogging.TagHTTP, "http shutdown failed: %v", err)
			}
		}()

		if err := httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.ErrorTag(platformlogging.TagHTTP, "http server failed: %v", err)
			return err
		}
		return nil
	})

	return httpServer, nil
}

func startConfigWatcher(state *appState, g *errgroup.Group, groupCtx context.Context) {
	if !state.configFromFile {
		return
	}
	logger := state.logger
	watcher, err := platformconfig.NewWatcher(state.loader,
		func(cfg *platformconfig.Config) {
			if err := state.scanner.ApplyConfig(cfg); err != nil {
				logger.ErrorTag(platformlogging.TagConfig, "reloaded configuration rejected: %v", err)
			}
		},
		func(err error) {
			logger.ErrorTag(platformlogging.TagConfig, "configuration reload failed, keeping previous: %v", err)
		},
	)
	if err != nil {
		logger.WarnTag(platformlogging.TagConfig, "hot reload unavailable: %v", err)
		return
	}
	if err := watcher.Start(groupCtx); err != nil {
		logger.WarnTag(platformlogging.TagConfig, "hot reload unavailable: %v", err)
		return
	}
	g.Go(func() error {
		<-groupCtx.Done()
		watcher.Stop()
		return nil
	})
}

func startHistoryPruner(state *appState, g *errgroup.Group, groupCtx context.Context) {
	if state.history == nil {
		return
	}
	g.Go(func() error {
		ticker := time.NewTicker(pruneInterval)
		defer ticker.Stop()
		for {
			if _, err := state.scanner.PruneHistory(groupCtx, time.Now()); err != nil {
				state.logger.WarnTag(platformlogging.TagStorage, "history prune failed: %v", err)
			}
			select {
			case <-groupCtx.Done():
				return nil
			case <-ticker.C:
			}
		}
	})
}

func waitForShutdown(
	signalCtx context.Context,
	groupCtx context.Context,
	cancel context.CancelFunc,
	logger *platformlogging.Logger,
	g *errgroup.Group,
) error {
	select {
	case <-signalCtx.Done():
		logger.InfoTag(platformlogging.TagBoot, "shutdown signal received")
	case <-groupCtx.Done():
		logger.WarnTag(platformlogging.TagBoot, "a service exited, shutting down")
	}

	cancel()

	done := make(chan error, 1)
	go func() {
		done <- g.Wait()
	}()

	select {
	case err := <-done:
		if err != nil {
			logger.ErrorTag(platformlogging.TagBoot, "error during shutdown: %v", err)
			return err
		}
		logger.InfoTag(platformlogging.TagBoot, "all services stopped")
	case <-time.After(shutdownTimeout):
		logger.ErrorTag(platformlogging.TagBoot, "shutdown timed out")
		return errors.New("shutdown timed out")
	}
	return nil
}
