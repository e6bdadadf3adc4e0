package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"

	"github.com/itstheanurag/fnrunner/internal/api"
	"github.com/itstheanurag/fnrunner/internal/config"
	"github.com/itstheanurag/fnrunner/internal/database"
	"github.com/itstheanurag/fnrunner/internal/executor"
	"github.com/itstheanurag/fnrunner/internal/languages"
	"github.com/itstheanurag/fnrunner/internal/limiter"
	"github.com/itstheanurag/fnrunner/internal/metrics"
	"github.com/itstheanurag/fnrunner/internal/output"
	"github.com/itstheanurag/fnrunner/internal/queue"
	"github.com/itstheanurag/fnrunner/internal/sandbox"
	"github.com/itstheanurag/fnrunner/internal/store"
	"github.com/itstheanurag/fnrunner/internal/worker"
	"github.com/itstheanurag/fnrunner/internal/workspace"
)

const limiterCleanupInterval = 5 * time.Minute

type Server struct {
	conf        *config.Config
	logger      *zerolog.Logger
	httpServer  *http.Server
	db          *database.Database
	redis       *redis.Client
	docker      *sandbox.DockerSandbox
	runner      *sandbox.Runner
	queue       *queue.Manager
	workers     []*worker.Worker
	rateLimiter *limiter.RateLimiter
	cancelFunc  context.CancelFunc
	workerWG    sync.WaitGroup

	// Parent of every request context; cancelled when a graceful shutdown
	// runs out of time so in-flight sandboxes are killed and removed.
	requestCtx     context.Context
	cancelRequests context.CancelFunc
}

func New(
	ctx context.Context,
	conf *config.Config,
	logger *zerolog.Logger,
) (*Server, error) {
	s := &Server{
		conf:   conf,
		logger: logger,
	}

	functions, records, err := s.openStores(ctx)
	if err != nil {
		return nil, err
	}

	docker, err := sandbox.NewDockerSandbox(logger)
	if err != nil {
		s.closeStores()
		return nil, fmt.Errorf("failed to create sandbox: %w", err)
	}
	s.docker = docker

	s.assemble(functions, records, docker)
	return s, nil
}

func (s *Server) openStores(ctx context.Context) (store.FunctionStore, store.RecordStore, error) {
	var (
		functions store.FunctionStore
		records   store.RecordStore
	)

	switch s.conf.Storage {
	case config.StorageMemory:
		mem := store.NewMemory()
		functions, records = mem, mem
		s.logger.Warn().Msg("using in-memory storage, functions and records are lost on restart")
	default:
		db, err := database.New(ctx, s.conf, s.logger)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create database: %w", err)
		}
		if err := db.Migrate(ctx); err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		s.db = db
		pg := store.NewPostgres(db.Pool)
		functions, records = pg, pg
	}

	if s.conf.Redis.Address != "" {
		s.redis = redis.NewClient(&redis.Options{
			Addr:     s.conf.Redis.Address,
			Password: s.conf.Redis.Password,
			DB:       s.conf.Redis.DB,
		})
		ttl := time.Duration(s.conf.Redis.CacheTTLSeconds) * time.Second
		functions = store.NewCachedFunctions(functions, s.redis, ttl, s.logger)
		s.logger.Info().Str("address", s.conf.Redis.Address).Dur("ttl", ttl).Msg("route cache enabled")
	}

	return functions, records, nil
}

// assemble wires the invocation pipeline behind the HTTP router.
func (s *Server) assemble(functions store.FunctionStore, records store.RecordStore, provider sandbox.Provider) {
	conf := s.conf
	logger := s.logger

	registry := languages.NewRegistry()
	fs := afero.NewOsFs()
	killTimeout := time.Duration(conf.Sandbox.KillTimeoutSeconds) * time.Second

	s.runner = sandbox.NewRunner(registry, provider, killTimeout, logger)
	exec := executor.NewExecutor(
		functions,
		workspace.NewProvisioner(fs, conf.Sandbox.WorkspaceRoot, registry, logger),
		s.runner,
		output.NewCollector(fs, logger),
		metrics.NewRecorder(records, logger),
		logger,
	)

	s.queue = queue.NewManager(conf.Executor.QueueSize)
	s.workers = make([]*worker.Worker, conf.Executor.Workers)
	for i := range s.workers {
		s.workers[i] = worker.NewWorker(i, exec, s.queue, logger)
	}

	s.rateLimiter = limiter.NewRateLimiter(
		conf.Limiter.GlobalRPS,
		conf.Limiter.PerIPRPS,
		conf.Limiter.PerIPBurst,
		conf.Limiter.MaxConcurrent,
	)

	handler := api.NewHandler(s.queue, functions, records, logger)

	s.requestCtx, s.cancelRequests = context.WithCancel(context.Background())
	s.httpServer = &http.Server{
		Addr:         ":" + conf.Server.Port,
		Handler:      api.NewRouter(handler, s.rateLimiter, conf.Server.CORSOrigins),
		ReadTimeout:  time.Duration(conf.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(conf.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(conf.Server.IdleTimeout) * time.Second,
		BaseContext:  func(net.Listener) context.Context { return s.requestCtx },
	}
}

func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// StartWorkers launches the worker pool and background maintenance. Start
// calls it; tests that drive Handler directly call it themselves.
func (s *Server) StartWorkers() {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancelFunc = cancel

	for _, w := range s.workers {
		s.workerWG.Add(1)
		go func() {
			defer s.workerWG.Done()
			w.Start(ctx)
		}()
	}
	s.rateLimiter.StartCleanup(ctx, limiterCleanupInterval)
}

func (s *Server) Start() error {
	s.logger.Info().
		Str("port", s.conf.Server.Port).
		Int("workers", len(s.workers)).
		Str("workspace_root", s.conf.Sandbox.WorkspaceRoot).
		Msg("starting HTTP server")

	if s.conf.Sandbox.PullImages {
		if err := s.runner.EnsureImages(context.Background()); err != nil {
			return fmt.Errorf("failed to ensure docker images: %w", err)
		}
	}

	s.StartWorkers()

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server failed: %w", err)
	}

	return nil
}

// Stop drains in-flight requests until ctx is done. Whatever is still
// running then is cancelled, and Stop waits for its sandbox and workspace to
// be released before closing the Docker client and the stores.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info().Msg("shutting down HTTP server")

	shutdownErr := s.httpServer.Shutdown(ctx)
	if shutdownErr != nil {
		s.logger.Warn().Err(shutdownErr).Msg("graceful shutdown timed out, cancelling in-flight invocations")
		s.cancelRequests()
		if err := s.httpServer.Close(); err != nil {
			s.logger.Warn().Err(err).Msg("failed to close HTTP server")
		}
	}

	if s.cancelFunc != nil {
		s.cancelFunc()
	}
	s.waitForWorkers()

	if s.docker != nil {
		if err := s.docker.Close(); err != nil {
			s.logger.Warn().Err(err).Msg("failed to close docker client")
		}
	}
	s.closeStores()

	if shutdownErr != nil {
		return fmt.Errorf("failed to shutdown HTTP server: %w", shutdownErr)
	}
	return nil
}

// waitForWorkers gives cancelled invocations time to kill and remove their
// sandbox and release their workspace.
func (s *Server) waitForWorkers() {
	done := make(chan struct{})
	go func() {
		s.workerWG.Wait()
		close(done)
	}()

	drain := 2 * time.Duration(s.conf.Sandbox.KillTimeoutSeconds) * time.Second
	select {
	case <-done:
	case <-time.After(drain):
		s.logger.Error().Dur("waited", drain).Msg("workers still busy after shutdown, sandboxes may be left behind")
	}
}

func (s *Server) closeStores() {
	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			s.logger.Warn().Err(err).Msg("failed to close redis client")
		}
	}
	if s.db != nil {
		_ = s.db.Close()
	}
}
