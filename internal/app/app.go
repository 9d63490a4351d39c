package app

import (
	"fmt"
	"net/http"

	"github.com/jmoiron/sqlx"
	"github.com/riskibarqy/coindraw/internal/config"
	"github.com/riskibarqy/coindraw/internal/domain/lottery"
	"github.com/riskibarqy/coindraw/internal/infrastructure/notify"
	"github.com/riskibarqy/coindraw/internal/infrastructure/repository/cache"
	"github.com/riskibarqy/coindraw/internal/infrastructure/repository/memory"
	"github.com/riskibarqy/coindraw/internal/infrastructure/repository/postgres"
	"github.com/riskibarqy/coindraw/internal/interfaces/httpapi"
	basecache "github.com/riskibarqy/coindraw/internal/platform/cache"
	idgen "github.com/riskibarqy/coindraw/internal/platform/id"
	"github.com/riskibarqy/coindraw/internal/platform/logging"
	"github.com/riskibarqy/coindraw/internal/platform/random"
	"github.com/riskibarqy/coindraw/internal/platform/resilience"
	"github.com/riskibarqy/coindraw/internal/usecase"
)

// App wires the configured repository, service, watcher, and HTTP
// server together. The watcher is nil when disabled by config.
type App struct {
	Server  *http.Server
	Watcher *usecase.DeadlineWatcher

	db     *sqlx.DB
	logger *logging.Logger
}

func New(cfg config.Config, logger *logging.Logger) (*App, error) {
	if logger == nil {
		logger = logging.Default()
	}

	var (
		repo lottery.Repository
		db   *sqlx.DB
	)
	if cfg.DBURL != "" {
		conn, err := openDB(cfg)
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		db = conn
		repo = postgres.NewLotteryRepository(db)
		logger.Info("using postgres repository", "db_name", dbNameFromURL(cfg.DBURL))
	} else {
		repo = memory.NewLotteryRepository()
		logger.Info("using in-memory repository")
	}

	if cfg.CacheEnabled {
		repo = cache.NewLotteryRepository(repo, basecache.NewStore(cfg.CacheTTL))
	}

	notifier := usecase.NewNoopNotifier()
	if cfg.WebhookEnabled {
		publisher, err := notify.NewWebhookPublisher(notify.WebhookPublisherConfig{
			URL:     cfg.WebhookURL,
			Timeout: cfg.WebhookTimeout,
			Retries: cfg.WebhookRetries,
			Circuit: resilience.CircuitBreakerConfig{
				Enabled:          cfg.WebhookCircuitEnabled,
				FailureThreshold: cfg.WebhookCircuitFailureCount,
				OpenTimeout:      cfg.WebhookCircuitOpenTimeout,
				HalfOpenMaxReq:   cfg.WebhookCircuitHalfOpenMax,
			},
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("build webhook publisher: %w", err)
		}
		notifier = publisher
	}

	service := usecase.NewLotteryService(repo, random.NewGlobal(), idgen.NewRandomGenerator(), notifier, logger)

	var watcher *usecase.DeadlineWatcher
	if cfg.WatcherEnabled {
		watcher = usecase.NewDeadlineWatcher(repo, service, cfg.WatcherInterval, cfg.WatcherMaxWorkers, logger)
	}

	handler := httpapi.NewHandler(service, logger)
	router := httpapi.NewRouter(handler, logger, cfg.CORSAllowedOrigins)

	server := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	if server.Addr == "" {
		return nil, fmt.Errorf("http server addr cannot be empty")
	}

	return &App{
		Server:  server,
		Watcher: watcher,
		db:      db,
		logger:  logger,
	}, nil
}

func (a *App) Close() error {
	if a.db == nil {
		return nil
	}
	return a.db.Close()
}
