package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"

	"german-ocr/internal/gateway/jobs"
	"german-ocr/internal/inference"
	"german-ocr/internal/inference/ollama"
	"german-ocr/internal/queue"
	"german-ocr/internal/services/health"
	"german-ocr/internal/shared/config"
	"german-ocr/internal/shared/server"
	"german-ocr/internal/shared/storage/db"
	"german-ocr/internal/shared/storage/object"
	localstore "german-ocr/internal/shared/storage/object/local"
	"german-ocr/internal/shared/telemetry"
	"german-ocr/ocr"
)

// App holds the gateway's shared dependencies.
type App struct {
	Config  config.Config
	Router  *gin.Engine
	DB      *sql.DB
	Store   object.ObjectStore
	Queue   *queue.MemoryQueue
	Repo    jobs.Repo
	Engine  inference.Engine
	Jobs    *jobs.Service
	Handler *jobs.Handler
	Pool    *queue.Pool
}

// Options lets callers replace dependencies, mainly in tests.
type Options struct {
	Engine inference.Engine
}

// Build prepares the gateway: storage, queue, inference, service and router.
func Build(ctx context.Context, cfg config.Config, opts Options) (*App, error) {
	if strings.TrimSpace(cfg.Env) == "" {
		cfg.Env = "dev"
	}
	if !isDevLike(cfg.Env) && (cfg.APIKey == "" || cfg.APISecret == "") {
		return nil, fmt.Errorf("GATEWAY_API_KEY and GATEWAY_API_SECRET are required in %s", cfg.Env)
	}

	sqlDB, err := buildDB(ctx, cfg)
	if err != nil {
		return nil, err
	}

	var repo jobs.Repo
	if sqlDB != nil {
		repo = &jobs.PGRepo{DB: sqlDB}
	} else {
		repo = jobs.NewMemoryRepo()
	}

	engine := opts.Engine
	if engine == nil {
		engine = ollama.NewClient(cfg.OllamaURL, cfg.OllamaTimeout)
	}

	app := &App{
		Config: cfg,
		DB:     sqlDB,
		Store:  localstore.New(cfg.LocalStoreDir),
		Queue:  queue.NewMemoryQueue(cfg.QueueSize),
		Repo:   repo,
		Engine: engine,
	}
	app.Jobs = &jobs.Service{
		Repo:        app.Repo,
		Store:       app.Store,
		Queue:       app.Queue,
		Engine:      app.Engine,
		Models:      runtimeModels(cfg.OllamaModels),
		KeepUploads: cfg.KeepUploads,
	}
	app.Handler = jobs.NewHandler(app.Jobs, cfg.PollWindow)
	app.Pool = &queue.Pool{
		Source:          app.Queue,
		Processor:       app.Jobs,
		Concurrency:     cfg.WorkerConcurrency,
		ShutdownTimeout: cfg.ShutdownTimeout,
	}
	app.Router = server.NewRouter(server.RouterDeps{
		Config:      cfg,
		JobsHandler: app.Handler,
		Health:      health.NewService(sqlDB, app.Queue),
	})

	return app, nil
}

// Close releases the queue and database.
func (a *App) Close() {
	if a == nil {
		return
	}
	if a.Queue != nil {
		a.Queue.Close()
	}
	if a.DB != nil {
		_ = a.DB.Close()
	}
}

func buildDB(ctx context.Context, cfg config.Config) (*sql.DB, error) {
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		if isDevLike(cfg.Env) {
			telemetry.Info("bootstrap.storage", map[string]any{"backend": "memory", "reason": "DATABASE_URL empty"})
			return nil, nil
		}
		return nil, fmt.Errorf("DATABASE_URL is required in %s", cfg.Env)
	}

	sqlDB, err := db.Connect(ctx, cfg.DatabaseURL, db.OptionsFromEnv(db.DefaultServerOptions()))
	if err == nil {
		err = db.RunMigrations(ctx, sqlDB)
		if err != nil {
			_ = sqlDB.Close()
		}
	}
	if err != nil {
		if isDevLike(cfg.Env) {
			telemetry.Warn("bootstrap.storage", map[string]any{"backend": "memory", "error": err.Error()})
			return nil, nil
		}
		return nil, err
	}
	telemetry.Info("bootstrap.storage", map[string]any{"backend": "postgres"})
	return sqlDB, nil
}

// runtimeModels maps configured selectors to Ollama model names.
func runtimeModels(raw map[string]string) map[ocr.Model]string {
	out := make(map[ocr.Model]string, len(raw))
	for key, name := range raw {
		m, err := ocr.ParseModel(key)
		if err != nil || strings.TrimSpace(name) == "" {
			continue
		}
		out[m] = strings.TrimSpace(name)
	}
	return out
}

func isDevLike(env string) bool {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "dev", "local":
		return true
	default:
		return false
	}
}
