package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"autoanalyze-backend/internal/analyses"
	"autoanalyze-backend/internal/sessions"
	"autoanalyze-backend/internal/shared/config"
	"autoanalyze-backend/internal/shared/server"
	"autoanalyze-backend/internal/shared/storage/db"
	"autoanalyze-backend/internal/shared/storage/object"
	localstore "autoanalyze-backend/internal/shared/storage/object/local"
	s3store "autoanalyze-backend/internal/shared/storage/object/s3"
	"autoanalyze-backend/internal/shared/telemetry"
)

// App holds the wired dependencies of the API process.
type App struct {
	Config          config.Config
	Router          *gin.Engine
	DB              *sql.DB
	Store           object.ObjectStore
	Source          sessions.Source
	AnalysesRepo    analyses.Repo
	AnalysesService *analyses.Service
	AnalysisHandler *analyses.Handler
}

// Build prepares dependencies and the router.
func Build(ctx context.Context, cfg config.Config) (*App, error) {
	if strings.TrimSpace(cfg.Env) == "" {
		cfg.Env = "dev"
	}
	if strings.TrimSpace(cfg.ObjectStoreType) == "" {
		cfg.ObjectStoreType = "local"
	}

	sqlDB, err := buildDB(ctx, cfg)
	if err != nil {
		return nil, err
	}

	store, err := buildStore(ctx, cfg)
	if err != nil {
		closeDB(sqlDB)
		return nil, err
	}

	source, err := buildSource(cfg)
	if err != nil {
		closeDB(sqlDB)
		return nil, err
	}

	app := &App{
		Config: cfg,
		DB:     sqlDB,
		Store:  store,
		Source: source,
	}
	buildServices(app)

	app.Router = server.NewRouter(server.RouterDeps{
		Config:          app.Config,
		AnalysisHandler: app.AnalysisHandler,
	})
	return app, nil
}

// Close waits for running analyses to wind down and releases the database.
func (a *App) Close(ctx context.Context) error {
	if a == nil {
		return nil
	}
	var err error
	if a.AnalysesService != nil {
		err = a.AnalysesService.Shutdown(ctx)
	}
	closeDB(a.DB)
	return err
}

func buildDB(ctx context.Context, cfg config.Config) (*sql.DB, error) {
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		if isDevLike(cfg.Env) {
			telemetry.Warn("bootstrap.db_missing", map[string]any{"fallback": "memory"})
			return nil, nil
		}
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	opts := db.OptionsFromEnv(db.DefaultServerOptions())
	sqlDB, err := db.Connect(ctx, cfg.DatabaseURL, opts)
	if err == nil {
		if err = db.RunMigrations(ctx, sqlDB); err != nil {
			closeDB(sqlDB)
			sqlDB = nil
		}
	}
	if err != nil {
		if isDevLike(cfg.Env) {
			telemetry.Warn("bootstrap.db_unavailable", map[string]any{
				"error":    err.Error(),
				"fallback": "memory",
			})
			return nil, nil
		}
		return nil, err
	}
	return sqlDB, nil
}

func buildStore(ctx context.Context, cfg config.Config) (object.ObjectStore, error) {
	switch cfg.ObjectStoreType {
	case "s3":
		if strings.TrimSpace(cfg.AWSRegion) == "" || strings.TrimSpace(cfg.S3Bucket) == "" {
			return nil, fmt.Errorf("OBJECT_STORE=s3 requires AWS_REGION and S3_BUCKET")
		}
		return s3store.New(ctx, cfg.AWSRegion, cfg.S3Bucket, cfg.S3Prefix, cfg.SSEKMSKeyID)
	default:
		return localstore.New(cfg.LocalStoreDir), nil
	}
}

func buildSource(cfg config.Config) (sessions.Source, error) {
	if strings.TrimSpace(cfg.SessionAPIURL) == "" {
		if isDevLike(cfg.Env) {
			telemetry.Warn("bootstrap.session_api_missing", map[string]any{"fallback": "memory"})
			return sessions.NewMemorySource(), nil
		}
		return nil, fmt.Errorf("SESSION_API_URL is required")
	}
	timeout := time.Duration(cfg.SessionAPITimeoutSeconds) * time.Second
	return sessions.NewHTTPSource(cfg.SessionAPIURL, cfg.SessionAPIKey, timeout)
}

func buildServices(app *App) {
	var repo analyses.Repo
	if app.DB != nil {
		repo = &analyses.PGRepo{DB: app.DB}
	} else {
		repo = analyses.NewMemoryRepo()
	}

	callTimeout := time.Duration(app.Config.LLMTimeoutSeconds) * time.Second
	svc := &analyses.Service{
		Repo:         repo,
		Artifacts:    &analyses.ResultStore{Store: app.Store},
		Source:       app.Source,
		NewExtractor: analyses.LLMExtractorFactory(callTimeout),
		MaxStreams:   app.Config.MaxStreams,
		BatchSize:    app.Config.BatchSize,
		CallTimeout:  callTimeout,
	}

	app.AnalysesRepo = repo
	app.AnalysesService = svc
	app.AnalysisHandler = analyses.NewHandler(svc)
}

func closeDB(sqlDB *sql.DB) {
	if sqlDB == nil {
		return
	}
	if err := sqlDB.Close(); err != nil {
		telemetry.Warn("bootstrap.db_close_failed", map[string]any{"error": err.Error()})
	}
}

func isDevLike(env string) bool {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "dev", "local":
		return true
	default:
		return false
	}
}
