package bootstrap

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	appControllers "github.com/yigit/courseregistry/internal/app/controllers"
	appRepos "github.com/yigit/courseregistry/internal/app/repositories"
	appRoutes "github.com/yigit/courseregistry/internal/app/routes"
	appServices "github.com/yigit/courseregistry/internal/app/services"
	"github.com/yigit/courseregistry/internal/config"
	"github.com/yigit/courseregistry/internal/kv"
	appMiddleware "github.com/yigit/courseregistry/internal/middleware"
	"github.com/yigit/courseregistry/internal/pkg/logger"
	"github.com/yigit/courseregistry/internal/pkg/metrics"
)

// Dependencies holds all the application dependencies
type Dependencies struct {
	CourseService    appServices.CourseService
	CourseController *appControllers.CourseController
	CourseRepo       *appRepos.CourseRepository
	Logger           zerolog.Logger
}

// LoadConfigAndSetupLogger loads configuration and initializes the logger.
func LoadConfigAndSetupLogger() (*config.Config, zerolog.Logger, error) {
	configPath := filepath.Join("configs", "config.yaml")
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to load configuration")
		return nil, zerolog.Logger{}, err
	}

	logLevel := logger.LogLevel(strings.ToLower(cfg.Logging.Level))
	prettyLog := strings.ToLower(cfg.Logging.Format) == "text"

	logger.Configure(logger.Config{
		Level:  logLevel,
		Pretty: prettyLog,
	})

	lgr := log.Logger
	lgr.Info().Str("logLevel", string(logLevel)).Str("logFormat", cfg.Logging.Format).Msg("Logger configured")
	return cfg, lgr, nil
}

// SetupStore opens the key-value store, creating the data directory and
// replaying the append-only log when persistence is configured.
func SetupStore(cfg *config.Config, lgr zerolog.Logger) (kv.Store, error) {
	if cfg.Store.AOFPath != "" {
		dir := filepath.Dir(cfg.Store.AOFPath)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	store, err := kv.Open(kv.Config{
		AOFPath:    cfg.Store.AOFPath,
		SyncWrites: cfg.Store.SyncWrites,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open key-value store: %w", err)
	}

	lgr.Info().Str("aofPath", cfg.Store.AOFPath).Bool("syncWrites", cfg.Store.SyncWrites).Msg("Key-value store opened")
	return store, nil
}

// BuildDependencies wires repositories, services and controllers together.
func BuildDependencies(store kv.Store, lgr zerolog.Logger) (*Dependencies, error) {
	courseRepo := appRepos.NewCourseRepository(store)
	courseService := appServices.NewCourseService(courseRepo, lgr)
	courseController := appControllers.NewCourseController(courseService)

	// Seed the course gauge from the index so restarts report the right count.
	if count, err := courseRepo.Count(context.Background()); err == nil {
		metrics.CoursesTotal.Set(float64(count))
	} else {
		lgr.Warn().Err(err).Msg("Failed to read course count at startup")
	}

	return &Dependencies{
		CourseService:    courseService,
		CourseController: courseController,
		CourseRepo:       courseRepo,
		Logger:           lgr,
	}, nil
}

// SetupRouter builds the gin engine with middleware and routes.
func SetupRouter(cfg *config.Config, deps *Dependencies, lgr zerolog.Logger) *gin.Engine {
	if cfg.Server.Mode == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(appMiddleware.RequestLogger(lgr))

	appRoutes.SetupRouter(router, deps.CourseController)

	return router
}
