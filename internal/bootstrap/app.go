// Package bootstrap assembles the subtitle pipeline from configuration. Both
// the API server and the CLI build their processor here.
package bootstrap

import (
	"context"
	"fmt"

	"github.com/timmy/subtitles/internal/config"
	"github.com/timmy/subtitles/internal/logger"
	"github.com/timmy/subtitles/internal/progress"
	"github.com/timmy/subtitles/internal/repository"
	"github.com/timmy/subtitles/internal/scheduler"
	"github.com/timmy/subtitles/internal/service"
	"github.com/timmy/subtitles/internal/source"
	"github.com/timmy/subtitles/internal/storage"
	"gorm.io/gorm"
)

// TaskRouter is a scheduler that pipeline handlers can be registered on.
type TaskRouter interface {
	scheduler.Scheduler
	Handle(task scheduler.Task, fn scheduler.Handler)
}

// App holds the wired components.
type App struct {
	DB        *gorm.DB
	Jobs      *repository.JobRepository
	Contents  *repository.ContentRepository
	Objects   *storage.S3Storage
	Subtitles storage.SubtitleStorage
	Sources   *source.Registry
	Hub       *progress.Hub
	Processor *service.SubtitleProcessor

	closers []func()
}

// New connects every backend named in cfg and registers the pipeline tasks on sched.
func New(ctx context.Context, cfg *config.Config, sched TaskRouter, log *logger.Logger) (*App, error) {
	if log == nil {
		log = logger.GetDefault()
	}
	app := &App{}

	db, err := repository.InitDB(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	app.DB = db
	app.closers = append(app.closers, func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	app.Jobs = repository.NewJobRepository(db)
	app.Contents = repository.NewContentRepository(db)

	if err := app.initStorage(ctx, cfg, log); err != nil {
		app.Close()
		return nil, err
	}
	app.initSources(cfg)
	reporter := app.initProgress(ctx, cfg, log)

	transcriber := service.NewTranscriptionService(&service.TranscriptionConfig{
		Model:   cfg.Transcription.Model,
		APIKey:  cfg.Transcription.APIKey,
		BaseURL: cfg.Transcription.BaseURL,
		Timeout: cfg.Transcription.Timeout,
	}, log)
	translator := service.NewTranslationService(&service.TranslationConfig{
		Model:     cfg.Translation.Model,
		APIKey:    cfg.Translation.APIKey,
		BaseURL:   cfg.Translation.BaseURL,
		MaxTokens: cfg.Translation.MaxTokens,
		Timeout:   cfg.Translation.Timeout,
	})

	app.Processor = service.NewSubtitleProcessor(
		app.Jobs,
		app.Contents,
		app.Sources,
		transcriber,
		translator,
		app.Subtitles,
		reporter,
		sched,
		log,
		&service.ProcessorConfig{
			WordsPerBlock: cfg.Subtitles.WordsPerBlock,
			BatchSize:     cfg.Subtitles.BatchSize,
		},
	)
	sched.Handle(scheduler.TaskProcess, app.Processor.Process)
	sched.Handle(scheduler.TaskProcessRetry, app.Processor.ProcessRetry)
	if d, ok := sched.(interface{ OnDrop(scheduler.DropHandler) }); ok {
		d.OnDrop(func(ctx context.Context, _ scheduler.Task, jobID string) {
			if err := app.Processor.Abandon(ctx, jobID, scheduler.ErrStopped); err != nil {
				log.WithError(err).WithField(logger.FieldJobID, jobID).Error("Failed to record dropped job")
			}
		})
	}

	return app, nil
}

func (a *App) initStorage(ctx context.Context, cfg *config.Config, log *logger.Logger) error {
	needObjects := cfg.Storage.Provider == config.StorageProviderS3 || cfg.Sources.ObjectStorage.Enabled
	if needObjects && cfg.Storage.S3.Bucket != "" {
		s3cfg := cfg.Storage.S3
		objects, err := storage.NewStorage(&storage.S3Config{
			Type:      storage.StorageType(s3cfg.Type),
			Endpoint:  s3cfg.Endpoint,
			AccessKey: s3cfg.AccessKey,
			SecretKey: s3cfg.SecretKey,
			UseSSL:    s3cfg.UseSSL,
			Bucket:    s3cfg.Bucket,
			Region:    s3cfg.Region,
			PublicURL: s3cfg.PublicURL,
		})
		if err != nil {
			return fmt.Errorf("failed to initialize object storage: %w", err)
		}
		if cfg.Storage.Provider == config.StorageProviderS3 {
			if err := objects.EnsureBucket(ctx); err != nil {
				return fmt.Errorf("failed to ensure storage bucket: %w", err)
			}
		}
		a.Objects = objects
	}

	gh := cfg.Storage.GitHub
	var objects storage.ObjectStorage
	if a.Objects != nil {
		objects = a.Objects
	}
	subtitles, err := storage.NewSubtitleStorage(cfg.Storage.Provider, objects, &storage.GitHubConfig{
		Owner:    gh.Owner,
		Repo:     gh.Repo,
		Branch:   gh.Branch,
		Token:    gh.Token,
		BasePath: gh.BasePath,
		APIURL:   gh.APIURL,
	}, log)
	if err != nil {
		return err
	}
	a.Subtitles = subtitles

	log.WithFields(logger.Fields{
		"provider": subtitles.Name(),
		"bucket":   cfg.Storage.S3.Bucket,
	}).Info("Subtitle storage ready")
	return nil
}

func (a *App) initSources(cfg *config.Config) {
	resolvers := []source.Resolver{source.NewDirectResolver()}
	if cfg.Sources.GoogleDrive.Enabled {
		resolvers = append(resolvers, source.NewGoogleDriveResolver())
	}
	if cfg.Sources.ObjectStorage.Enabled && a.Objects != nil {
		resolvers = append(resolvers, source.NewObjectStorageResolver(a.Objects, cfg.Sources.ObjectStorage.Prefix))
	}
	a.Sources = source.NewRegistry(resolvers...)
}

// initProgress wires the in-process hub and log publishers plus any enabled
// broker. A broker that cannot be reached is skipped with a warning.
func (a *App) initProgress(ctx context.Context, cfg *config.Config, log *logger.Logger) *progress.Reporter {
	a.Hub = progress.NewHub(32)
	publishers := []progress.Publisher{a.Hub, progress.LogPublisher{}}

	if rc := cfg.Progress.Redis; rc.Enabled {
		p, err := progress.NewRedisPublisher(ctx, &progress.RedisConfig{
			Addr:          rc.Addr,
			Password:      rc.Password,
			DB:            rc.DB,
			ChannelPrefix: rc.ChannelPrefix,
		})
		if err != nil {
			log.WithError(err).Warn("Redis progress publisher disabled")
		} else {
			publishers = append(publishers, p)
			a.closers = append(a.closers, func() { p.Close() })
		}
	}

	if nc := cfg.Progress.NATS; nc.Enabled {
		p, err := progress.NewNATSPublisher(nc.URL, nc.SubjectPrefix)
		if err != nil {
			log.WithError(err).Warn("NATS progress publisher disabled")
		} else {
			publishers = append(publishers, p)
			a.closers = append(a.closers, p.Close)
		}
	}

	return progress.NewReporter(log, publishers...)
}

// Ping checks the database connection.
func (a *App) Ping(ctx context.Context) error {
	sqlDB, err := a.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close releases connections in reverse order of creation.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
