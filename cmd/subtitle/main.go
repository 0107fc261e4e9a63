package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/timmy/subtitles/internal/bootstrap"
	"github.com/timmy/subtitles/internal/config"
	"github.com/timmy/subtitles/internal/domain"
	"github.com/timmy/subtitles/internal/logger"
	"github.com/timmy/subtitles/internal/scheduler"
)

func main() {
	// Initialize logger first (with defaults)
	appLogger := logger.New(&logger.Config{
		Level:       "info",
		Format:      "json",
		Output:      os.Stderr,
		ServiceName: "rascor-subtitles-cli",
	})
	logger.SetDefaultLogger(appLogger)

	// Parse command line flags
	configPath := flag.String("config", "", "Path to config file")
	contentID := flag.String("content", "", "Toolbox talk ID")
	tenantID := flag.String("tenant", "", "Tenant ID (defaults to server.default_tenant)")
	title := flag.String("title", "", "Create or rename the toolbox talk before processing")
	videoURL := flag.String("video", "", "Video reference to process")
	videoFile := flag.String("file", "", "Local video to upload to object storage and process")
	sourceType := flag.String("source", string(domain.SourceTypeDirectURL), "Video source type: direct_url, google_drive, object_storage")
	languages := flag.String("languages", "", "Comma-separated target languages, e.g. Spanish,Polish")
	retry := flag.Bool("retry", false, "Retry failed translations of the latest job")
	status := flag.Bool("status", false, "Print the latest job status")
	cancelJob := flag.Bool("cancel", false, "Cancel the active job")
	srtLang := flag.String("srt", "", "Print the SRT file for a language code")
	flag.Parse()

	if *contentID == "" {
		fmt.Fprintln(os.Stderr, "-content is required")
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to load config")
	}
	if *tenantID == "" {
		*tenantID = cfg.Server.DefaultTenant
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		appLogger.Info("Received shutdown signal, cancelling...")
		cancel()
	}()

	// The pipeline runs in this process, so Schedule returns once it finishes
	sched := scheduler.NewInline()
	app, err := bootstrap.New(ctx, cfg, sched, appLogger)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize application")
	}
	defer app.Close()

	ctx = logger.SetContentID(ctx, *contentID)

	switch {
	case *status:
		view, err := app.Processor.GetStatus(ctx, *contentID)
		exitOnError(appLogger, err, "Failed to get status")
		printJSON(view)

	case *cancelJob:
		ok, err := app.Processor.CancelProcessing(ctx, *contentID)
		exitOnError(appLogger, err, "Failed to cancel job")
		printJSON(map[string]bool{"cancelled": ok})

	case *srtLang != "":
		content, err := app.Processor.GetSrtContent(ctx, *contentID, *srtLang)
		exitOnError(appLogger, err, "Failed to fetch subtitles")
		if content == nil {
			appLogger.WithField("language", *srtLang).Fatal("Subtitle file not available")
		}
		fmt.Print(*content)

	case *retry:
		jobID, err := app.Processor.RetryFailedTranslations(ctx, *contentID)
		exitOnError(appLogger, err, "Failed to retry translations")
		printStatus(ctx, app, jobID)

	default:
		if *title != "" {
			err := app.Contents.Upsert(ctx, &domain.ToolboxTalk{
				ID:       *contentID,
				TenantID: *tenantID,
				Title:    *title,
			})
			exitOnError(appLogger, err, "Failed to save toolbox talk")
		}

		st := domain.SourceType(*sourceType)
		ref := *videoURL
		if *videoFile != "" {
			st = domain.SourceTypeObjectStorage
			ref, err = uploadVideo(ctx, app, *videoFile)
			exitOnError(appLogger, err, "Failed to upload video")
		}
		if ref == "" {
			appLogger.Fatal("-video or -file is required to start processing")
		}

		appLogger.WithFields(logger.Fields{
			logger.FieldContentID: *contentID,
			"source_type":         st,
			"languages":           *languages,
		}).Info("Starting subtitle processing")

		jobID, err := app.Processor.StartProcessing(ctx, *tenantID, *contentID, ref, st, splitList(*languages))
		exitOnError(appLogger, err, "Failed to process video")
		printStatus(ctx, app, jobID)
	}
}

func uploadVideo(ctx context.Context, app *bootstrap.App, path string) (string, error) {
	resolver, err := app.Sources.Get(domain.SourceTypeObjectStorage)
	if err != nil {
		return "", err
	}
	if !resolver.SupportsUpload() {
		return "", domain.ErrUploadNotSupported
	}
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return "", err
	}
	return resolver.Upload(ctx, filepath.Base(path), f, info.Size())
}

func printStatus(ctx context.Context, app *bootstrap.App, jobID string) {
	job, err := app.Jobs.GetByID(ctx, jobID)
	exitOnError(logger.GetDefault(), err, "Failed to load job")
	printJSON(domain.NewStatusView(job))
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func printJSON(v interface{}) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		logger.GetDefault().WithError(err).Fatal("Failed to write output")
	}
}

func exitOnError(log *logger.Logger, err error, msg string) {
	if err != nil {
		log.WithError(err).Fatal(msg)
	}
}
