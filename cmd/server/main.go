package main

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/JonMunkholm/listing-import/internal/cloud"
	"github.com/JonMunkholm/listing-import/internal/config"
	"github.com/JonMunkholm/listing-import/internal/core"
	_ "github.com/JonMunkholm/listing-import/internal/core/sheets" // Register sheet schemas
	"github.com/JonMunkholm/listing-import/internal/database"
	"github.com/JonMunkholm/listing-import/internal/jobs"
	"github.com/JonMunkholm/listing-import/internal/logging"
	"github.com/JonMunkholm/listing-import/internal/media"
	"github.com/JonMunkholm/listing-import/internal/notify"
	"github.com/JonMunkholm/listing-import/internal/storage"
	"github.com/JonMunkholm/listing-import/internal/web"
	"github.com/joho/godotenv"
)

func main() {
	// Load .env file if it exists (Overload overwrites existing env vars)
	if err := godotenv.Overload(); err != nil {
		slog.Info("no .env file found, using environment variables")
	} else {
		slog.Info("loaded .env file (overwriting existing env vars)")
	}

	// Load and validate configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Setup structured logging based on config
	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("configuration loaded",
		"port", cfg.Server.Port,
		"db_max_conns", cfg.Database.MaxConns,
		"import_max_concurrent", cfg.Import.MaxConcurrent,
		"isolation", cfg.Import.Isolation,
		"storage", cfg.Storage.Driver,
		"rate_limit_enabled", cfg.Rate.Enabled,
	)

	ctx := context.Background()

	pool, err := database.Connect(ctx, cfg.Database.URL, database.PoolConfig{
		MaxConns:        cfg.Database.MaxConns,
		MinConns:        cfg.Database.MinConns,
		MaxConnLifetime: cfg.Database.MaxConnLifetime,
		MaxConnIdleTime: cfg.Database.MaxConnIdleTime,
	})
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	// Log which database we connected to
	if u, err := url.Parse(cfg.Database.URL); err == nil {
		dbName := strings.TrimPrefix(u.Path, "/")
		slog.Info("connected to database", "name", dbName)
	} else {
		slog.Info("connected to database")
	}

	if cfg.Database.AutoMigrate {
		if err := database.Migrate(ctx, pool); err != nil {
			slog.Error("failed to apply schema", "error", err)
			os.Exit(1)
		}
		slog.Info("schema applied")
	}

	store, err := database.NewStore(pool, cfg.Database.TxIsolation)
	if err != nil {
		slog.Error("failed to create store", "error", err)
		os.Exit(1)
	}

	objects, err := newObjectStore(ctx, cfg)
	if err != nil {
		slog.Error("failed to create object store", "error", err)
		os.Exit(1)
	}
	slog.Info("object store ready", "store", objects)

	pipeline := newPipeline(cfg, objects)

	jobStore, closeJobs, err := newJobStore(ctx, cfg)
	if err != nil {
		slog.Error("failed to create import status store", "error", err)
		os.Exit(1)
	}
	defer closeJobs()

	opts := []core.Option{core.WithProgress(jobStore)}
	if cfg.Notify.QueueURL != "" {
		scheduler, err := newScheduler(ctx, cfg)
		if err != nil {
			slog.Error("failed to create auction scheduler", "error", err)
			os.Exit(1)
		}
		opts = append(opts, core.WithScheduler(scheduler))
		slog.Info("auction scheduling enabled", "queue", cfg.Notify.QueueURL)
	}

	coord, err := core.NewCoordinator(core.CoordinatorConfig{
		ListingConcurrency: cfg.Import.ListingConcurrency,
		ChildConcurrency:   cfg.Import.ChildConcurrency,
		Isolation:          core.Isolation(cfg.Import.Isolation),
		ToleratePartial:    cfg.Import.ToleratePartial,
		DefaultCurrency:    cfg.Import.DefaultCurrency,
	}, store, pipeline, objects, opts...)
	if err != nil {
		slog.Error("failed to create import coordinator", "error", err)
		os.Exit(1)
	}

	slog.Info("sheets registered", "count", len(core.All()))

	limiter := core.NewImportLimiter(cfg.Import.MaxConcurrent, cfg.Import.MaxWaitTime)
	server := web.NewServer(cfg, coord, jobStore, limiter, pool)

	// Graceful shutdown
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		slog.Info("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		// Wait for active imports to complete (with timeout)
		status := limiter.Status()
		if status.Active > 0 {
			slog.Info("waiting for imports to complete", "active", status.Active)
			if err := limiter.WaitForDrain(shutdownCtx); err != nil {
				slog.Warn("imports did not complete in time", "error", err)
			} else {
				slog.Info("all imports completed")
			}
		}

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err)
		}
	}()

	slog.Info("server starting", "addr", cfg.Server.Addr())
	if err := server.Start(cfg.Server.Addr()); err != nil {
		slog.Error("server stopped", "error", err)
		return
	}
	<-stopped
	slog.Info("server stopped")
}

type objectStore interface {
	media.ObjectStore
	String() string
}

func newObjectStore(ctx context.Context, cfg *config.Config) (objectStore, error) {
	sc := cfg.Storage
	if sc.Driver != "s3" {
		return storage.NewLocal(sc.LocalDir, sc.PublicBaseURL), nil
	}

	awsCfg, err := cloud.LoadConfig(ctx, cloud.Options{
		Region:          sc.Region,
		AccessKeyID:     sc.AccessKeyID,
		SecretAccessKey: sc.SecretAccessKey,
	})
	if err != nil {
		return nil, err
	}
	s3Cfg := storage.S3Config{
		Bucket:        sc.Bucket,
		Region:        sc.Region,
		Endpoint:      sc.Endpoint,
		UsePathStyle:  sc.UsePathStyle,
		PublicBaseURL: sc.PublicBaseURL,
	}
	return storage.NewS3(storage.NewS3Client(awsCfg, s3Cfg), s3Cfg), nil
}

func newPipeline(cfg *config.Config, objects media.ObjectStore) *media.Pipeline {
	mc := cfg.Media

	dl := media.DefaultDownloadConfig()
	dl.Timeout = mc.DownloadTimeout
	dl.MaxBytes = mc.MaxDownloadBytes
	dl.Retries = mc.DownloadRetries
	dl.Backoff = mc.DownloadBackoff
	dl.HostRate = mc.HostRate
	dl.HostBurst = mc.HostBurst
	downloader := media.NewHTTPDownloader(dl, &http.Client{}, media.DefaultProviders()...)

	var codec media.ImageCodec
	if mc.Compress {
		codec = media.StdCodec{AVIFSpeed: 8}
	}

	return media.NewPipeline(media.Config{
		DownloadConcurrency: mc.DownloadConcurrency,
		ProcessConcurrency:  mc.ProcessConcurrency,
		UploadConcurrency:   mc.UploadConcurrency,
		PersistBatchSize:    mc.PersistBatchSize,
		Process: media.ProcessConfig{
			MaxWidth:    mc.MaxWidth,
			Quality:     mc.Quality,
			SmallBytes:  mc.SmallBytes,
			LargeBytes:  mc.LargeBytes,
			AVIFTimeout: mc.AVIFTimeout,
			MaxPixels:   mc.MaxPixels,
		},
	}, downloader, codec, objects)
}

// newJobStore keeps import status in Redis when configured so any replica
// can answer status requests.
func newJobStore(ctx context.Context, cfg *config.Config) (jobs.Store, func(), error) {
	if cfg.Redis.URL == "" {
		slog.Info("import status kept in memory")
		return jobs.NewMemoryStore(cfg.Redis.StatusTTL), func() {}, nil
	}

	rdb, err := jobs.NewRedisClient(ctx, cfg.Redis.URL)
	if err != nil {
		return nil, nil, err
	}
	slog.Info("import status kept in redis")
	return jobs.NewRedisStore(rdb, cfg.Redis.StatusTTL), func() { _ = rdb.Close() }, nil
}

func newScheduler(ctx context.Context, cfg *config.Config) (*notify.Scheduler, error) {
	nc := cfg.Notify
	awsCfg, err := cloud.LoadConfig(ctx, cloud.Options{
		Region:          nc.Region,
		AccessKeyID:     cfg.Storage.AccessKeyID,
		SecretAccessKey: cfg.Storage.SecretAccessKey,
	})
	if err != nil {
		return nil, err
	}
	client := notify.NewSQSClient(awsCfg, notify.ClientOptions{
		Endpoint:      nc.Endpoint,
		RetryAttempts: nc.RetryAttempts,
		MaxBackoff:    nc.RetryBackoff,
	})
	return notify.NewScheduler(client, notify.Config{
		QueueURL:       nc.QueueURL,
		EndBuffer:      nc.EndBuffer,
		TargetFunction: nc.TargetFunction,
	}), nil
}
