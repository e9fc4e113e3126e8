package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/foothill/blog/internal/auth"
	"github.com/foothill/blog/internal/config"
	"github.com/foothill/blog/internal/database"
	"github.com/foothill/blog/internal/email"
	httpServer "github.com/foothill/blog/internal/http"
	"github.com/foothill/blog/internal/httputil"
	"github.com/foothill/blog/internal/logging"
	"github.com/foothill/blog/internal/metrics"
	"github.com/foothill/blog/internal/password"
	"github.com/foothill/blog/internal/post"
	"github.com/foothill/blog/internal/ratelimit"
	"github.com/foothill/blog/internal/storage"
	"github.com/foothill/blog/internal/user"
	"github.com/foothill/blog/templates"
)

func runServe(cmd *cobra.Command, args []string) error {
	applyMigrations, _ := cmd.Flags().GetBool("migrate")

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Initialize logger
	logger := logging.New(logging.Options{
		Development: cfg.Server.IsDevelopment(),
		File:        cfg.Log.File,
		MaxSizeMB:   cfg.Log.MaxSizeMB,
		MaxBackups:  cfg.Log.MaxBackups,
		MaxAgeDays:  cfg.Log.MaxAgeDays,
	})
	logger.Info("starting application",
		"env", cfg.Server.Env,
		"port", cfg.Server.Port,
	)

	if applyMigrations {
		if err := database.MigrateUp(cfg.Database.URL()); err != nil {
			return err
		}
		logger.Info("migrations applied")
	}

	// Initialize database connection
	db, err := database.Open(cfg.Database.ConnectionString(), database.DefaultPoolOptions)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer db.Close()

	// Initialize Redis connection
	redisClient, err := initRedis(cfg.Redis)
	if err != nil {
		return fmt.Errorf("failed to initialize Redis: %w", err)
	}
	defer redisClient.Close()

	// Initialize repositories
	userRepo := user.NewRepository(db)
	postRepo := post.NewRepository(db)
	sessionStore := auth.NewSessionStore(redisClient, cfg.Auth.SessionTTL, cfg.Auth.RememberTTL)

	// Initialize rate limiter
	rateLimiter := ratelimit.NewLimiter(redisClient, cfg.Limit.MaxRequests, cfg.Limit.Window, cfg.Limit.ResetEmailCooldown)

	resetTokens, err := newResetTokenCodec(cfg.Auth)
	if err != nil {
		return err
	}

	pictures, pictureDir, err := newPictureStore(cmd.Context(), cfg.Storage)
	if err != nil {
		return err
	}

	// Initialize email service
	emailService := email.NewService(
		cfg.Email.SMTPHost,
		cfg.Email.SMTPPort,
		cfg.Email.SMTPUser,
		cfg.Email.SMTPPassword,
		cfg.Email.FromAddress,
		cfg.Email.SendsPerMin,
	)

	collector := metrics.NewCollector()

	// Initialize services
	authService, err := auth.NewService(auth.Dependencies{
		Users:    userRepo,
		Hasher:   password.NewArgon2(password.DefaultParams),
		Tokens:   resetTokens,
		Sessions: sessionStore,
		Mailer:   emailService,
		Pictures: pictures,
		Throttle: rateLimiter,
		Events:   collector,
	}, cfg.Email.BaseURL, cfg.Auth.ResetTokenTTL)
	if err != nil {
		return fmt.Errorf("failed to initialize auth service: %w", err)
	}
	postService := post.NewService(postRepo, userRepo)

	renderer, err := httputil.NewRenderer(templates.Pages(), auth.IsAuthenticated)
	if err != nil {
		return fmt.Errorf("failed to load templates: %w", err)
	}

	// Initialize router
	router := httpServer.NewRouter(cfg, httpServer.Handlers{
		Auth:       auth.NewHandler(authService, renderer, rateLimiter, cfg.Auth.SecureCookies),
		Posts:      post.NewHandler(postService, renderer),
		Identity:   auth.NewMiddleware(sessionStore, cfg.Auth.SecureCookies),
		Renderer:   renderer,
		Metrics:    collector,
		Static:     templates.Static(),
		PictureDir: pictureDir,
	}, logger)

	// Initialize HTTP server
	serverAddr := ":" + cfg.Server.Port
	server := httpServer.NewServer(
		serverAddr,
		router,
		cfg.Server.ReadTimeout,
		cfg.Server.WriteTimeout,
		logger,
	)

	// Start server in a goroutine
	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- server.Start()
	}()

	// Wait for interrupt signal or server error
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)
	case sig := <-shutdown:
		logger.Info("received signal", "signal", sig.String())

		// Graceful shutdown with timeout
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		authService.WaitForMail()
	}

	return nil
}

func newResetTokenCodec(cfg config.AuthConfig) (auth.ResetTokenCodec, error) {
	if cfg.ResetTokenFormat == config.TokenFormatJWT {
		codec, err := auth.NewJWTCodec(cfg.SecretKey, cfg.ResetTokenTTL)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize JWT codec: %w", err)
		}
		return codec, nil
	}

	codec, err := auth.NewPasetoCodec(cfg.SecretKey, cfg.ResetTokenTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize PASETO codec: %w", err)
	}
	return codec, nil
}

// newPictureStore returns the configured store and the directory served under
// /static/profile_pics/. With S3 that directory still serves the default picture.
func newPictureStore(ctx context.Context, cfg config.StorageConfig) (auth.PictureStore, string, error) {
	if cfg.Backend == config.StorageS3 {
		opts := storage.S3Options{
			Bucket:    cfg.S3Bucket,
			Region:    cfg.S3Region,
			Endpoint:  cfg.S3Endpoint,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			PublicURL: cfg.S3PublicURL,
		}
		client, err := storage.NewS3Client(ctx, opts)
		if err != nil {
			return nil, "", fmt.Errorf("failed to initialize S3 client: %w", err)
		}
		return storage.NewS3Store(client, opts), cfg.LocalDir, nil
	}

	store, err := storage.NewLocalStore(cfg.LocalDir)
	if err != nil {
		return nil, "", fmt.Errorf("failed to initialize picture storage: %w", err)
	}
	return store, store.Dir(), nil
}

// initRedis initializes the Redis connection and returns a Redis client
func initRedis(cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	// Verify connection
	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping Redis: %w", err)
	}

	return client, nil
}
