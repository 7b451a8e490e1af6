package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/urfave/cli/v2"

	accounts "github.com/phillip/campus-events-go/accounts"
	auth "github.com/phillip/campus-events-go/auth"
	config "github.com/phillip/campus-events-go/config"
	controllers "github.com/phillip/campus-events-go/controllers"
	events "github.com/phillip/campus-events-go/events"
	jobs "github.com/phillip/campus-events-go/jobs"
	middleware "github.com/phillip/campus-events-go/middleware"
	routes "github.com/phillip/campus-events-go/routes"
	session "github.com/phillip/campus-events-go/session"
	store "github.com/phillip/campus-events-go/store"
	utils "github.com/phillip/campus-events-go/utils"
)

func main() {
	app := &cli.App{
		Name:  "campus-events",
		Usage: "Campus event map backend.",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Value: "config.yaml", Usage: "YAML config file (optional)", EnvVars: []string{"CONFIG_FILE"}},
		},
		Commands: []*cli.Command{
			serveCommand(),
			cleanupCommand(),
			pruneCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		slog.Error("Application failed", "error", err)
		os.Exit(1)
	}
}

// app is the wired object graph shared by the commands.
type app struct {
	cfg      *config.Config
	log      *slog.Logger
	store    store.Store
	events   *events.Repository
	accounts *accounts.Client
	images   utils.ImageStore
}

func bootstrap(c *cli.Context) (*app, func(), error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	logger := setupLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	closeFn := func() {}
	var st store.Store
	switch cfg.Store {
	case "memory":
		logger.Warn("Using the in-memory store; data is lost on restart.")
		st = store.NewMemory()
	default:
		if err := cfg.Connect(c.Context); err != nil {
			return nil, nil, err
		}
		m := store.NewMongo(cfg.Database())
		ctx, cancel := context.WithTimeout(c.Context, 10*time.Second)
		err := m.EnsureIndexes(ctx)
		cancel()
		if err != nil {
			_ = cfg.MongoClient.Disconnect(context.Background())
			return nil, nil, fmt.Errorf("ensure indexes: %w", err)
		}
		st = m
		closeFn = func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := cfg.MongoClient.Disconnect(ctx); err != nil {
				logger.Warn("mongo disconnect failed", "error", err)
			}
		}
		logger.Info("Connected to MongoDB.", "db", cfg.DBName)
	}

	var mailer utils.Mailer
	if cfg.MailConfigured() {
		mailer = &utils.ZeptoMailer{
			APIURL: cfg.Mail.APIURL,
			APIKey: cfg.Mail.APIKey,
			From:   cfg.Mail.From,
			ToName: cfg.Mail.ToName,
			Log:    logger,
		}
	} else {
		logger.Warn("Mail is not configured; outgoing emails are only logged.")
		mailer = &utils.LogMailer{Log: logger}
	}

	var images utils.ImageStore
	if cfg.CloudinaryConfigured() {
		cld, err := utils.NewCloudinaryImages(cfg.Cloudinary.CloudName, cfg.Cloudinary.APIKey, cfg.Cloudinary.APISecret, cfg.Cloudinary.Folder)
		if err != nil {
			closeFn()
			return nil, nil, fmt.Errorf("cloudinary: %w", err)
		}
		images = cld
	}

	provider := auth.NewLocalProvider(st, mailer, auth.Options{
		Secret:     []byte(cfg.JWTSecret),
		SessionTTL: cfg.SessionTTL,
		VerifyTTL:  cfg.VerifyTTL,
		ResetTTL:   cfg.ResetTTL,
		BaseURL:    cfg.BaseURL,
	}, logger)

	a := &app{
		cfg:    cfg,
		log:    logger,
		store:  st,
		images: images,
		events: events.NewRepository(st, images, logger),
		accounts: accounts.NewClient(provider, st, st, accounts.Options{
			AllowedDomains: cfg.AllowedDomains,
			SchoolDomains:  cfg.SchoolDomains,
		}, logger),
	}
	return a, closeFn, nil
}

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the HTTP API and the maintenance scheduler.",
		Action: func(c *cli.Context) error {
			a, closeFn, err := bootstrap(c)
			if err != nil {
				return err
			}
			defer closeFn()

			if !strings.EqualFold(a.cfg.LogLevel, "debug") {
				gin.SetMode(gin.ReleaseMode)
			}
			r := gin.New()
			r.Use(gin.Logger(), gin.Recovery(), middleware.SecurityHeaders())
			r.Use(cors.New(corsConfig(a.cfg.CORSOrigins)))

			sessions := session.NewStore(a.cfg.SessionIdleTTL)
			limiter := middleware.NewRateLimiter(a.cfg.AuthRatePerMinute, 5)
			deps := &controllers.Deps{
				Config:   a.cfg,
				Events:   a.events,
				Accounts: a.accounts,
				Sessions: sessions,
				Images:   a.images,
				Log:      a.log,
			}
			routes.SetupRoutes(r, deps, limiter)

			scheduler, err := jobs.NewScheduler(a.cfg.CleanupCron, &jobs.Maintenance{
				Events:    a.events,
				Bookmarks: a.accounts,
				Sessions:  sessions,
				Visitors:  limiter,
				Log:       a.log,
			})
			if err != nil {
				return err
			}
			scheduler.Start()

			server := &http.Server{
				Addr:              ":" + a.cfg.Port,
				Handler:           r,
				ReadTimeout:       15 * time.Second,
				ReadHeaderTimeout: 5 * time.Second,
				WriteTimeout:      75 * time.Second,
				IdleTimeout:       120 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				a.log.Info("Server started.", "addr", server.Addr)
				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
				close(errCh)
			}()

			stop := make(chan os.Signal, 1)
			signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
			select {
			case <-stop:
				a.log.Info("Shutting down...")
			case err := <-errCh:
				if err != nil {
					return fmt.Errorf("server: %w", err)
				}
			}

			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := server.Shutdown(ctx); err != nil {
				a.log.Error("Server shutdown failed", "error", err)
			}
			scheduler.Stop(ctx)
			a.log.Info("Server stopped.")
			return nil
		},
	}
}

func cleanupCommand() *cli.Command {
	return &cli.Command{
		Name:  "cleanup",
		Usage: "Delete every event that has already ended.",
		Action: func(c *cli.Context) error {
			a, closeFn, err := bootstrap(c)
			if err != nil {
				return err
			}
			defer closeFn()

			ctx, cancel := context.WithTimeout(c.Context, 2*time.Minute)
			defer cancel()
			n := a.events.CleanupExpired(ctx)
			a.log.Info("Cleanup finished.", "events_removed", n)
			return nil
		},
	}
}

func pruneCommand() *cli.Command {
	return &cli.Command{
		Name:  "prune-bookmarks",
		Usage: "Remove bookmarks that point at missing or expired events.",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "user", Usage: "Only prune this user id."},
		},
		Action: func(c *cli.Context) error {
			a, closeFn, err := bootstrap(c)
			if err != nil {
				return err
			}
			defer closeFn()

			ctx, cancel := context.WithTimeout(c.Context, 5*time.Minute)
			defer cancel()
			if id := c.String("user"); id != "" {
				removed := a.accounts.PruneDanglingBookmarks(ctx, id)
				a.log.Info("Prune finished.", "user_id", id, "bookmarks_removed", len(removed))
				return nil
			}
			n, err := a.accounts.PruneAll(ctx)
			if err != nil {
				return fmt.Errorf("prune bookmarks: %w", err)
			}
			a.log.Info("Prune finished.", "bookmarks_removed", n)
			return nil
		},
	}
}

// corsConfig allows credentialed requests from origins. A "*" entry opens
// the API to every origin without cookies.
func corsConfig(origins []string) cors.Config {
	cc := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "If-None-Match"},
		ExposeHeaders:    []string{"ETag"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	for _, o := range origins {
		if o == "*" {
			cc.AllowAllOrigins = true
			cc.AllowCredentials = false
			return cc
		}
	}
	cc.AllowOrigins = origins
	return cc
}

func setupLogger(level string) *slog.Logger {
	var logLevel slog.Level
	switch strings.ToLower(level) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
}
