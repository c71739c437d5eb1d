package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"clinic-crm/internal/activity"
	"clinic-crm/internal/auth"
	"clinic-crm/internal/cache"
	"clinic-crm/internal/calendar"
	"clinic-crm/internal/config"
	"clinic-crm/internal/db"
	"clinic-crm/internal/files"
	"clinic-crm/internal/handlers"
	"clinic-crm/internal/leads"
	"clinic-crm/internal/mailer"
	"clinic-crm/internal/middleware"
	"clinic-crm/internal/notifications"
	"clinic-crm/internal/proformas"
	"clinic-crm/internal/transfers"
	"clinic-crm/internal/users"
	"clinic-crm/internal/validation"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel(cfg.LogLevel)}))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, cols, err := db.Connect(ctx, cfg.MongoURI, cfg.MongoDB)
	if err != nil {
		logger.Error("mongo connection failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("mongo connected", slog.String("db", cfg.MongoDB))
	defer client.Disconnect(context.Background())

	if err := db.EnsureIndexes(ctx, cols); err != nil {
		logger.Error("index creation failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	var tx db.TxRunner = db.DirectRunner{}
	if cfg.MongoTransactions {
		tx = db.NewTxRunner(client)
		logger.Info("mongo transactions enabled")
	}

	var cacheStore cache.Cache = cache.NewNoop()
	if cfg.RedisURL != "" || cfg.RedisAddr != "" {
		var redisCache *cache.RedisCache
		var err error
		if cfg.RedisURL != "" {
			redisCache, err = cache.NewRedisFromURL(cfg.RedisURL)
		} else {
			redisCache = cache.NewRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		}
		if err != nil {
			logger.Error("redis connection failed", slog.String("error", err.Error()))
			os.Exit(1)
		}
		if err := redisCache.Ping(ctx); err != nil {
			logger.Error("redis connection failed", slog.String("error", err.Error()))
			os.Exit(1)
		}
		logger.Info("redis connected")
		defer redisCache.Close()
		cacheStore = redisCache
	}

	var tokens *auth.Manager
	if cfg.JWTSecret != "" {
		tokens = &auth.Manager{
			Secret:     []byte(cfg.JWTSecret),
			AccessTTL:  time.Duration(cfg.AccessTTLMinutes) * time.Minute,
			RefreshTTL: time.Duration(cfg.RefreshTTLMinutes) * time.Minute,
			UploadTTL:  time.Duration(cfg.UploadTTLMinutes) * time.Minute,
			Issuer:     "clinic-crm",
		}
	} else {
		logger.Warn("JWT_SECRET not set, authenticated routes disabled")
	}

	val := validation.New()

	userService := users.NewService(users.NewRepository(cols.Users), cacheStore, cfg.CacheTTL(), cfg.AdminSetupKey, cfg.Timezone)
	activityService := activity.NewService(activity.NewRepository(cols.ActivityLogs), cfg.Timezone)
	notificationService := notifications.NewService(notifications.NewRepository(cols.Notifications), cfg.Timezone)
	blobStore := files.NewGridFSStore(cols.Files)

	leadService := leads.NewService(leads.NewRepository(cols.Leads), tx, activityService, blobStore, leads.Options{
		Location:        cfg.Timezone,
		DefaultCurrency: cfg.DefaultCurrency,
		ImportAssignee:  cfg.ImportDefaultAssignee,
	})

	transferService := transfers.NewService(transfers.NewRepository(cols.Transfers), tx, leadService, notificationService, userService, cfg.Timezone)
	if brevo := mailer.NewBrevoClient(cfg.BrevoAPIKey, cfg.BrevoSenderEmail, cfg.BrevoSenderName, cfg.BrevoSandbox); brevo != nil {
		transferService.WithMailer(brevo, cfg.FrontendURL)
		logger.Info("brevo mailer enabled", slog.String("sender", cfg.BrevoSenderEmail), slog.Bool("sandbox", cfg.BrevoSandbox))
	} else {
		logger.Info("brevo mailer disabled")
	}

	proformaService := proformas.NewService(proformas.NewRepository(cols.Proformas), leadService, cfg.DefaultCurrency, cfg.Timezone)
	leadService.RegisterPurger(transferService)
	leadService.RegisterPurger(proformaService)

	fileService := files.NewService(blobStore, leadService, tokens, cfg.MaxUploadBytes(), cfg.Timezone)
	calendarService := calendar.NewService(calendar.NewRepository(cols.Events), cfg.Timezone)

	server := &handlers.Server{
		Cfg:      cfg,
		Users:    userService,
		Activity: activityService,
		Tokens:   tokens,
		Val:      val,
		Log:      logger,
	}
	userHandler := users.NewHandler(userService, val, logger)
	activityHandler := activity.NewHandler(activityService, val, logger)
	notificationHandler := notifications.NewHandler(notificationService, logger)
	leadHandler := leads.NewHandler(leadService, val, logger)
	transferHandler := transfers.NewHandler(transferService, val, logger)
	proformaHandler := proformas.NewHandler(proformaService, val, logger, cfg.FrontendURL)
	fileHandler := files.NewHandler(fileService, logger)
	calendarHandler := calendar.NewHandler(calendarService, val, logger)

	r := chi.NewRouter()
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Recoverer)
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(logger))
	r.Use(middleware.CORS(cfg.FrontendOrigin))
	r.Use(chiMiddleware.Timeout(60 * time.Second))

	window := time.Duration(cfg.RateLimitWindowSec) * time.Second
	importLimiter := middleware.NewRateLimiter(cfg.RateLimitImport, window)
	loginLimiter := middleware.NewRateLimiter(cfg.RateLimitLogin, window)

	r.Get("/healthz", server.Health)
	r.With(importLimiter.Middleware, middleware.RequireKey("X-Import-Key", cfg.ImportAPIKey)).Post("/import-lead", leadHandler.Import)

	r.Route("/api", func(api chi.Router) {
		api.Route("/auth", func(a chi.Router) {
			a.With(loginLimiter.Middleware).Post("/signup", server.Signup)
			a.With(loginLimiter.Middleware).Post("/login", server.Login)
			a.Post("/refresh", server.Refresh)
			a.Post("/logout", server.Logout)
		})

		// Authorised by the signed token in the query string.
		api.Post("/files/upload", fileHandler.Upload)
		api.Get("/proforma/{id}", proformaHandler.Redirect)

		api.Group(func(protected chi.Router) {
			protected.Use(middleware.Authenticate(tokens, userService))

			protected.Get("/auth/me", server.Me)
			protected.Patch("/me", userHandler.UpdateProfile)
			protected.Get("/salespeople", userHandler.Salespeople)

			protected.Route("/leads", func(l chi.Router) {
				l.Post("/", leadHandler.Create)
				l.Get("/", leadHandler.List)
				l.Get("/search", leadHandler.Search)
				l.Get("/follow-ups", leadHandler.FollowUps)
				l.Get("/stats", leadHandler.Stats)
				l.Get("/export", leadHandler.Export)
				l.Get("/{id}", leadHandler.Get)
				l.Patch("/{id}", leadHandler.Update)
				l.Patch("/{id}/status", leadHandler.UpdateStatus)
				l.Put("/{id}/consultations/{index}", leadHandler.UpdateConsultation)
				l.Post("/{id}/files", leadHandler.AttachFile)
				l.Delete("/{id}/files/{fileId}", leadHandler.DetachFile)
				l.Get("/{id}/proformas", proformaHandler.ListByPatient)
				l.With(middleware.RequireAdmin).Delete("/{id}", leadHandler.Delete)
			})

			protected.Post("/files/upload-url", fileHandler.UploadURL)
			protected.Get("/files/{id}", fileHandler.Download)

			protected.Route("/transfers", func(t chi.Router) {
				t.Post("/", transferHandler.Create)
				t.Get("/", transferHandler.List)
				t.Get("/{id}", transferHandler.Get)
				t.With(middleware.RequireAdmin).Post("/{id}/approve", transferHandler.Approve)
				t.With(middleware.RequireAdmin).Post("/{id}/reject", transferHandler.Reject)
			})

			protected.Route("/notifications", func(n chi.Router) {
				n.Get("/", notificationHandler.List)
				n.Get("/unread-count", notificationHandler.UnreadCount)
				n.Post("/read-all", notificationHandler.MarkAllRead)
				n.Patch("/{id}/read", notificationHandler.MarkRead)
			})

			protected.Route("/proformas", func(p chi.Router) {
				p.Post("/", proformaHandler.Create)
				p.Get("/{id}", proformaHandler.Get)
				p.Put("/{id}", proformaHandler.Update)
				p.Delete("/{id}", proformaHandler.Delete)
			})

			protected.Route("/calendar", func(c chi.Router) {
				c.Post("/", calendarHandler.Create)
				c.Get("/", calendarHandler.List)
				c.Patch("/{id}", calendarHandler.Update)
				c.Post("/{id}/toggle", calendarHandler.Toggle)
				c.Delete("/{id}", calendarHandler.Delete)
			})

			protected.Post("/activity/tab-visit", activityHandler.TabVisit)

			protected.Route("/admin", func(admin chi.Router) {
				admin.Use(middleware.RequireAdmin)
				admin.Get("/activity", activityHandler.AdminList)
				admin.Get("/users", userHandler.AdminList)
				admin.Post("/users", userHandler.AdminCreate)
				admin.Patch("/users/{id}/role", userHandler.AdminUpdateRole)
				admin.Patch("/users/{id}/password", userHandler.AdminResetPassword)
				admin.Delete("/users/{id}", userHandler.AdminDelete)
			})
		})
	})

	srv := &http.Server{
		Addr:              cfg.ServerAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("server started", slog.String("addr", cfg.ServerAddr), slog.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", slog.String("error", err.Error()))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.String("error", err.Error()))
	}
}

func logLevel(raw string) slog.Level {
	switch raw {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
