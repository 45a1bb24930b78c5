package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"climate-rewards-api/internal/cache"
	"climate-rewards-api/internal/config"
	"climate-rewards-api/internal/database"
	"climate-rewards-api/internal/events"
	"climate-rewards-api/internal/features"
	"climate-rewards-api/internal/handler"
	"climate-rewards-api/internal/middleware"
	"climate-rewards-api/internal/service"
	"climate-rewards-api/internal/tracing"
)

func main() {
	configFile := flag.String("config", "", "Path to JSON config file (optional)")
	flag.Parse()

	cfg, err := config.LoadConfig(*configFile)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	// Initialize tracing
	if _, err := tracing.InitTracing(tracing.Config{
		Enabled:     cfg.Tracing.Enabled,
		Endpoint:    cfg.Tracing.Endpoint,
		ServiceName: "climate-rewards-api",
		Environment: cfg.Tracing.Environment,
	}); err != nil {
		log.Fatalf("Failed to initialize tracing: %v", err)
	}
	defer tracing.Shutdown(context.Background())

	// Initialize database
	db, err := database.NewDB(cfg.Database.Path)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.Close()

	// Initialize cache: Redis when configured, in-memory otherwise
	var c cache.Cache
	if cfg.Redis.Addr != "" {
		redisCache, err := cache.NewRedisCache(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			log.Fatalf("Failed to connect to Redis: %v", err)
		}
		defer redisCache.Close()
		c = redisCache
		log.Printf("Catalog cache: redis (%s)", cfg.Redis.Addr)
	} else {
		c = cache.NewInMemoryCache()
		log.Printf("Catalog cache: in-memory")
	}

	// Feature flags
	flags := features.NewManager()
	defer flags.Shutdown()
	flags.Register(features.FeatureCacheEnabled, true, "Serve the catalog listing from cache")
	flags.Register(features.FeatureEventHooksEnabled, true, "Publish in-process domain events")
	flags.Register(features.FeaturePlaceholderImages, true, "Fill missing catalog images with a placeholder")

	// Domain events
	eventManager := events.NewManager(true)
	defer eventManager.Shutdown()
	eventManager.Subscribe(events.EventItemRedeemed, func(ctx context.Context, ev events.Event) error {
		if data, ok := ev.Data.(events.ItemRedeemedData); ok {
			log.Printf("Redemption committed: account=%s item=%q spent=%d balance=%d",
				data.AccountID, data.ItemName, data.PointsSpent, data.NewBalance)
		}
		return nil
	})

	// Initialize service
	svc := service.NewService(db, c, flags, eventManager, service.Options{
		SignupGrant:       cfg.Points.SignupGrant,
		RegistrationAward: cfg.Points.RegistrationAward,
		CatalogCacheTTL:   time.Duration(cfg.Points.CatalogCacheTTL) * time.Second,
	})

	// Initialize handlers
	h := handler.NewHandlerWithOptions(svc, handler.NewHandlerOptions{
		MaxBodySize: cfg.Security.MaxRequestBodySize,
	})

	// Token verifier: external auth service when configured, static dev
	// tokens otherwise
	verifier := buildVerifier(cfg)

	// Initialize rate limiter
	rateLimiter := middleware.NewRateLimiter(cfg.RateLimit.Rate, time.Duration(cfg.RateLimit.Window)*time.Second)
	defer rateLimiter.Stop()

	// Setup router
	r := chi.NewRouter()

	// Middleware (order matters)
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)
	r.Use(middleware.TracingMiddleware())

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   strings.Split(cfg.Security.AllowedOrigins, ","),
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health check endpoint
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	// Authenticated routes
	r.Group(func(r chi.Router) {
		r.Use(middleware.Authenticate(verifier))
		if cfg.RateLimit.Enabled {
			r.Use(middleware.RateLimitMiddleware(rateLimiter))
		}

		r.Route("/users", func(r chi.Router) {
			r.Get("/points", h.GetPoints)
			r.Get("/ledger", h.GetLedger)
		})

		r.Route("/redemption", func(r chi.Router) {
			r.Get("/items", h.ListCatalog)
			r.Post("/redeem", h.Redeem)
			r.Get("/history", h.GetHistory)

			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireAdmin)
				r.Post("/items", h.CreateItem)
				r.Put("/items/{id}", h.UpdateItem)
			})
		})

		r.Route("/events", func(r chi.Router) {
			r.Get("/", h.ListEvents)
			r.Get("/my-registrations", h.MyRegistrations)
			r.Post("/{id}/register", h.RegisterForEvent)
			r.Delete("/{id}/register", h.CancelRegistration)

			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireAdmin)
				r.Post("/", h.CreateEvent)
				r.Put("/{id}", h.UpdateEvent)
				r.Delete("/{id}", h.DeleteEvent)
			})
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireAdmin)
			r.Post("/accounts", h.CreateAccount)
			r.Get("/admin/stats", h.GetStats)
		})
	})

	// Start server
	addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
	log.Printf("Starting HTTP server on %s", addr)
	log.Printf("Database: %s", cfg.Database.Path)
	log.Printf("Rate limit: %d requests per %d seconds (enabled=%v)",
		cfg.RateLimit.Rate, cfg.RateLimit.Window, cfg.RateLimit.Enabled)

	server := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	// Graceful shutdown
	go func() {
		sigint := make(chan os.Signal, 1)
		signal.Notify(sigint, os.Interrupt, syscall.SIGTERM)
		<-sigint

		log.Println("Shutting down server...")
		if err := server.Close(); err != nil {
			log.Printf("Error closing server: %v", err)
		}
	}()

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("Server failed: %v", err)
	}
}

// buildVerifier wires the external auth collaborator. Without a verify URL
// the service runs on static dev tokens from AUTH_DEV_TOKENS, formatted
// "token=accountID" or "token=accountID:admin", comma-separated.
func buildVerifier(cfg *config.Config) middleware.Verifier {
	if cfg.Auth.VerifyURL != "" {
		log.Printf("Auth: remote verifier (%s)", cfg.Auth.VerifyURL)
		return middleware.NewRemoteVerifier(cfg.Auth.VerifyURL, &http.Client{Timeout: 5 * time.Second})
	}

	static := middleware.NewStaticVerifier()
	for _, pair := range strings.Split(os.Getenv("AUTH_DEV_TOKENS"), ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		token, target, ok := strings.Cut(pair, "=")
		if !ok {
			log.Printf("Skipping malformed dev token entry %q", pair)
			continue
		}
		accountID, role, _ := strings.Cut(target, ":")
		static.Add(token, middleware.Identity{
			AccountID: accountID,
			IsAdmin:   role == "admin",
		})
	}
	log.Printf("Auth: static dev tokens")
	return static
}
