package main

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"

	"github.com/PoliceEvents/PE-Backend/internal/calendar"
	"github.com/PoliceEvents/PE-Backend/internal/config"
	"github.com/PoliceEvents/PE-Backend/internal/db"
	"github.com/PoliceEvents/PE-Backend/internal/location"
	"github.com/PoliceEvents/PE-Backend/internal/logger"
	"github.com/PoliceEvents/PE-Backend/internal/middleware"
	"github.com/PoliceEvents/PE-Backend/internal/oslocate"
	"github.com/PoliceEvents/PE-Backend/internal/policeuk"
	"github.com/PoliceEvents/PE-Backend/internal/store"
	syncpkg "github.com/PoliceEvents/PE-Backend/internal/sync"
	"github.com/PoliceEvents/PE-Backend/internal/web"
)

func main() {
	_ = godotenv.Load(".env.local")
	log := logger.Setup()

	cfg := config.LoadFromEnv()
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	gdb, err := db.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("database connection failed")
	}
	st := store.New(gdb)
	if err := st.InitSchema(); err != nil {
		log.Fatal().Err(err).Msg("schema initialisation failed")
	}

	osClient := oslocate.NewClient(cfg.OSNamesAPIKey)
	if osClient == nil {
		log.Warn().Msg("OS_NAMES_API_KEY not set; postcode lookup disabled")
	}
	crawlClient := policeuk.NewClient(cfg.PoliceAPIBaseURL, cfg.MaxRetries, cfg.RequestTimeout)
	eventsClient := policeuk.NewClient(cfg.PoliceAPIBaseURL, cfg.MaxRetries, cfg.RequestTimeout)

	locationService := location.NewService(osClient, st)
	calendarService := calendar.NewService(eventsClient, cfg.CacheTTL)

	tracker := syncpkg.NewTracker()
	orchestrator := syncpkg.NewOrchestrator(crawlClient, st, tracker)
	scheduler := syncpkg.NewScheduler(orchestrator, st, tracker, cfg.SyncInterval)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := scheduler.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("scheduler startup failed")
	}
	defer scheduler.Stop()

	handler := &web.Handler{
		Location:  locationService,
		Calendar:  calendarService,
		Store:     st,
		Scheduler: scheduler,
		Tracker:   tracker,
	}

	rateLimiter := middleware.NewRateLimiter(cfg.RateLimit, cfg.RateBurst)

	r := chi.NewRouter()
	r.Use(middleware.RequestLogger)
	r.Use(middleware.CORSMiddleware)
	r.Use(rateLimiter.Middleware)
	r.Mount("/", handler.SetupRoutes())

	log.Info().Str("port", cfg.Port).Msg("server listening")
	if err := http.ListenAndServe("0.0.0.0:"+cfg.Port, r); err != nil {
		log.Fatal().Err(err).Msg("server exited")
	}
}
