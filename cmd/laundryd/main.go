package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/SherClockHolmes/webpush-go"

	"hostel-laundry-backend/config"
	"hostel-laundry-backend/internal/api"
	"hostel-laundry-backend/internal/db"
	"hostel-laundry-backend/internal/model"
	"hostel-laundry-backend/internal/notification"
	"hostel-laundry-backend/internal/resolver"
	"hostel-laundry-backend/internal/sched"
	"hostel-laundry-backend/internal/session"
	"hostel-laundry-backend/internal/store"
)

func main() {
	logger := log.New(os.Stdout, "laundryd ", log.LstdFlags)

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./config/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Fatalf("failed to load configuration from %s: %v", configPath, err)
	}
	logger.Printf("configuration loaded successfully from %s", configPath)

	if cfg.Push.PublicKey == "" || cfg.Push.PrivateKey == "" {
		logger.Fatalf("VAPID keys must be configured. Please generate them and add them to your config or environment.")
	}

	webpushOptions := webpush.Options{
		VAPIDPublicKey:  cfg.Push.PublicKey,
		VAPIDPrivateKey: cfg.Push.PrivateKey,
		Subscriber:      cfg.Push.Subject,
		TTL:             cfg.Push.TTL,
	}

	gormDB, err := db.Init(&cfg.Database)
	if err != nil {
		logger.Fatalf("failed to initialize database: %v", err)
	}
	logger.Println("database initialized successfully")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	appStore := store.NewGormStore(gormDB)

	machines, locations := provisionedMachines(cfg.Provision)
	if err := appStore.EnsureMachines(ctx, machines); err != nil {
		logger.Fatalf("failed to provision machines: %v", err)
	}
	logger.Printf("machine pool ensured: %d machines across %d locations", len(machines), len(locations))

	pool := notification.NewWorkerPool(cfg.WorkerPool.Size, appStore, &webpushOptions)
	pool.Start(ctx)

	clock := sched.SystemClock()
	scheduler := sched.NewScheduler(clock)
	res := resolver.New(appStore, scheduler, pool, clock)

	// Rebuild cycle timers from the registry before serving: no running
	// machine is left without an eventual done firing, however long the
	// process was down.
	if err := scheduler.Rehydrate(ctx, appStore); err != nil {
		logger.Fatalf("failed to rehydrate timers: %v", err)
	}

	sessions := session.NewManager(cfg.Registration.SessionTTL)
	handler := api.NewHandler(appStore, res, sessions, &webpushOptions, clock, cfg.Registration.Houses, locations)
	router := api.NewRouter(handler, api.RouterOptions{
		RateLimitPerSec: cfg.Server.RateLimitPerSec,
		RateLimitBurst:  cfg.Server.RateLimitBurst,
		CacheTTL:        time.Duration(cfg.Server.CacheTTLSeconds) * time.Second,
	})

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		logger.Printf("HTTP server starting on port %d", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("HTTP server ListenAndServe: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	<-stop
	logger.Println("Shutdown signal received, stopping services...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Fatalf("HTTP server Shutdown: %v", err)
	}

	logger.Println("Server gracefully stopped")
}

// provisionedMachines expands the configured pool into machine records
// with ids like "9_washer_1", plus the ordered location list.
func provisionedMachines(provision []config.ProvisionConfig) ([]model.Machine, []string) {
	var machines []model.Machine
	var locations []string
	for _, p := range provision {
		locations = append(locations, p.Location)
		for i := 1; i <= p.Washers; i++ {
			machines = append(machines, model.Machine{
				ID:       fmt.Sprintf("%s_washer_%d", p.Location, i),
				Kind:     model.KindWasher,
				Location: p.Location,
				Status:   model.StatusAvailable,
			})
		}
		for i := 1; i <= p.Dryers; i++ {
			machines = append(machines, model.Machine{
				ID:       fmt.Sprintf("%s_dryer_%d", p.Location, i),
				Kind:     model.KindDryer,
				Location: p.Location,
				Status:   model.StatusAvailable,
			})
		}
	}
	return machines, locations
}
