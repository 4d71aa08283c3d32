package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/bookleafpub/outreach-tracker/internal/httpapi"
	"github.com/bookleafpub/outreach-tracker/internal/tracker"
)

func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("could not load .env: %v", err)
	}

	listenAddr := flag.String("listen", envOrDefault("TRACKER_LISTEN", ":8080"), "HTTP listen address")
	storeDSN := flag.String("store", strings.TrimSpace(os.Getenv("TRACKER_STORE_DSN")), "document store DSN (postgres://, sqlite://, badger://, memory://)")
	dataDir := flag.String("data-dir", envOrDefault("TRACKER_DATA_DIR", "data"), "directory holding authors.json and tracker.json")
	rosterFile := flag.String("roster", strings.TrimSpace(os.Getenv("TRACKER_ROSTER_FILE")), "optional consultant roster YAML (default built-in roster)")
	watchSeed := flag.Bool("watch-seed", boolEnv("TRACKER_WATCH_SEED", true), "reload seed files when they change on disk")
	adminPassword := flag.String("admin-password", strings.TrimSpace(os.Getenv("TRACKER_ADMIN_PASSWORD")), "admin password")
	cronSecret := flag.String("cron-secret", strings.TrimSpace(os.Getenv("TRACKER_CRON_SECRET")), "secret for the ticket sync trigger")
	webhookSecret := flag.String("webhook-secret", strings.TrimSpace(os.Getenv("TRACKER_FD_WEBHOOK_SECRET")), "secret for the Freshdesk webhook")
	razorpaySecret := flag.String("razorpay-secret", strings.TrimSpace(os.Getenv("RAZORPAY_WEBHOOK_SECRET")), "Razorpay webhook signing secret")
	reassignCutoff := flag.String("reassign-cutoff", strings.TrimSpace(os.Getenv("TRACKER_REASSIGN_CUTOFF")), "reassignment cutoff date (YYYY-MM-DD)")
	fdDomain := flag.String("fd-domain", strings.TrimSpace(os.Getenv("FRESHDESK_DOMAIN")), "Freshdesk domain")
	fdAPIKey := flag.String("fd-api-key", strings.TrimSpace(os.Getenv("FRESHDESK_API_KEY")), "Freshdesk API key")
	syncMaxPages := flag.Int("sync-max-pages", intEnv("TRACKER_SYNC_MAX_PAGES", 3), "ticket pages fetched per sync (1-10)")
	syncInterval := flag.Duration("sync-interval", durationEnv("TRACKER_SYNC_INTERVAL", 0), "background ticket sync interval (0 disables)")
	syncJitter := flag.Float64("sync-jitter", floatEnv("TRACKER_SYNC_JITTER", 0.2), "sync interval jitter ratio (0.0-1.0)")
	flag.Parse()

	store, err := tracker.OpenStore(*storeDSN)
	if err != nil {
		log.Fatalf("failed to open document store: %v", err)
	}
	if store != nil {
		defer store.Close()
		log.Printf("document store: %s", store.Provider())
	} else {
		log.Printf("document store: none (runtime overrides disabled)")
	}

	seeds, err := tracker.NewSeedProvider(*dataDir, log.Default())
	if err != nil {
		log.Fatalf("failed to load seed data from %s: %v", *dataDir, err)
	}
	defer seeds.Close()
	if *watchSeed {
		if err := seeds.Watch(); err != nil {
			log.Printf("seed watch disabled: %v", err)
		}
	}

	roster := tracker.DefaultRoster()
	if *rosterFile != "" {
		roster, err = tracker.LoadRoster(*rosterFile)
		if err != nil {
			log.Fatalf("failed to load roster from %s: %v", *rosterFile, err)
		}
	}
	log.Printf("consultant roster: %s", strings.Join(roster.Names(), ", "))

	server := httpapi.NewServer(store, seeds, roster, httpapi.ServerConfig{
		AdminPassword:   *adminPassword,
		CronSecret:      *cronSecret,
		WebhookSecret:   *webhookSecret,
		RazorpaySecret:  *razorpaySecret,
		ReassignCutoff:  *reassignCutoff,
		FreshdeskDomain: *fdDomain,
		FreshdeskAPIKey: *fdAPIKey,
		SyncMaxPages:    *syncMaxPages,
	})

	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	httpServer := &http.Server{
		Addr:              *listenAddr,
		Handler:           server,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Printf("listening on %s", *listenAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("http server failed: %v", err)
		}
	}()

	if *syncInterval > 0 && store != nil {
		go runSyncLoop(rootCtx, server, *syncMaxPages, *syncInterval, clampJitterRatio(*syncJitter))
	}

	<-rootCtx.Done()
	log.Printf("shutting down: %v", rootCtx.Err())
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown: %v", err)
	}
}

func runSyncLoop(ctx context.Context, server *httpapi.Server, maxPages int, interval time.Duration, jitter float64) {
	run := func() {
		syncCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
		defer cancel()
		cache, err := server.SyncTickets(syncCtx, maxPages)
		if err != nil {
			log.Printf("ticket sync cycle failed: %v", err)
			return
		}
		log.Printf("ticket sync cycle completed: %d tickets", cache.TicketCount)
	}

	run()
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	timer := time.NewTimer(jitteredIntervalWithSample(interval, jitter, rng.Float64()))
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Printf("ticket sync stopping: %v", ctx.Err())
			return
		case <-timer.C:
			run()
			timer.Reset(jitteredIntervalWithSample(interval, jitter, rng.Float64()))
		}
	}
}

func envOrDefault(name, fallback string) string {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return fallback
	}
	return value
}

func durationEnv(name string, fallback time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return fallback
	}
	value, err := time.ParseDuration(raw)
	if err != nil {
		log.Printf("invalid %s=%q, using fallback %s", name, raw, fallback.String())
		return fallback
	}
	return value
}

func intEnv(name string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		log.Printf("invalid %s=%q, using fallback %d", name, raw, fallback)
		return fallback
	}
	return value
}

func boolEnv(name string, fallback bool) bool {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return fallback
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		log.Printf("invalid %s=%q, using fallback %t", name, raw, fallback)
		return fallback
	}
	return value
}

func floatEnv(name string, fallback float64) float64 {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return fallback
	}
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		log.Printf("invalid %s=%q, using fallback %f", name, raw, fallback)
		return fallback
	}
	return value
}

func clampJitterRatio(value float64) float64 {
	if value < 0 {
		return 0
	}
	if value > 1 {
		return 1
	}
	return value
}

func jitteredIntervalWithSample(base time.Duration, jitterRatio, sample float64) time.Duration {
	if base <= 0 {
		return 0
	}
	jitterRatio = clampJitterRatio(jitterRatio)
	if jitterRatio == 0 {
		return base
	}
	if sample < 0 {
		sample = 0
	} else if sample > 1 {
		sample = 1
	}
	factor := 1 + ((sample*2)-1)*jitterRatio
	if factor < 0 {
		factor = 0
	}
	delay := time.Duration(float64(base) * factor)
	if delay < time.Millisecond {
		return time.Millisecond
	}
	return delay
}
