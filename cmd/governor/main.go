package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/ducminhle1904/portfolio-risk-governor/internal/audit"
	"github.com/ducminhle1904/portfolio-risk-governor/internal/bus"
	"github.com/ducminhle1904/portfolio-risk-governor/internal/config"
	"github.com/ducminhle1904/portfolio-risk-governor/internal/decision"
	"github.com/ducminhle1904/portfolio-risk-governor/internal/dispatch"
	"github.com/ducminhle1904/portfolio-risk-governor/internal/gates"
	"github.com/ducminhle1904/portfolio-risk-governor/internal/governor"
	"github.com/ducminhle1904/portfolio-risk-governor/internal/logger"
	"github.com/ducminhle1904/portfolio-risk-governor/internal/metrics"
	"github.com/ducminhle1904/portfolio-risk-governor/internal/monitoring"
	"github.com/ducminhle1904/portfolio-risk-governor/internal/notifications"
	"github.com/ducminhle1904/portfolio-risk-governor/internal/state"
)

func main() {
	var (
		configFile = flag.String("config", "governor.json", "Configuration file (in configs/ unless a path is given)")
		envFile    = flag.String("env", ".env", "Environment file with API credentials")
		clearKill  = flag.String("clear-kill-switch", "", "Clear an engaged kill switch as the named operator, then exit")
	)
	flag.Parse()

	if err := loadEnvFile(*envFile); err != nil {
		log.Printf("No env file loaded: %v", err)
	}

	cfg, err := config.Load(*configFile)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Printf("Starting risk governor over %d bots", len(cfg.EnabledBots()))

	healthChecker := monitoring.NewHealthChecker()

	gov, fileLog, cleanup, err := buildGovernor(cfg, healthChecker)
	if err != nil {
		log.Fatalf("Failed to build governor: %v", err)
	}
	defer cleanup()

	if *clearKill != "" {
		if err := gov.ClearKillSwitch(*clearKill); err != nil {
			log.Fatalf("Failed to clear kill switch: %v", err)
		}
		log.Printf("Kill switch cleared by %s, governor now in manual review", *clearKill)
		return
	}

	go setupMonitoringServers(cfg, healthChecker)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := gov.Start(ctx); err != nil {
		log.Fatalf("Failed to start governor: %v", err)
	}
	fileLog.Info("governor started, cycle interval %s", cfg.CycleInterval)

	// Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Println("Shutting down...")
	cancel()
	gov.Stop()

	log.Println("Governor stopped successfully")
}

// buildGovernor wires every component from configuration. The returned
// cleanup closes the audit writer, bus, and log file.
func buildGovernor(cfg *config.GovernorConfig, healthChecker *monitoring.HealthChecker) (*governor.Governor, *logger.Logger, func(), error) {
	fileLog, err := logger.NewLogger("portfolio")
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to create logger: %w", err)
	}

	source, err := buildSource(cfg)
	if err != nil {
		fileLog.Close()
		return nil, nil, nil, err
	}

	auditWriter, err := audit.NewWriter(cfg.Audit.Dir)
	if err != nil {
		fileLog.Close()
		return nil, nil, nil, fmt.Errorf("failed to open audit log: %w", err)
	}

	var publisher bus.Publisher = bus.Noop{}
	if redisCfg := cfg.RedisConfig(); redisCfg != nil {
		publisher = bus.NewRedisPublisher(*redisCfg)
		log.Printf("Bus enabled: redis at %s", redisCfg.Addr)
	} else {
		log.Println("Bus disabled, intents stay local")
	}
	busHealth := bus.NewHealth()

	authorities := make(map[string]dispatch.LocalAuthority)
	var scope []string
	for _, bot := range cfg.EnabledBots() {
		scope = append(scope, bot.ID)
		authorities[bot.ID] = dispatch.NewHTTPAuthority(bot.ID, bot.Endpoint, cfg.DeliveryTimeoutDuration())
	}

	dispatcher, err := dispatch.NewDispatcher(scope, authorities, cfg.RetryConfig(),
		publisher, busHealth, cfg.BusPublishTimeout(), fileLog)
	if err != nil {
		auditWriter.Close()
		fileLog.Close()
		return nil, nil, nil, fmt.Errorf("failed to create dispatcher: %w", err)
	}

	var notifier notifications.Notifier = notifications.Noop{}
	if cfg.Notifications != nil && cfg.Notifications.Enabled {
		notifier = notifications.NewTelegramNotifier(
			cfg.Notifications.TelegramToken, cfg.Notifications.TelegramChat)
	}

	thresholds := cfg.GateThresholds()
	gov, err := governor.New(governor.Params{
		Source:         source,
		Evaluator:      gates.NewEvaluator(gates.DefaultChecks(thresholds)),
		Engine:         decision.NewEngine(cfg.DecisionConfig()),
		Dispatcher:     dispatcher,
		Audit:          auditWriter,
		States:         state.NewStore(filepath.Join(cfg.Audit.Dir, "governor_state.json")),
		Publisher:      publisher,
		BusHealth:      busHealth,
		Notifier:       notifier,
		Log:            fileLog,
		Health:         healthChecker,
		CycleInterval:  cfg.CycleIntervalDuration(),
		FetchTimeout:   cfg.FetchTimeoutDuration(),
		MaxSnapshotAge: thresholds.MaxSnapshotAge,
		BusTimeout:     cfg.BusPublishTimeout(),
	})
	if err != nil {
		auditWriter.Close()
		fileLog.Close()
		return nil, nil, nil, fmt.Errorf("failed to create governor: %w", err)
	}

	cleanup := func() {
		if err := auditWriter.Close(); err != nil {
			log.Printf("Error closing audit writer: %v", err)
		}
		if err := publisher.Close(); err != nil {
			log.Printf("Error closing bus publisher: %v", err)
		}
		fileLog.Close()
	}
	return gov, fileLog, cleanup, nil
}

func buildSource(cfg *config.GovernorConfig) (metrics.Source, error) {
	switch cfg.Exchange.Name {
	case "bybit":
		return metrics.NewBybitSource(cfg.BybitConfig()), nil
	case "static":
		// Replay/testing source: a frozen snapshot that trips the staleness
		// gate once its timestamp ages out.
		return &metrics.StaticSource{Snapshot: &metrics.Snapshot{
			Timestamp: time.Now().UTC(),
		}}, nil
	default:
		return nil, fmt.Errorf("unsupported exchange %s", cfg.Exchange.Name)
	}
}

func setupMonitoringServers(cfg *config.GovernorConfig, healthChecker *monitoring.HealthChecker) {
	// Create separate mux for health server
	healthMux := http.NewServeMux()
	healthMux.Handle("/health", healthChecker)

	// Start health server
	go func() {
		log.Printf("Starting health server on port %d", cfg.Monitoring.HealthPort)
		if err := http.ListenAndServe(fmt.Sprintf(":%d", cfg.Monitoring.HealthPort), healthMux); err != nil {
			log.Printf("Health server error: %v", err)
		}
	}()

	// Start Prometheus metrics server
	go func() {
		log.Printf("Starting Prometheus server on port %d", cfg.Monitoring.PrometheusPort)
		if err := http.ListenAndServe(fmt.Sprintf(":%d", cfg.Monitoring.PrometheusPort), monitoring.NewMetricsHandler()); err != nil {
			log.Printf("Prometheus server error: %v", err)
		}
	}()
}

func loadEnvFile(envFile string) error {
	// Load .env file if it exists
	if _, err := os.Stat(envFile); err == nil {
		return godotenv.Load(envFile)
	}
	return fmt.Errorf("env file %s not found", envFile)
}
