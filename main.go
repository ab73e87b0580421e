package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/Reverse-Call-Center/routing-engine/agents"
	"github.com/Reverse-Call-Center/routing-engine/api"
	"github.com/Reverse-Call-Center/routing-engine/config"
	"github.com/Reverse-Call-Center/routing-engine/flow"
	"github.com/Reverse-Call-Center/routing-engine/nlp"
	"github.com/Reverse-Call-Center/routing-engine/queue"
	"github.com/Reverse-Call-Center/routing-engine/reporter"
	"github.com/Reverse-Call-Center/routing-engine/router"
	"github.com/Reverse-Call-Center/routing-engine/session"
	"github.com/Reverse-Call-Center/routing-engine/store"
	"github.com/Reverse-Call-Center/routing-engine/telephony"
)

func main() {
	settingsPath := flag.String("settings", "configs/settings.yaml", "process settings document")
	flowsPath := flag.String("flows", "configs/flows.yaml", "IVR flow document")
	queuesPath := flag.String("queues", "configs/queues.yaml", "queue and agent document")
	flag.Parse()

	// Optional .env for secrets (OPENAI_API_KEY and friends).
	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	if err := run(logger, *settingsPath, *flowsPath, *queuesPath); err != nil {
		logger.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger, settingsPath, flowsPath, queuesPath string) error {
	settings, err := config.LoadSettings(settingsPath)
	if err != nil {
		return err
	}
	flows, err := config.LoadFlows(flowsPath)
	if err != nil {
		return err
	}
	queueDoc, err := config.LoadQueues(queuesPath)
	if err != nil {
		return err
	}
	if err := config.ValidateDefaultFlow(flows, settings.Routing.DefaultFlow); err != nil {
		return err
	}
	registry, err := config.NewRegistry(flows, queueDoc)
	if err != nil {
		return err
	}

	repo, err := store.OpenSQLite(settings.Store.Path)
	if err != nil {
		return err
	}
	defer repo.Close()

	var pub reporter.Publisher
	if settings.MQTT.Broker != "" {
		pub, err = reporter.NewMQTTPublisher(settings.MQTT.Broker, settings.MQTT.ClientID)
		if err != nil {
			return err
		}
	} else {
		logger.Warn("no MQTT broker configured, events stay local")
		pub = reporter.NewMockPublisher()
	}
	events := reporter.New(pub, settings.MQTT.TopicPrefix, logger)
	defer events.Close()

	var decider flow.Decider
	if key := os.Getenv("OPENAI_API_KEY"); key != "" && settings.NLP.Endpoint == "" {
		decider, err = nlp.NewIntentDecider(key, settings.NLP.Model)
		if err != nil {
			return err
		}
	} else {
		decider = nlp.NewHTTPDecider(settings.NLP.Endpoint, settings.NLPTimeout())
	}

	engine := flow.NewEngine(decider, repo, logger)
	queues := queue.NewManager(logger)
	pool := agents.NewPool(logger)
	matcher := agents.NewMatcher(pool, queues, logger)
	sessions := session.NewRegistry()

	driver, err := telephony.NewSIPDriver(telephony.SIPConfig{
		Protocol:   settings.SIP.Protocol,
		ListenAddr: settings.SIP.ListenAddr,
		Port:       settings.SIP.Port,
		Gateway:    settings.SIP.Gateway,
		PromptDir:  settings.SIP.PromptDir,
	}, logger)
	if err != nil {
		return err
	}

	coord := router.New(router.Deps{
		Settings: settings,
		Registry: registry,
		Engine:   engine,
		Queues:   queues,
		Pool:     pool,
		Matcher:  matcher,
		Driver:   driver,
		Sessions: sessions,
		Repo:     repo,
		Events:   events,
		Logger:   logger,
	})
	driver.SetHandler(coord)
	coord.Start()
	defer coord.Stop()

	srv := &http.Server{
		Addr:        settings.HTTP.Addr,
		Handler:     api.NewServer(coord, logger).Router(),
		ReadTimeout: 30 * time.Second,
		IdleTimeout: 120 * time.Second,
	}
	go func() {
		logger.Info("control surface listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server failed", "error", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go reloadOnHUP(ctx, logger, registry, queues, flowsPath, queuesPath, settings.Routing.DefaultFlow)

	err = driver.Serve(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if serr := srv.Shutdown(shutdownCtx); serr != nil {
		logger.Error("http shutdown", "error", serr)
	}
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// reloadOnHUP re-reads the flow and queue documents on SIGHUP and installs
// them atomically. Sessions in flight keep the snapshot they started with.
func reloadOnHUP(ctx context.Context, logger *slog.Logger, registry *config.Registry, queues *queue.Manager, flowsPath, queuesPath, defaultFlow string) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			flows, err := config.LoadFlows(flowsPath)
			if err != nil {
				logger.Error("reload rejected", "error", err)
				continue
			}
			queueDoc, err := config.LoadQueues(queuesPath)
			if err != nil {
				logger.Error("reload rejected", "error", err)
				continue
			}
			if err := config.ValidateDefaultFlow(flows, defaultFlow); err != nil {
				logger.Error("reload rejected", "error", err)
				continue
			}
			if err := registry.Swap(flows, queueDoc); err != nil {
				logger.Error("reload rejected", "error", err)
				continue
			}
			for name := range queueDoc.Queues {
				queues.Declare(name)
			}
			logger.Info("configuration reloaded",
				"flows", len(flows.Flows), "queues", len(queueDoc.Queues))
		}
	}
}
