// Command corpsim runs the corporate competition simulator: AI-driven
// employees propose decisions, companies resolve them through their
// hierarchy or by collective vote, and a round scheduler moves the
// economy forward until one company is left standing.
//
// Usage:
//
//	corpsim --setup                 (interactive config wizard)
//	corpsim --config config.yaml
//	corpsim                         (offline defaults, simulated provider)
//
// Real AI providers read their key from the environment variable named in
// the config's api_key_env field.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/vadiminshakov/corpsim/config"
	"github.com/vadiminshakov/corpsim/internal/clients"
	"github.com/vadiminshakov/corpsim/internal/events"
	"github.com/vadiminshakov/corpsim/internal/gateway"
	"github.com/vadiminshakov/corpsim/internal/services/agent"
	"github.com/vadiminshakov/corpsim/internal/services/lifecycle"
	"github.com/vadiminshakov/corpsim/internal/services/scheduler"
	"github.com/vadiminshakov/corpsim/internal/services/topology"
	"github.com/vadiminshakov/corpsim/internal/setup"
	"github.com/vadiminshakov/corpsim/internal/storage"
	"github.com/vadiminshakov/corpsim/internal/web"
)

const situationCacheSize = 512

func main() {
	configPath := flag.String("config", "", "path to YAML config")
	runSetup := flag.Bool("setup", false, "run the interactive config wizard")
	flag.Parse()

	if *runSetup {
		if err := setup.RunTUI(); err != nil {
			log.Fatal(err)
		}
		*configPath = "config.gen.yaml"
	}

	cfg := config.Default()
	if *configPath != "" {
		var err error
		if cfg, err = config.Load(*configPath); err != nil {
			log.Fatal(err)
		}
	}

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger, cfg); err != nil {
		logger.Fatal("corpsim failed", zap.Error(err))
	}
}

func run(ctx context.Context, logger *zap.Logger, cfg config.Config) error {
	db, err := storage.Open(cfg.DataDir)
	if err != nil {
		return err
	}
	defer db.Close()
	store := storage.NewStore(db)

	eventLog, err := storage.NewEventLog(cfg.DataDir)
	if err != nil {
		return err
	}
	defer eventLog.Close()

	bus := events.NewBroadcaster(256)
	ledger := gateway.NewCostLedger()

	gw, err := gateway.New(logger, ledger, buildProviders(logger, cfg),
		gateway.WithCallTimeout(cfg.CallTimeout),
		gateway.WithMaxCostPerCall(cfg.MaxCostPerCall),
	)
	if err != nil {
		return err
	}

	situations, err := agent.NewSituationBuilder(scheduler.NewHistorySource(store, eventLog), situationCacheSize)
	if err != nil {
		return err
	}

	life := lifecycle.New(topology.New(cfg.EscalationThreshold), cfg.VotingDeadlineRounds)

	engine, err := scheduler.New(ctx, logger, cfg, store, eventLog, bus,
		agent.New(logger, gw), situations, life, ledger)
	if err != nil {
		return err
	}
	defer engine.Close()

	server := web.NewServer(logger, cfg.ListenAddr, engine, store, eventLog, bus)
	return server.Start(ctx)
}

// buildProviders turns the provider config into clients, default first so the
// gateway tries it before the fallbacks.
func buildProviders(logger *zap.Logger, cfg config.Config) []clients.LLMClient {
	var primary clients.LLMClient
	var rest []clients.LLMClient

	for _, p := range cfg.Providers {
		var client clients.LLMClient
		if p.Simulated {
			client = clients.NewSimClient(p.Name)
		} else {
			apiKey := os.Getenv(p.APIKeyEnv)
			if apiKey == "" {
				logger.Warn("provider API key env is empty, calls will fail over",
					zap.String("provider", p.Name), zap.String("env", p.APIKeyEnv))
			}
			client = clients.NewOpenAICompatibleClient(p.Name, p.APIURL, apiKey, p.Model,
				p.InputPricePer1K, p.OutputPricePer1K)
		}
		if p.Default && primary == nil {
			primary = client
		} else {
			rest = append(rest, client)
		}
	}

	if primary == nil {
		return rest
	}
	return append([]clients.LLMClient{primary}, rest...)
}
