package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"markertransfer/config"
	"markertransfer/contract"
	"markertransfer/core"
	"markertransfer/core/events"
	"markertransfer/core/genesis"
	"markertransfer/crypto"
	"markertransfer/integrations/archive"
	"markertransfer/integrations/indexer"
	"markertransfer/integrations/webhooks"
	"markertransfer/native/common"
	"markertransfer/observability"
	"markertransfer/observability/logging"
	telemetry "markertransfer/observability/otel"
	"markertransfer/rpc"
	"markertransfer/rpc/middleware"
	"markertransfer/storage"
)

const genesisPathEnv = "RMT_GENESIS"

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	genesisFlag := flag.String("genesis", "", "Path to a genesis JSON or YAML file (overrides RMT_GENESIS and config GenesisFile)")
	migrateFlag := flag.Bool("migrate", false, "Migrate the stored contract to the running version before serving")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger := logging.SetupWithOptions("rmtd", cfg.Environment, logging.Options{
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		Level:      cfg.Log.SlogLevel(),
	})

	if err := run(cfg, resolveGenesisPath(*genesisFlag, cfg.GenesisFile, os.LookupEnv), *migrateFlag, logger); err != nil {
		logger.Error("rmtd stopped", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(cfg *config.Config, genesisPath string, migrate bool, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName: "rmtd",
		Environment: cfg.Environment,
		Endpoint:    cfg.Telemetry.Endpoint,
		Insecure:    cfg.Telemetry.Insecure,
		Headers:     telemetry.ParseHeaders(cfg.Telemetry.Headers),
		Metrics:     cfg.Telemetry.Metrics,
		Traces:      cfg.Telemetry.Traces,
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTelemetry(shutdownCtx)
	}()

	db, err := storage.NewLevelDB(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	node, err := bootstrap(cfg, db, genesisPath, logger)
	if err != nil {
		return err
	}
	if migrate {
		if _, err := node.Migrate(ctx); err != nil {
			return fmt.Errorf("migrate contract: %w", err)
		}
	}

	server, err := rpc.NewServer(node, rpc.ServerConfig{
		ReadTimeout:  time.Duration(cfg.RPC.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.RPC.WriteTimeout) * time.Second,
		Auth: middleware.AuthConfig{
			StaticToken: cfg.RPC.AuthToken,
			HMACSecret:  cfg.RPC.JWTSecret,
			Issuer:      cfg.RPC.JWTIssuer,
		},
		RateLimit:      middleware.RateLimit{RequestsPerMinute: cfg.RPC.RequestsPerMinute, Burst: cfg.RPC.Burst},
		AllowedOrigins: cfg.RPC.AllowedOrigins,
	}, logger)
	if err != nil {
		return err
	}

	fanout := &events.Fanout{}
	fanout.Add(server.Hub())
	fanout.Add(observability.Events())
	closeSinks, err := attachSinks(cfg, fanout, logger)
	if err != nil {
		return err
	}
	defer closeSinks()
	node.SetEmitter(fanout)

	ln, err := net.Listen("tcp", cfg.RPCAddress)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", cfg.RPCAddress, err)
	}
	logger.Info("rmtd running",
		slog.String("chain_id", cfg.ChainID),
		slog.String("data_dir", cfg.DataDir),
		slog.String("rpc_addr", ln.Addr().String()),
		slog.String("escrow", crypto.FormatAccount(node.EscrowAddress())),
		logging.MaskField("amqp_url", cfg.Indexer.AMQPURL),
		logging.MaskField("archive_dsn", cfg.Archive.DSN),
		logging.MaskField("webhook_url", cfg.Webhook.URL))
	return server.Serve(ctx, ln)
}

// bootstrap opens the node and applies genesis on an empty store. Without a
// genesis file the contract is instantiated with ContractName and no markers.
func bootstrap(cfg *config.Config, db storage.Database, genesisPath string, logger *slog.Logger) (*core.Node, error) {
	c := contract.New(crypto.ModuleAddress(contract.ContractType))
	pauses := common.NewPauses(contract.ModuleName)
	pauses.Set(contract.ModuleName, cfg.Paused)
	c.SetPauses(pauses)

	node, err := core.NewNode(db, cfg.ChainID, c)
	if err != nil {
		return nil, err
	}
	node.SetLogger(logger)
	node.SetQuota(cfg.Quota.Runtime())

	var spec *genesis.GenesisSpec
	if genesisPath != "" {
		spec, err = genesis.LoadGenesisSpec(genesisPath)
		if err != nil {
			return nil, fmt.Errorf("load genesis: %w", err)
		}
	} else {
		spec = &genesis.GenesisSpec{
			GenesisTime: time.Now().UTC().Format(time.RFC3339),
			ChainID:     cfg.ChainID,
			Contract:    genesis.ContractSpec{Name: cfg.ContractName},
		}
	}
	if err := node.InitGenesis(spec); err != nil && !errors.Is(err, genesis.ErrAlreadyApplied) {
		return nil, fmt.Errorf("apply genesis: %w", err)
	}
	if cfg.Paused {
		logger.Warn("transfer module paused; execute messages will be rejected")
	}
	return node, nil
}

// attachSinks registers the optional AMQP, webhook and archive emitters.
func attachSinks(cfg *config.Config, fanout *events.Fanout, logger *slog.Logger) (func(), error) {
	var closers []func()
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	if strings.TrimSpace(cfg.Indexer.AMQPURL) != "" {
		publisher, err := indexer.Dial(indexer.Config{
			URL:           cfg.Indexer.AMQPURL,
			Exchange:      cfg.Indexer.Exchange,
			RoutingPrefix: cfg.Indexer.RoutingPrefix,
		}, logger)
		if err != nil {
			return closeAll, err
		}
		fanout.Add(publisher)
		closers = append(closers, func() {
			if err := publisher.Close(); err != nil {
				logger.Warn("close indexer publisher", slog.Any("error", err))
			}
		})
	}
	if strings.TrimSpace(cfg.Webhook.URL) != "" {
		opts := []webhooks.Option{webhooks.WithLogger(logger)}
		if cfg.Webhook.MaxAttempts > 0 {
			opts = append(opts, webhooks.WithRetryPolicy(cfg.Webhook.MaxAttempts, 0, 0))
		}
		dispatcher, err := webhooks.NewDispatcher(cfg.Webhook.URL, []byte(cfg.Webhook.Secret), opts...)
		if err != nil {
			closeAll()
			return func() {}, err
		}
		fanout.Add(dispatcher)
		closers = append(closers, dispatcher.Close)
	}
	if strings.TrimSpace(cfg.Archive.DSN) != "" {
		store, err := archive.Open(cfg.Archive.DSN, logger)
		if err != nil {
			closeAll()
			return func() {}, err
		}
		fanout.Add(store)
		closers = append(closers, store.Close)
	}
	return closeAll, nil
}

type envLookupFunc func(string) (string, bool)

func resolveGenesisPath(cliPath string, cfgPath string, lookup envLookupFunc) string {
	if trimmed := strings.TrimSpace(cliPath); trimmed != "" {
		return trimmed
	}
	if lookup != nil {
		if value, ok := lookup(genesisPathEnv); ok {
			if trimmed := strings.TrimSpace(value); trimmed != "" {
				return trimmed
			}
		}
	}
	return strings.TrimSpace(cfgPath)
}
