// Command accessledger runs a scripted walkthrough of the access
// ledger: it registers a record, grants and revokes direct access,
// issues and revokes a proxy key, transfers ownership, and prints
// the audit trail the operations produced.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/lmittmann/tint"
	"gopkg.in/yaml.v2"

	"github.com/privacychain/accessledger"
	"github.com/privacychain/accessledger/pkg/audit"
	"github.com/privacychain/accessledger/pkg/ident"
)

const (
	logKeyDataPath = "dataPath"
	logKeyProxyID  = "proxyId"
	logKeySignal   = "signal"
	logKeyError    = "error"
)

func main() {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, "accessledger:", err)
		os.Exit(1)
	}

	logLevel := slog.LevelInfo
	if cfg.Debug {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      logLevel,
		TimeFormat: time.TimeOnly,
	}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.InfoContext(ctx, "received shutdown signal",
			logKeySignal, sig.String())
		cancel()
	}()

	if err := run(ctx, cfg, logger); err != nil {
		logger.ErrorContext(context.Background(), "walkthrough failed",
			logKeyError, err)
		os.Exit(1)
	}
}

// cliConfig holds settings from flags, optionally overridden by a
// YAML config file.
type cliConfig struct {
	DataPath      string `yaml:"dataPath"`
	MinimumFreeGB uint   `yaml:"minimumFreeGB"`
	Debug         bool   `yaml:"debug"`
	ProxyTTL      string `yaml:"proxyTTL"`
}

func loadConfig() (cliConfig, error) {
	cfg := cliConfig{}

	var configPath string
	flag.StringVar(&configPath, "config", "",
		"Path to YAML config file (optional)")
	flag.StringVar(&cfg.DataPath, "data", "",
		"Data directory for the durable store; empty runs in memory")
	flag.UintVar(&cfg.MinimumFreeGB, "min-free-gb", 0,
		"Minimum free disk space in GB before the store opens")
	flag.BoolVar(&cfg.Debug, "debug", false,
		"Enable debug logging")
	flag.StringVar(&cfg.ProxyTTL, "proxy-ttl", "1h",
		"Lifetime of the demo proxy key (Go duration)")
	flag.Parse()

	if configPath != "" {
		raw, err := os.ReadFile(configPath)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", configPath, err)
		}
	}
	return cfg, nil
}

func run(ctx context.Context, cfg cliConfig, logger *slog.Logger) error {
	proxyTTL, err := time.ParseDuration(cfg.ProxyTTL)
	if err != nil {
		return fmt.Errorf("invalid proxy-ttl: %w", err)
	}

	conf := accessledger.Config{Logger: logger}
	if cfg.DataPath != "" {
		conf.Paths = []string{cfg.DataPath}
		conf.MinimumFreeGB = cfg.MinimumFreeGB
		logger.InfoContext(ctx, "using durable store",
			logKeyDataPath, cfg.DataPath)
	}

	engine, err := accessledger.New(conf)
	if err != nil {
		return err
	}
	if err := engine.Start(ctx); err != nil {
		return err
	}
	defer engine.Close()

	alice := ident.PrincipalFromString("alice")
	bob := ident.PrincipalFromString("bob")
	carol := ident.PrincipalFromString("carol")
	record := ident.DataIDFromString("patient-record-" + uuid.NewString())

	// Alice registers a record and grants Bob direct access.
	if err := engine.RegisterData(ctx, record, alice); err != nil {
		return err
	}
	if err := engine.GrantAccess(ctx, record, bob, alice); err != nil {
		return err
	}
	if err := engine.LogAccess(ctx, record, bob); err != nil {
		return err
	}

	// Alice delegates to Carol with a time-boxed proxy key.
	proxyID := ident.ProxyID(uuid.NewString())
	err = engine.GenerateProxyKey(ctx, accessledger.GenerateProxyKeyParams{
		ProxyID:   proxyID,
		DataID:    record,
		Recipient: carol,
		KeyHash:   uuid.NewString(),
		ExpiresAt: time.Now().Add(proxyTTL),
		Caller:    alice,
	})
	if err != nil {
		return err
	}
	logger.InfoContext(ctx, "issued proxy key", logKeyProxyID, string(proxyID))

	if err := engine.LogProxyAccess(ctx, proxyID, carol); err != nil {
		return err
	}

	// Handing the record to Bob revokes Carol's key in the same step.
	if err := engine.TransferOwnership(ctx, record, bob, alice); err != nil {
		return err
	}
	if engine.IsProxyKeyValid(proxyID) {
		return fmt.Errorf("proxy key %s survived the ownership transfer", proxyID)
	}

	printTrail(engine.Trail())
	return nil
}

func printTrail(trail *audit.Trail) {
	entries := trail.Tail(trail.Len())
	fmt.Printf("audit trail (%d entries):\n", len(entries))
	for _, entry := range entries {
		fmt.Printf("  %s  %-20s  %+v\n",
			entry.Timestamp.Format(time.RFC3339), entry.Kind, entry.Event)
	}
}
