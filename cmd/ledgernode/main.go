// Command ledgernode runs one validator: storage, world-state, chain,
// mempool, contract host, consensus, flood broadcast, and the HTTP query
// surface, wired together by internal/node. Grounded on the teacher's
// cmd/rechain/main.go bootstrap sequence and flag/signal handling.
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/coldchain/ledger/internal/api"
	"github.com/coldchain/ledger/internal/cas"
	"github.com/coldchain/ledger/internal/node"
	"github.com/coldchain/ledger/internal/security"
	"github.com/coldchain/ledger/pkg/config"
	"go.uber.org/zap"
)

func main() {
	configFile := flag.String("config", "", "path to configuration file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := buildLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "build logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	audit := security.NewAuditLogger(cfg.Security.AuditEnabled, logger)

	var objectStore *cas.CAS
	if cfg.CAS.Enabled {
		objectStore, err = cas.NewCAS(cfg.CAS.Endpoint, cfg.CAS.AccessKey, cfg.CAS.SecretKey, cfg.CAS.Bucket, cfg.CAS.UseSSL)
		if err != nil {
			logger.Fatal("initialize evidence store", zap.Error(err))
		}
	}

	n, err := node.New(node.Options{
		NodeID:              cfg.Node.ID,
		Validators:          cfg.Node.Validators,
		PrimaryID:           cfg.Node.PrimaryID,
		DataDir:             cfg.Node.DataDir,
		ListenAddress:       cfg.Network.ListenAddress,
		BootstrapPeers:      cfg.Network.Bootstrap,
		GenesisContract:     cfg.Genesis.Contract,
		GenesisContractArgs: cfg.Genesis.Args,
	}, logger)
	if err != nil {
		logger.Fatal("start node", zap.Error(err))
	}
	defer n.Close()

	audit.LogSecurityEvent("node_start", fmt.Sprintf("node_id=%s", cfg.Node.ID))

	apiServer := api.NewServer(n, objectStore, logger)
	go func() {
		if err := apiServer.Start(cfg.API.Address); err != nil {
			logger.Warn("API server stopped", zap.Error(err))
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("shutting down")
	audit.LogSecurityEvent("node_stop", fmt.Sprintf("node_id=%s", cfg.Node.ID))
	if err := apiServer.Stop(); err != nil {
		logger.Warn("error stopping API server", zap.Error(err))
	}
}

func buildLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	var zcfg zap.Config
	if cfg.Format == "console" {
		zcfg = zap.NewDevelopmentConfig()
	} else {
		zcfg = zap.NewProductionConfig()
	}
	if cfg.Output != "" {
		zcfg.OutputPaths = []string{cfg.Output}
	}
	if level, err := zap.ParseAtomicLevel(cfg.Level); err == nil {
		zcfg.Level = level
	}
	return zcfg.Build()
}
