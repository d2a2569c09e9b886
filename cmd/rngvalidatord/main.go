// Copyright 2025 Certen Protocol
//
// rngvalidatord bootstraps one randomness-beacon validator node: it
// loads configuration, opens the CometBFT node backed by the
// randomness ABCI application, starts the post-block driver and the
// HTTP ingress (including /health) and metrics servers, and shuts everything down
// gracefully on SIGINT/SIGTERM. Collaborators are constructed up front,
// background goroutines are started, then the process blocks on a
// signal channel and shuts down in reverse order.

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

	dbm "github.com/cometbft/cometbft-db"
	cmtconfig "github.com/cometbft/cometbft/config"
	"github.com/cometbft/cometbft/crypto/ed25519"
	cmtlog "github.com/cometbft/cometbft/libs/log"
	"github.com/cometbft/cometbft/node"
	"github.com/cometbft/cometbft/p2p"
	"github.com/cometbft/cometbft/privval"
	"github.com/cometbft/cometbft/proxy"
	cmttypes "github.com/cometbft/cometbft/types"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/certen/rng-validator/pkg/auditlog"
	"github.com/certen/rng-validator/pkg/config"
	"github.com/certen/rng-validator/pkg/firestoresync"
	"github.com/certen/rng-validator/pkg/ingress"
	"github.com/certen/rng-validator/pkg/kvdb"
	"github.com/certen/rng-validator/pkg/metrics"
	"github.com/certen/rng-validator/pkg/rngabci"
	"github.com/certen/rng-validator/pkg/rngdriver"
	"github.com/certen/rng-validator/pkg/rngtx"
)

func main() {
	homeDir := flag.String("home", "", "CometBFT home directory (overrides RNG_HOME_DIR)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if *homeDir != "" {
		cfg.HomeDir = *homeDir
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	logger := log.New(log.Writer(), "[rngvalidatord] ", log.LstdFlags)

	var sinks []rngabci.RoundSink

	var auditStore *auditlog.Store
	if cfg.AuditLogEnabled {
		auditStore, err = auditlog.Open(auditlog.Config{
			URL:             cfg.DatabaseURL,
			MaxOpenConns:    cfg.DatabaseMaxConns,
			MaxIdleConns:    cfg.DatabaseMinConns,
			ConnMaxIdleTime: cfg.DatabaseConnMaxIdleTime(),
			ConnMaxLifetime: cfg.DatabaseConnMaxLifetime(),
		})
		if err != nil {
			log.Fatalf("open audit log: %v", err)
		}
		if err := auditStore.Migrate(context.Background()); err != nil {
			log.Fatalf("migrate audit log: %v", err)
		}
		sinks = append(sinks, auditStore)
		defer auditStore.Close()
	}

	firestoreMirror, err := firestoresync.New(context.Background(), firestoresync.Config{
		ProjectID:       cfg.FirebaseProjectID,
		CredentialsFile: cfg.FirebaseCredentialsFile,
		Enabled:         cfg.FirestoreEnabled,
	})
	if err != nil {
		log.Fatalf("init firestore mirror: %v", err)
	}
	sinks = append(sinks, firestoreMirror)
	defer firestoreMirror.Close()

	rawDB, err := dbm.NewDB("rng_state", dbm.GoLevelDBBackend, filepath.Join(cfg.HomeDir, "data"))
	if err != nil {
		log.Fatalf("open state db: %v", err)
	}
	kv := kvdb.NewAdapter(rawDB)

	app := rngabci.New(kv, rngtx.Config{PermissiveFinalisation: cfg.PermissiveFinalisation}, sinks...)

	cometCfg := cmtconfig.DefaultConfig()
	cometCfg.SetRoot(cfg.HomeDir)
	cometCfg.Moniker = cfg.ValidatorID

	pv := privval.LoadFilePV(cometCfg.PrivValidatorKeyFile(), cometCfg.PrivValidatorStateFile())
	nodeKey, err := p2p.LoadNodeKey(cometCfg.NodeKeyFile())
	if err != nil {
		log.Fatalf("load node key: %v", err)
	}

	tmLogger := cmtlog.NewTMLogger(cmtlog.NewSyncWriter(os.Stdout)).With("module", "cometbft")

	dbProvider := cmtconfig.DBProvider(func(ctx *cmtconfig.DBContext) (dbm.DB, error) {
		return dbm.NewDB(ctx.ID, dbm.BackendType(cometCfg.DBBackend), filepath.Join(cometCfg.RootDir, "data"))
	})

	n, err := node.NewNode(
		cometCfg,
		pv,
		nodeKey,
		proxy.NewLocalClientCreator(app),
		node.DefaultGenesisDocProviderFunc(cometCfg),
		dbProvider,
		node.DefaultMetricsProvider(cometCfg.Instrumentation),
		tmLogger,
	)
	if err != nil {
		log.Fatalf("create cometbft node: %v", err)
	}

	if err := n.Start(); err != nil {
		log.Fatalf("start cometbft node: %v", err)
	}
	logger.Printf("CometBFT node started, moniker=%s", cometCfg.Moniker)

	broadcaster, err := ingress.NewCometBFTBroadcaster(cfg.RPCAddr)
	if err != nil {
		log.Fatalf("create rpc broadcaster: %v", err)
	}

	var history ingress.HistoryReader
	if auditStore != nil {
		history = auditStore
	}

	var ingressOpts []ingress.Option
	if history != nil {
		ingressOpts = append(ingressOpts, ingress.WithHistoryReader(history))
	}
	ingressServer := ingress.New(broadcaster, app, ingressOpts...)
	ingressMux := http.NewServeMux()
	ingressServer.Routes(ingressMux)

	reg := prometheus.NewRegistry()
	metrics.New(reg)
	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", metrics.Handler(reg))

	ingressSrv := &http.Server{Addr: cfg.ListenAddr, Handler: ingressMux}
	metricsSrv := &http.Server{Addr: cfg.MetricsAddr, Handler: metricsMux}

	go func() {
		logger.Printf("ingress listening on %s", cfg.ListenAddr)
		if err := ingressSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("ingress server: %v", err)
		}
	}()
	go func() {
		logger.Printf("metrics listening on %s", cfg.MetricsAddr)
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("metrics server: %v", err)
		}
	}()

	identity := rngdriver.Identity{
		PubKey:  pv.Key.PubKey.(ed25519.PubKey),
		PrivKey: pv.Key.PrivKey.(ed25519.PrivKey),
	}
	driver := rngdriver.New(identity, &rpcSender{broadcaster: broadcaster}, rngdriver.NewPool(cfg.VdfWorkerConcurrency))

	driverCtx, cancelDriver := context.WithCancel(context.Background())
	go runPostBlockDriver(driverCtx, logger, n, app, driver)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Println("shutting down...")
	cancelDriver()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := ingressSrv.Shutdown(shutdownCtx); err != nil {
		logger.Printf("ingress shutdown error: %v", err)
	}
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		logger.Printf("metrics shutdown error: %v", err)
	}
	if err := n.Stop(); err != nil {
		logger.Printf("cometbft node stop error: %v", err)
	}
	logger.Println("stopped")
}

// runPostBlockDriver subscribes to the node's own event bus for newly
// committed blocks and drives the seed-commitment/VDF-evaluation state
// machine in pkg/rngdriver, rather than polling on a separate timer.
func runPostBlockDriver(ctx context.Context, logger *log.Logger, n *node.Node, app *rngabci.App, driver *rngdriver.Driver) {
	const subscriber = "rngvalidatord-post-block"
	eventBus := n.EventBus()

	out, err := eventBus.Subscribe(ctx, subscriber, cmttypes.EventQueryNewBlock, 10)
	if err != nil {
		logger.Printf("subscribe to new block events: %v", err)
		return
	}
	defer eventBus.Unsubscribe(context.Background(), subscriber, cmttypes.EventQueryNewBlock)

	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-out:
			_ = msg
			driver.OnBlockCommitted(ctx, app.Snapshot(), app.ValidatorKeys())
		}
	}
}

// rpcSender adapts ingress.Broadcaster to rngdriver.Sender by encoding
// signed envelopes before broadcasting.
type rpcSender struct {
	broadcaster *ingress.CometBFTBroadcaster
}

func (r *rpcSender) SendSeedCommitment(ctx context.Context, env rngtx.SignedSeedCommitment) error {
	raw, err := rngtx.EncodeSeedCommitment(env)
	if err != nil {
		return fmt.Errorf("encode seed commitment: %w", err)
	}
	_, code, logMsg, err := r.broadcaster.BroadcastTxSync(ctx, raw)
	if err != nil {
		return fmt.Errorf("broadcast seed commitment: %w", err)
	}
	if code != 0 {
		return fmt.Errorf("seed commitment rejected: %s", logMsg)
	}
	return nil
}

func (r *rpcSender) SendVdfResult(ctx context.Context, env rngtx.SignedVdfResult) error {
	raw, err := rngtx.EncodeVdfResult(env)
	if err != nil {
		return fmt.Errorf("encode vdf result: %w", err)
	}
	_, code, logMsg, err := r.broadcaster.BroadcastTxSync(ctx, raw)
	if err != nil {
		return fmt.Errorf("broadcast vdf result: %w", err)
	}
	if code != 0 {
		return fmt.Errorf("vdf result rejected: %s", logMsg)
	}
	return nil
}
