package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spotwall/radbridge/pkg/config"
	"github.com/spotwall/radbridge/pkg/disconnect"
	"github.com/spotwall/radbridge/pkg/metrics"
	"github.com/spotwall/radbridge/pkg/mikrotik"
	"github.com/spotwall/radbridge/pkg/reconcile"
	"github.com/spotwall/radbridge/pkg/secrets"
	"github.com/spotwall/radbridge/pkg/store"
	"go.uber.org/zap"
)

var (
	version = "dev"
	commit  = "unknown"
)

var (
	configFile string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "radbridge",
	Short: "Subscriber session control for RADIUS NAS and RouterOS devices",
	Long: `radbridge coordinates operator session control across two systems:
the RADIUS accounting ledger (kick, stale sweep) and a Mikrotik
router's live session tables (active hosts, DHCP leases, IP bindings).`,
	Version:       fmt.Sprintf("%s (commit: %s)", version, commit),
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c",
		"/etc/radbridge/config.yaml", "Path to config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info",
		"Log level (debug, info, warn, error)")

	rootCmd.AddCommand(kickCmd)
	rootCmd.AddCommand(sweepCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(sessionsCmd)
	rootCmd.AddCommand(nasCmd)
	rootCmd.AddCommand(routerCmd)
	rootCmd.AddCommand(hostsCmd)
	rootCmd.AddCommand(leasesCmd)
	rootCmd.AddCommand(bindingsCmd)
}

func initLogger(level string) (*zap.Logger, error) {
	var zapLevel zap.AtomicLevel
	switch level {
	case "debug":
		zapLevel = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "info":
		zapLevel = zap.NewAtomicLevelAt(zap.InfoLevel)
	case "warn":
		zapLevel = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		zapLevel = zap.NewAtomicLevelAt(zap.ErrorLevel)
	default:
		return nil, fmt.Errorf("invalid log level: %s", level)
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zapLevel
	cfg.Encoding = "json"
	return cfg.Build()
}

// app holds the wiring shared by every command.
type app struct {
	cfg    *config.Config
	logger *zap.Logger
	store  *store.Store
}

func newApp() (*app, error) {
	logger, err := initLogger(logLevel)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	st, err := store.Open(cfg.Database.Path, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	return &app{cfg: cfg, logger: logger, store: st}, nil
}

func (a *app) close() {
	a.store.Close()
	a.logger.Sync()
}

func (a *app) transport() disconnect.Transport {
	if a.cfg.Disconnect.Transport == config.TransportSimulated {
		return disconnect.NewSimulatedTransport()
	}
	t := disconnect.NewUDPTransport(a.logger)
	t.Port = a.cfg.Disconnect.Port
	t.Timeout = a.cfg.Disconnect.Timeout.Std()
	return t
}

func (a *app) reconciler(m *metrics.Metrics) (*reconcile.Reconciler, error) {
	return reconcile.NewReconciler(a.store, a.transport(), a.logger, m)
}

func (a *app) sweeper(m *metrics.Metrics) (*reconcile.Sweeper, error) {
	return reconcile.NewSweeper(a.store, a.logger, m)
}

func (a *app) cipher() (secrets.Cipher, error) {
	key, err := a.cfg.CipherKey()
	if err != nil {
		return nil, err
	}
	return secrets.NewStaticKeyCipher(key)
}

func (a *app) bridge(m *metrics.Metrics) (*mikrotik.Bridge, error) {
	cipher, err := a.cipher()
	if err != nil {
		return nil, err
	}
	return mikrotik.NewBridge(a.store, cipher, a.logger, m,
		mikrotik.WithDialTimeout(a.cfg.Router.DialTimeout.Std()))
}
