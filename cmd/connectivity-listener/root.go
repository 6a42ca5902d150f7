package main

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"connectivity-listener/internal/config"
	"connectivity-listener/internal/host"
	"connectivity-listener/internal/logging"
	"connectivity-listener/internal/metrics"
	"connectivity-listener/internal/subscription"
	"connectivity-listener/internal/watcher"
)

type rootFlags struct {
	configPath string
	logLevel   string
	logFormat  string
	logFile    string
}

func newRootCmd() *cobra.Command {
	f := &rootFlags{}
	cmd := &cobra.Command{
		Use:   "connectivity-listener",
		Short: "Stream Wi-Fi and Bluetooth adapter state changes",
		Long: `connectivity-listener watches the host Wi-Fi (NetworkManager) and
Bluetooth (BlueZ) adapters and streams every state change, with the
previous and current state, to a single subscriber per adapter.`,
		Version:      version,
		SilenceUsage: true,
	}
	cmd.SetVersionTemplate(`{{printf "connectivity-listener version %s\n" .Version}}`)

	pf := cmd.PersistentFlags()
	pf.StringVarP(&f.configPath, "config", "c", "", "YAML config file (defaults when empty or missing)")
	pf.StringVar(&f.logLevel, "log-level", "", "override log.level (debug|info|warn|error)")
	pf.StringVar(&f.logFormat, "log-format", "", "override log.format (text|json)")
	pf.StringVar(&f.logFile, "log-file", "", "override log.file")

	cmd.AddCommand(newServeCmd(f))
	cmd.AddCommand(newWatchCmd(f))
	cmd.AddCommand(newVersionCmd())
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "connectivity-listener version %s\n", version)
		},
	}
}

// load reads the config and applies flag overrides.
func (f *rootFlags) load() (*config.Config, error) {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return nil, err
	}
	if f.logLevel != "" {
		cfg.Log.Level = f.logLevel
	}
	if f.logFormat != "" {
		cfg.Log.Format = f.logFormat
	}
	if f.logFile != "" {
		cfg.Log.File = f.logFile
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// stack is everything between the host and a transport.
type stack struct {
	cfg     *config.Config
	log     *slog.Logger
	host    host.Host
	metrics *metrics.Recorder
	mgr     *subscription.Manager
	closers []io.Closer
}

func newStack(f *rootFlags, logOut io.Writer) (*stack, error) {
	cfg, err := f.load()
	if err != nil {
		return nil, err
	}
	logger, logCloser, err := logging.New(logging.Options{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		Output:     logOut,
	})
	if err != nil {
		return nil, err
	}
	policy, err := cfg.BluetoothPolicy()
	if err != nil {
		return nil, err
	}

	h := host.New(host.Options{
		Adapter:          cfg.Bluetooth.Adapter,
		CapabilityGroups: cfg.CapabilityGroups(),
		Logger:           logger,
	})
	rec := metrics.New()
	wifi, err := watcher.NewWifi(h, watcher.WithLogger(logger), watcher.WithObserver(rec))
	if err != nil {
		return nil, err
	}
	bt, err := watcher.NewBluetooth(h, h, policy, watcher.WithLogger(logger), watcher.WithObserver(rec))
	if err != nil {
		return nil, err
	}
	mgr := subscription.New(map[subscription.StreamID]subscription.Watcher{
		subscription.StreamWifi:      wifi,
		subscription.StreamBluetooth: bt,
	}, subscription.WithLogger(logger), subscription.WithHooks(rec))

	return &stack{
		cfg:     cfg,
		log:     logger,
		host:    h,
		metrics: rec,
		mgr:     mgr,
		closers: []io.Closer{h, logCloser},
	}, nil
}

// Close tears down the subscriptions, then the host, then the log file.
func (s *stack) Close() {
	if err := s.mgr.Teardown(); err != nil {
		s.log.Warn("teardown", "err", err)
	}
	for _, c := range s.closers {
		if err := c.Close(); err != nil {
			s.log.Warn("close", "err", err)
		}
	}
}
