package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/sqlfront/proxy/cmd/sqlfrontd/httpapi"
	"github.com/sqlfront/proxy/pkg/backend"
	"github.com/sqlfront/proxy/pkg/commandlog"
	"github.com/sqlfront/proxy/pkg/config"
	"github.com/sqlfront/proxy/pkg/events"
	"github.com/sqlfront/proxy/pkg/executor"
	"github.com/sqlfront/proxy/pkg/failover"
	"github.com/sqlfront/proxy/pkg/health"
	"github.com/sqlfront/proxy/pkg/log"
	"github.com/sqlfront/proxy/pkg/memexec"
	"github.com/sqlfront/proxy/pkg/metrics"
	"github.com/sqlfront/proxy/pkg/recovery"
	"github.com/sqlfront/proxy/pkg/registry"
	"github.com/sqlfront/proxy/pkg/router"
	"github.com/sqlfront/proxy/pkg/strategy"
)

var (
	Version = "dev"
	Commit  = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "sqlfrontd",
	Short:   "sqlfrontd is a coordination proxy for homogeneous SQL replicas",
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf("sqlfrontd version %s\nCommit: %s\n", Version, Commit))
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")
	cobra.OnInitialize(initLogging)

	rootCmd.AddCommand(serveCmd)
}

func initLogging() {
	level, _ := rootCmd.PersistentFlags().GetString("log-level")
	jsonOut, _ := rootCmd.PersistentFlags().GetBool("log-json")
	log.Init(log.Config{Level: log.Level(level), JSONOutput: jsonOut})
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the proxy and block until shutdown",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().String("config", "sqlfront.yaml", "Path to the YAML configuration document")
}

func runServe(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	metrics.Init()

	reg := registry.New(log.Logger)
	logs := make(map[string]*commandlog.Log, len(cfg.Databases))
	execs := make(map[string]backend.Executor, len(cfg.Databases))

	for _, db := range cfg.Databases {
		exec := memexec.New()
		execs[db.Name] = exec
		reg.Add(db.Name, exec, db.EffectiveWeight(), false)

		l, err := commandlog.Open(db.Name, commandlog.PathFor(cfg.CommandLogDir, db.Name), log.Logger)
		if err != nil {
			return err
		}
		logs[db.Name] = l
	}

	initial, _ := strategy.ByName(cfg.Strategy)
	rt := router.New(reg, initial, log.Logger)
	facade := executor.New(rt, reg, logs, log.Logger)

	bus := events.NewBus(log.Logger)
	bus.Subscribe(failover.New(reg, log.Logger))
	bus.Subscribe(recovery.New(reg, logs, execs, log.Logger))

	monitor := health.NewMonitor(bus, cfg.HealthTimeout(), log.Logger)
	for name, exec := range execs {
		monitor.AddNode(name, exec)
	}
	monitor.RunCheck(context.Background())
	loop := health.NewLoop(monitor, cfg.HealthInterval(), log.Logger)
	loop.Start()
	defer loop.Stop()

	var servers []*http.Server

	if cfg.Metrics.ListenAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		srv := &http.Server{Addr: cfg.Metrics.ListenAddr, Handler: mux}
		servers = append(servers, srv)
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Logger.Error().Err(err).Msg("metrics server stopped")
			}
		}()
		log.Logger.Info().Str("addr", cfg.Metrics.ListenAddr).Msg("metrics endpoint listening")
	}

	if cfg.HTTP.ListenAddr != "" {
		api := httpapi.New(facade, reg, rt, bus, log.Logger)
		srv := &http.Server{Addr: cfg.HTTP.ListenAddr, Handler: api.Handler()}
		servers = append(servers, srv)
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Logger.Error().Err(err).Msg("demo http server stopped")
			}
		}()
		log.Logger.Info().Str("addr", cfg.HTTP.ListenAddr).Msg("demo http surface listening")
	}

	log.Logger.Info().Int("nodes", len(cfg.Databases)).Str("strategy", rt.StrategyName()).Msg("sqlfrontd started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh
	log.Logger.Info().Msg("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for _, srv := range servers {
		_ = srv.Shutdown(ctx)
	}

	return nil
}
