package main

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/cuemby/kvs/pkg/config"
	"github.com/cuemby/kvs/pkg/engine"
	boltengine "github.com/cuemby/kvs/pkg/engine/bolt"
	"github.com/cuemby/kvs/pkg/engine/kv"
	"github.com/cuemby/kvs/pkg/log"
	"github.com/cuemby/kvs/pkg/metrics"
	"github.com/cuemby/kvs/pkg/pool"
	"github.com/cuemby/kvs/pkg/server"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "kvs-server",
	Short: "Run a kvs storage server",
	Long: `kvs-server serves the set/get/remove wire protocol over TCP
against a pluggable storage engine rooted at a data directory.`,
	RunE: runServer,
}

func init() {
	rootCmd.Flags().String("addr", "127.0.0.1:4000", "address to listen on")
	rootCmd.Flags().String("engine", "kvs", "storage engine: kvs or sled")
	rootCmd.Flags().String("dir", ".", "data directory")
	rootCmd.Flags().String("config", "", "optional YAML config file")
	rootCmd.Flags().String("log-level", "", "log level (debug, info, warn, error)")
	rootCmd.Flags().Bool("log-json", false, "output logs in JSON format")
	rootCmd.Flags().Int("pool-size", 8, "worker pool size")
	rootCmd.Flags().String("pool-kind", "shared-queue", "worker pool: naive, shared-queue, or work-stealing")
	rootCmd.Flags().String("metrics-addr", "", "address to serve /metrics on, empty disables it")
}

func runServer(cmd *cobra.Command, _ []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if v, _ := cmd.Flags().GetString("addr"); cmd.Flags().Changed("addr") {
		cfg.Addr = v
	}
	if v, _ := cmd.Flags().GetString("engine"); cmd.Flags().Changed("engine") {
		cfg.Engine = engine.Name(v)
	}
	if v, _ := cmd.Flags().GetString("log-level"); v != "" {
		cfg.LogLevel = log.Level(v)
	}

	logJSON, _ := cmd.Flags().GetBool("log-json")
	log.Init(log.Config{Level: cfg.LogLevel, JSONOutput: logJSON})

	dir, _ := cmd.Flags().GetString("dir")

	root, err := openEngine(cfg.Engine, dir, cfg.CompactionThresholdBytes)
	if err != nil {
		metrics.RegisterComponent("engine", false, err.Error())
		return err
	}
	metrics.RegisterComponent("engine", true, "")

	poolKind, _ := cmd.Flags().GetString("pool-kind")
	poolSize, _ := cmd.Flags().GetInt("pool-size")
	p, err := buildPool(poolKind, poolSize)
	if err != nil {
		metrics.RegisterComponent("pool", false, err.Error())
		return err
	}
	metrics.RegisterComponent("pool", true, "")

	if metricsAddr, _ := cmd.Flags().GetString("metrics-addr"); metricsAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", metrics.Handler())
			mux.Handle("/health", metrics.HealthHandler())
			mux.Handle("/live", metrics.LivenessHandler())
			log.WithComponent("server").Info().Str("addr", metricsAddr).Msg("serving metrics")
			if err := http.ListenAndServe(metricsAddr, mux); err != nil {
				log.WithComponent("server").Error().Err(err).Msg("metrics server stopped")
			}
		}()
	}

	srv := server.New(cfg.Addr, root, p)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sig
		log.WithComponent("server").Info().Msg("shutdown signal received")
		_ = srv.Stop()
	}()

	err = srv.Start()
	p.Shutdown()
	if closeErr := closeEngine(root); closeErr != nil && err == nil {
		err = closeErr
	}
	return err
}

// closeEngine releases root's resources. The log-structured and bolt
// engines both additionally expose Shutdown, which closes the shared
// store; for the log-structured engine Close alone only tears down this
// handle's reader, while Shutdown also closes the writer's active file.
// root here is always the handle Open returned, so it is safe to take the
// shared store down with it.
func closeEngine(root engine.Cloner) error {
	if sd, ok := root.(interface{ Shutdown() error }); ok {
		return sd.Shutdown()
	}
	return root.Close()
}

func openEngine(name engine.Name, dir string, compactionThreshold uint64) (engine.Cloner, error) {
	switch name {
	case engine.Sled:
		return boltengine.Open(dir)
	case engine.KVS, "":
		return kv.OpenWithThreshold(dir, compactionThreshold)
	default:
		return nil, fmt.Errorf("unknown engine %q", name)
	}
}

func buildPool(kind string, size int) (pool.Pool, error) {
	switch kind {
	case "naive":
		return pool.NewNaivePool(size)
	case "work-stealing":
		return pool.NewWorkStealingPool(size)
	case "shared-queue", "":
		return pool.NewSharedQueuePool(size)
	default:
		return nil, fmt.Errorf("unknown pool kind %q", kind)
	}
}
