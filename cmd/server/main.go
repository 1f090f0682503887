package main

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"table_router/pkg/api"
	"table_router/pkg/graph"
	"table_router/pkg/routing"
)

var logger = log.With("component", "server")

// Config is the TOML server configuration. Flags override file values.
type Config struct {
	GraphPath     string `toml:"graph_path"`
	Port          int    `toml:"port"`
	CORSOrigin    string `toml:"cors_origin"`
	MaxConcurrent int    `toml:"max_concurrent"`
	Algorithm     string `toml:"algorithm"` // "ch" or "mld"
}

func defaultServerConfig() Config {
	return Config{
		GraphPath: "routing.bin",
		Port:      8080,
		Algorithm: "ch",
	}
}

func main() {
	var configPath string
	cfg := defaultServerConfig()

	cmd := &cobra.Command{
		Use:   "server",
		Short: "Serve route and table queries over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			if configPath != "" {
				fileCfg := defaultServerConfig()
				if _, err := toml.DecodeFile(configPath, &fileCfg); err != nil {
					return fmt.Errorf("load config %s: %w", configPath, err)
				}
				// Flags set on the command line win over the file.
				if !cmd.Flags().Changed("graph") {
					cfg.GraphPath = fileCfg.GraphPath
				}
				if !cmd.Flags().Changed("port") {
					cfg.Port = fileCfg.Port
				}
				if !cmd.Flags().Changed("cors-origin") {
					cfg.CORSOrigin = fileCfg.CORSOrigin
				}
				if !cmd.Flags().Changed("max-concurrent") {
					cfg.MaxConcurrent = fileCfg.MaxConcurrent
				}
				if !cmd.Flags().Changed("algorithm") {
					cfg.Algorithm = fileCfg.Algorithm
				}
			}
			return run(cfg)
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "path to TOML config file")
	cmd.Flags().StringVar(&cfg.GraphPath, "graph", cfg.GraphPath, "path to preprocessed routing binary")
	cmd.Flags().IntVar(&cfg.Port, "port", cfg.Port, "HTTP port")
	cmd.Flags().StringVar(&cfg.CORSOrigin, "cors-origin", cfg.CORSOrigin, "CORS allowed origin (empty = same-origin)")
	cmd.Flags().IntVar(&cfg.MaxConcurrent, "max-concurrent", cfg.MaxConcurrent, "max in-flight requests (0 = 2x CPUs)")
	cmd.Flags().StringVar(&cfg.Algorithm, "algorithm", cfg.Algorithm, `table algorithm: "ch" or "mld"`)

	if err := cmd.Execute(); err != nil {
		logger.Error("server failed", "err", err)
		os.Exit(1)
	}
}

func run(cfg Config) error {
	start := time.Now()

	logger.Info("loading routing data", "path", cfg.GraphPath)
	data, err := graph.ReadBinary(cfg.GraphPath)
	if err != nil {
		return fmt.Errorf("load routing data: %w", err)
	}
	logger.Info("loaded",
		"nodes", data.Base.NumNodes,
		"base_edges", data.Base.NumEdges,
		"overlay_edges", len(data.Contracted.Head))

	var facade routing.Facade
	switch cfg.Algorithm {
	case "ch", "":
		cfg.Algorithm = "ch"
		facade = data.Contracted
	case "mld":
		mlg := data.MLD()
		if mlg == nil {
			return fmt.Errorf("routing data carries no partition; re-run preprocess without --skip-mld")
		}
		facade = mlg
	default:
		return fmt.Errorf("unknown algorithm %q", cfg.Algorithm)
	}

	logger.Info("building spatial index")
	engine := routing.NewEngine(data.Contracted, data.Base)

	logger.Info("ready", "elapsed", time.Since(start).Round(time.Millisecond))

	srvCfg := api.DefaultConfig(fmt.Sprintf(":%d", cfg.Port))
	srvCfg.CORSOrigin = cfg.CORSOrigin
	if cfg.MaxConcurrent > 0 {
		srvCfg.MaxConcurrent = cfg.MaxConcurrent
	}

	stats := api.StatsResponse{
		NumNodes:        data.Base.NumNodes,
		NumBaseEdges:    data.Base.NumEdges,
		NumOverlayEdges: len(data.Contracted.Head),
		Algorithm:       cfg.Algorithm,
	}

	handlers := api.NewHandlers(engine, engine.Snapper(), facade, stats)
	srv := api.NewServer(srvCfg, handlers)

	return api.ListenAndServe(srv)
}
