package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/scenesmith/scenepilot/internal/catalog"
	"github.com/scenesmith/scenepilot/internal/config"
	"github.com/scenesmith/scenepilot/internal/db"
	"github.com/scenesmith/scenepilot/internal/dispatch"
	"github.com/scenesmith/scenepilot/internal/embed"
	"github.com/scenesmith/scenepilot/internal/expand"
	"github.com/scenesmith/scenepilot/internal/guard"
	"github.com/scenesmith/scenepilot/internal/logging"
	"github.com/scenesmith/scenepilot/internal/match"
	"github.com/scenesmith/scenepilot/internal/resolve"
	"github.com/scenesmith/scenepilot/internal/router"
	"github.com/scenesmith/scenepilot/internal/scene"
	"github.com/scenesmith/scenepilot/internal/store"
	"github.com/scenesmith/scenepilot/internal/ui"
)

var (
	version     = "1.0.0"
	configPath  string
	dbPath      string
	catalogDir  string
	modelDir    string
	bridgeURL   string
	dryRun      bool
	debug       bool
	showVersion bool
)

func init() {
	flag.StringVar(&configPath, "config", config.GetConfigPath(), "Path to configuration file")
	flag.StringVar(&dbPath, "db", "", "Path to SQLite database (overrides config)")
	flag.StringVar(&catalogDir, "catalog", "", "Workflow catalog directory (overrides config)")
	flag.StringVar(&modelDir, "model", "", "Embedding model directory (overrides config)")
	flag.StringVar(&bridgeURL, "bridge", "", "Engine bridge URL (overrides config)")
	flag.BoolVar(&dryRun, "dry-run", false, "Log actions instead of dispatching them")
	flag.BoolVar(&debug, "debug", false, "Enable debug logging")
	flag.BoolVar(&showVersion, "version", false, "Show version information")
}

func main() {
	flag.Parse()

	if showVersion {
		fmt.Printf("ScenePilot v%s\n", version)
		fmt.Println("Goal-directed workflow router for 3D scene authoring")
		return
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	applyOverrides(cfg)

	logger, err := logging.New(logging.Options{Debug: cfg.Debug, Format: cfg.LogFormat})
	if err != nil {
		log.Fatalf("Failed to set up logging: %v", err)
	}
	defer logger.Sync()

	database, err := db.New(cfg.DBPath)
	if err != nil {
		logger.Fatalw("failed to open database", "path", cfg.DBPath, "error", err)
	}
	defer database.Close()

	cat, err := catalog.Load(cfg.CatalogDir)
	if err != nil {
		logger.Fatalw("failed to load workflow catalog", "dir", cfg.CatalogDir, "error", err)
	}
	logger.Infow("catalog loaded", "workflows", cat.Len())

	onnx, err := embed.NewONNXEncoder(cfg.ModelDir)
	if err != nil {
		logger.Fatalw("failed to load embedding model", "dir", cfg.ModelDir, "error", err)
	}
	defer onnx.Close()
	encoder := embed.NewCached(onnx)

	ensemble, err := match.NewEnsemble(cat, encoder, cfg.Match, logger)
	if err != nil {
		logger.Fatalw("failed to build matcher", "error", err)
	}

	engine := scene.NewHTTPEngine(cfg.BridgeURL)
	cache := scene.NewCache(engine, time.Duration(cfg.Scene.SummaryTTLSeconds)*time.Second)

	var dispatcher dispatch.Dispatcher = dispatch.NewHTTPDispatcher(cfg.BridgeURL)
	if cfg.DryRun {
		logger.Info("dry-run mode: actions will be logged, not dispatched")
		dispatcher = dispatch.NewDryRun(logger)
	}

	r := router.New(router.Deps{
		Catalog:    cat,
		Cache:      cache,
		Ensemble:   ensemble,
		Resolver:   resolve.New(store.New(database.Conn(), encoder), cfg.Learned.Threshold, logger),
		Expander:   expand.New(logger),
		Chain:      guard.NewChain(cache, logger),
		Dispatcher: dispatcher,
		GoalLog:    database,
		Log:        logger,
	})

	repl := ui.NewREPL(r, cat, database.Conn(), os.Stdin, os.Stdout, version)

	if args := flag.Args(); len(args) > 0 {
		// One-shot mode: treat all arguments as a single goal.
		if err := repl.HandleOnce(strings.Join(args, " ")); err != nil {
			logger.Fatalw("goal failed", "error", err)
		}
		return
	}

	if err := repl.Start(); err != nil {
		logger.Fatalw("interactive session failed", "error", err)
	}
}

// applyOverrides lets flags win over the configuration file.
func applyOverrides(cfg *config.Config) {
	if dbPath != "" {
		cfg.DBPath = dbPath
	}
	if catalogDir != "" {
		cfg.CatalogDir = catalogDir
	}
	if modelDir != "" {
		cfg.ModelDir = modelDir
	}
	if bridgeURL != "" {
		cfg.BridgeURL = bridgeURL
	}
	if dryRun {
		cfg.DryRun = true
	}
	if debug {
		cfg.Debug = true
	}
}
