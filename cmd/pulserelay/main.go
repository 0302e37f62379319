package main

import (
	"context"
	"os"

	"github.com/joho/godotenv"

	"pulserelay/internal/app"
	"pulserelay/pkg/config"
	"pulserelay/pkg/logger"
	"pulserelay/pkg/shutdown"
)

// build metadata - set via ldflags during build/release
var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

func main() {
	_ = godotenv.Load(".env")

	flags := config.ParseConfigFlags()
	fileCfg, fileExists, err := config.ParseConfigFile(flags)
	if err != nil {
		logger.Init("", "")
		shutdown.Abort("config parse failed", err, "")
	}
	envCfg, envUsed := config.ParseConfigEnvs()

	eff, err := config.LoadEffectiveConfig(flags, fileCfg, fileExists, envCfg, envUsed)
	if err != nil {
		logger.Init("", "")
		shutdown.Abort("config resolution failed", err, "")
	}

	logger.Init(eff.Config.Logging.Level, eff.Config.Logging.Format)

	a, err := app.New(eff, version, commit, buildDate)
	if err != nil {
		shutdown.Abort("startup failed", err, eff.DBPath)
	}

	ctx, cancel := shutdown.SetupSignalHandler(context.Background())
	defer cancel()
	if err := a.Run(ctx); err != nil {
		logger.Error("server_exit", "error", err)
		os.Exit(1)
	}
}
