package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/moosethebrown/drone-ws-bridge/config"
	flag "github.com/spf13/pflag"
)

func main() {
	var configFile string
	flag.StringVarP(&configFile, "config", "c", "", "path to optional JSON configuration file")
	flag.Parse()

	cfg, err := config.NewConfig(configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading config: %s\n", err)
		os.Exit(1)
	}

	app := NewApp(cfg)
	if err := app.Init(); err != nil {
		app.logger.Error().Err(err).Msg("startup failed")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.Run(ctx); err != nil {
		app.logger.Error().Err(err).Msg("drone bridge terminated")
		os.Exit(1)
	}
}
