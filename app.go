package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/moosethebrown/drone-ws-bridge/adapters/dbus"
	"github.com/moosethebrown/drone-ws-bridge/adapters/mqtt"
	"github.com/moosethebrown/drone-ws-bridge/adapters/ws"
	"github.com/moosethebrown/drone-ws-bridge/config"
	"github.com/moosethebrown/drone-ws-bridge/core"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 5 * time.Second

type App struct {
	cfg         *config.Config
	logger      *zerolog.Logger
	busAdapter  *dbus.Adapter
	mqttAdapter *mqtt.Adapter
	wsServer    *ws.Server
	listener    net.Listener
	theCore     *core.Core
}

func NewApp(cfg *config.Config) *App {
	app := &App{
		cfg: cfg,
	}

	logLevel, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		fmt.Printf("Invalid logLevel: %s, error: %s\n", cfg.LogLevel, err.Error())
		logLevel = zerolog.InfoLevel
	}

	logger := zerolog.New(os.Stdout).With().Timestamp().Logger().Level(logLevel)
	app.logger = &logger

	return app
}

// Init connects to the bus and binds the listening socket. Either failure
// is fatal to the process.
func (app *App) Init() error {
	coreLogger := app.logger.With().Str("component", "core").Logger()
	app.theCore = core.NewCore(nil, nil, app.cfg.AnnounceInterval,
		app.cfg.EventQueueSize, &coreLogger)

	busLogger := app.logger.With().Str("component", "dbus").Logger()
	busAdapter, err := dbus.New(app.cfg.Bus.Address, &busLogger)
	if err != nil {
		return err
	}
	app.busAdapter = busAdapter
	app.theCore.SetDispatcher(app.busAdapter)

	if app.cfg.Mqtt.Enabled() {
		mqttLogger := app.logger.With().Str("component", "mqtt").Logger()
		app.mqttAdapter = mqtt.NewAdapter(app.cfg.Mqtt.Broker,
			time.Duration(app.cfg.Mqtt.ConnTimeout)*time.Millisecond,
			app.cfg.Mqtt.Username,
			app.cfg.Mqtt.Password,
			app.cfg.Mqtt.DroneId,
			app.cfg.Mqtt.AnnounceTopic,
			time.Duration(app.cfg.Mqtt.AnnounceTimeout)*time.Millisecond,
			time.Duration(app.cfg.Mqtt.DisconnectTimeout)*time.Millisecond,
			app.cfg.Mqtt.CertCheck,
			app.cfg.EventQueueSize,
			&mqttLogger)
		app.theCore.SetEventSink(app.mqttAdapter)
	}

	wsLogger := app.logger.With().Str("component", "ws").Logger()
	app.wsServer = ws.NewServer(app.theCore, &wsLogger)

	ln, err := ws.Listen(app.cfg.ListenAddr)
	if err != nil {
		app.busAdapter.Close()
		return err
	}
	app.listener = ln

	return nil
}

// Run serves until ctx is cancelled or the acceptor fails.
func (app *App) Run(ctx context.Context) error {
	app.logger.Info().Str("listen", app.cfg.ListenAddr).Msg("starting drone bridge")
	defer app.busAdapter.Close()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		app.theCore.Run()
		return nil
	})

	if app.mqttAdapter != nil {
		g.Go(func() error {
			// telemetry is optional, a broker outage must not stop the bridge
			if err := app.mqttAdapter.Run(); err != nil {
				app.logger.Error().Err(err).Msg("mqtt telemetry disabled")
			}
			return nil
		})
	}

	g.Go(func() error {
		return app.wsServer.Serve(app.listener)
	})

	g.Go(func() error {
		<-gctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := app.wsServer.Shutdown(shutdownCtx); err != nil {
			app.logger.Warn().Err(err).Msg("websocket server shutdown")
		}
		if app.mqttAdapter != nil {
			app.mqttAdapter.Stop()
		}
		app.theCore.Stop()
		return nil
	})

	return g.Wait()
}
