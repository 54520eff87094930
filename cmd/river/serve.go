package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/rowetechinc/river/internal/bridge"
	"github.com/rowetechinc/river/internal/config"
	"github.com/rowetechinc/river/internal/dash"
	"github.com/rowetechinc/river/internal/decoder"
	"github.com/rowetechinc/river/internal/health"
	"github.com/rowetechinc/river/internal/logging"
	"github.com/rowetechinc/river/internal/serialport"
	"github.com/rowetechinc/river/internal/sim"
	"github.com/rowetechinc/river/internal/ws"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the bridge server",
	Long: `Start the bridge server.

The server:
  - loads configuration (YAML or TOML, by extension; defaults if missing)
  - optionally starts a pty-backed simulated ADCP
  - serves the HTTP control API and the /ws event stream
  - publishes a status_report heartbeat

It runs until interrupted (Ctrl+C) or it receives SIGTERM.

Example:
  river serve -c river.yaml
  river serve --simulate --connect --port 9090`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringP("config", "c", "river.yaml", "path to config file")
	serveCmd.Flags().Bool("simulate", false, "start the simulated ADCP")
	serveCmd.Flags().Bool("connect", false, "connect to serial.default_port (or the simulator) at startup")
	serveCmd.Flags().Int("port", 0, "override server port")
	serveCmd.Flags().String("log-level", "", "override logging level")
}

func runServe(cmd *cobra.Command, args []string) error {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadOrDefault(path)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if port, _ := cmd.Flags().GetInt("port"); port > 0 {
		cfg.Server.Port = port
	}
	if lvl, _ := cmd.Flags().GetString("log-level"); lvl != "" {
		cfg.Logging.Level = lvl
	}
	if simulate, _ := cmd.Flags().GetBool("simulate"); simulate {
		cfg.Simulator.Enabled = true
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logger := logging.New(cfg.Logging, "river")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	registry := serialport.NewRegistry(serialport.System{ReadTimeout: cfg.Serial.ReadTimeout})
	autoPort := cfg.Serial.DefaultPort

	if cfg.Simulator.Enabled {
		dev, err := startSimulator(ctx, cfg.Simulator, logger)
		if err != nil {
			return fmt.Errorf("starting simulator: %w", err)
		}
		defer dev.Close()
		registry.Register(dev.Name(), dev)
		if autoPort == "" {
			autoPort = dev.Name()
		}
	}

	broadcaster := ws.NewBroadcaster(cfg.Broadcast.Namespace, cfg.Broadcast.ClientBuffer, cfg.Broadcast.MaxClients, logger)
	defer broadcaster.Close()

	mgr := bridge.New(registry, func() decoder.Codec { return decoder.NewLineCodec() },
		broadcaster, bridge.OptionsFromConfig(cfg), logger)
	board := dash.NewBoard(cfg.Dashboard.Capacity, cfg.Telemetry.TimestampFormat)
	mgr.SetSink(board)
	defer mgr.Disconnect()

	broadcaster.SetSnapshot(func() (string, any) {
		return bridge.EventSessionState, mgr.State()
	})

	go mgr.RunHeartbeat(ctx, cfg.Heartbeat.Interval, cfg.Heartbeat.Message)

	server := ws.NewServer(mgr, broadcaster, cfg.Server.AllowedOrigins, logger)
	server.SetBoard(board)
	server.SetDefaultBaud(cfg.Serial.DefaultBaud)
	if sampler, err := health.NewSampler(); err == nil {
		server.SetSampler(sampler)
	} else {
		logger.Warn().Err(err).Msg("process health unavailable")
	}

	mux := http.NewServeMux()
	server.SetupRoutes(mux)

	if connect, _ := cmd.Flags().GetBool("connect"); connect {
		if autoPort == "" {
			logger.Warn().Msg("--connect given but no serial.default_port configured")
		} else if _, err := mgr.Connect(autoPort, cfg.Serial.DefaultBaud); err != nil {
			logger.Error().Err(err).Msg("startup connect failed")
		}
	}

	err = ws.ListenAndServe(ctx, cfg.Addr(), mux, logger)
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server: %w", err)
	}
	logger.Info().Msg("shutting down")
	return nil
}

func startSimulator(ctx context.Context, cfg config.SimulatorConfig, logger zerolog.Logger) (*sim.Device, error) {
	dev, err := sim.New(sim.Config{
		Name:        cfg.Name,
		Interval:    cfg.EnsembleInterval,
		StartNumber: cfg.StartNumber,
		BaseVoltage: cfg.BaseVoltage,
	}, logger)
	if err != nil {
		return nil, err
	}
	go dev.Run(ctx)
	logger.Info().Str("port", dev.Name()).Str("path", dev.Path()).Msg("simulator running")
	return dev, nil
}
