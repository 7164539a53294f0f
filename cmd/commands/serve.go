package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/AlaaAmrAmin/concurrency-playground/internal/config"
	"github.com/AlaaAmrAmin/concurrency-playground/internal/gateway"
	"github.com/AlaaAmrAmin/concurrency-playground/internal/lifecycle"
	"github.com/AlaaAmrAmin/concurrency-playground/internal/runtime"
	"github.com/AlaaAmrAmin/concurrency-playground/internal/schedule"
)

// NewServeCommand returns the serve subcommand.
func NewServeCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Start the runtime and the inspection gateway",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "host",
				Usage: "Host to listen on",
			},
			&cli.IntFlag{
				Name:  "port",
				Usage: "Port to listen on",
			},
		},
		Action: runServe,
	}
}

func runServe(ctx context.Context, cmd *cli.Command) error {
	if cmd.Bool("debug") {
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})))
	}

	configPath := cmd.String("config")
	cfg, err := config.Load(configPath)
	if err != nil {
		slog.Warn("config not found, using defaults", "path", configPath, "error", err)
		cfg = config.Default()
	}

	if cmd.IsSet("host") {
		cfg.Gateway.Host = cmd.String("host")
	}
	if cmd.IsSet("port") {
		cfg.Gateway.Port = cmd.Int("port")
	}

	rt := runtime.New(cfg)
	defer rt.Stop()

	sch := schedule.New(schedule.Config{
		Tasks: rt.Tasks(),
		Bus:   rt.Bus(),
		Clock: rt.Scheduler().Clock(),
	})
	if err := sch.AddFromConfig(cfg.Schedules, rt.Domain); err != nil {
		return fmt.Errorf("register schedules: %w", err)
	}
	sch.Start()
	defer sch.Stop()

	mode, err := lifecycle.ParseMode(cfg.Lifecycle.SpawnMode)
	if err != nil {
		return fmt.Errorf("lifecycle config: %w", err)
	}
	hook := lifecycle.New(rt.Tasks(), rt.Bus(), mode)

	server := gateway.NewServer(rt, sch, hook, cfg.Gateway.Host, cfg.Gateway.Port)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	select {
	case <-ctx.Done():
		slog.Info("shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
