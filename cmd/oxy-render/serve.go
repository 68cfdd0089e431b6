package main

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/Carmen-Shannon/oxy-render/config"
	"github.com/Carmen-Shannon/oxy-render/engine/dispatcher"
	"github.com/Carmen-Shannon/oxy-render/engine/loader"
	"github.com/Carmen-Shannon/oxy-render/engine/profiler"
	"github.com/Carmen-Shannon/oxy-render/engine/renderer"
	"github.com/Carmen-Shannon/oxy-render/server"
	"github.com/urfave/cli"
)

// Serve runs the render server until SIGINT or SIGTERM.
func Serve(ctx *cli.Context) error {
	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}
	setupLogging(ctx, cfg.Log.Level, cfg.Log.Format)

	l := loader.NewLoader(loader.BackendTypeGLTF, loader.WithLocalModelDir(cfg.Models.LocalModelDir))

	msaa := renderer.MSAA4x
	if cfg.Render.DisableMSAA {
		msaa = renderer.MSAAOff
	}
	rc, err := renderer.NewRenderContext(renderer.BackendTypeWGPU,
		renderer.WithLoader(l),
		renderer.WithMSAA(msaa),
		renderer.WithForceSoftwareRenderer(cfg.Render.ForceFallbackAdapter),
		renderer.WithFetchWorkers(cfg.Render.TextureFetchWorkers),
		renderer.WithFetchTimeout(cfg.Render.FetchTimeout),
	)
	if err != nil {
		return err
	}
	defer rc.Release()

	d := dispatcher.NewDispatcher(rc,
		dispatcher.WithQueueCapacity(cfg.Render.QueueCapacity),
		dispatcher.WithProfiler(profiler.NewProfiler(cfg.Render.ProfileInterval)),
	)
	d.Start()
	defer d.Close()

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Noticef("serving models from %s", cfg.Models.LocalModelDir)
	return server.NewServer(d).Serve(sigCtx, cfg.Addr())
}

// loadConfig reads the config file and applies flag overrides. A missing default config file falls back
// to the built-in defaults; a missing file named explicitly is an error.
func loadConfig(ctx *cli.Context) (*config.Config, error) {
	path := ctx.String("config")
	cfg, err := config.Load(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) || ctx.IsSet("config") {
			return nil, err
		}
		logger.Warningf("%s not found, using defaults", path)
		cfg = config.Default()
	}

	if ctx.IsSet("port") {
		cfg.Port = ctx.Int("port")
	}
	if ctx.IsSet("models") {
		cfg.Models.LocalModelDir = ctx.String("models")
	}
	if ctx.Bool("software") {
		cfg.Render.ForceFallbackAdapter = true
	}
	return cfg, cfg.Validate()
}
