package main

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/ayusman/signvista/internal/app"
	"github.com/ayusman/signvista/internal/config"
	"github.com/ayusman/signvista/internal/inference"
	"github.com/ayusman/signvista/internal/plugin"
	"github.com/ayusman/signvista/internal/tray"
)

type cameraOptions struct {
	withTray bool
	noServer bool
	source   string
	device   int
}

func newCameraCmd(root *rootOptions) *cobra.Command {
	opts := &cameraOptions{device: -1}

	cmd := &cobra.Command{
		Use:   "camera",
		Short: "Recognize signs from a local camera and trigger plugins",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCamera(cmd.Context(), root, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.withTray, "tray", false, "show a system tray icon")
	cmd.Flags().BoolVar(&opts.noServer, "no-server", false, "do not serve the API and dashboard")
	cmd.Flags().StringVar(&opts.source, "source", "", "video file or stream to read instead of a camera")
	cmd.Flags().IntVar(&opts.device, "device", -1, "camera device id (default camera.device_id)")
	return cmd
}

func runCamera(ctx context.Context, root *rootOptions, opts *cameraOptions) error {
	rt, err := newRuntime(ctx, root)
	if err != nil {
		return err
	}
	defer rt.Close()

	cfg := rt.registry.Current()

	pluginDir := cfg.Plugins.Dir
	if pluginDir == "" {
		pluginDir = filepath.Join(rt.dataDir, "plugins")
	}
	manager := plugin.NewManager(pluginDir)
	if err := manager.Discover(); err != nil {
		return fmt.Errorf("discover plugins: %w", err)
	}
	dispatcher := plugin.NewDispatcher(manager, plugin.NewExecutor(cfg.Plugins.TimeoutMs), rt.metrics)
	dispatcher.Configure(cfg.Plugins)
	rt.registry.OnChange(func(c *config.Config) { dispatcher.Configure(c.Plugins) })

	device, source := cfg.Camera.DeviceID, cfg.Camera.Source
	if opts.device >= 0 {
		device, source = opts.device, ""
	}
	if opts.source != "" {
		source = opts.source
	}

	a := app.New(app.Config{
		Engine:          rt.engine,
		DeviceID:        device,
		Source:          source,
		MotionThreshold: cfg.Camera.MotionThreshold,
		SessionID:       cfg.Camera.SessionID,
		Dispatcher:      dispatcher,
	})

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		dispatcher.Run(ctx)
		return nil
	})
	g.Go(func() error {
		rt.engine.RunSweeper(ctx, sweepInterval)
		return nil
	})
	if !opts.noServer {
		g.Go(func() error {
			slog.Info("starting server", "addr", cfg.Server.ListenAddr)
			return rt.newServer(cfg).ListenAndServe(ctx, cfg.Server.ListenAddr)
		})
	}

	if err := a.Start(ctx); err != nil {
		cancel()
		_ = g.Wait()
		return fmt.Errorf("start camera: %w", err)
	}
	defer a.Stop()

	finished := a.Done()
	go func() {
		select {
		case <-finished:
			slog.Info("camera input finished", "source", source)
			cancel()
		case <-ctx.Done():
		}
	}()

	if !opts.withTray {
		<-ctx.Done()
		return g.Wait()
	}

	t := tray.New(dashboardURL(cfg.Server.ListenAddr, opts.noServer), cfg.PredictionStrategy())
	t.OnToggle(a.SetEnabled)
	t.OnStrategy(func(s config.Strategy) {
		rt.registry.Update(func(c *config.Config) { c.Inference.PredictionStrategy = s })
		slog.Info("prediction strategy changed", "strategy", s)
	})
	t.OnQuit(cancel)
	a.OnRecognized(func(r inference.Result) { t.SetLastSign(r.DisplayName, r.Confidence) })

	go func() {
		<-ctx.Done()
		t.Quit()
	}()
	// The tray owns the main thread until it quits.
	t.Run()
	cancel()
	return g.Wait()
}

// dashboardURL turns a listen address into a browsable URL.
func dashboardURL(addr string, disabled bool) string {
	if disabled || addr == "" {
		return ""
	}
	if strings.HasPrefix(addr, ":") {
		addr = "localhost" + addr
	}
	return "http://" + addr
}
