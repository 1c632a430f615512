package main

import (
	"context"
	"errors"
	"flag"
	"net"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"dashcal/internal/capture"
	"dashcal/internal/config"
	"dashcal/internal/ics"
	"dashcal/internal/layout"
	appLog "dashcal/internal/log"
	"dashcal/internal/model"
	"dashcal/internal/schedule"
	"dashcal/internal/store"
	"dashcal/internal/weather"
	"dashcal/internal/web"
)

type flagConfig struct {
	configPath string
	listen     string
	debug      bool
	once       bool
}

func main() {
	flags := parseFlags()

	conf, err := config.Load(flags.configPath)
	if err != nil {
		if conf == nil {
			appLog.Error("failed to load config", err, "config_path", flags.configPath)
			os.Exit(1)
		}
		// Defaults are usable even if they could not be written back.
		appLog.Error("failed to write default config; continuing with defaults", err, "config_path", flags.configPath)
	}

	// CLI --listen overrides config file listen if provided.
	if flags.listen != "" {
		conf.Listen = flags.listen
	}
	if flags.debug {
		conf.LogLevel = "debug"
	}
	appLog.SetLevel(appLog.ParseLevel(conf.LogLevel))

	appLog.Info("dashcal starting", "version", "0.1.0")

	loc, err := conf.Location()
	if err != nil {
		appLog.Error("invalid timezone; falling back to local", err)
	}

	appLog.Info("effective config",
		"listen", conf.Listen,
		"timezone", loc.String(),
		"start_hour", conf.Calendar.StartHour,
		"window_hours", conf.Calendar.WindowHours,
		"seed_ics", conf.Seed.ICS != "",
		"generator_enabled", conf.Generator.APIKey != "",
		"model", conf.Generator.Model,
		"weather_provider", conf.Weather.Provider,
		"capture", conf.Capture.Enabled,
		"once", flags.once,
	)

	// Root context with cancellation on SIGINT/SIGTERM.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		appLog.Info("signal received, shutting down", "signal", sig.String())
		cancel()
	}()

	grid := layout.Grid{
		StartHour:   conf.Calendar.StartHour,
		WindowHours: conf.Calendar.WindowHours,
		HourHeight:  conf.Calendar.HourHeight,
		MinHeight:   conf.Calendar.MinHeight,
		Location:    loc,
	}

	events := store.NewMemoryStore(seedFunc(ctx, conf, loc))
	if err := events.Seed(); err != nil {
		appLog.Error("failed to seed event store", err)
		os.Exit(1)
	}

	var provider weather.Provider
	if conf.Weather.Provider == "open-meteo" {
		provider = weather.NewOpenMeteoProvider(nil, "")
	}
	wx := weather.NewService(conf.Weather.Default, provider)

	gen, err := schedule.NewClient(ctx, schedule.Config{
		APIKey:   conf.Generator.APIKey,
		Model:    conf.Generator.Model,
		Timeout:  conf.Generator.Timeout(),
		Location: loc,
	})
	if err != nil {
		appLog.Error("failed to initialize schedule generator", err)
		os.Exit(1)
	}

	server := web.NewServer(conf, web.Deps{
		Store:       events,
		Weather:     wx,
		Generator:   gen,
		Grid:        grid,
		PreviewPath: conf.Capture.Output,
	})

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.Serve(ctx)
	}()

	captureOpts := capture.Options{
		URL:        captureURL(conf),
		OutputPath: conf.Capture.Output,
		Width:      conf.Capture.Width,
		Height:     conf.Capture.Height,
	}

	if flags.once {
		waitForHealth(ctx, captureOpts.URL)
		if err := runCapture(ctx, captureOpts); err != nil {
			cancel()
			<-serveErr
			os.Exit(1)
		}
		cancel()
		<-serveErr
		appLog.Info("dashcal exiting")
		return
	}

	var sched *cron.Cron
	if conf.Capture.Enabled {
		sched = cron.New(
			cron.WithLocation(loc),
			cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)),
		)
		if _, err := sched.AddFunc(conf.Capture.Refresh, func() {
			_ = runCapture(ctx, captureOpts)
		}); err != nil {
			appLog.Error("invalid capture.refresh; capture disabled", err, "refresh", conf.Capture.Refresh)
			sched = nil
		} else {
			sched.Start()
			appLog.Info("capture scheduler started", "refresh", conf.Capture.Refresh, "output", conf.Capture.Output)
		}
	}

	err = <-serveErr
	if sched != nil {
		<-sched.Stop().Done()
	}
	if err != nil {
		appLog.Error("HTTP server failed", err)
		os.Exit(1)
	}
	appLog.Info("dashcal exiting")
}

// seedFunc picks the startup schedule: today's instances from the configured
// ICS source, or the built-in demo day when none is set or it fails.
func seedFunc(ctx context.Context, conf *config.Config, loc *time.Location) store.SeedFunc {
	return func() []model.Event {
		now := time.Now()
		if conf.Seed.ICS == "" {
			return model.DefaultEvents(now, loc)
		}

		loader := &ics.SeedLoader{
			Source:   conf.Seed.ICS,
			Fetcher:  ics.NewFetcher(nil, conf.Seed.CacheDir),
			Location: loc,
		}
		evs, err := loader.Load(ctx, now)
		if err != nil {
			appLog.Error("ICS seed failed; using built-in schedule", err)
			return model.DefaultEvents(now, loc)
		}
		return evs
	}
}

// captureURL is the configured capture URL or the local dashboard, with
// basic-auth credentials embedded when enabled.
func captureURL(conf *config.Config) string {
	if conf.Capture.URL != "" {
		return conf.Capture.URL
	}

	host, port, err := net.SplitHostPort(conf.Listen)
	if err != nil {
		host, port = "127.0.0.1", "8080"
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}

	u := url.URL{Scheme: "http", Host: net.JoinHostPort(host, port), Path: "/"}
	if ba := conf.BasicAuth; ba != nil && ba.Username != "" && ba.Password != "" {
		u.User = url.UserPassword(ba.Username, ba.Password)
	}
	return u.String()
}

func runCapture(ctx context.Context, opts capture.Options) error {
	start := time.Now()
	if err := capture.DashboardPNG(ctx, opts); err != nil {
		appLog.Error("dashboard capture failed", err, "output", opts.OutputPath)
		return err
	}
	appLog.Info("dashboard captured", "output", opts.OutputPath, "elapsed", time.Since(start).Round(time.Millisecond).String())
	return nil
}

// waitForHealth polls /health until the server answers or ctx ends.
func waitForHealth(ctx context.Context, base string) {
	u, err := url.Parse(base)
	if err != nil {
		return
	}
	u.User = nil
	u.Path = "/health"

	client := &http.Client{Timeout: time.Second}
	for i := 0; i < 50; i++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
		if err != nil {
			return
		}
		resp, err := client.Do(req)
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return
			}
		}
		if errors.Is(ctx.Err(), context.Canceled) {
			return
		}
		time.Sleep(100 * time.Millisecond)
	}
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", "/etc/dashcal/config.yaml", "Path to config file")
	flag.StringVar(&cfg.listen, "listen", "", "HTTP listen address (overrides config if set)")
	flag.BoolVar(&cfg.debug, "debug", false, "Enable debug logging")
	flag.BoolVar(&cfg.once, "once", false, "Serve the dashboard, capture one preview PNG, and exit")

	flag.Parse()

	return cfg
}
