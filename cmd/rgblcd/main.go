package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"rgblcd/internal/board"
	"rgblcd/internal/bringup"
	"rgblcd/internal/config"
	appLog "rgblcd/internal/log"
	"rgblcd/internal/web"
)

type flagConfig struct {
	configPath string
	listen     string
	sim        bool
	once       bool
	pattern    string
}

func main() {
	os.Exit(run())
}

func run() int {
	appLog.Info("rgblcd starting", "version", "0.1.0")

	flags := parseFlags()

	conf, err := config.Load(flags.configPath)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", flags.configPath)
		return 1
	}

	// CLI flags override the config file.
	if flags.listen != "" {
		conf.Listen = flags.listen
	}
	if flags.pattern != "" {
		conf.Pattern.Initial = flags.pattern
	}

	if lvl, err := appLog.ParseLevel(conf.LogLevel); err != nil {
		appLog.Warn("invalid log_level; keeping INFO", "log_level", conf.LogLevel)
	} else {
		appLog.SetLevel(lvl)
	}

	appLog.Info("effective config",
		"listen", conf.Listen,
		"serial_bus", conf.Serial.Bus,
		"reset", conf.Pins.Reset,
		"backlight", conf.Pins.Backlight,
		"device", conf.RGB.Device,
		"program", conf.Program.Path,
		"pattern", conf.Pattern.Initial,
		"soak_cron", conf.Pattern.Cron,
		"sim", flags.sim,
		"once", flags.once,
	)

	setup, err := board.Open(conf, flags.sim)
	if err != nil {
		appLog.Error("failed to open board", err)
		return 1
	}

	// Root context with cancellation on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a := newApp(setup.Board.Registry, setup.Sim)
	defer a.close()

	res, err := bringup.Run(ctx, setup.Board, setup.Options(nil))
	a.setResult(res)
	if err != nil {
		appLog.Error("bring-up failed", err)
		return 1
	}

	if conf.Pattern.Initial != "" {
		if err := a.DrawPattern(conf.Pattern.Initial); err != nil {
			appLog.Error("initial pattern failed", err, "pattern", conf.Pattern.Initial)
			return 1
		}
	}

	if flags.once {
		appLog.Info("rgblcd done", "transactions", res.Report.Transactions)
		return 0
	}

	if conf.Pattern.Cron != "" {
		sched, err := a.startSoak(conf.Pattern.Cron, conf.Pattern.Cycle)
		if err != nil {
			appLog.Error("failed to start soak scheduler", err)
			return 1
		}
		defer func() { <-sched.Stop().Done() }()
	}

	if err := web.Serve(ctx, conf, a); err != nil {
		appLog.Error("HTTP server failed", err)
		return 1
	}
	appLog.Info("rgblcd exiting")
	return 0
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", "/etc/rgblcd/config.yaml", "Path to config file")
	flag.StringVar(&cfg.listen, "listen", "", "HTTP listen address (overrides config if set)")
	flag.BoolVar(&cfg.sim, "sim", false, "Use a simulated board; do not touch hardware")
	flag.BoolVar(&cfg.once, "once", false, "Bring the panel up, draw the initial pattern and exit")
	flag.StringVar(&cfg.pattern, "pattern", "", "Pattern drawn after bring-up (overrides config if set)")

	flag.Parse()

	return cfg
}
