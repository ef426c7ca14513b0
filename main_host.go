package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"strideos/app"
	"strideos/hal"
	"strideos/kernel"
	"strideos/user/apps"
)

func main() {
	var cfg hal.HeadlessConfig
	var appCfg app.Config
	var bootList string
	flag.BoolVar(&cfg.Enabled, "headless", false, "Run without a window.")
	flag.IntVar(&cfg.Hz, "hz", 60, "Tick rate in headless mode.")
	flag.Uint64Var(&cfg.Ticks, "ticks", 0, "Stop after N ticks in headless mode (0 = run until halt).")
	flag.StringVar(&cfg.Host.TTY, "tty", "", "Terminal device for console input (default: controlling terminal).")
	flag.BoolVar(&cfg.Host.NoInput, "no-input", false, "Do not read console input.")
	flag.StringVar(&bootList, "apps", strings.Join(apps.DefaultBoot, ","), "Comma-separated applications to boot; the first is init.")
	flag.StringVar(&appCfg.LogLevel, "log-level", "warn", "Kernel log level (trace, debug, info, warn, error).")
	flag.IntVar(&appCfg.StepBudget, "step-budget", kernel.DefaultStepBudget, "Instructions a task retires per kernel step.")
	flag.IntVar(&appCfg.StepsPerFrame, "steps", app.DefaultStepsPerFrame, "Kernel steps per tick.")
	flag.Parse()

	appCfg.Boot = splitList(bootList)

	if cfg.Enabled {
		appCfg.NoScreen = true
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()
		err := hal.RunHeadless(ctx, func(h hal.HAL) func() error {
			return app.NewWithConfig(h, appCfg)
		}, cfg)
		exit(err)
		return
	}

	appCfg.KeepAlive = true
	exit(hal.RunWindow(func(h hal.HAL) func() error {
		return app.NewWithConfig(h, appCfg)
	}))
}

func exit(err error) {
	switch {
	case err == nil, errors.Is(err, context.Canceled), errors.Is(err, kernel.ErrNoRunnableTask):
		return
	}
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}

func splitList(s string) []string {
	var out []string
	for _, f := range strings.Split(s, ",") {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	return out
}
