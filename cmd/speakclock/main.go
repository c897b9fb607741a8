package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"speakclock/internal/announce"
	"speakclock/internal/battery"
	"speakclock/internal/button"
	"speakclock/internal/config"
	"speakclock/internal/console"
	"speakclock/internal/localize"
	appLog "speakclock/internal/log"
	"speakclock/internal/player"
	"speakclock/internal/rtc"
	"speakclock/internal/speech"
	"speakclock/internal/state"
	"speakclock/internal/web"
)

const version = "0.1.0"

// flagConfig holds CLI flag values.
type flagConfig struct {
	configPath string
	listen     string
	logLevel   string
	once       bool
	say        string
	console    bool
	dryRun     bool
	noWeb      bool
}

func main() {
	flags, err := parseFlags(os.Args[1:])
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	if err := run(flags); err != nil {
		appLog.Error("speakclock failed", err)
		os.Exit(1)
	}
}

func parseFlags(args []string) (flagConfig, error) {
	var cfg flagConfig

	fs := pflag.NewFlagSet("speakclock", pflag.ContinueOnError)
	fs.StringVarP(&cfg.configPath, "config", "c", "/etc/speakclock/config.yaml", "Path to config file")
	fs.StringVar(&cfg.listen, "listen", "", "HTTP listen address (overrides config if set)")
	fs.StringVarP(&cfg.logLevel, "log-level", "l", "", "Log level: debug, info or error (overrides config if set)")
	fs.BoolVar(&cfg.once, "once", false, "Handle one trigger (time, plus date on repeat) and exit")
	fs.StringVar(&cfg.say, "say", "", "Speak \"time\" or \"date\" once and exit")
	fs.BoolVar(&cfg.console, "console", false, "Read test commands from stdin")
	fs.BoolVar(&cfg.dryRun, "dry-run", false, "Log clip ids instead of playing them")
	fs.BoolVar(&cfg.noWeb, "no-web", false, "Do not start the setup portal")

	if err := fs.Parse(args); err != nil {
		return cfg, err
	}
	if fs.NArg() > 0 {
		return cfg, fmt.Errorf("unexpected argument: %s", fs.Arg(0))
	}
	return cfg, nil
}

func run(flags flagConfig) error {
	appLog.Info("speakclock starting", "version", version)

	conf, err := config.Load(flags.configPath)
	if err != nil {
		return fmt.Errorf("load config %s: %w", flags.configPath, err)
	}
	if flags.listen != "" {
		conf.Listen = flags.listen
	}
	if flags.logLevel != "" {
		conf.LogLevel = flags.logLevel
	}
	level, err := appLog.ParseLevel(conf.LogLevel)
	if err != nil {
		return err
	}
	appLog.SetLevel(level)

	// Root context with cancellation on SIGINT/SIGTERM.
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, err := state.Open(conf.StateDir, conf.Language)
	if err != nil {
		return fmt.Errorf("open state: %w", err)
	}

	rule := conf.Rule()
	localizer, err := localize.New(rule)
	if err != nil {
		appLog.Error("timezone unusable, falling back to fixed offset", err, "tz", rule.PosixTZ)
		localizer = localize.Fallback(rule)
	}

	clock, err := rtc.Open(ctx, conf.RTCOptions())
	if err != nil {
		return err
	}

	cp := player.NewCommandPlayer(conf.Audio.Root, conf.PlayerArgv(), conf.Audio.Gain)
	cp.Volume = volumeKnob(ctx, conf)
	var out player.Player = cp
	if flags.dryRun {
		out = player.LogPlayer{}
	}
	announcer := &player.Announcer{
		Player: out,
		Pause:  time.Duration(conf.Timing.EnglishPauseMs) * time.Millisecond,
	}

	svc := announce.NewService(clock, localizer, speech.NewCompiler(conf.Catalog()), announcer, store, announce.Options{
		RepeatWindow: time.Duration(conf.Timing.RepeatWindowSec) * time.Second,
		DateGap:      time.Duration(conf.Timing.DateGapMs) * time.Millisecond,
	})

	batOpts := conf.BatteryOptions()
	batOpts.Calibration = store
	bat := battery.DefaultReader(conf.Battery.Driver, batOpts)

	appLog.Info("effective config",
		"listen", conf.Listen,
		"localizer", localizer.Describe(),
		"language", store.Language().Code(),
		"rtc", conf.RTC.Driver,
		"battery", conf.Battery.Driver,
		"audio_root", conf.Audio.Root,
		"announce_cron", conf.Announce.Cron,
		"button", conf.Button.Pin,
		"volume", conf.Audio.Volume.Driver,
		"dry_run", flags.dryRun,
	)

	switch {
	case flags.once:
		_, err := svc.Trigger(ctx)
		return err
	case flags.say != "":
		kind, err := announce.ParseKind(flags.say)
		if err != nil {
			return err
		}
		_, err = svc.Speak(ctx, kind)
		return err
	}

	sched, err := announce.NewScheduler(ctx, svc, conf.Announce.Cron, localizer.Location())
	if err != nil {
		return err
	}
	sched.Start()
	defer sched.Stop()

	var wg sync.WaitGroup
	errCh := make(chan error, 3)

	if !flags.noWeb {
		srv := web.NewServer(conf, svc, store, bat)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := srv.Serve(ctx); err != nil {
				errCh <- fmt.Errorf("http server: %w", err)
			}
		}()
	}

	if conf.Button.Pin != "" {
		pin, err := button.Open(conf.Button.Pin)
		if err != nil {
			appLog.Error("trigger button unavailable", err, "pin", conf.Button.Pin)
		} else {
			w := button.NewWatcher(pin, time.Duration(conf.Button.DebounceMs)*time.Millisecond)
			wg.Add(1)
			go func() {
				defer wg.Done()
				err := w.Run(ctx, func(ctx context.Context) {
					if _, err := svc.Trigger(ctx); err != nil {
						appLog.Error("trigger failed", err)
					}
				})
				if err != nil {
					errCh <- err
				}
			}()
		}
	}

	if flags.console {
		con := console.New(svc, store, bat, os.Stdout)
		go func() {
			// Stdin reads cannot be interrupted; the goroutine ends with the process.
			if err := con.Run(ctx, os.Stdin); err != nil && ctx.Err() == nil {
				appLog.Error("console stopped", err)
			}
		}()
	}

	select {
	case <-ctx.Done():
		appLog.Info("signal received, shutting down")
	case err = <-errCh:
		cancel()
	}
	wg.Wait()

	appLog.Info("speakclock exiting")
	return err
}

// volumeKnob returns the configured volume source, or nil for the fixed
// gain. An i2c knob that cannot be sampled is disabled.
func volumeKnob(ctx context.Context, conf *config.Config) player.GainSource {
	var adc battery.Reader
	switch conf.Audio.Volume.Driver {
	case "":
		return nil
	case "mock":
		adc = battery.NewMockReader(conf.VolumeOptions())
	default:
		adc = battery.NewI2CReader(conf.VolumeOptions())
		if _, err := adc.ReadADC(ctx); err != nil {
			appLog.Error("volume knob unavailable, using fixed gain", err, "channel", conf.Audio.Volume.Channel)
			return nil
		}
	}
	return player.NewVolumeKnob(adc, conf.Audio.Volume.MaxVolts)
}
