package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"

	"keybridge/bridge"
	"keybridge/config"
	"keybridge/debug"
	"keybridge/keys"
	"keybridge/midi"
	"keybridge/practice"
	"keybridge/sequencer"
	"keybridge/theme"
	"keybridge/tui"
)

func main() {
	configPath := flag.String("config", "", "config file (default ~/.config/keybridge/config.json)")
	logLevel := flag.String("log-level", "", "debug, info, warn or error (overrides config)")
	dry := flag.Bool("dry", false, "log key presses instead of sending them")
	songs := flag.String("songs", "", "directory with MIDI files (overrides config)")
	flag.Parse()

	if err := run(*configPath, *logLevel, *songs, *dry); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath, logLevel, songs string, dry bool) error {
	// Load always returns a usable config; the error is logged once the
	// logger exists
	cfg, cfgErr := config.Load(configPath)
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if songs != "" {
		cfg.SongsDir = songs
	}

	ring := debug.NewRing(debug.DefaultRingSize)
	logPath := cfg.Log.File
	if logPath == "" {
		logPath = debug.DefaultPath()
	}
	logger, closer, err := debug.New(debug.Options{Level: cfg.Log.Level, Path: logPath, Ring: ring})
	if err != nil {
		return err
	}
	defer closer.Close()

	if errors.Is(cfgErr, config.ErrInvalid) {
		logger.Error("config unusable, running with defaults", "err", cfgErr)
	} else if cfgErr != nil {
		logger.Warn("config", "err", cfgErr)
	}
	store := config.NewStore(cfg, configPath)

	palette, err := theme.LoadGPL(cfg.Theme.Palette)
	if err != nil {
		logger.Warn("palette", "err", err)
		palette = theme.DefaultPalette()
	}

	var keyer keys.Keyer
	if dry {
		keyer = keys.NewDryKeyer(logger)
	} else {
		fmt.Println("keybridge: preparing keyboard output...")
		sk, err := keys.NewSystemKeyer()
		if err != nil {
			return err
		}
		keyer = sk
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	deviceMgr := midi.NewDeviceManager(logger)
	go deviceMgr.Run(ctx)

	relay := tui.NewRelay()

	popts := practice.FromConfig(cfg.Practice)
	popts.Logger = logger
	session := practice.NewSession(popts)
	go session.Run(ctx)

	br := bridge.New(bridge.Options{
		Opener:  deviceMgr,
		Keyer:   keyer,
		Store:   store,
		Logger:  logger,
		OnError: relay.BridgeError,
		OnStop:  relay.BridgeStopped,
	})
	sub := br.Subscribe(session.HandleEvent)
	defer sub.Unsubscribe()

	player := sequencer.NewPlayer(sequencer.Options{
		Keyer:      keyer,
		Store:      store,
		Logger:     logger,
		OnProgress: relay.Progress,
		OnInfo:     relay.Info,
		OnStop:     relay.PlayerStopped,
	})

	m := tui.NewModel(tui.Deps{
		Store:    store,
		Devices:  deviceMgr,
		Bridge:   br,
		Player:   player,
		Practice: session,
		Relay:    relay,
		Ring:     ring,
		Theme:    theme.New(palette),
		Logger:   logger,
	})
	p := tea.NewProgram(m, tea.WithAltScreen())

	_, err = p.Run()
	player.Stop()
	br.Stop()
	return err
}

