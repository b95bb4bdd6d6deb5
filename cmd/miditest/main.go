package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"time"

	"github.com/charmbracelet/log"
	gomidi "gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"

	"keybridge/bridge"
	"keybridge/config"
	"keybridge/debug"
	"keybridge/keys"
	"keybridge/midi"
	"keybridge/sequencer"
	"keybridge/transpose"
)

var (
	dry      = flag.Bool("dry", false, "log key presses instead of sending them")
	level    = flag.String("log-level", "info", "debug, info, warn or error")
	cfgPath  = flag.String("config", "", "config file (default ~/.config/keybridge/config.json)")
	logger   *log.Logger
	commands = map[string]func(args []string) error{
		"list":    listPorts,
		"poll":    pollDevices,
		"inspect": inspect,
		"play":    play,
		"bridge":  runBridge,
	}
)

func main() {
	flag.Usage = usage
	flag.Parse()
	if flag.NArg() < 1 {
		usage()
		return
	}

	var err error
	logger, _, err = debug.New(debug.Options{Level: *level, Output: os.Stderr})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	cmd, ok := commands[flag.Arg(0)]
	if !ok {
		usage()
		os.Exit(2)
	}
	if err := cmd(flag.Args()[1:]); err != nil {
		logger.Error(flag.Arg(0)+" failed", "err", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Println("MIDI Test Scripts")
	fmt.Println("")
	fmt.Println("Usage: miditest [-dry] [-log-level L] [-config path] <command>")
	fmt.Println("")
	fmt.Println("Commands:")
	fmt.Println("  list                 - List all MIDI ports")
	fmt.Println("  poll                 - Poll for device changes")
	fmt.Println("  inspect <file>       - Show notes, tempo and transposition of a MIDI file")
	fmt.Println("  play <file> [speed]  - Play a MIDI file as key presses")
	fmt.Println("  bridge <device>      - Map a keyboard to key presses until Ctrl+C")
}

func listPorts(_ []string) error {
	fmt.Println("=== MIDI Input Ports ===")
	fmt.Println("(waiting up to 3 seconds...)")

	type result struct {
		ins  []drivers.In
		outs []drivers.Out
	}
	ch := make(chan result, 1)
	go func() {
		ch <- result{ins: gomidi.GetInPorts(), outs: gomidi.GetOutPorts()}
	}()

	select {
	case r := <-ch:
		for i, p := range r.ins {
			fmt.Printf("  %d: %s\n", i, p.String())
		}
		fmt.Println("\n=== MIDI Output Ports ===")
		for i, p := range r.outs {
			fmt.Printf("  %d: %s\n", i, p.String())
		}
		return nil
	case <-time.After(3 * time.Second):
		fmt.Println("\nTIMEOUT! CoreMIDI is hung.")
		fmt.Println("Fix: sudo killall coreaudiod midiserver")
		return midi.ErrScanTimeout
	}
}

func pollDevices(_ []string) error {
	fmt.Println("Polling for device changes every second...")
	fmt.Println("Connect/disconnect a keyboard to test. Ctrl+C to exit.")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	dm := midi.NewDeviceManager(logger)
	go dm.Run(ctx)

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-dm.Events():
			state := "connected"
			if ev.Type == midi.DeviceDisconnected {
				state = "disconnected"
			}
			fmt.Printf("[%s] %s %s\n", time.Now().Format("15:04:05"), ev.Name, state)
			fmt.Printf("  Inputs: %v\n", dm.Inputs())
		}
	}
}

func inspect(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("inspect needs a file")
	}
	seq, err := sequencer.Load(args[0])
	if err != nil {
		return err
	}
	cfg := loadConfig()
	mapping, _ := cfg.Mapping()

	notes := seq.NoteOns()
	fmt.Printf("File:      %s\n", seq.Name)
	fmt.Printf("Events:    %d (%d note-ons)\n", len(seq.Events), len(notes))
	fmt.Printf("Duration:  %s\n", seq.Duration().Round(time.Millisecond))
	fmt.Printf("BPM:       %.1f\n", seq.BPM())
	for _, t := range seq.Tempos {
		fmt.Printf("  tempo %6.1f at %s\n", t.BPM, t.At.Round(time.Millisecond))
	}

	player := transpose.Resolve(notes, mapping.Has)
	practice := transpose.Resolve(notes, transpose.InRange(cfg.Practice.Low, cfg.Practice.High))
	fmt.Printf("Player:    transpose %s, %d/%d notes mapped\n", player, player.Matches, player.Total)
	fmt.Printf("Practice:  transpose %s, %d/%d notes in %s..%s\n", practice, practice.Matches, practice.Total,
		midi.NoteName(cfg.Practice.Low), midi.NoteName(cfg.Practice.High))
	return nil
}

func play(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("play needs a file")
	}
	seq, err := sequencer.Load(args[0])
	if err != nil {
		return err
	}
	store := config.NewStore(loadConfig(), *cfgPath)
	keyer, err := newKeyer()
	if err != nil {
		return err
	}

	done := make(chan struct{})
	player := sequencer.NewPlayer(sequencer.Options{
		Keyer:      keyer,
		Store:      store,
		Logger:     logger,
		OnProgress: func(status string) { fmt.Println(status) },
		OnStop:     func() { close(done) },
	})
	if len(args) > 1 {
		speed, err := strconv.ParseFloat(args[1], 64)
		if err != nil {
			return fmt.Errorf("speed: %w", err)
		}
		if err := player.SetSpeed(speed); err != nil {
			return err
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := player.LoadAndPlay(seq); err != nil {
		return err
	}
	select {
	case <-done:
	case <-ctx.Done():
		player.Stop()
	}
	return nil
}

func runBridge(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("bridge needs a device name or filter")
	}
	dm := midi.NewDeviceManager(logger)
	names, err := dm.Refresh()
	if err != nil {
		return err
	}
	name, ok := midi.MatchName(names, args[0])
	if !ok {
		return fmt.Errorf("%q: %w", args[0], midi.ErrDeviceNotFound)
	}

	keyer, err := newKeyer()
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	go dm.Run(ctx)

	stopped := make(chan struct{})
	b := bridge.New(bridge.Options{
		Opener: dm,
		Keyer:  keyer,
		Store:  config.NewStore(loadConfig(), *cfgPath),
		Logger: logger,
		OnStop: func() { close(stopped) },
	})
	b.Subscribe(func(ev midi.NoteEvent) {
		logger.Debug("event", "note", midi.NoteName(int(ev.Note)), "kind", ev.Kind, "velocity", ev.Velocity)
	})
	b.Start(name)

	select {
	case <-stopped:
	case <-ctx.Done():
		b.Stop()
	}
	return nil
}

func loadConfig() *config.Config {
	cfg, err := config.Load(*cfgPath)
	if err != nil {
		logger.Warn("config", "err", err)
	}
	return cfg
}

func newKeyer() (keys.Keyer, error) {
	if *dry {
		return keys.NewDryKeyer(logger), nil
	}
	sk, err := keys.NewSystemKeyer()
	if err != nil {
		return nil, err
	}
	return sk, nil
}
