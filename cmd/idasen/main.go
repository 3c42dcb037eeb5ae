package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/aklajnert/idasen/internal/config"
	"github.com/aklajnert/idasen/pkg/ble"
	"github.com/aklajnert/idasen/pkg/desk"
)

const usage = `Usage: idasen [flags] <command>

Commands:
  scan            list desks in range
  status          print the current desk height
  move <cm>       move the desk to the given height in centimeters
  up              start moving up (runs until 'stop' or a limit)
  down            start moving down
  stop            stop the desk
  monitor         print the height whenever it changes, until interrupted

Flags:
  -config <path>   config file (default: ~/.config/idasen/config.yaml)
  -address <addr>  desk address, overrides the config file
`

func main() {
	configPath := flag.String("config", "", "path to config file")
	address := flag.String("address", "", "desk address (overrides config)")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "config validation: %v\n", err)
		os.Exit(1)
	}
	if *address != "" {
		cfg.Address = *address
	}

	setupLogging(cfg.LogLevel)

	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(2)
	}

	// Interrupts cancel the context; an in-flight move still stops the desk
	// on its way out.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	adapter := ble.NewBluetoothAdapter()

	if err := run(ctx, adapter, cfg, args); err != nil {
		fmt.Fprintf(os.Stderr, "idasen: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, adapter ble.Adapter, cfg *config.Config, args []string) error {
	switch args[0] {
	case "scan":
		return runScan(ctx, adapter, cfg)
	case "status":
		return withSession(ctx, adapter, cfg, func(s *desk.Session) error {
			h, err := s.Position()
			if err != nil {
				return err
			}
			fmt.Println(h)
			return nil
		})
	case "move":
		if len(args) < 2 {
			return fmt.Errorf("move needs a target height in centimeters")
		}
		cm, err := strconv.ParseFloat(args[1], 64)
		if err != nil {
			return fmt.Errorf("invalid height %q: %w", args[1], err)
		}
		return withSession(ctx, adapter, cfg, func(s *desk.Session) error {
			return runMove(ctx, s, cfg, desk.HeightFromCm(cm))
		})
	case "up":
		return withSession(ctx, adapter, cfg, func(s *desk.Session) error { return s.Up() })
	case "down":
		return withSession(ctx, adapter, cfg, func(s *desk.Session) error { return s.Down() })
	case "stop":
		return withSession(ctx, adapter, cfg, func(s *desk.Session) error { return s.Stop() })
	case "monitor":
		return withSession(ctx, adapter, cfg, func(s *desk.Session) error {
			return runMonitor(ctx, s)
		})
	default:
		flag.Usage()
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func runScan(ctx context.Context, adapter ble.Adapter, cfg *config.Config) error {
	fmt.Printf("Scanning for desks (%s)...\n", time.Duration(cfg.ScanTimeout))
	devices, err := desk.Discover(ctx, adapter, "", time.Duration(cfg.ScanTimeout))
	if err != nil {
		return err
	}
	for _, d := range devices {
		name := d.Name
		if name == "" {
			name = "(unnamed)"
		}
		fmt.Printf("  %s  %s  rssi %d\n", d.Address, name, d.RSSI)
	}
	return nil
}

func runMove(ctx context.Context, s *desk.Session, cfg *config.Config, target desk.Height) error {
	ctx, cancel := context.WithTimeout(ctx, time.Duration(cfg.Move.Timeout))
	defer cancel()

	res, err := s.MoveTo(ctx, target)
	if err != nil {
		return err
	}
	fmt.Printf("Settled at %s", res.Position)
	if res.Overshoot > 0 {
		fmt.Printf(" (overshot by %s)", res.Overshoot)
	}
	fmt.Println()
	return nil
}

func runMonitor(ctx context.Context, s *desk.Session) error {
	fmt.Println("Monitoring height, Ctrl+C to quit.")

	var last desk.Height
	hasLast := false
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			h, ok := s.LastKnown()
			if !ok {
				var err error
				h, err = s.Position()
				if err != nil {
					return err
				}
			}
			if !hasLast || h != last {
				fmt.Println(h)
				last, hasLast = h, true
			}
		}
	}
}

// withSession resolves the desk address, connects, runs fn, and always
// disconnects afterwards.
func withSession(ctx context.Context, adapter ble.Adapter, cfg *config.Config, fn func(*desk.Session) error) error {
	address := cfg.Address
	if address == "" {
		devices, err := desk.Discover(ctx, adapter, "", time.Duration(cfg.ScanTimeout))
		if err != nil {
			return err
		}
		if len(devices) > 1 {
			for _, d := range devices {
				fmt.Fprintf(os.Stderr, "  %s  %s\n", d.Address, d.Name)
			}
			return fmt.Errorf("found %d desks; pick one with -address", len(devices))
		}
		address = devices[0].Address
	}

	s, err := desk.Connect(ctx, adapter, address, cfg.Options())
	if err != nil {
		return err
	}
	defer s.Disconnect()

	return fn(s)
}

// loadConfig loads the config from the specified path, or falls back to
// the default config path, or uses built-in defaults.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.Load(path)
	}

	defaultPath := config.DefaultConfigPath()
	if _, err := os.Stat(defaultPath); err == nil {
		cfg, err := config.Load(defaultPath)
		if err != nil {
			return nil, fmt.Errorf("loading %s: %w", defaultPath, err)
		}
		return cfg, nil
	}

	return config.Default(), nil
}

func setupLogging(level string) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})))
}
