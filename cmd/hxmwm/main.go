package main

import (
	"fmt"
	"image"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jopamo/hxm/internal/acquire"
	"github.com/jopamo/hxm/internal/atoms"
	"github.com/jopamo/hxm/internal/config"
	"github.com/jopamo/hxm/internal/wm"
	"github.com/jopamo/hxm/internal/xconn"
)

var (
	configPath string
	display    string
	logLevel   string
)

func main() {
	root := &cobra.Command{
		Use:   "hxmwm",
		Short: "a reparenting X11 window manager core",
		RunE:  run,
	}
	root.Flags().StringVar(&configPath, "config", "", "path to a TOML config file")
	root.Flags().StringVar(&display, "display", "", "X display to connect to (defaults to $DISPLAY)")
	root.Flags().StringVar(&logLevel, "log-level", "", "log level, overrides the config file's log_level")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if display != "" {
		cfg.Display = display
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}

	log, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer log.Sync()

	conn, err := xconn.Dial(cfg.Display)
	if err != nil {
		return err
	}
	defer conn.Close()

	atomTable, err := atoms.Init(conn)
	if err != nil {
		return err
	}

	if _, err := acquire.Acquire(conn, atomTable, log); err != nil {
		log.Error("acquisition failed", zap.Error(err))
		return err
	}

	screen := screenRect(conn)

	poller, err := wm.NewEpollPoller(conn.FD())
	if err != nil {
		return err
	}
	defer poller.Close()

	sigFD, err := newSignalFD()
	if err != nil {
		return err
	}
	defer syscall.Close(sigFD)
	if err := poller.Add(sigFD); err != nil {
		return err
	}

	sched := wm.New(conn, atomTable, cfg, poller, screen, log)

	if children, err := conn.QueryTree(conn.Root()); err != nil {
		log.Warn("adoption query tree failed", zap.Error(err))
	} else {
		sched.Adopt(children)
	}

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGTERM, syscall.SIGINT)

	for {
		select {
		case <-sigc:
			log.Info("shutting down on signal")
			sched.Shutdown()
			return nil
		default:
		}

		if err := sched.Tick(); err != nil {
			log.Error("transport-fatal error, shutting down", zap.Error(err))
			sched.Shutdown()
			os.Exit(1)
		}
	}
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	return cfg.Build()
}

func screenRect(conn *xconn.Conn) image.Rectangle {
	w, h := conn.ScreenSize()
	return image.Rect(0, 0, int(w), int(h))
}
