// Command linkdev runs the device firmware on a computer, speaking the
// device protocol over a serial port or standard input and output.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/itohio/golink/pkg/config"
	"github.com/itohio/golink/pkg/firmware"
	"github.com/itohio/golink/pkg/hal"
	"github.com/itohio/golink/pkg/link"
)

func main() {
	var (
		portFlag   = flag.String("p", "", "Serial port override (e.g., COM3 or /dev/ttyACM0)")
		configFlag = flag.String("config", "config.yaml", "Configuration file path")
		baudFlag   = flag.Int("baud", 0, "Baud rate override")
		stdioFlag  = flag.Bool("stdio", false, "Use standard input and output instead of a serial port")
		listFlag   = flag.Bool("list", false, "List serial ports and exit")
	)
	flag.Parse()

	cfg, err := config.Load(*configFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	setupLogging(cfg.Log)

	if *listFlag {
		ports, err := link.Ports()
		if err != nil {
			log.Fatal().Err(err).Msg("failed to list ports")
		}
		for _, p := range ports {
			fmt.Println(p.Name)
		}
		return
	}

	if *portFlag != "" {
		cfg.Serial.Port = *portFlag
	}
	if *baudFlag > 0 {
		cfg.Serial.BaudRate = *baudFlag
	}
	if *stdioFlag {
		cfg.Serial.Driver = link.DriverStdio
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.Error().Err(err).Msg("device stopped")
		os.Exit(1)
	}
}

func setupLogging(cfg config.LogConfig) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly})
}

// run boots the firmware again after every reset until ctx ends or the line fails.
func run(ctx context.Context, cfg *config.Config) error {
	port, err := link.Open(cfg.Serial)
	if err != nil {
		return err
	}
	defer port.Close()

	relay := link.NewRelay(port)

	for boot := 1; ; boot++ {
		board := hal.SimBoard(cfg, func() {
			log.Info().Int("boot", boot).Msg("device resetting")
		})
		p, err := hal.Init(board)
		if err != nil {
			return fmt.Errorf("peripherals: %w", err)
		}

		fw, err := firmware.New(cfg, p, struct {
			io.Reader
			io.Writer
		}{relay.Attach(), port})
		if err != nil {
			return err
		}

		err = fw.Run(ctx)
		switch {
		case errors.Is(err, firmware.ErrReset):
			continue
		case err != nil:
			return err
		}
		return nil
	}
}
