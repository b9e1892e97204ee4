// Package main implements a batch image enhancement and narration tool.
// Every command walks its input, calls a library per item and writes the result:
//
//	he       histogram equalization (OpenCV)
//	msrcr    multi-scale Retinex with color restoration (OpenCV)
//	uie      underwater enhancement networks, WaterNet and UWCNN (ONNX Runtime)
//	narrate  novel to audio, one WAV per paragraph (GPT-SoVITS API)
//
// A file that fails is logged and skipped.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	// Read flags
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	configFilename := flag.String("config", defaultConfigFilename, "Config File")
	debugFlag := flag.Bool("debug", false, "Debug logging level")
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() < 1 {
		flag.Usage()
		os.Exit(2)
	}

	// Read config file. Only an explicit -config must exist.
	cfg, err := LoadConfig(*configFilename, isFlagSet("config"))
	if err != nil {
		log.Fatal().Err(err).Msg("config")
	}

	setupLogging(cfg, *debugFlag)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Start
	start := time.Now()
	command := flag.Arg(0)
	log.Logger = log.With().Str("run", uuid.New().String()).Logger()
	log.Debug().Str("config", *configFilename).Msg(command)

	err = run(ctx, cfg, command, flag.Args()[1:])
	switch {
	case err == nil:
	case errors.Is(err, errUsage), errors.Is(err, ErrConfig):
		log.Error().Err(err).Msg(command)
		stop()
		os.Exit(2)
	case errors.Is(err, context.Canceled):
		log.Warn().Msg("interrupted")
		stop()
		os.Exit(130)
	default:
		stop()
		log.Fatal().Err(err).Msg(command)
	}

	// Done
	log.Info().
		Int64("duration(ms)", (time.Since(start)).Milliseconds()).
		Msg(command)
}

// setupLogging sets the global log level and output from config and flags.
func setupLogging(cfg AppConfig, debugFlag bool) {
	debug := cfg.Debug
	if debugFlag {
		debug = debugFlag
	}

	zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	if cfg.Info {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
	if debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
	if cfg.Human {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
}

func isFlagSet(name string) bool {
	set := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == name {
			set = true
		}
	})
	return set
}

func usage() {
	out := flag.CommandLine.Output()
	fmt.Fprintf(out, "Usage: %s [-config file] [-debug] <command> [flags]\n\n", os.Args[0])
	fmt.Fprintln(out, "Commands:")
	fmt.Fprintln(out, "  he       -src DIR -dst DIR [-mode luma|channels]")
	fmt.Fprintln(out, "  msrcr    -src DIR -dst DIR")
	fmt.Fprintln(out, "  uie      -src DIR -dst DIR [-models UWCNN,WaterNet]")
	fmt.Fprintln(out, "  narrate  [-infer infer.json] [-novel FILE] [-out DIR]")
	fmt.Fprintln(out)
	flag.PrintDefaults()
}
