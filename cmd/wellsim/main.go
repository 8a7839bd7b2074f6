package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/chrissnell/wellsim/internal/app"
	"github.com/chrissnell/wellsim/internal/constants"
	"github.com/chrissnell/wellsim/internal/log"
	"github.com/chrissnell/wellsim/pkg/config"
)

func main() {
	cfgFile := flag.String("config", "wellsim.yaml", "Path to the YAML project configuration")
	debug := flag.Bool("debug", false, "Turn on debugging output")
	modeFlag := flag.String("mode", "trip", "What to run: trip, circulate, chain (circulate then trip) or serve")
	outFile := flag.String("out", "-", "Where batch results are written; - for stdout")
	formatFlag := flag.String("format", "table", "Batch output format: json, msgpack or table")
	showVersion := flag.Bool("version", false, "Show version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("wellsim %s\n", constants.Version)
		os.Exit(0)
	}

	// Set up logging
	if err := log.Init(*debug); err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	mode, err := app.ParseMode(*modeFlag)
	if err != nil {
		log.Fatal(err)
	}

	filename, _ := filepath.Abs(*cfgFile)
	provider := config.NewYAMLProvider(filename)
	defer provider.Close()

	application := app.New(provider, log.GetSugaredLogger())

	if mode == app.ModeServe {
		if err := application.Serve(context.Background()); err != nil {
			log.Errorf("Application error: %v", err)
			os.Exit(1)
		}
		return
	}

	format, err := app.ParseOutputFormat(*formatFlag)
	if err != nil {
		log.Fatal(err)
	}
	if err := batch(application, mode, *outFile, format); err != nil {
		log.Errorf("Run failed: %v", err)
		os.Exit(1)
	}
}

func batch(application *app.App, mode app.Mode, outFile string, format app.OutputFormat) error {
	out := os.Stdout
	if outFile != "-" {
		f, err := os.Create(outFile)
		if err != nil {
			return fmt.Errorf("creating %s: %w", outFile, err)
		}
		defer f.Close()
		out = f
	}

	w := bufio.NewWriter(out)
	runErr := application.Batch(context.Background(), mode, w, format)
	if err := w.Flush(); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}
