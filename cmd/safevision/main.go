package main

import (
	"context"
	"errors"
	"fmt"
	"image"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/akamensky/argparse"
	"github.com/cyclopcam/logs"

	"github.com/safevision/safevision"
	"github.com/safevision/safevision/internal/config"
	"github.com/safevision/safevision/internal/engine"
	"github.com/safevision/safevision/pkg/dataset"
	"github.com/safevision/safevision/pkg/detection"
	"github.com/safevision/safevision/pkg/export"
	"github.com/safevision/safevision/pkg/processing"
	"github.com/safevision/safevision/pkg/server"
)

func main() {
	parser := argparse.NewParser("safevision", "Web UI for predicting safety equipment in images")
	configFile := parser.String("c", "config", &argparse.Options{Help: "JSON config file", Default: config.GetConfigPath()})
	addr := parser.String("a", "addr", &argparse.Options{Help: "Listen address (overrides config)"})
	backend := parser.String("b", "backend", &argparse.Options{Help: "Model backend: ollama, llamacpp or saliency (overrides config)"})
	saveConfig := parser.Flag("", "save-config", &argparse.Options{Help: "Write the effective configuration to the config file and exit"})
	testVision := parser.String("", "test-vision", &argparse.Options{Help: "Ask the model to describe this image, to check that it can see, then exit"})
	err := parser.Parse(os.Args)
	if err != nil {
		fmt.Print(parser.Usage(err))
		os.Exit(1)
	}

	logger, err := logs.NewLog()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Close()

	cfg, err := config.Load(*configFile)
	if err != nil {
		logger.Criticalf("%v", err)
		os.Exit(1)
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}
	if *backend != "" {
		cfg.Model.Backend = *backend
		if err := cfg.Validate(); err != nil {
			logger.Criticalf("%v", err)
			os.Exit(1)
		}
	}

	if *saveConfig {
		if err := cfg.SaveToFile(*configFile); err != nil {
			logger.Criticalf("%v", err)
			os.Exit(1)
		}
		logger.Infof("Wrote %s", *configFile)
		return
	}

	// Class names are optional for the web UI
	var names []string
	if ds, err := dataset.Load(cfg.Dataset.Path); err == nil {
		names = ds.Names
	} else {
		logger.Warnf("No class names: %v", err)
	}

	eng, err := engine.New(cfg, names, logger)
	if err != nil {
		logger.Criticalf("%v", err)
		os.Exit(1)
	}

	processor := processing.NewProcessor()
	processor.Quality = cfg.Output.Quality

	if *testVision != "" {
		if err := runTestVision(eng, processor, *testVision); err != nil {
			logger.Criticalf("%v", err)
			os.Exit(1)
		}
		return
	}
	pipeline := safevision.NewWithConfig(eng, processor, export.NewWithOptions(processor, export.Options{}))

	srv, err := server.New(pipeline, server.Options{
		OutputDir:  cfg.Output.Dir,
		UploadsDir: cfg.Output.UploadsDir,
		SamplesDir: cfg.Output.SamplesDir,
		Names:      names,
	}, logger)
	if err != nil {
		logger.Criticalf("%v", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := srv.ListenAndServe(ctx, cfg.Server.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Errorf("Server stopped: %v", err)
		os.Exit(1)
	}
	logger.Infof("Shut down")
}

type visionTester interface {
	TestVision(ctx context.Context, img image.Image) (string, error)
}

func runTestVision(eng detection.Engine, processor *processing.Processor, source string) error {
	tester, ok := eng.(visionTester)
	if !ok {
		return fmt.Errorf("the selected backend has no vision model to test")
	}
	img, err := processor.LoadImageSmart(source)
	if err != nil {
		return err
	}
	reply, err := tester.TestVision(context.Background(), img)
	if err != nil {
		return err
	}
	fmt.Println(reply)
	return nil
}
