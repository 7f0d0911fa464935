package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/akamensky/argparse"
	"github.com/cyclopcam/logs"

	"github.com/safevision/safevision/internal/config"
	"github.com/safevision/safevision/internal/engine"
	"github.com/safevision/safevision/pkg/batch"
	"github.com/safevision/safevision/pkg/dataset"
	"github.com/safevision/safevision/pkg/evaluate"
)

func main() {
	parser := argparse.NewParser("predict", "Label the test images of a YOLO dataset and score the predictions")
	configFile := parser.String("c", "config", &argparse.Options{Help: "JSON config file", Default: config.GetConfigPath()})
	datasetFile := parser.String("d", "dataset", &argparse.Options{Help: "Dataset yaml (overrides config)"})
	outDir := parser.String("o", "output", &argparse.Options{Help: "Output directory (overrides config)"})
	workers := parser.Int("w", "workers", &argparse.Options{Help: "Images processed in parallel", Default: 1})
	conf := parser.Float("", "conf", &argparse.Options{Help: "Confidence threshold (overrides config)", Default: -1.0})
	skipEval := parser.Flag("", "no-eval", &argparse.Options{Help: "Skip the evaluation against ground truth labels"})
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

	if err := run(logger, *configFile, *datasetFile, *outDir, *workers, *conf, !*skipEval); err != nil {
		logger.Criticalf("%v", err)
		os.Exit(1)
	}
}

func run(logger logs.Log, configFile, datasetFile, outDir string, workers int, conf float64, eval bool) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return err
	}
	if datasetFile != "" {
		cfg.Dataset.Path = datasetFile
	}
	if outDir != "" {
		cfg.Output.Dir = outDir
	}
	if conf >= 0 {
		cfg.Detection.Confidence = conf
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	ds, err := dataset.Load(cfg.Dataset.Path)
	if err != nil {
		return err
	}
	imagesDir, err := ds.TestImagesDir()
	if err != nil {
		return err
	}
	images, err := dataset.ListImages(imagesDir)
	if err != nil {
		return err
	}
	logger.Infof("Found %d test images in %s", len(images), imagesDir)

	eng, err := engine.New(cfg, ds.Names, logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	results, err := batch.Run(ctx, eng, images, batch.Options{
		ImagesDir: cfg.ImagesDir(),
		LabelsDir: cfg.LabelsDir(),
		Workers:   workers,
	}, logger)
	if err != nil {
		return err
	}
	logger.Infof("Predicted images saved in %s", cfg.ImagesDir())
	logger.Infof("Bounding box labels saved in %s", cfg.LabelsDir())

	if !eval {
		return nil
	}
	samples := make([]evaluate.Sample, 0, len(results))
	for _, res := range results {
		truth, err := dataset.GroundTruth(res.Input)
		if err != nil {
			return err
		}
		samples = append(samples, evaluate.Sample{Name: res.Input, Predictions: res.Detections, Truth: truth})
	}
	fmt.Print(evaluate.Evaluate(samples, ds).String())
	return nil
}
