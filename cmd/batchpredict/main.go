package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"oncopredict/internal/artifact"
	"oncopredict/internal/inference"
	"oncopredict/internal/metricstore"
	"oncopredict/internal/registry"
	"oncopredict/internal/scaler"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	var (
		inputPath = flag.String("input", "", "Path to JSON file with an array of feature maps (or '-' for stdin)")
		modelsDir = flag.String("models-dir", "models", "Path to the model artifact directory")
		modelName = flag.String("model", "", "Model to run (defaults to logistic_regression)")
		consensus = flag.Bool("consensus", false, "Run every model and aggregate by majority vote")
		timeout   = flag.Duration("timeout", 2*time.Minute, "Overall run timeout")
		logLevel  = flag.String("log-level", "warn", "Log level: debug, info, warn, error")
	)
	flag.Parse()

	level, err := zerolog.ParseLevel(*logLevel)
	if err != nil {
		level = zerolog.WarnLevel
	}
	zerolog.SetGlobalLevel(level)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	if *inputPath == "" {
		flag.Usage()
		os.Exit(2)
	}

	inputs, err := readInputs(*inputPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to read inputs")
	}
	if len(inputs) == 0 {
		log.Fatal().Msg("input file contains no observations")
	}

	svc, err := buildService(*modelsDir, *modelName)
	if err != nil {
		log.Fatal().Err(err).Msg("service setup failed")
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	var out any
	if *consensus {
		results := make([]*inference.Consensus, len(inputs))
		for i, input := range inputs {
			res, err := svc.PredictConsensus(ctx, input)
			if err != nil {
				log.Fatal().Err(err).Int("index", i).Msg("consensus failed")
			}
			results[i] = res
		}
		out = results
	} else {
		items, err := svc.PredictBatch(ctx, inputs, *modelName)
		if err != nil {
			log.Fatal().Err(err).Msg("batch prediction failed")
		}
		out = items
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		log.Fatal().Err(err).Msg("failed to write results")
	}
}

func readInputs(path string) ([]map[string]float64, error) {
	var data []byte
	var err error
	if path == "-" {
		data, err = os.ReadFile("/dev/stdin")
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, err
	}

	var inputs []map[string]float64
	if err := json.Unmarshal(data, &inputs); err != nil {
		return nil, fmt.Errorf("expected a JSON array of feature maps: %w", err)
	}
	return inputs, nil
}

func buildService(modelsDir, defaultModel string) (*inference.Service, error) {
	artifacts, err := artifact.NewStore(modelsDir)
	if err != nil {
		return nil, err
	}

	sc := scaler.New()
	if err := sc.LoadFrom(artifacts); err != nil {
		return nil, fmt.Errorf("scaler load failed: %w", err)
	}

	if defaultModel == "" {
		defaultModel = "logistic_regression"
	}
	return inference.New(inference.Config{
		DefaultModel: defaultModel,
	}, artifacts, sc, registry.New(artifacts), metricstore.New(artifacts), nil, nil), nil
}
