// Package main provides a one-shot command line front end to the evaluation
// pipeline: evaluate a patient record, log an outcome, or print a patient's
// history without running the HTTP server.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/vision-rehab-cdss-server/internal/config"
	"github.com/vision-rehab-cdss-server/internal/domain"
	"github.com/vision-rehab-cdss-server/internal/normalizer"
	"github.com/vision-rehab-cdss-server/internal/outcome"
	"github.com/vision-rehab-cdss-server/internal/service"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	command := os.Args[1]
	args := os.Args[2:]

	var err error
	switch command {
	case "evaluate":
		err = runEvaluate(args)
	case "log-outcome":
		err = runLogOutcome(args)
	case "history":
		err = runHistory(args)
	default:
		usage()
		os.Exit(2)
	}

	if err != nil {
		log.Fatalf("%s failed: %v", command, err)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `Usage: cdss <command> [flags]

Commands:
  evaluate     evaluate a patient record from a JSON file
  log-outcome  append an outcome record from a JSON file
  history      print a patient's outcome history`)
}

// newEvaluator loads config, knowledge base, and store the same way the
// server does, but with quiet logging suited to one-shot use.
func newEvaluator() (*service.Evaluator, outcome.Store, error) {
	configManager, err := config.NewManager()
	if err != nil {
		return nil, nil, err
	}
	if err := configManager.Validate(); err != nil {
		return nil, nil, err
	}
	cfg := configManager.GetConfig()

	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)
	logger.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})

	kb, err := config.LoadKnowledgeBase(cfg.Knowledge.RulesDir)
	if err != nil {
		return nil, nil, err
	}

	store, err := outcome.NewSQLiteStore(cfg.Store.SQLitePath)
	if err != nil {
		return nil, nil, err
	}

	return service.NewEvaluator(logger, kb, store), store, nil
}

func runEvaluate(args []string) error {
	fs := flag.NewFlagSet("evaluate", flag.ExitOnError)
	input := fs.String("input", "", "path to a JSON file holding a manual record or FHIR bundle")
	lang := fs.String("lang", "ar", "report language: ar or en")
	fhir := fs.Bool("fhir", false, "treat the input as a FHIR bundle")
	asJSON := fs.Bool("json", false, "print the full result as JSON instead of the report")
	fs.Parse(args)

	if *input == "" {
		return fmt.Errorf("-input is required")
	}

	data, err := os.ReadFile(*input)
	if err != nil {
		return err
	}

	evaluator, store, err := newEvaluator()
	if err != nil {
		return err
	}
	defer store.Close()

	language := domain.Language(*lang)
	ctx := context.Background()

	var result *service.Result
	if *fhir {
		var bundle normalizer.Bundle
		if err := json.Unmarshal(data, &bundle); err != nil {
			return fmt.Errorf("failed to parse bundle: %w", err)
		}
		result, err = evaluator.EvaluateFHIR(ctx, &bundle, language)
	} else {
		var record normalizer.ManualRecord
		if err := json.Unmarshal(data, &record); err != nil {
			return fmt.Errorf("failed to parse record: %w", err)
		}
		result, err = evaluator.EvaluateManual(ctx, &record, language)
	}
	if err != nil {
		return err
	}

	if *asJSON {
		return printJSON(result)
	}
	fmt.Println(result.ClinicalReport)
	return nil
}

func runLogOutcome(args []string) error {
	fs := flag.NewFlagSet("log-outcome", flag.ExitOnError)
	input := fs.String("input", "", "path to a JSON file holding the outcome record")
	fs.Parse(args)

	if *input == "" {
		return fmt.Errorf("-input is required")
	}

	data, err := os.ReadFile(*input)
	if err != nil {
		return err
	}

	var record domain.OutcomeRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return fmt.Errorf("failed to parse outcome record: %w", err)
	}

	evaluator, store, err := newEvaluator()
	if err != nil {
		return err
	}
	defer store.Close()

	if err := evaluator.LogOutcome(context.Background(), &record); err != nil {
		return err
	}

	fmt.Printf("Outcome logged for patient %s, technique %s\n", record.PatientID, record.TechniqueID)
	return nil
}

func runHistory(args []string) error {
	fs := flag.NewFlagSet("history", flag.ExitOnError)
	patientID := fs.String("patient", "", "patient identifier")
	summary := fs.Bool("summary", false, "print the aggregate summary instead of raw records")
	fs.Parse(args)

	if *patientID == "" {
		return fmt.Errorf("-patient is required")
	}

	evaluator, store, err := newEvaluator()
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := context.Background()
	if *summary {
		s, err := evaluator.PatientSummary(ctx, *patientID)
		if err != nil {
			return err
		}
		return printJSON(s)
	}

	history, err := evaluator.PatientHistory(ctx, *patientID)
	if err != nil {
		return err
	}
	return printJSON(history)
}

func printJSON(v interface{}) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}
