// Package main provides a CLI that validates and executes a single workflow
// graph from a JSON file, for local development and debugging.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"

	cli "github.com/urfave/cli/v3"

	"github.com/artistscloud/a9ents-sub000/pkg/cmd"
	"github.com/artistscloud/a9ents-sub000/pkg/engine"
	"github.com/artistscloud/a9ents-sub000/pkg/log"
	"github.com/artistscloud/a9ents-sub000/pkg/models"
	"github.com/artistscloud/a9ents-sub000/pkg/runstore"
	"github.com/artistscloud/a9ents-sub000/pkg/validation"
)

func main() {
	logger := log.WithModule("runner")

	command := &cli.Command{
		Name:  "a9ents-runner",
		Usage: "Validate and execute a workflow graph from a JSON file",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "graph",
				Aliases:  []string{"g"},
				Usage:    "Path to the graph JSON file",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "payload",
				Usage: "Trigger payload as a JSON object",
				Value: "{}",
			},
			&cli.BoolFlag{
				Name:  "validate-only",
				Usage: "Validate the graph and exit without running it",
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))

			graph, err := loadGraph(command.String("graph"))
			if err != nil {
				return err
			}

			var payload map[string]any
			if err := json.Unmarshal([]byte(command.String("payload")), &payload); err != nil {
				return fmt.Errorf("invalid payload JSON: %w", err)
			}

			reg := cmd.NewRegistry(logger)

			report := validation.Validate(graph, reg)
			printReport(report)

			if !report.OK {
				return errors.New("graph is not valid")
			}

			if command.Bool("validate-only") {
				return nil
			}

			eng := engine.New(logger, reg, runstore.NewMemoryStore())

			run, err := eng.Execute(ctx, graph, payload)
			if err != nil {
				return err
			}

			printRun(run)

			if run.Status != models.RunStatusSucceeded {
				return fmt.Errorf("run finished with status %s", run.Status)
			}

			return nil
		},
	}

	if err := command.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func loadGraph(path string) (*models.Graph, error) {
	body, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read graph file: %w", err)
	}

	var graph models.Graph
	if err := json.Unmarshal(body, &graph); err != nil {
		return nil, fmt.Errorf("failed to parse graph file: %w", err)
	}

	return &graph, nil
}

func printReport(report validation.Report) {
	if len(report.Issues) == 0 {
		fmt.Println("validation: ok")

		return
	}

	for _, issue := range report.Issues {
		severity := "warning"
		if issue.Fatal {
			severity = "error"
		}

		fmt.Printf("validation %s [%s]: %s\n", severity, issue.Code, issue.Message)
	}
}

func printRun(run *models.Run) {
	fmt.Printf("run %s: %s\n", run.ID, run.Status)

	nodeIDs := make([]string, 0, len(run.NodeResults))
	for id := range run.NodeResults {
		nodeIDs = append(nodeIDs, id)
	}

	sort.Strings(nodeIDs)

	for _, id := range nodeIDs {
		result := run.NodeResults[id]

		switch result.Status {
		case models.NodeStatusSkipped:
			fmt.Printf("  %s: %s (%s)\n", id, result.Status, result.SkipReason)
		case models.NodeStatusFailed:
			fmt.Printf("  %s: %s (%s)\n", id, result.Status, result.Error)
		default:
			outputs, _ := json.Marshal(result.Outputs)
			fmt.Printf("  %s: %s %s\n", id, result.Status, outputs)
		}
	}
}
