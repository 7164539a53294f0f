package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"

	"github.com/urfave/cli/v3"

	"github.com/AlaaAmrAmin/concurrency-playground/internal/config"
	"github.com/AlaaAmrAmin/concurrency-playground/internal/runtime"
	"github.com/AlaaAmrAmin/concurrency-playground/internal/scenario"
)

// NewRunCommand returns the run subcommand.
func NewRunCommand() *cli.Command {
	return &cli.Command{
		Name:      "run",
		Usage:     "Run scenario files against a fresh runtime",
		ArgsUsage: "<glob>",
		Description: "Discovers scenario YAML files matching the glob (doublestar " +
			"patterns like scenarios/**/*.yaml are supported), runs each task tree, " +
			"and reports per-task outcomes.",
		Action: runScenarios,
	}
}

func runScenarios(ctx context.Context, cmd *cli.Command) error {
	if cmd.Bool("debug") {
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})))
	}

	pattern := cmd.Args().First()
	if pattern == "" {
		pattern = "scenarios/**/*.yaml"
	}

	paths, err := scenario.Discover(pattern)
	if err != nil {
		return fmt.Errorf("discover scenarios: %w", err)
	}
	if len(paths) == 0 {
		fmt.Printf("No scenarios match %q.\n", pattern)
		return nil
	}

	cfg := config.Default()
	if p := cmd.String("config"); p != "" {
		if loaded, err := config.Load(p); err == nil {
			cfg = loaded
		}
	}

	rt := runtime.New(cfg)
	defer rt.Stop()
	runner := scenario.NewRunner(rt)

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "SCENARIO\tTASK\tDOMAIN\tSTATUS\tCANCELLED\tELAPSED\tERROR")

	for _, path := range paths {
		sc, err := scenario.Load(path)
		if err != nil {
			return fmt.Errorf("load %s: %w", path, err)
		}
		results, err := runner.Run(ctx, sc)
		if err != nil {
			return fmt.Errorf("run %s: %w", sc.Name, err)
		}
		for _, res := range results {
			domain := res.Domain
			if domain == "" {
				domain = "-"
			}
			errText := res.Error
			if errText == "" {
				errText = "-"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%v\t%s\t%s\n",
				sc.Name, res.Name, domain, res.Status, res.Cancelled, res.Elapsed, errText)
		}
	}
	return w.Flush()
}
