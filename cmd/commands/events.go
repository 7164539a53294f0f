package commands

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/urfave/cli/v3"

	"github.com/AlaaAmrAmin/concurrency-playground/internal/events"
)

// NewEventsCommand returns the events subcommand.
func NewEventsCommand() *cli.Command {
	return &cli.Command{
		Name:  "events",
		Usage: "Show recent runtime events from a running gateway",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "limit",
				Usage: "Maximum number of events to show",
				Value: 25,
			},
		},
		Action: func(_ context.Context, cmd *cli.Command) error {
			url := fmt.Sprintf("%s/api/events?limit=%d", gatewayBase(cmd), cmd.Int("limit"))

			var list []events.Event
			if err := getJSON(url, &list); err != nil {
				return fmt.Errorf("list events: %w", err)
			}
			if len(list) == 0 {
				fmt.Println("No events recorded.")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "TIME\tTYPE\tSOURCE")
			for _, e := range list {
				fmt.Fprintf(w, "%s\t%s\t%s\n", e.Timestamp.Format("15:04:05"), e.Type, e.Source)
			}
			return w.Flush()
		},
	}
}
