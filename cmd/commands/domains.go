package commands

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/urfave/cli/v3"

	"github.com/AlaaAmrAmin/concurrency-playground/internal/runtime"
)

// NewDomainsCommand returns the domains subcommand.
func NewDomainsCommand() *cli.Command {
	return &cli.Command{
		Name:  "domains",
		Usage: "List isolation domains on a running gateway",
		Action: func(_ context.Context, cmd *cli.Command) error {
			var domains []runtime.DomainInfo
			if err := getJSON(gatewayBase(cmd)+"/api/domains", &domains); err != nil {
				return fmt.Errorf("list domains: %w", err)
			}
			if len(domains) == 0 {
				fmt.Println("No domains registered.")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME")
			for _, d := range domains {
				fmt.Fprintf(w, "%s\t%s\n", d.ID, d.Name)
			}
			return w.Flush()
		},
	}
}
