package commands

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"
)

// NewStatusCommand returns the status subcommand.
func NewStatusCommand() *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "Show gateway status",
		Action: func(_ context.Context, cmd *cli.Command) error {
			base := gatewayBase(cmd)

			var health struct {
				Status string `json:"status"`
			}
			if err := getJSON(base+"/api/health", &health); err != nil {
				fmt.Println("Gateway: NOT RUNNING")
				return nil
			}
			fmt.Printf("Gateway: %s (%s)\n", health.Status, base)
			return nil
		},
	}
}
