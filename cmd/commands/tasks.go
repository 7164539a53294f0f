package commands

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/urfave/cli/v3"

	"github.com/AlaaAmrAmin/concurrency-playground/internal/task"
)

// NewTasksCommand returns the tasks subcommand.
func NewTasksCommand() *cli.Command {
	return &cli.Command{
		Name:  "tasks",
		Usage: "Inspect and cancel tasks on a running gateway",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List all tasks",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "status",
						Usage: "Filter by status (pending, running, completed, failed, cancelled)",
					},
				},
				Action: runTasksList,
			},
			{
				Name:      "show",
				Usage:     "Show task details",
				ArgsUsage: "<task_id>",
				Action:    runTasksShow,
			},
			{
				Name:      "cancel",
				Usage:     "Request cooperative cancellation of a task",
				ArgsUsage: "<task_id>",
				Action:    runTasksCancel,
			},
		},
		DefaultCommand: "list",
	}
}

func runTasksList(_ context.Context, cmd *cli.Command) error {
	url := gatewayBase(cmd) + "/api/tasks"
	if status := cmd.String("status"); status != "" {
		url += "?status=" + status
	}

	var list []task.Info
	if err := getJSON(url, &list); err != nil {
		return fmt.Errorf("list tasks: %w", err)
	}
	if len(list) == 0 {
		fmt.Println("No tasks found.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tDOMAIN\tEDGE\tSTATUS\tCANCELLED")
	for _, t := range list {
		domain := t.Domain
		if domain == "" {
			domain = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%v\n",
			t.ID, t.Name, domain, t.Edge, t.Status, t.Cancelled)
	}
	return w.Flush()
}

func runTasksShow(_ context.Context, cmd *cli.Command) error {
	taskID := cmd.Args().First()
	if taskID == "" {
		return fmt.Errorf("usage: playground tasks show <task_id>")
	}

	var t task.Info
	if err := getJSON(gatewayBase(cmd)+"/api/tasks/"+taskID, &t); err != nil {
		return fmt.Errorf("get task: %w", err)
	}

	fmt.Printf("ID:          %s\n", t.ID)
	fmt.Printf("Name:        %s\n", t.Name)
	fmt.Printf("Status:      %s\n", t.Status)
	fmt.Printf("Edge:        %s\n", t.Edge)
	fmt.Printf("Cancelled:   %v\n", t.Cancelled)
	if t.Domain != "" {
		fmt.Printf("Domain:      %s\n", t.Domain)
	}
	if t.ParentID != "" {
		fmt.Printf("Parent:      %s\n", t.ParentID)
	}
	fmt.Printf("Created:     %s\n", t.CreatedAt.Format("2006-01-02 15:04:05"))
	if t.StartedAt != nil {
		fmt.Printf("Started:     %s\n", t.StartedAt.Format("2006-01-02 15:04:05"))
	}
	if t.CompletedAt != nil {
		fmt.Printf("Completed:   %s\n", t.CompletedAt.Format("2006-01-02 15:04:05"))
	}
	if t.Error != "" {
		fmt.Printf("\nError: %s\n", t.Error)
	}
	return nil
}

func runTasksCancel(_ context.Context, cmd *cli.Command) error {
	taskID := cmd.Args().First()
	if taskID == "" {
		return fmt.Errorf("usage: playground tasks cancel <task_id>")
	}

	if err := postJSON(gatewayBase(cmd)+"/api/tasks/"+taskID+"/cancel", nil); err != nil {
		return fmt.Errorf("cancel task: %w", err)
	}
	fmt.Printf("Cancellation requested for %s. The task decides when to stop.\n", taskID)
	return nil
}
