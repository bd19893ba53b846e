package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"bilisub/internal/api"
	"bilisub/internal/artifacts"
	"bilisub/internal/config"
	"bilisub/internal/queue"
)

func newTasksCommand(ctx *commandContext) *cobra.Command {
	tasksCmd := &cobra.Command{
		Use:   "tasks",
		Short: "Inspect and manage service tasks",
	}
	tasksCmd.AddCommand(newTasksListCommand(ctx))
	tasksCmd.AddCommand(newTasksShowCommand(ctx))
	tasksCmd.AddCommand(newTasksCancelCommand(ctx))
	tasksCmd.AddCommand(newTasksRemoveCommand(ctx))
	return tasksCmd
}

func newTasksListCommand(ctx *commandContext) *cobra.Command {
	var statuses []string
	var client string
	var limit int
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			filter := queue.Filter{ClientID: strings.TrimSpace(client), Limit: limit}
			for _, raw := range statuses {
				status, ok := queue.ParseStatus(strings.ToLower(strings.TrimSpace(raw)))
				if !ok {
					return fmt.Errorf("unknown status %q", raw)
				}
				filter.Statuses = append(filter.Statuses, status)
			}
			return ctx.withStore(func(_ *config.Config, store *queue.Store) error {
				items, err := store.List(cmd.Context(), filter)
				if err != nil {
					return err
				}
				if jsonOutput {
					return writeJSON(cmd, api.FromItems(items))
				}
				out := cmd.OutOrStdout()
				if len(items) == 0 {
					fmt.Fprintln(out, "No tasks")
					return nil
				}
				rows := make([][]string, 0, len(items))
				for _, item := range items {
					rows = append(rows, []string{
						item.ID,
						item.ClientID,
						colorStatus(out, item.Status),
						fmt.Sprintf("%.0f%%", item.Progress),
						truncate(displayTitle(item), 40),
						item.UpdatedAt.Local().Format(time.DateTime),
					})
				}
				fmt.Fprintln(out, renderTable(out,
					[]string{"ID", "Client", "Status", "Progress", "Video", "Updated"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft, alignLeft},
				))
				return nil
			})
		},
	}

	cmd.Flags().StringSliceVar(&statuses, "status", nil, "Filter by status (repeatable or comma separated)")
	cmd.Flags().StringVar(&client, "client", "", "Only tasks of this client")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum rows (0 for all)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print JSON")
	return cmd
}

func displayTitle(item *queue.Item) string {
	if item.Video.Title != "" {
		return item.Video.Title
	}
	return item.Input
}

func newTasksShowCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show one task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, store *queue.Store) error {
				item, err := store.Get(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if jsonOutput {
					return writeJSON(cmd, artifacts.ItemReportFor(item))
				}
				out := cmd.OutOrStdout()
				rows := [][]string{
					{"ID", item.ID},
					{"Client", item.ClientID},
					{"Input", item.Input},
					{"Status", colorStatus(out, item.Status)},
					{"Progress", fmt.Sprintf("%.0f%% %s", item.Progress, item.ProgressMessage)},
					{"Formats", strings.Join(item.Formats, ", ")},
					{"Created", item.CreatedAt.Local().Format(time.DateTime)},
					{"Updated", item.UpdatedAt.Local().Format(time.DateTime)},
				}
				if item.Video.ID != "" {
					rows = append(rows,
						[]string{"Video", item.Video.ID},
						[]string{"Title", item.Video.Title},
						[]string{"Duration", item.Video.Duration.Round(time.Second).String()},
					)
				}
				if res := item.Result; res != nil {
					rows = append(rows,
						[]string{"Segments", fmt.Sprintf("%d authored, %d recognized", res.Stats.Authored, res.Stats.Recognized)},
						[]string{"Languages", strings.Join(res.Languages, ", ")},
						[]string{"ASR", yesNo(res.UsedRecognition)},
						[]string{"Directory", res.Dir},
						[]string{"Files", strings.Join(res.Files, ", ")},
					)
					if res.Note != "" {
						rows = append(rows, []string{"Note", res.Note})
					}
				}
				if e := item.Error; e != nil {
					rows = append(rows,
						[]string{"Error", fmt.Sprintf("%s: %s", e.Kind, e.Message)},
						[]string{"Attempts", fmt.Sprintf("%d", e.Attempts)},
					)
				}
				fmt.Fprintln(out, renderTable(out, []string{"Field", "Value"}, rows, nil))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print JSON")
	return cmd
}

func newTasksCancelCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <id>",
		Short: "Cancel a pending or running task",
		Long: `Cancel a pending or running task.

When the service daemon is running it notices the cancellation at the
task's next checkpoint and discards any partial output.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(_ *config.Config, store *queue.Store) error {
				item, err := store.Cancel(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Task %s cancelled\n", item.ID)
				return nil
			})
		},
	}
}

func newTasksRemoveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <id>",
		Short: "Remove a finished task and its files",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, store *queue.Store) error {
				layout := artifacts.NewLayout(cfg.Paths.OutputDir, nil)
				store.SetReleaser(func(_ context.Context, item *queue.Item) error {
					return layout.Remove(item.ID)
				})
				item, err := store.Get(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if item.Status.Active() {
					return fmt.Errorf("task %s is %s; cancel it first", item.ID, item.Status)
				}
				if err := store.Delete(cmd.Context(), item.ID); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Task %s removed\n", item.ID)
				return nil
			})
		},
	}
}
