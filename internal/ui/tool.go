package ui

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/javiermolinar/studyplanner/internal/assistant"
)

func (a *App) toolsCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "tools",
		Short: "List the assistant tool surface",
		Long: `List the tools an external assistant can call, with their parameter
schemas when --json is given.

Use 'studyplanner tools run' to execute one locally.`,
		RunE: func(_ *cobra.Command, _ []string) error {
			tools := assistant.Tools()
			if asJSON {
				enc := json.NewEncoder(a.out)
				enc.SetIndent("", "  ")
				return enc.Encode(tools)
			}
			for _, t := range tools {
				desc := ""
				if t.Function.Description.Valid() {
					desc = t.Function.Description.Value
				}
				a.printf("  %-24s %s\n", formatHeader(t.Function.Name), truncate(desc, descWidth(28, 30)))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the tool definitions as JSON")

	cmd.AddCommand(a.toolsRunCmd())
	return cmd
}

func (a *App) toolsRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run [tool] [json-args]",
		Short: "Execute one assistant tool",
		Long: `Execute a tool the same way the assistant would and print its JSON
result. Arguments are a JSON object; pass "-" to read them from stdin.`,
		Example: `  studyplanner tools run list_tasks
  studyplanner tools run find_free_slots '{"start_date":"2025-03-04","min_duration_mins":60}'
  echo '{"task_id":3}' | studyplanner tools run plan_task -`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.ensureRepo(); err != nil {
				return err
			}

			raw := ""
			if len(args) == 2 {
				raw = args[1]
			}
			if raw == "-" {
				data, err := io.ReadAll(os.Stdin)
				if err != nil {
					return fmt.Errorf("reading arguments: %w", err)
				}
				raw = string(data)
			}

			d := assistant.NewDispatcher(a.planner, a.repo, a.repo, a.userID(), a.log)
			out, err := d.Execute(cmd.Context(), args[0], strings.TrimSpace(raw))
			if err != nil {
				return err
			}
			a.println(out)
			return nil
		},
	}
}
