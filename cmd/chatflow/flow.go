package main

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/aretw0/chatflow"
	"github.com/aretw0/chatflow/internal/presentation/graph"
	"github.com/aretw0/chatflow/internal/validator"
	loamAdapter "github.com/aretw0/chatflow/pkg/adapters/loam"
	"github.com/aretw0/chatflow/pkg/condition"
	"github.com/aretw0/chatflow/pkg/domain"
	"github.com/spf13/cobra"
)

var flowCmd = &cobra.Command{
	Use:   "flow",
	Short: "Inspect the flows in the flows directory",
}

var flowLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List all flows",
	RunE: func(cmd *cobra.Command, args []string) error {
		flows, err := listFlows(cmd.Context())
		if err != nil {
			return err
		}
		if len(flows) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No flows found.")
			return nil
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tPROJECT\tSTATUS\tTRIGGER\tNODES")
		for _, f := range flows {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\n", f.ID, f.ProjectID, f.Status, f.TriggerKeyword, len(f.Nodes))
		}
		return w.Flush()
	},
}

var flowLintCmd = &cobra.Command{
	Use:   "lint [flow-id]...",
	Short: "Check flows for structural problems",
	Long: `Reports duplicate node ids, dangling edges, invalid node data, conditions
that do not parse and unreachable nodes. The engine ends a session that runs into any of them.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		flows, err := listFlows(cmd.Context())
		if err != nil {
			return err
		}
		selected := make(map[string]bool, len(args))
		for _, id := range args {
			selected[id] = true
		}

		evaluator := condition.New()
		out := cmd.OutOrStdout()
		problems := 0
		for _, f := range flows {
			if len(selected) > 0 && !selected[f.ID] {
				continue
			}
			issues := validator.ValidateFlow(&f, evaluator)
			for _, line := range validator.Summary(f.ID, issues) {
				fmt.Fprintln(out, line)
			}
			problems += len(issues)
		}
		if problems > 0 {
			return fmt.Errorf("%d problem(s) found", problems)
		}
		fmt.Fprintln(out, "All flows are valid! ✅")
		return nil
	},
}

var flowGraphCmd = &cobra.Command{
	Use:   "graph <flow-id>",
	Short: "Export a flow as a Mermaid diagram",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		provider, err := openFlows()
		if err != nil {
			return err
		}
		f, err := provider.FindByID(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("error loading flow '%s': %w", args[0], err)
		}
		fmt.Fprint(cmd.OutOrStdout(), graph.GenerateMermaid(f, nil))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(flowCmd)
	flowCmd.AddCommand(flowLsCmd)
	flowCmd.AddCommand(flowLintCmd)
	flowCmd.AddCommand(flowGraphCmd)
}

func openFlows() (*loamAdapter.Provider, error) {
	cfg, _, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return chatflow.OpenFlows(cfg.FlowsDir)
}

func listFlows(ctx context.Context) ([]domain.Flow, error) {
	provider, err := openFlows()
	if err != nil {
		return nil, err
	}
	return provider.ListFlows(ctx)
}
