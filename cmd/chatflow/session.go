package main

import (
	"encoding/json"
	"fmt"

	"github.com/aretw0/chatflow/internal/cli"
	"github.com/aretw0/chatflow/internal/config"
	"github.com/aretw0/chatflow/internal/presentation/graph"
	"github.com/aretw0/chatflow/pkg/persistence/middleware"
	"github.com/spf13/cobra"
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Inspect stored sessions",
	Long:  `List and inspect the sessions kept in the configured store (Redis when --redis-addr is set).`,
}

var sessionLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List all stored sessions",
	RunE: func(cmd *cobra.Command, args []string) error {
		stack, _, err := buildStack()
		if err != nil {
			return err
		}
		defer stack.Close()

		ids, err := stack.Sessions.List(cmd.Context())
		if err != nil {
			return fmt.Errorf("error listing sessions: %w", err)
		}
		if len(ids) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No sessions found.")
			return nil
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Sessions:")
		for _, id := range ids {
			fmt.Fprintln(cmd.OutOrStdout(), "- "+id)
		}
		return nil
	},
}

var sessionInspectCmd = &cobra.Command{
	Use:   "inspect <session-id>",
	Short: "Inspect the state of a session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sessionID := args[0]
		stack, cfg, err := buildStack()
		if err != nil {
			return err
		}
		defer stack.Close()

		s, err := stack.Sessions.Get(cmd.Context(), sessionID)
		if err != nil {
			return fmt.Errorf("error loading session '%s': %w", sessionID, err)
		}

		if asGraph, _ := cmd.Flags().GetBool("graph"); asGraph {
			f, err := stack.Flows.FindByID(cmd.Context(), s.CurrentFlowID)
			if err != nil {
				return fmt.Errorf("error loading flow '%s': %w", s.CurrentFlowID, err)
			}
			fmt.Fprint(cmd.OutOrStdout(), graph.GenerateMermaid(f, &graph.GraphOverlay{CurrentNode: s.CurrentNodeID}))
			return nil
		}

		if reveal, _ := cmd.Flags().GetBool("reveal"); !reveal {
			s = middleware.MaskSession(s, cfg.PIIFields)
		}
		data, err := json.MarshalIndent(s, "", "  ")
		if err != nil {
			return fmt.Errorf("error marshaling session: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(sessionCmd)
	sessionCmd.AddCommand(sessionLsCmd)
	sessionCmd.AddCommand(sessionInspectCmd)

	sessionInspectCmd.Flags().Bool("graph", false, "print the session's flow as Mermaid with the current node highlighted")
	sessionInspectCmd.Flags().Bool("reveal", false, "do not mask collected fields matching --pii-fields")
}

func buildStack() (*cli.Stack, config.Config, error) {
	cfg, logger, err := loadConfig()
	if err != nil {
		return nil, cfg, err
	}
	stack, err := cli.BuildStack(cfg, logger)
	return stack, cfg, err
}
