package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mastergrief/convex-medical-starter-sub003/internal/orchestrator"
)

var (
	executeMaxAgents int
	executeResume    string
)

func renderInstructions(pi *orchestrator.PhaseInstructions) {
	fmt.Printf("%s (%s)\n", headerStyle.Render(pi.PhaseID), pi.PhaseName)
	for _, inst := range pi.Instructions {
		fmt.Println("  " + inst.Summary)
		for _, spawn := range inst.Spawns {
			fmt.Printf("    %-12s %s\n", spawn.TaskID, dimStyle.Render(spawn.Command))
		}
	}
}

var executeCmd = &cobra.Command{
	Use:   "execute <phaseId>",
	Short: "Produce dispatch instructions for one phase",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		o, err := openFacade()
		if err != nil {
			return err
		}
		pi, err := o.ExecutePhase(args[0], executeMaxAgents)
		if err != nil {
			return err
		}
		if flagJSON {
			printJSON(pi)
			return nil
		}
		renderInstructions(pi)
		return nil
	},
}

var executePlanCmd = &cobra.Command{
	Use:   "execute-plan",
	Short: "Produce dispatch instructions for the whole plan",
	RunE: func(cmd *cobra.Command, args []string) error {
		o, err := openFacade()
		if err != nil {
			return err
		}
		all, err := o.ExecutePlan(executeResume, executeMaxAgents)
		if err != nil {
			return err
		}
		if flagJSON {
			printJSON(all)
			return nil
		}
		for i := range all {
			renderInstructions(&all[i])
		}
		return nil
	},
}

var agentsCmd = &cobra.Command{
	Use:   "agents",
	Short: "Registered agent maintenance",
}

var agentsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered agents",
	RunE: func(cmd *cobra.Command, args []string) error {
		o, err := openFacade()
		if err != nil {
			return err
		}
		agents, err := o.Agents()
		if err != nil {
			return err
		}
		if flagJSON {
			printJSON(agents)
			return nil
		}
		for _, a := range agents {
			fmt.Printf("%-10s %-12s task=%-12s %s\n", a.Status, a.Type, a.TaskID, dimStyle.Render(a.ID))
		}
		return nil
	},
}

var agentsKillCmd = &cobra.Command{
	Use:   "kill <agentId>",
	Short: "Mark a registered agent failed",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		o, err := openFacade()
		if err != nil {
			return err
		}
		killed, err := o.KillAgent(args[0])
		if err != nil {
			return err
		}
		if flagJSON {
			printJSON(killed)
			return nil
		}
		fmt.Printf("killed %s (task %s)\n", killed.ID, killed.TaskID)
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Session, phase and token summary",
	RunE: func(cmd *cobra.Command, args []string) error {
		o, err := openFacade()
		if err != nil {
			return err
		}
		s, err := o.SessionStatus()
		if err != nil {
			return err
		}
		if flagJSON {
			printJSON(s)
			return nil
		}
		fmt.Println(headerStyle.Render(s.SessionID))
		field("status", s.Status)
		field("phase", fmt.Sprintf("%s (%d%%)", s.CurrentPhase.ID, s.CurrentPhase.Progress))
		field("agents", s.Agents)
		field("handoffs", s.Handoffs)
		if s.PlanID != "" {
			field("plan", s.PlanID)
		}
		if s.TokenUsage != nil {
			field("tokens", fmt.Sprintf("%d/%d (%.0f%%)",
				s.TokenUsage.Consumed, s.TokenUsage.Limit, s.TokenUsage.Percentage))
		}
		return nil
	},
}

func init() {
	executeCmd.Flags().IntVar(&executeMaxAgents, "max-agents", 0, "override max concurrent agents")
	executePlanCmd.Flags().IntVar(&executeMaxAgents, "max-agents", 0, "override max concurrent agents")
	executePlanCmd.Flags().StringVar(&executeResume, "resume-from", "", "start from this phase id")

	agentsCmd.AddCommand(agentsListCmd, agentsKillCmd)
	rootCmd.AddCommand(executeCmd, executePlanCmd, agentsCmd, statusCmd)
}
