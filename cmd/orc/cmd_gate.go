package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mastergrief/convex-medical-starter-sub003/internal/orchestrator"
	"github.com/mastergrief/convex-medical-starter-sub003/internal/schema"
)

var gateCmd = &cobra.Command{
	Use:   "gate",
	Short: "Phase advancement gates",
}

var (
	gateCondition string
	gateMemory    string
	gateTypecheck bool
	gateTests     bool
	gateLint      bool
	gateEvidence  string
	gateCoverage  float64
	gateCustom    string
)

func gateOverride() *orchestrator.GateOverride {
	ov := &orchestrator.GateOverride{
		Condition: gateCondition,
		Typecheck: gateTypecheck,
		Tests:     gateTests,
		Lint:      gateLint,
		Memory:    gateMemory,
		Evidence:  gateEvidence,
		Coverage:  gateCoverage,
		Custom:    gateCustom,
	}
	if ov.Condition == "" && !gateTypecheck && !gateTests && !gateLint &&
		gateMemory == "" && gateEvidence == "" && gateCoverage == 0 && gateCustom == "" {
		return nil
	}
	return ov
}

func addOverrideFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&gateCondition, "condition", "", "gate expression overriding the phase's own")
	cmd.Flags().StringVar(&gateMemory, "memory", "", "require a linked memory matching this glob")
	cmd.Flags().BoolVar(&gateTypecheck, "typecheck", false, "require the typecheck command to pass")
	cmd.Flags().BoolVar(&gateTests, "tests", false, "require the test suite to pass")
	cmd.Flags().BoolVar(&gateLint, "lint", false, "require the lint command to pass")
	cmd.Flags().StringVar(&gateEvidence, "evidence", "", "require this evidence chain to exist")
	cmd.Flags().Float64Var(&gateCoverage, "coverage", 0, "require mean evidence coverage >= N")
	cmd.Flags().StringVar(&gateCustom, "custom", "", "require this shell command to exit 0")
}

// renderGateResult prints the atoms and blockers; a failed gate is exit
// code 1 via the returned error.
func renderGateResult(result *schema.GateResult) error {
	if flagJSON {
		printJSON(result)
	} else {
		fmt.Printf("%s gate %s\n", passMark(result.Passed), headerStyle.Render(result.PhaseID))
		for _, r := range result.Results {
			line := fmt.Sprintf("  %s %s", passMark(r.Passed), r.Check)
			if !r.Passed && r.Message != "" {
				line += dimStyle.Render(" — " + r.Message)
			}
			fmt.Println(line)
		}
		for _, b := range result.Blockers {
			fmt.Println(blockerStyle.Render("  blocker: " + b))
		}
	}
	if !result.Passed {
		return fmt.Errorf("gate %s failed with %d blocker(s)", result.PhaseID, len(result.Blockers))
	}
	return nil
}

// progressObserver streams evaluator progress lines unless --json.
func progressObserver() func(string) {
	if flagJSON {
		return nil
	}
	return func(msg string) { fmt.Println(dimStyle.Render(msg)) }
}

var gateCheckCmd = &cobra.Command{
	Use:   "check <phaseId>",
	Short: "Evaluate a phase's gate and persist the result",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		o, err := openFacade()
		if err != nil {
			return err
		}
		result, err := o.CheckGate(cmd.Context(), args[0], gateOverride(), progressObserver())
		if err != nil {
			return err
		}
		return renderGateResult(result)
	},
}

var gateAdvanceCmd = &cobra.Command{
	Use:   "advance <phaseId>",
	Short: "Check the gate and, on pass, move to the next phase",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		o, err := openFacade()
		if err != nil {
			return err
		}
		result, err := o.AdvancePhase(cmd.Context(), args[0], gateOverride(), progressObserver())
		if err != nil {
			return err
		}
		if err := renderGateResult(result); err != nil {
			return err
		}
		if !flagJSON {
			st, stErr := o.ReadState()
			if stErr == nil {
				fmt.Printf("advanced to %s\n", headerStyle.Render(st.CurrentPhase.ID))
			}
		}
		return nil
	},
}

var gateListCmd = &cobra.Command{
	Use:   "list [phaseId]",
	Short: "List persisted gate results, newest first",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		o, err := openFacade()
		if err != nil {
			return err
		}
		names, err := o.GateHistory(optionalArg(args))
		if err != nil {
			return err
		}
		if flagJSON {
			printJSON(names)
			return nil
		}
		for _, n := range names {
			fmt.Println(n)
		}
		return nil
	},
}

var gateReadCmd = &cobra.Command{
	Use:   "read <phaseId>",
	Short: "Show the latest gate result for a phase",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		o, err := openFacade()
		if err != nil {
			return err
		}
		result, err := o.GateResult(args[0])
		if err != nil {
			return err
		}
		printJSON(result)
		return nil
	},
}

func init() {
	addOverrideFlags(gateCheckCmd)
	addOverrideFlags(gateAdvanceCmd)
	gateCmd.AddCommand(gateCheckCmd, gateAdvanceCmd, gateListCmd, gateReadCmd)
	rootCmd.AddCommand(gateCmd)
}
