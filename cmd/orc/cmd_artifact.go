package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/mastergrief/convex-medical-starter-sub003/internal/artifact"
	"github.com/mastergrief/convex-medical-starter-sub003/internal/schema"
)

// decodeFile reads a JSON or YAML document into v. YAML goes through a
// JSON round-trip so the schema structs' json tags apply.
func decodeFile(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".yaml" || ext == ".yml" {
		var tree any
		if err := yaml.Unmarshal(data, &tree); err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}
		if data, err = json.Marshal(tree); err != nil {
			return fmt.Errorf("convert %s: %w", path, err)
		}
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

var promptCmd = &cobra.Command{
	Use:   "prompt",
	Short: "Originating user intent",
}

var promptWriteCmd = &cobra.Command{
	Use:   "write <description>",
	Short: "Record the session's prompt",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		o, err := openFacade()
		if err != nil {
			return err
		}
		p, err := o.WritePrompt(args[0], nil)
		if err != nil {
			return err
		}
		if flagJSON {
			printJSON(p)
			return nil
		}
		fmt.Println("wrote prompt", p.ID)
		return nil
	},
}

var promptReadCmd = &cobra.Command{
	Use:   "read [id]",
	Short: "Show a prompt (current one by default)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		o, err := openFacade()
		if err != nil {
			return err
		}
		p, err := o.ReadPrompt(optionalArg(args))
		if err != nil {
			return err
		}
		printJSON(p)
		return nil
	},
}

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Phase plans",
}

var planWriteCmd = &cobra.Command{
	Use:   "write <file(.json|.yaml)>",
	Short: "Validate and store a plan, making it current",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		o, err := openFacade()
		if err != nil {
			return err
		}
		var p schema.Plan
		if err := decodeFile(args[0], &p); err != nil {
			return err
		}
		written, err := o.WritePlan(&p)
		if err != nil {
			return err
		}
		if flagJSON {
			printJSON(written)
			return nil
		}
		fmt.Printf("wrote plan %s (%d phases)\n", written.ID, len(written.Phases))
		return nil
	},
}

var planReadCmd = &cobra.Command{
	Use:   "read [id]",
	Short: "Show a plan (current one by default)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		o, err := openFacade()
		if err != nil {
			return err
		}
		p, err := o.ReadPlan(optionalArg(args))
		if err != nil {
			return err
		}
		printJSON(p)
		return nil
	},
}

var handoffCmd = &cobra.Command{
	Use:   "handoff",
	Short: "Agent handoffs",
}

var handoffWriteCmd = &cobra.Command{
	Use:   "write <file>",
	Short: "Store a handoff and auto-link evidence",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		o, err := openFacade()
		if err != nil {
			return err
		}
		var h schema.Handoff
		if err := decodeFile(args[0], &h); err != nil {
			return err
		}
		written, err := o.WriteHandoff(&h)
		if err != nil {
			return err
		}
		if flagJSON {
			printJSON(written)
			return nil
		}
		fmt.Printf("wrote handoff %s from %s\n", written.ID, written.Metadata.FromAgent.Type)
		return nil
	},
}

var handoffReadCmd = &cobra.Command{
	Use:   "read [id]",
	Short: "Show a handoff (latest by default)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		o, err := openFacade()
		if err != nil {
			return err
		}
		h, err := o.ReadHandoff(optionalArg(args))
		if err != nil {
			return err
		}
		printJSON(h)
		return nil
	},
}

var handoffListCmd = &cobra.Command{
	Use:   "list",
	Short: "List handoffs, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		o, err := openFacade()
		if err != nil {
			return err
		}
		summaries, err := o.ListHandoffs()
		if err != nil {
			return err
		}
		if flagJSON {
			printJSON(summaries)
			return nil
		}
		for _, s := range summaries {
			fmt.Printf("%s  %-12s %s\n", s.Timestamp, s.FromAgentType, dimStyle.Render(s.ID))
		}
		return nil
	},
}

var handoffWatchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Stream new handoff filenames until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		o, err := openFacade()
		if err != nil {
			return err
		}
		ch, err := o.WatchHandoffs(cmd.Context())
		if err != nil {
			return err
		}
		for name := range ch {
			fmt.Println(name)
		}
		return nil
	},
}

var stateCmd = &cobra.Command{
	Use:   "state",
	Short: "Orchestrator run state",
}

var stateReadCmd = &cobra.Command{
	Use:   "read",
	Short: "Show orchestrator state",
	RunE: func(cmd *cobra.Command, args []string) error {
		o, err := openFacade()
		if err != nil {
			return err
		}
		st, err := o.ReadState()
		if err != nil {
			return err
		}
		printJSON(st)
		return nil
	},
}

var stateWriteCmd = &cobra.Command{
	Use:   "write <file>",
	Short: "Replace orchestrator state, archiving the prior document",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		o, err := openFacade()
		if err != nil {
			return err
		}
		var st schema.OrchestratorState
		if err := decodeFile(args[0], &st); err != nil {
			return err
		}
		if err := o.WriteState(&st); err != nil {
			return err
		}
		fmt.Println("state written")
		return nil
	},
}

var memoryCmd = &cobra.Command{
	Use:   "memory",
	Short: "Linked knowledge artifacts",
}

var (
	memoryExtract   bool
	memoryForAgents []string
)

var memoryLinkCmd = &cobra.Command{
	Use:   "link <name> <sourcePath> [summary]",
	Short: "Link an external knowledge file into the session",
	Args:  cobra.RangeArgs(2, 3),
	RunE: func(cmd *cobra.Command, args []string) error {
		o, err := openFacade()
		if err != nil {
			return err
		}
		opts := artifact.LinkOptions{Extract: memoryExtract}
		if len(args) == 3 {
			opts.Summary = args[2]
		}
		for _, a := range memoryForAgents {
			opts.ForAgents = append(opts.ForAgents, schema.AgentType(a))
		}
		m, err := o.LinkMemory(args[0], args[1], opts)
		if err != nil {
			return err
		}
		if flagJSON {
			printJSON(m)
			return nil
		}
		fmt.Printf("linked %s -> %s\n", m.MemoryName, m.SourcePath)
		return nil
	},
}

var memoryListCmd = &cobra.Command{
	Use:   "list",
	Short: "List linked memory names",
	RunE: func(cmd *cobra.Command, args []string) error {
		o, err := openFacade()
		if err != nil {
			return err
		}
		names, err := o.ListMemories()
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

var memoryGetCmd = &cobra.Command{
	Use:   "get <name>",
	Short: "Show one linked memory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		o, err := openFacade()
		if err != nil {
			return err
		}
		m, err := o.GetMemory(args[0])
		if err != nil {
			return err
		}
		printJSON(m)
		return nil
	},
}

func optionalArg(args []string) string {
	if len(args) == 1 {
		return args[0]
	}
	return ""
}

func init() {
	promptCmd.AddCommand(promptWriteCmd, promptReadCmd)
	planCmd.AddCommand(planWriteCmd, planReadCmd)
	handoffCmd.AddCommand(handoffWriteCmd, handoffReadCmd, handoffListCmd, handoffWatchCmd)
	stateCmd.AddCommand(stateReadCmd, stateWriteCmd)

	memoryLinkCmd.Flags().BoolVar(&memoryExtract, "extract", false, "extract traceability data from the source")
	memoryLinkCmd.Flags().StringSliceVar(&memoryForAgents, "for", nil, "agent types the memory targets")
	memoryCmd.AddCommand(memoryLinkCmd, memoryListCmd, memoryGetCmd)

	rootCmd.AddCommand(promptCmd, planCmd, handoffCmd, stateCmd, memoryCmd)
}
