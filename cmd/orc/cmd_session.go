package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Session lifecycle",
}

var sessionNewCmd = &cobra.Command{
	Use:   "new",
	Short: "Create a session and print its id",
	RunE: func(cmd *cobra.Command, args []string) error {
		mgr, _, err := newManager()
		if err != nil {
			return err
		}
		store, err := mgr.New(time.Now().UTC())
		if err != nil {
			return err
		}
		if flagJSON {
			printJSON(map[string]string{"sessionId": store.ID()})
			return nil
		}
		fmt.Println(store.ID())
		return nil
	},
}

var sessionListCmd = &cobra.Command{
	Use:   "list",
	Short: "List session ids",
	RunE: func(cmd *cobra.Command, args []string) error {
		mgr, _, err := newManager()
		if err != nil {
			return err
		}
		ids, err := mgr.List()
		if err != nil {
			return err
		}
		if flagJSON {
			printJSON(ids)
			return nil
		}
		for _, id := range ids {
			fmt.Println(id)
		}
		return nil
	},
}

var sessionInfoCmd = &cobra.Command{
	Use:   "info [id]",
	Short: "Show one session's age and activity",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		mgr, _, err := newManager()
		if err != nil {
			return err
		}
		id := sessionID()
		if len(args) == 1 {
			id = args[0]
		}
		if id == "" {
			if id, err = mgr.Latest(); err != nil {
				return err
			}
		}
		age, err := mgr.Age(id, time.Now())
		if err != nil {
			return err
		}
		if flagJSON {
			printJSON(map[string]any{"sessionId": id, "ageDays": age})
			return nil
		}
		fmt.Println(headerStyle.Render(id))
		field("age", fmt.Sprintf("%.1f days", age))
		return nil
	},
}

var (
	purgeOlderThan int
	purgeKeep      int
	purgeDryRun    bool
)

var sessionPurgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete stale sessions, always keeping the newest few",
	RunE: func(cmd *cobra.Command, args []string) error {
		mgr, cfg, err := newManager()
		if err != nil {
			return err
		}
		olderThan := purgeOlderThan
		if !cmd.Flags().Changed("older-than-days") {
			olderThan = cfg.Retention.OlderThanDays
		}
		keep := purgeKeep
		if !cmd.Flags().Changed("keep") {
			keep = cfg.Retention.Keep
		}
		purged, err := mgr.PurgeOld(olderThan, keep, purgeDryRun, time.Now())
		if err != nil {
			return err
		}
		if flagJSON {
			printJSON(map[string]any{"purged": purged, "dryRun": purgeDryRun})
			return nil
		}
		if len(purged) == 0 {
			fmt.Println(dimStyle.Render("nothing to purge"))
			return nil
		}
		verb := "purged"
		if purgeDryRun {
			verb = "would purge"
		}
		for _, id := range purged {
			fmt.Printf("%s %s\n", verb, id)
		}
		return nil
	},
}

func init() {
	sessionPurgeCmd.Flags().IntVar(&purgeOlderThan, "older-than-days", 7, "purge sessions older than this many days")
	sessionPurgeCmd.Flags().IntVar(&purgeKeep, "keep", 3, "always keep this many newest sessions")
	sessionPurgeCmd.Flags().BoolVar(&purgeDryRun, "dry-run", false, "report without deleting")

	sessionCmd.AddCommand(sessionNewCmd, sessionListCmd, sessionInfoCmd, sessionPurgeCmd)
	rootCmd.AddCommand(sessionCmd)
}
