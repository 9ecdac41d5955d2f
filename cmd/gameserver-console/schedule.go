package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Inspect scheduled events",
}

var scheduleListCmd = &cobra.Command{
	Use:   "list",
	Short: "List configured events and their next run",
	Args:  cobra.NoArgs,
	RunE:  runScheduleList,
}

func init() {
	scheduleCmd.AddCommand(scheduleListCmd)
}

func runScheduleList(cmd *cobra.Command, args []string) error {
	_, cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if len(cfg.Events) == 0 {
		fmt.Println("No events configured.")
		return nil
	}

	now := time.Now()
	for _, e := range cfg.Events {
		summary, _ := describeEvent(e, now)
		fmt.Printf("%-20s %-24s %-8s %-16s %s\n", e.EffectiveID(), e.Name, e.Type, e.Cron, summary)
	}
	return nil
}
