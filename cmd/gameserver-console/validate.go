package main

import (
	"fmt"
	"os"
	"time"

	"github.com/fgeck/gameserver-console/internal/config"
	"github.com/fgeck/gameserver-console/internal/models"
	"github.com/fgeck/gameserver-console/internal/services/dispatcher"
	"github.com/fgeck/gameserver-console/internal/services/retention"
	"github.com/fgeck/gameserver-console/internal/services/scheduler"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration file",
	Long:  `Validate the configuration file and every scheduled event without starting the console.`,
	RunE:  validateConfig,
}

func validateConfig(cmd *cobra.Command, args []string) error {
	if configFile == "" {
		log.Error().Msg("config file is required")
		return cmd.Help()
	}

	// Check if file exists
	if _, err := os.Stat(configFile); os.IsNotExist(err) {
		log.Error().Str("file", configFile).Msg("config file not found")
		return fmt.Errorf("config file not found: %s", configFile)
	}

	_, cfg, err := loadConfig()
	if err != nil {
		return err
	}

	fmt.Println("Configuration is valid!")
	fmt.Println()
	fmt.Println("Summary:")
	fmt.Printf("  Server mode: %s\n", cfg.Server.Mode)
	if cfg.Server.Mode == config.ModeSSH {
		fmt.Printf("  SSH host: %s:%d (unit %s)\n", cfg.Server.SSH.Host, cfg.Server.SSH.Port, cfg.Server.SSH.Unit)
	} else {
		fmt.Printf("  Executable: %s\n", cfg.Server.Executable)
		fmt.Printf("  Start delay: %s\n", cfg.Server.StartDelay)
	}
	fmt.Printf("  HTTP listen: %s\n", cfg.HTTP.Listen)
	fmt.Printf("  Skip events: %v\n", cfg.SkipEvents)
	fmt.Println()
	fmt.Println("Backups:")
	fmt.Printf("  Source: %s\n", cfg.Backup.Source)
	fmt.Printf("  Path: %s\n", cfg.Backup.Path)
	fmt.Printf("  Prefix: %s\n", cfg.Backup.Prefix)
	fmt.Printf("  Retention: %s\n", cfg.Backup.Retention)
	if cfg.Backup.Retention == retention.StrategyMaxAge {
		fmt.Printf("  Max age: %d day(s)\n", cfg.Backup.MaxAge)
	}
	fmt.Println()
	fmt.Println("Optional Features:")
	fmt.Printf("  RCon: %v\n", cfg.RCON != nil)
	fmt.Printf("  Telegram: %v\n", cfg.Telegram != nil)
	fmt.Printf("  Basic auth: %v\n", cfg.HTTP.Username != "")

	fmt.Println()
	fmt.Printf("Events (%d):\n", len(cfg.Events))
	now := time.Now()
	rejected := 0
	for _, e := range cfg.Events {
		summary, ok := describeEvent(e, now)
		if !ok {
			rejected++
		}
		fmt.Printf("  %-20s %-8s %-16q %s\n", e.EffectiveID(), e.Type, e.Cron, summary)
	}

	if rejected > 0 {
		fmt.Println()
		fmt.Printf("%d event(s) will not be scheduled.\n", rejected)
	}

	return nil
}

// describeEvent says how the scheduler will treat e. It reports false for
// events the scheduler would reject.
func describeEvent(e models.ScheduledEvent, now time.Time) (string, bool) {
	switch {
	case !e.Enabled:
		return "disabled", true
	case e.Cron == "":
		return "unscheduled (no cron)", true
	}

	schedule, err := scheduler.ValidateCron(e.Cron, now)
	if err != nil {
		return "rejected: " + err.Error(), false
	}
	if _, err := dispatcher.ParseTask(e); err != nil {
		return "rejected: " + err.Error(), false
	}
	return "next " + schedule.Next(now).Format(time.RFC3339), true
}
