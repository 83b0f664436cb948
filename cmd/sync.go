package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/syncrules/cloudsync/internal/domain"
	"github.com/syncrules/cloudsync/internal/service"
)

var syncRuleFlag string

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run a reconciliation pass for one or all rules",
	RunE:  runSync,
}

func init() {
	syncCmd.Flags().StringVar(&syncRuleFlag, "rule", "", "run only this rule (default: all enabled rules)")
	rootCmd.AddCommand(syncCmd)
}

func runSync(c *cobra.Command, args []string) error {
	svc, err := service.NewSyncService(cfg)
	if err != nil {
		return fmt.Errorf("creating sync service: %w", err)
	}
	defer svc.Close()

	var rules []domain.SyncRule
	if syncRuleFlag != "" {
		rule, err := cfg.GetRule(syncRuleFlag)
		if err != nil {
			return err
		}
		rules = []domain.SyncRule{*rule}
	} else {
		rules = cfg.GetEnabledRules()
	}

	if len(rules) == 0 {
		return fmt.Errorf("no enabled rules to sync")
	}

	if err := svc.AcquireLock(syncRuleFlag); err != nil {
		return fmt.Errorf("acquiring lock: %w", err)
	}
	defer svc.ReleaseLock()

	ctx := c.Context()
	var failed int
	for _, rule := range rules {
		report, err := svc.RunSync(ctx, rule.Name)
		if err != nil {
			fmt.Printf("rule %s: failed: %v\n", rule.Name, err)
			failed++
			continue
		}
		fmt.Printf("rule %s: settled=%v conflicts=%d\n", report.RuleName, report.Settled, report.Conflicts)
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d rules failed", failed, len(rules))
	}
	return nil
}
