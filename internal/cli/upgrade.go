package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var upgradeCmd = &cobra.Command{
	Use:   "upgrade [package...]",
	Short: "Upgrade packages to their newest available version",
	Long: `Upgrade the named packages, or every installed package that has a
newer available version if none are named.`,
	RunE: runUpgrade,
}

func runUpgrade(cmd *cobra.Command, args []string) error {
	m, err := openManager()
	if err != nil {
		return err
	}

	p, err := m.Upgrade(context.Background(), args, confirmPlan)
	if err != nil {
		return fmt.Errorf("upgrade: %w", err)
	}
	if p.IsEmpty() {
		fmt.Println("Everything is up to date.")
	}
	return nil
}
