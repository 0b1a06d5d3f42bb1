package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var autoremoveCmd = &cobra.Command{
	Use:   "autoremove",
	Short: "Remove installed packages that are no longer needed",
	Long: `Remove every installed package that was pulled in only as a
dependency and is no longer required by anything manually installed.`,
	RunE: runAutoremove,
}

func runAutoremove(cmd *cobra.Command, args []string) error {
	m, err := openManager()
	if err != nil {
		return err
	}

	p, err := m.Autoremove(context.Background(), confirmPlan)
	if err != nil {
		return fmt.Errorf("autoremove: %w", err)
	}
	if p.IsEmpty() {
		fmt.Println("Nothing to remove.")
	}
	return nil
}
