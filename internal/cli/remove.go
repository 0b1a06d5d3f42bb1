package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var removeCmd = &cobra.Command{
	Use:   "remove [package...]",
	Short: "Remove one or more packages",
	Long: `Remove packages from the prefix, along with anything installed
that depends on them.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runRemove,
}

func runRemove(cmd *cobra.Command, args []string) error {
	m, err := openManager()
	if err != nil {
		return err
	}

	p, err := m.Remove(context.Background(), args, confirmPlan)
	if err != nil {
		return fmt.Errorf("remove: %w", err)
	}
	if p.IsEmpty() {
		fmt.Println("Nothing to do.")
	}
	return nil
}
