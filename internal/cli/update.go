package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var updateCmd = &cobra.Command{
	Use:   "update",
	Short: "Refresh configured repositories' indexes",
	RunE:  runUpdate,
}

func runUpdate(cmd *cobra.Command, args []string) error {
	m, err := openManager()
	if err != nil {
		return err
	}
	if err := m.Sync(context.Background()); err != nil {
		return fmt.Errorf("update: %w", err)
	}
	fmt.Println("Repository indexes up to date.")
	return nil
}
