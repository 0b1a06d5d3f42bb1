package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var providesCmd = &cobra.Command{
	Use:   "provides <path>",
	Short: "Show which installed package owns a file",
	Args:  cobra.ExactArgs(1),
	RunE:  runProvides,
}

func runProvides(cmd *cobra.Command, args []string) error {
	m, err := openManager()
	if err != nil {
		return err
	}

	owners, err := m.Provides(args[0])
	if err != nil {
		return fmt.Errorf("provides: %w", err)
	}
	if len(owners) == 0 {
		fmt.Println("No installed package owns that path.")
		return nil
	}
	for _, name := range owners {
		fmt.Println(name)
	}
	return nil
}
