package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var installCmd = &cobra.Command{
	Use:   "install [package...]",
	Short: "Install one or more packages",
	Long: `Install packages into the prefix, pulling in whatever dependencies
they declare.

Examples:
  mmpack install wget
  mmpack install python3 nodejs golang`,
	Args: cobra.MinimumNArgs(1),
	RunE: runInstall,
}

func runInstall(cmd *cobra.Command, args []string) error {
	m, err := openManager()
	if err != nil {
		return err
	}

	p, err := m.Install(context.Background(), args, confirmPlan)
	if err != nil {
		return fmt.Errorf("install: %w", err)
	}
	if p.IsEmpty() {
		fmt.Println("Nothing to do.")
	}
	return nil
}
