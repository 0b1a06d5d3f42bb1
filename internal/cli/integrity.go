package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var checkIntegrityCmd = &cobra.Command{
	Use:   "check-integrity [package]",
	Short: "Verify installed packages' files against their recorded hashes",
	Long:  `Verify every installed package's files, or only one if named.`,
	Args:  cobra.MaximumNArgs(1),
	RunE:  runCheckIntegrity,
}

var fixBrokenCmd = &cobra.Command{
	Use:   "fix-broken [package]",
	Short: "Reinstall installed packages that failed an integrity check",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runFixBroken,
}

func runCheckIntegrity(cmd *cobra.Command, args []string) error {
	m, err := openManager()
	if err != nil {
		return err
	}

	var name string
	if len(args) > 0 {
		name = args[0]
	}

	reports, err := m.CheckIntegrity(name)
	if err != nil {
		return fmt.Errorf("check-integrity: %w", err)
	}

	failed := 0
	for _, r := range reports {
		if r.Err != nil {
			failed++
			fmt.Printf("FAIL %s: %v\n", r.Package.Name, r.Err)
		} else {
			fmt.Printf("OK   %s\n", r.Package.Name)
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d package(s) failed integrity check", failed)
	}
	return nil
}

func runFixBroken(cmd *cobra.Command, args []string) error {
	m, err := openManager()
	if err != nil {
		return err
	}

	var name string
	if len(args) > 0 {
		name = args[0]
	}

	if err := m.FixBroken(context.Background(), name); err != nil {
		return fmt.Errorf("fix-broken: %w", err)
	}
	fmt.Println("Repaired.")
	return nil
}
