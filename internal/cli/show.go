package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var showCmd = &cobra.Command{
	Use:   "show <package>",
	Short: "Show every known version of a package",
	Args:  cobra.ExactArgs(1),
	RunE:  runShow,
}

func runShow(cmd *cobra.Command, args []string) error {
	m, err := openManager()
	if err != nil {
		return err
	}

	records := m.Show(args[0])
	if len(records) == 0 {
		return fmt.Errorf("package %q not found", args[0])
	}

	for _, pkg := range records {
		fmt.Printf("%s %s\n", pkg.Name, pkg.Version)
		if pkg.Desc != "" {
			fmt.Printf("  %s\n", pkg.Desc)
		}
		if pkg.Source != "" {
			fmt.Printf("  source: %s\n", pkg.Source)
		}
		for _, dep := range pkg.Depends {
			fmt.Printf("  depends: %s (%s..%s)\n", dep.Name, dep.MinVersion, dep.MaxVersion)
		}
	}
	return nil
}
