package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List installed packages",
	RunE:  runList,
}

func runList(cmd *cobra.Command, args []string) error {
	m, err := openManager()
	if err != nil {
		return err
	}

	for _, pkg := range m.List() {
		marker := ""
		if m.Manual.Contains(pkg.Name) {
			marker = " (manual)"
		}
		fmt.Printf("%s %s%s\n", pkg.Name, pkg.Version, marker)
	}
	return nil
}
