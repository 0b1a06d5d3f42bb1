package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search the binary index by name or description",
	Args:  cobra.ExactArgs(1),
	RunE:  runSearch,
}

func runSearch(cmd *cobra.Command, args []string) error {
	m, err := openManager()
	if err != nil {
		return err
	}

	results := m.Search(args[0])
	if len(results) == 0 {
		fmt.Println("No matches.")
		return nil
	}
	for _, pkg := range results {
		fmt.Printf("%s %s - %s\n", pkg.Name, pkg.Version, pkg.Desc)
	}
	return nil
}
