package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var rdependsCmd = &cobra.Command{
	Use:   "rdepends <package>",
	Short: "List installed packages that depend on a package",
	Args:  cobra.ExactArgs(1),
	RunE:  runRdepends,
}

func runRdepends(cmd *cobra.Command, args []string) error {
	m, err := openManager()
	if err != nil {
		return err
	}

	rdeps := m.Rdepends(args[0])
	if len(rdeps) == 0 {
		fmt.Println("Nothing depends on it.")
		return nil
	}
	for _, pkg := range rdeps {
		fmt.Printf("%s %s\n", pkg.Name, pkg.Version)
	}
	return nil
}
