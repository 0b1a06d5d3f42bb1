package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mindmaze-labs/mmpack-go/pkg/mmpack"
)

var mkprefixCmd = &cobra.Command{
	Use:   "mkprefix <path>",
	Short: "Create a new prefix",
	Long:  `Initialize a fresh, empty prefix at the given path.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runMkprefix,
}

func runMkprefix(cmd *cobra.Command, args []string) error {
	m, err := mmpack.Create(args[0])
	if err != nil {
		return fmt.Errorf("creating prefix: %w", err)
	}
	fmt.Printf("Created prefix at %s\n", m.Prefix.Root)
	return nil
}
