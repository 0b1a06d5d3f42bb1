// internal/cli/root.go
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mindmaze-labs/mmpack-go/pkg/mmpack"
)

var (
	prefixPath string
	assumeYes  bool
	debug      bool
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "mmpack",
	Short: "Non-root, prefix-scoped package manager",
	Long: `mmpack manages isolated installation trees ("prefixes"), each with
its own set of installed binary packages pulled from one or more configured
repositories. Multiple prefixes may coexist on a host without interfering.`,
	Version: "0.1.0",
}

// Execute executes the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&prefixPath, "prefix", os.Getenv("MMPACK_PREFIX"), "prefix root directory (default: $MMPACK_PREFIX)")
	rootCmd.PersistentFlags().BoolVarP(&assumeYes, "assume-yes", "y", false, "apply transactions without prompting for confirmation")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")

	rootCmd.AddCommand(mkprefixCmd)
	rootCmd.AddCommand(installCmd)
	rootCmd.AddCommand(removeCmd)
	rootCmd.AddCommand(upgradeCmd)
	rootCmd.AddCommand(updateCmd)
	rootCmd.AddCommand(autoremoveCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(rdependsCmd)
	rootCmd.AddCommand(providesCmd)
	rootCmd.AddCommand(repoCmd)
	rootCmd.AddCommand(checkIntegrityCmd)
	rootCmd.AddCommand(fixBrokenCmd)
	rootCmd.AddCommand(versionCmd)
}

// openManager opens the prefix named by --prefix (or $MMPACK_PREFIX),
// failing with a clear message if neither is set.
func openManager() (*mmpack.Manager, error) {
	if prefixPath == "" {
		return nil, fmt.Errorf("no prefix specified: pass --prefix or set $MMPACK_PREFIX")
	}
	return mmpack.Open(prefixPath)
}

// confirmPlan prints the transaction summary and, unless --assume-yes was
// given, asks the user to approve it, the Go equivalent of
// confirm_action_stack_if_needed's terminal prompt.
func confirmPlan(p *mmpack.Plan) bool {
	fmt.Println("The following actions will be performed:")
	for _, act := range p.Actions {
		fmt.Printf("  %-8s %s (%s)\n", act.Label(), act.Pkg.Name, act.Pkg.Version)
	}
	if assumeYes {
		return true
	}
	fmt.Print("Proceed? [y/N] ")
	var answer string
	fmt.Scanln(&answer)
	return answer == "y" || answer == "Y" || answer == "yes"
}
