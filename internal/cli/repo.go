package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mindmaze-labs/mmpack-go/pkg/prefix"
)

var repoCmd = &cobra.Command{
	Use:   "repo",
	Short: "Manage the prefix's configured repositories",
}

var repoIndexBranch string

var repoAddCmd = &cobra.Command{
	Use:   "add <name> <url>",
	Short: "Add a repository",
	Args:  cobra.ExactArgs(2),
	RunE:  runRepoAdd,
}

var repoRemoveCmd = &cobra.Command{
	Use:   "remove <name>",
	Short: "Remove a repository",
	Args:  cobra.ExactArgs(1),
	RunE:  runRepoRemove,
}

var repoListCmd = &cobra.Command{
	Use:   "list",
	Short: "List configured repositories",
	RunE:  runRepoList,
}

func init() {
	repoAddCmd.Flags().StringVar(&repoIndexBranch, "index-branch", "", "git branch to sync the index from (empty: plain HTTP GET)")
	repoCmd.AddCommand(repoAddCmd)
	repoCmd.AddCommand(repoRemoveCmd)
	repoCmd.AddCommand(repoListCmd)
}

func runRepoAdd(cmd *cobra.Command, args []string) error {
	m, err := openManager()
	if err != nil {
		return err
	}
	if err := m.AddRepo(prefix.RepoConfig{Name: args[0], URL: args[1], IndexBranch: repoIndexBranch}); err != nil {
		return fmt.Errorf("repo add: %w", err)
	}
	return nil
}

func runRepoRemove(cmd *cobra.Command, args []string) error {
	m, err := openManager()
	if err != nil {
		return err
	}
	if err := m.RemoveRepo(args[0]); err != nil {
		return fmt.Errorf("repo remove: %w", err)
	}
	return nil
}

func runRepoList(cmd *cobra.Command, args []string) error {
	m, err := openManager()
	if err != nil {
		return err
	}
	for _, r := range m.Repos() {
		fmt.Printf("%s %s\n", r.Name, r.URL)
	}
	return nil
}
