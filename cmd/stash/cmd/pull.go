package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aweris/stash"
)

var pullCmd = &cobra.Command{
	Use:   "pull <store> <ref>",
	Short: "Pull a store from a remote registry",
	Long:  "Pull an image pushed by stash and write its entries into store, within its budgets.",
	Args:  cobra.ExactArgs(2),
	RunE:  runPull,
}

func init() {
	pullCmd.Flags().Bool("insecure", false, "allow plain HTTP registries")
	rootCmd.AddCommand(pullCmd)
}

func runPull(cmd *cobra.Command, args []string) error {
	name, ref := args[0], args[1]

	return withStore(name, func(s *stash.Store) error {
		fmt.Fprintf(cmd.ErrOrStderr(), "Pulling %s into %s...\n", ref, name)
		n, err := s.Pull(cmd.Context(), ref, mirrorOptions(cmd)...)
		fmt.Fprintf(cmd.ErrOrStderr(), "Wrote %d entries.\n", n)
		if err != nil {
			return fmt.Errorf("pull failed: %w", err)
		}
		return nil
	})
}
