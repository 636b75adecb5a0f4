package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aweris/stash"
)

var pushCmd = &cobra.Command{
	Use:   "push <store> <ref>",
	Short: "Push a store to a remote registry",
	Long:  "Push every entry of a store to an OCI registry as a single image.",
	Args:  cobra.ExactArgs(2),
	RunE:  runPush,
}

func init() {
	pushCmd.Flags().Bool("insecure", false, "allow plain HTTP registries")
	rootCmd.AddCommand(pushCmd)
}

func mirrorOptions(cmd *cobra.Command) []stash.MirrorOption {
	var opts []stash.MirrorOption
	if insecure, _ := cmd.Flags().GetBool("insecure"); insecure {
		opts = append(opts, stash.WithInsecure())
	}
	return opts
}

func runPush(cmd *cobra.Command, args []string) error {
	name, ref := args[0], args[1]

	return withStore(name, func(s *stash.Store) error {
		fmt.Fprintf(cmd.ErrOrStderr(), "Pushing %s to %s...\n", name, ref)
		if err := s.Push(cmd.Context(), ref, mirrorOptions(cmd)...); err != nil {
			return fmt.Errorf("push failed: %w", err)
		}
		fmt.Fprintln(cmd.ErrOrStderr(), "Done.")
		return nil
	})
}
