package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aweris/stash"
)

var cleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Remove empty stores",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		reg, err := openRegistry()
		if err != nil {
			return err
		}
		defer func() {
			if cerr := reg.Close(); cerr != nil && err == nil {
				err = cerr
			}
		}()
		return reg.Cleanup()
	},
}

var purgeCmd = &cobra.Command{
	Use:   "purge [store]",
	Short: "Delete a store, or everything with --all",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runPurge,
}

func init() {
	purgeCmd.Flags().Bool("all", false, "delete the whole root")
	rootCmd.AddCommand(cleanCmd, purgeCmd)
}

func runPurge(cmd *cobra.Command, args []string) error {
	all, _ := cmd.Flags().GetBool("all")
	switch {
	case all && len(args) == 0:
		reg, err := openRegistry()
		if err != nil {
			return err
		}
		defer reg.Close()
		if err := reg.DeleteEverything(); err != nil {
			return err
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "Deleted %s\n", reg.Root())
		return nil
	case !all && len(args) == 1:
		return withStore(args[0], func(s *stash.Store) error {
			if err := s.DeleteStore(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "Deleted store %s\n", s.Name())
			return nil
		})
	default:
		return fmt.Errorf("give either a store name or --all")
	}
}
