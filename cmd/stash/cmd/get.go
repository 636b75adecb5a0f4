package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/aweris/stash"
)

var getCmd = &cobra.Command{
	Use:   "get <store> <key>",
	Short: "Read an entry",
	Long:  "Write the first entry found for key to stdout, or to --output.",
	Args:  cobra.ExactArgs(2),
	RunE:  runGet,
}

func init() {
	getCmd.Flags().String("kind", "", "kind to try before the default lookup order")
	getCmd.Flags().StringP("output", "o", "", "write to file instead of stdout")
	rootCmd.AddCommand(getCmd)
}

func runGet(cmd *cobra.Command, args []string) error {
	kind, err := kindFlag(cmd)
	if err != nil {
		return err
	}
	output, _ := cmd.Flags().GetString("output")

	return withStore(args[0], func(s *stash.Store) error {
		entry, err := s.GetKind(args[1], kind)
		if err != nil {
			return err
		}
		if output != "" {
			return os.WriteFile(output, entry.Data, 0644)
		}
		_, err = cmd.OutOrStdout().Write(entry.Data)
		return err
	})
}

var rmCmd = &cobra.Command{
	Use:   "rm <store> <key>",
	Short: "Delete an entry",
	Long:  "Delete the first entry found for key. Keys stored under several kinds need one call per kind.",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(args[0], func(s *stash.Store) error {
			if err := s.Delete(args[1]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "Deleted %s from %s\n", args[1], s.Name())
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(rmCmd)
}
