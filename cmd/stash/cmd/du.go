package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var duCmd = &cobra.Command{
	Use:   "du",
	Short: "Show disk usage",
	Long:  "Show the size of every store under the root and of the root as a whole.",
	Args:  cobra.NoArgs,
	RunE:  runDu,
}

func init() {
	rootCmd.AddCommand(duCmd)
}

func runDu(cmd *cobra.Command, args []string) (err error) {
	reg, err := openRegistry()
	if err != nil {
		return err
	}
	defer func() {
		if cerr := reg.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	dirs, err := os.ReadDir(reg.Root())
	if errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintln(cmd.OutOrStdout(), "(empty)")
		return nil
	}
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	for _, d := range dirs {
		if !d.IsDir() {
			continue
		}
		s, err := reg.Open(d.Name())
		if err != nil {
			continue
		}
		size, _ := s.Size()
		fmt.Fprintf(w, "%s\t%s\n", s.Name(), humanize.IBytes(uint64(size)))
	}

	total, _ := reg.AggregateSize()
	limit := "unlimited"
	if b := reg.AggregateBudget(); b > 0 {
		limit = humanize.IBytes(uint64(b))
	}
	fmt.Fprintf(w, "total\t%s\t(budget %s)\n", humanize.IBytes(uint64(total)), limit)
	return w.Flush()
}
