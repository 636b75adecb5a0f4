package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/aweris/stash"
)

var putCmd = &cobra.Command{
	Use:   "put <store> <key> [file]",
	Short: "Store an entry",
	Long: "Store the content of file, or stdin, as an entry of store. The kind is taken " +
		"from --kind or, failing that, from the file extension.",
	Args: cobra.RangeArgs(2, 3),
	RunE: runPut,
}

func init() {
	putCmd.Flags().String("kind", "", "entry kind: jpeg, png, video, audio, object, value")
	rootCmd.AddCommand(putCmd)
}

func runPut(cmd *cobra.Command, args []string) error {
	kind, err := kindFlag(cmd)
	if err != nil {
		return err
	}

	var data []byte
	if len(args) == 3 {
		data, err = os.ReadFile(args[2])
		if kind == 0 {
			kind = kindFromExt(filepath.Ext(args[2]))
		}
	} else {
		data, err = io.ReadAll(cmd.InOrStdin())
	}
	if err != nil {
		return fmt.Errorf("read input: %w", err)
	}
	if kind == 0 {
		return fmt.Errorf("cannot infer kind, use --kind")
	}

	return withStore(args[0], func(s *stash.Store) error {
		path, err := s.Put(args[1], kind, data)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "Stored %s (%s)\n", path, humanize.IBytes(uint64(len(data))))
		return nil
	})
}

func kindFromExt(ext string) stash.Kind {
	switch strings.ToLower(ext) {
	case ".jpg", ".jpeg":
		return stash.KindJPEG
	case ".png":
		return stash.KindPNG
	case ".mp4":
		return stash.KindVideo
	case ".mp3":
		return stash.KindAudio
	case ".txt", ".json":
		return stash.KindObject
	}
	return 0
}
