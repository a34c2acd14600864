package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/plugrelay/plugrelay/internal/bundle"
	"github.com/plugrelay/plugrelay/internal/pathseg"
)

var packOutput string

var packCmd = &cobra.Command{
	Use:   "pack <folder>",
	Short: "Package a folder into a bundle archive",
	Long: `Package a folder the way the server packages declared folder bundles, for
offline inspection. The server never needs this: it packs bundles in memory
while building its catalog.`,
	Args: cobra.ExactArgs(1),
	RunE: runPack,
}

func init() {
	packCmd.Flags().StringVarP(&packOutput, "output", "o", "", "Archive path (default <folder>.tar)")
	rootCmd.AddCommand(packCmd)
}

func runPack(cmd *cobra.Command, args []string) error {
	folder := filepath.Clean(args[0])
	output := packOutput
	if output == "" {
		output = pathseg.WithArchiveExt(folder)
	}

	f, err := os.Create(output)
	if err != nil {
		return fmt.Errorf("creating archive: %w", err)
	}

	if err := bundle.Pack(folder, f); err != nil {
		f.Close()
		os.Remove(output)
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("writing archive: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Packed %s into %s\n", folder, output)
	return nil
}
