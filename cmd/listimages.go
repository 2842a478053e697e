package cmd

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/trailtools/rde/internal/results"
)

var flagListImagesOutput string

var listImagesCmd = &cobra.Command{
	Use:   "list-images <dir>",
	Short: "List the image files in a directory, one per line",
	Long: `List the image filenames in a directory (non-recursive). Pointed at a
reviewed filtering folder, the output is an accepted list for
'rde apply --accepted-list': the images still present are the confirmed
repeat detections.`,
	Args: cobra.ExactArgs(1),
	RunE: runListImages,
}

func init() {
	listImagesCmd.Flags().StringVarP(&flagListImagesOutput, "output", "o", "", "Write the list to this file instead of stdout")
	rootCmd.AddCommand(listImagesCmd)
}

func runListImages(_ *cobra.Command, args []string) error {
	entries, err := os.ReadDir(args[0])
	if err != nil {
		return fmt.Errorf("cannot read directory %s: %w", args[0], err)
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() && results.IsImagePath(e.Name()) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	out := strings.Join(names, "\n")
	if len(names) > 0 {
		out += "\n"
	}
	if flagListImagesOutput == "" {
		fmt.Print(out)
		return nil
	}
	if err := os.WriteFile(flagListImagesOutput, []byte(out), 0o644); err != nil {
		return fmt.Errorf("cannot write image list %s: %w", flagListImagesOutput, err)
	}
	printOK("", fmt.Sprintf("%d image filenames written to %s", len(names), flagListImagesOutput))
	return nil
}
