package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/sinan/internal/dictionary"
)

var dictCmd = &cobra.Command{
	Use:   "dict",
	Short: "Inspect the lookup dictionaries",
}

var dictMunicCmd = &cobra.Command{
	Use:   "munic [code...]",
	Short: "Load the municipality dictionary and print its stats or look up codes",
	RunE:  runDictMunic,
}

func init() {
	dictCmd.AddCommand(dictMunicCmd)
	rootCmd.AddCommand(dictCmd)
}

func runDictMunic(cmd *cobra.Command, args []string) error {
	munic, stats, err := dictionary.LoadMunicipalities(cmd.Context(), cfg.Sources.DictDir,
		dictionary.WithEncoding(cfg.Sources.DictEncoding),
	)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	if len(args) == 0 {
		fmt.Fprintf(out, "directory:      %s\n", cfg.Sources.DictDir)
		fmt.Fprintf(out, "files:          %d (%d skipped)\n", stats.Files, stats.FilesSkipped)
		fmt.Fprintf(out, "lines:          %d (%d skipped)\n", stats.Lines, stats.LinesSkipped)
		fmt.Fprintf(out, "duplicates:     %d\n", stats.Duplicates)
		fmt.Fprintf(out, "municipalities: %d\n", munic.Len())
		return nil
	}

	sort.Strings(args)
	for _, code := range args {
		label, ok := munic.Label(code)
		if !ok {
			label = "(not found)"
		}
		fmt.Fprintf(out, "%s\t%s\n", code, label)
	}
	return nil
}
