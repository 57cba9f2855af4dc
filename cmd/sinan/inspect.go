package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/sinan/internal/core"
)

var (
	inspectJSON   bool
	inspectFilter core.ViewFilter
)

var inspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Print a summary of the processed table",
	RunE:  runInspect,
}

func init() {
	f := inspectCmd.Flags()
	f.BoolVar(&inspectJSON, "json", false, "print the summary as JSON")
	f.IntVar(&inspectFilter.YearFrom, "year-from", 0, "first notification year")
	f.IntVar(&inspectFilter.YearTo, "year-to", 0, "last notification year")
	f.StringVar(&inspectFilter.UF, "uf", "", "state code or name")
	f.StringVar(&inspectFilter.Municipality, "municipio", "", "municipality name")
	f.StringVar(&inspectFilter.ViolenceType, "tipo", "", "violence type")
	f.Bool("fast", true, "use the analytical engine when available")
	f.Bool("precomputed", true, "use the precomputed artifact when present")
	rootCmd.AddCommand(inspectCmd)
}

func runInspect(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	p, err := newPipeline(ctx)
	if err != nil {
		return err
	}
	res, err := newService(p).ProcessedTable(ctx, buildOptions(cmd))
	if err != nil {
		return err
	}
	logResult(res)

	view, err := core.ApplyView(res.Table, p.Registry(), inspectFilter)
	if err != nil {
		return err
	}
	summary := core.Summarize(view)

	out := cmd.OutOrStdout()
	if inspectJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(summary)
	}
	printSummary(out, res, summary)
	return nil
}

func printSummary(w io.Writer, res *core.Result, s core.Summary) {
	fmt.Fprintf(w, "build %s (%s, %s)\n", res.Meta.BuildID, res.Backend, res.Meta.BuiltAt.Format("2006-01-02 15:04"))
	fmt.Fprintf(w, "notifications: %d\n", s.Total)
	if s.ReportDelaySamples > 0 {
		fmt.Fprintf(w, "mean report delay: %.1f days (%d samples)\n", s.MeanReportDelayDays, s.ReportDelaySamples)
	}

	sections := []struct {
		title  string
		counts []core.Count
	}{
		{"Year", s.ByYear},
		{"State", s.ByUF},
		{"Age", s.ByAgeBucket},
		{"Sex", s.BySex},
		{"Violence type", s.ByViolenceType},
		{"Relationship", s.ByRelationship},
		{"Aggressor sex", s.ByAggressorSex},
		{"Justice referral", s.ByReferral},
	}
	for _, sec := range sections {
		if len(sec.counts) == 0 {
			continue
		}
		fmt.Fprintf(w, "\n%s\n", sec.title)
		for _, c := range sec.counts {
			fmt.Fprintf(w, "  %-30s %8d %6.1f%%\n", c.Label, c.Count, c.Percent)
		}
	}
}
