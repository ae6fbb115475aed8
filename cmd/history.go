package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/sells-group/swc-cli/internal/export"
	"github.com/sells-group/swc-cli/internal/model"
	"github.com/sells-group/swc-cli/internal/store"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Inspect and export stored evaluations",
}

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored evaluations, newest first",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		records, err := st.ListEvaluations(ctx, historyFilter(cmd.Flags()))
		if err != nil {
			return eris.Wrap(err, "history list")
		}
		if len(records) == 0 {
			fmt.Fprintln(os.Stderr, "No evaluations found.")
			return nil
		}
		formatHistory(os.Stdout, records)
		return nil
	},
}

var historyShowCmd = &cobra.Command{
	Use:   "show <evaluation-id>",
	Short: "Show one stored evaluation as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		rec, err := st.GetEvaluation(ctx, args[0])
		if err != nil {
			return err
		}
		return writeJSONOut(os.Stdout, rec)
	},
}

var historyExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export stored evaluations to an XLSX workbook",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		out, _ := cmd.Flags().GetString("out")

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		records, err := st.ListEvaluations(ctx, historyFilter(cmd.Flags()))
		if err != nil {
			return eris.Wrap(err, "history export")
		}
		if err := export.WriteXLSX(out, records); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "Exported %d evaluations to %s\n", len(records), out)
		return nil
	},
}

func init() {
	for _, c := range []*cobra.Command{historyListCmd, historyExportCmd} {
		c.Flags().String("status", "", "filter by status (OK, NON_ARABLE)")
		c.Flags().String("land-use", "", "filter by land use")
		c.Flags().Int("offset", 0, "number of evaluations to skip")
	}
	historyListCmd.Flags().Int("limit", store.DefaultLimit, "maximum evaluations to list")
	historyExportCmd.Flags().Int("limit", store.MaxLimit, "maximum evaluations to export")
	historyExportCmd.Flags().String("out", "evaluations.xlsx", "output workbook path")

	historyCmd.AddCommand(historyListCmd, historyShowCmd, historyExportCmd)
	rootCmd.AddCommand(historyCmd)
}

func historyFilter(flags *pflag.FlagSet) store.Filter {
	status, _ := flags.GetString("status")
	landUse, _ := flags.GetString("land-use")
	limit, _ := flags.GetInt("limit")
	offset, _ := flags.GetInt("offset")

	lu, _ := model.ParseLandUse(landUse)
	return store.Filter{
		Status:  model.AnalysisStatus(status),
		LandUse: lu,
		Limit:   limit,
		Offset:  offset,
	}
}

// formatHistory writes a tabular representation of records to w.
func formatHistory(out io.Writer, records []store.Record) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tCREATED\tSTATUS\tLAT\tLON\tLAND USE\tMODE\tRISK\tREASON")
	_, _ = fmt.Fprintln(w, "--\t-------\t------\t---\t---\t--------\t----\t----\t------")
	for _, r := range records {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%g\t%g\t%s\t%s\t%s\t%s\n",
			r.ID,
			r.CreatedAt.UTC().Format(time.RFC3339),
			r.Status,
			r.Latitude,
			r.Longitude,
			r.LandUse,
			orDash(string(r.Mode)),
			orDash(string(r.RiskLevel)),
			orDash(r.Reason),
		)
	}
	_ = w.Flush()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
