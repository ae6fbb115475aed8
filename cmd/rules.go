package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sells-group/swc-cli/internal/factors"
	"github.com/sells-group/swc-cli/internal/model"
	"github.com/sells-group/swc-cli/internal/rules"
)

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Inspect conservation practice tables",
}

var rulesValidateCmd = &cobra.Command{
	Use:   "validate [path]",
	Short: "Load and validate a practice table",
	Long:  "Loads a JSON or YAML practice table and reports the first malformed rule. Without a path the configured table is checked.",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := cfg.Rules.Path
		if len(args) == 1 {
			path = args[0]
		}
		table, source, err := rules.LoadOrDefault(path)
		if err != nil {
			return err
		}
		formatRuleTable(os.Stdout, source, table)
		return nil
	},
}

var rulesMatchCmd = &cobra.Command{
	Use:   "match",
	Short: "Show the measures a set of factors selects",
	RunE: func(cmd *cobra.Command, _ []string) error {
		table, _, err := rules.LoadOrDefault(cfg.Rules.Path)
		if err != nil {
			return err
		}
		f, err := factorsFromFlags(cmd)
		if err != nil {
			return err
		}
		return writeJSONOut(os.Stdout, rules.Evaluate(f, table))
	},
}

func init() {
	f := rulesMatchCmd.Flags()
	f.Float64("slope", 0, "slope in percent")
	f.Float64("rainfall", 0, "annual rainfall in mm")
	f.String("soil-depth", "", "soil depth class (derived from slope when empty)")
	f.String("drainage", "", "drainage class (derived from slope and rainfall when empty)")
	f.String("land-use", "", "declared land use")
	_ = rulesMatchCmd.MarkFlagRequired("land-use")

	rulesCmd.AddCommand(rulesValidateCmd, rulesMatchCmd)
	rootCmd.AddCommand(rulesCmd)
}

func factorsFromFlags(cmd *cobra.Command) (model.LocationFactors, error) {
	flags := cmd.Flags()
	slope, _ := flags.GetFloat64("slope")
	rainfall, _ := flags.GetFloat64("rainfall")
	landUse, _ := flags.GetString("land-use")
	soil, _ := flags.GetString("soil-depth")
	drainage, _ := flags.GetString("drainage")

	lu, ok := model.ParseLandUse(landUse)
	if !ok {
		return model.LocationFactors{}, &model.ValidationError{Message: "land_use is required", Fields: []string{"land_use"}}
	}
	f := model.LocationFactors{
		LandUse:      lu,
		RainfallMM:   rainfall,
		SlopePercent: slope,
		SoilDepth:    factors.SoilDepthFromSlope(slope),
		Drainage:     factors.DrainageFrom(slope, rainfall),
	}
	if soil != "" {
		f.SoilDepth = model.ParseSoilDepth(soil)
	}
	if drainage != "" {
		f.Drainage = model.ParseDrainage(drainage)
	}
	return f, nil
}

// formatRuleTable writes a summary of every rule in table to w.
func formatRuleTable(out io.Writer, source string, table rules.Table) {
	_, _ = fmt.Fprintf(out, "%s: %d rules\n", source, len(table))
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "#\tPRACTICE\tSLOPE\tRAINFALL\tSOIL\tLAND USE")
	for i, r := range table {
		_, _ = fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%d\t%d\n",
			i+1, r.Practice, slopeSummary(r), rainfallSummary(r), len(r.SoilDepth), len(r.LandUse))
	}
	_ = w.Flush()
}

func slopeSummary(r rules.Rule) string {
	switch {
	case r.SlopeRange != nil && r.SlopeMax != nil:
		return fmt.Sprintf("%g-%g (<=%g)", r.SlopeRange.Low, r.SlopeRange.High, *r.SlopeMax)
	case r.SlopeRange != nil:
		return fmt.Sprintf("%g-%g", r.SlopeRange.Low, r.SlopeRange.High)
	case r.SlopeMax != nil:
		return fmt.Sprintf("<=%g", *r.SlopeMax)
	default:
		return "-"
	}
}

func rainfallSummary(r rules.Rule) string {
	switch {
	case r.RainfallMin != nil && r.RainfallMax != nil:
		return fmt.Sprintf("%g-%g", *r.RainfallMin, *r.RainfallMax)
	case r.RainfallMin != nil:
		return fmt.Sprintf(">=%g", *r.RainfallMin)
	case r.RainfallMax != nil:
		return fmt.Sprintf("<=%g", *r.RainfallMax)
	default:
		return "-"
	}
}
