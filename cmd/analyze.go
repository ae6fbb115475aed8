package main

import (
	"encoding/json"
	"io"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/sells-group/swc-cli/internal/model"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Analyze a single location",
	Long: "Builds site factors for a location, applies the arability gate and prints the " +
		"recommended measures and erosion risk as JSON. Factor flags override the sensors.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		req, err := analyzeRequestFromFlags(cmd.Flags())
		if err != nil {
			return err
		}

		noStore, _ := cmd.Flags().GetBool("no-store")
		env, err := initEnv(ctx, cfg, "analyze", !noStore)
		if err != nil {
			return err
		}
		defer env.Close()

		result, err := env.Analyzer.Analyze(ctx, req)
		if err != nil {
			return eris.Wrap(err, "analyze")
		}
		return writeJSONOut(os.Stdout, result)
	},
}

func init() {
	addAnalyzeFlags(analyzeCmd.Flags())
	rootCmd.AddCommand(analyzeCmd)
}

func addAnalyzeFlags(f *pflag.FlagSet) {
	f.Float64("lat", 0, "latitude in decimal degrees")
	f.Float64("lon", 0, "longitude in decimal degrees")
	f.String("land-use", "", "declared land use (e.g. PADDY, SMALL_MILLETS)")
	f.Float64("rainfall", 0, "annual rainfall override in mm")
	f.Float64("slope", 0, "slope override in percent")
	f.String("soil-depth", "", "soil depth override (SHALLOW, MODERATE, DEEP)")
	f.String("drainage", "", "drainage override (POOR, MODERATE, GOOD)")
	f.Bool("no-store", false, "do not record the analysis in the history store")
}

// analyzeRequestFromFlags builds a validated request. Only flags set on the
// command line count as present.
func analyzeRequestFromFlags(flags *pflag.FlagSet) (model.AnalysisRequest, error) {
	var raw model.RawAnalysisRequest
	floatFlag := func(name string) *float64 {
		if !flags.Changed(name) {
			return nil
		}
		v, _ := flags.GetFloat64(name)
		return &v
	}
	stringFlag := func(name string) *string {
		if !flags.Changed(name) {
			return nil
		}
		v, _ := flags.GetString(name)
		return &v
	}

	raw.Lat = floatFlag("lat")
	raw.Lon = floatFlag("lon")
	raw.LandUse = stringFlag("land-use")
	raw.RainfallMM = floatFlag("rainfall")
	raw.SlopePercent = floatFlag("slope")
	raw.SoilDepth = stringFlag("soil-depth")
	raw.Drainage = stringFlag("drainage")
	return raw.Validate()
}

func writeJSONOut(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return eris.Wrap(enc.Encode(v), "write output")
}
