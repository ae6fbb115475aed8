package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/swc-cli/internal/landcover"
)

var landcoverCmd = &cobra.Command{
	Use:   "landcover",
	Short: "Manage and inspect land-cover tiles",
}

var landcoverBootstrapCmd = &cobra.Command{
	Use:   "bootstrap",
	Short: "Download land-cover tiles into an empty tile directory",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := cfg.Validate("bootstrap"); err != nil {
			return err
		}
		lc := cfg.LandCover
		b := landcover.NewBootstrapper(landcover.BootstrapOptions{
			Dir:         lc.Dir,
			ReleaseAPI:  lc.ReleaseAPI,
			GitHubToken: lc.GitHubToken,
			FTPURL:      lc.FTPURL,
			Timeout:     time.Duration(lc.TimeoutSecs) * time.Second,
		})
		installed, err := b.Ensure(cmd.Context())
		if err != nil {
			return err
		}
		if len(installed) == 0 {
			zap.L().Info("land cover tiles already present", zap.String("dir", lc.Dir))
			return nil
		}
		for _, p := range installed {
			_, _ = fmt.Fprintln(os.Stdout, p)
		}
		return nil
	},
}

var landcoverProbeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Show how every tile sees a point",
	RunE: func(cmd *cobra.Command, _ []string) error {
		lat, _ := cmd.Flags().GetFloat64("lat")
		lon, _ := cmd.Flags().GetFloat64("lon")
		asJSON, _ := cmd.Flags().GetBool("json")

		sources, err := landCoverSources(cfg.LandCover)
		if err != nil {
			return err
		}
		if len(sources) == 0 {
			return eris.Errorf("no land cover tiles in %s", cfg.LandCover.Dir)
		}
		lc := landcover.NewClassifier(sources, nil)
		defer lc.Close() //nolint:errcheck

		reports := landcover.Probe(cmd.Context(), lc.Sources(), lat, lon)
		if asJSON {
			return writeJSONOut(os.Stdout, reports)
		}
		formatProbeReports(os.Stdout, reports)
		return nil
	},
}

var landcoverPackCmd = &cobra.Command{
	Use:   "pack <shapefile|geotiff>",
	Short: "Convert a land-cover shapefile or GeoTIFF into a tile pack",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		out, _ := cmd.Flags().GetString("out")
		field, _ := cmd.Flags().GetString("class-field")
		cell, _ := cmd.Flags().GetFloat64("cell")
		if field == "" {
			field = cfg.LandCover.ClassField
		}
		if cell <= 0 {
			cell = cfg.LandCover.CellDegrees
		}
		path, err := packRaster(cmd.Context(), args[0], out, field, cell)
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintln(os.Stdout, path)
		return nil
	},
}

func init() {
	landcoverProbeCmd.Flags().Float64("lat", 0, "latitude in decimal degrees")
	landcoverProbeCmd.Flags().Float64("lon", 0, "longitude in decimal degrees")
	landcoverProbeCmd.Flags().Bool("json", false, "print reports as JSON")
	_ = landcoverProbeCmd.MarkFlagRequired("lat")
	_ = landcoverProbeCmd.MarkFlagRequired("lon")

	landcoverPackCmd.Flags().String("out", "", "output pack path (default <landcover.dir>/<name>"+landcover.PackExt+")")
	landcoverPackCmd.Flags().String("class-field", "", "attribute holding the class code (default from config)")
	landcoverPackCmd.Flags().Float64("cell", 0, "cell size in degrees (default from config)")

	landcoverCmd.AddCommand(landcoverBootstrapCmd, landcoverProbeCmd, landcoverPackCmd)
	rootCmd.AddCommand(landcoverCmd)
}

// packRaster converts a shapefile or GeoTIFF into a pack and returns the pack
// path. classField and cellDegrees only apply to shapefiles.
func packRaster(ctx context.Context, input, out, classField string, cellDegrees float64) (string, error) {
	var (
		src landcover.Raster
		err error
	)
	if landcover.IsGeoTIFFName(input) {
		src, err = landcover.OpenGeoTIFF(input)
	} else {
		src, err = landcover.OpenShapefile(input, classField, cellDegrees)
	}
	if err != nil {
		return "", err
	}
	defer src.Close() //nolint:errcheck

	if out == "" {
		base := strings.TrimSuffix(filepath.Base(input), filepath.Ext(input))
		out = filepath.Join(cfg.LandCover.Dir, base+landcover.PackExt)
	}
	if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
		return "", eris.Wrapf(err, "create %s", filepath.Dir(out))
	}
	if err := landcover.WritePack(ctx, out, src); err != nil {
		return "", err
	}
	zap.L().Info("tile pack written", zap.String("path", out), zap.String("raster", landcover.Describe(src)))
	return out, nil
}

// formatProbeReports writes a tabular representation of probe reports to w.
func formatProbeReports(out io.Writer, reports []landcover.ProbeReport) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "SOURCE\tCRS\tINSIDE\tROW\tCOL\tWINDOW\tMAJORITY\tERROR")
	for _, r := range reports {
		inside, row, col, window, majority := "no", "-", "-", "-", "-"
		if r.Inside {
			inside = "yes"
			row = fmt.Sprint(r.Row)
			col = fmt.Sprint(r.Col)
			window = fmt.Sprint(r.Window)
			majority = fmt.Sprintf("%d %s", r.Majority, r.Label)
		}
		errMsg := r.Error
		if errMsg == "" {
			errMsg = "-"
		}
		crs := r.CRS
		if crs == "" {
			crs = "-"
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			r.Source, crs, inside, row, col, window, majority, errMsg)
	}
	_ = w.Flush()
}
