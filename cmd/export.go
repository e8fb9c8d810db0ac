package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/paulmach/orb"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/kiesman99/demtile/internal/export"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export terrain tiles for an area into an MBTiles file",
	Long: `Fetch and transcode every GSI elevation tile covering a bounding box and
store the results in an MBTiles file.

Examples:
  # Export Hakone at zoom 10 to 14
  demtile export --bbox 35.17,138.93,35.30,139.10 --min-zoom 10 --max-zoom 14 -o hakone.mbtiles

  # Using individual coordinates
  demtile export --min-lat 35.17 --min-lon 138.93 --max-lat 35.30 --max-lon 139.10 --max-zoom 12 -o hakone.mbtiles`,
	Args: cobra.NoArgs,
	RunE: runExport,
}

func init() {
	rootCmd.AddCommand(exportCmd)

	// Bounding box flags
	exportCmd.Flags().Float64("min-lat", 0, "minimum latitude")
	exportCmd.Flags().Float64("min-lon", 0, "minimum longitude")
	exportCmd.Flags().Float64("max-lat", 0, "maximum latitude")
	exportCmd.Flags().Float64("max-lon", 0, "maximum longitude")
	exportCmd.Flags().String("bbox", "", "bounding box as 'min-lat,min-lon,max-lat,max-lon'")

	exportCmd.Flags().Uint32("min-zoom", 0, "lowest zoom level to export")
	exportCmd.Flags().Uint32("max-zoom", 14, "highest zoom level to export")
	exportCmd.Flags().StringP("output", "o", "", "output MBTiles file")
	exportCmd.Flags().BoolP("overwrite", "w", false, "overwrite existing output file")
	exportCmd.Flags().String("name", "", "tileset name (default: output file name)")
	exportCmd.Flags().Int("workers", 4, "number of concurrent tile downloads")

	exportCmd.MarkFlagsMutuallyExclusive("bbox", "min-lat")
	exportCmd.MarkFlagsMutuallyExclusive("bbox", "max-lat")

	viper.BindPFlag("export.workers", exportCmd.Flags().Lookup("workers"))
}

func runExport(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	var bound orb.Bound
	if s, _ := cmd.Flags().GetString("bbox"); s != "" {
		bound, err = parseBBox(s)
		if err != nil {
			return err
		}
	} else {
		minLat, _ := cmd.Flags().GetFloat64("min-lat")
		minLon, _ := cmd.Flags().GetFloat64("min-lon")
		maxLat, _ := cmd.Flags().GetFloat64("max-lat")
		maxLon, _ := cmd.Flags().GetFloat64("max-lon")
		if minLat == 0 && minLon == 0 && maxLat == 0 && maxLon == 0 {
			return fmt.Errorf("specify bounding box coordinates (--min-lat, --min-lon, --max-lat, --max-lon or --bbox)")
		}
		bound = orb.Bound{Min: orb.Point{minLon, minLat}, Max: orb.Point{maxLon, maxLat}}
	}

	output, _ := cmd.Flags().GetString("output")
	name, _ := cmd.Flags().GetString("name")
	if name == "" {
		name = strings.TrimSuffix(output, ".mbtiles")
	}
	overwrite, _ := cmd.Flags().GetBool("overwrite")
	minZoom, _ := cmd.Flags().GetUint32("min-zoom")
	maxZoom, _ := cmd.Flags().GetUint32("max-zoom")

	job := export.Job{
		Name:      name,
		Bound:     bound,
		MinZoom:   minZoom,
		MaxZoom:   maxZoom,
		Output:    output,
		Overwrite: overwrite,
	}
	if err := job.Validate(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger := log.StandardLogger()
	exporter := export.New(newLoader(cfg, logger), cfg.Encoding, cfg.Export.Workers, os.Stderr, logger)
	summary, err := exporter.Run(ctx, job)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.ErrOrStderr(), "==Tiles: %d written, %d failed of %d\n", summary.Written, summary.Failed, summary.Total)
	fmt.Fprintf(cmd.ErrOrStderr(), "Output MBTiles: %s\n", job.Output)
	return nil
}

// parseBBox parses "min-lat,min-lon,max-lat,max-lon"
func parseBBox(s string) (orb.Bound, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return orb.Bound{}, fmt.Errorf("bbox must be in format 'min-lat,min-lon,max-lat,max-lon'")
	}

	names := [4]string{"min-lat", "min-lon", "max-lat", "max-lon"}
	var v [4]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return orb.Bound{}, fmt.Errorf("invalid %s in bbox: %v", names[i], err)
		}
		v[i] = f
	}

	return orb.Bound{
		Min: orb.Point{v[1], v[0]},
		Max: orb.Point{v[3], v[2]},
	}, nil
}
