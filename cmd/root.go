package cmd

import (
	"fmt"
	"os"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/kiesman99/demtile/internal/config"
	"github.com/kiesman99/demtile/internal/logging"
)

// Version is reported by the server health endpoint and the User-Agent
const Version = "1.0.0"

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "demtile",
	Short: "Serve GSI elevation tiles re-encoded as raster-DEM terrain",
	Long: `demtile converts GSI DEM PNG elevation tiles into the RGB raster-DEM
encoding used by terrain renderers such as MapLibre GL.

Source pixels encode elevation as a signed 24-bit integer in 0.01 m steps,
with (128,0,0) marking "no data". Each pixel is decoded, clamped to the
configured elevation range and re-encoded as (h + offset) / step.

Examples:
  # Serve terrain tiles and map styles on localhost:8080
  demtile serve

  # Transcode a single downloaded tile
  demtile transcode -i 14_14552_6451.png -o terrain.png

  # Export terrain tiles around Tokyo station to MBTiles
  demtile export --bbox 35.65,139.70,35.72,139.80 --min-zoom 10 --max-zoom 14 -o tokyo.mbtiles

  # Keep negative elevations for a coastal dataset
  demtile serve --min-elevation -100 --max-elevation 4000`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return logging.Setup(viper.GetString("log.level"), viper.GetString("log.file"))
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	config.SetDefaults(viper.GetViper())

	// Global flags
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default is $HOME/.demtile.yaml)")

	// Encoding options
	flags.Float64("min-elevation", 0, "lowest elevation in metres; lower values are clamped")
	flags.Float64("max-elevation", 4000, "highest elevation in metres; higher values are clamped")
	flags.Float64("source-step", 0.01, "metres per unit of the source encoding")
	flags.Float64("target-offset", 10000, "offset added before target encoding")
	flags.Float64("target-step", 0.1, "metres per unit of the target encoding")

	// Upstream options
	flags.String("scheme", "gsidem", "custom URL scheme rewritten to the upstream prefix")
	flags.String("upstream", "https://cyberjapandata.gsi.go.jp/xyz/dem_png/", "upstream elevation tile URL prefix")
	flags.String("user-agent", "demtile/"+Version, "HTTP User-Agent header")
	flags.Int("max-pixels", 4096*4096, "largest source tile accepted, in pixels")

	// Logging options
	flags.String("log-level", "info", "log level (debug|info|warn|error)")
	flags.String("log-file", "", "also write logs to this file")

	// Bind flags to viper
	viper.BindPFlag("encoding.min_elevation", flags.Lookup("min-elevation"))
	viper.BindPFlag("encoding.max_elevation", flags.Lookup("max-elevation"))
	viper.BindPFlag("encoding.source_step", flags.Lookup("source-step"))
	viper.BindPFlag("encoding.target_offset", flags.Lookup("target-offset"))
	viper.BindPFlag("encoding.target_step", flags.Lookup("target-step"))
	viper.BindPFlag("upstream.scheme", flags.Lookup("scheme"))
	viper.BindPFlag("upstream.prefix", flags.Lookup("upstream"))
	viper.BindPFlag("upstream.user_agent", flags.Lookup("user-agent"))
	viper.BindPFlag("tile.max_pixels", flags.Lookup("max-pixels"))
	viper.BindPFlag("log.level", flags.Lookup("log-level"))
	viper.BindPFlag("log.file", flags.Lookup("log-file"))
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		// Use config file from the flag.
		viper.SetConfigFile(cfgFile)
	} else {
		// Find home directory.
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)

		// Search config in home directory with name ".demtile" (without extension).
		viper.AddConfigPath(home)
		viper.SetConfigType("yaml")
		viper.SetConfigName(".demtile")
	}

	// DEMTILE_SERVER_PORT overrides server.port
	viper.SetEnvPrefix("demtile")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// loadConfig returns the validated configuration
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return nil, err
	}
	log.WithFields(log.Fields{
		"min_elevation": cfg.Encoding.MinElevation,
		"max_elevation": cfg.Encoding.MaxElevation,
		"upstream":      cfg.Upstream.Prefix,
	}).Debug("configuration loaded")
	return cfg, nil
}
