package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/kiesman99/demtile/internal/config"
	"github.com/kiesman99/demtile/internal/server"
	"github.com/kiesman99/demtile/internal/style"
	"github.com/kiesman99/demtile/internal/transcoder"
	"github.com/kiesman99/demtile/pkg/tile"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start HTTP server for terrain tiles and map styles",
	Long: `Start an HTTP server that transcodes GSI elevation tiles on request.

Point a raster-dem source at /api/v1/tiles/{z}/{x}/{y}.png, or load a complete
map style with terrain from /api/v1/styles/{basemap}.

Examples:
  # Start server on default port 8080
  demtile serve

  # Start server on custom port
  demtile serve --port 3000

  # Publish behind a proxy and draw basin polygons over the map
  demtile serve --bind 0.0.0.0 --public-url https://maps.example.com --overlay data/R7_ryuiki_poly.geojson`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	// Server configuration
	serveCmd.Flags().StringP("bind", "b", "localhost", "bind address")
	serveCmd.Flags().IntP("port", "p", 8080, "port to listen on")
	serveCmd.Flags().Duration("timeout", 30*time.Second, "request timeout")
	serveCmd.Flags().String("public-url", "", "externally visible base URL used in styles (default http://bind:port)")
	serveCmd.Flags().String("overlay", "", "GeoJSON polygons drawn above the basemap")
	serveCmd.Flags().Float64("exaggeration", 1.5, "terrain exaggeration")

	// Bind flags to viper
	viper.BindPFlag("server.bind", serveCmd.Flags().Lookup("bind"))
	viper.BindPFlag("server.port", serveCmd.Flags().Lookup("port"))
	viper.BindPFlag("server.timeout", serveCmd.Flags().Lookup("timeout"))
	viper.BindPFlag("server.public_url", serveCmd.Flags().Lookup("public-url"))
	viper.BindPFlag("style.overlay", serveCmd.Flags().Lookup("overlay"))
	viper.BindPFlag("style.exaggeration", serveCmd.Flags().Lookup("exaggeration"))
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	addr := fmt.Sprintf("%s:%d", cfg.Server.Bind, cfg.Server.Port)
	publicURL := strings.TrimSuffix(cfg.Server.PublicURL, "/")
	if publicURL == "" {
		publicURL = "http://" + addr
	}

	logger := log.StandardLogger()
	tr := cfg.Transcoder()
	loader := newLoader(cfg, logger)

	var overlay *style.Overlay
	overlayURL := ""
	if cfg.Style.Overlay != "" {
		overlay, err = style.LoadOverlay(cfg.Style.Overlay)
		if err != nil {
			return err
		}
		overlayURL = publicURL + server.APIPrefix + "/overlay.geojson"
		logger.WithFields(log.Fields{
			"file":     cfg.Style.Overlay,
			"features": len(overlay.Collection.Features),
		}).Info("overlay loaded")
	}

	lon, lat, _ := cfg.Style.CenterPoint()
	styles := style.NewBuilder(style.Options{
		TerrainTiles:   publicURL + server.APIPrefix + "/tiles/{z}/{x}/{y}.png",
		TerrainMaxZoom: cfg.Style.TerrainMaxZoom,
		TileSize:       cfg.Tile.Size,
		Encoding:       cfg.Encoding,
		Exaggeration:   cfg.Style.Exaggeration,
		Center:         [2]float64{lon, lat},
		Zoom:           cfg.Style.Zoom,
		OverlayURL:     overlayURL,
	})

	// Create server implementation
	apiServer := server.NewServer(Version, server.Options{
		Loader:       loader,
		Transcoder:   tr,
		Styles:       styles,
		DefaultStyle: "gsi-pale",
		Overlay:      overlay,
		Logger:       logger,
	})

	httpServer := &http.Server{
		Addr:         addr,
		Handler:      server.NewRouter(apiServer, cfg.Server.Timeout, logger),
		ReadTimeout:  cfg.Server.Timeout,
		WriteTimeout: cfg.Server.Timeout,
	}

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		logger.Info("shutting down server")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(ctx); err != nil {
			logger.WithError(err).Error("server shutdown error")
		}
	}()

	logger.WithFields(log.Fields{
		"addr":     addr,
		"upstream": cfg.Upstream.Prefix,
	}).Info("starting demtile server")
	fmt.Fprintf(cmd.ErrOrStderr(), "Health check: %s%s/health\n", publicURL, server.APIPrefix)
	fmt.Fprintf(cmd.ErrOrStderr(), "Terrain tiles: %s%s/tiles/{z}/{x}/{y}.png\n", publicURL, server.APIPrefix)
	fmt.Fprintf(cmd.ErrOrStderr(), "Map style: %s%s/styles/gsi-pale\n", publicURL, server.APIPrefix)

	if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
		return fmt.Errorf("server error: %v", err)
	}

	return nil
}

// newLoader builds the tile loader shared by serve and export
func newLoader(cfg *config.Config, logger log.FieldLogger) *transcoder.Loader {
	client := &http.Client{Timeout: cfg.Upstream.Timeout}
	return transcoder.New(transcoder.Options{
		Transcoder: cfg.Transcoder(),
		Fetcher:    tile.NewFetcher(client, cfg.Upstream.UserAgent, cfg.Upstream.Headers),
		Resolver:   cfg.Resolver(),
		Logger:     logger,
	})
}
