package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/kiesman99/demtile/internal/api"
	"github.com/kiesman99/demtile/internal/logging"
	"github.com/kiesman99/demtile/internal/style"
	"github.com/kiesman99/demtile/internal/transcoder"
	"github.com/kiesman99/demtile/pkg/dem"
	"github.com/kiesman99/demtile/pkg/tile"
)

// maxUploadBytes bounds the body of a transcode request
const maxUploadBytes = 32 << 20

// Options holds the collaborators of a Server
type Options struct {
	Loader       *transcoder.Loader
	Transcoder   *dem.Transcoder
	Styles       *style.Builder
	DefaultStyle string
	Overlay      *style.Overlay // nil when no overlay is configured
	Logger       log.FieldLogger
}

// Server implements api.ServerInterface
type Server struct {
	startTime    time.Time
	version      string
	loader       *transcoder.Loader
	transcoder   *dem.Transcoder
	styles       *style.Builder
	defaultStyle string
	overlay      *style.Overlay
	logger       log.FieldLogger
}

// NewServer creates a new server instance
func NewServer(version string, opts Options) *Server {
	s := &Server{
		startTime:    time.Now(),
		version:      version,
		loader:       opts.Loader,
		transcoder:   opts.Transcoder,
		styles:       opts.Styles,
		defaultStyle: opts.DefaultStyle,
		overlay:      opts.Overlay,
		logger:       opts.Logger,
	}
	if s.logger == nil {
		s.logger = log.StandardLogger()
	}
	if s.transcoder == nil {
		s.transcoder = dem.NewTranscoder(dem.DefaultEncoding())
	}
	if s.loader == nil {
		s.loader = transcoder.New(transcoder.Options{Transcoder: s.transcoder, Logger: s.logger})
	}
	if s.styles == nil {
		s.styles = style.NewBuilder(style.Options{Encoding: s.transcoder.Encoding})
	}
	if s.defaultStyle == "" {
		if names := s.styles.Names(); len(names) > 0 {
			s.defaultStyle = names[0]
		}
	}
	return s
}

// GetHealth implements the health check endpoint
func (s *Server) GetHealth(w http.ResponseWriter, r *http.Request) {
	uptime := int(time.Since(s.startTime).Seconds())

	response := api.HealthResponse{
		Status:    api.Healthy,
		Timestamp: time.Now(),
		Uptime:    &uptime,
		Version:   &s.version,
	}

	s.writeJSON(w, http.StatusOK, "application/json", response)
}

// GetTerrainTile fetches, transcodes and returns one terrain tile
func (s *Server) GetTerrainTile(w http.ResponseWriter, r *http.Request, z int, x int, y int) {
	requestID := logging.RequestID(r)

	if z < 0 || x < 0 || y < 0 {
		s.writeValidationErrorResponse(w, "tile", "tile coordinates must not be negative", &requestID)
		return
	}
	if int64(z) > math.MaxUint32 || int64(x) > math.MaxUint32 || int64(y) > math.MaxUint32 {
		s.writeValidationErrorResponse(w, "tile", "tile coordinates out of range", &requestID)
		return
	}
	t := tile.New(uint32(z), uint32(x), uint32(y))
	if err := t.Validate(); err != nil {
		s.writeValidationErrorResponse(w, "tile", err.Error(), &requestID)
		return
	}

	req := s.loader.LoadTile(r.Context(), t)
	out, ok := req.Wait(r.Context())
	if !ok {
		// The client went away; there is nobody to answer
		s.logger.WithFields(log.Fields{"request_id": requestID, "tile": t.String()}).Debug("tile request abandoned")
		return
	}
	if out.Err != nil {
		s.handleTileError(w, out.Err, &requestID)
		return
	}

	s.writePNG(w, out.Data, requestID)
}

// TranscodeTile transcodes a source tile posted in the request body
func (s *Server) TranscodeTile(w http.ResponseWriter, r *http.Request) {
	requestID := logging.RequestID(r)

	var out bytes.Buffer
	err := s.transcoder.TranscodeReader(http.MaxBytesReader(w, r.Body, maxUploadBytes), &out)
	if err != nil {
		var tle *dem.TileLoadError
		if errors.As(err, &tle) {
			s.writeValidationErrorResponse(w, "body", fmt.Sprintf("request body is not a readable PNG tile: %v", tle.Err), &requestID)
			return
		}
		s.handleTileError(w, err, &requestID)
		return
	}

	s.writePNG(w, out.Bytes(), requestID)
}

// GetTileJSON describes the terrain tile set
func (s *Server) GetTileJSON(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, "application/json", s.styles.TileJSON(s.version))
}

// ListStyles lists the available basemap styles
func (s *Server) ListStyles(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, "application/json", api.StyleList{
		Default: s.defaultStyle,
		Styles:  s.styles.Names(),
	})
}

// GetStyle returns the style document of one basemap
func (s *Server) GetStyle(w http.ResponseWriter, r *http.Request, name string) {
	requestID := logging.RequestID(r)

	st, err := s.styles.Style(strings.TrimSuffix(name, ".json"))
	if err != nil {
		if errors.Is(err, style.ErrUnknownBasemap) {
			s.writeErrorResponse(w, http.StatusNotFound, api.NOTFOUND, err.Error(), &requestID, map[string]interface{}{
				"styles": s.styles.Names(),
			})
			return
		}
		s.writeErrorResponse(w, http.StatusInternalServerError, api.INTERNALERROR, "Internal server error", &requestID, nil)
		return
	}

	s.writeJSON(w, http.StatusOK, "application/json", st)
}

// GetOverlay returns the overlay polygons
func (s *Server) GetOverlay(w http.ResponseWriter, r *http.Request) {
	if s.overlay == nil {
		requestID := logging.RequestID(r)
		s.writeErrorResponse(w, http.StatusNotFound, api.NOTFOUND, "no overlay configured", &requestID, nil)
		return
	}
	s.writeJSON(w, http.StatusOK, "application/geo+json", s.overlay)
}

// handleTileError maps the tile failure taxonomy onto HTTP responses
func (s *Server) handleTileError(w http.ResponseWriter, err error, requestID *string) {
	var (
		tle *dem.TileLoadError
		dce *dem.DecodeContextError
		ee  *dem.EncodeError
	)

	switch {
	case errors.As(err, &tle):
		details := map[string]interface{}{"url": tle.URL}
		if tle.StatusCode != 0 {
			details["status_code"] = tle.StatusCode
		}
		if tle.StatusCode == http.StatusNotFound {
			s.writeErrorResponse(w, http.StatusNotFound, api.TILENOTFOUND, tle.Error(), requestID, details)
			return
		}
		s.writeErrorResponse(w, http.StatusBadGateway, api.TILELOADFAILURE, tle.Error(), requestID, details)
	case errors.As(err, &dce):
		s.writeErrorResponse(w, http.StatusInternalServerError, api.DECODECONTEXTFAILURE, dce.Error(), requestID, map[string]interface{}{
			"width":  dce.Width,
			"height": dce.Height,
		})
	case errors.As(err, &ee):
		s.writeErrorResponse(w, http.StatusInternalServerError, api.ENCODEFAILURE, ee.Error(), requestID, nil)
	case errors.Is(err, context.DeadlineExceeded):
		s.writeErrorResponse(w, http.StatusGatewayTimeout, api.TIMEOUT,
			"Tile server requests timed out", requestID, nil)
	default:
		s.logger.WithError(err).Error("unexpected tile error")
		s.writeErrorResponse(w, http.StatusInternalServerError, api.INTERNALERROR,
			"Internal server error", requestID, nil)
	}
}

func (s *Server) writePNG(w http.ResponseWriter, data []byte, requestID string) {
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("X-Request-ID", requestID)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))

	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		s.logger.WithError(err).Warn("error writing tile response")
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, statusCode int, contentType string, v interface{}) {
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.WithError(err).Warn("error encoding response")
	}
}

// writeErrorResponse writes a standard error response
func (s *Server) writeErrorResponse(w http.ResponseWriter, statusCode int, errorCode, message string, requestID *string, details map[string]interface{}) {
	response := api.ErrorResponse{
		Error:     errorCode,
		Message:   message,
		RequestId: requestID,
	}

	if details != nil {
		response.Details = &details
	}

	s.writeJSON(w, statusCode, "application/json", response)
}

// writeValidationErrorResponse writes a validation error response
func (s *Server) writeValidationErrorResponse(w http.ResponseWriter, field, message string, requestID *string) {
	response := api.ValidationErrorResponse{
		Error:     api.VALIDATIONERROR,
		Message:   message,
		RequestId: requestID,
		ValidationErrors: []api.ValidationError{
			{
				Field:   field,
				Message: message,
			},
		},
	}

	s.writeJSON(w, http.StatusBadRequest, "application/json", response)
}

// InvalidParamHandler answers requests whose path parameters could not be bound
func (s *Server) InvalidParamHandler(w http.ResponseWriter, r *http.Request, err error) {
	requestID := logging.RequestID(r)

	field := "request"
	var ipe *api.InvalidParamFormatError
	if errors.As(err, &ipe) {
		field = ipe.ParamName
	}
	s.writeValidationErrorResponse(w, field, err.Error(), &requestID)
}
