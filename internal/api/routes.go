package api

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/oapi-codegen/runtime"
)

// ServerInterface represents all server handlers.
type ServerInterface interface {
	// Service health
	// (GET /health)
	GetHealth(w http.ResponseWriter, r *http.Request)
	// Transcoded terrain tile
	// (GET /tiles/{z}/{x}/{y}.png)
	GetTerrainTile(w http.ResponseWriter, r *http.Request, z int, x int, y int)
	// Transcode an uploaded source tile
	// (POST /transcode)
	TranscodeTile(w http.ResponseWriter, r *http.Request)
	// TileJSON of the terrain source
	// (GET /tiles.json)
	GetTileJSON(w http.ResponseWriter, r *http.Request)
	// Available basemap styles
	// (GET /styles)
	ListStyles(w http.ResponseWriter, r *http.Request)
	// Style document for one basemap
	// (GET /styles/{name})
	GetStyle(w http.ResponseWriter, r *http.Request, name string)
	// Overlay polygons
	// (GET /overlay.geojson)
	GetOverlay(w http.ResponseWriter, r *http.Request)
}

// InvalidParamFormatError is passed to the error handler when a path
// parameter cannot be bound.
type InvalidParamFormatError struct {
	ParamName string
	Err       error
}

func (e *InvalidParamFormatError) Error() string {
	return fmt.Sprintf("Invalid format for parameter %s: %s", e.ParamName, e.Err.Error())
}

func (e *InvalidParamFormatError) Unwrap() error {
	return e.Err
}

type MiddlewareFunc func(http.Handler) http.Handler

// ServerInterfaceWrapper converts requests to typed handler calls
type ServerInterfaceWrapper struct {
	Handler            ServerInterface
	HandlerMiddlewares []MiddlewareFunc
	ErrorHandlerFunc   func(w http.ResponseWriter, r *http.Request, err error)
}

func (siw *ServerInterfaceWrapper) serve(w http.ResponseWriter, r *http.Request, h http.Handler) {
	for _, middleware := range siw.HandlerMiddlewares {
		h = middleware(h)
	}
	h.ServeHTTP(w, r)
}

// GetHealth operation middleware
func (siw *ServerInterfaceWrapper) GetHealth(w http.ResponseWriter, r *http.Request) {
	siw.serve(w, r, http.HandlerFunc(siw.Handler.GetHealth))
}

// GetTerrainTile operation middleware
func (siw *ServerInterfaceWrapper) GetTerrainTile(w http.ResponseWriter, r *http.Request) {
	var coords [3]int
	for i, name := range []string{"z", "x", "y"} {
		err := runtime.BindStyledParameterWithOptions("simple", name, chi.URLParam(r, name), &coords[i],
			runtime.BindStyledParameterOptions{ParamLocation: runtime.ParamLocationPath, Explode: false, Required: true})
		if err != nil {
			siw.ErrorHandlerFunc(w, r, &InvalidParamFormatError{ParamName: name, Err: err})
			return
		}
	}

	siw.serve(w, r, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		siw.Handler.GetTerrainTile(w, r, coords[0], coords[1], coords[2])
	}))
}

// TranscodeTile operation middleware
func (siw *ServerInterfaceWrapper) TranscodeTile(w http.ResponseWriter, r *http.Request) {
	siw.serve(w, r, http.HandlerFunc(siw.Handler.TranscodeTile))
}

// GetTileJSON operation middleware
func (siw *ServerInterfaceWrapper) GetTileJSON(w http.ResponseWriter, r *http.Request) {
	siw.serve(w, r, http.HandlerFunc(siw.Handler.GetTileJSON))
}

// ListStyles operation middleware
func (siw *ServerInterfaceWrapper) ListStyles(w http.ResponseWriter, r *http.Request) {
	siw.serve(w, r, http.HandlerFunc(siw.Handler.ListStyles))
}

// GetStyle operation middleware
func (siw *ServerInterfaceWrapper) GetStyle(w http.ResponseWriter, r *http.Request) {
	var name string
	err := runtime.BindStyledParameterWithOptions("simple", "name", chi.URLParam(r, "name"), &name,
		runtime.BindStyledParameterOptions{ParamLocation: runtime.ParamLocationPath, Explode: false, Required: true})
	if err != nil {
		siw.ErrorHandlerFunc(w, r, &InvalidParamFormatError{ParamName: "name", Err: err})
		return
	}

	siw.serve(w, r, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		siw.Handler.GetStyle(w, r, name)
	}))
}

// GetOverlay operation middleware
func (siw *ServerInterfaceWrapper) GetOverlay(w http.ResponseWriter, r *http.Request) {
	siw.serve(w, r, http.HandlerFunc(siw.Handler.GetOverlay))
}

// ChiServerOptions configures HandlerWithOptions
type ChiServerOptions struct {
	BaseURL          string
	BaseRouter       chi.Router
	Middlewares      []MiddlewareFunc
	ErrorHandlerFunc func(w http.ResponseWriter, r *http.Request, err error)
}

// Handler creates http.Handler with routing matching the API.
func Handler(si ServerInterface) http.Handler {
	return HandlerWithOptions(si, ChiServerOptions{})
}

// HandlerWithOptions creates http.Handler with additional options
func HandlerWithOptions(si ServerInterface, options ChiServerOptions) http.Handler {
	r := options.BaseRouter
	if r == nil {
		r = chi.NewRouter()
	}
	if options.ErrorHandlerFunc == nil {
		options.ErrorHandlerFunc = func(w http.ResponseWriter, r *http.Request, err error) {
			http.Error(w, err.Error(), http.StatusBadRequest)
		}
	}

	wrapper := ServerInterfaceWrapper{
		Handler:            si,
		HandlerMiddlewares: options.Middlewares,
		ErrorHandlerFunc:   options.ErrorHandlerFunc,
	}

	r.Group(func(r chi.Router) {
		r.Get(options.BaseURL+"/health", wrapper.GetHealth)
		r.Get(options.BaseURL+"/tiles/{z}/{x}/{y}.png", wrapper.GetTerrainTile)
		r.Post(options.BaseURL+"/transcode", wrapper.TranscodeTile)
		r.Get(options.BaseURL+"/tiles.json", wrapper.GetTileJSON)
		r.Get(options.BaseURL+"/styles", wrapper.ListStyles)
		r.Get(options.BaseURL+"/styles/{name}", wrapper.GetStyle)
		r.Get(options.BaseURL+"/overlay.geojson", wrapper.GetOverlay)
	})

	return r
}
