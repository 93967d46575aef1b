// Package httpapi serves the latest estimation frame over HTTP as JSON,
// chart payloads and spreadsheet downloads.
package httpapi

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"

	"github.com/rewired-gh/pppwatch/internal/export"
	"github.com/rewired-gh/pppwatch/internal/logger"
	"github.com/rewired-gh/pppwatch/internal/models"
	"github.com/rewired-gh/pppwatch/internal/report"
	"github.com/rewired-gh/pppwatch/internal/storage"
)

// MaxBins caps the histogram resolution accepted from clients.
const MaxBins = 200

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// FrameSource provides the latest good frame, or nil when none is available yet.
type FrameSource interface {
	Latest() *models.Frame
	LastComputed() time.Time
}

// HistorySource lists the stored frames of the pair, newest first.
type HistorySource interface {
	History() ([]storage.FrameInfo, error)
}

// Server holds the HTTP handlers.
type Server struct {
	source  FrameSource
	label   string
	metrics http.Handler
	history HistorySource
}

// New creates a server for one pair. metrics may be nil to disable /metrics.
func New(source FrameSource, label string, metrics http.Handler) *Server {
	return &Server{source: source, label: label, metrics: metrics}
}

// WithHistory enables GET /api/history.
func (s *Server) WithHistory(h HistorySource) *Server {
	s.history = h
	return s
}

// Routes returns the router with all endpoints mounted.
func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.health)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics)
	}

	r.Route("/api", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(render.SetContentType(render.ContentTypeJSON))
			r.Get("/frame", s.frame)
			r.Get("/frame/latest", s.latest)
			r.Get("/charts", s.charts)
			r.Get("/histogram", s.histogram)
			if s.history != nil {
				r.Get("/history", s.frameHistory)
			}
		})
		r.Get("/export.csv", s.exportCSV)
		r.Get("/export.xlsx", s.exportXLSX)
	})
	return r
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		logger.Debug("%s %s %d %s [%s]", r.Method, r.URL.Path, ww.Status(),
			time.Since(start), middleware.GetReqID(r.Context()))
	})
}

// ErrResponse is the JSON error body.
type ErrResponse struct {
	HTTPStatusCode int    `json:"-"`
	Message        string `json:"error"`
	RequestID      string `json:"request_id,omitempty"`
}

// Render implements render.Renderer.
func (e *ErrResponse) Render(w http.ResponseWriter, r *http.Request) error {
	e.RequestID = middleware.GetReqID(r.Context())
	render.Status(r, e.HTTPStatusCode)
	return nil
}

func errUnavailable() render.Renderer {
	return &ErrResponse{HTTPStatusCode: http.StatusServiceUnavailable, Message: "no estimation available yet"}
}

func errBadRequest(msg string) render.Renderer {
	return &ErrResponse{HTTPStatusCode: http.StatusBadRequest, Message: msg}
}

func errInternal(err error) render.Renderer {
	logger.Error("Request failed: %v", err)
	return &ErrResponse{HTTPStatusCode: http.StatusInternalServerError, Message: "internal error"}
}

// current returns the latest frame, writing a 503 when there is none.
func (s *Server) current(w http.ResponseWriter, r *http.Request) (*models.Frame, bool) {
	f := s.source.Latest()
	if f.Len() == 0 {
		_ = render.Render(w, r, errUnavailable())
		return nil, false
	}
	return f, true
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"status":    "ok",
		"pair":      s.label,
		"has_frame": s.source.Latest().Len() > 0,
	}
	if t := s.source.LastComputed(); !t.IsZero() {
		resp["computed_at"] = t.UTC()
	}
	render.JSON(w, r, resp)
}

// RowResponse is one frame row with missing values as null.
type RowResponse struct {
	Index         int           `json:"index"`
	PriceA        models.Number `json:"price_a"`
	PriceB        models.Number `json:"price_b"`
	PriceRatio    models.Number `json:"price_ratio"`
	Rate          models.Number `json:"rate"`
	InstantCoef   models.Number `json:"instant_coef"`
	RunningCoef   models.Number `json:"running_coef"`
	Estimate      models.Number `json:"estimate"`
	RelativeError models.Number `json:"relative_error"`
	ErrorMean     models.Number `json:"error_mean"`
	ErrorStd      models.Number `json:"error_std"`
	ErrorLow      models.Number `json:"error_low"`
	ErrorHigh     models.Number `json:"error_high"`
	EstimateLow   models.Number `json:"estimate_low"`
	EstimateHigh  models.Number `json:"estimate_high"`
}

func newRowResponse(r models.Row) RowResponse {
	return RowResponse{
		Index:         r.Index,
		PriceA:        models.Number(r.PriceA),
		PriceB:        models.Number(r.PriceB),
		PriceRatio:    models.Number(r.PriceRatio),
		Rate:          models.Number(r.Rate),
		InstantCoef:   models.Number(r.InstantCoef),
		RunningCoef:   models.Number(r.RunningCoef),
		Estimate:      models.Number(r.Estimate),
		RelativeError: models.Number(r.RelativeError),
		ErrorMean:     models.Number(r.ErrorMean),
		ErrorStd:      models.Number(r.ErrorStd),
		ErrorLow:      models.Number(r.ErrorLow),
		ErrorHigh:     models.Number(r.ErrorHigh),
		EstimateLow:   models.Number(r.EstimateLow),
		EstimateHigh:  models.Number(r.EstimateHigh),
	}
}

// FrameResponse is the body of GET /api/frame.
type FrameResponse struct {
	Pair       string        `json:"pair"`
	ComputedAt time.Time     `json:"computed_at"`
	Rows       []RowResponse `json:"rows"`
}

func (s *Server) frame(w http.ResponseWriter, r *http.Request) {
	f, ok := s.current(w, r)
	if !ok {
		return
	}
	resp := FrameResponse{
		Pair:       s.label,
		ComputedAt: s.source.LastComputed().UTC(),
		Rows:       make([]RowResponse, 0, f.Len()),
	}
	for _, row := range f.Rows() {
		resp.Rows = append(resp.Rows, newRowResponse(row))
	}
	render.JSON(w, r, resp)
}

// LatestResponse is the body of GET /api/frame/latest.
type LatestResponse struct {
	Pair      string         `json:"pair"`
	Row       RowResponse    `json:"row"`
	Summary   report.Summary `json:"summary"`
	Direction string         `json:"direction"`
}

func (s *Server) latest(w http.ResponseWriter, r *http.Request) {
	f, ok := s.current(w, r)
	if !ok {
		return
	}
	summary, err := report.Summarize(f)
	if err != nil {
		_ = render.Render(w, r, errInternal(err))
		return
	}
	last, _ := f.Last()
	render.JSON(w, r, LatestResponse{
		Pair:      s.label,
		Row:       newRowResponse(last),
		Summary:   summary,
		Direction: summary.Direction(),
	})
}

func (s *Server) charts(w http.ResponseWriter, r *http.Request) {
	f, ok := s.current(w, r)
	if !ok {
		return
	}
	charts, err := report.Charts(f, s.label)
	if err != nil {
		_ = render.Render(w, r, errInternal(err))
		return
	}
	render.JSON(w, r, map[string]any{"pair": s.label, "charts": charts})
}

func (s *Server) histogram(w http.ResponseWriter, r *http.Request) {
	bins := report.DefaultBins
	if raw := r.URL.Query().Get("bins"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > MaxBins {
			_ = render.Render(w, r, errBadRequest(fmt.Sprintf("bins must be an integer between 1 and %d", MaxBins)))
			return
		}
		bins = n
	}
	f, ok := s.current(w, r)
	if !ok {
		return
	}
	h, err := report.ErrorHistogram(f, bins)
	if errors.Is(err, report.ErrNoValues) {
		h = report.EmptyHistogram()
	} else if err != nil {
		_ = render.Render(w, r, errInternal(err))
		return
	}
	render.JSON(w, r, h)
}

func (s *Server) frameHistory(w http.ResponseWriter, r *http.Request) {
	frames, err := s.history.History()
	if err != nil {
		_ = render.Render(w, r, errInternal(err))
		return
	}
	render.JSON(w, r, map[string]any{"pair": s.label, "frames": frames})
}

func (s *Server) exportCSV(w http.ResponseWriter, r *http.Request) {
	s.download(w, r, "csv", "text/csv; charset=utf-8", export.WriteCSV)
}

func (s *Server) exportXLSX(w http.ResponseWriter, r *http.Request) {
	s.download(w, r, "xlsx", xlsxContentType, export.WriteXLSX)
}

// download renders the frame into memory first so a failure can still become a 500.
func (s *Server) download(w http.ResponseWriter, r *http.Request, ext, contentType string,
	write func(io.Writer, *models.Frame) error) {
	f, ok := s.current(w, r)
	if !ok {
		return
	}
	var buf bytes.Buffer
	if err := write(&buf, f); err != nil {
		_ = render.Render(w, r, errInternal(err))
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s.%s"`, s.filename(), ext))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	_, _ = w.Write(buf.Bytes())
}

func (s *Server) filename() string {
	slug := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			return r
		case r >= 'A' && r <= 'Z':
			return r + ('a' - 'A')
		}
		return '-'
	}, s.label)
	return "pppwatch-" + strings.Trim(slug, "-")
}
