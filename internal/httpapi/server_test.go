package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/rewired-gh/pppwatch/internal/estimator"
	"github.com/rewired-gh/pppwatch/internal/metrics"
	"github.com/rewired-gh/pppwatch/internal/models"
	"github.com/rewired-gh/pppwatch/internal/storage"
)

type fakeSource struct {
	frame *models.Frame
	at    time.Time
}

func (f fakeSource) Latest() *models.Frame   { return f.frame }
func (f fakeSource) LastComputed() time.Time { return f.at }

type fakeHistory struct {
	frames []storage.FrameInfo
	err    error
}

func (f fakeHistory) History() ([]storage.FrameInfo, error) { return f.frames, f.err }

func testFrame(t *testing.T) *models.Frame {
	t.Helper()
	f, err := estimator.Estimate(
		models.Series{2000: 100, 2001: 110, 2002: 125},
		models.Series{2000: 100, 2001: 105, 2002: 108},
		models.Series{2000: 20, 2001: 23, 2002: 26},
	)
	require.NoError(t, err)
	return f
}

func newTestServer(t *testing.T, frame *models.Frame) http.Handler {
	t.Helper()
	src := fakeSource{frame: frame}
	if frame != nil {
		src.at = time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	}
	reg := metrics.New("USD/UYU")
	return New(src, "USD/UYU", reg.Handler()).Routes()
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestHealth(t *testing.T) {
	rec := get(t, newTestServer(t, nil), "/healthz")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, false, body["has_frame"])
	assert.NotContains(t, body, "computed_at")

	rec = get(t, newTestServer(t, testFrame(t)), "/healthz")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, true, body["has_frame"])
}

func TestUnavailableWithoutFrame(t *testing.T) {
	h := newTestServer(t, nil)
	for _, path := range []string{
		"/api/frame", "/api/frame/latest", "/api/charts", "/api/histogram",
		"/api/export.csv", "/api/export.xlsx",
	} {
		t.Run(path, func(t *testing.T) {
			rec := get(t, h, path)
			assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
			var body ErrResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.NotEmpty(t, body.Message)
		})
	}
}

func TestFrame(t *testing.T) {
	rec := get(t, newTestServer(t, testFrame(t)), "/api/frame")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "application/json")

	var body struct {
		Pair       string           `json:"pair"`
		ComputedAt time.Time        `json:"computed_at"`
		Rows       []map[string]any `json:"rows"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "USD/UYU", body.Pair)
	require.Len(t, body.Rows, 3)

	first := body.Rows[0]
	assert.Equal(t, 2000.0, first["index"])
	assert.Equal(t, 20.0, first["estimate"])
	// Undefined first-row band is null, never zero
	for _, col := range []string{"error_std", "error_low", "error_high", "estimate_low", "estimate_high"} {
		v, present := first[col]
		assert.True(t, present, col)
		assert.Nil(t, v, col)
	}
	assert.NotNil(t, body.Rows[2]["estimate_high"])
}

func TestLatest(t *testing.T) {
	rec := get(t, newTestServer(t, testFrame(t)), "/api/frame/latest")
	require.Equal(t, http.StatusOK, rec.Code)

	var body LatestResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 2002, body.Row.Index)
	assert.Equal(t, 2002, body.Summary.Index)
	assert.Contains(t, []string{"inside", "above", "below"}, body.Direction)
}

func TestCharts(t *testing.T) {
	rec := get(t, newTestServer(t, testFrame(t)), "/api/charts")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Charts []struct {
			ID string `json:"id"`
		} `json:"charts"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Len(t, body.Charts, 4)
}

func TestHistogram(t *testing.T) {
	h := newTestServer(t, testFrame(t))

	rec := get(t, h, "/api/histogram?bins=5")
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Total int               `json:"total"`
		Bins  []json.RawMessage `json:"bins"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 3, body.Total)
	assert.Len(t, body.Bins, 5)

	for _, bad := range []string{"abc", "0", "-3", "100000"} {
		rec := get(t, h, "/api/histogram?bins="+bad)
		assert.Equal(t, http.StatusBadRequest, rec.Code, bad)
	}
}

func TestChartsWithoutDefinedErrors(t *testing.T) {
	ones := models.Series{2000: 1, 2001: 1}
	frame, err := estimator.Estimate(ones, ones, models.Series{2000: 0, 2001: 0})
	require.NoError(t, err)
	h := newTestServer(t, frame)

	rec := get(t, h, "/api/charts")
	require.Equal(t, http.StatusOK, rec.Code)
	var charts struct {
		Charts []json.RawMessage `json:"charts"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &charts))
	assert.Len(t, charts.Charts, 4)

	rec = get(t, h, "/api/histogram")
	require.Equal(t, http.StatusOK, rec.Code)
	var hist struct {
		Total int               `json:"total"`
		Bins  []json.RawMessage `json:"bins"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &hist))
	assert.Equal(t, 0, hist.Total)
	assert.Empty(t, hist.Bins)
}

func TestHistory(t *testing.T) {
	at := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	hist := fakeHistory{frames: []storage.FrameInfo{
		{ID: "b", PairKey: "uy/us", FirstIndex: 2000, LastIndex: 2023, Rows: 24, ComputedAt: at},
		{ID: "a", PairKey: "uy/us", FirstIndex: 2000, LastIndex: 2022, Rows: 23, ComputedAt: at.Add(-time.Hour)},
	}}
	h := New(fakeSource{}, "USD/UYU", nil).WithHistory(hist).Routes()

	rec := get(t, h, "/api/history")
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Pair   string              `json:"pair"`
		Frames []storage.FrameInfo `json:"frames"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "USD/UYU", body.Pair)
	require.Len(t, body.Frames, 2)
	assert.Equal(t, "b", body.Frames[0].ID)
	assert.Equal(t, 2023, body.Frames[0].LastIndex)
	assert.True(t, at.Equal(body.Frames[0].ComputedAt))

	failing := New(fakeSource{}, "USD/UYU", nil).WithHistory(fakeHistory{err: assert.AnError}).Routes()
	assert.Equal(t, http.StatusInternalServerError, get(t, failing, "/api/history").Code)

	assert.Equal(t, http.StatusNotFound, get(t, newTestServer(t, nil), "/api/history").Code)
}

func TestExportCSV(t *testing.T) {
	rec := get(t, newTestServer(t, testFrame(t)), "/api/export.csv")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="pppwatch-usd-uyu.csv"`, rec.Header().Get("Content-Disposition"))

	lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, strings.Join(models.Columns, ","), strings.TrimSpace(lines[0]))
}

func TestExportXLSX(t *testing.T) {
	rec := get(t, newTestServer(t, testFrame(t)), "/api/export.xlsx")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, xlsxContentType, rec.Header().Get("Content-Type"))

	f, err := excelize.OpenReader(bytes.NewReader(rec.Body.Bytes()))
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows(f.GetSheetName(0))
	require.NoError(t, err)
	assert.Len(t, rows, 4)
}

func TestMetricsEndpoint(t *testing.T) {
	rec := get(t, newTestServer(t, nil), "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "pppwatch_refreshes_total")
}

func TestMetricsDisabled(t *testing.T) {
	h := New(fakeSource{}, "USD/UYU", nil).Routes()
	rec := get(t, h, "/metrics")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
