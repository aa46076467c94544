package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/avlog/internal/index"
	"github.com/starford/avlog/internal/models"
	"github.com/starford/avlog/internal/output"
	"github.com/starford/avlog/internal/recordservice"
	"github.com/starford/avlog/internal/testutil"
)

// testEnv builds a router over a sample output tree. An empty authToken
// means disabled mode.
func testEnv(t *testing.T, authToken string, withCatalog bool) (*recordservice.Service, http.Handler) {
	t.Helper()
	return testEnvWithSSE(t, authToken, withCatalog, nil)
}

func testEnvWithSSE(t *testing.T, authToken string, withCatalog bool, sseHandler http.Handler) (*recordservice.Service, http.Handler) {
	t.Helper()
	frames := testutil.SampleFrames()
	store := testutil.TestTree(t, frames)

	var catalog index.Catalog
	if withCatalog {
		catalog = testutil.TestCatalog(t, frames)
	}
	svc := recordservice.NewService(store, catalog, output.DefaultAggregateName)
	router := NewRouter(svc, authToken != "", authToken, sseHandler)
	return svc, router
}

func get(t *testing.T, router http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func getWithToken(t *testing.T, router http.Handler, target, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

// assertError checks the status and the error envelope of a response.
func assertError(t *testing.T, w *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	assert.Equal(t, status, w.Code, w.Body.String())
	var body errorBody
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body), w.Body.String())
	assert.Equal(t, code, body.Code)
	assert.NotEmpty(t, body.Error)
}

func TestGetFrames(t *testing.T) {
	_, router := testEnv(t, "", false)

	w := get(t, router, "/frames")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var frames []models.Frame
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &frames))
	require.Len(t, frames, 3)
	assert.Equal(t, models.CodecC8, frames[0].Codec)
}

func TestGetFrames_ServedAsWritten(t *testing.T) {
	svc, router := testEnv(t, "", false)

	onDisk, err := os.ReadFile(filepath.Join(svc.Root(), output.DefaultAggregateName))
	require.NoError(t, err)

	w := get(t, router, "/frames")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, string(onDisk), w.Body.String())
	assert.Equal(t, "application/json; charset=utf-8", w.Header().Get("Content-Type"))
}

func TestListHours(t *testing.T) {
	_, router := testEnv(t, "", false)

	w := get(t, router, "/hours")
	require.Equal(t, http.StatusOK, w.Code)

	var resp HourListResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Hours, 2)
	assert.Equal(t, 9, resp.Hours[0].Hour)
	assert.Equal(t, 2, resp.Hours[0].Records)
}

func TestListRecords(t *testing.T) {
	_, router := testEnv(t, "", false)

	w := get(t, router, "/hours/9")
	require.Equal(t, http.StatusOK, w.Code)

	var resp RecordListResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 9, resp.Hour)
	require.Len(t, resp.Records, 2)
	assert.Equal(t, "9/09:30:00.000.json", resp.Records[1].Path)
}

func TestListRecords_BadHour(t *testing.T) {
	_, router := testEnv(t, "", false)

	assertError(t, get(t, router, "/hours/nine"), http.StatusBadRequest, codeBadRequest)
	assertError(t, get(t, router, "/hours/25"), http.StatusBadRequest, codeInvalidQuery)
	assertError(t, get(t, router, "/hours/3"), http.StatusNotFound, codeNotFound)
}

func TestGetRecord(t *testing.T) {
	_, router := testEnv(t, "", false)

	w := get(t, router, "/records/14/14:05:00.000.json")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var detail RecordDetail
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &detail))
	assert.Equal(t, "14/14:05:00.000.json", detail.Path)
	assert.Equal(t, `"`+detail.Checksum+`"`, w.Header().Get("ETag"))

	var rec models.Record
	require.NoError(t, json.Unmarshal(detail.Record, &rec))
	assert.Equal(t, models.PriorityPanic, rec.Priority)
}

func TestGetRecord_NotFound(t *testing.T) {
	_, router := testEnv(t, "", false)

	assertError(t, get(t, router, "/records/9/09:59:00.000.json"), http.StatusNotFound, codeNotFound)
	assertError(t, get(t, router, "/records/9/notes.txt"), http.StatusBadRequest, codeInvalidQuery)
}

func TestQueryRecords(t *testing.T) {
	_, router := testEnv(t, "", true)

	w := get(t, router, "/records?from=2024-04-01T09:15:00Z&to=2024-04-01T12:00:00Z")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp RecordQueryResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Records, 1)
	assert.Equal(t, "9/09:30:00.000.json", resp.Records[0].Path)

	w = get(t, router, "/records?limit=1")
	resp = RecordQueryResponse{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Len(t, resp.Records, 1)
}

func TestQueryRecords_BadRange(t *testing.T) {
	_, router := testEnv(t, "", true)

	assertError(t, get(t, router, "/records?from=yesterday"), http.StatusBadRequest, codeInvalidQuery)
	assertError(t, get(t, router, "/records?from=2024-04-01T10:00:00Z&to=2024-04-01T09:00:00Z"),
		http.StatusBadRequest, codeInvalidQuery)
}

func TestQueryRecords_NoCatalog(t *testing.T) {
	_, router := testEnv(t, "", false)

	assertError(t, get(t, router, "/records"), http.StatusNotImplemented, codeCatalogDisabled)
	assertError(t, get(t, router, "/stats"), http.StatusNotImplemented, codeCatalogDisabled)
}

func TestStats(t *testing.T) {
	_, router := testEnv(t, "", true)

	w := get(t, router, "/stats")
	require.Equal(t, http.StatusOK, w.Code)

	var st index.Stats
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &st))
	assert.Equal(t, index.Stats{Frames: 3, Records: 3, Hours: 2}, st)
}

func TestLastRun(t *testing.T) {
	svc, router := testEnv(t, "", false)

	assertError(t, get(t, router, "/runs/last"), http.StatusNotFound, codeNotFound)

	svc.SetLastRun(models.Summary{RunID: "abc", Records: 3})
	w := get(t, router, "/runs/last")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"run_id":"abc"`)
}

func TestAuthMiddleware_ValidToken(t *testing.T) {
	_, router := testEnv(t, "secret123", false)

	assert.Equal(t, http.StatusOK, getWithToken(t, router, "/hours", "secret123").Code)
}

func TestAuthMiddleware_MissingToken(t *testing.T) {
	_, router := testEnv(t, "secret123", false)

	assertError(t, get(t, router, "/hours"), http.StatusUnauthorized, codeUnauthorized)
}

func TestAuthMiddleware_WrongToken(t *testing.T) {
	_, router := testEnv(t, "secret123", false)

	assertError(t, getWithToken(t, router, "/hours", "wrong"), http.StatusUnauthorized, codeUnauthorized)
}

// blockingSSE writes stream headers and blocks until the request ends.
var blockingSSE = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.WriteHeader(http.StatusOK)
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
	<-r.Context().Done()
})

func TestSSEEvents_AuthProtected(t *testing.T) {
	_, router := testEnvWithSSE(t, "secret", false, blockingSSE)

	assertError(t, get(t, router, "/events"), http.StatusUnauthorized, codeUnauthorized)
}

func TestSSEEvents_ValidToken(t *testing.T) {
	_, router := testEnvWithSSE(t, "tok", false, blockingSSE)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/events", nil).WithContext(ctx)
	req.Header.Set("Authorization", "Bearer tok")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}
