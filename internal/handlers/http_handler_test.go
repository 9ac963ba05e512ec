package handlers

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"lead-console/config"
	"lead-console/internal/models"
	"lead-console/internal/repositories"
	"lead-console/internal/services"
)

type apiEnv struct {
	router   *mux.Router
	datasets *services.DatasetStore
}

func newAPIEnv(t *testing.T) *apiEnv {
	t.Helper()
	logger := zap.NewNop()
	sessions := services.NewSessionStore(repositories.NewMemorySessionRepository())
	datasets := services.NewDatasetStore(repositories.NewMemoryDatasetRepository(), logger)
	callers := services.NewCallerService(repositories.NewMemoryCallerRepository(), logger)
	engine := services.NewDispositionEngine(sessions, datasets, callers, time.UTC, logger)
	scheduler := services.NewScheduler(repositories.NewMemoryAppointmentRepository(), datasets, services.FeedNotifier{}, services.SchedulerConfig{}, logger)
	exports := services.NewExportService(datasets, nil)
	console := services.NewConsole(sessions, datasets, engine, scheduler, callers, exports, time.UTC, logger)
	manager := services.NewConnectionManager(&config.WhatsAppConfig{Enabled: false}, logger)

	require.NoError(t, datasets.EnsureDefault())

	router := mux.NewRouter()
	NewHTTPHandler(console, datasets, exports, manager).Register(router)
	return &apiEnv{router: router, datasets: datasets}
}

func (e *apiEnv) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

type decodedResponse struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) decodedResponse {
	t.Helper()
	var resp decodedResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestWebhookStartReturnsHome(t *testing.T) {
	env := newAPIEnv(t)
	body := `{"operator_id": 42, "chat_id": "c1", "event": {"kind": "command_start"}}`
	rec := env.do(httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(body)))
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decode(t, rec)
	assert.Equal(t, "success", resp.Status)
	var reply models.Reply
	require.NoError(t, json.Unmarshal(resp.Data, &reply))
	assert.Contains(t, reply.Text, "Base active : default")
	assert.NotEmpty(t, reply.Buttons)
}

func TestWebhookStaleTokenIsNotice(t *testing.T) {
	env := newAPIEnv(t)
	body := `{"operator_id": 42, "event": {"kind": "button_pressed", "action": "rec:open:default:99"}}`
	rec := env.do(httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(body)))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "notice", decode(t, rec).Status)
}

func TestWebhookRejectsBadRequests(t *testing.T) {
	env := newAPIEnv(t)
	tests := []struct {
		name string
		body string
	}{
		{"malformed", `{`},
		{"missing operator", `{"event": {"kind": "command_start"}}`},
		{"unknown kind", `{"operator_id": 1, "event": {"kind": "poke"}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(tt.body)))
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, "error", decode(t, rec).Status)
		})
	}
}

func TestImportAndReadDataset(t *testing.T) {
	env := newAPIEnv(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", "leads.txt")
	require.NoError(t, err)
	_, err = part.Write([]byte("DUPONT - Jean\nMobile: 06 12 34 56 78\nVille: Paris (75001)\n\n\n\nVille: Lyon\n\n\n\n"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/datasets/default/import", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := env.do(req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var counts map[string]int
	require.NoError(t, json.Unmarshal(decode(t, rec).Data, &counts))
	assert.Equal(t, 1, counts["added"])
	assert.Equal(t, 1, counts["rejected"])

	rec = env.do(httptest.NewRequest(http.MethodGet, "/datasets/default", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var ds models.Dataset
	require.NoError(t, json.Unmarshal(decode(t, rec).Data, &ds))
	assert.Equal(t, 1, ds.RecordCount)
	assert.Equal(t, 1, ds.PhoneCount)
	assert.Equal(t, 1, ds.RegionCounts["75"])
	assert.Empty(t, ds.Records)

	rec = env.do(httptest.NewRequest(http.MethodGet, "/datasets", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var list []models.Dataset
	require.NoError(t, json.Unmarshal(decode(t, rec).Data, &list))
	require.Len(t, list, 1)
	assert.Equal(t, "default", list[0].Name)
}

func TestImportRejectsUnsupportedExtension(t *testing.T) {
	env := newAPIEnv(t)
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", "leads.pdf")
	require.NoError(t, err)
	part.Write([]byte("%PDF"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/datasets/default/import", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	assert.Equal(t, http.StatusBadRequest, env.do(req).Code)
}

func TestUnknownDatasetIsNotFound(t *testing.T) {
	env := newAPIEnv(t)
	for _, path := range []string{"/datasets/nope", "/datasets/nope/export", "/datasets/nope/records/1/dial-qr"} {
		assert.Equal(t, http.StatusNotFound, env.do(httptest.NewRequest(http.MethodGet, path, nil)).Code, path)
	}
}

func TestExportDataset(t *testing.T) {
	env := newAPIEnv(t)
	_, err := env.datasets.Import("default", []*models.LeadRecord{{LastName: "DUPONT", Mobile: "0612345678"}}, 0)
	require.NoError(t, err)

	rec := env.do(httptest.NewRequest(http.MethodGet, "/datasets/default/export?format=csv", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "default_")
	assert.Contains(t, rec.Body.String(), "DUPONT")

	rec = env.do(httptest.NewRequest(http.MethodGet, "/datasets/default/export?format=pdf", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(httptest.NewRequest(http.MethodGet, "/datasets/default/export?upload=true", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	body := `{"dataset": "default", "format": "xlsx"}`
	rec = env.do(httptest.NewRequest(http.MethodPost, "/exports", strings.NewReader(body)))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("PK")))

	rec = env.do(httptest.NewRequest(http.MethodPost, "/exports", strings.NewReader(`{"format": "csv"}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDialQRCodeServesPNG(t *testing.T) {
	env := newAPIEnv(t)
	_, err := env.datasets.Import("default", []*models.LeadRecord{
		{LastName: "DUPONT", Mobile: "0612345678"},
		{Email: "a@b.fr"},
	}, 0)
	require.NoError(t, err)

	rec := env.do(httptest.NewRequest(http.MethodGet, "/datasets/default/records/1/dial-qr", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("\x89PNG")))

	rec = env.do(httptest.NewRequest(http.MethodGet, "/datasets/default/records/2/dial-qr", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestChatEndpointsWhenDisabled(t *testing.T) {
	env := newAPIEnv(t)

	rec := env.do(httptest.NewRequest(http.MethodGet, "/qrcode", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	rec = env.do(httptest.NewRequest(http.MethodGet, "/qrcode-base64", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = env.do(httptest.NewRequest(http.MethodPost, "/logout", nil))
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = env.do(httptest.NewRequest(http.MethodGet, "/status", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var state services.ConnectionState
	require.NoError(t, json.Unmarshal(decode(t, rec).Data, &state))
	assert.Equal(t, services.StatusDisconnected, state.Status)
}
