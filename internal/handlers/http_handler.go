package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"lead-console/internal/metrics"
	"lead-console/internal/models"
	"lead-console/internal/parser"
	"lead-console/internal/services"
	"lead-console/internal/utils"
)

// maxUploadBytes bounds multipart imports.
const maxUploadBytes = 10 << 20

type HTTPHandler struct {
	console           EventHandler
	datasets          *services.DatasetStore
	exports           *services.ExportService
	connectionManager *services.ConnectionManager
}

func NewHTTPHandler(console EventHandler, datasets *services.DatasetStore, exports *services.ExportService, manager *services.ConnectionManager) *HTTPHandler {
	return &HTTPHandler{
		console:           console,
		datasets:          datasets,
		exports:           exports,
		connectionManager: manager,
	}
}

// Register mounts the API routes on router.
func (h *HTTPHandler) Register(router *mux.Router) {
	router.HandleFunc("/webhook", h.Webhook).Methods("POST", "OPTIONS")
	router.HandleFunc("/datasets", h.ListDatasets).Methods("GET", "OPTIONS")
	router.HandleFunc("/datasets/{name}", h.GetDataset).Methods("GET", "OPTIONS")
	router.HandleFunc("/datasets/{name}/import", h.ImportDataset).Methods("POST", "OPTIONS")
	router.HandleFunc("/datasets/{name}/export", h.ExportDataset).Methods("GET", "OPTIONS")
	router.HandleFunc("/exports", h.CreateExport).Methods("POST", "OPTIONS")
	router.HandleFunc("/datasets/{name}/records/{id}/dial-qr", h.DialQRCode).Methods("GET", "OPTIONS")
	router.HandleFunc("/qrcode", h.GetQRCode).Methods("GET", "OPTIONS")
	router.HandleFunc("/qrcode-base64", h.GetQRCodeBase64).Methods("GET", "OPTIONS")
	router.HandleFunc("/status", h.GetStatus).Methods("GET", "OPTIONS")
	router.HandleFunc("/logout", h.Logout).Methods("POST", "OPTIONS")
	router.HandleFunc("/ws", WebSocketHandler)
}

// statusFor maps service errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case models.IsNotFound(err):
		return http.StatusNotFound
	case errors.Is(err, models.ErrInvalidDatasetName),
		errors.Is(err, models.ErrUnsupportedExtension),
		errors.Is(err, models.ErrInvalidPhone),
		errors.Is(err, models.ErrInvalidActionToken),
		errors.Is(err, services.ErrUnsupportedFormat):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrDatasetExists):
		return http.StatusConflict
	case errors.Is(err, services.ErrNotConnected):
		return http.StatusConflict
	case errors.Is(err, services.ErrUploadDisabled), errors.Is(err, services.ErrChatDisabled):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func respondError(w http.ResponseWriter, route string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		utils.LogError("%s failed: %v", route, err)
	} else {
		utils.LogDebug("%s rejected: %v", route, err)
	}
	models.RespondWithJSON(w, status, models.NewErrorResponse(err.Error()))
}

// @Summary Send an operator event
// @Description Runs one console event (start, button, text or document) and returns the reply
// @Tags console
// @Accept json
// @Produce json
// @Param request body models.WebhookRequest true "Operator event"
// @Success 200 {object} models.APIResponse
// @Failure 400 {object} models.APIResponse
// @Router /webhook [post]
func (h *HTTPHandler) Webhook(w http.ResponseWriter, r *http.Request) {
	var req models.WebhookRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxUploadBytes*2)).Decode(&req); err != nil {
		models.RespondWithJSON(w, http.StatusBadRequest, models.NewErrorResponse("invalid request body: "+err.Error()))
		return
	}
	if req.OperatorID <= 0 {
		models.RespondWithJSON(w, http.StatusBadRequest, models.NewErrorResponse("operator_id is required"))
		return
	}
	switch req.Event.Kind {
	case models.EventCommandStart, models.EventButtonPressed, models.EventTextReceived, models.EventDocumentReceived:
	default:
		models.RespondWithJSON(w, http.StatusBadRequest, models.NewErrorResponse(fmt.Sprintf("unknown event kind %q", req.Event.Kind)))
		return
	}

	reply := h.console.Handle(r.Context(), req.OperatorID, req.ChatID, req.Event)
	if reply.Notice {
		models.RespondWithJSON(w, http.StatusOK, models.NewNoticeResponse(reply.Text, reply))
		return
	}
	models.RespondWithJSON(w, http.StatusOK, models.NewSuccessResponse("ok", reply))
}

// @Summary List datasets
// @Tags datasets
// @Produce json
// @Success 200 {object} models.APIResponse
// @Router /datasets [get]
func (h *HTTPHandler) ListDatasets(w http.ResponseWriter, r *http.Request) {
	names, err := h.datasets.List()
	if err != nil {
		respondError(w, "/datasets", err)
		return
	}
	summaries := make([]*models.Dataset, 0, len(names))
	for _, name := range names {
		ds, err := h.datasets.Open(name)
		if err != nil {
			respondError(w, "/datasets", err)
			return
		}
		summaries = append(summaries, ds)
	}
	models.RespondWithJSON(w, http.StatusOK, models.NewSuccessResponse("ok", summaries))
}

// @Summary Get dataset aggregates
// @Tags datasets
// @Produce json
// @Param name path string true "Dataset name"
// @Success 200 {object} models.APIResponse
// @Failure 404 {object} models.APIResponse
// @Router /datasets/{name} [get]
func (h *HTTPHandler) GetDataset(w http.ResponseWriter, r *http.Request) {
	ds, err := h.datasets.Open(mux.Vars(r)["name"])
	if err != nil {
		respondError(w, "/datasets/{name}", err)
		return
	}
	models.RespondWithJSON(w, http.StatusOK, models.NewSuccessResponse("ok", ds))
}

// @Summary Import a lead file
// @Description Imports a .txt, .csv, .json or .jsonl file into a dataset
// @Tags datasets
// @Accept multipart/form-data
// @Produce json
// @Param name path string true "Dataset name"
// @Param file formData file true "File to import"
// @Success 200 {object} models.APIResponse
// @Failure 400 {object} models.APIResponse
// @Router /datasets/{name}/import [post]
func (h *HTTPHandler) ImportDataset(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		models.RespondWithJSON(w, http.StatusBadRequest, models.NewErrorResponse("file too large, limit is 10MB"))
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		models.RespondWithJSON(w, http.StatusBadRequest, models.NewErrorResponse("missing file field"))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		respondError(w, "/datasets/{name}/import", err)
		return
	}
	res, err := parser.ParseFile(header.Filename, data)
	if err != nil {
		respondError(w, "/datasets/{name}/import", err)
		return
	}
	added, err := h.datasets.Import(name, res.Records, int64(len(data)))
	if err != nil {
		respondError(w, "/datasets/{name}/import", err)
		return
	}
	ext, _ := utils.ImportExtension(header.Filename)
	format := strings.TrimPrefix(ext, ".")
	metrics.RecordsImportedTotal.WithLabelValues(format).Add(float64(added))
	metrics.BlocksRejectedTotal.WithLabelValues(format).Add(float64(len(res.Rejected)))

	models.RespondWithJSON(w, http.StatusOK, models.NewSuccessResponse("import complete", map[string]int{
		"added":    added,
		"rejected": len(res.Rejected),
	}))
}

// @Summary Export a dataset
// @Description Downloads the dataset as csv or xlsx, or uploads it to S3 when upload=true
// @Tags datasets
// @Produce octet-stream
// @Param name path string true "Dataset name"
// @Param format query string false "csv or xlsx"
// @Param upload query bool false "Upload to S3 and return the URL"
// @Success 200 {file} file
// @Failure 404 {object} models.APIResponse
// @Router /datasets/{name}/export [get]
func (h *HTTPHandler) ExportDataset(w http.ResponseWriter, r *http.Request) {
	upload, _ := strconv.ParseBool(r.URL.Query().Get("upload"))
	h.serveExport(w, mux.Vars(r)["name"], r.URL.Query().Get("format"), upload)
}

// @Summary Export a dataset from a JSON request
// @Tags datasets
// @Accept json
// @Produce octet-stream
// @Param request body models.ExportRequest true "Export request"
// @Success 200 {file} file
// @Failure 400 {object} models.APIResponse
// @Router /exports [post]
func (h *HTTPHandler) CreateExport(w http.ResponseWriter, r *http.Request) {
	var req models.ExportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		models.RespondWithJSON(w, http.StatusBadRequest, models.NewErrorResponse("invalid request body: "+err.Error()))
		return
	}
	if req.Dataset == "" {
		models.RespondWithJSON(w, http.StatusBadRequest, models.NewErrorResponse("dataset is required"))
		return
	}
	h.serveExport(w, req.Dataset, req.Format, req.Upload)
}

func (h *HTTPHandler) serveExport(w http.ResponseWriter, dataset, format string, upload bool) {
	doc, err := h.exports.Render(dataset, format)
	if err != nil {
		respondError(w, "export", err)
		return
	}

	if upload {
		url, err := h.exports.Upload(doc)
		if err != nil {
			respondError(w, "export", err)
			return
		}
		models.RespondWithJSON(w, http.StatusOK, models.NewSuccessResponse("export uploaded", map[string]string{
			"url":      url,
			"filename": doc.FileName,
		}))
		return
	}

	w.Header().Set("Content-Type", doc.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", doc.FileName))
	w.WriteHeader(http.StatusOK)
	w.Write(doc.Data)
}

// @Summary Dial QR code of a record
// @Description PNG QR code encoding a tel: link to the record's first phone
// @Tags datasets
// @Produce png
// @Param name path string true "Dataset name"
// @Param id path string true "Record id"
// @Success 200 {file} file
// @Failure 404 {object} models.APIResponse
// @Router /datasets/{name}/records/{id}/dial-qr [get]
func (h *HTTPHandler) DialQRCode(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	record, err := h.datasets.FindByID(vars["name"], vars["id"])
	if err != nil {
		respondError(w, "/dial-qr", err)
		return
	}
	phones := record.Phones()
	if len(phones) == 0 {
		models.RespondWithJSON(w, http.StatusNotFound, models.NewErrorResponse("record has no phone number"))
		return
	}
	png, err := services.DialQRCode(phones[0])
	if err != nil {
		respondError(w, "/dial-qr", err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	w.Write(png)
}

// @Summary Get WhatsApp login QR code
// @Tags authentication
// @Produce png
// @Success 200 {file} file
// @Failure 404 {object} models.APIResponse
// @Router /qrcode [get]
func (h *HTTPHandler) GetQRCode(w http.ResponseWriter, r *http.Request) {
	png, ok := h.loginQRCode(w)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.WriteHeader(http.StatusOK)
	w.Write(png)
}

// @Summary Get WhatsApp login QR code as base64
// @Tags authentication
// @Produce json
// @Success 200 {object} models.APIResponse
// @Failure 404 {object} models.APIResponse
// @Router /qrcode-base64 [get]
func (h *HTTPHandler) GetQRCodeBase64(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.loginQRCode(w); !ok {
		return
	}
	b64, err := h.connectionManager.QRCodeBase64()
	if err != nil {
		respondError(w, "/qrcode-base64", err)
		return
	}
	instructions := []string{
		"Pour connecter WhatsApp :",
		"1. Ouvrez WhatsApp sur le téléphone",
		"2. Menu ou Réglages, puis « Appareils connectés »",
		"3. « Connecter un appareil » et scannez ce QR code",
	}
	models.RespondWithJSON(w, http.StatusOK, models.NewSuccessResponse("qr code ready", map[string]string{
		"qrcode":       b64,
		"instructions": strings.Join(instructions, "\n"),
	}))
}

// loginQRCode starts the connection if needed and writes the error response
// itself when no code can be served.
func (h *HTTPHandler) loginQRCode(w http.ResponseWriter) ([]byte, bool) {
	if _, err := h.connectionManager.GetConnection(); err != nil {
		respondError(w, "/qrcode", err)
		return nil, false
	}
	png, err := h.connectionManager.QRCodePNG()
	switch {
	case errors.Is(err, services.ErrAlreadyConnected):
		models.RespondWithJSON(w, http.StatusOK, models.NewSuccessResponse("whatsapp already connected", h.connectionManager.Status()))
		return nil, false
	case errors.Is(err, services.ErrNoQRCode):
		models.RespondWithJSON(w, http.StatusNotFound, models.NewErrorResponse("qr code not available yet, retry in a few seconds"))
		return nil, false
	case err != nil:
		respondError(w, "/qrcode", err)
		return nil, false
	}
	return png, true
}

// @Summary Chat transport status
// @Tags authentication
// @Produce json
// @Success 200 {object} models.APIResponse
// @Router /status [get]
func (h *HTTPHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	state := h.connectionManager.Status()
	var message string
	switch state.Status {
	case services.StatusConnected:
		message = "WhatsApp est connecté."
	case services.StatusConnecting:
		message = "Le QR code est prêt à être scanné."
	default:
		message = "WhatsApp est déconnecté."
	}
	models.RespondWithJSON(w, http.StatusOK, models.NewSuccessResponse(message, state))
}

// @Summary Unlink the WhatsApp device
// @Tags authentication
// @Produce json
// @Success 200 {object} models.APIResponse
// @Failure 409 {object} models.APIResponse
// @Router /logout [post]
func (h *HTTPHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.connectionManager.Logout(); err != nil {
		respondError(w, "/logout", err)
		return
	}
	models.RespondWithJSON(w, http.StatusOK, models.NewSuccessResponse("whatsapp logged out", h.connectionManager.Status()))
}
