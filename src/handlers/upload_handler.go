package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/username/tradeclarity/backend/src/config"
	"github.com/username/tradeclarity/backend/src/logger"
	"github.com/username/tradeclarity/backend/src/parsers"
	"github.com/username/tradeclarity/backend/src/security/validation"
	"github.com/username/tradeclarity/backend/src/services"
	"github.com/username/tradeclarity/backend/src/utils"
)

type UploadHandler struct {
	importService services.ImportService
}

func NewUploadHandler(service services.ImportService) *UploadHandler {
	return &UploadHandler{
		importService: service,
	}
}

// HandleUpload ingests one CSV trade-history file. Multipart fields: file,
// exchange, accountType (optional), columnMapping (optional JSON object).
func (h *UploadHandler) HandleUpload(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "authentication required or user ID not found in context", http.StatusUnauthorized)
		return
	}

	if err := r.ParseMultipartForm(config.Cfg.MaxUploadSizeBytes); err != nil {
		logger.L.Warn("Failed to parse multipart form or request too large", "userID", userID, "error", err, "limit", config.Cfg.MaxUploadSizeBytes)
		utils.SendJSONError(w, fmt.Sprintf("Failed to parse form or request too large (max %d MB)", config.Cfg.MaxUploadSizeBytes/(1024*1024)), http.StatusBadRequest)
		return
	}

	file, fileHeader, err := r.FormFile("file")
	if err != nil {
		logger.L.Warn("Failed to retrieve file from request", "userID", userID, "error", err)
		utils.SendJSONError(w, "Failed to retrieve file from request. Ensure 'file' field is used.", http.StatusBadRequest)
		return
	}
	defer file.Close()

	if fileHeader.Size > config.Cfg.MaxUploadSizeBytes {
		logger.L.Warn("Uploaded file reports size too large", "userID", userID, "fileSize", fileHeader.Size, "limit", config.Cfg.MaxUploadSizeBytes)
		utils.SendJSONError(w, fmt.Sprintf("File too large, max %d MB", config.Cfg.MaxUploadSizeBytes/(1024*1024)), http.StatusBadRequest)
		return
	}

	clientContentType := fileHeader.Header.Get("Content-Type")
	if err := validation.ValidateClientContentType(clientContentType); err != nil {
		logger.L.Warn("Invalid client-declared file type", "userID", userID, "contentType", clientContentType, "error", err)
		utils.SendJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	if _, err := validation.ValidateFileContentByMagicBytes(file); err != nil {
		logger.L.Warn("Server-side file content validation failed", "userID", userID, "filename", fileHeader.Filename, "error", err)
		utils.SendJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	raw, err := io.ReadAll(file)
	if err != nil {
		logger.L.Error("Failed to read uploaded file", "userID", userID, "filename", fileHeader.Filename, "error", err)
		utils.SendJSONError(w, "Failed to read uploaded file", http.StatusInternalServerError)
		return
	}

	exchange := strings.TrimSpace(r.FormValue("exchange"))
	accountType := strings.TrimSpace(r.FormValue("accountType"))

	var mapping *parsers.ColumnMapping
	if rawMapping := r.FormValue("columnMapping"); rawMapping != "" {
		mapping = &parsers.ColumnMapping{}
		if err := json.Unmarshal([]byte(rawMapping), mapping); err != nil {
			logger.L.Warn("Invalid columnMapping JSON", "userID", userID, "error", err)
			utils.SendJSONError(w, "Invalid columnMapping: must be a JSON object of header names", http.StatusBadRequest)
			return
		}
	}

	logger.L.Info("Processing upload request", "userID", userID, "filename", fileHeader.Filename, "exchange", exchange, "accountType", accountType)
	result, err := h.importService.ProcessCSVUpload(string(raw), userID, exchange, accountType, mapping)
	if err != nil {
		switch {
		case errors.Is(err, parsers.ErrEmptyFile):
			utils.SendJSONError(w, parsers.ErrEmptyFile.Error(), http.StatusBadRequest)
		case errors.Is(err, parsers.ErrMalformedCSV):
			utils.SendJSONError(w, parsers.ErrMalformedCSV.Error(), http.StatusBadRequest)
		case errors.Is(err, parsers.ErrUnsupportedExchange):
			utils.SendJSONError(w, parsers.ErrUnsupportedExchange.Error(), http.StatusBadRequest)
		case errors.Is(err, services.ErrParsingFailed):
			logger.L.Warn("Upload processing failed due to CSV parsing errors", "userID", userID, "filename", fileHeader.Filename, "error", err)
			utils.SendJSONError(w, fmt.Sprintf("Error parsing CSV file: %v", err), http.StatusBadRequest)
		default:
			logger.L.Error("Internal error processing upload", "userID", userID, "filename", fileHeader.Filename, "error", err)
			utils.SendJSONError(w, "An internal error occurred while processing the file. Please try again later.", http.StatusInternalServerError)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(struct {
		Success bool `json:"success"`
		*services.ImportResult
	}{true, result}); err != nil {
		logger.L.Error("Error encoding JSON response for upload result", "userID", userID, "error", err)
	}
}

// HandleGetLatestImport returns the memoized result of the user's most recent
// upload, with an ETag so polling clients can skip unchanged payloads.
func (h *UploadHandler) HandleGetLatestImport(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "authentication required or user ID not found in context", http.StatusUnauthorized)
		return
	}

	result, found := h.importService.GetLatestImportResult(userID)
	if !found {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{"success": false, "found": false})
		return
	}

	w.Header().Set("Cache-Control", "no-cache, private")
	if etag, err := utils.GenerateETag(result); err == nil && etag != "" {
		quoted := fmt.Sprintf("%q", etag)
		w.Header().Set("ETag", quoted)
		for _, clientETag := range strings.Split(r.Header.Get("If-None-Match"), ",") {
			if strings.TrimSpace(clientETag) == quoted {
				w.WriteHeader(http.StatusNotModified)
				return
			}
		}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(result); err != nil {
		logger.L.Error("Error encoding JSON response for latest import", "userID", userID, "error", err)
	}
}
