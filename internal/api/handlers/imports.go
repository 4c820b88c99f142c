package handlers

import (
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/wonny/allocator/internal/portfolio"
	"github.com/wonny/allocator/pkg/logger"
)

// ImportHandler handles portfolio import endpoints
type ImportHandler struct {
	importer *portfolio.Importer
	logger   *logger.Logger
}

// NewImportHandler creates a new import handler
func NewImportHandler(importer *portfolio.Importer, log *logger.Logger) *ImportHandler {
	return &ImportHandler{
		importer: importer,
		logger:   log,
	}
}

// ImportResponse is returned by a successful import
type ImportResponse struct {
	ID        string `json:"id"`
	ExpiresAt string `json:"expires_at"`
}

// Import validates and stores a portfolio document
// POST /api/import
func (h *ImportHandler) Import(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	imported, err := h.importer.Import(r.Context(), body)
	if err != nil {
		respondErr(w, h.logger, err)
		return
	}

	respondJSON(w, http.StatusCreated, ImportResponse{
		ID:        strings.ReplaceAll(imported.ID.String(), "-", ""),
		ExpiresAt: imported.ExpiresAt.Format(time.RFC3339),
	})
}

// GetImported returns a stored portfolio document
// GET /api/import/{id}
func (h *ImportHandler) GetImported(w http.ResponseWriter, r *http.Request) {
	doc, _, err := h.importer.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		respondErr(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, doc)
}
