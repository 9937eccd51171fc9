package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/userprod/account-service/internal/service"
)

// TransferHandler handles CSV import and export of users.
type TransferHandler struct {
	transfers service.TransferService
	log       zerolog.Logger
	now       func() time.Time
}

// NewTransferHandler creates a new TransferHandler instance.
func NewTransferHandler(transfers service.TransferService, log zerolog.Logger) *TransferHandler {
	return &TransferHandler{transfers: transfers, log: log, now: time.Now}
}

// Export godoc
// @Summary Export all users as CSV
// @Tags export
// @Produce text/csv
// @Success 200 {file} binary
// @Router /export/export-users [get]
func (h *TransferHandler) Export(c *gin.Context) {
	name := fmt.Sprintf("users-%s.csv", h.now().UTC().Format("20060102-150405"))
	c.Header("Content-Type", "text/csv; charset=utf-8")
	c.Header("Content-Disposition", attachment(name))
	c.Status(http.StatusOK)

	// Headers are already sent once rows stream, so a failure midway can
	// only be logged.
	if err := h.transfers.Export(c.Request.Context(), c.Writer); err != nil {
		if !c.Writer.Written() {
			c.Writer.Header().Del("Content-Type")
			c.Writer.Header().Del("Content-Disposition")
			fail(c, err)
			return
		}
		h.log.Error().Err(err).Str("op", "export").Msg("user export aborted")
	}
}

// Import godoc
// @Summary Import users from CSV
// @Description Header row required: email,username,firstName,lastName,password[,role]. Rows are upserted by email; invalid rows are reported individually.
// @Tags export
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "CSV file"
// @Success 200 {object} Response{data=service.ImportReport}
// @Failure 400 {object} middleware.ErrorResponse
// @Router /export/import-users [post]
func (h *TransferHandler) Import(c *gin.Context) {
	upload, closer, err := formUpload(c, "file", service.MaxImportBytes)
	defer closer.Close()
	if err != nil {
		fail(c, err)
		return
	}

	report, err := h.transfers.Import(c.Request.Context(), upload)
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, "import completed", report)
}
