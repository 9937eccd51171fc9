package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/userprod/account-service/internal/apperror"
	"github.com/userprod/account-service/internal/service"
)

// multipartOverhead leaves room for boundaries and form fields around the
// file itself.
const multipartOverhead = 1 << 20

// formUpload reads field from a multipart body capped at maxBytes plus
// overhead. A missing file yields an Upload with a nil Body so the service
// can report it. The returned closer is never nil.
func formUpload(c *gin.Context, field string, maxBytes int64) (service.Upload, io.Closer, error) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes+multipartOverhead)

	header, err := c.FormFile(field)
	if err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			return service.Upload{}, io.NopCloser(nil), apperror.BadRequest("file too large")
		case errors.Is(err, http.ErrMissingFile), errors.Is(err, http.ErrNotMultipart):
			return service.Upload{}, io.NopCloser(nil), nil
		default:
			return service.Upload{}, io.NopCloser(nil), apperror.BadRequest("invalid multipart form", err.Error())
		}
	}

	file, err := header.Open()
	if err != nil {
		return service.Upload{}, io.NopCloser(nil), apperror.Internal("failed to open uploaded file", err)
	}
	return service.Upload{FileName: header.Filename, Size: header.Size, Body: file}, file, nil
}
