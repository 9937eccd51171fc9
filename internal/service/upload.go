package service

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/userprod/account-service/internal/apperror"
)

// sniffLen is the number of bytes http.DetectContentType inspects.
const sniffLen = 512

// Upload is a file received from a client.
type Upload struct {
	FileName string
	Size     int64
	Body     io.Reader
}

// checkedImage returns the sniffed MIME type of an image upload and a reader
// that still yields the whole body.
func checkedImage(u Upload, maxBytes int64) (string, io.Reader, error) {
	if u.Body == nil || u.Size == 0 {
		return "", nil, apperror.BadRequest("no image file uploaded")
	}
	if u.Size > maxBytes {
		return "", nil, apperror.BadRequest("file too large", fmt.Sprintf("maximum size is %d bytes", maxBytes))
	}

	br := bufio.NewReaderSize(u.Body, sniffLen)
	head, err := br.Peek(sniffLen)
	if err != nil && !errors.Is(err, io.EOF) {
		return "", nil, apperror.Internal("failed to read upload", err)
	}

	mimeType := http.DetectContentType(head)
	if !strings.HasPrefix(mimeType, "image/") {
		return "", nil, apperror.BadRequest("only image files are allowed")
	}
	return mimeType, br, nil
}
