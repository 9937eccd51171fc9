package handlers

import (
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/userprod/account-service/internal/service"
)

// ImageHandler handles generic image uploads.
type ImageHandler struct {
	images         service.ImageService
	publicBaseURL  string
	maxUploadBytes int64
	log            zerolog.Logger
}

// NewImageHandler creates a new ImageHandler instance.
func NewImageHandler(images service.ImageService, publicBaseURL string, maxUploadBytes int64, log zerolog.Logger) *ImageHandler {
	return &ImageHandler{
		images:         images,
		publicBaseURL:  publicBaseURL,
		maxUploadBytes: maxUploadBytes,
		log:            log,
	}
}

// ImageData wraps a single image.
type ImageData struct {
	Image any `json:"image"`
}

// ImageList wraps a list of images.
type ImageList struct {
	Images any `json:"images"`
}

// Upload godoc
// @Summary Upload an image
// @Tags image
// @Accept multipart/form-data
// @Produce json
// @Param mypic formData file true "Image file"
// @Success 201 {object} Response{data=ImageData}
// @Failure 400 {object} middleware.ErrorResponse
// @Router /image/upload [post]
func (h *ImageHandler) Upload(c *gin.Context) {
	identity, ok := currentIdentity(c)
	if !ok {
		return
	}

	upload, closer, err := formUpload(c, "mypic", h.maxUploadBytes)
	defer closer.Close()
	if err != nil {
		fail(c, err)
		return
	}

	image, err := h.images.Upload(c.Request.Context(), identity.ID, upload, baseURL(c, h.publicBaseURL))
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusCreated, "image uploaded successfully", ImageData{Image: image})
}

// ListMine godoc
// @Summary List the current user's images
// @Tags image
// @Produce json
// @Success 200 {object} Response{data=ImageList}
// @Router /image/my-images [get]
func (h *ImageHandler) ListMine(c *gin.Context) {
	identity, ok := currentIdentity(c)
	if !ok {
		return
	}

	images, err := h.images.ListMine(c.Request.Context(), identity.ID, baseURL(c, h.publicBaseURL))
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, "images fetched successfully", ImageList{Images: images})
}

// DeleteMine godoc
// @Summary Delete all of the current user's images
// @Tags image
// @Produce json
// @Success 200 {object} Response
// @Router /image/delete [delete]
func (h *ImageHandler) DeleteMine(c *gin.Context) {
	identity, ok := currentIdentity(c)
	if !ok {
		return
	}

	deleted, err := h.images.DeleteMine(c.Request.Context(), identity.ID)
	if err != nil {
		fail(c, err)
		return
	}
	if deleted == 0 {
		respond(c, http.StatusOK, "no images found", gin.H{})
		return
	}
	respond(c, http.StatusOK, "images deleted successfully", gin.H{"deleted": deleted})
}

// DeleteOne godoc
// @Summary Delete one of the current user's images
// @Tags image
// @Produce json
// @Param imageId path int true "Image id"
// @Success 200 {object} Response
// @Failure 404 {object} middleware.ErrorResponse
// @Router /image/images/{imageId} [delete]
func (h *ImageHandler) DeleteOne(c *gin.Context) {
	identity, ok := currentIdentity(c)
	if !ok {
		return
	}

	if err := h.images.DeleteOne(c.Request.Context(), identity.ID, imageID(c)); err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, "image deleted successfully", gin.H{})
}

// Download godoc
// @Summary Download an image
// @Tags image
// @Produce octet-stream
// @Param imageId path int true "Image id"
// @Success 200 {file} binary
// @Failure 404 {object} middleware.ErrorResponse
// @Router /image/images/{imageId} [get]
func (h *ImageHandler) Download(c *gin.Context) {
	image, body, err := h.images.Open(c.Request.Context(), imageID(c))
	if err != nil {
		fail(c, err)
		return
	}
	defer body.Close()

	c.Header("Content-Disposition", attachment(image.FileName))
	c.Header("Content-Type", image.MimeType)
	if image.Size > 0 {
		c.Header("Content-Length", strconv.FormatInt(image.Size, 10))
	}
	c.Status(http.StatusOK)
	if _, err := io.Copy(c.Writer, body); err != nil {
		h.log.Warn().Err(err).Int64("image_id", image.ID).Msg("image download interrupted")
	}
}

// imageID parses the path parameter; invalid ids become 0, which the
// service reports as not found.
func imageID(c *gin.Context) int64 {
	id, err := strconv.ParseInt(c.Param("imageId"), 10, 64)
	if err != nil {
		return 0
	}
	return id
}
