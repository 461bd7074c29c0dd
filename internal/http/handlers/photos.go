package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-meal-backend/internal/http/middleware"
	"github.com/tbourn/go-meal-backend/internal/services"
)

// UploadResponse carries the public URL of a stored photo.
type UploadResponse struct {
	URL string `json:"url" example:"https://cdn.example.com/photos/u1/0b6f.jpg"`
}

// UploadPhoto godoc
// @ID          uploadPhoto
// @Summary     Upload a photo
// @Description Stores an image in the blob store and returns its URL for use in posts, meals and shares.
// @Tags        Photos
// @Accept      multipart/form-data
// @Produce     json
//
// @Param       Authorization  header    string  true  "Bearer token"
// @Param       file           formData  file    true  "JPEG, PNG, WebP, GIF or HEIC image"
//
// @Success     201  {object}  handlers.UploadResponse
// @Failure     400  {object}  handlers.ErrorResponse  "invalid-argument"
// @Failure     401  {object}  handlers.ErrorResponse  "unauthenticated"
// @Failure     500  {object}  handlers.ErrorResponse  "internal"
// @Router      /photos [post]
func (h *Handlers) UploadPhoto(c *gin.Context) {
	fh, err := c.FormFile("file")
	if err != nil {
		h.failErr(c, "uploadPhoto", services.InvalidArgument(`multipart field "file" is required and must fit the upload limit`))
		return
	}
	f, err := fh.Open()
	if err != nil {
		h.failErr(c, "uploadPhoto", err)
		return
	}
	defer f.Close()

	url, err := h.photos.Upload(c.Request.Context(), middleware.IdentityFrom(c),
		fh.Filename, fh.Header.Get("Content-Type"), fh.Size, f)
	if err != nil {
		h.failErr(c, "uploadPhoto", err)
		return
	}
	callableCalls.WithLabelValues("uploadPhoto", "ok").Inc()
	ok(c, http.StatusCreated, UploadResponse{URL: url})
}
