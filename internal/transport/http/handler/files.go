package handler

import (
	"errors"
	"io/fs"
	"net/http"
	"path"

	"github.com/gin-gonic/gin"

	"syllabussync/internal/app"
	"syllabussync/internal/platform/objectstore"
	"syllabussync/internal/transport/http/response"
)

type FileHandler struct {
	uploadService *app.UploadService
}

type PresignRequest struct {
	Filename    string `json:"filename" binding:"required,max=255"`
	ContentType string `json:"content_type" binding:"required,max=128"`
}

type NotifyRequest struct {
	Title         string `json:"title" binding:"required,max=512"`
	StorageURI    string `json:"storage_uri" binding:"required,max=1024"`
	ContentSHA256 string `json:"content_sha256" binding:"omitempty,len=64,hexadecimal"`
}

func NewFileHandler(uploadService *app.UploadService) *FileHandler {
	return &FileHandler{uploadService: uploadService}
}

func (h *FileHandler) Presign(c *gin.Context) {
	var req PresignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}

	result, err := h.uploadService.Presign(c.Request.Context(), app.PresignInput{
		Filename:    req.Filename,
		ContentType: req.ContentType,
	})
	if err != nil {
		switch {
		case errors.Is(err, app.ErrInvalidInput):
			response.Error(c, http.StatusBadRequest, response.CodeBadRequest, err.Error())
		case errors.Is(err, objectstore.ErrNotConfigured):
			response.Error(c, http.StatusServiceUnavailable, response.CodeStorageUnavailable, err.Error())
		default:
			_ = c.Error(err)
			response.Error(c, http.StatusBadGateway, response.CodeStorageUnavailable, "presign failed")
		}
		return
	}

	response.OK(c, result)
}

func (h *FileHandler) Notify(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	var req NotifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}

	result, err := h.uploadService.Notify(c.Request.Context(), app.NotifyInput{
		UserID:        userID,
		Title:         req.Title,
		StorageURI:    req.StorageURI,
		ContentSHA256: req.ContentSHA256,
	})
	if err != nil {
		switch {
		case errors.Is(err, app.ErrInvalidLocator):
			response.Error(c, http.StatusBadRequest, response.CodeInvalidLocator, err.Error())
		case errors.Is(err, app.ErrInvalidInput):
			response.Error(c, http.StatusBadRequest, response.CodeBadRequest, err.Error())
		default:
			_ = c.Error(err)
			response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "register document failed")
		}
		return
	}

	response.OK(c, result)
}

// Preview streams the stored PDF.
func (h *FileHandler) Preview(c *gin.Context) {
	uri := c.Query("storage_uri")
	if uri == "" {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "storage_uri is required")
		return
	}

	rc, size, err := h.uploadService.Preview(c.Request.Context(), uri)
	if err != nil {
		switch {
		case errors.Is(err, app.ErrInvalidLocator):
			response.Error(c, http.StatusBadRequest, response.CodeInvalidLocator, err.Error())
		case errors.Is(err, fs.ErrNotExist):
			response.Error(c, http.StatusNotFound, response.CodeNotFound, "object not found")
		case errors.Is(err, objectstore.ErrNotConfigured):
			response.Error(c, http.StatusServiceUnavailable, response.CodeStorageUnavailable, err.Error())
		default:
			_ = c.Error(err)
			response.Error(c, http.StatusBadGateway, response.CodeStorageUnavailable, "open object failed")
		}
		return
	}
	defer rc.Close()

	c.DataFromReader(http.StatusOK, size, "application/pdf", rc, map[string]string{
		"Content-Disposition": `inline; filename="` + path.Base(uri) + `"`,
	})
}
