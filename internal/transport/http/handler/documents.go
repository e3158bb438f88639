package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"syllabussync/internal/app"
	"syllabussync/internal/transport/http/response"
)

type DocumentHandler struct {
	documentService *app.DocumentService
}

func NewDocumentHandler(documentService *app.DocumentService) *DocumentHandler {
	return &DocumentHandler{documentService: documentService}
}

func (h *DocumentHandler) List(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	docs, err := h.documentService.List(c.Request.Context(), userID)
	if err != nil {
		_ = c.Error(err)
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "list documents failed")
		return
	}
	response.OK(c, docs)
}

func (h *DocumentHandler) Versions(c *gin.Context) {
	documentID, ok := parseID(c, "id")
	if !ok {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid document id")
		return
	}

	versions, err := h.documentService.Versions(c.Request.Context(), documentID)
	if err != nil {
		switch {
		case errors.Is(err, app.ErrDocumentNotFound):
			response.Error(c, http.StatusNotFound, response.CodeDocumentNotFound, err.Error())
		default:
			_ = c.Error(err)
			response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "list versions failed")
		}
		return
	}
	response.OK(c, versions)
}

func (h *DocumentHandler) DeleteVersion(c *gin.Context) {
	versionID, ok := parseID(c, "id")
	if !ok {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid version id")
		return
	}

	if err := h.documentService.DeleteVersion(c.Request.Context(), versionID); err != nil {
		switch {
		case errors.Is(err, app.ErrVersionNotFound):
			response.Error(c, http.StatusNotFound, response.CodeVersionNotFound, err.Error())
		default:
			_ = c.Error(err)
			response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "delete version failed")
		}
		return
	}
	response.OK(c, gin.H{"deleted": versionID})
}

func (h *DocumentHandler) RequeueStage(c *gin.Context) {
	versionID, ok := parseID(c, "id")
	if !ok {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid version id")
		return
	}
	stage := c.Param("stage")

	if err := h.documentService.RequeueStage(c.Request.Context(), versionID, stage); err != nil {
		switch {
		case errors.Is(err, app.ErrUnknownStage):
			response.Error(c, http.StatusBadRequest, response.CodeUnknownStage, err.Error())
		case errors.Is(err, app.ErrVersionNotFound):
			response.Error(c, http.StatusNotFound, response.CodeVersionNotFound, err.Error())
		case errors.Is(err, app.ErrEnqueue):
			_ = c.Error(err)
			response.Error(c, http.StatusServiceUnavailable, response.CodeQueueUnavailable, "enqueue failed")
		default:
			_ = c.Error(err)
			response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "requeue stage failed")
		}
		return
	}
	c.JSON(http.StatusAccepted, response.APIResponse{
		Code:    response.CodeOK,
		Message: "ok",
		Data:    gin.H{"document_version_id": versionID, "stage": stage},
	})
}
