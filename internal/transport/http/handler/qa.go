package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"syllabussync/internal/ai"
	"syllabussync/internal/app"
	"syllabussync/internal/transport/http/response"
)

const maxK = 50

type QAHandler struct {
	qaService *app.QAService
}

type ChatRequest struct {
	Messages []ai.ChatMessage `json:"messages"`
	Scope    string           `json:"scope" binding:"omitempty,oneof=all recent ids"`
	IDs      []uint           `json:"ids"`
	K        int              `json:"k" binding:"omitempty,min=1,max=50"`
}

func NewQAHandler(qaService *app.QAService) *QAHandler {
	return &QAHandler{qaService: qaService}
}

func (h *QAHandler) Ask(c *gin.Context) {
	versionID, err := strconv.ParseUint(c.Query("document_version_id"), 10, 64)
	if err != nil || versionID == 0 {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid document_version_id")
		return
	}
	k, ok := parseQueryInt(c, "k", 0)
	if !ok || k < 0 || k > maxK {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid k")
		return
	}

	answer, err := h.qaService.Ask(c.Request.Context(), app.AskInput{
		VersionID: uint(versionID),
		Question:  c.Query("q"),
		K:         k,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.OK(c, answer)
}

func (h *QAHandler) Chat(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}

	answer, err := h.qaService.Chat(c.Request.Context(), app.ChatInput{
		UserID:   userID,
		Messages: req.Messages,
		Scope:    req.Scope,
		IDs:      req.IDs,
		K:        req.K,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.OK(c, answer)
}

func (h *QAHandler) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, app.ErrInvalidInput):
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, err.Error())
	default:
		_ = c.Error(err)
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "answer question failed")
	}
}
