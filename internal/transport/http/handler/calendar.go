package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"syllabussync/internal/app"
	"syllabussync/internal/transport/http/response"
)

type CalendarHandler struct {
	calendarService *app.CalendarService
}

func NewCalendarHandler(calendarService *app.CalendarService) *CalendarHandler {
	return &CalendarHandler{calendarService: calendarService}
}

func (h *CalendarHandler) ICS(c *gin.Context) {
	versionID, err := strconv.ParseUint(c.Query("document_version_id"), 10, 64)
	if err != nil || versionID == 0 {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid document_version_id")
		return
	}

	body, err := h.calendarService.ExportICS(c.Request.Context(), uint(versionID))
	if err != nil {
		switch {
		case errors.Is(err, app.ErrInvalidInput):
			response.Error(c, http.StatusBadRequest, response.CodeBadRequest, err.Error())
		default:
			_ = c.Error(err)
			response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "export calendar failed")
		}
		return
	}

	c.Header("Content-Disposition", `attachment; filename="syllabus-`+strconv.FormatUint(versionID, 10)+`.ics"`)
	c.Data(http.StatusOK, "text/calendar; charset=utf-8", []byte(body))
}
