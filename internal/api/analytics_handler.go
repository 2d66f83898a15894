package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"foco/internal/model"
	"foco/internal/service"
)

type AnalyticsHandler struct {
	base
	analytics *service.AnalyticsService
	calendar  *service.CalendarService
}

func NewAnalyticsHandler(b base, analytics *service.AnalyticsService, calendar *service.CalendarService) *AnalyticsHandler {
	return &AnalyticsHandler{base: b, analytics: analytics, calendar: calendar}
}

// Dashboard GET /organizations/:orgID/analytics/dashboard
func (h *AnalyticsHandler) Dashboard(c *gin.Context) {
	orgID, ok := h.uuidParam(c, "orgID")
	if !ok {
		return
	}
	d, err := h.analytics.Dashboard(c.Request.Context(), currentUser(c), orgID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

// Project GET /projects/:projectID/analytics
func (h *AnalyticsHandler) Project(c *gin.Context) {
	projectID, ok := h.uuidParam(c, "projectID")
	if !ok {
		return
	}
	m, err := h.analytics.Project(c.Request.Context(), currentUser(c), projectID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, m)
}

// Team GET /organizations/:orgID/analytics/team?from=&to=
func (h *AnalyticsHandler) Team(c *gin.Context) {
	orgID, ok := h.uuidParam(c, "orgID")
	if !ok {
		return
	}
	from, to, ok := h.timeRange(c, 30)
	if !ok {
		return
	}
	members, err := h.analytics.Team(c.Request.Context(), currentUser(c), orgID, from, to)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"members": members})
}

// TimeSeries GET /organizations/:orgID/analytics/timeseries?project_id=&from=&to=
func (h *AnalyticsHandler) TimeSeries(c *gin.Context) {
	orgID, ok := h.uuidParam(c, "orgID")
	if !ok {
		return
	}
	projectID, ok := h.uuidQuery(c, "project_id", false)
	if !ok {
		return
	}
	from, to, ok := h.timeRange(c, 30)
	if !ok {
		return
	}
	points, err := h.analytics.TimeSeries(c.Request.Context(), currentUser(c), orgID, projectID, from, to)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"points": points})
}

// Calendar GET /organizations/:orgID/calendar?from=&to=&project_id=&kinds=task_due,milestone_due&mine=true
func (h *AnalyticsHandler) Calendar(c *gin.Context) {
	orgID, ok := h.uuidParam(c, "orgID")
	if !ok {
		return
	}
	projectID, ok := h.uuidQuery(c, "project_id", false)
	if !ok {
		return
	}
	from, to, ok := h.timeRange(c, 31)
	if !ok {
		return
	}
	f := service.CalendarFilter{ProjectID: projectID}
	if raw := c.Query("kinds"); raw != "" {
		for _, k := range strings.Split(raw, ",") {
			f.Kinds = append(f.Kinds, model.CalendarEventKind(strings.TrimSpace(k)))
		}
	}
	if c.Query("mine") == "true" {
		f.UserID = currentUser(c)
	}
	events, err := h.calendar.Events(c.Request.Context(), currentUser(c), orgID, from, to, f)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": events})
}
