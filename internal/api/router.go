package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"foco/internal/i18n"
	"foco/internal/service"
	"foco/pkg/otel"
	"foco/pkg/outbox"
)

// ReadinessCheck 返回 nil 表示依赖可用
type ReadinessCheck func(ctx context.Context) error

// Deps 路由需要的全部服务
type Deps struct {
	Translator *i18n.Translator
	Logger     *zap.Logger

	Auth          *service.AuthService
	Organizations *service.OrganizationService
	Projects      *service.ProjectService
	Milestones    *service.MilestoneService
	Tasks         *service.TaskService
	Time          *service.TimeTrackingService
	Comments      *service.CommentService
	Notifications *service.NotificationService
	Uploads       *service.FileUploadService
	UploadQueue   *service.UploadQueue
	Analytics     *service.AnalyticsService
	Calendar      *service.CalendarService
	Goals         *service.GoalService
	AIPolicy      *service.AIPolicyService
	Voice         *service.VoiceService
	Presence      *service.PresenceService
	Export        *service.ExportService
	Replay        *outbox.ReplayService

	CookieName     string
	SecureCookie   bool
	MaxUploadBytes int64
	Admins         []uuid.UUID
	Readiness      map[string]ReadinessCheck
}

type Router struct {
	Engine *gin.Engine
}

func NewRouter(d Deps) *Router {
	r := gin.New()
	r.Use(gin.Recovery(), TraceID(), otel.GinMiddleware(), RequestLogger(d.Logger), d.Translator.Middleware())
	r.MaxMultipartMemory = 8 << 20

	b := base{tr: d.Translator, logger: d.Logger}

	// Health endpoints (放在最前面)
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.HEAD("/healthz", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	r.GET("/readyz", readyz(d.Readiness))
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	authH := NewAuthHandler(b, d.Auth, d.Organizations, d.CookieName, d.SecureCookie)
	orgH := NewOrganizationHandler(b, d.Organizations, d.AIPolicy)
	projectH := NewProjectHandler(b, d.Projects, d.Milestones)
	taskH := NewTaskHandler(b, d.Tasks)
	timeH := NewTimeHandler(b, d.Time)
	commentH := NewCommentHandler(b, d.Comments)
	notificationH := NewNotificationHandler(b, d.Notifications)
	attachmentH := NewAttachmentHandler(b, d.Uploads, d.UploadQueue, d.MaxUploadBytes)
	analyticsH := NewAnalyticsHandler(b, d.Analytics, d.Calendar)
	goalH := NewGoalHandler(b, d.Goals)
	voiceH := NewVoiceHandler(b, d.Voice, d.Organizations)
	presenceH := NewPresenceHandler(b, d.Presence)
	exportH := NewExportHandler(b, d.Export)
	adminH := NewAdminHandler(b, d.Replay)

	v1 := r.Group("/api/v1")

	// Public
	v1.POST("/auth/register", authH.Register)
	v1.POST("/auth/login", authH.Login)
	v1.POST("/auth/logout", authH.Logout)

	// Protected
	auth := v1.Group("/")
	auth.Use(AuthMiddleware(d.Auth, d.CookieName, d.Translator))
	{
		auth.GET("/me", authH.Me)

		auth.POST("/organizations", orgH.Create)
		auth.GET("/organizations", orgH.List)
		auth.GET("/organizations/:orgID", orgH.Get)
		auth.GET("/organizations/:orgID/members", orgH.Members)
		auth.POST("/organizations/:orgID/members", orgH.AddMember)
		auth.PATCH("/organizations/:orgID/members/:userID", orgH.UpdateMemberRole)
		auth.DELETE("/organizations/:orgID/members/:userID", orgH.RemoveMember)
		auth.GET("/organizations/:orgID/ai-policy", orgH.GetAIPolicy)
		auth.PUT("/organizations/:orgID/ai-policy", orgH.UpdateAIPolicy)
		auth.GET("/organizations/:orgID/ai-policy/audit", orgH.AIAuditLog)

		auth.POST("/organizations/:orgID/projects", projectH.Create)
		auth.GET("/organizations/:orgID/projects", projectH.List)
		auth.GET("/organizations/:orgID/tasks", taskH.ListForOrg)
		auth.GET("/organizations/:orgID/analytics/dashboard", analyticsH.Dashboard)
		auth.GET("/organizations/:orgID/analytics/team", analyticsH.Team)
		auth.GET("/organizations/:orgID/analytics/timeseries", analyticsH.TimeSeries)
		auth.GET("/organizations/:orgID/calendar", analyticsH.Calendar)
		auth.POST("/organizations/:orgID/goals", goalH.Create)
		auth.GET("/organizations/:orgID/goals", goalH.List)

		auth.GET("/projects/:projectID", projectH.Get)
		auth.PATCH("/projects/:projectID", projectH.Update)
		auth.DELETE("/projects/:projectID", projectH.Delete)
		auth.POST("/projects/:projectID/milestones", projectH.CreateMilestone)
		auth.GET("/projects/:projectID/milestones", projectH.ListMilestones)
		auth.POST("/projects/:projectID/tasks", taskH.Create)
		auth.GET("/projects/:projectID/tasks", taskH.List)
		auth.GET("/projects/:projectID/board", taskH.Board)
		auth.GET("/projects/:projectID/analytics", analyticsH.Project)
		auth.PUT("/projects/:projectID/presence", presenceH.Heartbeat)
		auth.GET("/projects/:projectID/presence", presenceH.List)
		auth.DELETE("/projects/:projectID/presence", presenceH.Leave)
		auth.GET("/projects/:projectID/export", exportH.ExportProject)
		auth.GET("/projects/:projectID/export/tasks.csv", exportH.ExportTasks)
		auth.POST("/projects/:projectID/import/tasks", exportH.ImportTasks)

		auth.GET("/milestones/:milestoneID", projectH.GetMilestone)
		auth.PATCH("/milestones/:milestoneID", projectH.UpdateMilestone)
		auth.DELETE("/milestones/:milestoneID", projectH.DeleteMilestone)

		auth.POST("/tasks/bulk-status", taskH.BulkStatus)
		auth.GET("/tasks/:taskID", taskH.Get)
		auth.PATCH("/tasks/:taskID", taskH.Update)
		auth.DELETE("/tasks/:taskID", taskH.Delete)
		auth.POST("/tasks/:taskID/move", taskH.Move)

		auth.POST("/time-entries", timeH.Log)
		auth.GET("/time-entries", timeH.List)
		auth.GET("/time-entries/summary", timeH.Summary)
		auth.GET("/time-entries/running", timeH.Running)
		auth.POST("/time-entries/timer/start", timeH.StartTimer)
		auth.POST("/time-entries/timer/stop", timeH.StopTimer)
		auth.DELETE("/time-entries/:entryID", timeH.Delete)

		auth.POST("/comments", commentH.Create)
		auth.GET("/comments", commentH.List)
		auth.PATCH("/comments/:commentID", commentH.Update)
		auth.DELETE("/comments/:commentID", commentH.Delete)

		auth.GET("/notifications", notificationH.List)
		auth.GET("/notifications/unread-count", notificationH.UnreadCount)
		auth.POST("/notifications/read-all", notificationH.MarkAllRead)
		auth.POST("/notifications/:notificationID/read", notificationH.MarkRead)
		auth.DELETE("/notifications/:notificationID", notificationH.Delete)

		auth.POST("/attachments", attachmentH.Upload)
		auth.GET("/attachments", attachmentH.List)
		auth.GET("/attachments/:attachmentID/download", attachmentH.Download)
		auth.DELETE("/attachments/:attachmentID", attachmentH.Delete)
		auth.GET("/uploads/:jobID", attachmentH.JobStatus)
		auth.DELETE("/uploads/:jobID", attachmentH.CancelJob)

		auth.GET("/goals/:goalID", goalH.Get)
		auth.PATCH("/goals/:goalID", goalH.Update)
		auth.POST("/goals/:goalID/progress", goalH.UpdateProgress)
		auth.DELETE("/goals/:goalID", goalH.Delete)

		auth.POST("/voice/conversations", voiceH.Start)
		auth.POST("/voice/conversations/:conversationID/commands", voiceH.Command)
		auth.GET("/voice/conversations/:conversationID", voiceH.History)
		auth.DELETE("/voice/conversations/:conversationID", voiceH.End)

		admin := auth.Group("/admin")
		admin.Use(AdminOnly(d.Admins, d.Translator))
		{
			admin.GET("/outbox/failed", adminH.ListFailed)
			admin.POST("/outbox/replay", adminH.ReplayOutboxEvent)
			admin.POST("/outbox/replay-failed", adminH.ReplayFailedEvents)
		}
	}

	return &Router{Engine: r}
}

func (r *Router) Run(port string) error {
	return r.Engine.Run(port)
}

// readyz 逐个检查依赖，任何一个失败返回 503
func readyz(checks map[string]ReadinessCheck) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 1*time.Second)
		defer cancel()

		status := gin.H{}
		ready := true
		for name, check := range checks {
			if err := check(ctx); err != nil {
				status[name] = err.Error()
				ready = false
				continue
			}
			status[name] = "ok"
		}
		if !ready {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready", "checks": status})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready", "checks": status})
	}
}
