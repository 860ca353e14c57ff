package handler

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/noah-isme/campus-complaints-api/internal/middleware"
	"github.com/noah-isme/campus-complaints-api/internal/models"
)

// Handlers bundles every HTTP handler mounted under the API prefix.
type Handlers struct {
	Auth       *AuthHandler
	Complaints *ComplaintHandler
	Admin      *AdminComplaintHandler
	Settings   *SettingsHandler
	Reports    *ReportHandler
	Files      *FileHandler
}

// RegisterRoutes mounts the API on group. Role checks here are coarse; services enforce per-complaint access.
func RegisterRoutes(group *gin.RouterGroup, h Handlers, tokens middleware.TokenValidator, logger *zap.Logger) {
	auth := group.Group("/auth")
	auth.POST("/login", h.Auth.Login)
	auth.POST("/refresh", h.Auth.Refresh)
	group.GET("/files/:token", h.Files.Download)

	secured := group.Group("")
	secured.Use(middleware.JWT(tokens))
	secured.POST("/auth/logout", h.Auth.Logout)
	secured.POST("/auth/logout-all", h.Auth.LogoutAll)
	secured.GET("/auth/me", h.Auth.Me)

	secured.POST("/attachments", h.Complaints.StageAttachments)
	complaints := secured.Group("/complaints")
	complaints.POST("", h.Complaints.Create)
	complaints.GET("", h.Complaints.List)
	complaints.GET("/:code", h.Complaints.Get)
	complaints.PATCH("/:code", h.Complaints.Update)
	complaints.POST("/:code/messages", h.Complaints.AddMessage)
	complaints.POST("/:code/attachments", h.Complaints.UploadAttachments)
	complaints.POST("/:code/reopen", h.Complaints.Reopen)
	complaints.POST("/:code/feedback", h.Complaints.Feedback)

	review := secured.Group("/review/complaints")
	review.Use(middleware.RequireRoles(models.RoleReviewer, models.RoleDeptAdmin, models.RoleSuperAdmin))
	review.GET("", h.Complaints.ReviewQueue)
	review.POST("/:code/approve", middleware.Audit(logger, "review.approve"), h.Admin.ApproveReview)
	review.POST("/:code/edit", middleware.Audit(logger, "review.edit"), h.Admin.EditReview)

	admin := secured.Group("/admin")
	admin.Use(middleware.Staff())
	workflow := admin.Group("/complaints/:code")
	workflow.POST("/assign", middleware.Audit(logger, "complaint.assign"), h.Admin.Assign)
	workflow.POST("/status", middleware.Audit(logger, "complaint.status"), h.Admin.ChangeStatus)
	workflow.POST("/escalate", middleware.Audit(logger, "complaint.escalate"), h.Admin.Escalate)
	workflow.POST("/resolve", middleware.Audit(logger, "complaint.resolve"), h.Admin.Resolve)
	workflow.POST("/close", middleware.Audit(logger, "complaint.close"), h.Admin.Close)

	admin.GET("/reports/sla", middleware.RequireRoles(models.RoleDeptAdmin, models.RoleSuperAdmin), h.Reports.SLAReport)

	superAdmin := admin.Group("")
	superAdmin.Use(middleware.RequireRoles(models.RoleSuperAdmin))
	superAdmin.POST("/sla/sweep", middleware.Audit(logger, "sla.sweep"), h.Admin.Sweep)
	superAdmin.GET("/settings/threshold", h.Settings.GetThreshold)
	superAdmin.PUT("/settings/threshold", middleware.Audit(logger, "settings.threshold"), h.Settings.UpdateThreshold)
	superAdmin.GET("/routing-rules", h.Settings.ListRoutingRules)
	superAdmin.POST("/routing-rules", middleware.Audit(logger, "routing_rule.create"), h.Settings.CreateRoutingRule)
	superAdmin.PUT("/routing-rules/:id", middleware.Audit(logger, "routing_rule.update"), h.Settings.UpdateRoutingRule)
	superAdmin.DELETE("/routing-rules/:id", middleware.Audit(logger, "routing_rule.delete"), h.Settings.DeleteRoutingRule)
	superAdmin.GET("/sla-rules", h.Settings.ListSLARules)
	superAdmin.PUT("/sla-rules", middleware.Audit(logger, "sla_rule.upsert"), h.Settings.UpsertSLARule)
}
