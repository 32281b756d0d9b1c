package router

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"house-of-david/backend/config"
	"house-of-david/backend/internal/api/handler"
	"house-of-david/backend/internal/api/middleware"
	"house-of-david/backend/internal/model"
	"house-of-david/backend/pkg/jwt"
	"house-of-david/backend/pkg/metrics"
	"house-of-david/backend/pkg/redis"
	"house-of-david/backend/pkg/response"
)

// Setup 初始化并返回 Gin 路由引擎
// rdb、m、db 均可为 nil：分别关闭黑名单/限流、指标、健康检查中的数据库探测
func Setup(
	cfg *config.Config,
	h *handler.Handler,
	jwtMgr *jwt.Manager,
	rdb *redis.Client,
	m *metrics.Metrics,
	db *gorm.DB,
	logger *zap.Logger,
) (*gin.Engine, error) {
	r := gin.New()

	// ── 全局中间件 ──
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(logger))
	r.Use(middleware.SecurityHeaders())
	r.Use(middleware.CORS(cfg.Server.CORS.AllowOrigins))
	r.Use(middleware.BodyLimit(cfg.Server.MaxBodyBytes))
	if m != nil {
		r.Use(middleware.Metrics(m))
	}

	// ── 健康检查 ──
	r.GET("/health", healthCheck(db))

	if m != nil && cfg.Metrics.Enabled {
		r.GET(cfg.Metrics.Path, gin.WrapH(m.Handler()))
	}

	jwtAuth := middleware.JWTAuth(jwtMgr, rdb, logger)
	adminOnly := middleware.RoleAuth(model.RoleAdmin, model.RoleSuperAdmin)

	// ── API v1 ──
	v1 := r.Group("/api/v1")
	{
		// 认证模块
		auth := v1.Group("/auth")
		{
			auth.POST("/login", h.Auth.Login)
			auth.POST("/logout", jwtAuth, h.Auth.Logout)
			auth.GET("/me", jwtAuth, h.Auth.Me)
		}

		sessions := v1.Group("/attendance-sessions")
		{
			// 公开接口（签到页面）
			sessions.GET("/active", h.Attendance.GetActive)
			sessions.POST("/:id/sign",
				middleware.RateLimit(rdb, cfg.Attendance.SignRateLimit, cfg.Attendance.SignRateWindow, logger),
				h.Attendance.Sign,
			)

			// 任意已登录用户
			sessions.GET("/my-stats", jwtAuth, h.Stats.MyStats)

			// 管理端
			admin := sessions.Group("", jwtAuth, adminOnly)
			{
				admin.POST("", h.Attendance.Open)
				admin.GET("", h.Attendance.List)
				admin.GET("/org-stats", h.Stats.OrgStats)
				admin.GET("/calendar.ics", h.Export.ExportCalendar)
				admin.GET("/member/:id/stats", h.Stats.MemberStats)
				admin.GET("/:id", h.Attendance.Get)
				admin.GET("/:id/export", h.Export.ExportSession)
				admin.PUT("/:id/close", h.Attendance.Close)
				admin.PUT("/:id/refresh", h.Attendance.Refresh)
				admin.DELETE("/:id", h.Attendance.Delete)
			}
		}
	}

	r.NoRoute(func(c *gin.Context) {
		response.NotFound(c, "接口不存在")
	})

	return r, nil
}

func healthCheck(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		if db != nil {
			sqlDB, err := db.DB()
			if err == nil {
				err = sqlDB.PingContext(c.Request.Context())
			}
			if err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "database": err.Error()})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}
