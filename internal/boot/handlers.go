package boot

import (
	v1 "osaccount/api/v1"
	"osaccount/pkg/config"
	"osaccount/pkg/middleware"
	"osaccount/pkg/router"

	"github.com/gin-gonic/gin"
)

// Handlers 包含所有HTTP处理器
type Handlers struct {
	AccountHandler  *v1.AccountHandler
	IDMHandler      *v1.IDMHandler
	UserAuthHandler *v1.UserAuthHandler
	AuditHandler    *v1.AuditHandler
	StreamHandler   *v1.StreamHandler
}

// InitHandlers 初始化所有HTTP处理器
func InitHandlers(services *Services, auditComponents *AuditComponents, cfg *config.Config) *Handlers {
	return &Handlers{
		AccountHandler:  v1.NewAccountHandler(services.AccountManager),
		IDMHandler:      v1.NewIDMHandler(services.Identity),
		UserAuthHandler: v1.NewUserAuthHandler(services.UserAuth),
		AuditHandler:    v1.NewAuditHandler(auditComponents.Reader),
		StreamHandler: v1.NewStreamHandler(
			services.AccountManager,
			services.Identity,
			services.UserAuth,
			services.PINAuth,
			v1.StreamConfig{
				PingInterval:   cfg.Stream.PingInterval,
				WriteWait:      cfg.Stream.WriteWait,
				ReadWait:       cfg.Stream.ReadWait,
				MaxMessageSize: cfg.Stream.MaxMessageSize,
			},
		),
	}
}

// InitRouter 初始化路由
func InitRouter(engine *gin.Engine, handlers *Handlers, services *Services, cfg *config.Config) *router.Router {
	// 初始化认证中间件
	authMiddleware := middleware.NewAuthMiddleware(services.CallerSecret, cfg.Server.AuthEnabled)

	// 添加全局中间件
	engine.Use(middleware.CORSMiddleware())
	engine.Use(middleware.RequestLogger())

	// 初始化路由管理器
	r := router.NewRouter(
		engine,
		authMiddleware,
		handlers.AccountHandler,
		handlers.IDMHandler,
		handlers.UserAuthHandler,
		handlers.AuditHandler,
		handlers.StreamHandler,
	)

	// 注册所有路由
	r.RegisterRoutes()

	return r
}
