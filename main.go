package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"osaccount/internal/audit"
	"osaccount/internal/boot"
	"osaccount/internal/service"
	"osaccount/pkg/copyright"
	"osaccount/pkg/logger"
	"osaccount/pkg/version"

	"github.com/gin-gonic/gin"
	"github.com/jonboulle/clockwork"
	"github.com/spf13/pflag"
)

// checkFatalErr 用于统一处理错误检查并中断流程。
func checkFatalErr(err error, message string) {
	if err != nil {
		logger.Fatal("%s: %v", message, err)
	}
}

func main() {
	configPath := pflag.StringP("config", "c", "config/config.yaml", "配置文件路径")
	printAccounts := pflag.Bool("print-accounts", false, "打印账号列表后退出")
	pflag.Parse()

	// 设置构建时间（Build Time）
	if version.BuildTime == "unknown" {
		version.BuildTime = time.Now().Format(time.RFC3339)
	}

	// 加载配置文件（Configuration）
	cfg, err := boot.InitConfig(*configPath)
	checkFatalErr(err, "Failed to load config")

	// 根据配置设置 Gin 的运行模式（Gin Mode）
	gin.SetMode(cfg.Server.Mode)

	// 初始化数据库连接（PostgreSQL / SQLite）
	db, err := boot.InitDB(&cfg.Database)
	checkFatalErr(err, "Failed to connect to database")

	sqlDB, err := db.DB()
	checkFatalErr(err, "Failed to get underlying *sql.DB")
	defer sqlDB.Close()

	// 初始化 MongoDB 连接（可选）
	mongodb, err := boot.InitMongo(&cfg.MongoDB)
	checkFatalErr(err, "Failed to connect to MongoDB")
	if mongodb != nil {
		defer mongodb.Close(context.Background())
	}

	// 初始化 Redis 客户端（可选）
	redisClient, err := boot.InitRedis(&cfg.Redis)
	checkFatalErr(err, "Failed to connect to Redis")

	clock := clockwork.NewRealClock()

	// 初始化仓储层（Repositories）
	repos := boot.InitRepositories(db, mongodb, redisClient, clock)

	// 初始化审计组件（Audit Components）
	auditComponents, err := boot.InitAudit(&cfg.Audit, clock)
	checkFatalErr(err, "Failed to init audit components")
	defer auditComponents.Close()

	// 初始化服务层（Services）
	ctx := service.WithCaller(context.Background(), service.SystemCaller())
	services, err := boot.InitServices(ctx, cfg, repos, auditComponents, clock)
	checkFatalErr(err, "Failed to init services")
	defer services.Close()

	accounts := accountRows(ctx, services)
	if *printAccounts {
		copyright.PrintAccounts(os.Stdout, accounts)
		return
	}

	// 初始化 HTTP 处理器（Handlers）
	handlers := boot.InitHandlers(services, auditComponents, cfg)

	// 初始化 Gin 引擎和路由（Router）
	r := gin.New()
	r.Use(gin.Recovery())
	_ = boot.InitRouter(r, handlers, services, cfg)

	// 审计日志数量，仅用于启动信息
	var totalLogs int64
	if auditComponents.Reader != nil {
		if logs, err := auditComponents.Reader.ReadLogs(ctx, audit.QueryParams{}); err == nil {
			totalLogs = int64(len(logs))
		}
	}

	executors := make([]copyright.ExecutorRow, 0)
	for _, e := range services.Executors.List() {
		executors = append(executors, copyright.ExecutorRow{
			Name:       e.Name(),
			AuthType:   e.Type().String(),
			TrustLevel: int32(e.TrustLevel()),
		})
	}

	// 显示版权信息（Copyright）
	copyright.PrintCopyright(copyright.SystemStatus{
		Version:        version.GetVersion(),
		DatabaseDriver: db.Dialector.Name(),
		RedisStatus:    redisClient != nil,
		MongoDBStatus:  mongodb != nil,
		AuditEnabled:   auditComponents.Writer != nil,
		AuthEnabled:    cfg.Server.AuthEnabled,
		Accounts:       accounts,
		Executors:      executors,
		MaxAccounts:    services.Registry.MaxAccounts(),
		LogCount:       totalLogs,
	})

	// 启动服务器（Server）
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	logger.Info("Starting server on %s", addr)
	if err := r.Run(addr); err != nil {
		logger.Fatal("Failed to start server: %v", err)
	}
}

// accountRows 汇总已创建的账号用于展示
func accountRows(ctx context.Context, services *boot.Services) []copyright.AccountRow {
	list := services.Registry.QueryAll(ctx)
	rows := make([]copyright.AccountRow, 0, len(list))
	active := make(map[int]bool)
	for _, id := range services.Registry.QueryActivatedIDs() {
		active[id] = true
	}
	for _, acc := range list {
		rows = append(rows, copyright.AccountRow{
			LocalID:  acc.LocalID,
			Name:     acc.LocalName,
			Type:     acc.Type.String(),
			Serial:   acc.SerialNumber,
			Active:   active[acc.LocalID],
			Verified: acc.IsVerified,
		})
	}
	return rows
}
