package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"osaccount/pkg/database"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config 应用配置结构
type Config struct {
	Server      ServerConfig           `mapstructure:"server"`
	Database    database.Config        `mapstructure:"database"`
	MongoDB     database.MongoDBConfig `mapstructure:"mongodb"`
	Redis       RedisConfig            `mapstructure:"redis"`
	Accounts    AccountsConfig         `mapstructure:"accounts"`
	Constraints ConstraintsConfig      `mapstructure:"constraints"`
	IDM         IDMConfig              `mapstructure:"idm"`
	UserAuth    UserAuthConfig         `mapstructure:"user_auth"`
	Executors   ExecutorsConfig        `mapstructure:"executors"`
	Audit       AuditConfig            `mapstructure:"audit"`
	Stream      WebSocketConfig        `mapstructure:"stream"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Port             int
	Mode             string
	LogLevel         string `mapstructure:"log_level"`          // 最低日志级别：debug、info、warn、error
	AuthEnabled      bool   `mapstructure:"auth_enabled"`       // 是否校验调用方令牌
	CallerSecret     string `mapstructure:"caller_secret"`      // 调用方令牌签名密钥
	CallerSecretFile string `mapstructure:"caller_secret_file"` // 调用方令牌签名密钥文件
}

// RedisConfig Redis配置，Host为空时使用进程内令牌存储
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// AccountsConfig 账号注册表配置
type AccountsConfig struct {
	MaxAccounts   int    `mapstructure:"max_accounts"`    // 最大账号数（不含系统账号）
	SerialPrefix  int64  `mapstructure:"serial_prefix"`   // 序列号前缀
	StartUserID   int    `mapstructure:"start_user_id"`   // 首个用户账号ID
	StartUserName string `mapstructure:"start_user_name"` // 首个用户账号名称
	MultiEnabled  bool   `mapstructure:"multi_enabled"`   // 是否支持多账号
	NodeID        int64  `mapstructure:"node_id"`         // snowflake节点号
	PhotoMaxSize  int    `mapstructure:"photo_max_size"`  // 头像最大字节数
}

// ConstraintsConfig 约束策略配置
type ConstraintsConfig struct {
	Strict   bool                   `mapstructure:"strict"` // 仅接受目录中的约束名
	Defaults ConstraintDefaultsConf `mapstructure:"defaults"`
}

// ConstraintDefaultsConf 各账号类型创建时的默认约束
type ConstraintDefaultsConf struct {
	Admin  []string `mapstructure:"admin"`
	Normal []string `mapstructure:"normal"`
	Guest  []string `mapstructure:"guest"`
}

// IDMConfig 身份管理配置
type IDMConfig struct {
	SessionTTL      time.Duration `mapstructure:"session_ttl"`       // 会话有效期，0表示不过期
	TokenTTL        time.Duration `mapstructure:"token_ttl"`         // 认证令牌有效期
	TokenSecret     string        `mapstructure:"token_secret"`      // 认证令牌签名密钥
	TokenSecretFile string        `mapstructure:"token_secret_file"` // 认证令牌签名密钥文件
}

// UserAuthConfig 用户认证配置
type UserAuthConfig struct {
	Timeout time.Duration `mapstructure:"timeout"` // 执行器超时时间
}

// ExecutorsConfig 认证执行器配置
type ExecutorsConfig struct {
	TemplateKey     string            `mapstructure:"template_key"`      // 模板密钥（十六进制）
	TemplateKeyFile string            `mapstructure:"template_key_file"` // 模板密钥文件
	PIN             PINConfig         `mapstructure:"pin"`
	Face            BiometricConfig   `mapstructure:"face"`
	Fingerprint     BiometricConfig   `mapstructure:"fingerprint"`
	RecoveryKey     RecoveryKeyConfig `mapstructure:"recovery_key"`
}

// LockoutConfig 失败锁定配置
type LockoutConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	Freeze      time.Duration `mapstructure:"freeze"`
}

// PINConfig PIN执行器配置
type PINConfig struct {
	Enabled    bool          `mapstructure:"enabled"`
	TrustLevel int32         `mapstructure:"trust_level"`
	BcryptCost int           `mapstructure:"bcrypt_cost"`
	Lockout    LockoutConfig `mapstructure:"lockout"`
}

// BiometricConfig 生物特征执行器配置
type BiometricConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	TrustLevel     int32         `mapstructure:"trust_level"`
	MaxEnrollments int           `mapstructure:"max_enrollments"`
	MinSampleSize  int           `mapstructure:"min_sample_size"`
	MaxRetries     int           `mapstructure:"max_retries"`
	Lockout        LockoutConfig `mapstructure:"lockout"`
}

// RecoveryKeyConfig 恢复密钥（TOTP）执行器配置
type RecoveryKeyConfig struct {
	Enabled    bool          `mapstructure:"enabled"`
	TrustLevel int32         `mapstructure:"trust_level"`
	Issuer     string        `mapstructure:"issuer"`
	Period     uint          `mapstructure:"period"`
	Skew       uint          `mapstructure:"skew"`
	Lockout    LockoutConfig `mapstructure:"lockout"`
}

// AuditConfig 审计配置
type AuditConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	LogDir        string        `mapstructure:"log_dir"`        // 日志目录
	RotationTime  time.Duration `mapstructure:"rotation_time"`  // 日志文件轮转周期
	RetentionDays int           `mapstructure:"retention_days"` // 日志保留天数
}

// WebSocketConfig WebSocket配置
type WebSocketConfig struct {
	PingInterval   time.Duration `mapstructure:"ping_interval"`    // 心跳间隔
	WriteWait      time.Duration `mapstructure:"write_wait"`       // 写超时
	ReadWait       time.Duration `mapstructure:"read_wait"`        // 读超时
	MaxMessageSize int64         `mapstructure:"max_message_size"` // 最大消息大小(字节)
}

// setDefaults 注册默认值，使配置文件只需覆盖差异项
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.auth_enabled", true)
	v.SetDefault("server.log_level", "debug")

	v.SetDefault("database.driver", database.DriverPostgres)
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.log_level", "warn")

	v.SetDefault("accounts.max_accounts", 999)
	v.SetDefault("accounts.serial_prefix", 20220101)
	v.SetDefault("accounts.start_user_id", 100)
	v.SetDefault("accounts.start_user_name", "admin")
	v.SetDefault("accounts.multi_enabled", true)
	v.SetDefault("accounts.node_id", 1)
	v.SetDefault("accounts.photo_max_size", 1<<20)

	v.SetDefault("idm.session_ttl", "10m")
	v.SetDefault("idm.token_ttl", "5m")

	v.SetDefault("user_auth.timeout", "30s")

	v.SetDefault("executors.pin.enabled", true)
	v.SetDefault("executors.pin.trust_level", 30000)
	v.SetDefault("executors.pin.bcrypt_cost", 10)
	v.SetDefault("executors.pin.lockout.max_attempts", 5)
	v.SetDefault("executors.pin.lockout.freeze", "60s")

	v.SetDefault("executors.face.enabled", true)
	v.SetDefault("executors.face.trust_level", 20000)
	v.SetDefault("executors.face.max_enrollments", 1)
	v.SetDefault("executors.face.min_sample_size", 64)
	v.SetDefault("executors.face.max_retries", 3)
	v.SetDefault("executors.face.lockout.max_attempts", 5)
	v.SetDefault("executors.face.lockout.freeze", "30s")

	v.SetDefault("executors.fingerprint.enabled", true)
	v.SetDefault("executors.fingerprint.trust_level", 30000)
	v.SetDefault("executors.fingerprint.max_enrollments", 5)
	v.SetDefault("executors.fingerprint.min_sample_size", 32)
	v.SetDefault("executors.fingerprint.max_retries", 3)
	v.SetDefault("executors.fingerprint.lockout.max_attempts", 5)
	v.SetDefault("executors.fingerprint.lockout.freeze", "30s")

	v.SetDefault("executors.recovery_key.enabled", false)
	v.SetDefault("executors.recovery_key.trust_level", 30000)
	v.SetDefault("executors.recovery_key.issuer", "osaccount")
	v.SetDefault("executors.recovery_key.period", 30)
	v.SetDefault("executors.recovery_key.skew", 1)
	v.SetDefault("executors.recovery_key.lockout.max_attempts", 5)
	v.SetDefault("executors.recovery_key.lockout.freeze", "5m")

	v.SetDefault("audit.enabled", true)
	v.SetDefault("audit.log_dir", "logs/audit")
	v.SetDefault("audit.rotation_time", "24h")
	v.SetDefault("audit.retention_days", 30)

	v.SetDefault("stream.ping_interval", "30s")
	v.SetDefault("stream.write_wait", "10s")
	v.SetDefault("stream.read_wait", "60s")
	v.SetDefault("stream.max_message_size", 1<<16)
}

// LoadConfig 加载配置文件，configPath为空时只使用默认值和环境变量
func LoadConfig(configPath string) (*Config, error) {
	// .env 文件可选
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("OSACCOUNT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv() // 读取环境变量

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml") // 设置配置文件类型
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// Validate 校验配置项之间的约束
func (c *Config) Validate() error {
	if c.Accounts.MaxAccounts <= 0 {
		return fmt.Errorf("accounts.max_accounts must be positive")
	}
	if c.Accounts.StartUserID <= 0 {
		return fmt.Errorf("accounts.start_user_id must be positive")
	}
	if c.Accounts.SerialPrefix <= 0 {
		return fmt.Errorf("accounts.serial_prefix must be positive")
	}
	if c.IDM.TokenTTL <= 0 {
		return fmt.Errorf("idm.token_ttl must be positive")
	}
	return nil
}
