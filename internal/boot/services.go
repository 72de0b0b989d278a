package boot

import (
	"context"
	"fmt"
	"log"

	"osaccount/internal/model"
	"osaccount/internal/plugin"
	"osaccount/internal/plugin/biometric"
	"osaccount/internal/plugin/pin"
	"osaccount/internal/plugin/totp"
	"osaccount/internal/plugin/types"
	"osaccount/internal/service"
	"osaccount/pkg/config"
	"osaccount/pkg/crypto"
	"osaccount/pkg/idgen"

	"github.com/jonboulle/clockwork"
)

// Services 包含所有服务实例
type Services struct {
	Policy         *service.ConstraintPolicy
	Registry       *service.AccountRegistry
	Events         *service.EventBus
	AccountManager *service.AccountManager
	Identity       *service.IdentityManager
	UserAuth       *service.UserAuth
	PINAuth        *service.PINAuth
	Inputers       *types.InputerRegistry
	Executors      types.ExecutorRegistry
	Tokens         *service.AuthTokenService
	CallerSecret   []byte
}

// loadSecret 依次取配置值、密钥文件，均未配置时生成仅本进程有效的随机密钥
func loadSecret(name, value, file, blockType string, parse func(string) ([]byte, error)) ([]byte, error) {
	switch {
	case value != "":
		return parse(value)
	case file != "":
		return crypto.LoadKey(file, blockType)
	}
	log.Printf("[WARN] %s未配置，使用临时随机密钥，重启后失效", name)
	return crypto.NewKey()
}

func rawSecret(s string) ([]byte, error) {
	return []byte(s), nil
}

// InitExecutors 按配置注册认证执行器
func InitExecutors(cfg *config.ExecutorsConfig, inputers *types.InputerRegistry, clock clockwork.Clock) (types.ExecutorRegistry, error) {
	executors := plugin.NewRegistry()

	var key []byte
	if cfg.Face.Enabled || cfg.Fingerprint.Enabled || cfg.RecoveryKey.Enabled {
		k, err := loadSecret("executors.template_key", cfg.TemplateKey, cfg.TemplateKeyFile, crypto.TemplateKeyBlock, crypto.ParseHexKey)
		if err != nil {
			return nil, fmt.Errorf("failed to load template key: %w", err)
		}
		key = k
	}

	if cfg.PIN.Enabled {
		exec := pin.New(pin.Config{
			TrustLevel: model.AuthTrustLevel(cfg.PIN.TrustLevel),
			BcryptCost: cfg.PIN.BcryptCost,
		}, inputers, types.NewLockout(clock, cfg.PIN.Lockout.MaxAttempts, cfg.PIN.Lockout.Freeze))
		if err := executors.Register(exec); err != nil {
			return nil, err
		}
	}

	sensor := biometric.NewInputerSensor(inputers)
	bio := []struct {
		cfg  config.BiometricConfig
		make func(model.AuthTrustLevel, int, int, int) biometric.Config
	}{
		{cfg.Face, biometric.FaceConfig},
		{cfg.Fingerprint, biometric.FingerprintConfig},
	}
	for _, b := range bio {
		if !b.cfg.Enabled {
			continue
		}
		exec, err := biometric.New(
			b.make(model.AuthTrustLevel(b.cfg.TrustLevel), b.cfg.MaxEnrollments, b.cfg.MinSampleSize, b.cfg.MaxRetries),
			key, sensor, types.NewLockout(clock, b.cfg.Lockout.MaxAttempts, b.cfg.Lockout.Freeze),
		)
		if err != nil {
			return nil, err
		}
		if err := executors.Register(exec); err != nil {
			return nil, err
		}
	}

	if rk := cfg.RecoveryKey; rk.Enabled {
		exec, err := totp.New(totp.Config{
			TrustLevel: model.AuthTrustLevel(rk.TrustLevel),
			Issuer:     rk.Issuer,
			Period:     rk.Period,
			Skew:       rk.Skew,
		}, key, clock, inputers, types.NewLockout(clock, rk.Lockout.MaxAttempts, rk.Lockout.Freeze))
		if err != nil {
			return nil, err
		}
		if err := executors.Register(exec); err != nil {
			return nil, err
		}
	}

	return executors, nil
}

// InitServices 初始化所有服务实例，加载约束并恢复账号注册表
func InitServices(ctx context.Context, cfg *config.Config, repos *Repositories, auditComponents *AuditComponents, clock clockwork.Clock) (*Services, error) {
	var recorder service.AuditRecorder
	if auditComponents != nil && auditComponents.Writer != nil {
		recorder = auditComponents.Writer
	}

	// 约束策略
	policy := service.NewConstraintPolicy(repos.ConstraintRepo, service.ConstraintPolicyConfig{
		Strict: cfg.Constraints.Strict,
		Defaults: map[model.OsAccountType][]string{
			model.OsAccountTypeAdmin:  cfg.Constraints.Defaults.Admin,
			model.OsAccountTypeNormal: cfg.Constraints.Defaults.Normal,
			model.OsAccountTypeGuest:  cfg.Constraints.Defaults.Guest,
		},
	})
	if err := policy.Load(ctx); err != nil {
		return nil, err
	}

	// 账号注册表
	registry := service.NewAccountRegistry(service.AccountRegistryConfig{
		MaxAccounts:   cfg.Accounts.MaxAccounts,
		SerialPrefix:  cfg.Accounts.SerialPrefix,
		StartUserID:   cfg.Accounts.StartUserID,
		StartUserName: cfg.Accounts.StartUserName,
		MultiEnabled:  cfg.Accounts.MultiEnabled,
		PhotoMaxSize:  cfg.Accounts.PhotoMaxSize,
	}, repos.AccountRepo, repos.CredentialRepo, repos.PhotoRepo, policy, clock)
	if recorder != nil {
		registry.SetRecorder(recorder)
	}
	if err := registry.Bootstrap(ctx); err != nil {
		return nil, fmt.Errorf("failed to bootstrap accounts: %w", err)
	}

	events := service.NewEventBus()
	authorizer := service.NewAuthorizer()
	manager := service.NewAccountManager(authorizer, registry, policy, events)

	// 认证执行器
	inputers := types.NewInputerRegistry()
	executors, err := InitExecutors(&cfg.Executors, inputers, clock)
	if err != nil {
		return nil, err
	}

	ids, err := idgen.NewGenerator(cfg.Accounts.NodeID)
	if err != nil {
		return nil, err
	}

	// 认证令牌
	tokenSecret, err := loadSecret("idm.token_secret", cfg.IDM.TokenSecret, cfg.IDM.TokenSecretFile, crypto.TokenSecretBlock, rawSecret)
	if err != nil {
		return nil, fmt.Errorf("failed to load token secret: %w", err)
	}
	tokens := service.NewAuthTokenService(tokenSecret, cfg.IDM.TokenTTL, repos.TokenStore, clock)

	callerSecret, err := loadSecret("server.caller_secret", cfg.Server.CallerSecret, cfg.Server.CallerSecretFile, crypto.CallerSecretBlock, rawSecret)
	if err != nil {
		return nil, fmt.Errorf("failed to load caller secret: %w", err)
	}

	identity := service.NewIdentityManager(service.IdentityConfig{
		SessionTTL:    cfg.IDM.SessionTTL,
		EnrollTimeout: cfg.UserAuth.Timeout,
	}, authorizer, registry, policy, executors, repos.CredentialRepo, tokens, ids, clock, recorder)

	userAuth := service.NewUserAuth(service.UserAuthConfig{
		Timeout: cfg.UserAuth.Timeout,
	}, authorizer, registry, identity, executors, repos.CredentialRepo, tokens, ids, clock, recorder)

	return &Services{
		Policy:         policy,
		Registry:       registry,
		Events:         events,
		AccountManager: manager,
		Identity:       identity,
		UserAuth:       userAuth,
		PINAuth:        service.NewPINAuth(authorizer, inputers),
		Inputers:       inputers,
		Executors:      executors,
		Tokens:         tokens,
		CallerSecret:   callerSecret,
	}, nil
}

// Close 停止事件投递
func (s *Services) Close() {
	s.Events.Close()
}
