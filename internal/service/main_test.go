package service

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"osaccount/internal/model"
	"osaccount/internal/plugin"
	"osaccount/internal/plugin/pin"
	"osaccount/internal/plugin/types"
	"osaccount/internal/repository"
	"osaccount/pkg/async"
	"osaccount/pkg/database"
	"osaccount/pkg/idgen"

	"github.com/jonboulle/clockwork"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const testTimeout = 5 * time.Second

type testEnv struct {
	db        *gorm.DB
	clock     *clockwork.FakeClock
	ctx       context.Context
	policy    *ConstraintPolicy
	registry  *AccountRegistry
	events    *EventBus
	manager   *AccountManager
	identity  *IdentityManager
	auth      *UserAuth
	pinAuth   *PINAuth
	inputers  *types.InputerRegistry
	executors types.ExecutorRegistry
	tokens    *AuthTokenService
	creds     repository.CredentialRepository

	mu      sync.Mutex
	pinCode string
}

type envOptions struct {
	accounts   AccountRegistryConfig
	strict     bool
	defaults   map[model.OsAccountType][]string
	sessionTTL time.Duration
	timeout    time.Duration
}

func defaultEnvOptions() envOptions {
	return envOptions{
		accounts: AccountRegistryConfig{
			MaxAccounts:   999,
			SerialPrefix:  20220101,
			StartUserID:   100,
			StartUserName: "admin",
			MultiEnabled:  true,
			PhotoMaxSize:  1 << 16,
		},
		timeout: time.Minute,
	}
}

func openTestDB(t *testing.T, path string) *gorm.DB {
	t.Helper()
	db, err := database.Open(&database.Config{
		Driver:   database.DriverSQLite,
		Path:     path,
		LogLevel: "silent",
	})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.AutoMigrate(
		&model.OsAccount{},
		&model.AccountSequence{},
		&model.AccountConstraint{},
		&model.AccountPhoto{},
		&model.Credential{},
	); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func newTestEnv(t *testing.T) *testEnv {
	return newTestEnvWith(t, defaultEnvOptions())
}

func newTestEnvWith(t *testing.T, opts envOptions) *testEnv {
	t.Helper()
	env := &testEnv{
		db:      openTestDB(t, filepath.Join(t.TempDir(), "test.db")),
		clock:   clockwork.NewFakeClock(),
		ctx:     WithCaller(context.Background(), SystemCaller()),
		pinCode: "123456",
	}
	env.build(t, opts)
	return env
}

func (env *testEnv) build(t *testing.T, opts envOptions) {
	t.Helper()
	ctx := context.Background()

	env.creds = repository.NewCredentialRepository(env.db)
	env.policy = NewConstraintPolicy(repository.NewConstraintRepository(env.db), ConstraintPolicyConfig{
		Strict:   opts.strict,
		Defaults: opts.defaults,
	})
	if err := env.policy.Load(ctx); err != nil {
		t.Fatalf("load constraints: %v", err)
	}
	env.registry = NewAccountRegistry(opts.accounts,
		repository.NewAccountRepository(env.db),
		env.creds,
		repository.NewPhotoRepository(env.db),
		env.policy,
		env.clock,
	)
	if err := env.registry.Bootstrap(ctx); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}

	env.events = NewEventBus()
	t.Cleanup(env.events.Close)
	authorizer := NewAuthorizer()
	env.manager = NewAccountManager(authorizer, env.registry, env.policy, env.events)

	env.inputers = types.NewInputerRegistry()
	env.inputers.Register(model.AuthTypePIN, types.InputerFunc(func(s types.DataSetter) {
		env.mu.Lock()
		code := env.pinCode
		env.mu.Unlock()
		s.OnSetData(model.AuthSubTypePINSix, []byte(code))
	}))
	env.executors = plugin.NewRegistry()
	pinExec := pin.New(pin.Config{TrustLevel: model.AuthTrustLevelATL3, BcryptCost: bcrypt.MinCost},
		env.inputers, types.NewLockout(env.clock, 3, time.Minute))
	if err := env.executors.Register(pinExec); err != nil {
		t.Fatalf("register pin: %v", err)
	}

	ids, err := idgen.NewGenerator(1)
	if err != nil {
		t.Fatal(err)
	}
	env.tokens = NewAuthTokenService([]byte("test-secret"), 5*time.Minute, repository.NewMemoryTokenStore(env.clock), env.clock)
	env.identity = NewIdentityManager(IdentityConfig{SessionTTL: opts.sessionTTL, EnrollTimeout: opts.timeout},
		authorizer, env.registry, env.policy, env.executors, env.creds, env.tokens, ids, env.clock, nil)
	env.auth = NewUserAuth(UserAuthConfig{Timeout: opts.timeout},
		authorizer, env.registry, env.identity, env.executors, env.creds, env.tokens, ids, env.clock, nil)
	env.pinAuth = NewPINAuth(authorizer, env.inputers)
}

func (env *testEnv) setPIN(code string) {
	env.mu.Lock()
	env.pinCode = code
	env.mu.Unlock()
}

func await[T any](t *testing.T, task *async.Task[T]) (T, error) {
	t.Helper()
	select {
	case <-task.Done():
	case <-time.After(testTimeout):
		t.Fatal("task did not complete in time")
	}
	return task.Await(context.Background())
}

func mustAwait[T any](t *testing.T, task *async.Task[T]) T {
	t.Helper()
	v, err := await(t, task)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return v
}

func wantCode(t *testing.T, err error, want model.ResultCode) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s, got success", want)
	}
	if got := CodeOf(err); got != want {
		t.Fatalf("CodeOf(%v) = %s, want %s", err, got, want)
	}
}

func wantKitCode(t *testing.T, err error, want int) {
	t.Helper()
	if got := KitCodeOf(err); got != want {
		t.Fatalf("KitCodeOf(%v) = %d, want %d", err, got, want)
	}
}

// enrollPIN 打开会话并录入首个PIN
func (env *testEnv) enrollPIN(t *testing.T, localID int) uint64 {
	t.Helper()
	challenge := mustAwait(t, env.identity.OpenSession(env.ctx, localID))
	mustAwait(t, env.identity.AddCredential(env.ctx, localID, &model.CredentialInfo{CredType: model.AuthTypePIN}, nil))
	return challenge
}

// authToken 以PIN认证账号并返回令牌
func (env *testEnv) authToken(t *testing.T, localID int, challenge uint64) []byte {
	t.Helper()
	_, task := env.auth.AuthUser(env.ctx, localID, challenge, model.AuthTypePIN, model.AuthTrustLevelATL1, nil)
	result := mustAwait(t, task)
	if len(result.Token) == 0 {
		t.Fatal("auth returned no token")
	}
	return result.Token
}

// blockingExecutor 在ctx结束前一直阻塞的人脸执行器
type blockingExecutor struct {
	started chan struct{}
}

func newBlockingExecutor() *blockingExecutor {
	return &blockingExecutor{started: make(chan struct{}, 8)}
}

func (e *blockingExecutor) Type() model.AuthType             { return model.AuthTypeFace }
func (e *blockingExecutor) Name() string                     { return "blocking" }
func (e *blockingExecutor) TrustLevel() model.AuthTrustLevel { return model.AuthTrustLevelATL2 }
func (e *blockingExecutor) SubTypes() []model.AuthSubType    { return []model.AuthSubType{model.AuthSubTypeFace2D} }
func (e *blockingExecutor) MaxEnrollments() int              { return 1 }
func (e *blockingExecutor) Forget(int)                       {}

func (e *blockingExecutor) Enroll(ctx context.Context, req *types.EnrollRequest, tip types.TipFunc) (*types.Enrollment, error) {
	e.started <- struct{}{}
	<-ctx.Done()
	return nil, ctx.Err()
}

func (e *blockingExecutor) Authenticate(ctx context.Context, req *types.AuthRequest, tip types.TipFunc) (*types.Match, error) {
	tip(model.AcquireInfo{Module: int32(model.AuthTypeFace), Tip: int32(model.FaceTipNotDetected)})
	e.started <- struct{}{}
	<-ctx.Done()
	return nil, ctx.Err()
}

func (e *blockingExecutor) Property(ctx context.Context, localID int, creds []model.Credential) (*model.ExecutorProperty, error) {
	return &model.ExecutorProperty{Result: model.ResultSuccess}, nil
}

func (e *blockingExecutor) SetProperty(ctx context.Context, key model.SetPropertyType, value []byte) error {
	return types.ErrUnsupportedProperty
}

func (e *blockingExecutor) waitStarted(t *testing.T) {
	t.Helper()
	select {
	case <-e.started:
	case <-time.After(testTimeout):
		t.Fatal("executor did not start")
	}
}
