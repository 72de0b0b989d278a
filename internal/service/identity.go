package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"osaccount/internal/audit"
	"osaccount/internal/model"
	"osaccount/internal/plugin/types"
	"osaccount/internal/repository"
	"osaccount/pkg/async"
	"osaccount/pkg/idgen"

	"github.com/jonboulle/clockwork"
)

// IdentityConfig 身份管理配置
type IdentityConfig struct {
	SessionTTL    time.Duration // 会话有效期，0表示不过期
	EnrollTimeout time.Duration // 单次录入的超时时间，0表示不限制
}

// idmSession 一个账号的IDM会话
type idmSession struct {
	localID   int
	challenge uint64
	state     *sessionStateManager
	createdAt time.Time
	deadline  time.Time
	cancel    context.CancelFunc // 进行中操作的取消函数
}

func (s *idmSession) expired(now time.Time) bool {
	return !s.deadline.IsZero() && !now.Before(s.deadline)
}

// IdentityManager 身份管理：会话、凭据录入与删除
type IdentityManager struct {
	mu          sync.Mutex
	sessions    map[int]*idmSession
	byChallenge map[uint64]*idmSession

	cfg         IdentityConfig
	authorizer  Authorizer
	accounts    *AccountRegistry
	constraints *ConstraintPolicy
	executors   types.ExecutorRegistry
	credentials repository.CredentialRepository
	tokens      *AuthTokenService
	ids         *idgen.Generator
	clock       clockwork.Clock
	recorder    AuditRecorder
}

// NewIdentityManager 创建身份管理器，并在账号删除时关闭其会话
func NewIdentityManager(
	cfg IdentityConfig,
	authorizer Authorizer,
	accounts *AccountRegistry,
	constraints *ConstraintPolicy,
	executors types.ExecutorRegistry,
	credentials repository.CredentialRepository,
	tokens *AuthTokenService,
	ids *idgen.Generator,
	clock clockwork.Clock,
	recorder AuditRecorder,
) *IdentityManager {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if recorder == nil {
		recorder = nopRecorder{}
	}
	m := &IdentityManager{
		sessions:    make(map[int]*idmSession),
		byChallenge: make(map[uint64]*idmSession),
		cfg:         cfg,
		authorizer:  authorizer,
		accounts:    accounts,
		constraints: constraints,
		executors:   executors,
		credentials: credentials,
		tokens:      tokens,
		ids:         ids,
		clock:       clock,
		recorder:    recorder,
	}
	accounts.OnRemove(m.onAccountRemoved)
	return m
}

// session 返回账号的有效会话，过期会话在此关闭，调用方需持有mu
func (m *IdentityManager) session(localID int) *idmSession {
	s, ok := m.sessions[localID]
	if !ok {
		return nil
	}
	if s.expired(m.clock.Now()) {
		log.Printf("[DEBUG] IDM会话过期: local_id=%d", localID)
		m.closeLocked(s)
		return nil
	}
	return s
}

// closeLocked 取消进行中的操作并释放会话，调用方需持有mu
func (m *IdentityManager) closeLocked(s *idmSession) {
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	_ = s.state.SetState(model.SessionStateClosed)
	delete(m.sessions, s.localID)
	delete(m.byChallenge, s.challenge)
}

// OpenSession 打开会话并返回挑战值，失败时挑战值为0
func (m *IdentityManager) OpenSession(ctx context.Context, localID int) *async.Task[uint64] {
	if err := m.authorizer.Check(ctx, OpOpenSession); err != nil {
		return async.Failed[uint64](err)
	}
	return settle(OpOpenSession, func() (uint64, error) {
		if !m.accounts.Exists(localID) {
			return 0, fmt.Errorf("%w: %d", ErrAccountNotFound, localID)
		}

		m.mu.Lock()
		defer m.mu.Unlock()
		if m.session(localID) != nil {
			return 0, fmt.Errorf("%w: local_id=%d", ErrSessionExists, localID)
		}
		challenge, err := m.newChallenge()
		if err != nil {
			return 0, err
		}

		now := m.clock.Now()
		s := &idmSession{
			localID:   localID,
			challenge: challenge,
			state:     newSessionStateManager(),
			createdAt: now,
		}
		if m.cfg.SessionTTL > 0 {
			s.deadline = now.Add(m.cfg.SessionTTL)
		}
		if err := s.state.SetState(model.SessionStateOpen); err != nil {
			return 0, err
		}
		m.sessions[localID] = s
		m.byChallenge[challenge] = s

		m.recorder.Record(ctx, audit.EventSessionOpen, localID, callerUID(ctx), nil)
		log.Printf("[DEBUG] 打开IDM会话: local_id=%d", localID)
		return challenge, nil
	})
}

// newChallenge 生成未被占用的挑战值，调用方需持有mu
func (m *IdentityManager) newChallenge() (uint64, error) {
	for {
		challenge, err := idgen.NewChallenge()
		if err != nil {
			return 0, err
		}
		if _, used := m.byChallenge[challenge]; !used {
			return challenge, nil
		}
	}
}

// RenewChallenge 为已打开的会话更换挑战值
func (m *IdentityManager) RenewChallenge(ctx context.Context, localID int) *async.Task[uint64] {
	if err := m.authorizer.Check(ctx, OpOpenSession); err != nil {
		return async.Failed[uint64](err)
	}
	return settle(OpOpenSession, func() (uint64, error) {
		m.mu.Lock()
		defer m.mu.Unlock()
		s := m.session(localID)
		if s == nil {
			return 0, ErrSessionNotOpen
		}
		if state := s.state.State(); state.IsBusy() {
			return 0, fmt.Errorf("%w: %s in progress", ErrSessionBusy, state)
		}
		challenge, err := m.newChallenge()
		if err != nil {
			return 0, err
		}
		delete(m.byChallenge, s.challenge)
		s.challenge = challenge
		m.byChallenge[challenge] = s
		return challenge, nil
	})
}

// CloseSession 关闭会话，没有打开的会话时直接成功
func (m *IdentityManager) CloseSession(ctx context.Context, localID int) *async.Task[struct{}] {
	if err := m.authorizer.Check(ctx, OpCloseSession); err != nil {
		return async.Failed[struct{}](err)
	}
	m.mu.Lock()
	s, ok := m.sessions[localID]
	if ok {
		m.closeLocked(s)
	}
	m.mu.Unlock()
	if ok {
		m.recorder.Record(ctx, audit.EventSessionClose, localID, callerUID(ctx), nil)
		log.Printf("[DEBUG] 关闭IDM会话: local_id=%d", localID)
	}
	return async.Resolved(struct{}{})
}

// Challenge 返回账号当前会话的挑战值，没有会话时为0
func (m *IdentityManager) Challenge(localID int) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s := m.session(localID); s != nil {
		return s.challenge
	}
	return 0
}

// onAccountRemoved 账号删除时关闭会话并清理执行器状态
func (m *IdentityManager) onAccountRemoved(ctx context.Context, localID int) {
	m.mu.Lock()
	if s, ok := m.sessions[localID]; ok {
		m.closeLocked(s)
	}
	m.mu.Unlock()
	for _, e := range m.executors.List() {
		e.Forget(localID)
	}
}

// begin 在会话上开始录入或认证并登记取消函数，返回的release结束该操作
func (m *IdentityManager) begin(s *idmSession, state model.SessionState, cancel context.CancelFunc) (func(), error) {
	if err := s.state.Begin(state); err != nil {
		return nil, err
	}
	s.cancel = cancel
	release := func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if m.sessions[s.localID] == s {
			s.cancel = nil
		}
		s.state.End()
	}
	return release, nil
}

// bindAuth 认证的挑战值与账号会话一致时，会话进入Authenticating
// 挑战值不属于该账号会话时bound为false
func (m *IdentityManager) bindAuth(localID int, challenge uint64, cancel context.CancelFunc) (release func(), bound bool, err error) {
	if challenge == 0 {
		return func() {}, false, nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.session(localID)
	if s == nil || s.challenge != challenge {
		return func() {}, false, nil
	}
	release, err = m.begin(s, model.SessionStateAuthenticating, cancel)
	if err != nil {
		return nil, false, err
	}
	return release, true, nil
}

// Cancel 取消挑战值对应会话中进行中的操作
func (m *IdentityManager) Cancel(ctx context.Context, challenge uint64) *async.Task[struct{}] {
	if err := m.authorizer.Check(ctx, OpCancel); err != nil {
		return async.Failed[struct{}](err)
	}
	return settle(OpCancel, func() (struct{}, error) {
		m.mu.Lock()
		defer m.mu.Unlock()
		s, ok := m.byChallenge[challenge]
		if !ok || m.session(s.localID) == nil {
			return struct{}{}, fmt.Errorf("%w: unknown challenge", ErrChallengeMismatch)
		}
		if !s.state.State().IsBusy() || s.cancel == nil {
			return struct{}{}, fmt.Errorf("%w: no operation in progress", ErrContextNotFound)
		}
		s.cancel()
		log.Printf("[DEBUG] 取消IDM操作: local_id=%d", s.localID)
		return struct{}{}, nil
	})
}

// enrollPlan 录入前置检查的结果
type enrollPlan struct {
	session  *idmSession
	executor types.Executor
	existing []model.Credential
	release  func()
	ctx      context.Context
	cancel   context.CancelFunc
}

// prepareEnroll 同步完成录入前的全部检查，成功时会话已进入Enrolling
func (m *IdentityManager) prepareEnroll(ctx context.Context, op Operation, localID int, info *model.CredentialInfo, update bool) (*enrollPlan, error) {
	if info == nil {
		return nil, fmt.Errorf("%w: credential info is required", ErrInvalidParameters)
	}
	if err := m.constraints.Guard(localID, model.ConstraintCredentialsSet, op); err != nil {
		return nil, err
	}
	if !m.accounts.Exists(localID) {
		return nil, fmt.Errorf("%w: %d", ErrAccountNotFound, localID)
	}

	m.mu.Lock()
	s := m.session(localID)
	m.mu.Unlock()
	if s == nil {
		return nil, ErrSessionNotOpen
	}

	executor, ok := m.executors.Get(info.CredType)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTypeNotSupported, info.CredType)
	}
	if info.CredSubType != 0 && !types.HasSubType(executor, info.CredSubType) {
		return nil, fmt.Errorf("%w: sub type %d", ErrTypeNotSupported, info.CredSubType)
	}

	existing, err := m.credentials.ListByLocalID(ctx, localID, info.CredType)
	if err != nil {
		return nil, fmt.Errorf("failed to list credentials: %w", err)
	}
	if update {
		if len(existing) == 0 {
			return nil, fmt.Errorf("%w: no %s credential to update", ErrNotEnrolled, info.CredType)
		}
	} else if len(existing) >= executor.MaxEnrollments() {
		return nil, fmt.Errorf("%w: %s allows %d", ErrEnrollmentLimit, info.CredType, executor.MaxEnrollments())
	}

	// 账号的第一个凭据可以是不带令牌的PIN
	needToken := true
	if !update && info.CredType == model.AuthTypePIN {
		all, err := m.credentials.ListByLocalID(ctx, localID, 0)
		if err != nil {
			return nil, fmt.Errorf("failed to list credentials: %w", err)
		}
		needToken = len(all) > 0
	}
	if needToken && len(info.Token) == 0 {
		return nil, ErrTokenRequired
	}

	opCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	if m.cfg.EnrollTimeout > 0 {
		opCtx, cancel = withTimeout(opCtx, cancel, m.clock, m.cfg.EnrollTimeout)
	}

	// 会话忙时不消费令牌
	m.mu.Lock()
	if m.sessions[localID] != s {
		m.mu.Unlock()
		cancel()
		return nil, ErrSessionNotOpen
	}
	release, err := m.begin(s, model.SessionStateEnrolling, cancel)
	m.mu.Unlock()
	if err != nil {
		cancel()
		return nil, err
	}
	if needToken {
		if _, err := m.tokens.Consume(ctx, info.Token, localID, s.challenge); err != nil {
			release()
			cancel()
			return nil, err
		}
	}
	return &enrollPlan{
		session:  s,
		executor: executor,
		existing: existing,
		release:  release,
		ctx:      opCtx,
		cancel:   cancel,
	}, nil
}

// enroll 在后台执行录入并写入凭据
func (m *IdentityManager) enroll(ctx context.Context, plan *enrollPlan, info *model.CredentialInfo, update bool, onAcquire types.TipFunc) *async.Task[*model.RequestResult] {
	localID := plan.session.localID
	return async.Go(func() (*model.RequestResult, error) {
		defer plan.cancel()
		defer plan.release()

		req := &types.EnrollRequest{
			LocalID:     localID,
			Challenge:   plan.session.challenge,
			AuthSubType: info.CredSubType,
		}
		if !update {
			req.Existing = plan.existing
		}
		enrollment, err := plan.executor.Enroll(plan.ctx, req, safeTip(onAcquire))
		if err != nil {
			return nil, terminalError(plan.ctx, err)
		}

		cred := &model.Credential{
			ID:          m.ids.Next(),
			LocalID:     localID,
			AuthType:    info.CredType,
			AuthSubType: enrollment.AuthSubType,
			TemplateID:  idgen.NewKSUID(),
			Template:    enrollment.Template,
		}
		event := audit.EventCredentialAdd
		if update {
			event = audit.EventCredentialUpdate
			err = m.credentials.Replace(plan.ctx, cred)
		} else {
			err = m.credentials.Create(plan.ctx, cred)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to save credential: %w", err)
		}

		m.recorder.Record(ctx, event, localID, callerUID(ctx), map[string]interface{}{
			"credential_id": fmt.Sprint(cred.ID),
			"auth_type":     cred.AuthType.String(),
		})
		log.Printf("[DEBUG] 录入凭据: local_id=%d, type=%s, credential_id=%d", localID, cred.AuthType, cred.ID)
		return &model.RequestResult{CredentialID: cred.ID}, nil
	})
}

// AddCredential 录入凭据
func (m *IdentityManager) AddCredential(ctx context.Context, localID int, info *model.CredentialInfo, onAcquire types.TipFunc) *async.Task[*model.RequestResult] {
	if err := m.authorizer.Check(ctx, OpAddCredential); err != nil {
		return async.Failed[*model.RequestResult](err)
	}
	plan, err := m.prepareEnroll(ctx, OpAddCredential, localID, info, false)
	if err != nil {
		return rejected[*model.RequestResult](OpAddCredential, err)
	}
	return m.enroll(ctx, plan, info, false, onAcquire)
}

// UpdateCredential 更新凭据，成功后该类型的全部凭据被一个新凭据替换
func (m *IdentityManager) UpdateCredential(ctx context.Context, localID int, info *model.CredentialInfo, onAcquire types.TipFunc) *async.Task[*model.RequestResult] {
	if err := m.authorizer.Check(ctx, OpUpdateCredential); err != nil {
		return async.Failed[*model.RequestResult](err)
	}
	plan, err := m.prepareEnroll(ctx, OpUpdateCredential, localID, info, true)
	if err != nil {
		return rejected[*model.RequestResult](OpUpdateCredential, err)
	}
	return m.enroll(ctx, plan, info, true, onAcquire)
}

// requireSession 删除操作要求账号有打开的会话
func (m *IdentityManager) requireSession(localID int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session(localID) == nil {
		return ErrSessionNotOpen
	}
	return nil
}

// DelCred 删除单个凭据
func (m *IdentityManager) DelCred(ctx context.Context, localID int, credentialID uint64, token []byte) *async.Task[struct{}] {
	if err := m.authorizer.Check(ctx, OpDelCred); err != nil {
		return async.Failed[struct{}](err)
	}
	return settle(OpDelCred, func() (struct{}, error) {
		if err := m.constraints.Guard(localID, model.ConstraintCredentialsSet, OpDelCred); err != nil {
			return struct{}{}, err
		}
		if err := m.requireSession(localID); err != nil {
			return struct{}{}, err
		}
		cred, err := m.credentials.GetByID(ctx, credentialID)
		if err != nil {
			return struct{}{}, fmt.Errorf("failed to load credential: %w", err)
		}
		if cred == nil || cred.LocalID != localID {
			return struct{}{}, fmt.Errorf("%w: %d", ErrCredentialNotFound, credentialID)
		}
		if _, err := m.tokens.Consume(ctx, token, localID, 0); err != nil {
			return struct{}{}, err
		}
		if err := m.credentials.Delete(ctx, credentialID); err != nil {
			return struct{}{}, fmt.Errorf("failed to delete credential: %w", err)
		}
		if remaining, err := m.credentials.CountByType(ctx, localID, cred.AuthType); err == nil && remaining == 0 {
			if e, ok := m.executors.Get(cred.AuthType); ok {
				e.Forget(localID)
			}
		}

		m.recorder.Record(ctx, audit.EventCredentialDelete, localID, callerUID(ctx), map[string]interface{}{
			"credential_id": fmt.Sprint(credentialID),
			"auth_type":     cred.AuthType.String(),
		})
		return struct{}{}, nil
	})
}

// DelUser 删除账号的全部凭据并清除已验证标记
func (m *IdentityManager) DelUser(ctx context.Context, localID int, token []byte) *async.Task[struct{}] {
	if err := m.authorizer.Check(ctx, OpDelUser); err != nil {
		return async.Failed[struct{}](err)
	}
	return settle(OpDelUser, func() (struct{}, error) {
		if err := m.constraints.Guard(localID, model.ConstraintCredentialsSet, OpDelUser); err != nil {
			return struct{}{}, err
		}
		if err := m.requireSession(localID); err != nil {
			return struct{}{}, err
		}
		if _, err := m.tokens.Consume(ctx, token, localID, 0); err != nil {
			return struct{}{}, err
		}
		n, err := m.credentials.DeleteByLocalID(ctx, localID)
		if err != nil {
			return struct{}{}, fmt.Errorf("failed to delete credentials: %w", err)
		}
		for _, e := range m.executors.List() {
			e.Forget(localID)
		}
		if err := m.accounts.SetVerified(ctx, localID, false); err != nil && !errors.Is(err, ErrSystemAccount) {
			return struct{}{}, err
		}

		m.recorder.Record(ctx, audit.EventUserDelete, localID, callerUID(ctx), map[string]interface{}{"credentials": n})
		return struct{}{}, nil
	})
}

// GetAuthInfo 查询已录入的凭据，authType为0时返回全部类型
func (m *IdentityManager) GetAuthInfo(ctx context.Context, localID int, authType model.AuthType) *async.Task[[]*model.EnrolledCredInfo] {
	if err := m.authorizer.Check(ctx, OpGetAuthInfo); err != nil {
		return async.Failed[[]*model.EnrolledCredInfo](err)
	}
	return settle(OpGetAuthInfo, func() ([]*model.EnrolledCredInfo, error) {
		if !m.accounts.Exists(localID) {
			return nil, fmt.Errorf("%w: %d", ErrAccountNotFound, localID)
		}
		creds, err := m.credentials.ListByLocalID(ctx, localID, authType)
		if err != nil {
			return nil, fmt.Errorf("failed to list credentials: %w", err)
		}
		infos := make([]*model.EnrolledCredInfo, 0, len(creds))
		for i := range creds {
			infos = append(infos, creds[i].Info())
		}
		return infos, nil
	})
}

// safeTip 屏蔽回调中的panic
func safeTip(fn types.TipFunc) types.TipFunc {
	return func(info model.AcquireInfo) {
		if fn == nil {
			return
		}
		defer func() {
			if r := recover(); r != nil {
				log.Printf("[ERROR] 提示回调异常: %v", r)
			}
		}()
		fn(info)
	}
}

// terminalError 将执行器返回的错误归一为取消或超时
func terminalError(ctx context.Context, err error) error {
	if _, ok := types.AsExecutorError(err); ok {
		return err
	}
	if ctx.Err() == nil {
		return err
	}
	if errors.Is(context.Cause(ctx), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return fmt.Errorf("%w: %v", ErrCanceled, err)
}

// withTimeout 使用clock计时的超时，便于测试中推进时间
func withTimeout(parent context.Context, parentCancel context.CancelFunc, clock clockwork.Clock, d time.Duration) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancelCause(parent)
	timer := clock.AfterFunc(d, func() {
		cancel(context.DeadlineExceeded)
	})
	return ctx, func() {
		timer.Stop()
		cancel(context.Canceled)
		parentCancel()
	}
}
