package service

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"

	"osaccount/internal/audit"
	"osaccount/internal/model"
	"osaccount/internal/repository"

	"github.com/jonboulle/clockwork"
)

// serialBase 序列号中账号序号所占的十进制位
const serialBase = 100000000

// AuditRecorder 审计记录接口
type AuditRecorder interface {
	Record(ctx context.Context, event audit.EventType, localID, callerUID int, details map[string]interface{})
}

type nopRecorder struct{}

func (nopRecorder) Record(context.Context, audit.EventType, int, int, map[string]interface{}) {}

// ActivationListener 账号切换监听，在注册表的变更锁内同步调用
type ActivationListener interface {
	OnActivating(localID int)
	OnActivated(localID int)
}

// RemoveHook 账号删除前调用
type RemoveHook func(ctx context.Context, localID int)

// AccountRegistryConfig 账号注册表配置
type AccountRegistryConfig struct {
	MaxAccounts   int
	SerialPrefix  int64
	StartUserID   int
	StartUserName string
	MultiEnabled  bool
	PhotoMaxSize  int
}

// AccountRegistry 账号注册表
// 变更操作在opMu上串行，读操作只持有mu的读锁
type AccountRegistry struct {
	opMu sync.Mutex
	mu   sync.RWMutex

	accounts map[int]*model.OsAccount
	activeID int

	cfg         AccountRegistryConfig
	repo        repository.AccountRepository
	credentials repository.CredentialRepository
	photos      repository.PhotoRepository
	constraints *ConstraintPolicy
	listener    ActivationListener
	recorder    AuditRecorder
	clock       clockwork.Clock
	removeHooks []RemoveHook
}

// NewAccountRegistry 创建账号注册表，使用前需调用Bootstrap
func NewAccountRegistry(
	cfg AccountRegistryConfig,
	repo repository.AccountRepository,
	credentials repository.CredentialRepository,
	photos repository.PhotoRepository,
	constraints *ConstraintPolicy,
	clock clockwork.Clock,
) *AccountRegistry {
	if cfg.MaxAccounts <= 0 {
		cfg.MaxAccounts = 999
	}
	if cfg.StartUserID <= 0 {
		cfg.StartUserID = 100
	}
	if cfg.StartUserName == "" {
		cfg.StartUserName = "admin"
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &AccountRegistry{
		accounts:    make(map[int]*model.OsAccount),
		activeID:    -1,
		cfg:         cfg,
		repo:        repo,
		credentials: credentials,
		photos:      photos,
		constraints: constraints,
		recorder:    nopRecorder{},
		clock:       clock,
	}
}

// SetActivationListener 设置账号切换监听
func (r *AccountRegistry) SetActivationListener(l ActivationListener) {
	r.opMu.Lock()
	defer r.opMu.Unlock()
	r.listener = l
}

// SetRecorder 设置审计记录
func (r *AccountRegistry) SetRecorder(rec AuditRecorder) {
	if rec == nil {
		rec = nopRecorder{}
	}
	r.opMu.Lock()
	defer r.opMu.Unlock()
	r.recorder = rec
}

// OnRemove 注册账号删除钩子
func (r *AccountRegistry) OnRemove(hook RemoveHook) {
	r.opMu.Lock()
	defer r.opMu.Unlock()
	r.removeHooks = append(r.removeHooks, hook)
}

// serialOf 计算账号序列号，系统账号的序号为0
func (r *AccountRegistry) serialOf(localID int) int64 {
	seq := int64(0)
	if localID != model.SystemLocalID {
		seq = int64(localID-r.cfg.StartUserID) + 1
	}
	return r.cfg.SerialPrefix*serialBase + seq
}

// Bootstrap 加载账号并补齐系统账号与首个用户账号
func (r *AccountRegistry) Bootstrap(ctx context.Context) error {
	r.opMu.Lock()
	defer r.opMu.Unlock()

	stored, err := r.repo.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to load accounts: %w", err)
	}

	accounts := make(map[int]*model.OsAccount, len(stored))
	for i := range stored {
		acc := stored[i]
		if !acc.IsCreateCompleted {
			// 创建中途退出留下的记录
			log.Printf("[DEBUG] 清理未完成的账号: local_id=%d", acc.LocalID)
			if err := r.purge(ctx, acc.LocalID); err != nil {
				return err
			}
			continue
		}
		accounts[acc.LocalID] = &acc
	}

	if _, ok := accounts[model.SystemLocalID]; !ok {
		sys := &model.OsAccount{
			LocalID:           model.SystemLocalID,
			LocalName:         "system",
			Type:              model.OsAccountTypeAdmin,
			IsCreateCompleted: true,
			IsSystem:          true,
			CreateTime:        r.clock.Now(),
			SerialNumber:      r.serialOf(model.SystemLocalID),
		}
		if err := r.repo.Create(ctx, sys); err != nil {
			return fmt.Errorf("failed to create system account: %w", err)
		}
		accounts[sys.LocalID] = sys
	}

	userIDs := sortedUserIDs(accounts)
	if len(userIDs) == 0 {
		id, err := r.repo.NextLocalID(ctx, r.cfg.StartUserID)
		if err != nil {
			return fmt.Errorf("failed to allocate start account id: %w", err)
		}
		start := &model.OsAccount{
			LocalID:           id,
			LocalName:         r.cfg.StartUserName,
			Type:              model.OsAccountTypeAdmin,
			IsCreateCompleted: true,
			CreateTime:        r.clock.Now(),
			SerialNumber:      r.serialOf(id),
		}
		if err := r.repo.Create(ctx, start); err != nil {
			return fmt.Errorf("failed to create start account: %w", err)
		}
		accounts[id] = start
		userIDs = []int{id}
	}

	activeID := -1
	for _, id := range userIDs {
		if accounts[id].IsActived {
			if activeID == -1 {
				activeID = id
				continue
			}
			accounts[id].IsActived = false
			if err := r.repo.Update(ctx, accounts[id]); err != nil {
				return fmt.Errorf("failed to repair active flag: %w", err)
			}
		}
	}
	if activeID == -1 {
		activeID = userIDs[0]
		now := r.clock.Now()
		if err := r.repo.SwitchActive(ctx, activeID, activeID, now, nil); err != nil {
			return fmt.Errorf("failed to activate start account: %w", err)
		}
		accounts[activeID].IsActived = true
		accounts[activeID].LastLoginTime = &now
	}

	r.mu.Lock()
	r.accounts = accounts
	r.activeID = activeID
	r.mu.Unlock()

	log.Printf("[DEBUG] 账号注册表已加载: accounts=%d, active=%d", len(userIDs), activeID)
	return nil
}

func sortedUserIDs(accounts map[int]*model.OsAccount) []int {
	ids := make([]int, 0, len(accounts))
	for id, acc := range accounts {
		if !acc.IsSystem {
			ids = append(ids, id)
		}
	}
	sort.Ints(ids)
	return ids
}

// actingID 返回调用方所属账号，无法确定时返回前台账号
func (r *AccountRegistry) actingID(ctx context.Context) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if uid := callerUID(ctx); uid >= 0 {
		if acc, ok := r.accounts[uid/model.UIDPerAccount]; ok && !acc.IsSystem {
			return acc.LocalID
		}
	}
	return r.activeID
}

func (r *AccountRegistry) userCount() int {
	n := 0
	for _, acc := range r.accounts {
		if !acc.IsSystem {
			n++
		}
	}
	return n
}

// Create 创建账号，domain不为空时同时绑定域账号
func (r *AccountRegistry) Create(ctx context.Context, localName string, accountType model.OsAccountType, domain *model.DomainAccountInfo) (*model.OsAccount, error) {
	op := OpCreateOsAccount
	if domain != nil {
		op = OpCreateOsAccountForDomain
	}
	if !accountType.Valid() {
		return nil, fmt.Errorf("%w: unsupported account type %d", ErrInvalidParameters, accountType)
	}
	if localName == "" || len(localName) > model.MaxLocalNameLength {
		return nil, fmt.Errorf("%w: invalid local name", ErrInvalidParameters)
	}
	if domain != nil && (domain.Domain == "" || domain.AccountName == "") {
		return nil, fmt.Errorf("%w: invalid domain info", ErrInvalidParameters)
	}

	r.opMu.Lock()
	defer r.opMu.Unlock()

	if err := r.constraints.Guard(r.actingID(ctx), model.ConstraintAccountCreate, op); err != nil {
		return nil, err
	}

	r.mu.RLock()
	count := r.userCount()
	bound := domain != nil && r.findDomain(*domain) != nil
	r.mu.RUnlock()
	if count >= r.cfg.MaxAccounts {
		return nil, fmt.Errorf("%w: max %d", ErrAccountLimit, r.cfg.MaxAccounts)
	}
	if !r.cfg.MultiEnabled && count >= 1 {
		return nil, ErrMultiDisabled
	}
	if bound {
		return nil, ErrDomainBound
	}

	id, err := r.repo.NextLocalID(ctx, r.cfg.StartUserID)
	if err != nil {
		return nil, fmt.Errorf("failed to allocate local id: %w", err)
	}
	acc := &model.OsAccount{
		LocalID:      id,
		LocalName:    localName,
		Type:         accountType,
		CreateTime:   r.clock.Now(),
		SerialNumber: r.serialOf(id),
	}
	if domain != nil {
		acc.DomainInfo = *domain
	}
	if err := r.repo.Create(ctx, acc); err != nil {
		return nil, fmt.Errorf("failed to create account: %w", err)
	}

	if err := r.constraints.ApplyDefaults(ctx, id, accountType); err != nil {
		_ = r.purge(ctx, id)
		return nil, err
	}
	acc.IsCreateCompleted = true
	if err := r.repo.Update(ctx, acc); err != nil {
		_ = r.purge(ctx, id)
		return nil, fmt.Errorf("failed to complete account: %w", err)
	}

	r.mu.Lock()
	r.accounts[id] = acc
	r.mu.Unlock()

	details := map[string]interface{}{"local_name": localName, "type": accountType.String()}
	if domain != nil {
		details["domain"] = domain.Domain
	}
	r.recorder.Record(ctx, audit.EventAccountCreate, id, callerUID(ctx), details)
	log.Printf("[DEBUG] 创建账号: local_id=%d, type=%s", id, accountType)
	return r.view(acc, false), nil
}

// purge 删除账号及其关联数据
func (r *AccountRegistry) purge(ctx context.Context, localID int) error {
	if err := r.constraints.Clear(ctx, localID); err != nil {
		return err
	}
	if _, err := r.credentials.DeleteByLocalID(ctx, localID); err != nil {
		return fmt.Errorf("failed to delete credentials: %w", err)
	}
	if err := r.photos.Delete(ctx, localID); err != nil {
		return fmt.Errorf("failed to delete photo: %w", err)
	}
	if err := r.repo.Delete(ctx, localID); err != nil {
		return fmt.Errorf("failed to delete account: %w", err)
	}
	return nil
}

// Remove 删除账号
func (r *AccountRegistry) Remove(ctx context.Context, localID int) error {
	r.opMu.Lock()
	defer r.opMu.Unlock()

	r.mu.RLock()
	acc, ok := r.accounts[localID]
	count := r.userCount()
	activeID := r.activeID
	r.mu.RUnlock()

	if !ok {
		return fmt.Errorf("%w: %d", ErrAccountNotFound, localID)
	}
	if acc.IsSystem {
		return ErrSystemAccount
	}
	if err := r.constraints.Guard(r.actingID(ctx), model.ConstraintAccountRemove, OpRemoveOsAccount); err != nil {
		return err
	}
	if count <= 1 {
		return ErrLastAccount
	}

	// 持久化删除失败时会话与前台账号保持不变
	if err := r.purge(ctx, localID); err != nil {
		return err
	}

	r.mu.Lock()
	delete(r.accounts, localID)
	r.mu.Unlock()

	for _, hook := range r.removeHooks {
		hook(ctx, localID)
	}
	r.recorder.Record(ctx, audit.EventAccountRemove, localID, callerUID(ctx), nil)
	log.Printf("[DEBUG] 删除账号: local_id=%d", localID)

	if activeID == localID {
		to := r.fallbackID(localID)
		if err := r.switchActive(ctx, localID, to); err != nil {
			// 账号已删除，内存中照常切换，持久化的激活标记由下次Bootstrap修复
			log.Printf("[ERROR] 删除前台账号后切换失败: local_id=%d, to=%d, err=%v", localID, to, err)
			r.mu.Lock()
			r.accounts[to].IsActived = true
			r.activeID = to
			r.mu.Unlock()
		}
	}
	return nil
}

// fallbackID 删除前台账号后接管的账号：首个用户账号，不存在时为ID最小的账号
func (r *AccountRegistry) fallbackID(removing int) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if _, ok := r.accounts[r.cfg.StartUserID]; ok && r.cfg.StartUserID != removing {
		return r.cfg.StartUserID
	}
	for _, id := range sortedUserIDs(r.accounts) {
		if id != removing {
			return id
		}
	}
	return -1
}

// Activate 切换前台账号，目标已是前台账号时直接成功
func (r *AccountRegistry) Activate(ctx context.Context, localID int) error {
	r.opMu.Lock()
	defer r.opMu.Unlock()

	r.mu.RLock()
	acc, ok := r.accounts[localID]
	activeID := r.activeID
	r.mu.RUnlock()

	if !ok {
		return fmt.Errorf("%w: %d", ErrAccountNotFound, localID)
	}
	if acc.IsSystem {
		return ErrSystemAccount
	}
	if err := r.constraints.Guard(localID, model.ConstraintAccountStart, OpActivateOsAccount); err != nil {
		return err
	}
	if activeID == localID {
		return nil
	}
	return r.switchActive(ctx, activeID, localID)
}

// switchActive 持有opMu时调用
func (r *AccountRegistry) switchActive(ctx context.Context, from, to int) error {
	// 写入成功后才发布activating
	var beforeCommit func()
	if r.listener != nil {
		beforeCommit = func() { r.listener.OnActivating(to) }
	}

	now := r.clock.Now()
	if err := r.repo.SwitchActive(ctx, from, to, now, beforeCommit); err != nil {
		return fmt.Errorf("failed to switch active account: %w", err)
	}

	r.mu.Lock()
	if prev, ok := r.accounts[from]; ok {
		prev.IsActived = false
	}
	next := r.accounts[to]
	next.IsActived = true
	next.LastLoginTime = &now
	r.activeID = to
	r.mu.Unlock()

	if r.listener != nil {
		r.listener.OnActivated(to)
	}
	r.recorder.Record(ctx, audit.EventAccountActivate, to, callerUID(ctx), map[string]interface{}{"from": from})
	log.Printf("[DEBUG] 切换前台账号: %d -> %d", from, to)
	return nil
}

// view 返回账号副本并补齐约束，withPhoto时读取头像
func (r *AccountRegistry) view(acc *model.OsAccount, withPhoto bool) *model.OsAccount {
	c := acc.Clone()
	c.Constraints = r.constraints.GetAllConstraints(acc.LocalID)
	if withPhoto {
		photo, err := r.photos.Get(context.Background(), acc.LocalID)
		if err != nil {
			log.Printf("[ERROR] 读取头像失败: local_id=%d, err=%v", acc.LocalID, err)
		}
		c.Photo = photo
	}
	return c
}

// Query 查询账号
func (r *AccountRegistry) Query(ctx context.Context, localID int) (*model.OsAccount, error) {
	r.mu.RLock()
	acc, ok := r.accounts[localID]
	var c *model.OsAccount
	if ok {
		c = acc.Clone()
	}
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrAccountNotFound, localID)
	}
	return r.view(c, true), nil
}

// QueryCurrent 查询前台账号
func (r *AccountRegistry) QueryCurrent(ctx context.Context) (*model.OsAccount, error) {
	return r.Query(ctx, r.ActiveID())
}

// QueryAll 按ID升序返回全部用户账号，不含系统账号
func (r *AccountRegistry) QueryAll(ctx context.Context) []*model.OsAccount {
	r.mu.RLock()
	ids := sortedUserIDs(r.accounts)
	snapshot := make([]*model.OsAccount, 0, len(ids))
	for _, id := range ids {
		snapshot = append(snapshot, r.accounts[id].Clone())
	}
	r.mu.RUnlock()

	result := make([]*model.OsAccount, 0, len(snapshot))
	for _, acc := range snapshot {
		result = append(result, r.view(acc, false))
	}
	return result
}

// Count 返回用户账号数量
func (r *AccountRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.userCount()
}

// Exists 判断账号是否存在
func (r *AccountRegistry) Exists(localID int) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.accounts[localID]
	return ok
}

// ActiveID 返回前台账号ID
func (r *AccountRegistry) ActiveID() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.activeID
}

// QueryActivatedIDs 返回已激活的账号ID
func (r *AccountRegistry) QueryActivatedIDs() []int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.activeID < 0 {
		return []int{}
	}
	return []int{r.activeID}
}

// MaxAccounts 最大账号数
func (r *AccountRegistry) MaxAccounts() int {
	return r.cfg.MaxAccounts
}

// MultiEnabled 是否支持多账号
func (r *AccountRegistry) MultiEnabled() bool {
	return r.cfg.MultiEnabled
}

// IDFromUID 由UID计算账号ID，不校验账号是否存在
func (r *AccountRegistry) IDFromUID(uid int) (int, error) {
	if uid < 0 {
		return 0, fmt.Errorf("%w: negative uid", ErrInvalidParameters)
	}
	return uid / model.UIDPerAccount, nil
}

// findDomain 调用方需持有mu
func (r *AccountRegistry) findDomain(domain model.DomainAccountInfo) *model.OsAccount {
	for _, acc := range r.accounts {
		if acc.DomainInfo.Domain == domain.Domain && acc.DomainInfo.AccountName == domain.AccountName {
			return acc
		}
	}
	return nil
}

// IDFromDomain 查询绑定域账号的账号ID
func (r *AccountRegistry) IDFromDomain(domain model.DomainAccountInfo) (int, error) {
	if domain.Domain == "" || domain.AccountName == "" {
		return 0, fmt.Errorf("%w: invalid domain info", ErrInvalidParameters)
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if acc := r.findDomain(domain); acc != nil {
		return acc.LocalID, nil
	}
	return 0, fmt.Errorf("%w: domain %s/%s", ErrAccountNotFound, domain.Domain, domain.AccountName)
}

// SerialByID 查询账号序列号
func (r *AccountRegistry) SerialByID(localID int) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	acc, ok := r.accounts[localID]
	if !ok {
		return 0, fmt.Errorf("%w: %d", ErrAccountNotFound, localID)
	}
	return acc.SerialNumber, nil
}

// IDBySerial 由序列号查询账号ID
func (r *AccountRegistry) IDBySerial(serial int64) (int, error) {
	if serial/serialBase != r.cfg.SerialPrefix {
		return 0, fmt.Errorf("%w: serial %d", ErrAccountNotFound, serial)
	}
	localID := model.SystemLocalID
	if seq := serial % serialBase; seq != 0 {
		localID = int(seq) + r.cfg.StartUserID - 1
	}
	if !r.Exists(localID) {
		return 0, fmt.Errorf("%w: serial %d", ErrAccountNotFound, serial)
	}
	return localID, nil
}

// userAccount 返回可修改的用户账号，调用方需持有opMu
func (r *AccountRegistry) userAccount(localID int) (*model.OsAccount, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	acc, ok := r.accounts[localID]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrAccountNotFound, localID)
	}
	if acc.IsSystem {
		return nil, ErrSystemAccount
	}
	return acc.Clone(), nil
}

// commit 将更新后的账号写入仓储与缓存，调用方需持有opMu
func (r *AccountRegistry) commit(ctx context.Context, acc *model.OsAccount) error {
	if err := r.repo.Update(ctx, acc); err != nil {
		return fmt.Errorf("failed to update account: %w", err)
	}
	r.mu.Lock()
	r.accounts[acc.LocalID] = acc
	r.mu.Unlock()
	return nil
}

// SetName 修改账号名称
func (r *AccountRegistry) SetName(ctx context.Context, localID int, localName string) error {
	if localName == "" || len(localName) > model.MaxLocalNameLength {
		return fmt.Errorf("%w: invalid local name", ErrInvalidParameters)
	}
	r.opMu.Lock()
	defer r.opMu.Unlock()

	acc, err := r.userAccount(localID)
	if err != nil {
		return err
	}
	old := acc.LocalName
	acc.LocalName = localName
	if err := r.commit(ctx, acc); err != nil {
		return err
	}
	r.recorder.Record(ctx, audit.EventAccountRename, localID, callerUID(ctx),
		map[string]interface{}{"from": old, "to": localName})
	return nil
}

// SetVerified 设置账号的已验证标记
func (r *AccountRegistry) SetVerified(ctx context.Context, localID int, verified bool) error {
	r.opMu.Lock()
	defer r.opMu.Unlock()

	acc, err := r.userAccount(localID)
	if err != nil {
		return err
	}
	if acc.IsVerified == verified {
		return nil
	}
	acc.IsVerified = verified
	return r.commit(ctx, acc)
}

// validatePhoto 头像必须是base64编码的data URL
func (r *AccountRegistry) validatePhoto(photo string) error {
	if r.cfg.PhotoMaxSize > 0 && len(photo) > r.cfg.PhotoMaxSize {
		return fmt.Errorf("%w: photo exceeds %d bytes", ErrInvalidParameters, r.cfg.PhotoMaxSize)
	}
	if !strings.HasPrefix(photo, "data:image/") {
		return fmt.Errorf("%w: photo must be a data:image URL", ErrInvalidParameters)
	}
	idx := strings.Index(photo, ";base64,")
	if idx < 0 || idx+len(";base64,") == len(photo) {
		return fmt.Errorf("%w: photo must be base64 encoded", ErrInvalidParameters)
	}
	return nil
}

// SetPhoto 设置账号头像
func (r *AccountRegistry) SetPhoto(ctx context.Context, localID int, photo string) error {
	if err := r.validatePhoto(photo); err != nil {
		return err
	}
	r.opMu.Lock()
	defer r.opMu.Unlock()

	if _, err := r.userAccount(localID); err != nil {
		return err
	}
	if err := r.constraints.Guard(localID, model.ConstraintAccountSetIcon, OpSetOsAccountProfilePhoto); err != nil {
		return err
	}
	if err := r.photos.Set(ctx, localID, photo); err != nil {
		return fmt.Errorf("failed to save photo: %w", err)
	}
	r.recorder.Record(ctx, audit.EventAccountPhoto, localID, callerUID(ctx),
		map[string]interface{}{"size": len(photo)})
	return nil
}

// GetPhoto 读取账号头像，未设置时为空字符串
func (r *AccountRegistry) GetPhoto(ctx context.Context, localID int) (string, error) {
	if !r.Exists(localID) {
		return "", fmt.Errorf("%w: %d", ErrAccountNotFound, localID)
	}
	photo, err := r.photos.Get(ctx, localID)
	if err != nil {
		return "", fmt.Errorf("failed to load photo: %w", err)
	}
	return photo, nil
}

// SetConstraints 设置账号约束
func (r *AccountRegistry) SetConstraints(ctx context.Context, localID int, names []string, enable bool) error {
	r.opMu.Lock()
	defer r.opMu.Unlock()

	if !r.Exists(localID) {
		return fmt.Errorf("%w: %d", ErrAccountNotFound, localID)
	}
	if err := r.constraints.SetConstraints(ctx, localID, names, enable); err != nil {
		return err
	}
	r.recorder.Record(ctx, audit.EventConstraintsSet, localID, callerUID(ctx),
		map[string]interface{}{"names": names, "enable": enable})
	return nil
}
