package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"osaccount/internal/model"
	"osaccount/internal/repository"
)

func TestBootstrapCreatesSystemAndStartAccount(t *testing.T) {
	env := newTestEnv(t)

	sys := mustAwait(t, env.manager.QueryOsAccountByID(env.ctx, model.SystemLocalID))
	if !sys.IsSystem || len(sys.Constraints) != 0 {
		t.Fatalf("system account = %+v", sys)
	}
	if n := mustAwait(t, env.manager.GetCreatedOsAccountsCount(env.ctx)); n != 1 {
		t.Fatalf("count = %d, want 1", n)
	}
	current := mustAwait(t, env.manager.QueryCurrentOsAccount(env.ctx))
	if current.LocalID != 100 || current.LocalName != "admin" || current.Type != model.OsAccountTypeAdmin || !current.IsActived {
		t.Fatalf("current = %+v", current)
	}
	all := mustAwait(t, env.manager.QueryAllCreatedOsAccounts(env.ctx))
	if len(all) != 1 || all[0].LocalID != 100 {
		t.Fatalf("all = %+v", all)
	}
}

func TestBootstrapReloadKeepsState(t *testing.T) {
	env := newTestEnv(t)
	acc := mustAwait(t, env.manager.CreateOsAccount(env.ctx, "bob", model.OsAccountTypeNormal))
	mustAwait(t, env.manager.ActivateOsAccount(env.ctx, acc.LocalID))

	reloaded := NewAccountRegistry(defaultEnvOptions().accounts,
		repository.NewAccountRepository(env.db),
		env.creds,
		repository.NewPhotoRepository(env.db),
		env.policy,
		env.clock,
	)
	if err := reloaded.Bootstrap(context.Background()); err != nil {
		t.Fatalf("Bootstrap() error = %v", err)
	}
	if reloaded.Count() != 2 || reloaded.ActiveID() != acc.LocalID {
		t.Fatalf("count = %d, active = %d", reloaded.Count(), reloaded.ActiveID())
	}
}

func TestCreatedAccountIsCompleteAndInactive(t *testing.T) {
	env := newTestEnv(t)

	created := mustAwait(t, env.manager.CreateOsAccount(env.ctx, "aaa", model.OsAccountTypeNormal))
	got := mustAwait(t, env.manager.QueryOsAccountByID(env.ctx, created.LocalID))
	if !got.IsCreateCompleted || got.IsActived {
		t.Fatalf("account = %+v", got)
	}
	if got.Constraints == nil || len(got.Constraints) != 0 {
		t.Fatalf("constraints = %#v, want empty", got.Constraints)
	}
	if got.LocalID != 101 {
		t.Fatalf("local id = %d, want 101", got.LocalID)
	}
}

func TestCreateValidation(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name        string
		localName   string
		accountType model.OsAccountType
	}{
		{"unsupported type", "x", model.OsAccountType(7)},
		{"empty name", "", model.OsAccountTypeNormal},
		{"name too long", strings.Repeat("n", model.MaxLocalNameLength+1), model.OsAccountTypeNormal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := await(t, env.manager.CreateOsAccount(env.ctx, tt.localName, tt.accountType))
			wantCode(t, err, model.ResultInvalidParameters)
			wantKitCode(t, err, OpCreateOsAccount.Code)
		})
	}
	if n := env.registry.Count(); n != 1 {
		t.Fatalf("count = %d after rejected creates", n)
	}
}

func TestCreateRespectsAccountLimit(t *testing.T) {
	opts := defaultEnvOptions()
	opts.accounts.MaxAccounts = 2
	env := newTestEnvWith(t, opts)

	mustAwait(t, env.manager.CreateOsAccount(env.ctx, "second", model.OsAccountTypeNormal))
	_, err := await(t, env.manager.CreateOsAccount(env.ctx, "third", model.OsAccountTypeNormal))
	if !errors.Is(err, ErrAccountLimit) {
		t.Fatalf("err = %v, want ErrAccountLimit", err)
	}
	if n := mustAwait(t, env.manager.QueryMaxOsAccountNumber(env.ctx)); n != 2 {
		t.Fatalf("max = %d", n)
	}
}

func TestCreateWithMultiDisabled(t *testing.T) {
	opts := defaultEnvOptions()
	opts.accounts.MultiEnabled = false
	env := newTestEnvWith(t, opts)

	if mustAwait(t, env.manager.IsMultiOsAccountEnable(env.ctx)) {
		t.Fatal("multi should be disabled")
	}
	_, err := await(t, env.manager.CreateOsAccount(env.ctx, "second", model.OsAccountTypeNormal))
	if !errors.Is(err, ErrMultiDisabled) {
		t.Fatalf("err = %v, want ErrMultiDisabled", err)
	}
}

func TestConcurrentCreatesAssignDistinctIDs(t *testing.T) {
	env := newTestEnv(t)

	var wg sync.WaitGroup
	ids := make(chan int, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			acc, err := await(t, env.manager.CreateOsAccount(env.ctx, "user", model.OsAccountTypeNormal))
			if err != nil {
				t.Errorf("create: %v", err)
				return
			}
			ids <- acc.LocalID
		}()
	}
	wg.Wait()
	close(ids)

	seen := make(map[int]bool)
	for id := range ids {
		if seen[id] {
			t.Fatalf("duplicate id %d", id)
		}
		seen[id] = true
	}
	if len(seen) != 10 {
		t.Fatalf("created %d accounts", len(seen))
	}
}

func TestRemovedIDsAreNotReused(t *testing.T) {
	env := newTestEnv(t)

	first := mustAwait(t, env.manager.CreateOsAccount(env.ctx, "first", model.OsAccountTypeNormal))
	mustAwait(t, env.manager.RemoveOsAccount(env.ctx, first.LocalID))
	second := mustAwait(t, env.manager.CreateOsAccount(env.ctx, "second", model.OsAccountTypeNormal))
	if second.LocalID == first.LocalID {
		t.Fatalf("local id %d reused", first.LocalID)
	}
}

func TestSerialNumberRoundTrip(t *testing.T) {
	env := newTestEnv(t)

	serial := mustAwait(t, env.manager.GetSerialNumberByLocalID(env.ctx, 100))
	if serial%serialBase != 1 {
		t.Fatalf("serial = %d, want suffix 00000001", serial)
	}
	if serial/serialBase != 20220101 {
		t.Fatalf("serial prefix = %d", serial/serialBase)
	}
	if id := mustAwait(t, env.manager.GetLocalIDBySerialNumber(env.ctx, serial)); id != 100 {
		t.Fatalf("id = %d, want 100", id)
	}

	acc := mustAwait(t, env.manager.CreateOsAccount(env.ctx, "x", model.OsAccountTypeNormal))
	serial = mustAwait(t, env.manager.GetSerialNumberByLocalID(env.ctx, acc.LocalID))
	if id := mustAwait(t, env.manager.GetLocalIDBySerialNumber(env.ctx, serial)); id != acc.LocalID {
		t.Fatalf("id = %d, want %d", id, acc.LocalID)
	}

	_, err := await(t, env.manager.GetLocalIDBySerialNumber(env.ctx, 12345))
	wantCode(t, err, model.ResultNotEnrolled)
}

func TestActivateSequenceKeepsSingleActive(t *testing.T) {
	env := newTestEnv(t)
	a := mustAwait(t, env.manager.CreateOsAccount(env.ctx, "a", model.OsAccountTypeNormal))
	b := mustAwait(t, env.manager.CreateOsAccount(env.ctx, "b", model.OsAccountTypeNormal))

	mustAwait(t, env.manager.ActivateOsAccount(env.ctx, a.LocalID))
	mustAwait(t, env.manager.ActivateOsAccount(env.ctx, b.LocalID))

	ids := mustAwait(t, env.manager.QueryActivatedOsAccountIDs(env.ctx))
	if len(ids) != 1 || ids[0] != b.LocalID {
		t.Fatalf("activated = %v, want [%d]", ids, b.LocalID)
	}
	if mustAwait(t, env.manager.IsOsAccountActived(env.ctx, a.LocalID)) {
		t.Fatal("a should no longer be active")
	}
	got := mustAwait(t, env.manager.QueryOsAccountByID(env.ctx, b.LocalID))
	if got.LastLoginTime == nil || !got.LastLoginTime.Equal(env.clock.Now()) {
		t.Fatalf("last login = %v", got.LastLoginTime)
	}

	// 激活已激活的账号直接成功
	mustAwait(t, env.manager.ActivateOsAccount(env.ctx, b.LocalID))
}

func TestActivateRejections(t *testing.T) {
	env := newTestEnv(t)
	acc := mustAwait(t, env.manager.CreateOsAccount(env.ctx, "locked", model.OsAccountTypeNormal))

	_, err := await(t, env.manager.ActivateOsAccount(env.ctx, 4242))
	wantCode(t, err, model.ResultNotEnrolled)

	_, err = await(t, env.manager.ActivateOsAccount(env.ctx, model.SystemLocalID))
	wantCode(t, err, model.ResultInvalidParameters)

	mustAwait(t, env.manager.SetOsAccountConstraints(env.ctx, acc.LocalID, []string{model.ConstraintAccountStart}, true))
	_, err = await(t, env.manager.ActivateOsAccount(env.ctx, acc.LocalID))
	wantKitCode(t, err, OpActivateOsAccount.Code)
	if env.registry.ActiveID() != 100 {
		t.Fatalf("active = %d after blocked activation", env.registry.ActiveID())
	}
}

func TestCreateActivateRemoveScenario(t *testing.T) {
	env := newTestEnv(t)

	acc := mustAwait(t, env.manager.CreateOsAccount(env.ctx, "aaa", model.OsAccountTypeNormal))
	mustAwait(t, env.manager.ActivateOsAccount(env.ctx, acc.LocalID))
	if !mustAwait(t, env.manager.IsOsAccountActived(env.ctx, acc.LocalID)) {
		t.Fatal("account should be active")
	}

	mustAwait(t, env.manager.RemoveOsAccount(env.ctx, acc.LocalID))
	_, err := await(t, env.manager.QueryOsAccountByID(env.ctx, acc.LocalID))
	wantCode(t, err, model.ResultNotEnrolled)

	// 删除前台账号后首个用户账号接管
	if ids := env.registry.QueryActivatedIDs(); len(ids) != 1 || ids[0] != 100 {
		t.Fatalf("activated = %v, want [100]", ids)
	}

	// 删除不是幂等的
	_, err = await(t, env.manager.RemoveOsAccount(env.ctx, acc.LocalID))
	wantCode(t, err, model.ResultNotEnrolled)
}

func TestRemoveRejections(t *testing.T) {
	env := newTestEnv(t)

	_, err := await(t, env.manager.RemoveOsAccount(env.ctx, model.SystemLocalID))
	if !errors.Is(err, ErrSystemAccount) {
		t.Fatalf("err = %v, want ErrSystemAccount", err)
	}
	_, err = await(t, env.manager.RemoveOsAccount(env.ctx, 100))
	if !errors.Is(err, ErrLastAccount) {
		t.Fatalf("err = %v, want ErrLastAccount", err)
	}

	acc := mustAwait(t, env.manager.CreateOsAccount(env.ctx, "x", model.OsAccountTypeNormal))
	mustAwait(t, env.manager.SetOsAccountConstraints(env.ctx, 100, []string{model.ConstraintAccountRemove}, true))
	_, err = await(t, env.manager.RemoveOsAccount(env.ctx, acc.LocalID))
	wantKitCode(t, err, OpRemoveOsAccount.Code)
}

func TestRemoveCascades(t *testing.T) {
	env := newTestEnv(t)
	acc := mustAwait(t, env.manager.CreateOsAccount(env.ctx, "x", model.OsAccountTypeNormal))
	mustAwait(t, env.manager.SetOsAccountConstraints(env.ctx, acc.LocalID, []string{"constraint.wifi"}, true))
	mustAwait(t, env.manager.SetOsAccountProfilePhoto(env.ctx, acc.LocalID, "data:image/png;base64,AAAA"))
	env.enrollPIN(t, acc.LocalID)

	mustAwait(t, env.manager.RemoveOsAccount(env.ctx, acc.LocalID))

	if env.policy.IsEnabled(acc.LocalID, "constraint.wifi") {
		t.Fatal("constraints not removed")
	}
	creds, err := env.creds.ListByLocalID(context.Background(), acc.LocalID, 0)
	if err != nil || len(creds) != 0 {
		t.Fatalf("credentials = %v, %v", creds, err)
	}
	if env.identity.Challenge(acc.LocalID) != 0 {
		t.Fatal("session not closed")
	}
	photo, err := repository.NewPhotoRepository(env.db).Get(context.Background(), acc.LocalID)
	if err != nil || photo != "" {
		t.Fatalf("photo = %q, %v", photo, err)
	}
}

func TestFailedRemoveKeepsSession(t *testing.T) {
	env := newTestEnv(t)
	acc := mustAwait(t, env.manager.CreateOsAccount(env.ctx, "x", model.OsAccountTypeNormal))
	challenge := mustAwait(t, env.identity.OpenSession(env.ctx, acc.LocalID))

	sqlDB, err := env.db.DB()
	if err != nil {
		t.Fatal(err)
	}
	sqlDB.Close()

	if _, err := await(t, env.manager.RemoveOsAccount(env.ctx, acc.LocalID)); err == nil {
		t.Fatal("remove should fail with the database closed")
	}
	if env.identity.Challenge(acc.LocalID) != challenge {
		t.Fatal("session closed by a failed remove")
	}
	if !env.registry.Exists(acc.LocalID) {
		t.Fatal("account dropped by a failed remove")
	}
	if env.registry.ActiveID() != 100 {
		t.Fatalf("active = %d", env.registry.ActiveID())
	}
}

func TestRemoveActiveSwitchesAfterPurge(t *testing.T) {
	env := newTestEnv(t)
	acc := mustAwait(t, env.manager.CreateOsAccount(env.ctx, "x", model.OsAccountTypeNormal))
	mustAwait(t, env.manager.ActivateOsAccount(env.ctx, acc.LocalID))

	rec := newEventRecorder()
	mustAwait(t, env.manager.On(env.ctx, model.EventActivate, "watcher", rec.listen))
	mustAwait(t, env.manager.RemoveOsAccount(env.ctx, acc.LocalID))

	events := rec.wait(t, 1)
	if events[0].LocalID != 100 {
		t.Fatalf("events = %+v", events)
	}
	if !mustAwait(t, env.manager.IsOsAccountActived(env.ctx, 100)) {
		t.Fatal("start account not active after removal")
	}
}

func TestSetConstraintsRacingRemove(t *testing.T) {
	env := newTestEnv(t)
	for i := 0; i < 10; i++ {
		acc := mustAwait(t, env.manager.CreateOsAccount(env.ctx, "x", model.OsAccountTypeNormal))

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			env.manager.SetOsAccountConstraints(env.ctx, acc.LocalID, []string{"constraint.wifi"}, true).Await(context.Background())
		}()
		go func() {
			defer wg.Done()
			env.manager.RemoveOsAccount(env.ctx, acc.LocalID).Await(context.Background())
		}()
		wg.Wait()

		// 删除后不能残留约束
		if !env.registry.Exists(acc.LocalID) && env.policy.IsEnabled(acc.LocalID, "constraint.wifi") {
			t.Fatalf("constraints left on removed account %d", acc.LocalID)
		}
	}
}

func TestPermissionDeniedTouchesNothing(t *testing.T) {
	env := newTestEnv(t)
	ctx := WithCaller(context.Background(), NewCaller(500))

	_, err := await(t, env.manager.CreateOsAccount(ctx, "x", model.OsAccountTypeNormal))
	wantKitCode(t, err, OpCreateOsAccount.Code)
	if !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("err = %v", err)
	}
	if env.registry.Count() != 1 {
		t.Fatal("account created despite denial")
	}

	_, err = await(t, env.manager.SetOsAccountConstraints(ctx, 100, []string{"c"}, true))
	wantKitCode(t, err, OpSetOsAccountConstraints.Code)

	// 只拥有跨账号交互权限也可以查询激活状态
	across := WithCaller(context.Background(), NewCaller(500, model.PermissionInteractAcrossLocalAccounts))
	if !mustAwait(t, env.manager.IsOsAccountActived(across, 100)) {
		t.Fatal("100 should be active")
	}
	// 无需权限的操作
	if ids := mustAwait(t, env.manager.QueryActivatedOsAccountIDs(ctx)); len(ids) != 1 {
		t.Fatalf("activated = %v", ids)
	}
}

func TestDomainAccounts(t *testing.T) {
	env := newTestEnv(t)
	domain := model.DomainAccountInfo{Domain: "example.com", AccountName: "alice"}

	acc := mustAwait(t, env.manager.CreateOsAccountForDomain(env.ctx, model.OsAccountTypeNormal, domain))
	if acc.LocalName != "alice" || acc.DomainInfo != domain {
		t.Fatalf("account = %+v", acc)
	}
	if id := mustAwait(t, env.manager.GetOsAccountLocalIDFromDomain(env.ctx, domain)); id != acc.LocalID {
		t.Fatalf("id = %d, want %d", id, acc.LocalID)
	}

	_, err := await(t, env.manager.CreateOsAccountForDomain(env.ctx, model.OsAccountTypeNormal, domain))
	if !errors.Is(err, ErrDomainBound) {
		t.Fatalf("err = %v, want ErrDomainBound", err)
	}
	_, err = await(t, env.manager.GetOsAccountLocalIDFromDomain(env.ctx, model.DomainAccountInfo{Domain: "example.com", AccountName: "bob"}))
	wantCode(t, err, model.ResultNotEnrolled)
}

func TestLocalIDFromUIDAndType(t *testing.T) {
	env := newTestEnv(t)

	if id := mustAwait(t, env.manager.GetOsAccountLocalIDFromUID(env.ctx, 20000000+12)); id != 100 {
		t.Fatalf("id = %d, want 100", id)
	}
	_, err := await(t, env.manager.GetOsAccountLocalIDFromUID(env.ctx, -1))
	wantCode(t, err, model.ResultInvalidParameters)

	guest := mustAwait(t, env.manager.CreateOsAccount(env.ctx, "guest", model.OsAccountTypeGuest))
	ctx := WithCaller(context.Background(), NewCaller(guest.LocalID*model.UIDPerAccount))
	if typ := mustAwait(t, env.manager.GetOsAccountType(ctx)); typ != model.OsAccountTypeGuest {
		t.Fatalf("type = %s, want GUEST", typ)
	}
	if typ := mustAwait(t, env.manager.GetOsAccountType(context.Background())); typ != model.OsAccountTypeAdmin {
		t.Fatalf("foreground type = %s, want ADMIN", typ)
	}

	if id := mustAwait(t, env.manager.GetOsAccountLocalIDFromProcess(ctx)); id != guest.LocalID {
		t.Fatalf("process id = %d, want %d", id, guest.LocalID)
	}
	// 未知账号的调用方落到前台账号
	stranger := WithCaller(context.Background(), NewCaller(4242*model.UIDPerAccount))
	if id := mustAwait(t, env.manager.GetOsAccountLocalIDFromProcess(stranger)); id != 100 {
		t.Fatalf("process id = %d, want 100", id)
	}
	if mustAwait(t, env.manager.IsTestOsAccount(ctx)) {
		t.Fatal("no account is a test account")
	}
}

func TestSetNameAndVerified(t *testing.T) {
	env := newTestEnv(t)

	mustAwait(t, env.manager.SetOsAccountName(env.ctx, 100, "owner"))
	if got := mustAwait(t, env.manager.QueryOsAccountByID(env.ctx, 100)); got.LocalName != "owner" {
		t.Fatalf("name = %q", got.LocalName)
	}
	_, err := await(t, env.manager.SetOsAccountName(env.ctx, 100, ""))
	wantKitCode(t, err, OpSetOsAccountName.Code)

	if mustAwait(t, env.manager.IsOsAccountVerified(env.ctx, 100)) {
		t.Fatal("new account should not be verified")
	}
}

func TestProfilePhoto(t *testing.T) {
	env := newTestEnv(t)
	const photo = "data:image/png;base64,iVBORw0KGgo="

	if got := mustAwait(t, env.manager.GetOsAccountProfilePhoto(env.ctx, 100)); got != "" {
		t.Fatalf("photo = %q, want empty", got)
	}
	mustAwait(t, env.manager.SetOsAccountProfilePhoto(env.ctx, 100, photo))
	if got := mustAwait(t, env.manager.GetOsAccountProfilePhoto(env.ctx, 100)); got != photo {
		t.Fatalf("photo = %q", got)
	}
	if got := mustAwait(t, env.manager.QueryOsAccountByID(env.ctx, 100)); got.Photo != photo {
		t.Fatalf("query photo = %q", got.Photo)
	}

	for _, bad := range []string{"not a photo", "data:image/png;base64,", "data:text/plain;base64,AAAA", "data:image/png;base64," + strings.Repeat("A", 1<<16)} {
		_, err := await(t, env.manager.SetOsAccountProfilePhoto(env.ctx, 100, bad))
		wantCode(t, err, model.ResultInvalidParameters)
	}

	mustAwait(t, env.manager.SetOsAccountConstraints(env.ctx, 100, []string{model.ConstraintAccountSetIcon}, true))
	_, err := await(t, env.manager.SetOsAccountProfilePhoto(env.ctx, 100, photo))
	wantKitCode(t, err, OpSetOsAccountProfilePhoto.Code)
}
