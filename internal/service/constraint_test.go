package service

import (
	"context"
	"errors"
	"testing"

	"osaccount/internal/model"
	"osaccount/internal/repository"
)

func TestSetConstraintsRoundTrip(t *testing.T) {
	env := newTestEnv(t)

	mustAwait(t, env.manager.SetOsAccountConstraints(env.ctx, 100, []string{"c"}, true))
	if !mustAwait(t, env.manager.IsOsAccountConstraintEnable(env.ctx, 100, "c")) {
		t.Fatal("constraint c should be enabled")
	}
	mustAwait(t, env.manager.SetOsAccountConstraints(env.ctx, 100, []string{"c"}, false))
	if mustAwait(t, env.manager.IsOsAccountConstraintEnable(env.ctx, 100, "c")) {
		t.Fatal("constraint c should be disabled")
	}

	// 禁用未启用的约束不报错
	mustAwait(t, env.manager.SetOsAccountConstraints(env.ctx, 100, []string{"never.set"}, false))
}

func TestSetConstraintsValidation(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name  string
		names []string
	}{
		{"empty list", nil},
		{"empty name", []string{"constraint.wifi", ""}},
		{"blank name", []string{"  "}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := await(t, env.manager.SetOsAccountConstraints(env.ctx, 100, tt.names, true))
			wantCode(t, err, model.ResultInvalidParameters)
			wantKitCode(t, err, OpSetOsAccountConstraints.Code)
		})
	}

	_, err := await(t, env.manager.SetOsAccountConstraints(env.ctx, 4242, []string{"c"}, true))
	wantCode(t, err, model.ResultNotEnrolled)
}

func TestGetAllConstraintsSortedAndDeduplicated(t *testing.T) {
	env := newTestEnv(t)

	mustAwait(t, env.manager.SetOsAccountConstraints(env.ctx, 100,
		[]string{"constraint.wifi", "constraint.bluetooth", "constraint.wifi"}, true))
	got := mustAwait(t, env.manager.GetOsAccountAllConstraints(env.ctx, 100))
	if len(got) != 2 || got[0] != "constraint.bluetooth" || got[1] != "constraint.wifi" {
		t.Fatalf("constraints = %v", got)
	}
}

func TestStrictModeRejectsUnknownNames(t *testing.T) {
	opts := defaultEnvOptions()
	opts.strict = true
	env := newTestEnvWith(t, opts)

	_, err := await(t, env.manager.SetOsAccountConstraints(env.ctx, 100, []string{"not.in.catalog"}, true))
	wantCode(t, err, model.ResultInvalidParameters)

	mustAwait(t, env.manager.SetOsAccountConstraints(env.ctx, 100, []string{"constraint.wifi"}, true))
}

func TestConstraintsPersistAcrossReload(t *testing.T) {
	env := newTestEnv(t)
	mustAwait(t, env.manager.SetOsAccountConstraints(env.ctx, 100, []string{"constraint.sms.use"}, true))

	policy := NewConstraintPolicy(repository.NewConstraintRepository(env.db), ConstraintPolicyConfig{})
	if err := policy.Load(context.Background()); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !policy.IsEnabled(100, "constraint.sms.use") {
		t.Fatal("constraint lost after reload")
	}
}

func TestDefaultConstraintsAppliedOnCreate(t *testing.T) {
	opts := defaultEnvOptions()
	opts.defaults = map[model.OsAccountType][]string{
		model.OsAccountTypeGuest: {"constraint.sms.use", "constraint.calls.outgoing"},
	}
	env := newTestEnvWith(t, opts)

	guest := mustAwait(t, env.manager.CreateOsAccount(env.ctx, "guest", model.OsAccountTypeGuest))
	if len(guest.Constraints) != 2 {
		t.Fatalf("guest constraints = %v", guest.Constraints)
	}
	normal := mustAwait(t, env.manager.CreateOsAccount(env.ctx, "normal", model.OsAccountTypeNormal))
	if len(normal.Constraints) != 0 {
		t.Fatalf("normal constraints = %v", normal.Constraints)
	}
}

func TestGuardUsesCallerAccount(t *testing.T) {
	env := newTestEnv(t)
	other := mustAwait(t, env.manager.CreateOsAccount(env.ctx, "other", model.OsAccountTypeNormal))
	mustAwait(t, env.manager.SetOsAccountConstraints(env.ctx, other.LocalID, []string{model.ConstraintAccountCreate}, true))

	// 前台账号100没有约束
	mustAwait(t, env.manager.CreateOsAccount(env.ctx, "from-foreground", model.OsAccountTypeNormal))

	caller := SystemCaller()
	caller.UID = other.LocalID*model.UIDPerAccount + 1000
	ctx := WithCaller(context.Background(), caller)
	_, err := await(t, env.manager.CreateOsAccount(ctx, "blocked", model.OsAccountTypeNormal))
	wantKitCode(t, err, OpCreateOsAccount.Code)
	if !errors.Is(err, ErrConstraintBlocked) {
		t.Fatalf("err = %v, want ErrConstraintBlocked", err)
	}
	_, err = await(t, env.manager.CreateOsAccountForDomain(ctx, model.OsAccountTypeNormal,
		model.DomainAccountInfo{Domain: "example.com", AccountName: "blocked"}))
	wantKitCode(t, err, OpCreateOsAccountForDomain.Code)
}
