package service

import (
	"errors"
	"strconv"
	"testing"
	"time"

	"osaccount/internal/model"
	"osaccount/internal/plugin/types"
)

func TestAuthSuccessIssuesToken(t *testing.T) {
	env := newTestEnv(t)
	env.enrollPIN(t, 100)

	contextID, task := env.auth.Auth(env.ctx, 0, model.AuthTypePIN, model.AuthTrustLevelATL3, nil)
	if contextID == 0 {
		t.Fatal("context id should be non-zero")
	}
	result := mustAwait(t, task)
	claims, err := env.tokens.parse(result.Token, 100, 0)
	if err != nil {
		t.Fatalf("token does not verify: %v", err)
	}
	if claims.AuthType != model.AuthTypePIN || claims.TrustLevel != model.AuthTrustLevelATL3 {
		t.Fatalf("claims = %+v", claims)
	}
	if result.RemainTimes != 3 {
		t.Fatalf("remain = %d, want 3", result.RemainTimes)
	}
	if !mustAwait(t, env.manager.IsOsAccountVerified(env.ctx, 100)) {
		t.Fatal("account should be verified")
	}
}

func TestAuthFailureCarriesRemainAndFreezing(t *testing.T) {
	env := newTestEnv(t)
	env.enrollPIN(t, 100)
	env.setPIN("000000")

	for remain := int32(2); remain >= 1; remain-- {
		_, task := env.auth.Auth(env.ctx, 0, model.AuthTypePIN, model.AuthTrustLevelATL1, nil)
		result, err := await(t, task)
		wantCode(t, err, model.ResultFail)
		if result.RemainTimes != remain {
			t.Fatalf("remain = %d, want %d", result.RemainTimes, remain)
		}
	}

	_, task := env.auth.Auth(env.ctx, 0, model.AuthTypePIN, model.AuthTrustLevelATL1, nil)
	result, err := await(t, task)
	wantCode(t, err, model.ResultLocked)
	if result.FreezingTime != int32(time.Minute/time.Millisecond) {
		t.Fatalf("freezing = %d", result.FreezingTime)
	}

	status := mustAwait(t, env.auth.GetAvailableStatus(env.ctx, model.AuthTypePIN, model.AuthTrustLevelATL1))
	if status != model.ResultLocked {
		t.Fatalf("status = %s, want LOCKED", status)
	}

	// 冻结期结束后恢复
	env.clock.Advance(2 * time.Minute)
	env.setPIN("123456")
	_, task = env.auth.Auth(env.ctx, 0, model.AuthTypePIN, model.AuthTrustLevelATL1, nil)
	mustAwait(t, task)
}

func TestAuthPreconditions(t *testing.T) {
	env := newTestEnv(t)

	_, task := env.auth.Auth(env.ctx, 0, model.AuthTypePIN, model.AuthTrustLevelATL1, nil)
	_, err := await(t, task)
	wantCode(t, err, model.ResultNotEnrolled)
	wantKitCode(t, err, OpAuth.Code)

	env.enrollPIN(t, 100)
	tests := []struct {
		name     string
		authType model.AuthType
		level    model.AuthTrustLevel
		want     model.ResultCode
	}{
		{"unknown type", model.AuthTypeFingerprint, model.AuthTrustLevelATL1, model.ResultTypeNotSupport},
		{"trust level too high", model.AuthTypePIN, model.AuthTrustLevelATL4, model.ResultTrustLevelNotSupport},
		{"invalid trust level", model.AuthTypePIN, model.AuthTrustLevel(3), model.ResultInvalidParameters},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			contextID, task := env.auth.Auth(env.ctx, 0, tt.authType, tt.level, nil)
			if contextID != 0 {
				t.Fatalf("context id = %d for rejected auth", contextID)
			}
			_, err := await(t, task)
			wantCode(t, err, tt.want)

			status := mustAwait(t, env.auth.GetAvailableStatus(env.ctx, tt.authType, tt.level))
			if status != tt.want {
				t.Fatalf("status = %s, want %s", status, tt.want)
			}
		})
	}

	_, task = env.auth.AuthUser(env.ctx, 4242, 0, model.AuthTypePIN, model.AuthTrustLevelATL1, nil)
	_, err = await(t, task)
	wantKitCode(t, err, OpAuthUser.Code)
}

func TestCancelAuthAfterCompletionFails(t *testing.T) {
	env := newTestEnv(t)
	env.enrollPIN(t, 100)

	contextID, task := env.auth.Auth(env.ctx, 0, model.AuthTypePIN, model.AuthTrustLevelATL1, nil)
	mustAwait(t, task)

	_, err := await(t, env.auth.CancelAuth(env.ctx, contextID))
	if !errors.Is(err, ErrContextNotFound) {
		t.Fatalf("err = %v, want ErrContextNotFound", err)
	}
	wantKitCode(t, err, OpCancelAuth.Code)
}

// addFaceCredential 直接写入人脸凭据，供阻塞执行器认证
func addFaceCredential(t *testing.T, env *testEnv, localID int) {
	t.Helper()
	err := env.creds.Create(env.ctx, &model.Credential{
		ID:          uint64(localID)*1000 + 7,
		LocalID:     localID,
		AuthType:    model.AuthTypeFace,
		AuthSubType: model.AuthSubTypeFace2D,
		TemplateID:  "face-" + strconv.Itoa(localID),
		Template:    []byte{0xa0},
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestCancelAuthWhileRunning(t *testing.T) {
	env := newTestEnv(t)
	face := newBlockingExecutor()
	if err := env.executors.Register(face); err != nil {
		t.Fatal(err)
	}
	addFaceCredential(t, env, 100)

	tips := make(chan model.AcquireInfo, 1)
	contextID, task := env.auth.Auth(env.ctx, 0, model.AuthTypeFace, model.AuthTrustLevelATL2, func(info model.AcquireInfo) {
		tips <- info
	})
	face.waitStarted(t)
	if tip := <-tips; tip.Tip != int32(model.FaceTipNotDetected) {
		t.Fatalf("tip = %+v", tip)
	}

	mustAwait(t, env.auth.CancelAuth(env.ctx, contextID))
	_, err := await(t, task)
	wantCode(t, err, model.ResultCanceled)
}

func TestAuthTimeout(t *testing.T) {
	opts := defaultEnvOptions()
	opts.timeout = 30 * time.Second
	env := newTestEnvWith(t, opts)
	face := newBlockingExecutor()
	if err := env.executors.Register(face); err != nil {
		t.Fatal(err)
	}
	addFaceCredential(t, env, 100)

	_, task := env.auth.Auth(env.ctx, 0, model.AuthTypeFace, model.AuthTrustLevelATL1, nil)
	face.waitStarted(t)
	env.clock.Advance(31 * time.Second)

	_, err := await(t, task)
	wantCode(t, err, model.ResultTimeout)
}

func TestAuthBoundToSessionIsExclusive(t *testing.T) {
	env := newTestEnv(t)
	face := newBlockingExecutor()
	if err := env.executors.Register(face); err != nil {
		t.Fatal(err)
	}
	challenge := env.enrollPIN(t, 100)
	addFaceCredential(t, env, 100)

	_, task := env.auth.Auth(env.ctx, challenge, model.AuthTypeFace, model.AuthTrustLevelATL1, nil)
	face.waitStarted(t)

	// 会话处于Authenticating时，同一挑战值的认证返回BUSY
	_, busy := env.auth.Auth(env.ctx, challenge, model.AuthTypePIN, model.AuthTrustLevelATL1, nil)
	_, err := await(t, busy)
	wantCode(t, err, model.ResultBusy)

	// IDM取消可以中止绑定到会话的认证
	mustAwait(t, env.identity.Cancel(env.ctx, challenge))
	_, err = await(t, task)
	wantCode(t, err, model.ResultCanceled)

	// 不绑定会话的认证不受影响
	_, task = env.auth.Auth(env.ctx, 0, model.AuthTypePIN, model.AuthTrustLevelATL1, nil)
	mustAwait(t, task)
}

func TestGetProperty(t *testing.T) {
	env := newTestEnv(t)

	_, err := await(t, env.auth.GetProperty(env.ctx, &model.GetPropertyRequest{
		AuthType: model.AuthTypePIN,
		Keys:     []model.GetPropertyType{model.GetPropertyAuthSubType},
	}))
	wantCode(t, err, model.ResultNotEnrolled)

	env.enrollPIN(t, 100)
	prop := mustAwait(t, env.auth.GetProperty(env.ctx, &model.GetPropertyRequest{
		AuthType: model.AuthTypePIN,
		Keys:     []model.GetPropertyType{model.GetPropertyAuthSubType, model.GetPropertyRemainTimes},
	}))
	if prop.Result != model.ResultSuccess || prop.AuthSubType != model.AuthSubTypePINSix || prop.RemainTimes != 3 || prop.FreezingTime != 0 {
		t.Fatalf("property = %+v", prop)
	}

	prop = mustAwait(t, env.auth.GetProperty(env.ctx, &model.GetPropertyRequest{
		AuthType: model.AuthTypePIN,
		Keys:     []model.GetPropertyType{model.GetPropertyFreezingTime},
	}))
	if prop.AuthSubType != 0 || prop.RemainTimes != 0 {
		t.Fatalf("unrequested fields filled: %+v", prop)
	}

	_, err = await(t, env.auth.GetProperty(env.ctx, &model.GetPropertyRequest{
		AuthType: model.AuthTypePIN,
		Keys:     []model.GetPropertyType{9},
	}))
	wantCode(t, err, model.ResultInvalidParameters)

	_, err = await(t, env.auth.GetProperty(env.ctx, &model.GetPropertyRequest{
		AuthType: model.AuthTypeFace,
		Keys:     []model.GetPropertyType{model.GetPropertyAuthSubType},
	}))
	wantCode(t, err, model.ResultTypeNotSupport)
}

func TestSetProperty(t *testing.T) {
	env := newTestEnv(t)

	mustAwait(t, env.auth.SetProperty(env.ctx, &model.SetPropertyRequest{
		AuthType: model.AuthTypePIN,
		Key:      model.SetPropertyInitAlgorithm,
		SetInfo:  []byte("5"),
	}))
	_, err := await(t, env.auth.SetProperty(env.ctx, &model.SetPropertyRequest{
		AuthType: model.AuthTypePIN,
		Key:      model.SetPropertyType(2),
	}))
	wantCode(t, err, model.ResultInvalidParameters)
	wantKitCode(t, err, OpSetProperty.Code)

	face := newBlockingExecutor()
	if err := env.executors.Register(face); err != nil {
		t.Fatal(err)
	}
	_, err = await(t, env.auth.SetProperty(env.ctx, &model.SetPropertyRequest{
		AuthType: model.AuthTypeFace,
		Key:      model.SetPropertyInitAlgorithm,
	}))
	wantCode(t, err, model.ResultInvalidParameters)
}

func TestRegisterInputerTwice(t *testing.T) {
	env := newTestEnv(t)
	env.inputers.Unregister(model.AuthTypePIN)
	noop := types.InputerFunc(func(types.DataSetter) {})

	if !mustAwait(t, env.pinAuth.RegisterInputer(env.ctx, noop)) {
		t.Fatal("first registration should succeed")
	}
	if mustAwait(t, env.pinAuth.RegisterInputer(env.ctx, noop)) {
		t.Fatal("second registration should return false")
	}
	mustAwait(t, env.pinAuth.UnregisterInputer(env.ctx))
	if !mustAwait(t, env.pinAuth.RegisterInputer(env.ctx, noop)) {
		t.Fatal("registration after unregister should succeed")
	}

	denied := WithCaller(env.ctx, NewCaller(1))
	_, err := await(t, env.pinAuth.RegisterInputer(denied, noop))
	wantKitCode(t, err, OpRegisterInputer.Code)
}

func TestCallbackAndAwaitAgree(t *testing.T) {
	env := newTestEnv(t)

	task := env.manager.CreateOsAccount(env.ctx, "", model.OsAccountTypeNormal)
	done := make(chan error, 1)
	WithCallback(task, func(err error, _ *model.OsAccount) { done <- err })

	_, awaitErr := await(t, task)
	select {
	case cbErr := <-done:
		if cbErr != awaitErr || CodeOf(cbErr) != model.ResultInvalidParameters {
			t.Fatalf("callback err = %v, await err = %v", cbErr, awaitErr)
		}
	case <-time.After(testTimeout):
		t.Fatal("callback not called")
	}
}
