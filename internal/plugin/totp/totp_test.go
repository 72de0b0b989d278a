package totp

import (
	"bytes"
	"context"
	"net/url"
	"testing"
	"time"

	"osaccount/internal/model"
	"osaccount/internal/plugin/types"

	"github.com/jonboulle/clockwork"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

// codeInputer 用下发的密钥计算当前验证码
type codeInputer struct {
	clock  clockwork.Clock
	secret string
	wrong  bool
}

func (c *codeInputer) OnGetData(s types.DataSetter) {
	code, _ := totp.GenerateCodeCustom(c.secret, c.clock.Now(), totp.ValidateOpts{
		Period: 30, Digits: otp.DigitsSix, Algorithm: otp.AlgorithmSHA1,
	})
	if c.wrong {
		code = "000000"
	}
	s.OnSetData(model.AuthSubTypeRecoveryKeyTOTP, []byte(code))
}

func TestEnrollAndAuthenticate(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	inputers := types.NewInputerRegistry()
	inputer := &codeInputer{clock: clock}
	inputers.Register(model.AuthTypeRecoveryKey, inputer)

	e, err := New(Config{TrustLevel: model.AuthTrustLevelATL3, Period: 30},
		bytes.Repeat([]byte{1}, 32), clock, inputers, types.NewLockout(clock, 3, time.Minute))
	if err != nil {
		t.Fatal(err)
	}

	tip := func(info model.AcquireInfo) {
		if info.Tip != TipProvisioning {
			return
		}
		u, err := url.Parse(string(info.Extra))
		if err != nil {
			t.Errorf("bad provisioning url: %v", err)
			return
		}
		inputer.secret = u.Query().Get("secret")
	}
	enrollment, err := e.Enroll(context.Background(), &types.EnrollRequest{LocalID: 100}, tip)
	if err != nil {
		t.Fatalf("Enroll() error = %v", err)
	}
	if bytes.Contains(enrollment.Template, []byte(inputer.secret)) {
		t.Fatal("template contains plaintext secret")
	}

	creds := []model.Credential{{ID: 5, LocalID: 100, Template: enrollment.Template}}
	clock.Advance(90 * time.Second)
	if _, err := e.Authenticate(context.Background(), &types.AuthRequest{LocalID: 100, Credentials: creds}, nil); err != nil {
		t.Fatalf("Authenticate() error = %v", err)
	}

	// 模板与账号绑定
	if _, err := e.Authenticate(context.Background(), &types.AuthRequest{LocalID: 101, Credentials: creds}, nil); err == nil {
		t.Fatal("template accepted for another account")
	}
}

func TestEnrollRejectsWrongConfirmation(t *testing.T) {
	clock := clockwork.NewFakeClock()
	inputers := types.NewInputerRegistry()
	inputers.Register(model.AuthTypeRecoveryKey, &codeInputer{clock: clock, wrong: true})
	e, _ := New(Config{TrustLevel: model.AuthTrustLevelATL3}, bytes.Repeat([]byte{1}, 32), clock, inputers,
		types.NewLockout(clock, 3, time.Minute))

	_, err := e.Enroll(context.Background(), &types.EnrollRequest{LocalID: 100}, nil)
	if execErr, ok := types.AsExecutorError(err); !ok || execErr.Code != model.ResultFail {
		t.Fatalf("Enroll() = %v, want FAIL", err)
	}
}
