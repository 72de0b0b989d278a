package types

import (
	"testing"
	"time"

	"osaccount/internal/model"

	"github.com/jonboulle/clockwork"
)

func TestLockoutCountsDownThenLocks(t *testing.T) {
	clock := clockwork.NewFakeClock()
	l := NewLockout(clock, 3, time.Minute)

	for want := int32(2); want >= 1; want-- {
		err := l.Fail(100)
		execErr, ok := AsExecutorError(err)
		if !ok || execErr.Code != model.ResultFail || execErr.RemainTimes != want {
			t.Fatalf("Fail() = %v, want FAIL remain %d", err, want)
		}
	}

	execErr, ok := AsExecutorError(l.Fail(100))
	if !ok || execErr.Code != model.ResultLocked || execErr.FreezingTime != 60000 {
		t.Fatalf("third Fail() = %+v, want LOCKED 60000ms", execErr)
	}
	if err := l.Check(100); err == nil {
		t.Fatal("Check() should report locked")
	}
	// 其他账号不受影响
	if err := l.Check(101); err != nil {
		t.Fatalf("Check(101) = %v", err)
	}

	clock.Advance(30 * time.Second)
	if _, freezing := l.Status(100); freezing != 30000 {
		t.Fatalf("freezing = %d, want 30000", freezing)
	}

	clock.Advance(30 * time.Second)
	if err := l.Check(100); err != nil {
		t.Fatalf("Check() after freeze = %v", err)
	}
	if remain, _ := l.Status(100); remain != 3 {
		t.Fatalf("remain after freeze = %d, want 3", remain)
	}
}

func TestLockoutSucceedResets(t *testing.T) {
	l := NewLockout(clockwork.NewFakeClock(), 3, time.Minute)
	_ = l.Fail(100)
	l.Succeed(100)
	if remain, _ := l.Status(100); remain != 3 {
		t.Fatalf("remain = %d, want 3", remain)
	}
}
