package repository

import (
	"context"
	"reflect"
	"testing"
)

func TestConstraintAddRemove(t *testing.T) {
	repo := NewConstraintRepository(newTestDB(t))
	ctx := context.Background()

	if err := repo.Add(ctx, 100, []string{"constraint.wifi", "constraint.sms.use"}); err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	// 重复启用不报错
	if err := repo.Add(ctx, 100, []string{"constraint.wifi"}); err != nil {
		t.Fatalf("Add() duplicate error = %v", err)
	}
	if err := repo.Add(ctx, 101, []string{"constraint.print"}); err != nil {
		t.Fatal(err)
	}

	names, err := repo.List(ctx, 100)
	if err != nil {
		t.Fatal(err)
	}
	if want := []string{"constraint.sms.use", "constraint.wifi"}; !reflect.DeepEqual(names, want) {
		t.Fatalf("List() = %v, want %v", names, want)
	}

	if err := repo.Remove(ctx, 100, []string{"constraint.wifi", "constraint.not.set"}); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	all, err := repo.ListAll(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(all[100]) != 1 || len(all[101]) != 1 {
		t.Fatalf("ListAll() = %v", all)
	}

	if err := repo.DeleteByLocalID(ctx, 100); err != nil {
		t.Fatal(err)
	}
	names, _ = repo.List(ctx, 100)
	if len(names) != 0 {
		t.Fatalf("List() after delete = %v", names)
	}
}
