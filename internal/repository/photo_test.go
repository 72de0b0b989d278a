package repository

import (
	"context"
	"testing"
)

func TestPhotoSetOverwrites(t *testing.T) {
	repo := NewPhotoRepository(newTestDB(t))
	ctx := context.Background()

	if got, err := repo.Get(ctx, 100); err != nil || got != "" {
		t.Fatalf("Get() unset = %q, %v", got, err)
	}
	if err := repo.Set(ctx, 100, "data:image/png;base64,AAA"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if err := repo.Set(ctx, 100, "data:image/png;base64,BBB"); err != nil {
		t.Fatalf("Set() overwrite error = %v", err)
	}
	if got, _ := repo.Get(ctx, 100); got != "data:image/png;base64,BBB" {
		t.Fatalf("Get() = %q", got)
	}
	if err := repo.Delete(ctx, 100); err != nil {
		t.Fatal(err)
	}
	if got, _ := repo.Get(ctx, 100); got != "" {
		t.Fatalf("Get() after delete = %q", got)
	}
}
