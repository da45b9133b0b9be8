package instance_test

import (
	"context"
	"testing"

	"github.com/identra/identra/pkg/instance"
)

func TestInstanceID(t *testing.T) {
	ctx := instance.WithInstanceID(context.Background(), "inst-1")

	got, err := instance.InstanceID(ctx)
	if err != nil {
		t.Fatalf("failed to read instance id: %v", err)
	}
	if got != "inst-1" {
		t.Errorf("expected inst-1, got %s", got)
	}

	t.Run("Missing", func(t *testing.T) {
		if _, err := instance.InstanceID(context.Background()); err == nil {
			t.Error("expected error for missing instance id")
		}
	})

	t.Run("MustPanics", func(t *testing.T) {
		defer func() {
			if recover() == nil {
				t.Error("expected panic")
			}
		}()
		instance.MustInstanceID(context.Background())
	})
}

func TestUserIDDefaultsToServiceUser(t *testing.T) {
	if got := instance.UserID(context.Background()); got != instance.ServiceUserID {
		t.Errorf("expected %s, got %s", instance.ServiceUserID, got)
	}

	ctx := instance.WithUserID(context.Background(), "user-1")
	if got := instance.UserID(ctx); got != "user-1" {
		t.Errorf("expected user-1, got %s", got)
	}
}
