package domain_test

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/identra/identra/pkg/domain"
)

func position(global int64, inTxOrder uint32) domain.Position {
	return domain.Position{Global: decimal.NewFromInt(global), InTxOrder: inTxOrder}
}

func TestPositionAfter(t *testing.T) {
	tests := []struct {
		name  string
		p     domain.Position
		other domain.Position
		want  bool
	}{
		{"LargerGlobal", position(2, 0), position(1, 9), true},
		{"SmallerGlobal", position(1, 9), position(2, 0), false},
		{"SameGlobalLargerOrder", position(1, 1), position(1, 0), true},
		{"SameGlobalSmallerOrder", position(1, 0), position(1, 1), false},
		{"Equal", position(1, 1), position(1, 1), false},
		{"AfterZero", position(1, 0), domain.Position{}, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.p.After(tc.other); got != tc.want {
				t.Errorf("%s.After(%s) = %v, want %v", tc.p, tc.other, got, tc.want)
			}
		})
	}
}

func TestPositionIsZero(t *testing.T) {
	if !(domain.Position{}).IsZero() {
		t.Error("zero value is not zero")
	}
	if position(1, 0).IsZero() || position(0, 1).IsZero() {
		t.Error("non-zero position reported zero")
	}
}

func TestPositionString(t *testing.T) {
	if got := position(42, 3).String(); got != "42.3" {
		t.Errorf("expected 42.3, got %s", got)
	}
}

func TestEventUnmarshal(t *testing.T) {
	event := &domain.Event{
		Type:    domain.OrgAddedType,
		Payload: []byte(`{"name":"Acme"}`),
	}
	var payload domain.OrgAddedPayload
	if err := event.Unmarshal(&payload); err != nil {
		t.Fatalf("failed to unmarshal: %v", err)
	}
	if payload.Name != "Acme" {
		t.Errorf("expected Acme, got %s", payload.Name)
	}

	t.Run("EmptyPayload", func(t *testing.T) {
		event := &domain.Event{Type: domain.OrgRemovedType}
		var payload domain.OrgAddedPayload
		if err := event.Unmarshal(&payload); err != nil {
			t.Errorf("expected nil for empty payload, got %v", err)
		}
	})

	t.Run("Malformed", func(t *testing.T) {
		event := &domain.Event{Type: domain.OrgAddedType, Payload: []byte(`{`)}
		var payload domain.OrgAddedPayload
		if err := event.Unmarshal(&payload); err == nil {
			t.Error("expected error for malformed payload")
		}
	})
}
