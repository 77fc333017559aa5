package types

import (
	"context"
	"testing"
)

func TestActorContextRoundTrip(t *testing.T) {
	cases := []struct {
		name  string
		actor Actor
	}{
		{"user actor", Actor{ID: "user-123", Type: ActorTypeUser, Email: "ada@example.com", Plan: PlanPremium}},
		{"system actor", Actor{ID: "sweeper", Type: ActorTypeSystem}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ctx := WithActor(context.Background(), tc.actor)
			got, ok := GetActor(ctx)
			if !ok {
				t.Fatal("GetActor reported missing after WithActor")
			}
			if got != tc.actor {
				t.Errorf("GetActor = %+v, want %+v", got, tc.actor)
			}
		})
	}

	t.Run("empty context", func(t *testing.T) {
		if _, ok := GetActor(context.Background()); ok {
			t.Error("GetActor on empty context reported an actor")
		}
	})
}

func TestRequestIDContextRoundTrip(t *testing.T) {
	ctx := WithRequestID(context.Background(), "req-abc123")
	if got := GetRequestID(ctx); got != "req-abc123" {
		t.Errorf("GetRequestID = %q, want %q", got, "req-abc123")
	}
	if got := GetRequestID(context.Background()); got != "" {
		t.Errorf("GetRequestID on empty context = %q, want empty", got)
	}
}

func TestIsKnownPlan(t *testing.T) {
	for _, p := range KnownPlans {
		if !IsKnownPlan(p) {
			t.Errorf("IsKnownPlan(%q) = false, want true", p)
		}
	}
	for _, p := range []Plan{"", "gold", "enterprise", "Premium"} {
		if IsKnownPlan(p) {
			t.Errorf("IsKnownPlan(%q) = true, want false", p)
		}
	}
}
