package policy

import (
	"testing"
	"time"

	"github.com/specq/specq/internal/queue"
)

var testNow = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

func itemActiveAgo(ago time.Duration, errTypes ...string) *queue.Item {
	it := queue.NewItem("SPEC-001", "auth.spec.json", "", 1, testNow.Add(-ago))
	for _, et := range errTypes {
		it.Errors = append(it.Errors, queue.ItemError{Type: et, Message: "boom", Timestamp: it.QueuedAt})
	}
	return &it
}

func TestCheckCooldown(t *testing.T) {
	tests := []struct {
		name          string
		item          *queue.Item
		wantIn        bool
		wantRemaining int
	}{
		{"just queued", itemActiveAgo(0), true, 30},
		{"clean, 15m ago", itemActiveAgo(15 * time.Minute), true, 15},
		{"clean, exactly 30m ago", itemActiveAgo(30 * time.Minute), false, 0},
		{"clean, 31m ago", itemActiveAgo(31 * time.Minute), false, 0},
		{"spec failure, 15m ago", itemActiveAgo(15*time.Minute, queue.ErrorTypeSpec), true, 75},
		{"spec failure, 89m59s ago", itemActiveAgo(89*time.Minute+59*time.Second, queue.ErrorTypeSpec), true, 1},
		{"spec failure, 90m ago", itemActiveAgo(90*time.Minute, queue.ErrorTypeSpec), false, 0},
		{"infra failures keep the standard period", itemActiveAgo(31*time.Minute, queue.ErrorTypeInfra), false, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CheckCooldown(tt.item, testNow)
			if got.InCooldown != tt.wantIn {
				t.Errorf("InCooldown = %v, want %v", got.InCooldown, tt.wantIn)
			}
			if got.RemainingMinutes != tt.wantRemaining {
				t.Errorf("RemainingMinutes = %d, want %d", got.RemainingMinutes, tt.wantRemaining)
			}
			if !got.LastActivityAt.Equal(tt.item.LastActivity()) {
				t.Errorf("LastActivityAt = %v, want %v", got.LastActivityAt, tt.item.LastActivity())
			}
		})
	}
}

func TestCheckCooldownExpiresAt(t *testing.T) {
	it := itemActiveAgo(10 * time.Minute)
	st := CheckCooldown(it, testNow)
	if st.ExpiresAt == nil {
		t.Fatal("ExpiresAt = nil, want set while in cooldown")
	}
	want := it.QueuedAt.Add(CooldownStandard)
	if !st.ExpiresAt.Equal(want) {
		t.Errorf("ExpiresAt = %v, want %v", st.ExpiresAt, want)
	}

	if out := CheckCooldown(itemActiveAgo(time.Hour), testNow); out.ExpiresAt != nil {
		t.Errorf("ExpiresAt = %v, want nil when out of cooldown", out.ExpiresAt)
	}
}

func TestCooldownUsesLatestActivity(t *testing.T) {
	it := itemActiveAgo(2 * time.Hour)
	started := testNow.Add(-50 * time.Minute)
	attempted := testNow.Add(-20 * time.Minute)
	it.StartedAt = &started
	it.LastAttempt = &attempted

	st := CheckCooldown(it, testNow)
	if !st.InCooldown || st.RemainingMinutes != 10 {
		t.Errorf("got InCooldown=%v remaining=%d, want true/10 measured from lastAttempt", st.InCooldown, st.RemainingMinutes)
	}
}

func TestPeriodFor(t *testing.T) {
	c := DefaultCooldowns()
	if got := c.PeriodFor(itemActiveAgo(0)); got != CooldownStandard {
		t.Errorf("clean item period = %v, want %v", got, CooldownStandard)
	}
	if got := c.PeriodFor(itemActiveAgo(0, queue.ErrorTypeInfra, queue.ErrorTypeSpec)); got != CooldownFailedPR {
		t.Errorf("spec-failed item period = %v, want %v", got, CooldownFailedPR)
	}
}

func TestCooldownOverrides(t *testing.T) {
	c := Cooldowns{Standard: 5 * time.Minute, FailedPR: 10 * time.Minute}
	st := c.Check(itemActiveAgo(6*time.Minute), testNow)
	if st.InCooldown {
		t.Errorf("InCooldown = true with 5m override after 6m")
	}
}
