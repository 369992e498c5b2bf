// Package policy decides what happens after a pipeline run fails: whether
// the item retries, how long it must cool down first, and how long remote
// API retries back off. Nothing here is persisted; every answer is
// recomputed from the item's recorded history.
package policy

import (
	"math"
	"time"

	"github.com/specq/specq/internal/queue"
)

// Cooldown periods. Items that have already produced a spec-level failure
// wait longer before another attempt.
const (
	CooldownStandard = 30 * time.Minute
	CooldownFailedPR = 90 * time.Minute
)

// Cooldowns holds the two cooldown periods. The zero value is not usable;
// construct with DefaultCooldowns and override from config as needed.
type Cooldowns struct {
	Standard time.Duration
	FailedPR time.Duration
}

// DefaultCooldowns returns the built-in cooldown periods.
func DefaultCooldowns() Cooldowns {
	return Cooldowns{Standard: CooldownStandard, FailedPR: CooldownFailedPR}
}

// PeriodFor returns the cooldown period the item is subject to.
func (c Cooldowns) PeriodFor(it *queue.Item) time.Duration {
	if it.HasSpecFailure() {
		return c.FailedPR
	}
	return c.Standard
}

// CooldownStatus reports whether an item may be acted on yet.
type CooldownStatus struct {
	InCooldown       bool       `json:"isInCooldown"`
	RemainingMinutes int        `json:"remainingMinutes"`
	ExpiresAt        *time.Time `json:"expiresAt,omitempty"`
	LastActivityAt   time.Time  `json:"lastActivityAt"`
}

// Check computes the item's cooldown status at now. An item is in cooldown
// while less than its period has elapsed since its last activity.
func (c Cooldowns) Check(it *queue.Item, now time.Time) CooldownStatus {
	period := c.PeriodFor(it)
	last := it.LastActivity()
	st := CooldownStatus{LastActivityAt: last}

	age := now.Sub(last)
	if age >= period {
		return st
	}
	st.InCooldown = true
	st.RemainingMinutes = int(math.Ceil((period - age).Minutes()))
	expires := last.Add(period)
	st.ExpiresAt = &expires
	return st
}

// CheckCooldown checks an item against the default cooldown periods.
func CheckCooldown(it *queue.Item, now time.Time) CooldownStatus {
	return DefaultCooldowns().Check(it, now)
}
