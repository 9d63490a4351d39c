package lottery

import (
	"fmt"
	"strings"
	"time"
)

// Origin tells how a result entered the activity.
type Origin string

const (
	// OriginManual marks a share claimed by the participant before the deadline.
	OriginManual Origin = "manual"
	// OriginSystem marks a share assigned by finalization.
	OriginSystem Origin = "system"
)

// Config is the immutable setup of one lottery activity.
type Config struct {
	TotalCoins   int
	Participants []string
	DrawTime     time.Time
}

func (c Config) Validate() error {
	if c.TotalCoins <= 0 {
		return fmt.Errorf("total coins must be greater than zero")
	}
	if len(c.Participants) < 2 {
		return fmt.Errorf("at least two participants are required")
	}
	seen := make(map[string]struct{}, len(c.Participants))
	for _, name := range c.Participants {
		if strings.TrimSpace(name) == "" {
			return fmt.Errorf("participant name cannot be empty")
		}
		if _, ok := seen[name]; ok {
			return fmt.Errorf("duplicate participant name %q", name)
		}
		seen[name] = struct{}{}
	}
	// Every participant must be able to receive at least one coin.
	if c.TotalCoins < len(c.Participants) {
		return fmt.Errorf("total coins (%d) must cover every participant (%d)", c.TotalCoins, len(c.Participants))
	}
	if c.DrawTime.IsZero() {
		return fmt.Errorf("draw time is required")
	}

	return nil
}

func (c Config) HasParticipant(name string) bool {
	for _, p := range c.Participants {
		if p == name {
			return true
		}
	}
	return false
}

// Result is one participant's share of the coin pool.
type Result struct {
	ParticipantName string
	Coins           int
	DrawnAt         time.Time
	Origin          Origin
}

// Activity is one lottery instance: config, accumulated results, completion flag.
type Activity struct {
	ID        string
	Config    Config
	Results   []Result
	Completed bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (a Activity) AllocatedCoins() int {
	var total int
	for _, r := range a.Results {
		total += r.Coins
	}
	return total
}

func (a Activity) RemainingCoins() int {
	return a.Config.TotalCoins - a.AllocatedCoins()
}

func (a Activity) HasManualResult(name string) bool {
	for _, r := range a.Results {
		if r.Origin == OriginManual && r.ParticipantName == name {
			return true
		}
	}
	return false
}

func (a Activity) HasResult(name string) bool {
	for _, r := range a.Results {
		if r.ParticipantName == name {
			return true
		}
	}
	return false
}

// ManualClaimantsLeft counts participants who have not claimed manually yet.
func (a Activity) ManualClaimantsLeft() int {
	var manual int
	for _, r := range a.Results {
		if r.Origin == OriginManual {
			manual++
		}
	}
	return len(a.Config.Participants) - manual
}

// Unassigned returns the participants with no result of any origin,
// in the recorded participant order.
func (a Activity) Unassigned() []string {
	assigned := make(map[string]struct{}, len(a.Results))
	for _, r := range a.Results {
		assigned[r.ParticipantName] = struct{}{}
	}

	out := make([]string, 0, len(a.Config.Participants))
	for _, name := range a.Config.Participants {
		if _, ok := assigned[name]; !ok {
			out = append(out, name)
		}
	}
	return out
}

// Apply returns a copy of the activity with the given results appended.
// It never mutates the receiver; callers must persist the copy through
// the repository's conditional append.
func (a Activity) Apply(results []Result, completed bool, now time.Time) Activity {
	next := a
	next.Results = make([]Result, 0, len(a.Results)+len(results))
	next.Results = append(next.Results, a.Results...)
	next.Results = append(next.Results, results...)
	next.Completed = completed
	next.UpdatedAt = now
	return next
}

// CheckInvariants verifies the allocation invariants that must hold after
// every transition. A violation here is a programming error, not a
// recoverable rejection.
func (a Activity) CheckInvariants() error {
	if len(a.Results) > len(a.Config.Participants) {
		return fmt.Errorf("result count %d exceeds participant count %d", len(a.Results), len(a.Config.Participants))
	}

	seen := make(map[string]struct{}, len(a.Results))
	for _, r := range a.Results {
		if !a.Config.HasParticipant(r.ParticipantName) {
			return fmt.Errorf("result for unknown participant %q", r.ParticipantName)
		}
		if r.Coins < 1 {
			return fmt.Errorf("participant %q allocated %d coins", r.ParticipantName, r.Coins)
		}
		if _, ok := seen[r.ParticipantName]; ok {
			return fmt.Errorf("participant %q allocated more than once", r.ParticipantName)
		}
		seen[r.ParticipantName] = struct{}{}
	}

	allocated := a.AllocatedCoins()
	if allocated > a.Config.TotalCoins {
		return fmt.Errorf("allocated %d coins exceeds pool of %d", allocated, a.Config.TotalCoins)
	}
	if a.Completed {
		if allocated != a.Config.TotalCoins {
			return fmt.Errorf("completed activity allocated %d of %d coins", allocated, a.Config.TotalCoins)
		}
		if len(a.Results) != len(a.Config.Participants) {
			return fmt.Errorf("completed activity has %d results for %d participants", len(a.Results), len(a.Config.Participants))
		}
	}

	return nil
}
