package lottery

import (
	"errors"
	"testing"
	"time"

	"github.com/riskibarqy/coindraw/internal/platform/random"
)

var testDrawTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func testActivity(totalCoins int, participants ...string) Activity {
	return Activity{
		ID: "lot-001",
		Config: Config{
			TotalCoins:   totalCoins,
			Participants: participants,
			DrawTime:     testDrawTime,
		},
		CreatedAt: testDrawTime.Add(-time.Hour),
		UpdatedAt: testDrawTime.Add(-time.Hour),
	}
}

func TestApplyClaim_Rejections(t *testing.T) {
	src := random.NewSeeded(10)
	before := testDrawTime.Add(-time.Minute)

	completed := testActivity(100, "ana", "ben")
	completed.Completed = true
	if _, err := ApplyClaim(completed, "ana", before, src); !errors.Is(err, ErrAlreadyCompleted) {
		t.Fatalf("expected ErrAlreadyCompleted, got %v", err)
	}

	open := testActivity(100, "ana", "ben")
	if _, err := ApplyClaim(open, "ana", testDrawTime, src); !errors.Is(err, ErrDeadlinePassed) {
		t.Fatalf("claim at draw time: expected ErrDeadlinePassed, got %v", err)
	}
	if _, err := ApplyClaim(open, "zoe", before, src); !errors.Is(err, ErrUnknownParticipant) {
		t.Fatalf("expected ErrUnknownParticipant, got %v", err)
	}

	claimed, err := ApplyClaim(open, "ana", before, src)
	if err != nil {
		t.Fatalf("first claim: %v", err)
	}
	open = open.Apply([]Result{claimed}, false, before)
	if _, err := ApplyClaim(open, "ana", before, src); !errors.Is(err, ErrAlreadyClaimed) {
		t.Fatalf("expected ErrAlreadyClaimed, got %v", err)
	}
}

func TestApplyClaim_EveryoneClaimsThenFinalizeSumsExactly(t *testing.T) {
	src := random.NewSeeded(11)
	now := testDrawTime.Add(-time.Minute)

	a := testActivity(100, "ana", "ben", "cleo", "dio")
	for _, name := range []string{"cleo", "ana", "dio", "ben"} {
		r, err := ApplyClaim(a, name, now, src)
		if err != nil {
			t.Fatalf("claim %s: %v", name, err)
		}
		a = a.Apply([]Result{r}, false, now)
		if err := a.CheckInvariants(); err != nil {
			t.Fatalf("invariants after %s: %v", name, err)
		}
	}

	delta, err := FinalizeDelta(a, testDrawTime, src)
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if len(delta) != 0 {
		t.Fatalf("expected empty delta after full manual participation, got %d results", len(delta))
	}

	a = a.Apply(delta, true, testDrawTime)
	if err := a.CheckInvariants(); err != nil {
		t.Fatalf("final invariants: %v", err)
	}
	if a.AllocatedCoins() != 100 {
		t.Fatalf("allocated %d coins, want 100", a.AllocatedCoins())
	}
}

func TestFinalizeDelta_NoManualClaims(t *testing.T) {
	src := random.NewSeeded(12)

	a := testActivity(100, "ana", "ben", "cleo", "dio")
	delta, err := FinalizeDelta(a, testDrawTime, src)
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if len(delta) != 4 {
		t.Fatalf("expected 4 system results, got %d", len(delta))
	}
	for _, r := range delta {
		if r.Origin != OriginSystem {
			t.Fatalf("expected system origin, got %s", r.Origin)
		}
	}

	a = a.Apply(delta, true, testDrawTime)
	if err := a.CheckInvariants(); err != nil {
		t.Fatalf("final invariants: %v", err)
	}
}

func TestFinalizeDelta_PartialClaimsScenario(t *testing.T) {
	src := random.NewSeeded(13)
	now := testDrawTime.Add(-time.Minute)

	a := testActivity(100, "ana", "ben", "cleo", "dio")
	for _, name := range []string{"ana", "ben"} {
		r, err := ApplyClaim(a, name, now, src)
		if err != nil {
			t.Fatalf("claim %s: %v", name, err)
		}
		a = a.Apply([]Result{r}, false, now)
	}

	delta, err := FinalizeDelta(a, testDrawTime, src)
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if len(delta) != 2 {
		t.Fatalf("expected 2 system results, got %d", len(delta))
	}
	if delta[0].ParticipantName != "cleo" || delta[1].ParticipantName != "dio" {
		t.Fatalf("expected config order cleo,dio, got %s,%s", delta[0].ParticipantName, delta[1].ParticipantName)
	}

	// The last unassigned participant takes exactly the leftover.
	a = a.Apply(delta, true, testDrawTime)
	if err := a.CheckInvariants(); err != nil {
		t.Fatalf("final invariants: %v", err)
	}
	if got := a.AllocatedCoins(); got != 100 {
		t.Fatalf("allocated %d coins, want 100", got)
	}
}

func TestFinalizeDelta_SkipsExistingSystemResults(t *testing.T) {
	src := random.NewSeeded(14)

	a := testActivity(10, "ana", "ben", "cleo")
	a = a.Apply([]Result{{ParticipantName: "ben", Coins: 3, DrawnAt: testDrawTime, Origin: OriginSystem}}, false, testDrawTime)

	delta, err := FinalizeDelta(a, testDrawTime, src)
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	for _, r := range delta {
		if r.ParticipantName == "ben" {
			t.Fatalf("finalize re-assigned a participant that already holds a system result")
		}
	}
	if len(delta) != 2 {
		t.Fatalf("expected 2 results, got %d", len(delta))
	}
}

func TestFinalizeDelta_AlreadyCompleted(t *testing.T) {
	src := random.NewSeeded(15)

	a := testActivity(100, "ana", "ben")
	delta, err := FinalizeDelta(a, testDrawTime, src)
	if err != nil {
		t.Fatalf("first finalize: %v", err)
	}
	a = a.Apply(delta, true, testDrawTime)

	if _, err := FinalizeDelta(a, testDrawTime, src); !errors.Is(err, ErrAlreadyCompleted) {
		t.Fatalf("second finalize: expected ErrAlreadyCompleted, got %v", err)
	}
}

func TestConfig_Validate(t *testing.T) {
	valid := Config{TotalCoins: 10, Participants: []string{"ana", "ben"}, DrawTime: testDrawTime}
	if err := valid.Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}

	cases := []struct {
		name string
		cfg  Config
	}{
		{"zero coins", Config{TotalCoins: 0, Participants: []string{"ana", "ben"}, DrawTime: testDrawTime}},
		{"one participant", Config{TotalCoins: 10, Participants: []string{"ana"}, DrawTime: testDrawTime}},
		{"blank name", Config{TotalCoins: 10, Participants: []string{"ana", " "}, DrawTime: testDrawTime}},
		{"duplicate name", Config{TotalCoins: 10, Participants: []string{"ana", "ana"}, DrawTime: testDrawTime}},
		{"pool smaller than participants", Config{TotalCoins: 2, Participants: []string{"ana", "ben", "cleo"}, DrawTime: testDrawTime}},
		{"missing draw time", Config{TotalCoins: 10, Participants: []string{"ana", "ben"}}},
	}
	for _, tc := range cases {
		if err := tc.cfg.Validate(); err == nil {
			t.Fatalf("%s: expected validation error", tc.name)
		}
	}
}
