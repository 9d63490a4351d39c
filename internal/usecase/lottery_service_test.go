package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/riskibarqy/coindraw/internal/domain/lottery"
	"github.com/riskibarqy/coindraw/internal/infrastructure/repository/memory"
	"github.com/riskibarqy/coindraw/internal/platform/logging"
	"github.com/riskibarqy/coindraw/internal/platform/random"
	"github.com/sourcegraph/conc"
)

type seqIDGenerator struct {
	mu   sync.Mutex
	next int
}

func (g *seqIDGenerator) NewID() (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.next++
	return fmt.Sprintf("lot-%03d", g.next), nil
}

type capturingNotifier struct {
	mu        sync.Mutex
	completed []lottery.Activity
}

func (n *capturingNotifier) PublishCompleted(_ context.Context, activity lottery.Activity) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.completed = append(n.completed, activity)
	return nil
}

func (n *capturingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.completed)
}

var serviceDrawTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestService(t *testing.T, seed uint64) (*LotteryService, *memory.LotteryRepository, *capturingNotifier) {
	t.Helper()

	repo := memory.NewLotteryRepository()
	notifier := &capturingNotifier{}
	service := NewLotteryService(repo, random.NewSeeded(seed), &seqIDGenerator{}, notifier, logging.NewNop())
	service.now = func() time.Time { return serviceDrawTime.Add(-time.Hour) }

	return service, repo, notifier
}

func createTestLottery(t *testing.T, service *LotteryService, totalCoins int, participants ...string) lottery.Activity {
	t.Helper()

	activity, err := service.Create(t.Context(), CreateLotteryInput{
		TotalCoins:   totalCoins,
		Participants: participants,
		DrawTime:     serviceDrawTime,
	})
	if err != nil {
		t.Fatalf("create lottery: %v", err)
	}
	return activity
}

func TestLotteryService_Create_Validation(t *testing.T) {
	service, _, _ := newTestService(t, 1)

	cases := []struct {
		name  string
		input CreateLotteryInput
	}{
		{"zero coins", CreateLotteryInput{TotalCoins: 0, Participants: []string{"ana", "ben"}, DrawTime: serviceDrawTime}},
		{"one participant", CreateLotteryInput{TotalCoins: 10, Participants: []string{"ana"}, DrawTime: serviceDrawTime}},
		{"duplicate participant", CreateLotteryInput{TotalCoins: 10, Participants: []string{"ana", "ana"}, DrawTime: serviceDrawTime}},
		{"pool smaller than participants", CreateLotteryInput{TotalCoins: 2, Participants: []string{"ana", "ben", "cleo"}, DrawTime: serviceDrawTime}},
		{"draw time in the past", CreateLotteryInput{TotalCoins: 10, Participants: []string{"ana", "ben"}, DrawTime: serviceDrawTime.Add(-2 * time.Hour)}},
	}
	for _, tc := range cases {
		if _, err := service.Create(t.Context(), tc.input); !errors.Is(err, ErrInvalidInput) {
			t.Fatalf("%s: expected ErrInvalidInput, got %v", tc.name, err)
		}
	}

	activity := createTestLottery(t, service, 100, " ana ", "ben")
	if activity.ID == "" {
		t.Fatal("expected generated lottery id")
	}
	if activity.Config.Participants[0] != "ana" {
		t.Fatalf("expected trimmed participant name, got %q", activity.Config.Participants[0])
	}
	if !activity.CreatedAt.Equal(activity.UpdatedAt) {
		t.Fatalf("expected created_at == updated_at, got %v vs %v", activity.CreatedAt, activity.UpdatedAt)
	}
}

func TestLotteryService_ClaimThenFinalize_ExactExhaustion(t *testing.T) {
	service, _, notifier := newTestService(t, 2)
	activity := createTestLottery(t, service, 100, "ana", "ben", "cleo", "dio")

	var claimed int
	for _, name := range []string{"ana", "ben"} {
		result, state, err := service.Claim(t.Context(), activity.ID, name)
		if err != nil {
			t.Fatalf("claim %s: %v", name, err)
		}
		if result.Origin != lottery.OriginManual {
			t.Fatalf("expected manual origin, got %s", result.Origin)
		}
		claimed += result.Coins
		if got := state.AllocatedCoins(); got != claimed {
			t.Fatalf("allocated %d coins after %s, want %d", got, name, claimed)
		}
	}

	// Deadline passes; the watcher (or any observer) finalizes.
	service.now = func() time.Time { return serviceDrawTime.Add(time.Minute) }

	final, err := service.Finalize(t.Context(), activity.ID)
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if !final.Completed {
		t.Fatal("expected completed activity")
	}
	if len(final.Results) != 4 {
		t.Fatalf("expected 4 results, got %d", len(final.Results))
	}
	if got := final.AllocatedCoins(); got != 100 {
		t.Fatalf("allocated %d coins, want exactly 100", got)
	}
	for _, r := range final.Results[2:] {
		if r.Origin != lottery.OriginSystem {
			t.Fatalf("expected system origin for %s, got %s", r.ParticipantName, r.Origin)
		}
	}
	if notifier.count() != 1 {
		t.Fatalf("expected 1 completion notification, got %d", notifier.count())
	}
}

func TestLotteryService_Claim_Rejections(t *testing.T) {
	service, _, _ := newTestService(t, 3)
	activity := createTestLottery(t, service, 100, "ana", "ben")

	if _, _, err := service.Claim(t.Context(), activity.ID, "zoe"); !errors.Is(err, lottery.ErrUnknownParticipant) {
		t.Fatalf("expected ErrUnknownParticipant, got %v", err)
	}

	if _, _, err := service.Claim(t.Context(), activity.ID, "ana"); err != nil {
		t.Fatalf("first claim: %v", err)
	}
	if _, _, err := service.Claim(t.Context(), activity.ID, "ana"); !errors.Is(err, lottery.ErrAlreadyClaimed) {
		t.Fatalf("expected ErrAlreadyClaimed, got %v", err)
	}

	service.now = func() time.Time { return serviceDrawTime }
	if _, _, err := service.Claim(t.Context(), activity.ID, "ben"); !errors.Is(err, lottery.ErrDeadlinePassed) {
		t.Fatalf("expected ErrDeadlinePassed, got %v", err)
	}

	if _, err := service.Finalize(t.Context(), activity.ID); err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if _, _, err := service.Claim(t.Context(), activity.ID, "ben"); !errors.Is(err, lottery.ErrAlreadyCompleted) {
		t.Fatalf("expected ErrAlreadyCompleted after finalize, got %v", err)
	}

	if _, _, err := service.Claim(t.Context(), "missing", "ana"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestLotteryService_Finalize_SecondCallIsNoOp(t *testing.T) {
	service, _, notifier := newTestService(t, 4)
	activity := createTestLottery(t, service, 50, "ana", "ben", "cleo")

	first, err := service.Finalize(t.Context(), activity.ID)
	if err != nil {
		t.Fatalf("first finalize: %v", err)
	}
	second, err := service.Finalize(t.Context(), activity.ID)
	if err != nil {
		t.Fatalf("second finalize: %v", err)
	}

	if len(second.Results) != len(first.Results) {
		t.Fatalf("second finalize grew results: %d vs %d", len(second.Results), len(first.Results))
	}
	if second.AllocatedCoins() != 50 {
		t.Fatalf("allocated %d coins, want 50", second.AllocatedCoins())
	}
	if notifier.count() != 1 {
		t.Fatalf("expected a single completion notification, got %d", notifier.count())
	}
}

func TestLotteryService_FinalizeWithNoManualClaims_CoversEveryone(t *testing.T) {
	service, _, _ := newTestService(t, 5)
	activity := createTestLottery(t, service, 7, "ana", "ben", "cleo", "dio", "eli", "fay", "gus")

	final, err := service.Finalize(t.Context(), activity.ID)
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}

	// 7 coins over 7 participants leaves exactly one coin each.
	for _, r := range final.Results {
		if r.Coins != 1 {
			t.Fatalf("participant %s got %d coins, want 1", r.ParticipantName, r.Coins)
		}
	}
	if len(final.Results) != 7 {
		t.Fatalf("expected 7 results, got %d", len(final.Results))
	}
}

func TestLotteryService_ConcurrentClaims_SameParticipant(t *testing.T) {
	service, _, _ := newTestService(t, 6)
	activity := createTestLottery(t, service, 100, "ana", "ben", "cleo", "dio")

	const racers = 8
	errs := make([]error, racers)

	var wg conc.WaitGroup
	for i := 0; i < racers; i++ {
		i := i
		wg.Go(func() {
			_, _, errs[i] = service.Claim(context.Background(), activity.ID, "ana")
		})
	}
	wg.Wait()

	var succeeded int
	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, lottery.ErrAlreadyClaimed), errors.Is(err, ErrConflict):
		default:
			t.Fatalf("unexpected racing claim error: %v", err)
		}
	}
	if succeeded != 1 {
		t.Fatalf("expected exactly one winning claim, got %d", succeeded)
	}

	state, err := service.Get(t.Context(), activity.ID)
	if err != nil {
		t.Fatalf("get lottery: %v", err)
	}
	if len(state.Results) != 1 {
		t.Fatalf("expected a single recorded result, got %d", len(state.Results))
	}
}

func TestLotteryService_ConcurrentClaims_AllParticipants(t *testing.T) {
	service, _, _ := newTestService(t, 7)

	participants := []string{"ana", "ben", "cleo", "dio", "eli", "fay"}
	activity := createTestLottery(t, service, 200, participants...)

	var wg conc.WaitGroup
	errs := make([]error, len(participants))
	for i, name := range participants {
		i, name := i, name
		wg.Go(func() {
			_, _, errs[i] = service.Claim(context.Background(), activity.ID, name)
		})
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("claim %s: %v", participants[i], err)
		}
	}

	final, err := service.Finalize(t.Context(), activity.ID)
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if got := final.AllocatedCoins(); got != 200 {
		t.Fatalf("allocated %d coins, want 200", got)
	}
	if err := final.CheckInvariants(); err != nil {
		t.Fatalf("final invariants: %v", err)
	}
}
