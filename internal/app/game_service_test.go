package app_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"ifrs17-training-service/internal/app"
	"ifrs17-training-service/internal/domain"
	"ifrs17-training-service/internal/infra/memory"
)

// Every question in a module shares the same correct index, so a test can
// answer correctly without knowing the shuffled order.
func testCatalog() domain.Catalog {
	return domain.Catalog{Modules: []domain.Module{
		{
			ID:    0,
			Title: "Basics",
			Questions: []domain.Question{
				{Text: "Q0", Options: []string{"a", "b", "c", "d"}, Correct: 1, Explanation: "E0"},
				{Text: "Q1", Options: []string{"a", "b", "c", "d"}, Correct: 1, Explanation: "E1"},
				{Text: "Q2", Options: []string{"a", "b", "c", "d"}, Correct: 1, Explanation: "E2"},
			},
		},
		{
			ID:    1,
			Title: "Measurement",
			Questions: []domain.Question{
				{Text: "Q0", Options: []string{"a", "b", "c"}, Correct: 0, Explanation: "E0"},
				{Text: "Q1", Options: []string{"a", "b", "c"}, Correct: 0, Explanation: "E1"},
			},
		},
	}}
}

type testEnv struct {
	service *app.GameService
	local   *memory.SnapshotStore
	remote  *memory.SnapshotStore
	results *recordingSink
	gateway *app.Gateway
}

func newTestEnv(opts app.Options) *testEnv {
	if opts.Seed == 0 {
		opts.Seed = 1
	}
	local := memory.NewSnapshotStore()
	remote := memory.NewSnapshotStore()
	gateway := app.NewGateway(local, remote)
	catalog := memory.NewCatalogRepository(memory.NewStaticCatalogLoader(testCatalog()), time.Minute)
	results := &recordingSink{}
	service := app.NewGameService(memory.NewSessionRegistry(), catalog, gateway, results, nil, opts)
	return &testEnv{service: service, local: local, remote: remote, results: results, gateway: gateway}
}

// recordingSink is safe for the fire-and-forget submission goroutine.
type recordingSink struct {
	mu         sync.Mutex
	identities []domain.Identity
	results    []domain.ModuleResult
}

func (s *recordingSink) SubmitModuleResult(_ context.Context, identity domain.Identity, result domain.ModuleResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.identities = append(s.identities, identity)
	s.results = append(s.results, result)
	return nil
}

func (s *recordingSink) recorded() []domain.ModuleResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.ModuleResult(nil), s.results...)
}

// waitFor polls until cond holds; submissions run on their own goroutine.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("condition not met within deadline")
}

func answerCorrectly(t *testing.T, env *testEnv, id domain.Identity, correct int) domain.AnswerOutcome {
	t.Helper()
	out, err := env.service.SubmitAnswer(context.Background(), id, correct)
	if err != nil {
		t.Fatalf("submit answer: %v", err)
	}
	if !out.Correct {
		t.Fatalf("expected correct answer, got %+v", out)
	}
	return out
}

func contains(ids []int, id int) bool {
	for _, have := range ids {
		if have == id {
			return true
		}
	}
	return false
}

func drainEvents(events <-chan domain.Event) []domain.Event {
	var collected []domain.Event
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return collected
			}
			collected = append(collected, ev)
		default:
			return collected
		}
	}
}

func hasEvent(events []domain.Event, name domain.EventName) bool {
	for _, ev := range events {
		if ev.Name == name {
			return true
		}
	}
	return false
}

func TestGuestPerfectModuleRun(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(app.Options{DeferredAuth: true})
	guest := domain.Identity{ID: "guest_1", Name: "Guest", Guest: true}

	if _, err := env.service.Attach(ctx, guest); err != nil {
		t.Fatalf("attach: %v", err)
	}
	events, cancel, err := env.service.Subscribe(guest)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer cancel()

	if _, err := env.service.StartModule(ctx, guest, 0); err != nil {
		t.Fatalf("start module: %v", err)
	}

	out := answerCorrectly(t, env, guest, 1)
	if out.Awarded != 10 {
		t.Fatalf("first answer should award 10, got %d", out.Awarded)
	}
	out = answerCorrectly(t, env, guest, 1)
	if out.Awarded != 20 {
		t.Fatalf("second answer should award 20, got %d", out.Awarded)
	}
	out = answerCorrectly(t, env, guest, 1)
	if out.Awarded != 30 {
		t.Fatalf("third answer should award 30, got %d", out.Awarded)
	}
	if !out.ModuleComplete {
		t.Fatalf("third answer should complete the module")
	}

	snap, err := env.service.Snapshot(guest)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if snap.Score != 60 {
		t.Fatalf("expected score 60, got %d", snap.Score)
	}
	if snap.PerfectModules != 1 {
		t.Fatalf("expected 1 perfect module, got %d", snap.PerfectModules)
	}
	if !contains(snap.CompletedModules, 0) {
		t.Fatalf("module 0 should be completed: %v", snap.CompletedModules)
	}
	if contains(snap.UnlockedModules, 1) {
		t.Fatalf("module 1 must stay locked for a guest: %v", snap.UnlockedModules)
	}
	if snap.PendingCompletion == nil || snap.PendingCompletion.ModuleID != 0 {
		t.Fatalf("expected pending completion for module 0, got %+v", snap.PendingCompletion)
	}
	if !snap.PendingCompletion.Perfect {
		t.Fatalf("pending completion should be perfect")
	}

	collected := drainEvents(events)
	if !hasEvent(collected, domain.EventModuleCompleted) {
		t.Fatalf("missing module-completed event: %v", collected)
	}
	if !hasEvent(collected, domain.EventAuthPromptShown) {
		t.Fatalf("missing auth prompt event: %v", collected)
	}
	if got := env.results.recorded(); len(got) != 0 {
		t.Fatalf("guest completions must not reach the leaderboard: %+v", got)
	}
}

func TestIncorrectAnswerResetsCombo(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(app.Options{DeferredAuth: true})
	guest := domain.Identity{ID: "guest_2", Guest: true}

	if _, err := env.service.Attach(ctx, guest); err != nil {
		t.Fatalf("attach: %v", err)
	}
	if _, err := env.service.StartModule(ctx, guest, 0); err != nil {
		t.Fatalf("start module: %v", err)
	}

	answerCorrectly(t, env, guest, 1)
	out, err := env.service.SubmitAnswer(ctx, guest, 0)
	if err != nil {
		t.Fatalf("submit wrong answer: %v", err)
	}
	if out.Correct || out.Awarded != 0 {
		t.Fatalf("wrong answer must award nothing, got %+v", out)
	}
	if out.Streak != 0 || out.Combo != 0 {
		t.Fatalf("wrong answer must reset streak and combo, got %+v", out)
	}
	if out.CorrectOption != 1 {
		t.Fatalf("outcome should reveal the correct option, got %d", out.CorrectOption)
	}

	out = answerCorrectly(t, env, guest, 1)
	if out.Awarded != 10 {
		t.Fatalf("answer after combo reset should award 10, got %d", out.Awarded)
	}

	snap, _ := env.service.Snapshot(guest)
	if snap.Score != 20 {
		t.Fatalf("expected score 20, got %d", snap.Score)
	}
	if snap.PerfectModules != 0 {
		t.Fatalf("imperfect module must not count as perfect")
	}
}

func TestLevelUpWrapsXP(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(app.Options{})
	user := domain.Identity{ID: "u1", Name: "Alice"}

	if _, err := env.service.Attach(ctx, user); err != nil {
		t.Fatalf("attach: %v", err)
	}
	if _, err := env.service.StartModule(ctx, user, 0); err != nil {
		t.Fatalf("start module 0: %v", err)
	}
	for i := 0; i < 3; i++ {
		answerCorrectly(t, env, user, 1)
	}

	// Authenticated completion unlocks the next module.
	snap, _ := env.service.Snapshot(user)
	if !contains(snap.UnlockedModules, 1) {
		t.Fatalf("module 1 should unlock after completing module 0: %v", snap.UnlockedModules)
	}

	if _, err := env.service.StartModule(ctx, user, 1); err != nil {
		t.Fatalf("start module 1: %v", err)
	}
	// Fourth correct answer overall: 75 + 25 = 100 XP crosses level 1's
	// threshold exactly.
	out := answerCorrectly(t, env, user, 0)
	if !out.LeveledUp || out.Level != 2 {
		t.Fatalf("expected level up to 2, got %+v", out)
	}
	if out.XP != 0 {
		t.Fatalf("XP should wrap to 0 at an exact threshold, got %d", out.XP)
	}
}

func TestGuestBlockedFromLaterModules(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(app.Options{DeferredAuth: true})
	guest := domain.Identity{ID: "guest_3", Guest: true}

	if _, err := env.service.Attach(ctx, guest); err != nil {
		t.Fatalf("attach: %v", err)
	}
	events, cancel, err := env.service.Subscribe(guest)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer cancel()

	if _, err := env.service.StartModule(ctx, guest, 1); err != domain.ErrAuthRequired {
		t.Fatalf("expected ErrAuthRequired, got %v", err)
	}
	if !hasEvent(drainEvents(events), domain.EventAuthPromptShown) {
		t.Fatalf("gated start should surface the auth prompt")
	}
}

func TestLockedModuleForAuthenticatedUser(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(app.Options{})
	user := domain.Identity{ID: "u2"}

	if _, err := env.service.Attach(ctx, user); err != nil {
		t.Fatalf("attach: %v", err)
	}
	if _, err := env.service.StartModule(ctx, user, 1); err != domain.ErrModuleLocked {
		t.Fatalf("expected ErrModuleLocked, got %v", err)
	}
	if _, err := env.service.StartModule(ctx, user, 99); err != domain.ErrModuleNotFound {
		t.Fatalf("expected ErrModuleNotFound, got %v", err)
	}
}

func TestResubmitIsNoOp(t *testing.T) {
	ctx := context.Background()
	// Non-zero feedback delay keeps the current question in place after the
	// first submission.
	env := newTestEnv(app.Options{FeedbackDelay: time.Minute, DeferredAuth: true})
	guest := domain.Identity{ID: "guest_4", Guest: true}

	if _, err := env.service.Attach(ctx, guest); err != nil {
		t.Fatalf("attach: %v", err)
	}
	if _, err := env.service.StartModule(ctx, guest, 0); err != nil {
		t.Fatalf("start module: %v", err)
	}

	first := answerCorrectly(t, env, guest, 1)
	second, err := env.service.SubmitAnswer(ctx, guest, 0)
	if err != nil {
		t.Fatalf("resubmit: %v", err)
	}
	if !second.Correct {
		t.Fatalf("resubmission must report the recorded outcome, got %+v", second)
	}
	if second.Awarded != 0 {
		t.Fatalf("resubmission must not award points, got %d", second.Awarded)
	}
	if second.Score != first.Score || second.Streak != first.Streak {
		t.Fatalf("resubmission must not change totals: %+v vs %+v", first, second)
	}
}

func TestSkipOnLastQuestionCompletesModule(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(app.Options{})
	user := domain.Identity{ID: "u3"}

	if _, err := env.service.Attach(ctx, user); err != nil {
		t.Fatalf("attach: %v", err)
	}
	if _, err := env.service.StartModule(ctx, user, 0); err != nil {
		t.Fatalf("start module: %v", err)
	}
	answerCorrectly(t, env, user, 1)
	answerCorrectly(t, env, user, 1)

	out, err := env.service.UsePowerUp(ctx, user, domain.PowerUpSkip)
	if err != nil {
		t.Fatalf("skip: %v", err)
	}
	if !out.Skipped {
		t.Fatalf("skip outcome not flagged: %+v", out)
	}
	if out.Remaining != 1 {
		t.Fatalf("expected 1 skip left, got %d", out.Remaining)
	}

	snap, _ := env.service.Snapshot(user)
	if !contains(snap.CompletedModules, 0) {
		t.Fatalf("skip on the last question should complete the module")
	}
	if snap.PerfectModules != 0 {
		t.Fatalf("a skipped question forfeits the perfect bonus")
	}
	if snap.Streak != 0 || snap.Combo != 0 {
		t.Fatalf("skip must reset streak and combo: %+v", snap)
	}

	// The skipped question is recorded with no selection.
	var skipped *domain.AnswerRecord
	for _, rec := range snap.AnsweredQuestions {
		if rec.Answered && rec.Selected == nil {
			r := rec
			skipped = &r
		}
	}
	if skipped == nil || skipped.Correct {
		t.Fatalf("expected a recorded skip with nil selection, got %+v", snap.AnsweredQuestions)
	}

	waitFor(t, func() bool { return len(env.results.recorded()) == 1 })
	result := env.results.recorded()[0]
	if result.ModuleID != 0 || result.Perfect {
		t.Fatalf("unexpected module result: %+v", result)
	}
	if result.QuestionsAnswered != 3 || result.QuestionsCorrect != 2 {
		t.Fatalf("expected 3 answered / 2 correct, got %+v", result)
	}
}

func TestEliminateAndHint(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(app.Options{FeedbackDelay: time.Minute, DeferredAuth: true})
	guest := domain.Identity{ID: "guest_5", Guest: true}

	if _, err := env.service.Attach(ctx, guest); err != nil {
		t.Fatalf("attach: %v", err)
	}
	if _, err := env.service.StartModule(ctx, guest, 0); err != nil {
		t.Fatalf("start module: %v", err)
	}

	out, err := env.service.UsePowerUp(ctx, guest, domain.PowerUpEliminate)
	if err != nil {
		t.Fatalf("eliminate: %v", err)
	}
	if len(out.Eliminated) != 2 {
		t.Fatalf("eliminate should remove two options, got %v", out.Eliminated)
	}
	for _, idx := range out.Eliminated {
		if idx == 1 {
			t.Fatalf("eliminate must never remove the correct option: %v", out.Eliminated)
		}
		if idx < 0 || idx > 3 {
			t.Fatalf("eliminated index out of range: %v", out.Eliminated)
		}
	}

	hint, err := env.service.UsePowerUp(ctx, guest, domain.PowerUpHint)
	if err != nil {
		t.Fatalf("hint: %v", err)
	}
	if hint.Hint == "" {
		t.Fatalf("hint outcome should carry display text")
	}

	// Hints are capped at 5 per ledger; four more exhaust them.
	for i := 0; i < 4; i++ {
		if _, err := env.service.UsePowerUp(ctx, guest, domain.PowerUpHint); err != nil {
			t.Fatalf("hint %d: %v", i+2, err)
		}
	}
	if _, err := env.service.UsePowerUp(ctx, guest, domain.PowerUpHint); err != domain.ErrPowerUpExhausted {
		t.Fatalf("expected ErrPowerUpExhausted, got %v", err)
	}
}

func TestResetRestoresInitialState(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(app.Options{DeferredAuth: true})
	guest := domain.Identity{ID: "guest_6", Guest: true}

	if _, err := env.service.Attach(ctx, guest); err != nil {
		t.Fatalf("attach: %v", err)
	}
	if _, err := env.service.StartModule(ctx, guest, 0); err != nil {
		t.Fatalf("start module: %v", err)
	}
	answerCorrectly(t, env, guest, 1)

	if err := env.service.Reset(ctx, guest); err != nil {
		t.Fatalf("reset: %v", err)
	}
	snap, _ := env.service.Snapshot(guest)
	if snap.Score != 0 || snap.Level != 1 || snap.XP != 0 {
		t.Fatalf("reset should restore initial totals, got %+v", snap)
	}
	if len(snap.UnlockedModules) != 1 || snap.UnlockedModules[0] != 0 {
		t.Fatalf("reset should leave only module 0 unlocked: %v", snap.UnlockedModules)
	}
	if len(snap.CompletedModules) != 0 || len(snap.Achievements) != 0 {
		t.Fatalf("reset should clear completions and achievements: %+v", snap)
	}

	// The persisted copies are gone too: a fresh attach starts clean.
	env.gateway.Flush()
	env.service.Detach(guest)
	reattached, err := env.service.Attach(ctx, guest)
	if err != nil {
		t.Fatalf("reattach: %v", err)
	}
	if reattached.Score != 0 || len(reattached.CompletedModules) != 0 {
		t.Fatalf("reset state must survive reattach, got %+v", reattached)
	}
}

func TestAttachRestoresRemoteProgress(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(app.Options{})
	user := domain.Identity{ID: "u4", Name: "Carol"}

	seed := domain.Snapshot{
		Identity:         user,
		Score:            50,
		Level:            2,
		UnlockedModules:  []int{0, 1},
		CompletedModules: []int{0},
	}
	if err := env.remote.Save(ctx, seed); err != nil {
		t.Fatalf("seed remote: %v", err)
	}

	snap, err := env.service.Attach(ctx, user)
	if err != nil {
		t.Fatalf("attach: %v", err)
	}
	if snap.Score != 50 || snap.Level != 2 {
		t.Fatalf("expected restored score 50 / level 2, got %+v", snap)
	}
	if !contains(snap.CompletedModules, 0) {
		t.Fatalf("restored completion missing: %v", snap.CompletedModules)
	}
	if _, err := env.service.StartModule(ctx, user, 1); err != nil {
		t.Fatalf("module 1 should start for restored progress: %v", err)
	}
}

func TestAchievementsOneAtATime(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(app.Options{DeferredAuth: true})
	guest := domain.Identity{ID: "guest_7", Guest: true}

	if _, err := env.service.Attach(ctx, guest); err != nil {
		t.Fatalf("attach: %v", err)
	}
	if _, err := env.service.StartModule(ctx, guest, 0); err != nil {
		t.Fatalf("start module: %v", err)
	}

	answerCorrectly(t, env, guest, 1)
	snap, _ := env.service.Snapshot(guest)
	if !contains(snap.Achievements, 1) {
		t.Fatalf("first points should earn achievement 1: %v", snap.Achievements)
	}

	answerCorrectly(t, env, guest, 1)
	answerCorrectly(t, env, guest, 1)
	// Completion qualifies both Module Master and Perfect Score, but only the
	// first surfaces per evaluation.
	snap, _ = env.service.Snapshot(guest)
	if !contains(snap.Achievements, 3) {
		t.Fatalf("completion should earn achievement 3: %v", snap.Achievements)
	}
	if contains(snap.Achievements, 5) {
		t.Fatalf("only one achievement may surface per evaluation: %v", snap.Achievements)
	}
}

func TestMigratePromotesGuestProgress(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(app.Options{DeferredAuth: true})
	guest := domain.Identity{ID: "guest_8", Guest: true}
	user := domain.Identity{ID: "u5", Name: "Dana"}

	if _, err := env.service.Attach(ctx, guest); err != nil {
		t.Fatalf("attach guest: %v", err)
	}
	if _, err := env.service.StartModule(ctx, guest, 0); err != nil {
		t.Fatalf("start module: %v", err)
	}
	for i := 0; i < 3; i++ {
		answerCorrectly(t, env, guest, 1)
	}

	snap, err := env.service.Migrate(ctx, guest, user)
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if snap.Identity.ID != user.ID {
		t.Fatalf("migrated snapshot belongs to %s", snap.Identity.ID)
	}
	if snap.Score != 60 {
		t.Fatalf("guest score should carry over, got %d", snap.Score)
	}
	if !contains(snap.CompletedModules, 0) || !contains(snap.UnlockedModules, 1) {
		t.Fatalf("migration should complete module 0 and unlock module 1: %+v", snap)
	}
	if snap.PendingCompletion != nil {
		t.Fatalf("pending marker must clear on migration")
	}

	// Guest data is discarded on both paths.
	env.gateway.Flush()
	if _, err := env.local.Load(ctx, guest); err != domain.ErrSnapshotNotFound {
		t.Fatalf("guest local data should be cleared, got %v", err)
	}
	if _, err := env.service.Snapshot(guest); err != domain.ErrSessionNotFound {
		t.Fatalf("guest session should be gone, got %v", err)
	}

	// Module 1 is startable for the new identity.
	if _, err := env.service.StartModule(ctx, user, 1); err != nil {
		t.Fatalf("start module 1 after migration: %v", err)
	}
}

func TestMigrateRemoteWins(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(app.Options{DeferredAuth: true})
	guest := domain.Identity{ID: "guest_9", Guest: true}
	user := domain.Identity{ID: "u6", Name: "Eve"}

	remote := domain.Snapshot{
		Identity:         user,
		Score:            500,
		Level:            4,
		UnlockedModules:  []int{0, 1},
		CompletedModules: []int{0},
	}
	if err := env.remote.Save(ctx, remote); err != nil {
		t.Fatalf("seed remote: %v", err)
	}

	if _, err := env.service.Attach(ctx, guest); err != nil {
		t.Fatalf("attach guest: %v", err)
	}
	if _, err := env.service.StartModule(ctx, guest, 0); err != nil {
		t.Fatalf("start module: %v", err)
	}
	answerCorrectly(t, env, guest, 1)

	snap, err := env.service.Migrate(ctx, guest, user)
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if snap.Score != 500 || snap.Level != 4 {
		t.Fatalf("remote progress must win, got %+v", snap)
	}
}

func TestDismissAuthPromptKeepsPending(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(app.Options{DeferredAuth: true})
	guest := domain.Identity{ID: "guest_10", Guest: true}

	if _, err := env.service.Attach(ctx, guest); err != nil {
		t.Fatalf("attach: %v", err)
	}
	if _, err := env.service.StartModule(ctx, guest, 0); err != nil {
		t.Fatalf("start module: %v", err)
	}
	for i := 0; i < 3; i++ {
		answerCorrectly(t, env, guest, 1)
	}

	env.service.DismissAuthPrompt(ctx, guest)
	snap, _ := env.service.Snapshot(guest)
	if snap.PendingCompletion == nil {
		t.Fatalf("dismiss must keep the pending completion recorded")
	}
	// A later gated start re-prompts.
	if _, err := env.service.StartModule(ctx, guest, 1); err != domain.ErrAuthRequired {
		t.Fatalf("expected re-prompt on gated start, got %v", err)
	}
}

func TestSubmitWithoutSessionOrModule(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(app.Options{})

	if _, err := env.service.SubmitAnswer(ctx, domain.Identity{ID: "nobody"}, 0); err != domain.ErrSessionNotFound {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}

	user := domain.Identity{ID: "u7"}
	if _, err := env.service.Attach(ctx, user); err != nil {
		t.Fatalf("attach: %v", err)
	}
	if _, err := env.service.SubmitAnswer(ctx, user, 0); err != domain.ErrNoActiveModule {
		t.Fatalf("expected ErrNoActiveModule, got %v", err)
	}
	if _, err := env.service.UsePowerUp(ctx, user, domain.PowerUpHint); err != domain.ErrNoActiveModule {
		t.Fatalf("expected ErrNoActiveModule, got %v", err)
	}
}

// unreachableStore accepts writes but refuses every load, like a remote
// store behind a network outage.
type unreachableStore struct {
	*memory.SnapshotStore
}

func (s *unreachableStore) Load(context.Context, domain.Identity) (domain.Snapshot, error) {
	return domain.Snapshot{}, errors.New("remote store unreachable")
}

func TestMigrateRemoteProbeFailure(t *testing.T) {
	ctx := context.Background()
	local := memory.NewSnapshotStore()
	seeded := memory.NewSnapshotStore()
	gateway := app.NewGateway(local, &unreachableStore{SnapshotStore: seeded})
	catalog := memory.NewCatalogRepository(memory.NewStaticCatalogLoader(testCatalog()), time.Minute)
	service := app.NewGameService(memory.NewSessionRegistry(), catalog, gateway, &recordingSink{}, nil, app.Options{DeferredAuth: true, Seed: 1})

	user := domain.Identity{ID: "u7", Name: "Finn"}
	if err := seeded.Save(ctx, domain.Snapshot{
		Identity:         user,
		Score:            500,
		Level:            4,
		UnlockedModules:  []int{0, 1},
		CompletedModules: []int{0},
	}); err != nil {
		t.Fatalf("seed remote: %v", err)
	}

	guest := domain.Identity{ID: "guest_11", Guest: true}
	if _, err := service.Attach(ctx, guest); err != nil {
		t.Fatalf("attach guest: %v", err)
	}
	if _, err := service.StartModule(ctx, guest, 0); err != nil {
		t.Fatalf("start module: %v", err)
	}
	if out, err := service.SubmitAnswer(ctx, guest, 1); err != nil || !out.Correct {
		t.Fatalf("submit answer: %v %+v", err, out)
	}

	// An unreachable remote is not proof it holds nothing: the guest run is
	// discarded rather than promoted over possibly real progress.
	snap, err := service.Migrate(ctx, guest, user)
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if snap.Score != 0 || contains(snap.CompletedModules, 0) {
		t.Fatalf("guest progress must not be promoted over a failed probe, got %+v", snap)
	}
	gateway.Flush()
	stored, err := seeded.Load(ctx, user)
	if err != nil {
		t.Fatalf("load seeded remote: %v", err)
	}
	if stored.Score != 500 || stored.Level != 4 {
		t.Fatalf("remote progress was overwritten during migration: %+v", stored)
	}
}

func TestSkipDuringFeedbackDelay(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(app.Options{DeferredAuth: true, FeedbackDelay: 50 * time.Millisecond})
	guest := domain.Identity{ID: "guest_12", Guest: true}

	if _, err := env.service.Attach(ctx, guest); err != nil {
		t.Fatalf("attach: %v", err)
	}
	if _, err := env.service.StartModule(ctx, guest, 0); err != nil {
		t.Fatalf("start module: %v", err)
	}
	answerCorrectly(t, env, guest, 1)

	// Skip while the feedback delay is still ticking: the question is
	// already answered, so the skip changes nothing and costs nothing.
	out, err := env.service.UsePowerUp(ctx, guest, domain.PowerUpSkip)
	if err != nil {
		t.Fatalf("use skip: %v", err)
	}
	if out.Skipped || out.Remaining != 2 {
		t.Fatalf("skip on an answered question must be a free no-op, got %+v", out)
	}

	waitFor(t, func() bool {
		snap, err := env.service.Snapshot(guest)
		return err == nil && snap.CurrentQuestion == 1
	})
	time.Sleep(100 * time.Millisecond)
	snap, err := env.service.Snapshot(guest)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if snap.CurrentQuestion != 1 {
		t.Fatalf("exactly one advance expected, at question %d", snap.CurrentQuestion)
	}
	if snap.Streak != 1 || snap.Combo != 1 {
		t.Fatalf("correct-answer streak must survive the ignored skip, got streak=%d combo=%d", snap.Streak, snap.Combo)
	}
	if len(snap.AnsweredQuestions) != 1 {
		t.Fatalf("only the answered question should be recorded: %+v", snap.AnsweredQuestions)
	}

	// On the fresh question the skip applies normally.
	out, err = env.service.UsePowerUp(ctx, guest, domain.PowerUpSkip)
	if err != nil {
		t.Fatalf("use skip: %v", err)
	}
	if !out.Skipped || out.Remaining != 1 {
		t.Fatalf("skip should consume and apply on an unanswered question, got %+v", out)
	}
	snap, _ = env.service.Snapshot(guest)
	if snap.CurrentQuestion != 2 || snap.Streak != 0 {
		t.Fatalf("skip should advance and reset the streak, got %+v", snap)
	}
}
