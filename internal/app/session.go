package app

import (
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"time"

	"ifrs17-training-service/internal/domain"
)

const xpPerCorrect = 25

const hintText = "Look for the option that best aligns with IFRS 17 principles"

// Options tunes session timing and policy. Zero delays make transitions
// synchronous, which the tests rely on.
type Options struct {
	FeedbackDelay    time.Duration
	AuthPromptDelay  time.Duration
	AutoSaveInterval time.Duration
	DeferredAuth     bool
	Clock            func() time.Time
	Seed             int64
}

// sessionHooks are the session's outbound edges: persistence, telemetry, and
// the leaderboard sink. All are optional and must not block for long.
type sessionHooks struct {
	save   func(domain.Snapshot)
	clear  func(domain.Identity)
	result func(domain.Identity, domain.ModuleResult)
	event  func(domain.Event)
}

// Session owns one identity's progression state. Every transition is a
// run-to-completion handler under mu; timer callbacks re-enter through the
// same lock and carry an attempt generation id so a stale timer can never
// advance a later attempt.
type Session struct {
	identity domain.Identity
	catalog  domain.Catalog

	mu              sync.Mutex
	score           int
	streak          int
	combo           int
	level           int
	xp              int
	currentModule   int
	currentQuestion int
	unlocked        map[int]bool
	completed       map[int]bool
	perfectModules  int
	answered        map[string]domain.AnswerRecord
	earned          []int
	powerUps        Ledger
	views           map[int][]domain.ShuffledQuestion
	pending         *domain.PendingCompletion

	attemptActive bool
	attemptID     uint64
	moduleScore   int
	perfectModule bool
	attemptStart  time.Time
	elapsedSec    int

	dirty        bool
	closed       bool
	advanceTimer *time.Timer
	promptTimer  *time.Timer
	tickerStop   chan struct{}
	autosaveStop chan struct{}

	subscribers map[chan domain.Event]struct{}

	clock func() time.Time
	rng   *rand.Rand
	opts  Options
	hooks sessionHooks
}

func newSession(identity domain.Identity, catalog domain.Catalog, opts Options, hooks sessionHooks) *Session {
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	seed := opts.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	s := &Session{
		identity:    identity,
		catalog:     catalog,
		subscribers: make(map[chan domain.Event]struct{}),
		clock:       opts.Clock,
		rng:         rand.New(rand.NewSource(seed)),
		opts:        opts,
		hooks:       hooks,
	}
	s.initStateLocked()
	if opts.AutoSaveInterval > 0 {
		s.autosaveStop = make(chan struct{})
		go s.autosaveLoop(opts.AutoSaveInterval, s.autosaveStop)
	}
	return s
}

// initStateLocked resets every progression field to its initial value.
func (s *Session) initStateLocked() {
	s.score = 0
	s.streak = 0
	s.combo = 0
	s.level = 1
	s.xp = 0
	s.currentModule = 0
	s.currentQuestion = 0
	s.unlocked = map[int]bool{0: true}
	s.completed = make(map[int]bool)
	s.perfectModules = 0
	s.answered = make(map[string]domain.AnswerRecord)
	s.earned = nil
	s.powerUps = NewLedger()
	s.views = make(map[int][]domain.ShuffledQuestion)
	s.pending = nil
	s.attemptActive = false
	s.moduleScore = 0
	s.perfectModule = true
	s.attemptStart = time.Time{}
	s.elapsedSec = 0
	s.dirty = false
}

func answerKey(moduleID, position int) string {
	return fmt.Sprintf("%d-%d", moduleID, position)
}

// StartModule begins a fresh attempt at moduleID. Already-completed modules
// and duplicate taps while an attempt is running are silent no-ops. Guests
// under deferred auth get an auth prompt instead of module 1+.
func (s *Session) StartModule(moduleID int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return domain.ErrSessionNotFound
	}
	mod, ok := s.catalog.Module(moduleID)
	if !ok {
		return domain.ErrModuleNotFound
	}
	if s.completed[moduleID] || s.attemptActive {
		return nil
	}
	if s.identity.Guest && s.opts.DeferredAuth && moduleID != 0 {
		s.emitLocked(domain.EventAuthPromptShown, map[string]any{
			"trigger":  "module-access-attempt",
			"moduleId": moduleID,
		})
		return domain.ErrAuthRequired
	}
	if !s.unlocked[moduleID] {
		return domain.ErrModuleLocked
	}

	for i := range mod.Questions {
		delete(s.answered, answerKey(moduleID, i))
	}
	s.views[moduleID] = shuffleQuestions(s.rng, mod.Questions)
	s.moduleScore = 0
	s.perfectModule = true
	s.powerUps = s.powerUps.Refill()
	s.currentModule = moduleID
	s.currentQuestion = 0
	s.attemptID++
	s.attemptActive = true
	s.attemptStart = s.clock()
	s.elapsedSec = 0
	s.startTickerLocked()
	s.emitLocked(domain.EventModuleStarted, map[string]any{"moduleId": moduleID})
	s.dirty = true
	s.saveLocked()
	return nil
}

// SubmitAnswer scores the selected option for the current question.
// Re-submitting an already-answered question changes nothing.
func (s *Session) SubmitAnswer(selected int) (domain.AnswerOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return domain.AnswerOutcome{}, domain.ErrSessionNotFound
	}
	if !s.attemptActive {
		return domain.AnswerOutcome{}, domain.ErrNoActiveModule
	}

	view := s.viewLocked(s.currentModule)
	key := answerKey(s.currentModule, s.currentQuestion)
	if rec, ok := s.answered[key]; ok && rec.Answered {
		return domain.AnswerOutcome{
			Correct: rec.Correct,
			Score:   s.score,
			Streak:  s.streak,
			Combo:   s.combo,
			Level:   s.level,
			XP:      s.xp,
		}, nil
	}

	q := view[s.currentQuestion]
	correct := selected == q.Correct
	sel := selected
	s.answered[key] = domain.AnswerRecord{Answered: true, Selected: &sel, Correct: correct}

	awarded := 0
	leveledUp := false
	if correct {
		awarded = 10 * (s.combo + 1)
		s.score += awarded
		s.moduleScore += awarded
		s.streak++
		s.combo++
		total := s.xp + xpPerCorrect
		if total >= s.level*100 {
			// Single-step level-up: the wrap uses the pre-increment level's
			// threshold, and at most one level is gained per answer.
			s.xp = total % (s.level * 100)
			s.level++
			leveledUp = true
			s.emitLocked(domain.EventLevelUp, map[string]any{"level": s.level})
		} else {
			s.xp = total
		}
	} else {
		s.streak = 0
		s.combo = 0
		s.perfectModule = false
	}

	s.evaluateAchievementsLocked()
	s.dirty = true
	s.saveLocked()

	lastQuestion := s.currentQuestion == len(view)-1
	s.scheduleAdvanceLocked()

	return domain.AnswerOutcome{
		Correct:        correct,
		Awarded:        awarded,
		Explanation:    q.Explanation,
		CorrectOption:  q.Correct,
		Score:          s.score,
		Streak:         s.streak,
		Combo:          s.combo,
		Level:          s.level,
		XP:             s.xp,
		LeveledUp:      leveledUp,
		ModuleComplete: lastQuestion,
	}, nil
}

// UsePowerUp consumes one use of kind and applies its effect. Skip records
// the current question as missed and advances without the feedback delay;
// skipping an already-answered question changes nothing.
func (s *Session) UsePowerUp(kind domain.PowerUpKind) (domain.PowerUpOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return domain.PowerUpOutcome{}, domain.ErrSessionNotFound
	}
	if !s.attemptActive {
		return domain.PowerUpOutcome{}, domain.ErrNoActiveModule
	}
	if !s.powerUps.CanUse(kind) {
		return domain.PowerUpOutcome{}, domain.ErrPowerUpExhausted
	}

	view := s.viewLocked(s.currentModule)
	q := view[s.currentQuestion]
	key := answerKey(s.currentModule, s.currentQuestion)
	if kind == domain.PowerUpSkip {
		// The current question was already answered and the feedback delay
		// is ticking towards the advance. Skipping now changes nothing, the
		// same way re-submitting an answer changes nothing.
		if rec, ok := s.answered[key]; ok && rec.Answered {
			return domain.PowerUpOutcome{Kind: kind, Remaining: s.powerUps[kind]}, nil
		}
	}
	s.powerUps = s.powerUps.Consume(kind)
	out := domain.PowerUpOutcome{Kind: kind, Remaining: s.powerUps[kind]}

	switch kind {
	case domain.PowerUpSkip:
		s.answered[key] = domain.AnswerRecord{Answered: true, Selected: nil, Correct: false}
		s.streak = 0
		s.combo = 0
		s.perfectModule = false
		out.Skipped = true
		s.advanceLocked()
	case domain.PowerUpHint:
		out.Hint = hintText
	case domain.PowerUpEliminate:
		wrong := make([]int, 0, len(q.Options)-1)
		for i := range q.Options {
			if i != q.Correct {
				wrong = append(wrong, i)
			}
		}
		s.rng.Shuffle(len(wrong), func(i, j int) { wrong[i], wrong[j] = wrong[j], wrong[i] })
		if len(wrong) > 2 {
			wrong = wrong[:2]
		}
		out.Eliminated = wrong
	}

	s.dirty = true
	s.saveLocked()
	return out, nil
}

// Reset restores the initial progression state and requests deletion of the
// persisted copies. Atomic: no partial reset is observable.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.attemptID++
	s.cancelTimersLocked()
	s.stopTickerLocked()
	s.initStateLocked()
	s.emitLocked(domain.EventProgressReset, nil)
	if s.hooks.clear != nil {
		s.hooks.clear(s.identity)
	}
}

// DismissAuthPrompt records that the guest declined sign-up. The pending
// completion stays recorded so a later gated start re-prompts.
func (s *Session) DismissAuthPrompt() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.pending == nil {
		return
	}
	if s.promptTimer != nil {
		s.promptTimer.Stop()
		s.promptTimer = nil
	}
	s.emitLocked(domain.EventAuthPromptDismissed, map[string]any{"moduleId": s.pending.ModuleID})
}

// Snapshot copies the full progression state for persistence or display.
func (s *Session) Snapshot() domain.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// ElapsedSeconds is the attempt timer's display value.
func (s *Session) ElapsedSeconds() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.elapsedSec
}

// Subscribe returns a channel of progression events. The caller must invoke
// the cancel function to avoid leaks.
func (s *Session) Subscribe() (<-chan domain.Event, func()) {
	ch := make(chan domain.Event, 8)
	s.mu.Lock()
	s.subscribers[ch] = struct{}{}
	s.mu.Unlock()

	cancel := func() {
		s.mu.Lock()
		if _, ok := s.subscribers[ch]; ok {
			delete(s.subscribers, ch)
			close(ch)
		}
		s.mu.Unlock()
	}
	return ch, cancel
}

// Close cancels every timer and subscriber. Called on detach or identity
// switch; the session is unusable afterwards.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.attemptID++
	s.cancelTimersLocked()
	s.stopTickerLocked()
	if s.autosaveStop != nil {
		close(s.autosaveStop)
		s.autosaveStop = nil
	}
	for ch := range s.subscribers {
		delete(s.subscribers, ch)
		close(ch)
	}
}

// restoreSnapshot replaces the session state with a persisted snapshot,
// applying defaults once here instead of at every field access. Guests only
// ever have module 0 unlocked regardless of what was stored.
func (s *Session) restoreSnapshot(snap domain.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.initStateLocked()
	s.score = maxInt(snap.Score, 0)
	s.streak = maxInt(snap.Streak, 0)
	s.combo = maxInt(snap.Combo, 0)
	s.level = maxInt(snap.Level, 1)
	s.xp = maxInt(snap.XP, 0)
	s.currentModule = snap.CurrentModule
	s.currentQuestion = snap.CurrentQuestion
	s.perfectModules = maxInt(snap.PerfectModules, 0)
	for _, id := range snap.CompletedModules {
		s.completed[id] = true
	}
	if s.identity.Guest && s.opts.DeferredAuth {
		s.unlocked = map[int]bool{0: true}
	} else {
		for _, id := range snap.UnlockedModules {
			s.unlocked[id] = true
		}
	}
	for key, rec := range snap.AnsweredQuestions {
		s.answered[key] = rec
	}
	for _, id := range snap.Achievements {
		if _, ok := AchievementByID(id); ok {
			s.earned = append(s.earned, id)
		}
	}
	s.powerUps = ledgerFromCounts(snap.PowerUps)
	if snap.PendingCompletion != nil {
		pc := *snap.PendingCompletion
		s.pending = &pc
	}
}

func (s *Session) snapshotLocked() domain.Snapshot {
	answered := make(map[string]domain.AnswerRecord, len(s.answered))
	for key, rec := range s.answered {
		answered[key] = rec
	}
	snap := domain.Snapshot{
		Identity:          s.identity,
		Score:             s.score,
		Streak:            s.streak,
		Combo:             s.combo,
		Level:             s.level,
		XP:                s.xp,
		CurrentModule:     s.currentModule,
		CurrentQuestion:   s.currentQuestion,
		UnlockedModules:   sortedKeys(s.unlocked),
		CompletedModules:  sortedKeys(s.completed),
		PerfectModules:    s.perfectModules,
		AnsweredQuestions: answered,
		Achievements:      append([]int(nil), s.earned...),
		PowerUps:          s.powerUps.toCounts(),
		SavedAt:           s.clock(),
	}
	if s.pending != nil {
		pc := *s.pending
		snap.PendingCompletion = &pc
	}
	return snap
}

func (s *Session) viewLocked(moduleID int) []domain.ShuffledQuestion {
	if view, ok := s.views[moduleID]; ok {
		return view
	}
	mod, ok := s.catalog.Module(moduleID)
	if !ok {
		return nil
	}
	view := shuffleQuestions(s.rng, mod.Questions)
	s.views[moduleID] = view
	return view
}

func (s *Session) scheduleAdvanceLocked() {
	if s.opts.FeedbackDelay <= 0 {
		s.advanceLocked()
		return
	}
	attempt := s.attemptID
	s.advanceTimer = time.AfterFunc(s.opts.FeedbackDelay, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.closed || !s.attemptActive || s.attemptID != attempt {
			return
		}
		s.advanceLocked()
	})
}

func (s *Session) advanceLocked() {
	view := s.viewLocked(s.currentModule)
	if s.currentQuestion < len(view)-1 {
		s.currentQuestion++
		s.dirty = true
		return
	}
	s.completeLocked()
}

func (s *Session) completeLocked() {
	moduleID := s.currentModule
	if s.completed[moduleID] {
		s.attemptActive = false
		s.stopTickerLocked()
		return
	}
	mod, _ := s.catalog.Module(moduleID)
	elapsed := int(s.clock().Sub(s.attemptStart) / time.Second)
	s.attemptActive = false
	s.stopTickerLocked()

	if s.perfectModule {
		s.perfectModules++
	}
	s.completed[moduleID] = true

	answeredCount, correctCount := s.moduleTallyLocked(mod)
	result := domain.ModuleResult{
		ModuleID:          moduleID,
		ModuleTitle:       mod.Title,
		Score:             s.moduleScore,
		Perfect:           s.perfectModule,
		ElapsedSeconds:    elapsed,
		QuestionsAnswered: answeredCount,
		QuestionsCorrect:  correctCount,
	}

	gated := s.identity.Guest && s.opts.DeferredAuth && moduleID == 0
	if gated {
		s.pending = &domain.PendingCompletion{
			ModuleID:       moduleID,
			Score:          s.moduleScore,
			Perfect:        s.perfectModule,
			ElapsedSeconds: elapsed,
		}
	} else if _, ok := s.catalog.Module(moduleID + 1); ok && !s.unlocked[moduleID+1] {
		s.unlocked[moduleID+1] = true
	}

	s.emitLocked(domain.EventModuleCompleted, map[string]any{
		"moduleId": moduleID,
		"score":    s.moduleScore,
		"perfect":  s.perfectModule,
		"elapsed":  elapsed,
	})
	if !s.identity.Guest && s.hooks.result != nil {
		s.hooks.result(s.identity, result)
	}
	s.evaluateAchievementsLocked()
	s.dirty = true
	s.saveLocked()

	if gated {
		if s.opts.AuthPromptDelay <= 0 {
			s.emitAuthPromptLocked()
			return
		}
		attempt := s.attemptID
		s.promptTimer = time.AfterFunc(s.opts.AuthPromptDelay, func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			if s.closed || s.pending == nil || s.attemptID != attempt {
				return
			}
			s.emitAuthPromptLocked()
		})
	}
}

func (s *Session) emitAuthPromptLocked() {
	s.emitLocked(domain.EventAuthPromptShown, map[string]any{
		"trigger":  "module-completion",
		"moduleId": s.pending.ModuleID,
	})
}

// evaluateAchievementsLocked surfaces at most one newly earned achievement;
// the rest qualify again on the next scoring-relevant change.
func (s *Session) evaluateAchievementsLocked() {
	stats := Stats{
		Score:            s.score,
		Streak:           s.streak,
		Level:            s.level,
		ModulesCompleted: len(s.completed),
		PerfectModules:   s.perfectModules,
		MaxCombo:         s.combo,
	}
	fresh := EvaluateAchievements(s.earned, stats)
	if len(fresh) == 0 {
		return
	}
	first := fresh[0]
	s.earned = append(s.earned, first.ID)
	s.emitLocked(domain.EventAchievementUnlocked, map[string]any{
		"id":   first.ID,
		"name": first.DisplayName(s.identity.Variant),
		"icon": first.DisplayIcon(s.identity.Variant),
	})
}

func (s *Session) moduleTallyLocked(mod domain.Module) (answered, correct int) {
	for i := range mod.Questions {
		rec, ok := s.answered[answerKey(mod.ID, i)]
		if !ok || !rec.Answered {
			continue
		}
		answered++
		if rec.Correct {
			correct++
		}
	}
	return answered, correct
}

func (s *Session) saveLocked() {
	if s.hooks.save == nil {
		return
	}
	snap := s.snapshotLocked()
	s.dirty = false
	s.hooks.save(snap)
}

func (s *Session) emitLocked(name domain.EventName, payload map[string]any) {
	ev := domain.Event{Name: name, UserID: s.identity.ID, Payload: payload}
	if s.hooks.event != nil {
		s.hooks.event(ev)
	}
	for ch := range s.subscribers {
		select {
		case ch <- ev:
		default:
			// Drop the oldest buffered event so a slow subscriber never
			// blocks a transition.
			select {
			case <-ch:
			default:
			}
			ch <- ev
		}
	}
}

func (s *Session) startTickerLocked() {
	s.stopTickerLocked()
	stop := make(chan struct{})
	s.tickerStop = stop
	go func() {
		tick := time.NewTicker(time.Second)
		defer tick.Stop()
		for {
			select {
			case <-stop:
				return
			case <-tick.C:
				s.mu.Lock()
				if s.attemptActive {
					s.elapsedSec = int(s.clock().Sub(s.attemptStart) / time.Second)
				}
				s.mu.Unlock()
			}
		}
	}()
}

func (s *Session) stopTickerLocked() {
	if s.tickerStop != nil {
		close(s.tickerStop)
		s.tickerStop = nil
	}
	s.elapsedSec = 0
}

func (s *Session) cancelTimersLocked() {
	if s.advanceTimer != nil {
		s.advanceTimer.Stop()
		s.advanceTimer = nil
	}
	if s.promptTimer != nil {
		s.promptTimer.Stop()
		s.promptTimer = nil
	}
}

func (s *Session) autosaveLoop(interval time.Duration, stop chan struct{}) {
	tick := time.NewTicker(interval)
	defer tick.Stop()
	for {
		select {
		case <-stop:
			return
		case <-tick.C:
			s.mu.Lock()
			if s.dirty && !s.closed {
				s.saveLocked()
			}
			s.mu.Unlock()
		}
	}
}

func sortedKeys(set map[int]bool) []int {
	keys := make([]int, 0, len(set))
	for id := range set {
		keys = append(keys, id)
	}
	sort.Ints(keys)
	return keys
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
