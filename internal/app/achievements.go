package app

// Stats is the snapshot an achievement predicate sees. Predicates are pure;
// they never reach into live session state.
type Stats struct {
	Score            int
	Streak           int
	Level            int
	ModulesCompleted int
	PerfectModules   int
	MaxCombo         int
}

// Achievement pairs an id with a qualification predicate. Display name and
// icon may vary by the identity's presentation variant; the predicate never
// does.
type Achievement struct {
	ID           int
	Name         string
	Icon         string
	VariantNames map[string]string
	VariantIcons map[string]string
	Qualifies    func(Stats) bool
}

// DisplayName resolves the variant-specific name, falling back to the default.
func (a Achievement) DisplayName(variant string) string {
	if name, ok := a.VariantNames[variant]; ok {
		return name
	}
	return a.Name
}

// DisplayIcon resolves the variant-specific icon, falling back to the default.
func (a Achievement) DisplayIcon(variant string) string {
	if icon, ok := a.VariantIcons[variant]; ok {
		return icon
	}
	return a.Icon
}

// Achievements holds every definition in earning/display order.
var Achievements = []Achievement{
	{ID: 1, Name: "First Steps", Icon: "🎯", Qualifies: func(s Stats) bool { return s.Score >= 10 }},
	{ID: 2, Name: "Quick Learner", Icon: "⚡", Qualifies: func(s Stats) bool { return s.Streak >= 5 }},
	{ID: 3, Name: "Module Master", Icon: "🏆", Qualifies: func(s Stats) bool { return s.ModulesCompleted >= 1 }},
	{ID: 4, Name: "IFRS Expert", Icon: "🎓", Qualifies: func(s Stats) bool { return s.Level >= 5 }},
	{ID: 5, Name: "Perfect Score", Icon: "💯", Qualifies: func(s Stats) bool { return s.PerfectModules >= 1 }},
	{
		ID: 6, Name: "Combo King", Icon: "🔥",
		VariantNames: map[string]string{"f": "Combo Queen"},
		Qualifies:    func(s Stats) bool { return s.MaxCombo >= 10 },
	},
	{ID: 7, Name: "Knowledge Seeker", Icon: "📚", Qualifies: func(s Stats) bool { return s.ModulesCompleted >= 5 }},
	{ID: 8, Name: "Unstoppable", Icon: "💪", Qualifies: func(s Stats) bool { return s.Streak >= 15 }},
}

// AchievementByID looks up a definition.
func AchievementByID(id int) (Achievement, bool) {
	for _, a := range Achievements {
		if a.ID == id {
			return a, true
		}
	}
	return Achievement{}, false
}

// EvaluateAchievements returns every definition that newly qualifies against
// stats, in definition order. Already-earned ids are skipped, so re-evaluation
// is idempotent and the earned set only grows. The caller decides how many of
// the returned achievements to surface at once.
func EvaluateAchievements(earned []int, stats Stats) []Achievement {
	have := make(map[int]bool, len(earned))
	for _, id := range earned {
		have[id] = true
	}
	var fresh []Achievement
	for _, a := range Achievements {
		if !have[a.ID] && a.Qualifies(stats) {
			fresh = append(fresh, a)
		}
	}
	return fresh
}
