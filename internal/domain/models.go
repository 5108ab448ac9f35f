package domain

import "time"

// Question models an MCQ question with exactly one correct option.
// Correct is the index into Options; it stays valid after question-order
// shuffling because options are never reordered.
type Question struct {
	Text        string   `json:"text"`
	Options     []string `json:"options"`
	Correct     int      `json:"correct"`
	Explanation string   `json:"explanation"`
}

// Module is a themed, ordered group of questions; the unit of unlocking and
// completion. ID is the module's ordinal position in the catalog.
type Module struct {
	ID        int        `json:"id"`
	Title     string     `json:"title"`
	Icon      string     `json:"icon"`
	Color     string     `json:"color"`
	Questions []Question `json:"questions"`
}

// Catalog is the full ordered set of training modules, loaded once at startup.
type Catalog struct {
	Modules []Module `json:"modules"`
}

// Module returns the module with the given id, if present.
func (c Catalog) Module(id int) (Module, bool) {
	for i := range c.Modules {
		if c.Modules[i].ID == id {
			return c.Modules[i], true
		}
	}
	return Module{}, false
}

// ShuffledQuestion is a question inside a per-attempt shuffled view, keeping a
// back-reference to its position in the module's original order.
type ShuffledQuestion struct {
	Question
	OriginalIndex int `json:"originalIndex"`
}

// PowerUpKind enumerates the consumable aids.
type PowerUpKind string

const (
	PowerUpHint      PowerUpKind = "hint"
	PowerUpEliminate PowerUpKind = "eliminate"
	PowerUpSkip      PowerUpKind = "skip"
)

// PowerUpKinds lists all kinds in display order.
var PowerUpKinds = []PowerUpKind{PowerUpHint, PowerUpEliminate, PowerUpSkip}

// Identity names the player a progression belongs to. Guest identities are
// ephemeral and locally persisted only; authenticated ones may sync remotely.
type Identity struct {
	ID      string `json:"id"`
	Name    string `json:"name,omitempty"`
	Guest   bool   `json:"guest"`
	Variant string `json:"variant,omitempty"` // presentation variant only, never affects earning logic
}

// AnswerRecord captures the immutable outcome of a single question within a
// module attempt. A nil Selected denotes a skipped question.
type AnswerRecord struct {
	Answered bool `json:"answered"`
	Selected *int `json:"selected"`
	Correct  bool `json:"correct"`
}

// PendingCompletion marks a guest's module-0 completion awaiting sign-up.
type PendingCompletion struct {
	ModuleID       int  `json:"moduleId"`
	Score          int  `json:"score"`
	Perfect        bool `json:"perfect"`
	ElapsedSeconds int  `json:"elapsedSeconds"`
}

// Snapshot is the full serializable copy of a progression state. It
// round-trips losslessly through save/load; achievements are reduced to ids.
type Snapshot struct {
	Identity          Identity                `json:"identity"`
	Score             int                     `json:"score"`
	Streak            int                     `json:"streak"`
	Combo             int                     `json:"combo"`
	Level             int                     `json:"level"`
	XP                int                     `json:"xp"`
	CurrentModule     int                     `json:"currentModule"`
	CurrentQuestion   int                     `json:"currentQuestion"`
	UnlockedModules   []int                   `json:"unlockedModules"`
	CompletedModules  []int                   `json:"completedModules"`
	PerfectModules    int                     `json:"perfectModules"`
	AnsweredQuestions map[string]AnswerRecord `json:"answeredQuestions"`
	Achievements      []int                   `json:"achievements"`
	PowerUps          map[PowerUpKind]int     `json:"powerUps"`
	PendingCompletion *PendingCompletion      `json:"pendingCompletion,omitempty"`
	SavedAt           time.Time               `json:"savedAt"`
}

// ModuleResult is the per-completion record submitted to the leaderboard
// collaborator for authenticated identities.
type ModuleResult struct {
	ModuleID          int    `json:"moduleId"`
	ModuleTitle       string `json:"moduleTitle"`
	Score             int    `json:"score"`
	Perfect           bool   `json:"perfect"`
	ElapsedSeconds    int    `json:"elapsedSeconds"`
	QuestionsAnswered int    `json:"questionsAnswered"`
	QuestionsCorrect  int    `json:"questionsCorrect"`
}

// LeaderboardEntry is one row of the overall leaderboard.
type LeaderboardEntry struct {
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName"`
	TotalScore  int    `json:"totalScore"`
	Modules     int    `json:"modules"`
}

// AnswerOutcome summarizes a submitted answer for the presentation layer.
type AnswerOutcome struct {
	Correct        bool   `json:"correct"`
	Awarded        int    `json:"awarded"`
	Explanation    string `json:"explanation"`
	CorrectOption  int    `json:"correctOption"`
	Score          int    `json:"score"`
	Streak         int    `json:"streak"`
	Combo          int    `json:"combo"`
	Level          int    `json:"level"`
	XP             int    `json:"xp"`
	LeveledUp      bool   `json:"leveledUp"`
	ModuleComplete bool   `json:"moduleComplete"`
}

// PowerUpOutcome reports the effect of using a power-up. Hint carries display
// text; Eliminate carries the option indexes the UI should grey out.
type PowerUpOutcome struct {
	Kind       PowerUpKind `json:"kind"`
	Remaining  int         `json:"remaining"`
	Hint       string      `json:"hint,omitempty"`
	Eliminated []int       `json:"eliminated,omitempty"`
	Skipped    bool        `json:"skipped,omitempty"`
}
