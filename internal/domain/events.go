package domain

// EventName identifies a discrete progression event.
type EventName string

const (
	EventModuleStarted       EventName = "module-started"
	EventModuleCompleted     EventName = "module-completed"
	EventLevelUp             EventName = "level-up"
	EventAchievementUnlocked EventName = "achievement-unlocked"
	EventAuthPromptShown     EventName = "auth-prompt-shown"
	EventAuthPromptDismissed EventName = "auth-prompt-dismissed"
	EventProgressReset       EventName = "progress-reset"
	EventGuestMigrated       EventName = "guest-migrated"
)

// Event is a named progression event with a small payload, emitted to the
// telemetry sink and to per-session subscribers. Delivery is best effort.
type Event struct {
	Name    EventName      `json:"name"`
	UserID  string         `json:"userId"`
	Payload map[string]any `json:"payload,omitempty"`
}
