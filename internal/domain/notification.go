package domain

// Channel identifies a push or email transport.
type Channel string

const (
	ChannelFCM   Channel = "fcm"
	ChannelAPNs  Channel = "apns"
	ChannelEmail Channel = "email"
	ChannelNone  Channel = ""
)

// Notification types understood by the engine. Preferences and rate-limit
// cooldowns key off these.
const (
	TypeDailyReminder    = "daily_reminder"
	TypeStreakReminder   = "streak_reminder"
	TypeWeeklyReflection = "weekly_reflection"
	TypeWeeklyReport     = "weekly_report"
	TypeWeeklyReminder   = "weekly_report_reminder"
)

// Notification is the channel-agnostic payload handed to the delivery
// pipeline. Data values are stringified before they reach a provider.
type Notification struct {
	Type    string            `json:"type"`
	Title   string            `json:"title"`
	Body    string            `json:"body"`
	Data    map[string]string `json:"data,omitempty"`
	Badge   *int              `json:"badge,omitempty"`
	Sound   string            `json:"sound,omitempty"`
	URLArgs []string          `json:"urlArgs,omitempty"`
}
