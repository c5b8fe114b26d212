package domain

import "time"

// Profile holds a user's saved contact details.
type Profile struct {
	UserID    string
	Name      string
	Email     string
	Phone     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Complete reports whether the profile can fully satisfy contact collection.
func (p *Profile) Complete() bool {
	return p != nil && p.Name != "" && p.Email != "" && p.Phone != ""
}

// Message roles for chat history.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// HistoryMessage is one persisted chat message.
type HistoryMessage struct {
	UserID    string
	Role      string
	Content   string
	CreatedAt time.Time
}
