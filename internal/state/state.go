package state

import "time"

// State represents a dialog state.
type State string

const (
	// StateIdle means no dialog is in progress.
	StateIdle State = "idle"
	// StateOrderSymbol waits for the ticker of an order preview.
	StateOrderSymbol State = "order_symbol"
	// StateOrderMargin waits for the margin and optional leverage.
	StateOrderMargin State = "order_margin"
	// StateError marks a dialog that must be restarted.
	StateError State = "error"
)

// Context keys stored with a dialog.
const (
	KeySide   = "side"
	KeySymbol = "symbol"
)

// UserState captures the current dialog state for a Telegram user.
type UserState struct {
	UserID       int64             `json:"user_id"`
	CurrentState State             `json:"current_state"`
	Context      map[string]string `json:"context,omitempty"`
	UpdatedAt    time.Time         `json:"updated_at"`
}
