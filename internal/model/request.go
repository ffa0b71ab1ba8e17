package model

// Action values accepted by /analyze.
const (
	ActionAnalyze = "analyze"
	ActionAsk     = "ask"
)

// MaxHistoryTurns caps the caller-supplied conversation history; older turns
// are trimmed oldest-first.
const MaxHistoryTurns = 10

type CredentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type AnalyzeRequest struct {
	Action  string `json:"action"`
	DataURL string `json:"dataUrl,omitempty"`
	Text    string `json:"text,omitempty"`
	// History is owned by the caller; the gateway keeps no chat state
	// between requests.
	History []HistoryTurn `json:"history,omitempty"`
}

type HistoryTurn struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

type FeedbackRequest struct {
	Text string `json:"text"`
}
