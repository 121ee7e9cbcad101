package model

// CompletionRequest is what a completion provider receives for one turn:
// the prior transcript plus the new user text, which always goes last.
type CompletionRequest struct {
	SystemPrompt string
	History      []Message
	UserText     string
}
