package core

// Result is the uniform outcome shape returned by Conversation.Send and
// forwarded unchanged through arbitrary recursion depth. Behaviors never see
// raw panics or unhandled errors from their callees; they see a Result with
// Status "error" and a descriptive Error string.
type Result struct {
	Status   string `json:"status"` // "success" or "error"
	Response string `json:"response,omitempty"`
	Error    string `json:"error,omitempty"`

	err error
}

const (
	// StatusSuccess marks a completed turn with an optional response.
	StatusSuccess = "success"
	// StatusError marks a failed turn; Error describes the failure.
	StatusError = "error"
)

// Success builds a successful Result carrying the target's response text.
func Success(response string) Result {
	return Result{Status: StatusSuccess, Response: response}
}

// Failure builds an error Result from err, preserving the typed error for
// errors.Is / errors.As inspection via Err.
func Failure(err error) Result {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	return Result{Status: StatusError, Error: msg, err: err}
}

// OK reports whether the turn completed successfully.
func (r Result) OK() bool { return r.Status == StatusSuccess }

// Err returns the typed error behind an error Result, or nil for success.
func (r Result) Err() error { return r.err }
