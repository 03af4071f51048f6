package agent

import "errors"

// ErrTurnsExhausted reports that the model was still requesting tool calls
// when the per-execution turn limit was hit. It is distinct from a malformed
// reply: the conversation was well-formed, it just never converged.
var ErrTurnsExhausted = errors.New("turn limit reached before the model produced a final answer")
