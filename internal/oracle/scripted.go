package oracle

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
)

// Outcome is one scripted oracle answer.
type Outcome string

const (
	OutcomeConfirmed Outcome = "confirmed"
	OutcomePending   Outcome = "pending"
	OutcomeError     Outcome = "error"
	// OutcomeBlock waits until the call's context is done, then fails.
	OutcomeBlock Outcome = "block"
)

// ErrScripted is the error returned for OutcomeError.
var ErrScripted = errors.New("scripted failure")

// ParseOutcome converts a scenario string into an Outcome.
func ParseOutcome(raw string) (Outcome, error) {
	o := Outcome(strings.ToLower(strings.TrimSpace(raw)))
	switch o {
	case OutcomeConfirmed, OutcomePending, OutcomeError, OutcomeBlock:
		return o, nil
	}
	return "", fmt.Errorf("unknown oracle outcome %q", raw)
}

// ScriptedOracle replays a fixed sequence of outcomes per token. Once a
// token's script is exhausted its last outcome repeats. Tokens without a
// script get the fallback outcome.
//
// Thread-safety: All methods are safe for concurrent use.
type ScriptedOracle struct {
	mu       sync.Mutex
	scripts  map[string][]Outcome
	calls    map[string]int
	fallback Outcome
}

// NewScriptedOracle creates an oracle with the given scripts. Unscripted
// tokens answer pending.
func NewScriptedOracle(scripts map[string][]Outcome) *ScriptedOracle {
	s := &ScriptedOracle{
		scripts:  make(map[string][]Outcome, len(scripts)),
		calls:    make(map[string]int),
		fallback: OutcomePending,
	}
	for token, seq := range scripts {
		s.scripts[token] = append([]Outcome(nil), seq...)
	}
	return s
}

// SetFallback changes the outcome for unscripted tokens.
func (s *ScriptedOracle) SetFallback(o Outcome) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fallback = o
}

// Script replaces the script for token and resets its call count.
func (s *ScriptedOracle) Script(token string, seq ...Outcome) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scripts[token] = append([]Outcome(nil), seq...)
	delete(s.calls, token)
}

// Calls returns how many times token has been checked.
func (s *ScriptedOracle) Calls(token string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[token]
}

func (s *ScriptedOracle) next(token string) Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := s.calls[token]
	s.calls[token] = n + 1

	seq := s.scripts[token]
	switch {
	case len(seq) == 0:
		return s.fallback
	case n < len(seq):
		return seq[n]
	default:
		return seq[len(seq)-1]
	}
}

// Check returns the next scripted outcome for token.
func (s *ScriptedOracle) Check(ctx context.Context, token string) (Verdict, error) {
	if err := ctx.Err(); err != nil {
		return "", &Error{Token: token, Op: "scripted", Err: err}
	}
	switch s.next(token) {
	case OutcomeConfirmed:
		return Confirmed, nil
	case OutcomeError:
		return "", &Error{Token: token, Op: "scripted", Err: ErrScripted}
	case OutcomeBlock:
		<-ctx.Done()
		return "", &Error{Token: token, Op: "scripted", Err: ctx.Err()}
	default:
		return NotYetConfirmed, nil
	}
}
