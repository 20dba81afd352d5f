package reconcile

import (
	"errors"
	"fmt"
	"strings"

	"github.com/elys-network/allocator/internal/provider"
)

// Action is what a round did, or tried to do, for one provider.
type Action uint8

const (
	ActionNone Action = iota
	ActionDeposit
	ActionRedeem
	ActionRefresh
)

var actionNames = []string{"none", "deposit", "redeem", "refresh"}

func (a Action) String() string {
	if int(a) >= len(actionNames) {
		return fmt.Sprintf("action(%d)", uint8(a))
	}
	return actionNames[a]
}

func (a Action) MarshalText() ([]byte, error) { return []byte(a.String()), nil }

func (a *Action) UnmarshalText(text []byte) error {
	for i, name := range actionNames {
		if strings.EqualFold(name, string(text)) {
			*a = Action(i)
			return nil
		}
	}
	return fmt.Errorf("unknown action %q", text)
}

// Status is the outcome of one provider's action.
type Status uint8

const (
	StatusSucceeded Status = iota
	StatusFailed
	StatusSkipped
)

var statusNames = []string{"succeeded", "failed", "skipped"}

func (s Status) String() string {
	if int(s) >= len(statusNames) {
		return fmt.Sprintf("status(%d)", uint8(s))
	}
	return statusNames[s]
}

func (s Status) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *Status) UnmarshalText(text []byte) error {
	for i, name := range statusNames {
		if strings.EqualFold(name, string(text)) {
			*s = Status(i)
			return nil
		}
	}
	return fmt.Errorf("unknown status %q", text)
}

// Outcome records one provider's part of a round.
type Outcome struct {
	Action Action `json:"action"`
	Amount uint64 `json:"amount"` // Reserve-denominated; zero for refreshes and no-ops.
	Status Status `json:"status"`
	Err    error  `json:"-"`
	Error  string `json:"error,omitempty"`
}

func succeeded(action Action, amount uint64) Outcome {
	return Outcome{Action: action, Amount: amount, Status: StatusSucceeded}
}

func failed(action Action, amount uint64, err error) Outcome {
	return Outcome{Action: action, Amount: amount, Status: StatusFailed, Err: err, Error: err.Error()}
}

func skipped(action Action, amount uint64, err error) Outcome {
	return Outcome{Action: action, Amount: amount, Status: StatusSkipped, Err: err, Error: err.Error()}
}

// Report is the per-provider result of a refresh or reconcile round. Providers never
// share an outcome: one failing leaves the others as they were.
type Report struct {
	RoundID  string                      `json:"round_id"`
	Tick     uint64                      `json:"tick"`
	Outcomes provider.Container[Outcome] `json:"outcomes"`
}

func (r Report) with(s Status) []provider.Provider {
	var out []provider.Provider
	for p, o := range r.Outcomes.All() {
		if o.Status == s {
			out = append(out, p)
		}
	}
	return out
}

func (r Report) Succeeded() []provider.Provider { return r.with(StatusSucceeded) }

func (r Report) Failed() []provider.Provider { return r.with(StatusFailed) }

func (r Report) Skipped() []provider.Provider { return r.with(StatusSkipped) }

// Acted lists the providers whose market state was changed by the round.
func (r Report) Acted() []provider.Provider {
	var out []provider.Provider
	for p, o := range r.Outcomes.All() {
		if o.Status == StatusSucceeded && (o.Action == ActionDeposit || o.Action == ActionRedeem) {
			out = append(out, p)
		}
	}
	return out
}

// Err joins the errors of failed providers, or returns nil when none failed.
func (r Report) Err() error {
	var errs []error
	for p, o := range r.Outcomes.All() {
		if o.Status == StatusFailed {
			errs = append(errs, fmt.Errorf("%s: %w", p, o.Err))
		}
	}
	return errors.Join(errs...)
}
