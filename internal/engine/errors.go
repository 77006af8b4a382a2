package engine

import (
	"errors"
	"fmt"
	"strings"
)

var ErrInvalidRange = errors.New("invalid date range")

// AccountFailure is one account left out of a merged result.
type AccountFailure struct {
	Account string `json:"account"`
	Error   string `json:"error"`
	Status  int    `json:"status,omitempty"`

	Err error `json:"-"`
}

// PartialFailure reports that a merged result covers only some of the selected accounts.
type PartialFailure struct {
	Op       string
	Failures []AccountFailure
}

func (e *PartialFailure) Error() string {
	names := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		names = append(names, f.Account)
	}
	return fmt.Sprintf("%s: %d account(s) omitted: %s", e.Op, len(e.Failures), strings.Join(names, ", "))
}

func (e *PartialFailure) Unwrap() []error {
	out := make([]error, 0, len(e.Failures))
	for _, f := range e.Failures {
		if f.Err != nil {
			out = append(out, f.Err)
		}
	}
	return out
}
