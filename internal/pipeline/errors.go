package pipeline

import (
	"errors"
	"fmt"
)

// ErrorKind classifies why a run stopped.
type ErrorKind int

const (
	// KindValidation is bad or missing input.
	KindValidation ErrorKind = iota + 1
	// KindCredit is a missing ledger entry or exhausted credits.
	KindCredit
	// KindNoData means there were no transactions to analyse.
	KindNoData
	// KindUpstream is a failure of the document store or the advisory service.
	KindUpstream
	// KindPersistence is a failure to save a generated analysis.
	KindPersistence
)

func (k ErrorKind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindCredit:
		return "credit"
	case KindNoData:
		return "no_data"
	case KindUpstream:
		return "upstream"
	case KindPersistence:
		return "persistence"
	default:
		return fmt.Sprintf("ErrorKind(%d)", int(k))
	}
}

// Service names the collaborator behind an upstream failure.
type Service string

const (
	ServiceStore   Service = "store"
	ServiceAdvisor Service = "advisor"
)

var (
	// ErrMissingUserID is returned when a run is requested without a user.
	ErrMissingUserID = errors.New("userId is required")

	// ErrNoTransactions is returned when the window holds no transactions.
	ErrNoTransactions = errors.New("no transactions found")
)

// StepError is the failure of one pipeline step.
type StepError struct {
	Step    string
	Kind    ErrorKind
	Service Service // set for KindUpstream
	Err     error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Step, e.Kind, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

func stepErr(step string, kind ErrorKind, err error) *StepError {
	return &StepError{Step: step, Kind: kind, Err: err}
}

func upstreamErr(step string, service Service, err error) *StepError {
	return &StepError{Step: step, Kind: KindUpstream, Service: service, Err: err}
}
