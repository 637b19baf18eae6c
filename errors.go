package main

import (
	"errors"
	"fmt"
)

// Stage identifies which step of the booking pipeline an error came from.
type Stage string

const (
	StageAuth         Stage = "auth"
	StageConfig       Stage = "config"
	StageCampus       Stage = "campus"
	StageVenue        Stage = "venue"
	StageAvailability Stage = "availability"
	StageTimeSlot     Stage = "timeslot"
	StageResource     Stage = "resource"
	StageSubmit       Stage = "submit"
	StagePayment      Stage = "payment"
)

// Sentinel errors forming the failure taxonomy. Pipeline code wraps them
// with target values for context; classification uses errors.Is.
var (
	ErrAuth                = errors.New("session could not be established")
	ErrConfig              = errors.New("invalid configuration")
	ErrNotAvailable        = errors.New("target date not available")
	ErrSlotNotFound        = errors.New("time slot not offered")
	ErrNoResourceAvailable = errors.New("no bookable resource")
	ErrPayment             = errors.New("payment not confirmed")
)

// StageError tags an error with the pipeline stage that raised it.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string { return fmt.Sprintf("%s: %v", e.Stage, e.Err) }

func (e *StageError) Unwrap() error { return e.Err }

// Status is the terminal state reported for one booking invocation.
type Status string

const (
	StatusSuccess        Status = "success"
	StatusNoAvailability Status = "failed-no-availability"
	StatusAuthFailed     Status = "failed-auth"
	StatusPaymentFailed  Status = "failed-payment"
	StatusUnknown        Status = "failed-unknown"
)

// Outcome is produced exactly once per booking run, never partially.
type Outcome struct {
	Status  Status
	Message string
}

func (o Outcome) Success() bool { return o.Status == StatusSuccess }

// ClassifyOutcome converts a pipeline error into the outcome handed back
// to the caller. The original message is preserved for diagnostics.
func ClassifyOutcome(err error) Outcome {
	if err == nil {
		return Outcome{Status: StatusSuccess, Message: "booking confirmed"}
	}

	switch {
	case errors.Is(err, ErrAuth):
		return Outcome{Status: StatusAuthFailed, Message: err.Error()}
	case errors.Is(err, ErrNotAvailable),
		errors.Is(err, ErrSlotNotFound),
		errors.Is(err, ErrNoResourceAvailable):
		return Outcome{Status: StatusNoAvailability, Message: err.Error()}
	case errors.Is(err, ErrPayment):
		return Outcome{Status: StatusPaymentFailed, Message: err.Error()}
	default:
		return Outcome{Status: StatusUnknown, Message: err.Error()}
	}
}
