package progress

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/JakeFAU/doc-harvester/internal/harvest"
)

// Stage denotes the milestone represented by an Event.
type Stage string

// Supported progress stages.
const (
	StageRunStart    Stage = "RUN_START"
	StageItemStart   Stage = "ITEM_START"
	StageAttemptDone Stage = "ATTEMPT_DONE"
	StageItemDone    Stage = "ITEM_DONE"
	StageRunDone     Stage = "RUN_DONE"
)

// Event captures a single milestone of a batch run.
type Event struct {
	// RunID identifies the batch run in 16-byte UUID form.
	RunID [16]byte
	// TS is the UTC timestamp recorded by the emitter.
	TS    time.Time
	Stage Stage
	// URL is the source item; empty for run-level stages.
	URL string
	// Item is the zero-based position of the item in the de-duplicated input.
	Item int
	// Attempt is the 1-based attempt number for ATTEMPT_DONE events, and the
	// number of attempts used for ITEM_DONE events.
	Attempt  int
	Outcome  harvest.Outcome
	State    string
	Strategy harvest.Strategy
	Path     string
	Bytes    int64
	Dur      time.Duration
	// Total is the number of unique items, set on RUN_START and RUN_DONE.
	Total int
	// Note carries the error text for failures.
	Note string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.RunID == [16]byte{} {
		return errors.New("run id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageRunStart, StageRunDone:
	case StageItemStart:
		if e.URL == "" {
			return errors.New("item start requires url")
		}
	case StageAttemptDone, StageItemDone:
		if e.URL == "" {
			return fmt.Errorf("%s requires url", e.Stage)
		}
		if !e.Outcome.Terminal() {
			return fmt.Errorf("%s requires a terminal outcome", e.Stage)
		}
		if e.Stage == StageAttemptDone && e.Attempt < 1 {
			return errors.New("attempt done requires attempt >= 1")
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}

// RunUUID converts the binary run ID to uuid.UUID for repositories.
func (e Event) RunUUID() uuid.UUID {
	return uuid.UUID(e.RunID)
}

// UUIDToBytes encodes a uuid.UUID into the Event form.
func UUIDToBytes(id uuid.UUID) [16]byte {
	var dest [16]byte
	copy(dest[:], id[:])
	return dest
}

// Succeeded reports whether the event carries a succeeded outcome.
func (e Event) Succeeded() bool {
	return e.Outcome == harvest.OutcomeSucceeded
}
