package models

import (
	"encoding/json"
	"fmt"
	"time"
)

type StatusKind string

const (
	StatusKindNotAvailable StatusKind = "NotAvailable"
	StatusKindRunning      StatusKind = "Running"
	StatusKindAvailable    StatusKind = "Available"
	StatusKindError        StatusKind = "Error"
)

func (k StatusKind) Valid() bool {
	switch k {
	case StatusKindNotAvailable, StatusKindRunning, StatusKindAvailable, StatusKindError:
		return true
	}
	return false
}

// Status is the lifecycle state of an index. Exactly one variant is active,
// selected by Kind; payload fields of the other variants stay zero. The
// serialized form is an internally tagged JSON object and is what catalog
// backends persist and compare, so timestamps are canonicalized to UTC with
// nanosecond precision. A Running value's StartedAt identifies one build
// attempt: completions carrying a StartedAt that no longer matches the
// stored status are stale and must be discarded.
type Status struct {
	Kind          StatusKind
	StartedAt     time.Time // Running
	BuiltAt       time.Time // Available
	DocumentCount int64     // Available
	Reason        string    // Error
	FailedAt      time.Time // Error
}

func StatusNotAvailable() Status {
	return Status{Kind: StatusKindNotAvailable}
}

func StatusRunning(startedAt time.Time) Status {
	return Status{Kind: StatusKindRunning, StartedAt: startedAt.UTC()}
}

func StatusAvailable(builtAt time.Time, documentCount int64) Status {
	return Status{Kind: StatusKindAvailable, BuiltAt: builtAt.UTC(), DocumentCount: documentCount}
}

func StatusError(reason string, failedAt time.Time) Status {
	return Status{Kind: StatusKindError, Reason: reason, FailedAt: failedAt.UTC()}
}

func (s Status) Equal(other Status) bool {
	if s.Kind != other.Kind {
		return false
	}
	switch s.Kind {
	case StatusKindRunning:
		return s.StartedAt.Equal(other.StartedAt)
	case StatusKindAvailable:
		return s.BuiltAt.Equal(other.BuiltAt) && s.DocumentCount == other.DocumentCount
	case StatusKindError:
		return s.Reason == other.Reason && s.FailedAt.Equal(other.FailedAt)
	}
	return true
}

func (s Status) String() string {
	return string(s.Kind)
}

func (s Status) MarshalJSON() ([]byte, error) {
	switch s.Kind {
	case StatusKindNotAvailable:
		return json.Marshal(struct {
			Type StatusKind `json:"type"`
		}{s.Kind})
	case StatusKindRunning:
		return json.Marshal(struct {
			Type      StatusKind `json:"type"`
			StartedAt time.Time  `json:"started_at"`
		}{s.Kind, s.StartedAt.UTC()})
	case StatusKindAvailable:
		return json.Marshal(struct {
			Type          StatusKind `json:"type"`
			BuiltAt       time.Time  `json:"built_at"`
			DocumentCount int64      `json:"document_count"`
		}{s.Kind, s.BuiltAt.UTC(), s.DocumentCount})
	case StatusKindError:
		return json.Marshal(struct {
			Type     StatusKind `json:"type"`
			Reason   string     `json:"reason"`
			FailedAt time.Time  `json:"failed_at"`
		}{s.Kind, s.Reason, s.FailedAt.UTC()})
	}
	return nil, fmt.Errorf("marshal status: unknown kind %q", s.Kind)
}

func (s *Status) UnmarshalJSON(data []byte) error {
	var env struct {
		Type          StatusKind `json:"type"`
		StartedAt     *time.Time `json:"started_at"`
		BuiltAt       *time.Time `json:"built_at"`
		DocumentCount *int64     `json:"document_count"`
		Reason        *string    `json:"reason"`
		FailedAt      *time.Time `json:"failed_at"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return fmt.Errorf("unmarshal status: %w", err)
	}
	switch env.Type {
	case StatusKindNotAvailable:
		*s = StatusNotAvailable()
	case StatusKindRunning:
		if env.StartedAt == nil {
			return fmt.Errorf("unmarshal status: %s without started_at", env.Type)
		}
		*s = StatusRunning(*env.StartedAt)
	case StatusKindAvailable:
		if env.BuiltAt == nil || env.DocumentCount == nil {
			return fmt.Errorf("unmarshal status: %s missing built_at or document_count", env.Type)
		}
		*s = StatusAvailable(*env.BuiltAt, *env.DocumentCount)
	case StatusKindError:
		if env.Reason == nil || env.FailedAt == nil {
			return fmt.Errorf("unmarshal status: %s missing reason or failed_at", env.Type)
		}
		*s = StatusError(*env.Reason, *env.FailedAt)
	default:
		return fmt.Errorf("unmarshal status: unknown type %q", env.Type)
	}
	return nil
}

// EncodeStatus returns the canonical persisted text form.
func EncodeStatus(s Status) (string, error) {
	b, err := s.MarshalJSON()
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// DecodeStatus parses the persisted text form.
func DecodeStatus(text string) (Status, error) {
	var s Status
	if err := s.UnmarshalJSON([]byte(text)); err != nil {
		return Status{}, err
	}
	return s, nil
}

// DefaultStatusText is the status newly created rows carry.
const DefaultStatusText = `{"type":"NotAvailable"}`
