package domain

import (
	"encoding/json"
	"fmt"
)

type Status uint8

const (
	StatusCreated Status = iota + 1
	StatusConfirmed
	StatusRejected
	StatusInSeparation
	StatusCancelled
	StatusFinished
)

var statusNames = map[Status]string{
	StatusCreated:      "Created",
	StatusConfirmed:    "Confirmed",
	StatusRejected:     "Rejected",
	StatusInSeparation: "InSeparation",
	StatusCancelled:    "Cancelled",
	StatusFinished:     "Finished",
}

// AllStatuses lists every status in declaration order.
func AllStatuses() []Status {
	return []Status{StatusCreated, StatusConfirmed, StatusRejected, StatusInSeparation, StatusCancelled, StatusFinished}
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("Status(%d)", uint8(s))
}

func (s Status) IsValid() bool {
	_, ok := statusNames[s]
	return ok
}

func (s Status) IsTerminal() bool {
	return s.IsValid() && len(s.targets()) == 0
}

// targets is the transition table. Every status must have a case.
func (s Status) targets() []Status {
	switch s {
	case StatusCreated:
		return []Status{StatusConfirmed, StatusRejected}
	case StatusConfirmed:
		return []Status{StatusInSeparation, StatusCancelled}
	case StatusInSeparation:
		return []Status{StatusFinished, StatusCancelled}
	case StatusRejected, StatusCancelled, StatusFinished:
		return nil
	default:
		return nil
	}
}

func (s Status) CanTransitionTo(to Status) bool {
	for _, t := range s.targets() {
		if t == to {
			return true
		}
	}
	return false
}

// Next returns the status reached by moving from s to to, or an
// *InvalidTransitionError when the table does not allow it.
func (s Status) Next(to Status) (Status, error) {
	if !s.CanTransitionTo(to) {
		return s, &InvalidTransitionError{From: s, To: to}
	}
	return to, nil
}

func ParseStatus(v string) (Status, error) {
	for s, name := range statusNames {
		if name == v {
			return s, nil
		}
	}
	return 0, fmt.Errorf("unknown order status %q", v)
}

func (s Status) MarshalJSON() ([]byte, error) {
	if !s.IsValid() {
		return nil, fmt.Errorf("marshal invalid order status %d", uint8(s))
	}
	return json.Marshal(s.String())
}

func (s *Status) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	parsed, err := ParseStatus(name)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
