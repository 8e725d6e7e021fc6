package model

import (
	"strings"

	"ambulance-dispatch-backend/internal/apperr"
)

// Status is the lifecycle state of an ambulance request.
type Status string

const (
	StatusPending         Status = "Pending"
	StatusNew             Status = "New"
	StatusAssigned        Status = "Assigned"
	StatusStarted         Status = "Started"
	StatusPatientReceived Status = "Patient Received"
	StatusPatientReached  Status = "Patient Reached"
	StatusRejected        Status = "Rejected"
)

// Statuses lists every status in lifecycle order, Rejected last.
var Statuses = []Status{
	StatusPending,
	StatusNew,
	StatusAssigned,
	StatusStarted,
	StatusPatientReceived,
	StatusPatientReached,
	StatusRejected,
}

var statusByKey = func() map[string]Status {
	m := make(map[string]Status, len(Statuses))
	for _, s := range Statuses {
		m[statusKey(string(s))] = s
	}
	return m
}()

func statusKey(raw string) string {
	r := strings.NewReplacer("_", " ", "-", " ")
	return strings.Join(strings.Fields(strings.ToLower(r.Replace(raw))), " ")
}

// ParseStatus canonicalizes raw into a known Status.
// "patient_received", "PATIENT-RECEIVED" and " Patient  Received " all map to StatusPatientReceived.
func ParseStatus(raw string) (Status, error) {
	if s, ok := statusByKey[statusKey(raw)]; ok {
		return s, nil
	}
	return "", apperr.Validation("status", "unknown status %q", raw)
}

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	return s.Rank() >= 0 || s == StatusRejected
}

// Rank is the position of s along the forward lifecycle.
// Rejected sits outside the lifecycle and ranks -1, as do unknown values.
func (s Status) Rank() int {
	switch s {
	case StatusPending:
		return 0
	case StatusNew:
		return 1
	case StatusAssigned:
		return 2
	case StatusStarted:
		return 3
	case StatusPatientReceived:
		return 4
	case StatusPatientReached:
		return 5
	}
	return -1
}

// Terminal reports whether no further lifecycle movement is expected.
func (s Status) Terminal() bool {
	return s == StatusPatientReached || s == StatusRejected
}
