/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package reqsched

import "fmt"

// Priority defines the admission precedence of a request. Higher priorities
// are always dispatched before lower ones; submission order breaks ties only
// within the same priority. Already dispatched work is never preempted.
type Priority int

// Supported priorities. PriorityNormal is the zero value and the default.
const (
	PriorityNormal Priority = iota
	PriorityLow
	PriorityHigh
	PriorityCritical
)

const prioritiesCount = 4

var allPriorities = [prioritiesCount]Priority{PriorityCritical, PriorityHigh, PriorityNormal, PriorityLow}

// String returns the priority name.
func (p Priority) String() string {
	switch p {
	case PriorityCritical:
		return "critical"
	case PriorityHigh:
		return "high"
	case PriorityNormal:
		return "normal"
	case PriorityLow:
		return "low"
	}
	return fmt.Sprintf("priority(%d)", int(p))
}

// IsValid checks if the priority is one of the supported values.
func (p Priority) IsValid() bool {
	switch p {
	case PriorityCritical, PriorityHigh, PriorityNormal, PriorityLow:
		return true
	}
	return false
}

// ParsePriority parses the priority from its string representation.
func ParsePriority(s string) (Priority, error) {
	switch s {
	case "critical":
		return PriorityCritical, nil
	case "high":
		return PriorityHigh, nil
	case "normal":
		return PriorityNormal, nil
	case "low":
		return PriorityLow, nil
	}
	return 0, fmt.Errorf("unknown priority %q", s)
}

// rank returns the dispatch precedence of the priority, 0 being the highest.
func (p Priority) rank() int {
	switch p {
	case PriorityCritical:
		return 0
	case PriorityHigh:
		return 1
	case PriorityNormal:
		return 2
	}
	return 3
}
