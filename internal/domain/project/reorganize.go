package project

import (
	"regexp"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"
)

var milestonePatterns = []*regexp.Regexp{
	regexp.MustCompile(`^[PM]\d+$`),
	regexp.MustCompile(`(?i)^(M\d+|ZIEL|Milestone)$`),
	regexp.MustCompile(`^\d+\.$`),
}

// IsMilestoneID reports whether taskID names a milestone; milestones keep their ids.
func IsMilestoneID(taskID string) bool {
	for _, re := range milestonePatterns {
		if re.MatchString(taskID) {
			return true
		}
	}
	return false
}

// PhaseBoundaries are the inclusive last start dates of phases 1 to 4.
// Anything later belongs to phase 5.
var PhaseBoundaries = []time.Time{
	time.Date(2025, 10, 9, 0, 0, 0, 0, time.UTC),
	time.Date(2025, 10, 17, 0, 0, 0, 0, time.UTC),
	time.Date(2025, 10, 24, 0, 0, 0, 0, time.UTC),
	time.Date(2025, 11, 6, 0, 0, 0, 0, time.UTC),
}

// Phase returns the 1-based phase for a task starting at start.
func Phase(start time.Time) int {
	for i, boundary := range PhaseBoundaries {
		if !start.After(boundary) {
			return i + 1
		}
	}
	return len(PhaseBoundaries) + 1
}

// Renumbering is one id change produced by Reorganize.
type Renumbering struct {
	ID    uuid.UUID `json:"-"`
	Old   string    `json:"old"`
	New   string    `json:"new"`
	Title string    `json:"task"`
}

// TempID is the placeholder id a task holds while ids are swapped.
func (r Renumbering) TempID() string {
	return "TEMP_" + r.ID.String()
}

// Reorganize renumbers regular tasks as "phase.seq" in start date order,
// breaking ties by the old id. Milestones are left alone. Only tasks whose
// id actually changes are returned.
func Reorganize(tasks []Task) []Renumbering {
	regular := make([]Task, 0, len(tasks))
	for _, t := range tasks {
		if !IsMilestoneID(t.TaskID) {
			regular = append(regular, t)
		}
	}
	sort.SliceStable(regular, func(i, j int) bool {
		if !regular[i].StartDate.Equal(regular[j].StartDate) {
			return regular[i].StartDate.Before(regular[j].StartDate)
		}
		return regular[i].TaskID < regular[j].TaskID
	})

	seq := make(map[int]int)
	var changes []Renumbering
	for _, t := range regular {
		phase := Phase(t.StartDate)
		seq[phase]++
		newID := strconv.Itoa(phase) + "." + strconv.Itoa(seq[phase])
		if newID != t.TaskID {
			changes = append(changes, Renumbering{ID: t.ID, Old: t.TaskID, New: newID, Title: t.Task})
		}
	}
	return changes
}
