package models

import (
	"strings"
	"time"
)

const DefaultTaskStatus = "pending"

type Task struct {
	ID          int64     `json:"id"`
	RoomID      string    `json:"room_id"`
	Title       string    `json:"title"`
	Description *string   `json:"description"`
	AssignedTo  *string   `json:"assigned_to"`
	Status      string    `json:"status"`
	CreatedBy   string    `json:"created_by"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type TaskFilter struct {
	Status     string
	AssignedTo string
}

func (f TaskFilter) Matches(t *Task) bool {
	if f.Status != "" && t.Status != f.Status {
		return false
	}
	if f.AssignedTo != "" && (t.AssignedTo == nil || *t.AssignedTo != f.AssignedTo) {
		return false
	}
	return true
}

// TaskPatch lists the mutable task fields. A nil field is left untouched.
//
// A field sent as an empty string counts as not provided: Normalize drops it,
// so a patch cannot clear a field to empty.
type TaskPatch struct {
	Status      *string `json:"status"`
	AssignedTo  *string `json:"assigned_to"`
	Title       *string `json:"title"`
	Description *string `json:"description"`
}

// Normalize returns a copy with empty-string fields removed.
func (p TaskPatch) Normalize() TaskPatch {
	drop := func(s *string) *string {
		if s == nil || strings.TrimSpace(*s) == "" {
			return nil
		}
		v := *s
		return &v
	}
	return TaskPatch{
		Status:      drop(p.Status),
		AssignedTo:  drop(p.AssignedTo),
		Title:       drop(p.Title),
		Description: drop(p.Description),
	}
}

func (p TaskPatch) Empty() bool {
	return p.Status == nil && p.AssignedTo == nil && p.Title == nil && p.Description == nil
}

// Apply writes the non-nil fields onto t and stamps updated_at.
func (p TaskPatch) Apply(t *Task, now time.Time) {
	if p.Status != nil {
		t.Status = *p.Status
	}
	if p.AssignedTo != nil {
		v := *p.AssignedTo
		t.AssignedTo = &v
	}
	if p.Title != nil {
		t.Title = *p.Title
	}
	if p.Description != nil {
		v := *p.Description
		t.Description = &v
	}
	t.UpdatedAt = now
}
