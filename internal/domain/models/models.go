package models

import (
	"encoding/json"
	"time"
)

const (
	StatusCreated    = "created"
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
)

// Task is the wire shape of one task. Storage columns are snake_case
// and translated through FieldColumns.
type Task struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description *string    `json:"description"`
	Status      string     `json:"status"`
	UserID      string     `json:"userId"`
	Address     *string    `json:"address"`
	DueDate     *time.Time `json:"dueDate"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

// User rows are created implicitly when the subject creates its first
// task; ID equals the identity provider's subject identifier.
type User struct {
	ID       string  `json:"id"`
	Email    string  `json:"email" validate:"omitempty,email"`
	Name     *string `json:"name"`
	PhotoURL *string `json:"photoUrl"`
}

type CreateTaskRequest struct {
	Title       string `json:"title" validate:"required,min=1,max=255"`
	Description string `json:"description"`
	Status      string `json:"status" validate:"omitempty,oneof=created in_progress completed"`
	Address     string `json:"address" validate:"omitempty,max=500"`
	DueDate     string `json:"dueDate"`
}

// PatchField distinguishes a field omitted from a request body from one
// explicitly set to null: an omitted field must stay untouched, a null
// clears the column.
type PatchField struct {
	Set   bool
	Value *string
}

func (f *PatchField) UnmarshalJSON(data []byte) error {
	f.Set = true
	if string(data) == "null" {
		f.Value = nil
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	f.Value = &s
	return nil
}

// PatchString builds a field carrying a value.
func PatchString(s string) PatchField {
	return PatchField{Set: true, Value: &s}
}

// PatchNull builds a field that clears its column.
func PatchNull() PatchField {
	return PatchField{Set: true}
}

// TaskPatch is a partial update: each field is independently present or
// absent, and only present fields reach the UPDATE statement.
type TaskPatch struct {
	Title       PatchField `json:"title"`
	Description PatchField `json:"description"`
	Status      PatchField `json:"status"`
	Address     PatchField `json:"address"`
	DueDate     PatchField `json:"dueDate"`
}

func (p TaskPatch) Empty() bool {
	return !p.Title.Set && !p.Description.Set && !p.Status.Set && !p.Address.Set && !p.DueDate.Set
}

func (p TaskPatch) MarshalJSON() ([]byte, error) {
	out := make(map[string]*string, 5)
	if p.Title.Set {
		out["title"] = p.Title.Value
	}
	if p.Description.Set {
		out["description"] = p.Description.Value
	}
	if p.Status.Set {
		out["status"] = p.Status.Value
	}
	if p.Address.Set {
		out["address"] = p.Address.Value
	}
	if p.DueDate.Set {
		out["dueDate"] = p.DueDate.Value
	}
	return json.Marshal(out)
}

// FieldColumn ties one wire (JSON) field name to its storage column.
type FieldColumn struct {
	Wire   string
	Column string
}

// FieldColumns is a fixed table rather than a string transformation, so
// a renamed column has to be updated here explicitly instead of
// drifting silently.
var FieldColumns = []FieldColumn{
	{Wire: "id", Column: "id"},
	{Wire: "title", Column: "title"},
	{Wire: "description", Column: "description"},
	{Wire: "status", Column: "status"},
	{Wire: "userId", Column: "user_id"},
	{Wire: "address", Column: "address"},
	{Wire: "dueDate", Column: "due_date"},
	{Wire: "createdAt", Column: "created_at"},
	{Wire: "updatedAt", Column: "updated_at"},
}

func ColumnFor(wire string) (string, bool) {
	for _, fc := range FieldColumns {
		if fc.Wire == wire {
			return fc.Column, true
		}
	}
	return "", false
}

func WireFor(column string) (string, bool) {
	for _, fc := range FieldColumns {
		if fc.Column == column {
			return fc.Wire, true
		}
	}
	return "", false
}

var dueDateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
}

// ParseDueDate coerces an unparseable due date to absent instead of
// rejecting the request.
func ParseDueDate(raw string) *time.Time {
	if raw == "" {
		return nil
	}
	for _, layout := range dueDateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}
