package domain

import (
	"encoding/json"
	"time"
)

// Task represents a single unit of work tracked by the service.
type Task struct {
	ID          int64     `json:"id"`
	Title       string    `json:"title"`
	Description *string   `json:"description"`
	Completed   bool      `json:"completed"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Touch stamps the task with now. CreatedAt is only set once.
func (t *Task) Touch(now time.Time) {
	if t == nil {
		return
	}
	now = Timestamp(now)
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	t.UpdatedAt = now
}

// Apply copies the supplied patch fields onto the task and advances UpdatedAt.
func (t *Task) Apply(patch TaskPatch, now time.Time) {
	if t == nil {
		return
	}
	if patch.Title != nil {
		t.Title = *patch.Title
	}
	if patch.Description.Set {
		t.Description = patch.Description.Value
	}
	if patch.Completed != nil {
		t.Completed = *patch.Completed
	}

	now = Timestamp(now)
	if !now.After(t.UpdatedAt) {
		now = t.UpdatedAt.Add(time.Microsecond)
	}
	t.UpdatedAt = now
}

// TaskPatch carries a partial update. Nil pointers leave the field untouched.
type TaskPatch struct {
	Title       *string
	Description NullableString
	Completed   *bool
}

// NullableString tells an absent JSON field apart from an explicit null.
type NullableString struct {
	Set   bool
	Value *string
}

func (n *NullableString) UnmarshalJSON(data []byte) error {
	n.Set = true
	if string(data) == "null" {
		n.Value = nil
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	n.Value = &s
	return nil
}

// Timestamp normalizes t to UTC with microsecond precision, matching what
// Postgres TIMESTAMPTZ can store.
func Timestamp(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}
