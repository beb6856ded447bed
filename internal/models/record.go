package models

import "time"

// UserRecord is a user record as stored by the record store. Fields is an
// open-ended document owned by an unrelated service; the engine snapshots
// and restores it without interpreting it.
type UserRecord struct {
	UserID    string    `json:"userId" db:"user_id"`
	Label     string    `json:"label,omitempty" db:"label"`
	Fields    FieldSet  `json:"fields" db:"fields"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`
}
