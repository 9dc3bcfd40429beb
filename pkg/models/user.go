package models

import (
	"time"

	"github.com/google/uuid"
)

// User represents an employee of the organization. Identity is established
// by the external identity provider; this record only anchors row ownership.
type User struct {
	ID        uuid.UUID `db:"id"         json:"id"`
	Email     string    `db:"email"      json:"email"`
	Name      string    `db:"name"       json:"name"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}
