package models

import (
	"time"

	"github.com/google/uuid"
)

// Account is a signed-up user. Its ID is the owner id of status records,
// location bindings and friendship participants.
type Account struct {
	ID           uuid.UUID  `json:"id"`
	Email        string     `json:"email"`
	DisplayName  string     `json:"display_name"`
	PasswordHash string     `json:"-"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	DeletedAt    *time.Time `json:"deleted_at,omitempty"`
}
