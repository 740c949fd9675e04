package models

import (
	"time"

	"github.com/google/uuid"
)

// Project is the top-level container datasets and unified data belong to.
// Ownership and access control live outside the engine; only the ID is used
// for scoping.
type Project struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
