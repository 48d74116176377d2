package models

import (
	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/gorm"
)

// Participant roles in the marketplace.
const (
	RoleClient   = "client"
	RoleMechanic = "mechanic"
	RoleWorkshop = "workshop"
	RoleAdmin    = "admin"
)

// Participant is a user that can take part in direct conversations.
// Only the identity and display name matter to messaging; the rest of the
// profile lives with the booking side of the application.
type Participant struct {
	ID    string         `gorm:"primaryKey" json:"id"`
	Name  string         `gorm:"type:text;not null" json:"name"`
	Roles pq.StringArray `gorm:"type:text[]" json:"roles,omitempty"`
}

// BeforeCreate is a GORM hook that assigns a UUID when no ID was provided.
func (p *Participant) BeforeCreate(tx *gorm.DB) (err error) {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	return
}

// HasRole reports whether the participant carries the given role.
func (p *Participant) HasRole(role string) bool {
	for _, r := range p.Roles {
		if r == role {
			return true
		}
	}
	return false
}
