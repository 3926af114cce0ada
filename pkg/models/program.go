package models

import (
	"time"

	"github.com/lib/pq"
)

// ProgramStatus is the lifecycle state of a catalog program
type ProgramStatus string

const (
	ProgramStatusActive   ProgramStatus = "active"
	ProgramStatusInactive ProgramStatus = "inactive"
	ProgramStatusPending  ProgramStatus = "pending"
	ProgramStatusRejected ProgramStatus = "rejected"
)

// Program is a catalog activity listing. Programs are never hard-deleted;
// a merged program stays readable with status inactive and merged_into set
// to its survivor.
type Program struct {
	ID              string         `json:"id" db:"id"`
	Name            string         `json:"name" db:"name"`
	Provider        string         `json:"provider" db:"provider"`
	Categories      pq.StringArray `json:"categories" db:"categories"`
	Description     string         `json:"description" db:"description"`
	ContactEmail    string         `json:"contact_email" db:"contact_email"`
	ContactPhone    string         `json:"contact_phone" db:"contact_phone"`
	Website         string         `json:"website" db:"website"`
	RegistrationURL string         `json:"registration_url" db:"registration_url"`
	PriceMin        *float64       `json:"price_min,omitempty" db:"price_min"`
	PriceMax        *float64       `json:"price_max,omitempty" db:"price_max"`
	PriceUnit       *string        `json:"price_unit,omitempty" db:"price_unit"`
	Rating          *float64       `json:"rating,omitempty" db:"rating"`
	RatingCount     *int           `json:"rating_count,omitempty" db:"rating_count"`
	Status          ProgramStatus  `json:"status" db:"status"`
	MergedInto      *string        `json:"merged_into,omitempty" db:"merged_into"`
	CreatedAt       time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at" db:"updated_at"`

	// Location is loaded from program_locations. Retired programs keep
	// their own row for historical traceability.
	Location *ProgramLocation `json:"location,omitempty" db:"-"`
}

// ProgramLocation is a program's place of operation
type ProgramLocation struct {
	ProgramID    string     `json:"program_id" db:"program_id"`
	Address      string     `json:"address" db:"address"`
	Neighborhood string     `json:"neighborhood" db:"neighborhood"`
	Latitude     *float64   `json:"latitude,omitempty" db:"latitude"`
	Longitude    *float64   `json:"longitude,omitempty" db:"longitude"`
	UpdatedAt    *time.Time `json:"updated_at,omitempty" db:"updated_at"`
}

// IsRetired reports whether the program has been merged into another
func (p *Program) IsRetired() bool {
	return p.MergedInto != nil
}

// CreateProgramRequest is the request for creating a program
type CreateProgramRequest struct {
	Name            string   `json:"name" validate:"required"`
	Provider        string   `json:"provider" validate:"required"`
	Categories      []string `json:"categories"`
	Description     string   `json:"description"`
	ContactEmail    string   `json:"contact_email" validate:"omitempty,email"`
	ContactPhone    string   `json:"contact_phone"`
	Website         string   `json:"website" validate:"omitempty,url"`
	RegistrationURL string   `json:"registration_url" validate:"omitempty,url"`
	PriceMin        *float64 `json:"price_min,omitempty"`
	PriceMax        *float64 `json:"price_max,omitempty"`
	PriceUnit       *string  `json:"price_unit,omitempty"`
	Address         string   `json:"address"`
	Neighborhood    string   `json:"neighborhood"`
	Latitude        *float64 `json:"latitude,omitempty"`
	Longitude       *float64 `json:"longitude,omitempty"`
}

// UpdateProgramRequest is the request for updating a program
type UpdateProgramRequest struct {
	Name            *string  `json:"name,omitempty"`
	Provider        *string  `json:"provider,omitempty"`
	Categories      []string `json:"categories,omitempty"`
	Description     *string  `json:"description,omitempty"`
	ContactEmail    *string  `json:"contact_email,omitempty" validate:"omitempty,email"`
	ContactPhone    *string  `json:"contact_phone,omitempty"`
	Website         *string  `json:"website,omitempty" validate:"omitempty,url"`
	RegistrationURL *string  `json:"registration_url,omitempty" validate:"omitempty,url"`
	PriceMin        *float64 `json:"price_min,omitempty"`
	PriceMax        *float64 `json:"price_max,omitempty"`
	PriceUnit       *string  `json:"price_unit,omitempty"`
}

// CreateProgramResponse returns the created program plus any likely
// duplicates found by the intake check
type CreateProgramResponse struct {
	Program    Program            `json:"program"`
	Duplicates []DuplicateWarning `json:"duplicates,omitempty"`
}

// DuplicateWarning flags an existing program that scored above the intake
// duplicate threshold against a newly created one
type DuplicateWarning struct {
	ProgramID string   `json:"program_id"`
	Name      string   `json:"name"`
	Score     float64  `json:"score"`
	Reasons   []string `json:"reasons"`
}

// ProgramListResponse is the response for listing programs
type ProgramListResponse struct {
	Items      []Program `json:"items"`
	TotalCount int       `json:"total_count"`
	Page       int       `json:"page"`
	PageSize   int       `json:"page_size"`
}
