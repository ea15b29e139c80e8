package entity

import "github.com/joseph-ayodele/citizen-docs/constants"

// Citizen is a person record on the backend.
type Citizen struct {
	ID          ID               `json:"id"`
	UserID      ID               `json:"user_id,omitempty"`
	Name        string           `json:"name"`
	DateOfBirth string           `json:"date_of_birth,omitempty"`
	Gender      constants.Gender `json:"gender,omitempty"`
	Nationality string           `json:"nationality,omitempty"`
}

// CitizenUpdate carries the fields a PATCH may change. Nil means unchanged.
type CitizenUpdate struct {
	Name        *string           `json:"name,omitempty"`
	DateOfBirth *string           `json:"date_of_birth,omitempty"`
	Gender      *constants.Gender `json:"gender,omitempty"`
	Nationality *string           `json:"nationality,omitempty"`
}
