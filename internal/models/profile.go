package models

// Profile is the slice of a user document at users/{id} that messaging
// reads. Profiles are owned and edited elsewhere.
type Profile struct {
	ID           string   `json:"id,omitempty"`
	Name         string   `json:"name"`
	Subject      string   `json:"subject,omitempty"`
	University   string   `json:"university,omitempty"`
	StudyBuddies []string `json:"studyBuddies,omitempty"` // IDs of accepted matches
}
