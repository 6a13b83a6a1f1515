package domain

import "time"

// Grade is the top of the curriculum hierarchy:
// grade -> subject -> term -> unit -> flashcard.
type Grade struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

type Subject struct {
	ID          int64  `json:"id"`
	GradeID     int64  `json:"grade_id"`
	Name        string `json:"name"`
	Code        string `json:"code"`
	Description string `json:"description"`
}

type Term struct {
	ID          int64  `json:"id"`
	SubjectID   int64  `json:"subject_id"`
	TermNumber  int    `json:"term_number"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Unit is a flashcard library.
type Unit struct {
	ID          int64  `json:"id"`
	TermID      int64  `json:"term_id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	OrderIndex  int    `json:"order_index"`
}

// User is a learner. Progress and responses are keyed by User.ID.
type User struct {
	ID                 string     `json:"id"`
	Name               string     `json:"name" validate:"required"`
	Language           string     `json:"language" validate:"omitempty,bcp47_language_tag"`
	GradeID            *int64     `json:"grade_id,omitempty"`
	PreferredSubjectID *int64     `json:"preferred_subject_id,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
	LastLogin          *time.Time `json:"last_login,omitempty"`
}

// Validate fills the default language and checks field constraints.
func (u *User) Validate() error {
	if u.Language == "" {
		u.Language = "en"
	}
	return validate.Struct(u)
}
