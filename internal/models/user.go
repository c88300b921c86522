package models

import (
	"time"
)

// MaxBioLength is the longest bio a profile may carry
const MaxBioLength = 500

// User is a student profile
type User struct {
	ID                   string    `json:"id"`
	Email                string    `json:"email"`
	FullName             string    `json:"full_name"`
	Branch               Branch    `json:"branch"`
	Semester             int       `json:"semester"`
	ProfilePictureURL    string    `json:"profile_picture_url,omitempty"`
	Bio                  string    `json:"bio"`
	ProgrammingLanguages []string  `json:"programming_languages"`
	CareerInterests      []string  `json:"career_interests"`
	PasswordHash         string    `json:"-"` // Never serialize
	CreatedAt            time.Time `json:"created_at"`
	UpdatedAt            time.Time `json:"updated_at"`
}

// FirstName returns the first word of the full name
func (u *User) FirstName() string {
	for i, r := range u.FullName {
		if r == ' ' {
			return u.FullName[:i]
		}
	}
	return u.FullName
}

// Profile holds the fields supplied at sign-up
type Profile struct {
	FullName string `json:"full_name"`
	Branch   Branch `json:"branch"`
	Semester int    `json:"semester"`
}

// ProfileUpdate is a partial profile change. Nil fields are left untouched.
type ProfileUpdate struct {
	FullName             *string   `json:"full_name,omitempty"`
	Bio                  *string   `json:"bio,omitempty"`
	ProfilePictureURL    *string   `json:"profile_picture_url,omitempty"`
	ProgrammingLanguages *[]string `json:"programming_languages,omitempty"`
	CareerInterests      *[]string `json:"career_interests,omitempty"`
}

// Apply copies the set fields onto u
func (p ProfileUpdate) Apply(u *User) {
	if p.FullName != nil {
		u.FullName = *p.FullName
	}
	if p.Bio != nil {
		u.Bio = *p.Bio
	}
	if p.ProfilePictureURL != nil {
		u.ProfilePictureURL = *p.ProfilePictureURL
	}
	if p.ProgrammingLanguages != nil {
		u.ProgrammingLanguages = *p.ProgrammingLanguages
	}
	if p.CareerInterests != nil {
		u.CareerInterests = *p.CareerInterests
	}
}

// Fields lists the JSON names of the fields the update sets
func (p ProfileUpdate) Fields() []string {
	var fields []string
	if p.FullName != nil {
		fields = append(fields, "full_name")
	}
	if p.Bio != nil {
		fields = append(fields, "bio")
	}
	if p.ProfilePictureURL != nil {
		fields = append(fields, "profile_picture_url")
	}
	if p.ProgrammingLanguages != nil {
		fields = append(fields, "programming_languages")
	}
	if p.CareerInterests != nil {
		fields = append(fields, "career_interests")
	}
	return fields
}
