package models

import (
	"time"
)

// Difficulty is the difficulty tier of a challenge
type Difficulty string

const (
	DifficultyEasy   Difficulty = "Easy"
	DifficultyMedium Difficulty = "Medium"
	DifficultyHard   Difficulty = "Hard"
)

// Difficulties lists all tiers in display order
var Difficulties = []Difficulty{DifficultyEasy, DifficultyMedium, DifficultyHard}

// Valid reports whether d is one of the known tiers
func (d Difficulty) Valid() bool {
	switch d {
	case DifficultyEasy, DifficultyMedium, DifficultyHard:
		return true
	}
	return false
}

// Branch is the academic discipline a user or challenge belongs to
type Branch string

const (
	BranchCSE Branch = "CSE"
	BranchIT  Branch = "IT"
	BranchECE Branch = "ECE"

	// BranchGeneral marks a challenge that belongs to every branch
	BranchGeneral Branch = "General"
)

// Branches lists the branches a user can register with
var Branches = []Branch{BranchCSE, BranchIT, BranchECE}

// Valid reports whether b is a user branch
func (b Branch) Valid() bool {
	switch b {
	case BranchCSE, BranchIT, BranchECE:
		return true
	}
	return false
}

// Language is a programming language the editor supports
type Language string

const (
	LanguageJavaScript Language = "javascript"
	LanguagePython     Language = "python"
	LanguageJava       Language = "java"
	LanguageCPP        Language = "cpp"
)

// DefaultLanguage is selected when an editor session opens
const DefaultLanguage = LanguageJavaScript

// Languages lists all supported languages
var Languages = []Language{LanguageJavaScript, LanguagePython, LanguageJava, LanguageCPP}

// Valid reports whether l is a supported language
func (l Language) Valid() bool {
	switch l {
	case LanguageJavaScript, LanguagePython, LanguageJava, LanguageCPP:
		return true
	}
	return false
}

// StarterCode maps a language to its starter source text
type StarterCode map[Language]string

// Has reports whether starter code exists for the language
func (s StarterCode) Has(lang Language) bool {
	_, ok := s[lang]
	return ok
}

// Languages returns the languages with starter code, in canonical order
func (s StarterCode) Languages() []Language {
	result := make([]Language, 0, len(s))
	for _, lang := range Languages {
		if s.Has(lang) {
			result = append(result, lang)
		}
	}
	return result
}

// TestCase is one input/expected-output pair
type TestCase struct {
	Input  string `json:"input" yaml:"input"`
	Output string `json:"output" yaml:"output"`
}

// Challenge is a single coding exercise
type Challenge struct {
	ID           string      `json:"id"`
	Title        string      `json:"title"`
	Description  string      `json:"description"`
	Difficulty   Difficulty  `json:"difficulty"`
	Branch       Branch      `json:"branch"`
	Topic        string      `json:"topic"`
	StarterCode  StarterCode `json:"starter_code"`
	TestCases    []TestCase  `json:"test_cases"`
	SolutionCode string      `json:"-"`
	CreatedAt    time.Time   `json:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at"`
}

// ChallengeFilter selects a subset of challenges.
// Zero-valued fields do not constrain the result.
type ChallengeFilter struct {
	Search     string     `json:"search,omitempty"`
	Difficulty Difficulty `json:"difficulty,omitempty"`
	Branch     Branch     `json:"branch,omitempty"`
	Topic      string     `json:"topic,omitempty"`
}

// IsEmpty reports whether the filter keeps every challenge
func (f ChallengeFilter) IsEmpty() bool {
	return f == ChallengeFilter{}
}
