// Package story generates, stores and serves the stories users ask for.
// Generation is gated by the quota policy and only counted once the text
// provider has returned a story.
package story

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// MaxAudioGenerations is how many audio renditions one story allows.
const MaxAudioGenerations = 1

var (
	ErrNotFound            = errors.New("story not found")
	ErrConcurrencyConflict = errors.New("story was modified concurrently")
	ErrAudioLimit          = errors.New("audio limit reached for this story")
	ErrForbidden           = errors.New("story belongs to another user")
	ErrUpstreamFailure     = errors.New("story generation failed")
	ErrEmptyCompletion     = errors.New("text provider returned no content")
)

type Language string

const (
	LanguageES Language = "es"
	LanguageEN Language = "en"
)

// ParseLanguage falls back to Spanish for anything that is not English.
func ParseLanguage(s string) Language {
	if strings.EqualFold(strings.TrimSpace(s), string(LanguageEN)) {
		return LanguageEN
	}
	return LanguageES
}

type Length string

const (
	LengthShort  Length = "short"
	LengthMedium Length = "medium"
	LengthLong   Length = "long"
)

// ParseLength accepts the English and Spanish names. Unknown values are medium.
func ParseLength(s string) Length {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "short", "corto":
		return LengthShort
	case "long", "largo":
		return LengthLong
	}
	return LengthMedium
}

// Words is the exact word count requested from the provider.
func (l Length) Words() int {
	switch l {
	case LengthShort:
		return 100
	case LengthLong:
		return 600
	}
	return 300
}

// Params are the user's choices for one story, echoed back in responses.
type Params struct {
	Topic           string `json:"topic" bson:"topic" validate:"required,max=200"`
	Length          string `json:"length,omitempty" bson:"length,omitempty"`
	StoryType       string `json:"storyType,omitempty" bson:"story_type,omitempty" validate:"max=60"`
	CreativityLevel string `json:"creativityLevel,omitempty" bson:"creativity_level,omitempty"`
	AgeGroup        string `json:"ageGroup,omitempty" bson:"age_group,omitempty" validate:"omitempty,oneof=3-6 7-13 13-20 21-35 35+"`
	ChildNames      string `json:"childNames,omitempty" bson:"child_names,omitempty" validate:"max=200"`
	EnglishLevel    string `json:"englishLevel,omitempty" bson:"english_level,omitempty" validate:"omitempty,oneof=basic intermediate advanced"`
	Language        string `json:"language,omitempty" bson:"language,omitempty" validate:"omitempty,oneof=es en"`
}

// Normalize trims fields and fills the language default.
func (p Params) Normalize() Params {
	p.Topic = strings.TrimSpace(p.Topic)
	p.Length = strings.ToLower(strings.TrimSpace(p.Length))
	p.StoryType = strings.TrimSpace(p.StoryType)
	p.CreativityLevel = strings.ToLower(strings.TrimSpace(p.CreativityLevel))
	p.AgeGroup = strings.TrimSpace(p.AgeGroup)
	p.ChildNames = strings.TrimSpace(p.ChildNames)
	p.EnglishLevel = strings.ToLower(strings.TrimSpace(p.EnglishLevel))
	p.Language = string(ParseLanguage(p.Language))
	return p
}

type Story struct {
	ID               uuid.UUID
	UserID           uuid.UUID
	Title            string
	Content          string
	Parameters       Params
	AudioGenerations int
	Version          int64
	CreatedAt        time.Time
}

func (s *Story) CanGenerateAudio() bool {
	return s.AudioGenerations < MaxAudioGenerations
}

func (s *Story) Clone() *Story {
	c := *s
	return &c
}

type Store interface {
	// Create inserts s and sets s.Version to 1.
	Create(ctx context.Context, s *Story) error
	FindByID(ctx context.Context, id uuid.UUID) (*Story, error)
	// Save persists s only if the stored version equals s.Version.
	Save(ctx context.Context, s *Story) error
}
