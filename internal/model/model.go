package model

import (
	"fmt"
	"strings"
)

// Language selects the speech grammar and the clip directory.
type Language int

const (
	German Language = iota
	English
)

// Code returns the two-letter code persisted in state and used on the CLI.
func (l Language) Code() string {
	if l == English {
		return "EN"
	}
	return "DE"
}

func (l Language) String() string {
	if l == English {
		return "english"
	}
	return "german"
}

// ParseLanguage accepts "DE"/"EN" as well as the spelled-out names, in any case.
func ParseLanguage(s string) (Language, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DE", "GERMAN", "DEUTSCH":
		return German, nil
	case "EN", "ENGLISH":
		return English, nil
	default:
		return German, fmt.Errorf("unknown language %q", s)
	}
}

// MarshalText implements encoding.TextMarshaler so YAML and JSON carry "DE"/"EN".
func (l Language) MarshalText() ([]byte, error) {
	return []byte(l.Code()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (l *Language) UnmarshalText(b []byte) error {
	v, err := ParseLanguage(string(b))
	if err != nil {
		return err
	}
	*l = v
	return nil
}

// NoPause marks a playlist that plays as one contiguous block.
const NoPause = -1

// Playlist is the ordered list of clip ids produced for one time or date.
type Playlist struct {
	Language Language
	Clips    []string
	// PauseAfter is the index of the clip after which the player must insert
	// a short pause before continuing, or NoPause.
	PauseAfter int
}

// Len returns the number of clips.
func (p Playlist) Len() int { return len(p.Clips) }

// Empty reports whether there is nothing to play.
func (p Playlist) Empty() bool { return len(p.Clips) == 0 }
