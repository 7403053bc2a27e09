package theme

import (
	"errors"
	"fmt"
	"strings"
)

// Theme is one of the closed set of room themes
type Theme string

const (
	Rainy    Theme = "rainy"
	Midnight Theme = "midnight"
	Forest   Theme = "forest"
)

var ErrUnknownTheme = errors.New("unknown theme")

// Object is an interactive slot a user can control
type Object struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Sound string `json:"sound"` // file name of the looping sound
}

// Config describes everything static about a theme
type Config struct {
	Theme      Theme    `json:"theme"`
	Name       string   `json:"name"`
	Background string   `json:"background"` // file name of the background loop
	Objects    []Object `json:"objects"`
}

// Order matters: it is the order clients render objects in
var catalog = map[Theme]Config{
	Rainy: {
		Theme:      Rainy,
		Name:       "Rainy Room",
		Background: "background.mp3",
		Objects: []Object{
			{ID: "cat", Name: "Vibing Cat", Sound: "cat-strip.wav"},
			{ID: "kettle", Name: "Kettle", Sound: "kettle-boiling.wav"},
			{ID: "computer", Name: "Computer", Sound: "computer-running.wav"},
			{ID: "window", Name: "Rain Window", Sound: "window-raining.wav"},
		},
	},
	Midnight: {
		Theme:      Midnight,
		Name:       "Midnight Mart",
		Background: "background.mp3",
		Objects: []Object{
			{ID: "neon", Name: "Neon Sign", Sound: "neon-buzz.wav"},
			{ID: "fridge", Name: "Fridge", Sound: "fridge-hum.wav"},
			{ID: "radio", Name: "Radio", Sound: "radio-lofi.wav"},
			{ID: "vending", Name: "Vending Machine", Sound: "vending.wav"},
		},
	},
	Forest: {
		Theme:      Forest,
		Name:       "Forest Camp",
		Background: "background.mp3",
		Objects: []Object{
			{ID: "fire", Name: "Campfire", Sound: "fire-crackle.wav"},
			{ID: "tent", Name: "Tent", Sound: "tent-rustling.wav"},
			{ID: "trees", Name: "Trees", Sound: "trees-wind.wav"},
			{ID: "guitar", Name: "Guitar", Sound: "guitar.wav"},
		},
	},
}

// All returns every theme in a stable order
func All() []Theme {
	return []Theme{Rainy, Midnight, Forest}
}

// Parse validates a raw theme name. Matching is exact: "Rainy" is rejected
func Parse(raw string) (Theme, error) {
	t := Theme(raw)
	if _, ok := catalog[t]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownTheme, raw)
	}
	return t, nil
}

// Valid reports whether t is a known theme
func (t Theme) Valid() bool {
	_, ok := catalog[t]
	return ok
}

// Lookup returns a copy of the theme config
func Lookup(t Theme) (Config, bool) {
	cfg, ok := catalog[t]
	if !ok {
		return Config{}, false
	}
	cfg.Objects = append([]Object(nil), cfg.Objects...)
	return cfg, true
}

// Objects returns the ordered object catalog of a theme, nil for unknown themes
func Objects(t Theme) []Object {
	cfg, ok := Lookup(t)
	if !ok {
		return nil
	}
	return cfg.Objects
}

// ObjectIDs returns the ordered object ids of a theme
func ObjectIDs(t Theme) []string {
	objects := catalog[t].Objects
	ids := make([]string, len(objects))
	for i, o := range objects {
		ids[i] = o.ID
	}
	return ids
}

// HasObject reports whether objectID belongs to the theme
func HasObject(t Theme, objectID string) bool {
	for _, o := range catalog[t].Objects {
		if o.ID == objectID {
			return true
		}
	}
	return false
}

// SoundKey is the object storage key of an object's loop
func SoundKey(t Theme, file string) string {
	return strings.Join([]string{"sounds", string(t), file}, "/")
}
