package menu

import (
	"fmt"
	"strings"
)

// Style is a fixed photographic preset applied to a whole generation batch.
type Style string

const (
	StyleModern      Style = "modern"
	StyleRustic      Style = "rustic"
	StyleSocialMedia Style = "social"
)

// DefaultStyle is used when a submission does not name one.
const DefaultStyle = StyleModern

type styleInfo struct {
	label      string
	descriptor string
}

var styles = map[Style]styleInfo{
	StyleModern: {
		label:      "Bright & Modern",
		descriptor: "The style is bright, modern, and minimalist. The dish is on a clean white plate against a light, airy background. Focus on clean lines and vibrant, natural colors.",
	},
	StyleRustic: {
		label:      "Rustic & Dark",
		descriptor: "The style is rustic and dark, with moody, dramatic lighting. The dish is presented on a dark wooden table with vintage cutlery. Emphasize texture and deep colors.",
	},
	StyleSocialMedia: {
		label:      "Social Media",
		descriptor: "This is a top-down flat lay shot, perfect for social media. The dish is arranged beautifully with colorful garnishes and ingredients scattered around. The lighting is bright and even. Make it look delicious and shareable.",
	},
}

// Styles lists the presets in the order the picker shows them.
func Styles() []Style {
	return []Style{StyleModern, StyleRustic, StyleSocialMedia}
}

// ParseStyle maps a wire name to a Style. An empty value yields DefaultStyle.
func ParseStyle(raw string) (Style, error) {
	s := Style(strings.ToLower(strings.TrimSpace(raw)))
	if s == "" {
		return DefaultStyle, nil
	}
	if _, ok := styles[s]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownStyle, raw)
	}
	return s, nil
}

// Valid reports whether s is one of the known presets.
func (s Style) Valid() bool {
	_, ok := styles[s]
	return ok
}

func (s Style) Label() string {
	return styles[s].label
}

// Descriptor is the sentence embedded in generation prompts.
func (s Style) Descriptor() string {
	return styles[s].descriptor
}
