// Package naming generates human-friendly raid room names such as
// "mighty_sneaky_murloc". Names only use word characters so that they can
// be embedded in a websocket room path.
package naming

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strings"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

var adjectives = []string{
	"fierce", "mighty", "sneaky", "arcane", "shadowy", "holy", "ferocious", "cunning",
	"valiant", "mystic", "ancient", "legendary", "heroic", "fearsome", "noble",
	"whimsical", "jolly", "mischievous", "glorious", "bouncy", "zany", "quirky",
}

var nouns = []string{
	"kobold", "ogre", "murloc", "gnoll", "harpy", "quillboar", "trogg",
	"centaur", "naga", "satyr", "worgen", "dragon", "elemental", "gargoyle", "lich",
}

// suffixAlphabet keeps collision suffixes inside \w.
const suffixAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

// MaxWordAttempts is how many plain word combinations are tried before a
// random suffix is appended.
const MaxWordAttempts = 10

// Generate returns a random adjective_adjective_noun name.
func Generate() string {
	return strings.Join([]string{
		adjectives[rand.IntN(len(adjectives))],
		adjectives[rand.IntN(len(adjectives))],
		nouns[rand.IntN(len(nouns))],
	}, "_")
}

// Unique generates names until taken reports one free. After
// MaxWordAttempts collisions a short random suffix is appended.
func Unique(ctx context.Context, taken func(context.Context, string) (bool, error)) (string, error) {
	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		name := Generate()
		if attempt >= MaxWordAttempts {
			suffix, err := gonanoid.Generate(suffixAlphabet, 6)
			if err != nil {
				return "", fmt.Errorf("generate suffix: %w", err)
			}
			name += "_" + suffix
		}
		used, err := taken(ctx, name)
		if err != nil {
			return "", fmt.Errorf("check room name: %w", err)
		}
		if !used {
			return name, nil
		}
	}
}
