package cooldown

import (
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultColor is assigned to every imported cooldown.
const DefaultColor = "#3498db"

// Record is one ability cooldown. Field order is the serialized key order.
type Record struct {
	ID            int     `yaml:"id"`
	Name          string  `yaml:"name"`
	Duration      Seconds `yaml:"duration"`
	Color         string  `yaml:"color"`
	Icon          string  `yaml:"icon"`
	ReferenceLink string  `yaml:"referenceLink"`
	ClassName     string  `yaml:"className"`
	Category      string  `yaml:"category"`
}

// Seconds is a duration in fractional seconds. It always serializes as a
// YAML float, so whole values keep their ".0".
type Seconds float64

// MarshalYAML renders the value as a tagged float scalar.
func (s Seconds) MarshalYAML() (any, error) {
	v := strconv.FormatFloat(float64(s), 'f', -1, 64)
	if !strings.ContainsAny(v, ".eEn") {
		v += ".0"
	}
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!float", Value: v}, nil
}
