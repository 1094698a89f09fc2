package npc

import (
	"fmt"
	"slices"
	"strings"
)

// Profile is a character's fixed persona. Profiles are read-only once they
// are placed in a Catalog.
type Profile struct {
	ID            string   `yaml:"id" json:"id"`
	Name          string   `yaml:"name" json:"name"`
	Traits        []string `yaml:"traits" json:"traits"`
	Backstory     string   `yaml:"backstory" json:"backstory"`
	Knowledge     string   `yaml:"knowledge" json:"knowledge"`
	DialogueStyle string   `yaml:"dialogue_style" json:"dialogue_style"`
}

// TraitList joins the personality traits for display in a prompt.
func (p Profile) TraitList() string {
	return strings.Join(p.Traits, ", ")
}

func (p Profile) Validate() error {
	if strings.TrimSpace(p.ID) == "" {
		return fmt.Errorf("profile id is required")
	}
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("profile %q: name is required", p.ID)
	}
	return nil
}

func (p Profile) clone() Profile {
	p.Traits = slices.Clone(p.Traits)
	return p
}

// Kaelen is the built-in blacksmith used by the demo and the default catalog.
var Kaelen = Profile{
	ID:   "kaelen_the_smith",
	Name: "Kaelen",
	Traits: []string{
		"grumpy",
		"proud",
		"secretly kind-hearted",
		"distrustful of strangers",
	},
	Backstory: "Kaelen is a master blacksmith, the last of a long line of artisans who once served the mountain kings. " +
		"He is old, weary, and deeply saddened by the decline of his craft. " +
		"He secretly possesses the key to the ancient city archives.",
	Knowledge:     "Knows the location of the legendary Magic Sword and the history of the Ancient Door.",
	DialogueStyle: "Speaks in short, gruff sentences. Rarely uses more than two sentences at a time.",
}
