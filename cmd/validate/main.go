package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/jwebster45206/npc-engine/pkg/npc"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintf(os.Stderr, "Usage: %s <character.yaml>...\n", os.Args[0])
		os.Exit(1)
	}

	validator := &CharacterValidator{seen: make(map[string]string)}
	failed := false
	for _, filename := range os.Args[1:] {
		fmt.Printf("Validating %s...\n", filename)
		if err := validator.validateFile(filename); err != nil {
			fmt.Fprintf(os.Stderr, "Validation failed: %v\n", err)
			failed = true
		}
	}
	if failed {
		os.Exit(1)
	}

	fmt.Println("Character files are valid!")
}

// CharacterValidator checks character profile files more strictly than the
// catalog loader: unknown fields are rejected and ids must be snake_case.
type CharacterValidator struct {
	errors []string
	// seen maps profile ids to the file that declared them.
	seen map[string]string
}

func (v *CharacterValidator) validateFile(filename string) error {
	baseName := filepath.Base(filename)
	ext := strings.ToLower(filepath.Ext(baseName))
	switch ext {
	case ".yaml", ".yml", ".json":
	default:
		return fmt.Errorf("character file must have .yaml, .yml or .json extension: %s", baseName)
	}

	nameWithoutExt := strings.TrimSuffix(baseName, filepath.Ext(baseName))
	if !isValidFilename(nameWithoutExt) {
		return fmt.Errorf("character filename '%s' must be lowercase snake_case (e.g., old_smith.yaml, not Old-Smith.yaml)", baseName)
	}

	data, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("failed to read file %s: %w", filename, err)
	}

	profiles, err := decodeStrict(data)
	if err != nil {
		return fmt.Errorf("file %s failed strict unmarshaling: %w", filename, err)
	}
	if len(profiles) == 0 {
		return fmt.Errorf("file %s holds no profiles", filename)
	}

	v.errors = nil
	for i := range profiles {
		v.validateProfile(&profiles[i], filename)
	}

	if len(v.errors) > 0 {
		return fmt.Errorf("validation errors in %s:\n%s", filename, strings.Join(v.errors, "\n"))
	}
	return nil
}

// decodeStrict accepts one profile or a list of profiles. JSON is a subset
// of YAML, so one decoder serves both.
func decodeStrict(data []byte) ([]npc.Profile, error) {
	var node yaml.Node
	dec := yaml.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&node); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, err
	}
	if len(node.Content) == 0 {
		return nil, nil
	}

	// Re-decode with KnownFields so typos surface as errors.
	strict := yaml.NewDecoder(bytes.NewReader(data))
	strict.KnownFields(true)

	if node.Content[0].Kind == yaml.SequenceNode {
		var list []npc.Profile
		if err := strict.Decode(&list); err != nil {
			return nil, err
		}
		return list, nil
	}
	var p npc.Profile
	if err := strict.Decode(&p); err != nil {
		return nil, err
	}
	return []npc.Profile{p}, nil
}

func (v *CharacterValidator) validateProfile(p *npc.Profile, filename string) {
	if err := p.Validate(); err != nil {
		v.addError(err.Error())
		return
	}

	if !isValidID(p.ID) {
		v.addError(fmt.Sprintf("profile id '%s' should be lowercase snake_case", p.ID))
	}
	if prev, dup := v.seen[p.ID]; dup {
		v.addError(fmt.Sprintf("profile id '%s' is already declared in %s", p.ID, prev))
	} else {
		v.seen[p.ID] = filename
	}

	if len(p.Traits) == 0 {
		v.addError(fmt.Sprintf("profile %s has no traits", p.ID))
	}
	for _, t := range p.Traits {
		if strings.TrimSpace(t) == "" {
			v.addError(fmt.Sprintf("profile %s has an empty trait", p.ID))
		}
	}
	if strings.TrimSpace(p.DialogueStyle) == "" {
		v.addError(fmt.Sprintf("profile %s has no dialogue_style", p.ID))
	}
}

func (v *CharacterValidator) addError(msg string) {
	v.errors = append(v.errors, "  - "+msg)
}

var (
	validIDRegex       = regexp.MustCompile(`^[a-z][a-z0-9_]*[a-z0-9]$|^[a-z]$`)
	validFilenameRegex = regexp.MustCompile(`^[a-z][a-z0-9_]*[a-z0-9]$|^[a-z]$`)
)

func isValidID(id string) bool {
	return validIDRegex.MatchString(id)
}

func isValidFilename(name string) bool {
	// Allow 'x.' prefix for experimental characters
	name = strings.TrimPrefix(name, "x.")
	return validFilenameRegex.MatchString(name)
}
