package dialogue

import "strings"

// NearbyObject describes something in the character's immediate surroundings.
type NearbyObject struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// EnvironmentSnapshot is the caller-supplied situation for one turn. Its
// AvailableActions form the closed action contract: the action returned for
// the turn must match one of them by bare name.
type EnvironmentSnapshot struct {
	NearbyObjects    []NearbyObject `json:"nearby_objects"`
	AvailableActions []string       `json:"available_actions"`
}

// ActionName returns the bare action name of a signature, i.e. the text
// before any parameter hint: "give_item(item_name='Magic_Sword')" yields
// "give_item".
func ActionName(signature string) string {
	if idx := strings.Index(signature, "("); idx >= 0 {
		signature = signature[:idx]
	}
	return strings.TrimSpace(signature)
}

// ActionNames returns the bare names of the available actions in order.
func (e *EnvironmentSnapshot) ActionNames() []string {
	if e == nil {
		return nil
	}
	names := make([]string, 0, len(e.AvailableActions))
	for _, sig := range e.AvailableActions {
		names = append(names, ActionName(sig))
	}
	return names
}

// Allows reports whether action is a member of the contract. A nil snapshot
// allows nothing.
func (e *EnvironmentSnapshot) Allows(action string) bool {
	if e == nil || action == "" {
		return false
	}
	for _, sig := range e.AvailableActions {
		if ActionName(sig) == action {
			return true
		}
	}
	return false
}
