package models

import (
	"errors"
	"slices"
)

// ErrDuplicateName is returned when a name appears more than once across rosters.
var ErrDuplicateName = errors.New("name appears in more than one roster slot")

// Teams holds both contestant rosters in join order.
type Teams struct {
	Red   []string `json:"red"`
	Green []string `json:"green"`
}

func (t Teams) Clone() Teams {
	return Teams{
		Red:   append([]string{}, t.Red...),
		Green: append([]string{}, t.Green...),
	}
}

// TeamOf returns the team whose roster contains name.
func (t Teams) TeamOf(name string) (Team, bool) {
	switch {
	case slices.Contains(t.Red, name):
		return TeamRed, true
	case slices.Contains(t.Green, name):
		return TeamGreen, true
	}
	return "", false
}

// Add places name on the smaller team, red on a tie. A name already on a
// roster keeps its team.
func (t *Teams) Add(name string) Team {
	if team, ok := t.TeamOf(name); ok {
		return team
	}
	if len(t.Red) <= len(t.Green) {
		t.Red = append(t.Red, name)
		return TeamRed
	}
	t.Green = append(t.Green, name)
	return TeamGreen
}

// Remove deletes name from whichever roster holds it.
func (t *Teams) Remove(name string) (Team, bool) {
	if i := slices.Index(t.Red, name); i >= 0 {
		t.Red = slices.Delete(t.Red, i, i+1)
		return TeamRed, true
	}
	if i := slices.Index(t.Green, name); i >= 0 {
		t.Green = slices.Delete(t.Green, i, i+1)
		return TeamGreen, true
	}
	return "", false
}

// Validate checks that every name is non-empty and appears exactly once.
func (t Teams) Validate() error {
	seen := make(map[string]struct{}, len(t.Red)+len(t.Green))
	for _, roster := range [][]string{t.Red, t.Green} {
		for _, name := range roster {
			if name == "" {
				return errors.New("empty name in roster")
			}
			if _, dup := seen[name]; dup {
				return ErrDuplicateName
			}
			seen[name] = struct{}{}
		}
	}
	return nil
}

// Size returns the total number of rostered contestants.
func (t Teams) Size() int {
	return len(t.Red) + len(t.Green)
}
