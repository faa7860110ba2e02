package models

import (
	"fmt"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Alphabet is the canonical order of the 28 board letters.
var Alphabet = [...]string{
	"أ", "ب", "ت", "ث", "ج", "ح", "خ", "د", "ذ", "ر", "ز", "س", "ش", "ص",
	"ض", "ط", "ظ", "ع", "غ", "ف", "ق", "ك", "ل", "م", "ن", "ه", "و", "ي",
}

var alphabetIndex = func() map[string]int {
	m := make(map[string]int, len(Alphabet))
	for i, l := range Alphabet {
		m[l] = i
	}
	return m
}()

// ColorSet is a pair of team colors used to paint claimed cells.
type ColorSet struct {
	Red   string
	Green string
}

// ColorSets are the selectable board themes.
var ColorSets = []ColorSet{
	{Red: "#ff4081", Green: "#81c784"},
	{Red: "#f8bbd0", Green: "#4dd0e1"},
	{Red: "#d32f2f", Green: "#0288d1"},
	{Red: "#ff5722", Green: "#388e3c"},
}

// CanonicalOrder returns a fresh copy of the alphabet in canonical order.
func CanonicalOrder() []string {
	return append([]string(nil), Alphabet[:]...)
}

// NormalizeText applies NFC normalization and trims surrounding space. Letters
// and names arrive from browsers that may send decomposed forms.
func NormalizeText(s string) string {
	return strings.TrimSpace(norm.NFC.String(s))
}

// IsLetter reports whether l is a board letter.
func IsLetter(l string) bool {
	_, ok := alphabetIndex[l]
	return ok
}

// ValidateLettersOrder checks that order is a permutation of the alphabet.
func ValidateLettersOrder(order []string) error {
	if len(order) != len(Alphabet) {
		return fmt.Errorf("letters order has %d letters, want %d", len(order), len(Alphabet))
	}
	seen := make(map[string]bool, len(order))
	for _, l := range order {
		if !IsLetter(l) {
			return fmt.Errorf("unknown letter %q", l)
		}
		if seen[l] {
			return fmt.Errorf("duplicate letter %q", l)
		}
		seen[l] = true
	}
	return nil
}

// SwapColors exchanges the red and green colors of the active set on every
// claimed cell.
func SwapColors(hexagons map[string]Hexagon, setIndex int) {
	set := colorSet(setIndex)
	for letter, h := range hexagons {
		switch h.Color {
		case set.Red:
			h.Color = set.Green
		case set.Green:
			h.Color = set.Red
		default:
			continue
		}
		hexagons[letter] = h
	}
}

// ChangeColorSet repaints claimed cells from any known set into the set at
// newIndex. When swapped is set the team colors of the new set are exchanged.
func ChangeColorSet(hexagons map[string]Hexagon, newIndex int, swapped bool) {
	next := colorSet(newIndex)
	red, green := next.Red, next.Green
	if swapped {
		red, green = green, red
	}
	for letter, h := range hexagons {
		isRed, isGreen := false, false
		for _, set := range ColorSets {
			if h.Color == set.Red {
				isRed = true
			} else if h.Color == set.Green {
				isGreen = true
			}
		}
		switch {
		case isRed:
			h.Color = red
		case isGreen:
			h.Color = green
		default:
			continue
		}
		hexagons[letter] = h
	}
}

func colorSet(i int) ColorSet {
	if i < 0 || i >= len(ColorSets) {
		return ColorSets[0]
	}
	return ColorSets[i]
}
