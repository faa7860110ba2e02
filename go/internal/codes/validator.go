// Package codes validates subscriber codes. A valid code doubles as the
// session identifier.
package codes

import (
	"context"
	"fmt"
	"strings"
	"unicode"
)

// DefaultSpecialPrefix marks the seven character special codes.
const DefaultSpecialPrefix = "S"

// Validation is the outcome of a code lookup.
type Validation struct {
	Valid   bool
	IsAdmin bool
}

// Querier looks a normalized code up in the subscriber store.
type Querier interface {
	LookupCode(ctx context.Context, code string) (found bool, isAdmin bool, err error)
}

// Validator checks codes against the subscriber store.
type Validator struct {
	q             Querier
	specialPrefix string
}

func NewValidator(q Querier, specialPrefix string) *Validator {
	if specialPrefix == "" {
		specialPrefix = DefaultSpecialPrefix
	}
	return &Validator{q: q, specialPrefix: strings.ToUpper(specialPrefix)}
}

// Normalize trims and upper-cases code and checks its shape: six
// alphanumerics, or seven when it starts with the special prefix.
func (v *Validator) Normalize(code string) (string, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	for _, r := range code {
		if r > unicode.MaxASCII || !(unicode.IsLetter(r) || unicode.IsDigit(r)) {
			return "", ErrMalformedCode
		}
	}
	switch len(code) {
	case 6:
		return code, nil
	case 7:
		if strings.HasPrefix(code, v.specialPrefix) {
			return code, nil
		}
	}
	return "", ErrMalformedCode
}

// Validate normalizes code and checks it against the store. Unknown codes
// return ErrInvalidCode together with a zero Validation.
func (v *Validator) Validate(ctx context.Context, code string) (string, Validation, error) {
	normalized, err := v.Normalize(code)
	if err != nil {
		return "", Validation{}, err
	}
	found, isAdmin, err := v.q.LookupCode(ctx, normalized)
	if err != nil {
		return "", Validation{}, fmt.Errorf("lookup code: %w", err)
	}
	if !found {
		return "", Validation{}, ErrInvalidCode
	}
	return normalized, Validation{Valid: true, IsAdmin: isAdmin}, nil
}
