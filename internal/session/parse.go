package session

import (
	"errors"
	"strconv"
	"strings"

	"github.com/Roland735/rentbot/internal/utils"
)

// ParseError carries the guidance sent back when an answer is rejected.
type ParseError struct {
	Guidance string
}

func (e *ParseError) Error() string { return e.Guidance }

func reject(guidance string) error { return &ParseError{Guidance: guidance} }

// Free-text answers are stored as sent, empty included.
func parseText(input string, _ Env) (interface{}, error) {
	return utils.SanitizeText(input), nil
}

// ParseAmount extracts a number from free text such as "$350", "1,200" or "350/month".
func ParseAmount(input string) (float64, bool) {
	var b strings.Builder
	for _, r := range input {
		if (r >= '0' && r <= '9') || r == '.' {
			b.WriteRune(r)
		}
	}
	digits := strings.Trim(b.String(), ".")
	if digits == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(digits, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func parseAmount(what string) func(string, Env) (interface{}, error) {
	return func(input string, _ Env) (interface{}, error) {
		v, ok := ParseAmount(input)
		if !ok {
			return nil, reject("Please enter a valid number for " + what + ".")
		}
		return v, nil
	}
}

// matchSuburb resolves a 1-based index or a case-insensitive name to the canonical suburb.
func matchSuburb(input string, suburbs []string) (string, bool) {
	if n, err := strconv.Atoi(input); err == nil {
		if n >= 1 && n <= len(suburbs) {
			return suburbs[n-1], true
		}
		return "", false
	}
	for _, s := range suburbs {
		if strings.EqualFold(s, input) {
			return s, true
		}
	}
	return "", false
}

// Listing suburbs are lenient: anything that is not a known suburb is kept verbatim.
func parseListingSuburb(input string, env Env) (interface{}, error) {
	input = utils.SanitizeText(input)
	if s, ok := matchSuburb(input, env.Suburbs); ok {
		return s, nil
	}
	return input, nil
}

// Search suburbs are strict. ALL yields "".
func parseSearchSuburb(input string, env Env) (interface{}, error) {
	input = strings.TrimSpace(input)
	if strings.EqualFold(input, "ALL") {
		return "", nil
	}
	if s, ok := matchSuburb(input, env.Suburbs); ok {
		return s, nil
	}
	return nil, reject("Please choose a suburb number from the list or reply ALL.")
}

// ANY yields nil.
func parseMaxRent(input string, _ Env) (interface{}, error) {
	input = strings.TrimSpace(input)
	if strings.EqualFold(input, "ANY") {
		return nil, nil
	}
	v, ok := ParseAmount(input)
	if !ok {
		return nil, reject("Please send a maximum rent as a number, e.g. 400, or reply ANY.")
	}
	return v, nil
}

func parseAmenities(input string, _ Env) (interface{}, error) {
	input = strings.TrimSpace(input)
	if strings.EqualFold(input, "NONE") {
		return []string{}, nil
	}
	var out []string
	for _, part := range strings.Split(input, ",") {
		if part = utils.SanitizeText(part); part != "" {
			out = append(out, part)
		}
	}
	if out == nil {
		out = []string{}
	}
	return out, nil
}

// The contact number is kept as typed; tenants read it, nothing dials it.
func parseContactPhone(input string, env Env) (interface{}, error) {
	if strings.EqualFold(strings.TrimSpace(input), "SAME") {
		return env.Phone, nil
	}
	return utils.SanitizeText(input), nil
}

// IsParseError reports whether err is a rejected answer rather than a failure.
func IsParseError(err error) bool {
	var pe *ParseError
	return errors.As(err, &pe)
}
