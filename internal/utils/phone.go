package utils

import (
	"regexp"
	"strings"
)

const whatsappPrefix = "whatsapp:"

var phonePattern = regexp.MustCompile(`^\+?\d{7,15}$`)

// NormalizePhone strips the transport prefix and inner whitespace from an inbound address.
func NormalizePhone(from string) string {
	p := strings.TrimSpace(from)
	p = strings.TrimPrefix(p, whatsappPrefix)
	return strings.Join(strings.Fields(p), "")
}

// ValidPhone reports whether p looks like a 7-15 digit number with an optional leading '+'.
func ValidPhone(p string) bool {
	return phonePattern.MatchString(strings.TrimSpace(p))
}

// WhatsAppAddress is the inverse of NormalizePhone.
func WhatsAppAddress(phone string) string {
	if strings.HasPrefix(phone, whatsappPrefix) {
		return phone
	}
	return whatsappPrefix + phone
}

// MaskPhone keeps the last four digits, for logs.
func MaskPhone(p string) string {
	if len(p) <= 4 {
		return "****"
	}
	return strings.Repeat("*", len(p)-4) + p[len(p)-4:]
}

// SanitizeText trims and caps free text taken from chat messages.
func SanitizeText(s string) string {
	s = strings.TrimSpace(s)
	if r := []rune(s); len(r) > 500 {
		s = string(r[:500])
	}
	return s
}
