package correct

import (
	"strings"

	"github.com/arogyalabs/medscribe/internal/attribution"
)

// ValidateLabel checks a speaker label returned by an external attribution
// source against the closed consultation role set. Labels are accepted
// case-insensitively with optional surrounding brackets and a trailing colon
// ("Doctor", "[doctor]", "PATIENT:"). Anything else — placeholder states,
// generic speaker indices, free text — is rejected so it can never be
// propagated as a verified role.
func ValidateLabel(label string) (attribution.Role, bool) {
	s := strings.TrimSpace(label)
	s = strings.TrimPrefix(s, "[")
	s = strings.TrimSuffix(s, ":")
	s = strings.TrimSuffix(s, "]")

	switch strings.ToLower(strings.TrimSpace(s)) {
	case "doctor":
		return attribution.RoleDoctor, true
	case "patient":
		return attribution.RolePatient, true
	}
	return "", false
}
