package provision

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

var nonSlugChars = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify lower-cases s, collapses every run of characters outside
// [a-z0-9] into one hyphen and trims hyphens from both ends.
func Slugify(s string) string {
	s = nonSlugChars.ReplaceAllString(strings.ToLower(s), "-")
	return strings.Trim(s, "-")
}

// OrganizationSlug derives a globally unique slug from an organization name
// by appending the creation time in nanoseconds.
func OrganizationSlug(name string, createdAt time.Time) string {
	base := Slugify(name)
	if base == "" {
		base = "org"
	}
	return base + "-" + strconv.FormatInt(createdAt.UnixNano(), 10)
}

// OrganizationName is the default name of a user's organization.
func OrganizationName(hint string) string {
	hint = strings.TrimSpace(hint)
	if hint == "" {
		hint = "User"
	}
	return hint + "'s Organization"
}
