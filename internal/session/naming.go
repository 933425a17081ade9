package session

import (
	"fmt"
	"regexp"
	"strings"
)

// TablePrefix namespaces every registered table. The local engine never
// generates identifiers with a leading underscore, so prefixed names cannot
// collide with engine-internal tables.
const TablePrefix = "_upload_"

const placeholderName = "unnamed"

var (
	invalidTableChars   = regexp.MustCompile(`[^A-Za-z0-9_]`)
	repeatedUnderscores = regexp.MustCompile(`_+`)
)

// Sanitize derives a safe table identifier from raw and makes it unique
// against existing. Pure function: callers serialize concurrent assignment
// for one session themselves.
func Sanitize(raw string, existing []string) string {
	name := invalidTableChars.ReplaceAllString(raw, "_")
	name = repeatedUnderscores.ReplaceAllString(name, "_")
	name = strings.Trim(name, "_")
	if name == "" {
		name = placeholderName
	}
	name = TablePrefix + name

	if !containsName(existing, name) {
		return name
	}
	for counter := 2; ; counter++ {
		candidate := fmt.Sprintf("%s_%d", name, counter)
		if !containsName(existing, candidate) {
			return candidate
		}
	}
}

func containsName(names []string, name string) bool {
	for _, candidate := range names {
		if candidate == name {
			return true
		}
	}
	return false
}
