// Package core drives per-host artifact collection and packaging for soclog.
package core

import (
	"regexp"
	"strings"
)

var (
	unsafeNameChars = regexp.MustCompile(`[^A-Za-z0-9._-]`)
	repeatedUnders  = regexp.MustCompile(`_+`)
)

// SanitizeName cleans a host label for safe use as a directory or file name.
func SanitizeName(name string) string {
	name = unsafeNameChars.ReplaceAllString(name, "_")
	name = repeatedUnders.ReplaceAllString(name, "_")
	name = strings.Trim(name, "_.")

	if name == "" {
		name = "unknown"
	}
	return name
}
