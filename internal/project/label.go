package project

import (
	"path/filepath"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// ScriptLabel turns a worker script path into a human-readable label for
// progress display: "scripts/split_pages.py" becomes "Split Pages".
func ScriptLabel(script string) string {
	base := filepath.Base(filepath.FromSlash(strings.TrimSpace(script)))
	base = strings.TrimSuffix(base, filepath.Ext(base))
	base = strings.NewReplacer("_", " ", "-", " ").Replace(base)
	base = strings.Join(strings.Fields(base), " ")
	if base == "" {
		return ""
	}
	return cases.Title(language.Und).String(strings.ToLower(base))
}

// StageLabel derives the display label for a pipeline stage, preferring the
// project's display name over the raw id.
func StageLabel(manifest Manifest) string {
	if name := strings.TrimSpace(manifest.DisplayName); name != "" {
		return name
	}
	return cases.Title(language.Und).String(manifest.ID)
}
