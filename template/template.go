// Package template renders chat response templates. Placeholders use the
// {{name}} form; unknown placeholders are left verbatim so operator typos in
// custom commands degrade to visible text rather than errors.
package template

import (
	"strings"
	"time"
)

// Render substitutes {{name}} placeholders in tmpl from vars. Lookup is
// case-sensitive. A "{{" without a matching "}}" is copied through unchanged.
func Render(tmpl string, vars map[string]string) string {
	if !strings.Contains(tmpl, "{{") {
		return tmpl
	}
	var b strings.Builder
	b.Grow(len(tmpl))
	for {
		open := strings.Index(tmpl, "{{")
		if open < 0 {
			b.WriteString(tmpl)
			return b.String()
		}
		close := strings.Index(tmpl[open:], "}}")
		if close < 0 {
			b.WriteString(tmpl)
			return b.String()
		}
		close += open
		b.WriteString(tmpl[:open])
		name := tmpl[open+2 : close]
		if v, ok := vars[name]; ok {
			b.WriteString(v)
		} else {
			// Unknown placeholder stays literal.
			b.WriteString(tmpl[open : close+2])
		}
		tmpl = tmpl[close+2:]
	}
}

// MessageVars returns the standard substitution fields available to every
// custom command response.
func MessageVars(user, channel string, now time.Time) map[string]string {
	return map[string]string{
		"user":    user,
		"channel": channel,
		"time":    now.Format("15:04:05"),
		"date":    now.Format("2006-01-02"),
	}
}

// Merge overlays extra on top of base without mutating either map.
func Merge(base, extra map[string]string) map[string]string {
	if len(extra) == 0 {
		return base
	}
	out := make(map[string]string, len(base)+len(extra))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}
