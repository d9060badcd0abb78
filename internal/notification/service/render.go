package service

import (
	"regexp"
	"strings"
)

var placeholderRe = regexp.MustCompile(`\{\{\s*([A-Za-z0-9_]+)\s*\}\}`)

// RenderTemplate substitutes {{variable}} placeholders with the given
// values. Placeholders without a matching variable are left untouched so
// the gap is visible to the recipient rather than silently blanked.
func RenderTemplate(content string, variables map[string]string) string {
	if content == "" || !strings.Contains(content, "{{") {
		return content
	}

	return placeholderRe.ReplaceAllStringFunc(content, func(match string) string {
		name := placeholderRe.FindStringSubmatch(match)[1]
		if value, ok := variables[name]; ok {
			return value
		}
		return match
	})
}
