package handler

import (
	"embed"
	"encoding/json"
	"fmt"
	"html/template"
	"strings"
)

//go:embed templates/*.html
var templateFS embed.FS

// Templates parses the embedded page templates.
func Templates() (*template.Template, error) {
	funcMap := template.FuncMap{
		"pct": func(v float64) string {
			return fmt.Sprintf("%.1f%%", v)
		},
		"title": func(s string) string {
			if s == "" {
				return s
			}
			return strings.ToUpper(s[:1]) + s[1:]
		},
		"json": func(v any) (template.JS, error) {
			b, err := json.Marshal(v)
			if err != nil {
				return "", err
			}
			return template.JS(b), nil
		},
		"low": func(v, threshold float64) bool {
			return v < threshold
		},
		"join": strings.Join,
	}
	return template.New("").Funcs(funcMap).ParseFS(templateFS, "templates/*.html")
}
