package notifications

import (
	"embed"
	"fmt"
	"io/fs"
	"text/template"
)

//go:embed templates/*.tmpl
var embedded embed.FS

// LoadTemplates parses the templates bundled with the binary.
func LoadTemplates() (*template.Template, error) {
	return ParseTemplates(embedded, "templates/*.tmpl")
}

// ParseTemplates reads plain-text email templates. Each .tmpl file must define
// {{define "name:subject"}} and {{define "name:body"}} blocks, where name
// matches the filename without extension.
func ParseTemplates(fsys fs.FS, pattern string) (*template.Template, error) {
	tmpl, err := template.ParseFS(fsys, pattern)
	if err != nil {
		return nil, fmt.Errorf("failed to load email templates from %s: %w", pattern, err)
	}
	return tmpl, nil
}
