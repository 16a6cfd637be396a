package frontend

import (
	"embed"
	"html/template"
	"io"

	"github.com/labstack/echo/v4"
)

const viewsPattern = "views/*.html"

//go:embed views/*.html
var templateFS embed.FS

//go:embed views/icon.svg
var assetsFS embed.FS

// Template renders the embedded views by file name
type Template struct {
	templates *template.Template
}

func newTemplate() *Template {
	return &Template{
		templates: template.Must(template.New("").Funcs(template.FuncMap{
			"inc": func(i int) int { return i + 1 },
		}).ParseFS(templateFS, viewsPattern)),
	}
}

func (t *Template) Render(w io.Writer, name string, data interface{}, c echo.Context) error {
	return t.templates.ExecuteTemplate(w, name, data)
}
