package webserver

import (
	"embed"
	"fmt"
	"html/template"
	"io"
	"strings"

	"github.com/labstack/echo/v4"
)

//go:embed templates/*.html
var templateFS embed.FS

var pages = []string{"login", "twofactor", "setup", "dashboard", "feature", "error"}

// renderer holds one parsed master per page. Masters are never executed themselves; each
// render clones one and binds the request's CSRF token into it.
type renderer struct {
	pages map[string]*template.Template
}

var templateFuncs = template.FuncMap{
	// The backend sends the enrollment QR code as a data URL, which html/template refuses by default
	"qrSrc": func(s string) template.URL {
		if strings.HasPrefix(s, "data:image/png;base64,") || strings.HasPrefix(s, "data:image/svg+xml;base64,") {
			return template.URL(s)
		}
		return ""
	},

	// Replaced per render with the request's token
	"csrfField": func() template.HTML { return "" },
}

func newRenderer() *renderer {
	r := &renderer{pages: make(map[string]*template.Template)}

	for _, name := range pages {
		r.pages[name] = template.Must(template.New("layout.html").Funcs(templateFuncs).ParseFS(templateFS, "templates/layout.html", "templates/"+name+".html"))
	}

	return r
}

func (r *renderer) Render(w io.Writer, name string, data interface{}, c echo.Context) error {
	master, ok := r.pages[name]
	if !ok {
		return fmt.Errorf("no such page %q", name)
	}

	tmpl, err := master.Clone()
	if err != nil {
		return err
	}

	token, _ := c.Get(csrfContextKey).(string)
	tmpl.Funcs(template.FuncMap{
		"csrfField": func() template.HTML {
			return template.HTML(`<input type="hidden" name="` + csrfField + `" value="` + template.HTMLEscapeString(token) + `">`)
		},
	})

	return tmpl.ExecuteTemplate(w, "layout.html", data)
}
