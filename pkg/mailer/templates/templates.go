package templates

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	htmpl "html/template"
	"io"
	"reflect"
	"strings"
	texttpl "text/template"
	"time"
)

//go:embed *.tmpl
var FS embed.FS

// EmailData defines standard fields for email templates.
type EmailData struct {
	// Basic info
	Name           string `json:"Name"`
	Email          string `json:"Email"`
	RecipientEmail string `json:"RecipientEmail"`
	Type           string `json:"Type"`

	// Company info
	CompanyName    string `json:"CompanyName"`
	CompanyAddress string `json:"CompanyAddress"`
	AppName        string `json:"AppName"`

	// URLs
	LogoURL    string `json:"LogoURL"`
	SupportURL string `json:"SupportURL"`
	PrivacyURL string `json:"PrivacyURL"`
	VerifyURL  string `json:"VerifyURL"`

	// Additional data
	ExpiresAt     time.Time `json:"ExpiresAt"`
	ExpiresAtText string    `json:"ExpiresAtText"`
	IP            string    `json:"IP"`
	Time          string    `json:"Time"`
	TimeAt        time.Time `json:"TimeAt"`
}

// ToMap converts EmailData to a map[string]any for EmailJob.Data
func ToMap(d EmailData) map[string]any {
	b, _ := json.Marshal(d)
	var m map[string]any
	_ = json.Unmarshal(b, &m)
	return m
}

// defaultFn supports pipe usage: {{ .Value | default "Fallback" }}
func defaultFn(fallback any, value any) any {
	switch x := value.(type) {
	case string:
		if strings.TrimSpace(x) == "" {
			return fallback
		}
		return x
	case nil:
		return fallback
	default:
		rv := reflect.ValueOf(value)
		if !rv.IsValid() {
			return fallback
		}
		zero := reflect.Zero(rv.Type()).Interface()
		if reflect.DeepEqual(value, zero) {
			return fallback
		}
		return value
	}
}

func baseFuncs() map[string]any {
	return map[string]any{
		"now":        func() time.Time { return time.Now().UTC() },
		"formatTime": func(t time.Time, layout string) string { return t.Format(layout) },
		"upper":      strings.ToUpper,
		"default":    defaultFn,
	}
}

var (
	htmlFuncMap = htmpl.FuncMap(baseFuncs())
	textFuncMap = texttpl.FuncMap(baseFuncs())
)

// Template names
const (
	Welcome         = "welcome"
	VerifyEmail     = "verify_email"
	PasswordChanged = "password_changed"
)

// set is the parsed subject/text/html triple of one template name.
type set struct {
	subject *texttpl.Template
	text    *texttpl.Template
	html    *htmpl.Template
}

// sets is parsed once from the embedded files; a broken template fails at
// startup rather than on the first email.
var sets = mustParse(Welcome, VerifyEmail, PasswordChanged)

func mustParse(names ...string) map[string]set {
	out := make(map[string]set, len(names))
	for _, name := range names {
		subject := texttpl.Must(texttpl.New(name + ".subject.tmpl").Funcs(textFuncMap).ParseFS(FS, name+".subject.tmpl"))
		text := texttpl.Must(texttpl.New(name + ".text.tmpl").Funcs(textFuncMap).ParseFS(FS, name+".text.tmpl"))
		html := htmpl.Must(htmpl.New(name + ".html.tmpl").Funcs(htmlFuncMap).ParseFS(FS, name+".html.tmpl"))
		out[name] = set{subject: subject, text: text, html: html}
	}
	return out
}

// Known reports whether name has a template set.
func Known(name string) bool {
	_, ok := sets[name]
	return ok
}

type executor interface {
	Execute(w io.Writer, data any) error
}

func execute(t executor, name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("exec %q: %w", name, err)
	}
	return buf.String(), nil
}

// Render executes the subject, text and html templates of name.
func Render(name string, data any) (subject, text, html string, err error) {
	s, ok := sets[name]
	if !ok {
		return "", "", "", fmt.Errorf("unknown template %q", name)
	}
	if subject, err = execute(s.subject, name+".subject", data); err != nil {
		return "", "", "", err
	}
	if text, err = execute(s.text, name+".text", data); err != nil {
		return "", "", "", err
	}
	if html, err = execute(s.html, name+".html", data); err != nil {
		return "", "", "", err
	}
	return strings.TrimSpace(subject), text, html, nil
}
