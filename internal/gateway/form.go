package gateway

import (
	"bytes"
	"fmt"
	"html/template"
	"net/http"
	"net/url"
	"strings"

	"gateway-service/internal/models"
)

// ProcessForm sends the payer to a processor, either as an auto-submitting
// POST form or as a plain link
type ProcessForm struct {
	Method string
	Action string
	Fields Fields
}

// NewPostForm creates a form posted to action
func NewPostForm(action string) *ProcessForm {
	return &ProcessForm{Method: http.MethodPost, Action: action}
}

// NewRedirect creates a plain link to target
func NewRedirect(target string) *ProcessForm {
	return &ProcessForm{Method: http.MethodGet, Action: target}
}

// Add appends a hidden field
func (f *ProcessForm) Add(name, value string) *ProcessForm {
	f.Fields.Add(name, value)
	return f
}

// AddIfSet appends a hidden field when value is not empty
func (f *ProcessForm) AddIfSet(name, value string) *ProcessForm {
	if value != "" {
		f.Fields.Add(name, value)
	}
	return f
}

// Value returns the first value of a field
func (f *ProcessForm) Value(name string) string {
	return f.Fields.Get(name)
}

// URL returns the action with the fields as a query string, for GET forms
func (f *ProcessForm) URL() string {
	if len(f.Fields) == 0 {
		return f.Action
	}
	sep := "?"
	if strings.Contains(f.Action, "?") {
		sep = "&"
	}
	return f.Action + sep + f.Fields.Encode()
}

var processFormTemplate = template.Must(template.New("process").Parse(
	`<form name="gateway_process" method="{{.Method}}" action="{{.Action}}">` +
		`{{range .Fields}}<input type="hidden" name="{{.Name}}" value="{{.Value}}" />{{end}}` +
		`<button type="submit">Pay Now</button>` +
		`</form>` +
		`<script>document.forms["gateway_process"].submit();</script>`,
))

var redirectTemplate = template.Must(template.New("redirect").Parse(
	`<a href="{{.}}">Pay Now</a><script>window.location.href = {{.}};</script>`,
))

// HTML renders the form as an auto-submitting HTML fragment
func (f *ProcessForm) HTML() (string, error) {
	var buf bytes.Buffer
	var err error
	if f.Method == http.MethodGet {
		err = redirectTemplate.Execute(&buf, f.URL())
	} else {
		err = processFormTemplate.Execute(&buf, f)
	}
	if err != nil {
		return "", fmt.Errorf("failed to render process form: %w", err)
	}
	return buf.String(), nil
}

// Response converts the form into its API shape
func (f *ProcessForm) Response() (*models.ProcessFormResponse, error) {
	html, err := f.HTML()
	if err != nil {
		return nil, err
	}
	resp := &models.ProcessFormResponse{
		Method: f.Method,
		Action: f.Action,
		Fields: make([]models.FormField, 0, len(f.Fields)),
		HTML:   html,
	}
	for _, field := range f.Fields {
		resp.Fields = append(resp.Fields, models.FormField{Name: field.Name, Value: field.Value})
	}
	return resp, nil
}

// withQuery adds query parameters to a URL, keeping any it already has
func withQuery(rawURL string, params map[string]string) string {
	if rawURL == "" {
		return ""
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	q := u.Query()
	for k, v := range params {
		if v != "" {
			q.Set(k, v)
		}
	}
	u.RawQuery = q.Encode()
	return u.String()
}
