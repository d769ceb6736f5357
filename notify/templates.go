package notify

import (
	"bytes"
	"fmt"
	"text/template"
)

// Template types understood by Render.
const (
	TemplateLeaveApproved  = "leave_approved"
	TemplateLeaveRejected  = "leave_rejected"
	TemplateLeaveCancelled = "leave_cancelled"
	TemplateCompOffCredit  = "comp_off_credited"
)

type emailTemplate struct {
	subject *template.Template
	body    *template.Template
}

var templates = map[string]emailTemplate{
	TemplateLeaveApproved: mustTemplate(
		"Your {{.LeaveType}} request was approved",
		`Hi {{.Name}},

Your {{.LeaveType}} request from {{.StartDate}} to {{.EndDate}} ({{.Days}} days) was approved.
`),
	TemplateLeaveRejected: mustTemplate(
		"Your {{.LeaveType}} request was rejected",
		`Hi {{.Name}},

Your {{.LeaveType}} request from {{.StartDate}} to {{.EndDate}} ({{.Days}} days) was rejected.
{{if .Reason}}Reason: {{.Reason}}
{{end}}`),
	TemplateLeaveCancelled: mustTemplate(
		"Your {{.LeaveType}} request was cancelled",
		`Hi {{.Name}},

Your {{.LeaveType}} request from {{.StartDate}} to {{.EndDate}} was cancelled and {{.Days}} days returned to your balance.
`),
	TemplateCompOffCredit: mustTemplate(
		"{{.Days}} comp-off days credited",
		`Hi {{.Name}},

{{.Days}} comp-off days were credited for overtime in the week of {{.WeekStart}}.
`),
}

func mustTemplate(subject, body string) emailTemplate {
	return emailTemplate{
		subject: template.Must(template.New("subject").Parse(subject)),
		body:    template.Must(template.New("body").Parse(body)),
	}
}

// Render produces subject and body for a template type.
func Render(templateType string, data map[string]any) (subject, body string, err error) {
	t, ok := templates[templateType]
	if !ok {
		return "", "", fmt.Errorf("unknown email template %q", templateType)
	}
	var s, b bytes.Buffer
	if err := t.subject.Execute(&s, data); err != nil {
		return "", "", err
	}
	if err := t.body.Execute(&b, data); err != nil {
		return "", "", err
	}
	return s.String(), b.String(), nil
}
