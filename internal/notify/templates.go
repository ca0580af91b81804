package notify

import (
	"bytes"
	"fmt"
	"text/template"
)

// Template identifies a message template known to the dispatcher.
type Template string

const (
	TemplateVerificationCode      Template = "verification_code"
	TemplateGrievanceConfirmation Template = "grievance_confirmation"
	TemplateReminder              Template = "grievance_reminder"
	TemplateResponseNotice        Template = "response_notice"
	TemplatePasswordReset         Template = "password_reset"
	// TemplateCorrespondence passes subject and body through untouched; the
	// correspondence thread manager composes its own text.
	TemplateCorrespondence Template = "correspondence"
)

type templateSpec struct {
	required []string
	subject  *template.Template
	body     *template.Template
}

var registry = map[Template]templateSpec{
	TemplateVerificationCode: spec(
		[]string{"user_id", "code"},
		"Verify your grievance portal account",
		"Hello {{.user_id}},\n\nYour verification code is {{.code}}. It expires in 30 minutes.\n",
	),
	TemplateGrievanceConfirmation: spec(
		[]string{"grievance_id", "title", "category", "status", "submitted_at"},
		"Grievance received: {{.title}}",
		"Your grievance has been recorded.\n\nID: {{.grievance_id}}\nTitle: {{.title}}\nCategory: {{.category}}\nStatus: {{.status}}\nSubmitted: {{.submitted_at}}\n",
	),
	TemplateReminder: spec(
		[]string{"grievance_id", "title", "status", "requester"},
		"Reminder: grievance {{.grievance_id}} awaits action",
		"{{.requester}} has requested an update on grievance {{.grievance_id}} ({{.title}}), currently {{.status}}.\n",
	),
	TemplateResponseNotice: spec(
		[]string{"grievance_id", "title", "response"},
		"Update on your grievance: {{.title}}",
		"An administrator responded to grievance {{.grievance_id}}:\n\n{{.response}}\n",
	),
	TemplatePasswordReset: spec(
		[]string{"token", "expires_at"},
		"Password reset requested",
		"Use token {{.token}} to reset your password. The token expires at {{.expires_at}}.\n",
	),
	TemplateCorrespondence: spec(
		[]string{"subject", "body"},
		"{{.subject}}",
		"{{.body}}",
	),
}

func spec(required []string, subject, body string) templateSpec {
	return templateSpec{
		required: required,
		subject:  template.Must(template.New("subject").Parse(subject)),
		body:     template.Must(template.New("body").Parse(body)),
	}
}

// render validates the payload against the template's required fields and
// produces subject and body.
func render(tmpl Template, payload Payload) (subject, body string, err error) {
	s, ok := registry[tmpl]
	if !ok {
		return "", "", fmt.Errorf("unknown template %q", tmpl)
	}
	for _, field := range s.required {
		if payload[field] == "" {
			return "", "", fmt.Errorf("template %q requires field %q", tmpl, field)
		}
	}

	var subjBuf, bodyBuf bytes.Buffer
	if err := s.subject.Execute(&subjBuf, payload); err != nil {
		return "", "", err
	}
	if err := s.body.Execute(&bodyBuf, payload); err != nil {
		return "", "", err
	}
	return subjBuf.String(), bodyBuf.String(), nil
}
