package notify

import (
	"bytes"
	"fmt"
	"html/template"
)

// Email is a rendered message for one recipient.
type Email struct {
	To      string
	Subject string
	HTML    string
}

var (
	approvedTmpl = template.Must(template.New("approved").Parse(`
<div style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto;">
  <h1 style="color: #16a34a;">Congratulations {{.DancerName}}! 🎉</h1>
  <p style="font-size: 16px; line-height: 1.6;">
    Your application for <strong>{{.EventName}}</strong> has been <strong style="color: #16a34a;">approved</strong>!
  </p>
  <p style="font-size: 16px; line-height: 1.6;">
    The event organizer <strong>{{.OrganizerName}}</strong> has reviewed your profile and would love to have you participate.
  </p>
  <p style="font-size: 16px; line-height: 1.6;">
    Log in to your dashboard to see more details and connect with the organizer.
  </p>
  <div style="margin-top: 30px; padding: 20px; background-color: #f0fdf4; border-left: 4px solid #16a34a;">
    <p style="margin: 0; color: #15803d;">
      <strong>Next Steps:</strong><br/>
      1. Check your dashboard for event details<br/>
      2. Prepare for the performance<br/>
      3. Stay in touch with the organizer
    </p>
  </div>
  <p style="margin-top: 30px; color: #666; font-size: 14px;">
    Best regards,<br/>
    <strong>The DanceLink Team</strong>
  </p>
</div>
`))

	rejectedTmpl = template.Must(template.New("rejected").Parse(`
<div style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto;">
  <h1 style="color: #dc2626;">Application Update</h1>
  <p style="font-size: 16px; line-height: 1.6;">
    Dear {{.DancerName}},
  </p>
  <p style="font-size: 16px; line-height: 1.6;">
    Thank you for your interest in <strong>{{.EventName}}</strong>. After careful consideration, {{if .OrganizerName}}<strong>{{.OrganizerName}}</strong>{{else}}the organizer{{end}} has decided not to move forward with your application at this time.
  </p>
  <p style="font-size: 16px; line-height: 1.6;">
    We encourage you to keep improving your skills and apply for other events on DanceLink!
  </p>
  <div style="margin-top: 30px; padding: 20px; background-color: #fef2f2; border-left: 4px solid #dc2626;">
    <p style="margin: 0; color: #991b1b;">
      Don't give up! Keep dancing and exploring new opportunities.
    </p>
  </div>
  <p style="margin-top: 30px; color: #666; font-size: 14px;">
    Best regards,<br/>
    <strong>The DanceLink Team</strong>
  </p>
</div>
`))
)

// Subject returns the email subject for the payload's status.
func Subject(p Payload) string {
	if p.Status == StatusApproved {
		return fmt.Sprintf("🎉 Your application for %s has been approved!", p.EventName)
	}
	return fmt.Sprintf("Application Update for %s", p.EventName)
}

// Render builds the email for p. Template values are HTML-escaped.
func Render(p Payload) (Email, error) {
	tmpl := rejectedTmpl
	if p.Status == StatusApproved {
		tmpl = approvedTmpl
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, p); err != nil {
		return Email{}, fmt.Errorf("render %s email: %w", p.Status, err)
	}
	return Email{To: p.DancerEmail, Subject: Subject(p), HTML: buf.String()}, nil
}
