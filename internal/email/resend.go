package email

import (
	"fmt"

	"github.com/resend/resend-go/v3"
)

// ResendEmailService implements EmailService using the Resend API.
type ResendEmailService struct {
	client      *resend.Client
	fromAddress string
}

// NewResendEmailService creates a Resend email service. fromAddress must
// be a sender verified in Resend.
func NewResendEmailService(apiKey, fromAddress string) *ResendEmailService {
	return &ResendEmailService{
		client:      resend.NewClient(apiKey),
		fromAddress: fromAddress,
	}
}

// Send renders the named template and sends it via Resend.
func (r *ResendEmailService) Send(to, templateName string, data any) error {
	subject, html := renderTemplate(templateName, data)

	params := &resend.SendEmailRequest{
		From:    r.fromAddress,
		To:      []string{to},
		Subject: subject,
		Html:    html,
	}

	if _, err := r.client.Emails.Send(params); err != nil {
		return fmt.Errorf("resend: failed to send email: %w", err)
	}
	return nil
}

// renderTemplate returns the subject and HTML body for a template.
func renderTemplate(templateName string, data any) (subject, html string) {
	switch templateName {
	case TemplateWelcome:
		d := data.(WelcomeData)
		subject = "Welcome to SmartNotes!"
		html = renderWelcomeHTML(d)
	case TemplateSubscriptionActive:
		d := data.(SubscriptionActiveData)
		subject = "Your SmartNotes premium subscription is active"
		html = renderSubscriptionActiveHTML(d)
	default:
		subject = "Message from SmartNotes"
		html = fmt.Sprintf("<p>%+v</p>", data)
	}
	return
}

func renderWelcomeHTML(data WelcomeData) string {
	return fmt.Sprintf(`<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <title>Welcome to SmartNotes</title>
</head>
<body style="font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, Arial, sans-serif; line-height: 1.6; color: #333; max-width: 600px; margin: 0 auto; padding: 20px;">
    <div style="background: #4f46e5; padding: 30px; border-radius: 10px 10px 0 0;">
        <h1 style="color: white; margin: 0; font-size: 24px;">SmartNotes</h1>
    </div>
    <div style="background: #ffffff; padding: 30px; border: 1px solid #e0e0e0; border-top: none; border-radius: 0 0 10px 10px;">
        <h2 style="color: #333; margin-top: 0;">Welcome, %s!</h2>
        <p>Your account is ready. You can create up to 10 notes on the free plan, with tags and markdown formatting included.</p>
        <p>Upgrade to premium any time for unlimited notes and AI summaries.</p>
        <hr style="border: none; border-top: 1px solid #e0e0e0; margin: 20px 0;">
        <p style="color: #999; font-size: 12px;">This is an automated message from SmartNotes. Please do not reply to this email.</p>
    </div>
</body>
</html>`, data.Name)
}

func renderSubscriptionActiveHTML(data SubscriptionActiveData) string {
	return fmt.Sprintf(`<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <title>Subscription active</title>
</head>
<body style="font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, Arial, sans-serif; line-height: 1.6; color: #333; max-width: 600px; margin: 0 auto; padding: 20px;">
    <div style="background: #4f46e5; padding: 30px; border-radius: 10px 10px 0 0;">
        <h1 style="color: white; margin: 0; font-size: 24px;">SmartNotes</h1>
    </div>
    <div style="background: #ffffff; padding: 30px; border: 1px solid #e0e0e0; border-top: none; border-radius: 0 0 10px 10px;">
        <h2 style="color: #333; margin-top: 0;">You're premium now, %s!</h2>
        <p>Your subscription (%s) is active. Enjoy unlimited notes and AI summaries.</p>
        <hr style="border: none; border-top: 1px solid #e0e0e0; margin: 20px 0;">
        <p style="color: #999; font-size: 12px;">This is an automated message from SmartNotes. Please do not reply to this email.</p>
    </div>
</body>
</html>`, data.Name, data.SubscriptionID)
}
