// Package email sends transactional mail. The real implementation uses
// Resend; test mode captures messages in memory.
package email

import (
	"sync"

	"github.com/kuitang/smartnotes/internal/obs"
)

// Template names.
const (
	TemplateWelcome            = "welcome"
	TemplateSubscriptionActive = "subscription_active"
)

// WelcomeData is the payload for welcome emails.
type WelcomeData struct {
	Name string
}

// SubscriptionActiveData is the payload for subscription confirmation emails.
type SubscriptionActiveData struct {
	Name           string
	SubscriptionID string
}

// EmailService sends an email rendered from a named template.
type EmailService interface {
	Send(to, templateName string, data any) error
}

// SentEmail is a captured email for testing.
type SentEmail struct {
	To       string
	Template string
	Data     any
}

// MockEmailService captures emails instead of sending them.
type MockEmailService struct {
	mu     sync.Mutex
	Emails []SentEmail
}

// NewMockEmailService creates an empty mock email service.
func NewMockEmailService() *MockEmailService {
	return &MockEmailService{Emails: make([]SentEmail, 0)}
}

// Send captures the email and logs it for manual testing visibility.
func (m *MockEmailService) Send(to, templateName string, data any) error {
	m.mu.Lock()
	m.Emails = append(m.Emails, SentEmail{To: to, Template: templateName, Data: data})
	m.mu.Unlock()

	obs.Pkg("email").Info("mock_email_sent", "to", to, "template", templateName)
	return nil
}

// LastEmail returns the most recently captured email, or the zero value.
func (m *MockEmailService) LastEmail() SentEmail {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Emails) == 0 {
		return SentEmail{}
	}
	return m.Emails[len(m.Emails)-1]
}

// Count returns the number of captured emails.
func (m *MockEmailService) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Emails)
}
