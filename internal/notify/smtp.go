package notify

import (
	"context"
	"errors"
	"html/template"
	"net/mail"
	"strings"
	"time"

	"gopkg.in/gomail.v2"

	"referral_dashboard/internal/model"
)

type smtpEndpoint struct {
	host string
	port int
	ssl  bool
}

// known providers keyed by mail domain; subdomains match too
var smtpEndpoints = []struct {
	domains []string
	smtpEndpoint
}{
	{[]string{"gmail.com", "googlemail.com"}, smtpEndpoint{"smtp.gmail.com", 587, false}},
	{[]string{"outlook.com", "hotmail.com", "live.com"}, smtpEndpoint{"smtp.office365.com", 587, false}},
	{[]string{"yahoo.com"}, smtpEndpoint{"smtp.mail.yahoo.com", 465, true}},
	{[]string{"icloud.com", "me.com"}, smtpEndpoint{"smtp.mail.me.com", 587, false}},
	{[]string{"qq.com", "foxmail.com"}, smtpEndpoint{"smtp.qq.com", 465, true}},
	{[]string{"163.com", "126.com", "yeah.net"}, smtpEndpoint{"smtp.163.com", 465, true}},
}

// ValidateEmailSettings checks settings before they are stored or used.
func ValidateEmailSettings(s model.EmailSettings) error {
	email := strings.TrimSpace(s.Email)
	if email == "" {
		return errors.New("email is required")
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return errors.New("invalid email")
	}
	if strings.TrimSpace(s.AuthCode) == "" {
		return errors.New("authCode is required")
	}
	return nil
}

func SendReloginSummaryEmail(ctx context.Context, settings model.EmailSettings, events []ReloginRequiredEvent) error {
	if len(events) == 0 {
		return errors.New("no events")
	}
	htmlBody, textBody, err := buildSummaryEmailBody(events)
	if err != nil {
		return err
	}
	return sendMail(ctx, settings, buildSummarySubject(events), htmlBody, textBody)
}

// SendTestEmail delivers a fixed message so a user can check the SMTP settings.
func SendTestEmail(ctx context.Context, settings model.EmailSettings) error {
	at := time.Now().Format(timeLayout)
	text := "This is a test message from " + senderName + ".\nSent at " + at + "\n"
	html := "<p>This is a test message from " + template.HTMLEscapeString(senderName) + ".</p><p>Sent at " + at + "</p>"
	return sendMail(ctx, settings, senderName+": test email", html, text)
}

func sendMail(ctx context.Context, settings model.EmailSettings, subject, htmlBody, textBody string) error {
	if err := ValidateEmailSettings(settings); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	email := strings.TrimSpace(settings.Email)
	host, port, ssl, err := smtpConfigForEmail(email)
	if err != nil {
		return err
	}

	msg := gomail.NewMessage()
	msg.SetAddressHeader("From", email, senderName)
	msg.SetHeader("To", email)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/plain", textBody)
	msg.AddAlternative("text/html", htmlBody)

	d := gomail.NewDialer(host, port, email, strings.TrimSpace(settings.AuthCode))
	d.SSL = ssl
	return d.DialAndSend(msg)
}

// smtpConfigForEmail picks the submission server from the address domain. Unknown
// domains get smtp.<domain> over implicit TLS.
func smtpConfigForEmail(email string) (host string, port int, useSSL bool, err error) {
	_, domain, ok := strings.Cut(strings.TrimSpace(email), "@")
	domain = strings.ToLower(strings.TrimSpace(domain))
	if !ok || domain == "" || strings.Contains(domain, "@") {
		return "", 0, false, errors.New("invalid email format")
	}
	for _, p := range smtpEndpoints {
		for _, name := range p.domains {
			if domain == name || strings.HasSuffix(domain, "."+name) {
				return p.host, p.port, p.ssl, nil
			}
		}
	}
	return "smtp." + domain, 465, true, nil
}
