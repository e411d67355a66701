package email

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/smtp"
	"strings"

	"feedgears/internal/domain"
)

// SMTPSender envia correos via SMTP.
type SMTPSender struct {
	host     string
	port     int
	username string
	password string
	from     string
	fromName string
	useTLS   bool
	appURL   string
}

func NewSMTPSender(host string, port int, username, password, from, fromName string, useTLS bool, appURL string) (*SMTPSender, error) {
	if strings.TrimSpace(host) == "" {
		return nil, fmt.Errorf("smtp host is required")
	}
	if strings.TrimSpace(from) == "" {
		return nil, fmt.Errorf("smtp from is required")
	}
	if port == 0 {
		port = 587
	}
	return &SMTPSender{
		host:     host,
		port:     port,
		username: username,
		password: password,
		from:     from,
		fromName: fromName,
		useTLS:   useTLS,
		appURL:   strings.TrimRight(appURL, "/"),
	}, nil
}

func (s *SMTPSender) SendPasswordReset(_ context.Context, toEmail, username string, token domain.AppToken) error {
	body := passwordResetBody(s.appURL, username, token)
	return s.send(toEmail, "Password reset", body)
}

func (s *SMTPSender) SendVerification(_ context.Context, toEmail, username string, token domain.AppToken, apiKey domain.APIKey) error {
	body := verificationBody(s.appURL, username, token, apiKey)
	return s.send(toEmail, "Verify your account", body)
}

func (s *SMTPSender) SendAPIKeyRecovery(_ context.Context, toEmail, username string, apiKey domain.APIKey) error {
	body := apiKeyRecoveryBody(username, apiKey)
	return s.send(toEmail, "Your API key", body)
}

func passwordResetBody(appURL, username string, token domain.AppToken) string {
	return fmt.Sprintf(
		"Hi %s,\nUse this link to reset your password: %s/pw_reset/%s\nThe link expires in %d minutes.\n",
		username, appURL, token.Value, token.MaxAgeSeconds()/60,
	)
}

func verificationBody(appURL, username string, token domain.AppToken, apiKey domain.APIKey) string {
	return fmt.Sprintf(
		"Hi %s,\nVerify your account: %s/verify/%s\n\nAPI key: %s\nAPI secret: %s\n",
		username, appURL, token.Value, apiKey.Key, apiKey.Secret,
	)
}

func apiKeyRecoveryBody(username string, apiKey domain.APIKey) string {
	return fmt.Sprintf("Hi %s,\nAPI key: %s\nAPI secret: %s\n", username, apiKey.Key, apiKey.Secret)
}

func (s *SMTPSender) send(toEmail, subject, body string) error {
	if strings.TrimSpace(toEmail) == "" {
		return fmt.Errorf("to email is required")
	}

	msg := buildMessage(s.from, s.fromName, toEmail, subject, body)
	addr := fmt.Sprintf("%s:%d", s.host, s.port)

	var auth smtp.Auth
	if s.username != "" {
		auth = smtp.PlainAuth("", s.username, s.password, s.host)
	}

	if s.useTLS {
		conn, err := tls.Dial("tcp", addr, &tls.Config{
			ServerName: s.host,
		})
		if err != nil {
			return err
		}
		defer conn.Close()

		client, err := smtp.NewClient(conn, s.host)
		if err != nil {
			return err
		}
		defer client.Quit()

		if auth != nil {
			if err := client.Auth(auth); err != nil {
				return err
			}
		}
		if err := client.Mail(s.from); err != nil {
			return err
		}
		if err := client.Rcpt(toEmail); err != nil {
			return err
		}
		writer, err := client.Data()
		if err != nil {
			return err
		}
		if _, err := writer.Write([]byte(msg)); err != nil {
			_ = writer.Close()
			return err
		}
		return writer.Close()
	}

	return smtp.SendMail(addr, auth, s.from, []string{toEmail}, []byte(msg))
}

func buildMessage(from, fromName, to, subject, body string) string {
	fromHeader := from
	if strings.TrimSpace(fromName) != "" {
		fromHeader = fmt.Sprintf("%s <%s>", fromName, from)
	}

	headers := []string{
		fmt.Sprintf("From: %s", fromHeader),
		fmt.Sprintf("To: %s", to),
		fmt.Sprintf("Subject: %s", subject),
		"MIME-Version: 1.0",
		"Content-Type: text/plain; charset=\"UTF-8\"",
	}

	return strings.Join(headers, "\r\n") + "\r\n\r\n" + body
}
