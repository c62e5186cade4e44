package mailer

import (
	"fmt"

	"gopkg.in/gomail.v2"
)

type Mailer interface {
	Send(to, subject, body string) error
}

type SMTPMailer struct {
	Host string
	Port int
	User string
	Pass string
	From string
}

func (m *SMTPMailer) Send(to, subject, body string) error {
	msg := gomail.NewMessage()
	msg.SetHeader("From", m.From)
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/plain", body)

	d := gomail.NewDialer(m.Host, m.Port, m.User, m.Pass)
	if err := d.DialAndSend(msg); err != nil {
		return fmt.Errorf("mailer: send to %s failed: %w", to, err)
	}
	return nil
}
