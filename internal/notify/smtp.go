package notify

import (
	"context"
	"fmt"
	"net/smtp"
)

// SMTPDispatcher hands messages to a relay over plain SMTP. Message contents
// stay minimal: the code, the operation summary, and who asked.
type SMTPDispatcher struct {
	addr string
	from string
}

func NewSMTPDispatcher(addr, from string) *SMTPDispatcher {
	return &SMTPDispatcher{addr: addr, from: from}
}

func (d *SMTPDispatcher) Send(_ context.Context, msg Message) error {
	body := fmt.Sprintf(
		"From: %s\r\nTo: %s\r\nSubject: Confirmation code\r\n\r\n"+
			"Your confirmation code is %s.\r\n\r\nRequested action: %s\r\nRequested by: %s\r\n"+
			"The code expires in 10 minutes. If you did not request this, contact support.\r\n",
		d.from, msg.Target, msg.Code, msg.Summary, msg.RequestedBy,
	)
	if err := smtp.SendMail(d.addr, nil, d.from, []string{msg.Target}, []byte(body)); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}
