package notify

import (
	"fmt"
	"log/slog"
	"net/smtp"
	"os"
	"sync"

	"github.com/domodwyer/mailyak/v3"
)

// SMSSender is the provider glue for text delivery. The actual provider
// (USSD gateway, aggregator API) is wired in at startup.
type SMSSender interface {
	SendSMS(to, body string) error
}

type MailerArgs struct {
	SmtpUser  string
	SmtpPass  string
	SmtpHost  string
	SmtpPort  string
	SmtpEmail string
	SmtpName  string
}

// Notifier fans out to email and SMS. mailyak instances are not safe for
// concurrent use, hence the lock.
type Notifier struct {
	mailLk sync.Mutex
	mail   *mailyak.MailYak
	sms    SMSSender
	logger *slog.Logger
}

type Args struct {
	Mailer *MailerArgs
	SMS    SMSSender
	Logger *slog.Logger
}

func New(args *Args) *Notifier {
	if args.Logger == nil {
		args.Logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{}))
	}

	n := &Notifier{
		sms:    args.SMS,
		logger: args.Logger,
	}

	if args.Mailer != nil && args.Mailer.SmtpHost != "" {
		mail := mailyak.New(
			args.Mailer.SmtpHost+":"+args.Mailer.SmtpPort,
			smtp.PlainAuth("", args.Mailer.SmtpUser, args.Mailer.SmtpPass, args.Mailer.SmtpHost),
		)
		mail.From(args.Mailer.SmtpEmail)
		mail.FromName(args.Mailer.SmtpName)
		n.mail = mail
	}

	return n
}

func (n *Notifier) SendEmail(to, subject, body string) error {
	if n.mail == nil {
		return fmt.Errorf("mailer is not configured")
	}

	n.mailLk.Lock()
	defer n.mailLk.Unlock()

	n.mail.To(to)
	n.mail.Subject(subject)
	n.mail.Plain().Set(body)

	if err := n.mail.Send(); err != nil {
		return err
	}

	return nil
}

func (n *Notifier) SendSMS(to, body string) error {
	if n.sms == nil {
		return fmt.Errorf("sms sender is not configured")
	}

	return n.sms.SendSMS(to, body)
}
