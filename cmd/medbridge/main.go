package main

import (
	"fmt"
	"os"
	"time"

	"github.com/medbridge-health/medbridge/notify"
	"github.com/medbridge-health/medbridge/server"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v2"
)

var Version = "dev"

func main() {
	app := &cli.App{
		Name:  "medbridge",
		Usage: "Consent-gated health record exchange",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "addr",
				Value:   ":8080",
				EnvVars: []string{"MEDBRIDGE_ADDR"},
			},
			&cli.StringFlag{
				Name:    "db-name",
				Value:   "medbridge.db",
				EnvVars: []string{"MEDBRIDGE_DB_NAME"},
			},
			&cli.StringFlag{
				Name:     "did",
				Required: true,
				EnvVars:  []string{"MEDBRIDGE_DID"},
			},
			&cli.StringFlag{
				Name:     "hostname",
				Required: true,
				EnvVars:  []string{"MEDBRIDGE_HOSTNAME"},
			},
			&cli.StringFlag{
				Name:     "master-key-path",
				Required: true,
				EnvVars:  []string{"MEDBRIDGE_MASTER_KEY_PATH"},
			},
			&cli.StringFlag{
				Name:     "jwk-path",
				Required: true,
				EnvVars:  []string{"MEDBRIDGE_JWK_PATH"},
			},
			&cli.StringFlag{
				Name:     "contact-email",
				Required: true,
				EnvVars:  []string{"MEDBRIDGE_CONTACT_EMAIL"},
			},
			&cli.IntFlag{
				Name:    "max-lifetime-hours",
				Value:   720,
				EnvVars: []string{"MEDBRIDGE_MAX_LIFETIME_HOURS"},
			},
			&cli.StringFlag{
				Name:    "smtp-user",
				EnvVars: []string{"MEDBRIDGE_SMTP_USER"},
			},
			&cli.StringFlag{
				Name:    "smtp-pass",
				EnvVars: []string{"MEDBRIDGE_SMTP_PASS"},
			},
			&cli.StringFlag{
				Name:    "smtp-host",
				EnvVars: []string{"MEDBRIDGE_SMTP_HOST"},
			},
			&cli.StringFlag{
				Name:    "smtp-port",
				EnvVars: []string{"MEDBRIDGE_SMTP_PORT"},
			},
			&cli.StringFlag{
				Name:    "smtp-email",
				EnvVars: []string{"MEDBRIDGE_SMTP_EMAIL"},
			},
			&cli.StringFlag{
				Name:    "smtp-name",
				EnvVars: []string{"MEDBRIDGE_SMTP_NAME"},
			},
		},
		Commands: []*cli.Command{
			run,
		},
		ErrWriter: os.Stdout,
		Version:   Version,
	}

	app.Run(os.Args)
}

var run = &cli.Command{
	Name:  "run",
	Usage: "Start the medbridge exchange",
	Action: func(cmd *cli.Context) error {
		s, err := server.New(&server.Args{
			Addr:          cmd.String("addr"),
			DbName:        cmd.String("db-name"),
			Did:           cmd.String("did"),
			Hostname:      cmd.String("hostname"),
			MasterKeyPath: cmd.String("master-key-path"),
			JwkPath:       cmd.String("jwk-path"),
			ContactEmail:  cmd.String("contact-email"),
			MaxLifetime:   time.Duration(cmd.Int("max-lifetime-hours")) * time.Hour,
			Version:       Version,
			Smtp: &notify.MailerArgs{
				SmtpUser:  cmd.String("smtp-user"),
				SmtpPass:  cmd.String("smtp-pass"),
				SmtpHost:  cmd.String("smtp-host"),
				SmtpPort:  cmd.String("smtp-port"),
				SmtpEmail: cmd.String("smtp-email"),
				SmtpName:  cmd.String("smtp-name"),
			},
		})
		if err != nil {
			fmt.Printf("error creating medbridge: %v", err)
			return err
		}

		if err := s.Serve(cmd.Context); err != nil {
			fmt.Printf("error starting medbridge: %v", err)
			return err
		}

		return nil
	},
}
