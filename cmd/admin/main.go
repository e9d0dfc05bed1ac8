package main

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/medbridge-health/medbridge/internal/helpers"
	"github.com/medbridge-health/medbridge/models"
	"github.com/medbridge-health/medbridge/revocation"
	"github.com/medbridge-health/medbridge/vault"
	"github.com/urfave/cli/v2"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func main() {
	app := cli.App{
		Name: "admin",
		Commands: cli.Commands{
			runCreateMasterKey,
			runCreateServiceJwk,
			runCreateHospital,
			runCreateStaff,
			runRevokeCredential,
		},
		ErrWriter: os.Stdout,
	}

	app.Run(os.Args)
}

var runCreateMasterKey = &cli.Command{
	Name:  "create-master-key",
	Usage: "creates the key custody master key",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:     "out",
			Required: true,
			Usage:    "output file for the master key",
		},
	},
	Action: func(cmd *cli.Context) error {
		key := make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			return err
		}

		if err := os.WriteFile(cmd.String("out"), []byte(hex.EncodeToString(key)), 0600); err != nil {
			return err
		}

		return nil
	},
}

var runCreateServiceJwk = &cli.Command{
	Name:  "create-service-jwk",
	Usage: "creates the private jwk used for session tokens",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:     "out",
			Required: true,
			Usage:    "output file for the jwk",
		},
	},
	Action: func(cmd *cli.Context) error {
		privKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
		if err != nil {
			return err
		}

		key, err := jwk.FromRaw(privKey)
		if err != nil {
			return err
		}

		kid := fmt.Sprintf("%d", time.Now().Unix())

		if err := key.Set(jwk.KeyIDKey, kid); err != nil {
			return err
		}

		b, err := json.Marshal(key)
		if err != nil {
			return err
		}

		if err := os.WriteFile(cmd.String("out"), b, 0600); err != nil {
			return err
		}

		return nil
	},
}

var runCreateHospital = &cli.Command{
	Name:  "create-hospital",
	Usage: "onboards a hospital account",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:     "name",
			Required: true,
		},
		&cli.StringFlag{
			Name:     "email",
			Required: true,
		},
	},
	Action: func(cmd *cli.Context) error {
		db, err := newDb()
		if err != nil {
			return err
		}

		password := fmt.Sprintf("%s-%s", helpers.RandomVarchar(12), helpers.RandomVarchar(12))
		hashed, err := bcrypt.GenerateFromPassword([]byte(password), 10)
		if err != nil {
			return err
		}

		hospital := models.Hospital{
			Did:       vault.DeriveDID("hospital", cmd.String("name")),
			CreatedAt: time.Now().UTC(),
			Name:      cmd.String("name"),
			Email:     cmd.String("email"),
			Password:  string(hashed),
			Active:    true,
		}

		if err := db.Create(&hospital).Error; err != nil {
			return err
		}

		fmt.Printf("Hospital %s created\n  did: %s\n  password: %s\n", hospital.Name, hospital.Did, password)

		return nil
	},
}

var runCreateStaff = &cli.Command{
	Name:  "create-staff",
	Usage: "registers a staff member in the on-duty directory",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "staff-id", Required: true},
		&cli.StringFlag{Name: "hospital-did", Required: true},
		&cli.StringFlag{Name: "name", Required: true},
		&cli.StringFlag{Name: "role", Required: true, Usage: "PHYSICIAN, SURGEON, EMERGENCY_DOCTOR, or CHIEF_RESIDENT"},
		&cli.StringFlag{Name: "license", Required: true},
		&cli.StringFlag{Name: "department"},
		&cli.BoolFlag{Name: "on-duty"},
		&cli.BoolFlag{Name: "administrator"},
	},
	Action: func(cmd *cli.Context) error {
		db, err := newDb()
		if err != nil {
			return err
		}

		staff := models.HospitalStaff{
			StaffID:       cmd.String("staff-id"),
			HospitalDid:   cmd.String("hospital-did"),
			Name:          cmd.String("name"),
			Role:          cmd.String("role"),
			LicenseNumber: cmd.String("license"),
			Department:    cmd.String("department"),
			OnDuty:        cmd.Bool("on-duty"),
			Administrator: cmd.Bool("administrator"),
			Active:        true,
		}

		if err := db.Create(&staff).Error; err != nil {
			return err
		}

		fmt.Printf("Staff %s (%s) registered\n", staff.Name, staff.StaffID)

		return nil
	},
}

var runRevokeCredential = &cli.Command{
	Name:  "revoke-credential",
	Usage: "revokes a consent credential by id",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "id", Required: true},
		&cli.StringFlag{Name: "by", Required: true, Usage: "did of the revoking actor"},
	},
	Action: func(cmd *cli.Context) error {
		db, err := newDb()
		if err != nil {
			return err
		}

		registry, err := revocation.NewRegistry(&revocation.Args{
			Store: revocation.NewGormStore(db),
		})
		if err != nil {
			return err
		}

		if err := registry.Revoke(cmd.Context, cmd.String("id"), cmd.String("by")); err != nil {
			return err
		}

		fmt.Printf("Credential %s revoked\n", cmd.String("id"))

		return nil
	},
}

func newDb() (*gorm.DB, error) {
	return gorm.Open(sqlite.Open("medbridge.db"), &gorm.Config{})
}
