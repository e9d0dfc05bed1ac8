package server

import (
	"context"
	"crypto/ecdsa"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/Azure/go-autorest/autorest/to"
	"github.com/go-playground/validator"
	"github.com/golang-jwt/jwt/v4"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/medbridge-health/medbridge/audit"
	"github.com/medbridge-health/medbridge/blobstore"
	"github.com/medbridge-health/medbridge/credential"
	"github.com/medbridge-health/medbridge/emergency"
	"github.com/medbridge-health/medbridge/identity"
	"github.com/medbridge-health/medbridge/internal/helpers"
	"github.com/medbridge-health/medbridge/models"
	"github.com/medbridge-health/medbridge/notify"
	"github.com/medbridge-health/medbridge/revocation"
	"github.com/medbridge-health/medbridge/vault"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	slogecho "github.com/samber/slog-echo"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type Server struct {
	httpd      *http.Server
	echo       *echo.Echo
	db         *gorm.DB
	logger     *slog.Logger
	config     *config
	serviceKey *ecdsa.PrivateKey

	vault     *vault.Vault
	issuer    *credential.Issuer
	verifier  *credential.Verifier
	registry  *revocation.Registry
	authority *emergency.Authority
	blobs     *blobstore.Blobstore
	audits    audit.Sink
	notifier  *notify.Notifier
	emrecords *emergency.GormRecords
}

type Args struct {
	Addr          string
	DbName        string
	Logger        *slog.Logger
	Version       string
	Did           string
	Hostname      string
	ContactEmail  string
	MasterKeyPath string
	JwkPath       string
	MaxLifetime   time.Duration
	Smtp          *notify.MailerArgs
	SMS           notify.SMSSender
}

type config struct {
	Version      string
	Did          string
	Hostname     string
	ContactEmail string
	MaxLifetime  time.Duration
}

type CustomValidator struct {
	validator *validator.Validate
}

type ValidationError struct {
	error
	Field string
	Tag   string
}

func (cv *CustomValidator) Validate(i any) error {
	if err := cv.validator.Struct(i); err != nil {
		var validateErrors validator.ValidationErrors
		if errors.As(err, &validateErrors) && len(validateErrors) > 0 {
			first := validateErrors[0]
			return ValidationError{
				error: err,
				Field: first.Field(),
				Tag:   first.Tag(),
			}
		}

		return err
	}

	return nil
}

func (s *Server) handleSessionMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(e echo.Context) error {
		authheader := e.Request().Header.Get("authorization")
		if authheader == "" {
			return helpers.AuthError(e, nil)
		}

		pts := strings.Split(authheader, " ")
		if len(pts) != 2 {
			return helpers.AuthError(e, nil)
		}

		tokenstr := pts[1]

		token, err := new(jwt.Parser).Parse(tokenstr, func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodECDSA); !ok {
				return nil, fmt.Errorf("unsupported signing method: %v", t.Header["alg"])
			}

			return s.serviceKey.Public(), nil
		})
		if err != nil {
			s.logger.Error("error parsing jwt", "error", err)
			return helpers.AuthError(e, to.StringPtr("InvalidToken"))
		}

		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok || !token.Valid {
			return helpers.AuthError(e, to.StringPtr("InvalidToken"))
		}

		isRefresh := e.Request().URL.Path == "/xrpc/org.medbridge.server.refreshSession"
		scope, _ := claims["scope"].(string)

		if isRefresh && scope != "org.medbridge.refresh" {
			return helpers.AuthError(e, to.StringPtr("InvalidToken"))
		} else if !isRefresh && scope != "org.medbridge.access" {
			return helpers.AuthError(e, to.StringPtr("InvalidToken"))
		}

		table := "tokens"
		if isRefresh {
			table = "refresh_tokens"
		}

		type Result struct {
			Found bool
		}
		var result Result
		if err := s.db.Raw("SELECT EXISTS(SELECT 1 FROM "+table+" WHERE token = ?) AS found", tokenstr).Scan(&result).Error; err != nil {
			s.logger.Error("error getting token from db", "error", err)
			return helpers.ServerError(e, nil)
		}

		if !result.Found {
			return helpers.AuthError(e, to.StringPtr("InvalidToken"))
		}

		exp, ok := claims["exp"].(float64)
		if !ok {
			s.logger.Error("error getting exp from token")
			return helpers.ServerError(e, nil)
		}

		if exp < float64(time.Now().UTC().Unix()) {
			return helpers.AuthError(e, to.StringPtr("ExpiredToken"))
		}

		did, _ := claims["sub"].(string)
		e.Set("did", did)

		hospital, err := s.getHospitalByDid(did)
		if err != nil {
			s.logger.Error("error fetching hospital", "error", err)
			return helpers.ServerError(e, nil)
		}

		if !hospital.Active {
			return helpers.AuthError(e, to.StringPtr("AccountDeactivated"))
		}

		e.Set("hospital", hospital)
		e.Set("token", tokenstr)

		if err := next(e); err != nil {
			e.Error(err)
		}

		return nil
	}
}

func New(args *Args) (*Server, error) {
	if args.Addr == "" {
		return nil, fmt.Errorf("addr must be set")
	}

	if args.DbName == "" {
		return nil, fmt.Errorf("db name must be set")
	}

	if args.Did == "" {
		return nil, fmt.Errorf("service did must be set")
	}

	if args.Hostname == "" {
		return nil, fmt.Errorf("hostname must be set")
	}

	if args.ContactEmail == "" {
		return nil, fmt.Errorf("contact email is required")
	}

	if args.MaxLifetime <= 0 {
		args.MaxLifetime = 720 * time.Hour
	}

	if args.Logger == nil {
		args.Logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{}))
	}

	e := echo.New()

	e.Pre(middleware.RemoveTrailingSlash())
	e.Pre(slogecho.New(args.Logger))
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     []string{"*"},
		AllowHeaders:     []string{"*"},
		AllowMethods:     []string{"*"},
		AllowCredentials: true,
		MaxAge:           100_000_000,
	}))

	vdtor := validator.New()
	vdtor.RegisterValidation("medbridge-did", func(fl validator.FieldLevel) bool {
		v := fl.Field().String()
		return strings.HasPrefix(v, "did:medbridge:") && strings.Count(v, ":") == 3
	})
	vdtor.RegisterValidation("record-scope", func(fl validator.FieldLevel) bool {
		switch credential.Scope(fl.Field().String()) {
		case credential.ScopeAll, credential.ScopeSpecific, credential.ScopeCategory:
			return true
		}
		return false
	})

	e.Validator = &CustomValidator{validator: vdtor}

	httpd := &http.Server{
		Addr:    args.Addr,
		Handler: e,
	}

	db, err := gorm.Open(sqlite.Open(args.DbName), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	mkhex, err := os.ReadFile(args.MasterKeyPath)
	if err != nil {
		return nil, fmt.Errorf("reading master key: %w", err)
	}

	masterKey, err := hex.DecodeString(strings.TrimSpace(string(mkhex)))
	if err != nil {
		return nil, fmt.Errorf("decoding master key: %w", err)
	}

	jwkbytes, err := os.ReadFile(args.JwkPath)
	if err != nil {
		return nil, err
	}

	key, err := jwk.ParseKey(jwkbytes)
	if err != nil {
		return nil, err
	}

	var skey ecdsa.PrivateKey
	if err := key.Raw(&skey); err != nil {
		return nil, err
	}

	audits := audit.NewGormSink(db, args.Logger)

	v, err := vault.New(&vault.Args{
		Store:     vault.NewGormKeyStore(db),
		MasterKey: masterKey,
		Logger:    args.Logger,
	})
	if err != nil {
		return nil, err
	}

	issuer, err := credential.NewIssuer(&credential.IssuerArgs{
		Signer:      v,
		MaxLifetime: args.MaxLifetime,
		Logger:      args.Logger,
	})
	if err != nil {
		return nil, err
	}

	registry, err := revocation.NewRegistry(&revocation.Args{
		Store:  revocation.NewGormStore(db),
		Logger: args.Logger,
	})
	if err != nil {
		return nil, err
	}

	verifier, err := credential.NewVerifier(&credential.VerifierArgs{
		Keys:        identity.NewResolver(v, identity.NewMemCache(10_000)),
		Revocations: registry,
		Records:     credential.NewGormRecordDirectory(db),
		Audits:      audits,
		Logger:      args.Logger,
	})
	if err != nil {
		return nil, err
	}

	notifier := notify.New(&notify.Args{
		Mailer: args.Smtp,
		SMS:    args.SMS,
		Logger: args.Logger,
	})

	emrecords := emergency.NewGormRecords(db)

	authority, err := emergency.NewAuthority(&emergency.Args{
		Records:   emrecords,
		Staff:     emergency.NewGormStaffDirectory(db),
		Contacts:  emergency.NewGormContactBook(db),
		Notifier:  notifier,
		Audits:    audits,
		Logger:    args.Logger,
		SystemDid: args.Did,
	})
	if err != nil {
		return nil, err
	}

	s := &Server{
		httpd:      httpd,
		echo:       e,
		logger:     args.Logger,
		db:         db,
		serviceKey: &skey,
		config: &config{
			Version:      args.Version,
			Did:          args.Did,
			Hostname:     args.Hostname,
			ContactEmail: args.ContactEmail,
			MaxLifetime:  args.MaxLifetime,
		},
		vault:     v,
		issuer:    issuer,
		verifier:  verifier,
		registry:  registry,
		authority: authority,
		blobs:     blobstore.New(db),
		audits:    audits,
		notifier:  notifier,
		emrecords: emrecords,
	}

	return s, nil
}

func (s *Server) addRoutes() {
	s.echo.GET("/", s.handleRoot)
	s.echo.GET("/xrpc/_health", s.handleHealth)
	s.echo.GET("/.well-known/did.json", s.handleWellKnown)
	s.echo.GET("/robots.txt", s.handleRobots)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	// public
	s.echo.POST("/xrpc/org.medbridge.identity.createIdentity", s.handleCreateIdentity)
	s.echo.POST("/xrpc/org.medbridge.server.createSession", s.handleCreateSession)

	// authed
	s.echo.POST("/xrpc/org.medbridge.server.refreshSession", s.handleRefreshSession, s.handleSessionMiddleware)
	s.echo.POST("/xrpc/org.medbridge.server.deleteSession", s.handleDeleteSession, s.handleSessionMiddleware)

	// consent
	s.echo.POST("/xrpc/org.medbridge.consent.requestAuthorization", s.handleConsentRequestAuthorization, s.handleSessionMiddleware)
	s.echo.POST("/xrpc/org.medbridge.consent.issueCredential", s.handleConsentIssue, s.handleSessionMiddleware)
	s.echo.POST("/xrpc/org.medbridge.consent.verifyCredential", s.handleConsentVerify, s.handleSessionMiddleware)
	s.echo.POST("/xrpc/org.medbridge.consent.revokeCredential", s.handleConsentRevoke, s.handleSessionMiddleware)

	// emergency
	s.echo.POST("/xrpc/org.medbridge.emergency.requestAccess", s.handleEmergencyRequest, s.handleSessionMiddleware)
	s.echo.POST("/xrpc/org.medbridge.emergency.revokeConsent", s.handleEmergencyRevoke, s.handleSessionMiddleware)

	// records
	s.echo.POST("/xrpc/org.medbridge.record.uploadBlob", s.handleRecordUploadBlob, s.handleSessionMiddleware)
	s.echo.GET("/xrpc/org.medbridge.record.getBlob", s.handleRecordGetBlob, s.handleSessionMiddleware)
}

func (s *Server) Serve(ctx context.Context) error {
	s.addRoutes()

	s.logger.Info("migrating...")

	s.db.AutoMigrate(
		&models.PatientIdentity{},
		&models.Hospital{},
		&models.HospitalStaff{},
		&models.Token{},
		&models.RefreshToken{},
		&models.ConsentCredential{},
		&models.ConsentAuthorization{},
		&models.RevocationEntry{},
		&models.EmergencyConsentRecord{},
		&models.EmergencyContact{},
		&models.AuditEvent{},
		&models.Blob{},
		&models.MedicalRecordMeta{},
	)

	s.logger.Info("starting medbridge")

	go func() {
		if err := s.httpd.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			panic(err)
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return s.httpd.Shutdown(shutdownCtx)
}
