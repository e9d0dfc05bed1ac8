package server

import (
	"github.com/Azure/go-autorest/autorest/to"
	"github.com/labstack/echo/v4"
	"github.com/medbridge-health/medbridge/internal/helpers"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

type OrgMedbridgeServerCreateSessionRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type OrgMedbridgeServerCreateSessionResponse struct {
	AccessJwt  string `json:"accessJwt"`
	RefreshJwt string `json:"refreshJwt"`
	Did        string `json:"did"`
	Name       string `json:"name"`
}

func (s *Server) handleCreateSession(e echo.Context) error {
	var request OrgMedbridgeServerCreateSessionRequest

	if err := e.Bind(&request); err != nil {
		s.logger.Error("error receiving request", "endpoint", "org.medbridge.server.createSession", "error", err)
		return helpers.ServerError(e, nil)
	}

	if err := e.Validate(request); err != nil {
		return helpers.InputError(e, nil)
	}

	hospital, err := s.getHospitalByEmail(request.Email)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return helpers.AuthError(e, to.StringPtr("InvalidCredentials"))
		}
		s.logger.Error("error looking up hospital", "error", err)
		return helpers.ServerError(e, nil)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(hospital.Password), []byte(request.Password)); err != nil {
		return helpers.AuthError(e, to.StringPtr("InvalidCredentials"))
	}

	if !hospital.Active {
		return helpers.AuthError(e, to.StringPtr("AccountDeactivated"))
	}

	sess, err := s.createSession(hospital)
	if err != nil {
		s.logger.Error("error creating session", "error", err)
		return helpers.ServerError(e, nil)
	}

	return e.JSON(200, OrgMedbridgeServerCreateSessionResponse{
		AccessJwt:  sess.AccessToken,
		RefreshJwt: sess.RefreshToken,
		Did:        hospital.Did,
		Name:       hospital.Name,
	})
}
