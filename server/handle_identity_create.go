package server

import (
	"errors"

	"github.com/Azure/go-autorest/autorest/to"
	"github.com/labstack/echo/v4"
	"github.com/medbridge-health/medbridge/internal/helpers"
	"github.com/medbridge-health/medbridge/internal/metrics"
)

type OrgMedbridgeIdentityCreateRequest struct {
	Handle string `json:"handle" validate:"required"`
	Phone  string `json:"phone" validate:"required,min=10"`
}

type OrgMedbridgeIdentityCreateResponse struct {
	Did       string `json:"did"`
	PublicJwk any    `json:"publicJwk"`
}

func (s *Server) handleCreateIdentity(e echo.Context) error {
	var request OrgMedbridgeIdentityCreateRequest

	if err := e.Bind(&request); err != nil {
		s.logger.Error("error receiving request", "endpoint", "org.medbridge.identity.createIdentity", "error", err)
		return helpers.ServerError(e, nil)
	}

	if err := e.Validate(request); err != nil {
		var verr ValidationError
		if errors.As(err, &verr) {
			if verr.Field == "Phone" {
				return helpers.InputError(e, to.StringPtr("InvalidPhone"))
			}
			return helpers.InputError(e, to.StringPtr("InvalidHandle"))
		}
		return helpers.InputError(e, nil)
	}

	did, pub, err := s.vault.CreateIdentity(e.Request().Context(), request.Handle, request.Phone)
	if err != nil {
		s.logger.Error("error creating identity", "endpoint", "org.medbridge.identity.createIdentity", "error", err)
		return helpers.ServerError(e, nil)
	}

	metrics.IdentitiesCreated.Inc()

	return e.JSON(200, OrgMedbridgeIdentityCreateResponse{
		Did:       did,
		PublicJwk: pub,
	})
}
