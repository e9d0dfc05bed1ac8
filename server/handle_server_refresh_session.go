package server

import (
	"github.com/labstack/echo/v4"
	"github.com/medbridge-health/medbridge/internal/helpers"
	"github.com/medbridge-health/medbridge/models"
)

type OrgMedbridgeServerRefreshSessionResponse struct {
	AccessJwt  string `json:"accessJwt"`
	RefreshJwt string `json:"refreshJwt"`
	Did        string `json:"did"`
}

func (s *Server) handleRefreshSession(e echo.Context) error {
	hospital := e.Get("hospital").(*models.Hospital)
	token := e.Get("token").(string)

	// Rotate: the presented refresh token and its access tokens go away.
	if err := s.db.Exec("DELETE FROM tokens WHERE refresh_token = ?", token).Error; err != nil {
		s.logger.Error("error deleting access tokens", "error", err)
		return helpers.ServerError(e, nil)
	}

	if err := s.db.Exec("DELETE FROM refresh_tokens WHERE token = ?", token).Error; err != nil {
		s.logger.Error("error deleting refresh token", "error", err)
		return helpers.ServerError(e, nil)
	}

	sess, err := s.createSession(hospital)
	if err != nil {
		s.logger.Error("error creating session", "error", err)
		return helpers.ServerError(e, nil)
	}

	return e.JSON(200, OrgMedbridgeServerRefreshSessionResponse{
		AccessJwt:  sess.AccessToken,
		RefreshJwt: sess.RefreshToken,
		Did:        hospital.Did,
	})
}
