package server

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
	"github.com/medbridge-health/medbridge/models"
)

type session struct {
	AccessToken  string
	RefreshToken string
}

func (s *Server) createSession(hospital *models.Hospital) (*session, error) {
	now := time.Now().UTC()
	accessExp := now.Add(2 * time.Hour)
	refreshExp := now.Add(30 * 24 * time.Hour)

	access := jwt.NewWithClaims(jwt.SigningMethodES256, jwt.MapClaims{
		"scope": "org.medbridge.access",
		"sub":   hospital.Did,
		"aud":   s.config.Did,
		"iat":   now.Unix(),
		"exp":   accessExp.Unix(),
		"jti":   uuid.NewString(),
	})

	refresh := jwt.NewWithClaims(jwt.SigningMethodES256, jwt.MapClaims{
		"scope": "org.medbridge.refresh",
		"sub":   hospital.Did,
		"aud":   s.config.Did,
		"iat":   now.Unix(),
		"exp":   refreshExp.Unix(),
		"jti":   uuid.NewString(),
	})

	accessStr, err := access.SignedString(s.serviceKey)
	if err != nil {
		return nil, fmt.Errorf("signing access token: %w", err)
	}

	refreshStr, err := refresh.SignedString(s.serviceKey)
	if err != nil {
		return nil, fmt.Errorf("signing refresh token: %w", err)
	}

	if err := s.db.Create(&models.RefreshToken{
		Token:     refreshStr,
		Did:       hospital.Did,
		CreatedAt: now,
		ExpiresAt: refreshExp,
	}).Error; err != nil {
		return nil, err
	}

	if err := s.db.Create(&models.Token{
		Token:        accessStr,
		Did:          hospital.Did,
		RefreshToken: refreshStr,
		CreatedAt:    now,
		ExpiresAt:    accessExp,
	}).Error; err != nil {
		return nil, err
	}

	return &session{
		AccessToken:  accessStr,
		RefreshToken: refreshStr,
	}, nil
}
