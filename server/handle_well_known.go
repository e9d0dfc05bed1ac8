package server

import (
	"encoding/json"

	"github.com/labstack/echo/v4"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/medbridge-health/medbridge/internal/helpers"
)

func (s *Server) handleWellKnown(e echo.Context) error {
	pub, err := jwk.FromRaw(s.serviceKey.Public())
	if err != nil {
		return helpers.ServerError(e, nil)
	}

	pubJSON, err := json.Marshal(pub)
	if err != nil {
		return helpers.ServerError(e, nil)
	}

	return e.JSON(200, map[string]any{
		"@context": []string{"https://www.w3.org/ns/did/v1"},
		"id":       s.config.Did,
		"verificationMethod": []map[string]any{
			{
				"id":           s.config.Did + "#service",
				"type":         "JsonWebKey2020",
				"controller":   s.config.Did,
				"publicKeyJwk": json.RawMessage(pubJSON),
			},
		},
		"service": []map[string]string{
			{
				"id":              "#medbridge_exchange",
				"type":            "MedBridgeExchange",
				"serviceEndpoint": "https://" + s.config.Hostname,
			},
		},
	})
}
