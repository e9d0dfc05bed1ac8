package server

import "github.com/labstack/echo/v4"

func (s *Server) handleHealth(e echo.Context) error {
	return e.JSON(200, map[string]string{
		"version": "medbridge " + s.config.Version,
	})
}

func (s *Server) handleRoot(e echo.Context) error {
	return e.String(200, "medbridge: consent-gated health record exchange\n")
}

func (s *Server) handleRobots(e echo.Context) error {
	return e.String(200, "User-agent: *\nDisallow: /\n")
}
