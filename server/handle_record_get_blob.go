package server

import (
	"github.com/Azure/go-autorest/autorest/to"
	"github.com/ipfs/go-cid"
	"github.com/labstack/echo/v4"
	"github.com/medbridge-health/medbridge/internal/helpers"
)

func (s *Server) handleRecordGetBlob(e echo.Context) error {
	cidstr := e.QueryParam("cid")
	if cidstr == "" {
		return helpers.InputError(e, to.StringPtr("MissingCid"))
	}

	c, err := cid.Parse(cidstr)
	if err != nil {
		return helpers.InputError(e, to.StringPtr("InvalidCid"))
	}

	b, err := s.blobs.Get(e.Request().Context(), c)
	if err != nil {
		s.logger.Error("error fetching blob", "cid", cidstr, "error", err)
		return helpers.InputError(e, to.StringPtr("BlobNotFound"))
	}

	return e.Blob(200, "application/octet-stream", b.RawData())
}
