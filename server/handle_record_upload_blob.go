package server

import (
	"io"
	"time"

	"github.com/Azure/go-autorest/autorest/to"
	"github.com/labstack/echo/v4"
	"github.com/medbridge-health/medbridge/internal/helpers"
	"github.com/medbridge-health/medbridge/models"
)

type OrgMedbridgeRecordUploadBlobResponse struct {
	Cid      string `json:"cid"`
	RecordID string `json:"recordId"`
}

// Accepts an already-encrypted record payload. The service stores ciphertext
// only; keys travel inside consent credentials.
func (s *Server) handleRecordUploadBlob(e echo.Context) error {
	recordID := e.QueryParam("recordId")
	patientDid := e.QueryParam("patientDid")
	category := e.QueryParam("category")

	if recordID == "" || patientDid == "" || category == "" {
		return helpers.InputError(e, to.StringPtr("MissingRecordMetadata"))
	}

	data, err := io.ReadAll(io.LimitReader(e.Request().Body, 50*1024*1024))
	if err != nil {
		s.logger.Error("error reading blob body", "error", err)
		return helpers.ServerError(e, nil)
	}

	if len(data) == 0 {
		return helpers.InputError(e, to.StringPtr("EmptyBlob"))
	}

	c, err := s.blobs.Put(e.Request().Context(), data)
	if err != nil {
		s.logger.Error("error storing blob", "error", err)
		return helpers.ServerError(e, nil)
	}

	meta := models.MedicalRecordMeta{
		RecordID:   recordID,
		PatientDid: patientDid,
		Category:   category,
		Cid:        c.String(),
		CreatedAt:  time.Now().UTC(),
	}

	if err := s.db.Save(&meta).Error; err != nil {
		s.logger.Error("error saving record metadata", "error", err)
		return helpers.ServerError(e, nil)
	}

	return e.JSON(200, OrgMedbridgeRecordUploadBlobResponse{
		Cid:      c.String(),
		RecordID: recordID,
	})
}
