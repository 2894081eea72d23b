package handler

import (
	"path/filepath"

	"github.com/gin-gonic/gin"

	appErrors "github.com/aulago/classroom-api/pkg/errors"
	"github.com/aulago/classroom-api/pkg/response"
	"github.com/aulago/classroom-api/pkg/storage"
)

// FileHandler serves submission files against signed download tokens.
// The token is the only credential; the route carries no session.
type FileHandler struct {
	signer  *storage.SignedURLSigner
	uploads *storage.LocalStorage
}

// NewFileHandler constructs a file handler.
func NewFileHandler(signer *storage.SignedURLSigner, uploads *storage.LocalStorage) *FileHandler {
	return &FileHandler{signer: signer, uploads: uploads}
}

// Download godoc
// @Summary Download a submission file
// @Description Streams the file referenced by a signed token
// @Tags Files
// @Produce octet-stream
// @Param token query string true "Signed download token"
// @Success 200 {file} binary
// @Failure 401 {object} response.Envelope
// @Router /files/download [get]
func (h *FileHandler) Download(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrUnauthorized, "download token required"))
		return
	}

	_, relPath, _, err := h.signer.Parse(token, false)
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrUnauthorized, "invalid or expired download token"))
		return
	}

	file, err := h.uploads.Open(relPath)
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrNotFound, "file no longer available"))
		return
	}
	file.Close()

	c.FileAttachment(h.uploads.Path(relPath), filepath.Base(relPath))
}
