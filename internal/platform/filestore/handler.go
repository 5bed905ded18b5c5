package filestore

import (
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/rcm/priorauth/internal/platform/apierror"
	"github.com/rcm/priorauth/internal/platform/auth"
	"github.com/rcm/priorauth/pkg/pagination"
)

// Handler provides the clinical-notes upload and retrieval endpoints.
type Handler struct {
	store *Store
}

func NewHandler(store *Store) *Handler {
	return &Handler{store: store}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/upload/clinical_notes", h.Upload, auth.RequireRole(auth.RoleUser))

	adminGroup := api.Group("", auth.RequireRole(auth.RoleAdmin))
	adminGroup.GET("/upload/clinical_notes", h.List)
	adminGroup.GET("/upload/clinical_notes/:filename", h.Download)
}

// Upload accepts a multipart "file" field, validates it, and stores it under
// a collision-proof name.
func (h *Handler) Upload(c echo.Context) error {
	file, err := c.FormFile("file")
	if err != nil {
		return apierror.Validation("file", "file is required")
	}

	src, err := file.Open()
	if err != nil {
		return apierror.Internal("An error occurred while reading the file", err)
	}
	defer src.Close()

	stored, err := h.store.Save(c.Request().Context(), file.Filename, src)
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidExtension):
			return apierror.InvalidFileType(strings.ToLower(filepath.Ext(file.Filename)), AllowedExtensions())
		case errors.Is(err, ErrFileTooLarge):
			return apierror.FileTooLarge(h.store.MaxBytes())
		case errors.Is(err, ErrMissingFileName):
			return apierror.Validation("file", "file name is required")
		default:
			return apierror.Internal("An error occurred while saving the file", err)
		}
	}

	principal := auth.PrincipalFromContext(c.Request().Context())
	return c.JSON(http.StatusCreated, map[string]interface{}{
		"status":            "success",
		"filename":          stored.Name,
		"original_filename": stored.OriginalName,
		"file_size_bytes":   stored.Size,
		"uploaded_by":       principal.Username,
		"message":           "Clinical notes uploaded successfully",
	})
}

// List returns stored documents, paginated.
func (h *Handler) List(c echo.Context) error {
	pg := pagination.FromContext(c)
	files, total, err := h.store.List(c.Request().Context(), pg.Limit, pg.Offset)
	if err != nil {
		return apierror.Internal("An error occurred while listing files", err)
	}
	if files == nil {
		files = []*StoredFile{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(files, total, pg.Limit, pg.Offset))
}

// Download streams a stored document back to an administrator.
func (h *Handler) Download(c echo.Context) error {
	rc, meta, err := h.store.Open(c.Request().Context(), c.Param("filename"))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return apierror.NotFound("file")
		}
		return apierror.Internal("An error occurred while reading the file", err)
	}
	defer rc.Close()

	c.Response().Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename=%q`, meta.OriginalName))
	return c.Stream(http.StatusOK, "application/octet-stream", rc)
}
