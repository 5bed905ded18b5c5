package claims

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/rcm/priorauth/internal/platform/apierror"
	"github.com/rcm/priorauth/internal/platform/auth"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes mounts the claim endpoints under the given API group.
func (h *Handler) RegisterRoutes(api *echo.Group) {
	claims := api.Group("/claims")
	claims.POST("/prior_auth", h.Submit, auth.RequireRole(auth.RoleUser))
	claims.GET("/stats", h.Stats, auth.RequireRole(auth.RoleAdmin))
	claims.GET("/:reference", h.Get, auth.RequireRole(auth.RoleUser))
	claims.PATCH("/:reference/status", h.UpdateStatus, auth.RequireRole(auth.RoleAdmin))

	api.GET("/patients/:patient_id", h.GetPatient, auth.RequireRole(auth.RoleAdmin))
	api.DELETE("/patients/:patient_id", h.DeletePatient, auth.RequireRole(auth.RoleAdmin))
	api.GET("/providers/:npi", h.GetProvider, auth.RequireRole(auth.RoleAdmin))
}

func (h *Handler) Submit(c echo.Context) error {
	var sub ClaimSubmission
	if err := c.Bind(&sub); err != nil {
		return apierror.Validation("body", "Request body must be valid JSON")
	}

	principal := auth.PrincipalFromContext(c.Request().Context())
	receipt, err := h.service.Submit(c.Request().Context(), &sub, principal.Username)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, receipt)
}

func (h *Handler) Get(c echo.Context) error {
	ref, err := uuid.Parse(c.Param("reference"))
	if err != nil {
		return apierror.Validation("reference", "Claim reference must be a valid UUID")
	}

	detail, err := h.service.GetClaim(c.Request().Context(), ref)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, detail)
}

func (h *Handler) Stats(c echo.Context) error {
	stats, err := h.service.Stats(c.Request().Context())
	if err != nil {
		return err
	}

	principal := auth.PrincipalFromContext(c.Request().Context())
	return c.JSON(http.StatusOK, map[string]any{
		"total_claims": stats.TotalClaims,
		"by_status":    stats.ByStatus,
		"accessed_by":  principal.Username,
		"role":         principal.Role,
	})
}

type statusUpdateRequest struct {
	Status string `json:"status"`
}

func (h *Handler) UpdateStatus(c echo.Context) error {
	ref, err := uuid.Parse(c.Param("reference"))
	if err != nil {
		return apierror.Validation("reference", "Claim reference must be a valid UUID")
	}

	var req statusUpdateRequest
	if err := c.Bind(&req); err != nil {
		return apierror.Validation("body", "Request body must be valid JSON")
	}
	if req.Status == "" {
		return apierror.Validation("status", "status is required")
	}

	claim, err := h.service.AdvanceStatus(c.Request().Context(), ref, req.Status)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, claim)
}

func (h *Handler) GetPatient(c echo.Context) error {
	patientID, err := uuid.Parse(c.Param("patient_id"))
	if err != nil {
		return apierror.Validation("patient_id", "Patient ID must be a valid UUID")
	}

	patient, err := h.service.GetPatient(c.Request().Context(), patientID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, patient)
}

func (h *Handler) GetProvider(c echo.Context) error {
	npi := c.Param("npi")
	if !npiPattern.MatchString(npi) {
		return apierror.Validation("npi", "NPI must be exactly 10 digits")
	}

	provider, err := h.service.GetProvider(c.Request().Context(), npi)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, provider)
}

func (h *Handler) DeletePatient(c echo.Context) error {
	patientID, err := uuid.Parse(c.Param("patient_id"))
	if err != nil {
		return apierror.Validation("patient_id", "Patient ID must be a valid UUID")
	}

	claimsDeleted, err := h.service.DeletePatient(c.Request().Context(), patientID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{
		"status":         "success",
		"patient_id":     patientID,
		"claims_deleted": claimsDeleted,
	})
}
