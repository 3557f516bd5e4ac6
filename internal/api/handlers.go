// Package api contains the HTTP handlers and routing for the gateway.
package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/brpag/pix-gateway/internal/core/domain"
	"github.com/brpag/pix-gateway/internal/telemetry"
)

// ChargeService is the surface the handlers need from the core.
type ChargeService interface {
	CreateCharge(ctx context.Context, req domain.ChargeRequest) (*domain.Charge, bool, error)
	CheckStatus(ctx context.Context, transactionID, providerName string) (*domain.StatusResult, error)
	ProcessWebhook(ctx context.Context, providerName string, payload map[string]any) error
}

// SignatureVerifier checks a webhook signature for one provider. A nil
// verifier means the provider sends no signatures.
type SignatureVerifier func(xSignature, xRequestID, dataID string) bool

// Handler contains the HTTP handlers for the charge API.
type Handler struct {
	charges   ChargeService
	verifiers map[string]SignatureVerifier
}

// NewHandler creates an API handler. The verifiers map is keyed by
// provider name for webhook endpoints that carry signatures.
func NewHandler(charges ChargeService, verifiers map[string]SignatureVerifier) *Handler {
	return &Handler{
		charges:   charges,
		verifiers: verifiers,
	}
}

// ChargeCreateRequest is the JSON body for the charge endpoint.
type ChargeCreateRequest struct {
	Name        string  `json:"name" binding:"required"`
	Email       string  `json:"email" binding:"required,email"`
	CPF         string  `json:"cpf" binding:"required"`
	Phone       string  `json:"phone"`
	Amount      float64 `json:"amount" binding:"required,gt=0"`
	Description string  `json:"description"`
}

// ChargeResponse is the JSON answer for a created or cached charge.
type ChargeResponse struct {
	Success       bool    `json:"success"`
	TransactionID string  `json:"transactionId"`
	PixCode       string  `json:"pixCode"`
	PixQRCode     string  `json:"pixQrCode,omitempty"`
	Status        string  `json:"status"`
	Amount        float64 `json:"amount"`
	Provider      string  `json:"provider"`
	Cached        bool    `json:"cached"`
	ExpiresAt     string  `json:"expiresAt,omitempty"`
}

// StatusResponse is the JSON answer for a status lookup.
type StatusResponse struct {
	Success       bool    `json:"success"`
	TransactionID string  `json:"transactionId"`
	Status        string  `json:"status"`
	Paid          bool    `json:"paid"`
	Amount        float64 `json:"amount"`
	Provider      string  `json:"provider"`
}

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
}

func chargeResponse(charge *domain.Charge, cached bool) ChargeResponse {
	resp := ChargeResponse{
		Success:       true,
		TransactionID: charge.TransactionID,
		PixCode:       charge.PixCode,
		PixQRCode:     charge.QRCode,
		Status:        string(charge.Status),
		Amount:        charge.Amount.InexactFloat64(),
		Provider:      charge.Provider,
		Cached:        cached,
	}
	if charge.ExpiresAt != nil {
		resp.ExpiresAt = charge.ExpiresAt.Format(time.RFC3339)
	}
	return resp
}

// CreateCharge handles POST /api/v1/charges. A repeat request for the
// same CPF inside the cache window answers 200 with the original
// charge; a fresh charge answers 201.
func (h *Handler) CreateCharge(c *gin.Context) {
	var req ChargeCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Success: false,
			Error:   "invalid request body: " + err.Error(),
			Code:    "VALIDATION_ERROR",
		})
		return
	}

	chargeReq := domain.ChargeRequest{
		Name:        req.Name,
		Email:       req.Email,
		CPF:         req.CPF,
		Phone:       req.Phone,
		Amount:      decimal.NewFromFloat(req.Amount),
		Description: req.Description,
	}

	charge, cached, err := h.charges.CreateCharge(c.Request.Context(), chargeReq)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	status := http.StatusCreated
	if cached {
		status = http.StatusOK
	}
	c.JSON(status, chargeResponse(charge, cached))
}

// CheckStatus handles GET /api/v1/charges/:transactionId/status. The
// optional provider query pins the lookup to one provider instead of
// walking the chain.
func (h *Handler) CheckStatus(c *gin.Context) {
	transactionID := c.Param("transactionId")
	providerName := c.Query("provider")

	result, err := h.charges.CheckStatus(c.Request.Context(), transactionID, providerName)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, StatusResponse{
		Success:       true,
		TransactionID: result.TransactionID,
		Status:        string(result.Status),
		Paid:          result.Paid,
		Amount:        result.Amount.InexactFloat64(),
		Provider:      result.Provider,
	})
}

// HandleWebhook handles POST /webhooks/:provider. Providers retry on
// anything but 200, so the answer is always 200 and the outcome rides
// in the body.
func (h *Handler) HandleWebhook(c *gin.Context) {
	providerName := c.Param("provider")

	var payload map[string]any
	if err := c.ShouldBindJSON(&payload); err != nil {
		telemetry.Logger.Warn("unparseable webhook body",
			zap.String("provider", providerName),
			zap.Error(err))
		c.JSON(http.StatusOK, gin.H{"status": "received"})
		return
	}

	if verify, ok := h.verifiers[providerName]; ok && verify != nil {
		if !verify(c.GetHeader("x-signature"), c.GetHeader("x-request-id"), webhookDataID(payload)) {
			telemetry.Logger.Warn("webhook signature rejected",
				zap.String("provider", providerName))
			c.JSON(http.StatusOK, gin.H{"status": "rejected"})
			return
		}
	}

	if err := h.charges.ProcessWebhook(c.Request.Context(), providerName, payload); err != nil {
		telemetry.Logger.Warn("webhook processing failed",
			zap.String("provider", providerName),
			zap.Error(err))
		c.JSON(http.StatusOK, gin.H{"status": "processed_with_error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "processed"})
}

// webhookDataID pulls data.id out of a notification for signature
// checks, tolerating numeric ids.
func webhookDataID(payload map[string]any) string {
	data, ok := payload["data"].(map[string]any)
	if !ok {
		return ""
	}
	switch id := data["id"].(type) {
	case string:
		return id
	case float64:
		return strconv.FormatFloat(id, 'f', -1, 64)
	}
	return ""
}

// Health handles GET /health.
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "pix-gateway",
	})
}

// handleServiceError maps domain errors to HTTP responses.
func handleServiceError(c *gin.Context, err error) {
	statusCode := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrValidation):
		statusCode = http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		statusCode = http.StatusNotFound
	case errors.Is(err, domain.ErrAuth),
		errors.Is(err, domain.ErrProvider),
		errors.Is(err, domain.ErrNetwork),
		errors.Is(err, domain.ErrEncoding),
		errors.Is(err, domain.ErrNotifyFailed):
		statusCode = http.StatusBadGateway
	case errors.Is(err, domain.ErrAllProvidersFailed):
		statusCode = http.StatusInternalServerError
	}

	var svcErr *domain.ServiceError
	if errors.As(err, &svcErr) {
		c.JSON(statusCode, ErrorResponse{
			Success: false,
			Error:   svcErr.Message,
			Code:    svcErr.Code,
		})
		return
	}

	c.JSON(statusCode, ErrorResponse{
		Success: false,
		Error:   "internal server error",
		Code:    "INTERNAL_ERROR",
	})
}
