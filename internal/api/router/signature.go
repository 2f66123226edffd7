package router

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/cuongbtq/push-orchestrator/internal/api/dto"
	"github.com/cuongbtq/push-orchestrator/internal/metrics"
	"github.com/gin-gonic/gin"
)

const (
	// DefaultSignatureHeader carries the webhook body signature
	DefaultSignatureHeader = "X-Webhook-Signature"

	signaturePrefix = "sha256="
	maxWebhookBody  = 1 << 20
)

// ErrInvalidSignature is returned when a webhook signature is missing or wrong
var ErrInvalidSignature = errors.New("invalid webhook signature")

// Sign returns the hex HMAC-SHA256 of body under secret
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks a hex signature, optionally prefixed with "sha256=",
// against the body in constant time
func VerifySignature(secret string, body []byte, signature string) error {
	signature = strings.TrimPrefix(strings.TrimSpace(signature), signaturePrefix)
	if signature == "" {
		return ErrInvalidSignature
	}
	given, err := hex.DecodeString(signature)
	if err != nil {
		return ErrInvalidSignature
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	if !hmac.Equal(given, mac.Sum(nil)) {
		return ErrInvalidSignature
	}
	return nil
}

// WebhookSignatureMiddleware rejects webhook requests whose body signature
// does not match the shared secret. With an empty secret every request passes.
func WebhookSignatureMiddleware(secret, header string, logger *slog.Logger) gin.HandlerFunc {
	if header == "" {
		header = DefaultSignatureHeader
	}

	return func(c *gin.Context) {
		if secret == "" {
			c.Next()
			return
		}

		body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBody))
		if err != nil {
			metrics.WebhookRejections.WithLabelValues("body").Inc()
			logger.Warn("Failed to read webhook body", slog.String("error", err.Error()))
			c.AbortWithStatusJSON(http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid request body"})
			return
		}

		if err := VerifySignature(secret, body, c.GetHeader(header)); err != nil {
			metrics.WebhookRejections.WithLabelValues("signature").Inc()
			logger.Warn("Rejected webhook with invalid signature",
				slog.String("ip", c.ClientIP()),
			)
			c.AbortWithStatusJSON(http.StatusUnauthorized, dto.ErrorResponse{Error: ErrInvalidSignature.Error()})
			return
		}

		c.Request.Body = io.NopCloser(bytes.NewReader(body))
		c.Next()
	}
}
