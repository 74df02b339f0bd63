// Package transfer implements the Transfer Client (spec §4.8): instructs
// the telephony provider to bridge the active call leg to a configured
// agent number. Logs via logrus, matching the teacher's own SIP transfer
// package rather than the zap logger used through the rest of the engine.
package transfer

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/collectline/lcse/pkg/errs"
	"github.com/collectline/lcse/pkg/metrics"
)

// Outcome is the result of a transfer request (spec §3).
type Outcome struct {
	Success          bool
	ProviderReference string
}

// Config controls the provider endpoint and request timeout.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// Client is the Transfer Client capability interface (spec §9).
type Client interface {
	Transfer(ctx context.Context, callID, agentNumber string) (Outcome, error)
}

// HTTPClient bridges the call leg via the provider's REST transfer API,
// keying idempotency off the call id so repeated calls for the same call id
// are safe (spec §8 idempotence law).
type HTTPClient struct {
	cfg    Config
	client *resty.Client
	log    *logrus.Logger
}

func NewHTTPClient(cfg Config) *HTTPClient {
	return &HTTPClient{
		cfg: cfg,
		client: resty.New().
			SetBaseURL(cfg.BaseURL).
			SetTimeout(cfg.Timeout).
			SetHeader("Authorization", "Bearer "+cfg.APIKey),
		log: logrus.StandardLogger(),
	}
}

// Transfer bridges callID to agentNumber with a bounded timeout and an
// idempotency key derived from the call id, so repeated calls are safe.
func (c *HTTPClient) Transfer(ctx context.Context, callID, agentNumber string) (Outcome, error) {
	idempotencyKey := uuid.NewSHA1(uuid.NameSpaceOID, []byte(callID)).String()

	var body struct {
		Success           bool   `json:"success"`
		ProviderReference string `json:"provider_reference"`
	}

	resp, err := c.client.R().
		SetContext(ctx).
		SetHeader("Idempotency-Key", idempotencyKey).
		SetBody(map[string]string{
			"call_id":      callID,
			"agent_number": agentNumber,
		}).
		SetResult(&body).
		Post("/v1/transfer")

	if err != nil {
		c.log.WithFields(logrus.Fields{"call_id": callID}).WithError(err).Warn("transfer request failed")
		metrics.TransferAttempts.WithLabelValues("error").Inc()
		return Outcome{}, errs.TransferFailure("transfer", err)
	}
	if !resp.IsSuccess() {
		c.log.WithFields(logrus.Fields{"call_id": callID, "status": resp.StatusCode()}).Warn("transfer request rejected")
		metrics.TransferAttempts.WithLabelValues("rejected").Inc()
		return Outcome{}, errs.TransferFailure("transfer", fmt.Errorf("provider rejected request with status %d", resp.StatusCode()))
	}

	result := "failure"
	if body.Success {
		result = "success"
	}
	metrics.TransferAttempts.WithLabelValues(result).Inc()
	c.log.WithFields(logrus.Fields{"call_id": callID, "success": body.Success}).Info("transfer completed")
	return Outcome{Success: body.Success, ProviderReference: body.ProviderReference}, nil
}
