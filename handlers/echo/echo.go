// Package echo mounts the commission ledger webhook endpoints on an Echo
// router.
package echo

import (
	"fmt"
	"net/http"

	goecho "github.com/labstack/echo/v4"

	"github.com/fitreach/commissionledger/pkg/webhook"
	"github.com/fitreach/commissionledger/pkg/webhook/appstore"
	"github.com/fitreach/commissionledger/pkg/webhook/revenuecat"
)

// Config holds mount configuration
type Config struct {
	// Webhook configures the ingestion handlers (required)
	Webhook webhook.Config

	// BasePath is the route prefix for webhook endpoints
	// Default: "/webhooks"
	BasePath string

	// PayoutCallback is the payment processor callback handler (optional)
	// Mounted at {BasePath}/payouts when set
	PayoutCallback http.Handler
}

// Mount registers the webhook routes:
//
//	POST {base}/revenuecat  - plain JSON event format
//	POST {base}/appstore    - signed-token envelope format
//	POST {base}             - format auto-detection
//	POST {base}/payouts     - processor payout callbacks (optional)
func Mount(e *goecho.Echo, cfg Config) error {
	base := cfg.BasePath
	if base == "" {
		base = "/webhooks"
	}

	plain := revenuecat.New()
	signed := appstore.New()

	plainHandler, err := webhook.Handler(cfg.Webhook, plain)
	if err != nil {
		return fmt.Errorf("echo: build plain handler: %w", err)
	}
	signedHandler, err := webhook.Handler(cfg.Webhook, signed)
	if err != nil {
		return fmt.Errorf("echo: build signed handler: %w", err)
	}
	dispatcher, err := webhook.Dispatcher(cfg.Webhook, plain, signed)
	if err != nil {
		return fmt.Errorf("echo: build dispatcher: %w", err)
	}

	e.POST(base+"/revenuecat", goecho.WrapHandler(plainHandler))
	e.POST(base+"/appstore", goecho.WrapHandler(signedHandler))
	e.POST(base, goecho.WrapHandler(dispatcher))

	if cfg.PayoutCallback != nil {
		e.POST(base+"/payouts", goecho.WrapHandler(cfg.PayoutCallback))
	}
	return nil
}
