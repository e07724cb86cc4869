// Package fiber mounts the commission ledger webhook endpoints on a Fiber
// app via its net/http adaptor.
package fiber

import (
	"fmt"
	"net/http"

	gofiber "github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"

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
func Mount(app *gofiber.App, cfg Config) error {
	base := cfg.BasePath
	if base == "" {
		base = "/webhooks"
	}

	plain := revenuecat.New()
	signed := appstore.New()

	plainHandler, err := webhook.Handler(cfg.Webhook, plain)
	if err != nil {
		return fmt.Errorf("fiber: build plain handler: %w", err)
	}
	signedHandler, err := webhook.Handler(cfg.Webhook, signed)
	if err != nil {
		return fmt.Errorf("fiber: build signed handler: %w", err)
	}
	dispatcher, err := webhook.Dispatcher(cfg.Webhook, plain, signed)
	if err != nil {
		return fmt.Errorf("fiber: build dispatcher: %w", err)
	}

	app.Post(base+"/revenuecat", adaptor.HTTPHandler(plainHandler))
	app.Post(base+"/appstore", adaptor.HTTPHandler(signedHandler))
	app.Post(base, adaptor.HTTPHandler(dispatcher))

	if cfg.PayoutCallback != nil {
		app.Post(base+"/payouts", adaptor.HTTPHandler(cfg.PayoutCallback))
	}
	return nil
}
