// Package gin mounts the commission ledger webhook endpoints on a Gin
// router.
package gin

import (
	"fmt"
	"net/http"

	gongin "github.com/gin-gonic/gin"

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
func Mount(r gongin.IRouter, cfg Config) error {
	base := cfg.BasePath
	if base == "" {
		base = "/webhooks"
	}

	plain := revenuecat.New()
	signed := appstore.New()

	plainHandler, err := webhook.Handler(cfg.Webhook, plain)
	if err != nil {
		return fmt.Errorf("gin: build plain handler: %w", err)
	}
	signedHandler, err := webhook.Handler(cfg.Webhook, signed)
	if err != nil {
		return fmt.Errorf("gin: build signed handler: %w", err)
	}
	dispatcher, err := webhook.Dispatcher(cfg.Webhook, plain, signed)
	if err != nil {
		return fmt.Errorf("gin: build dispatcher: %w", err)
	}

	r.POST(base+"/revenuecat", gongin.WrapH(plainHandler))
	r.POST(base+"/appstore", gongin.WrapH(signedHandler))
	r.POST(base, gongin.WrapH(dispatcher))

	if cfg.PayoutCallback != nil {
		r.POST(base+"/payouts", gongin.WrapH(cfg.PayoutCallback))
	}
	return nil
}
