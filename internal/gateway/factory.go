package gateway

import (
	"github.com/acctportal/billingcore/internal/config"
	ierr "github.com/acctportal/billingcore/internal/errors"
	"github.com/acctportal/billingcore/internal/httpclient"
	"github.com/acctportal/billingcore/internal/logger"
	"github.com/acctportal/billingcore/internal/sentry"
	"github.com/acctportal/billingcore/internal/types"
)

// NewGateway builds the configured provider wrapped with timeouts and instrumentation
func NewGateway(cfg *config.Configuration, sentry *sentry.Service, logger *logger.Logger) (Gateway, error) {
	gwCfg := cfg.Gateway

	var gw Gateway
	switch gwCfg.Provider {
	case types.GatewayProviderToss:
		client := httpclient.NewDefaultClient(httpclient.ClientConfig{
			Timeout:            gwCfg.Timeout,
			MaxRetries:         gwCfg.MaxRetries,
			RateLimitPerSecond: gwCfg.RateLimitPerSecond,
		}, logger)
		gw = NewTossClient(gwCfg, client, logger)
	case types.GatewayProviderStripe:
		if gwCfg.SecretKey == "" {
			return nil, ierr.NewError("stripe secret key not configured").
				WithHint("gateway.secret_key must be set").
				Mark(ierr.ErrValidation)
		}
		gw = NewStripeGateway(gwCfg.SecretKey, logger)
	default:
		return nil, ierr.NewErrorf("unsupported gateway provider %s", gwCfg.Provider).
			Mark(ierr.ErrValidation)
	}

	return Instrument(gw, gwCfg.Timeout, sentry, logger), nil
}
