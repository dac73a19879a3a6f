package webhook

import (
	"time"

	"github.com/acctportal/billingcore/internal/config"
	"github.com/acctportal/billingcore/internal/httpclient"
	"github.com/acctportal/billingcore/internal/logger"
	"github.com/acctportal/billingcore/internal/pubsub"
	"github.com/acctportal/billingcore/internal/pubsub/memory"
	pubsubRouter "github.com/acctportal/billingcore/internal/pubsub/router"
	"github.com/acctportal/billingcore/internal/svix"
	"github.com/acctportal/billingcore/internal/types"
	"github.com/acctportal/billingcore/internal/webhook/handler"
	"github.com/acctportal/billingcore/internal/webhook/publisher"
	"go.uber.org/fx"
)

const deliveryTimeout = 10 * time.Second

// Module provides the webhook publisher and the delivery pipeline
var Module = fx.Options(
	fx.Provide(
		providePubSub,
		provideDeliveryClient,
		pubsubRouter.NewRouter,
		svix.NewClient,
		publisher.NewPublisher,
		handler.NewHandler,
		NewWebhookService,
	),
	fx.Invoke(RegisterHooks),
)

func providePubSub(cfg *config.Configuration, logger *logger.Logger) pubsub.PubSub {
	switch cfg.Webhook.PubSub {
	case types.MemoryPubSub, "":
		return memory.NewPubSub(logger)
	}
	panic("unsupported pubsub type " + string(cfg.Webhook.PubSub))
}

// retries belong to the router middleware, so the delivery client makes a single attempt
func provideDeliveryClient(logger *logger.Logger) httpclient.Client {
	return httpclient.NewDefaultClient(httpclient.ClientConfig{Timeout: deliveryTimeout}, logger)
}
