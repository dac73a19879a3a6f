package router

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/acctportal/billingcore/internal/config"
	"github.com/acctportal/billingcore/internal/logger"
	"github.com/acctportal/billingcore/internal/metrics"
	"github.com/acctportal/billingcore/internal/pubsub"
	"github.com/acctportal/billingcore/internal/sentry"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRouter_ExhaustedMessageReachesPoisonQueue(t *testing.T) {
	cfg := config.GetDefaultConfig()
	cfg.Webhook.MaxRetries = 1
	cfg.Webhook.InitialInterval = time.Millisecond
	cfg.Webhook.MaxInterval = 5 * time.Millisecond
	cfg.Webhook.MaxElapsedTime = time.Second

	log := logger.NewNoopLogger()
	r, err := NewRouter(cfg, log, sentry.NewSentryService(cfg, log))
	require.NoError(t, err)

	source := gochannel.NewGoChannel(gochannel.Config{}, pubsub.NewWatermillLogger(log))
	defer source.Close()

	var attempts int32
	r.AddNoPublishHandler("failing_delivery", "webhooks_test", source, func(msg *message.Message) error {
		atomic.AddInt32(&attempts, 1)
		return errors.New("endpoint down")
	})

	const eventName = "subscription.poison_test"
	counter := metrics.WebhookPoisonedTotal.WithLabelValues(eventName)
	before := testutil.ToFloat64(counter)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = r.Run(ctx) }()
	<-r.Running()

	msg := message.NewMessage("evt_poison", []byte(`{}`))
	msg.Metadata.Set("event_name", eventName)
	msg.Metadata.Set("tenant_id", "tenant-acme")
	require.NoError(t, source.Publish("webhooks_test", msg))

	require.Eventually(t, func() bool {
		return testutil.ToFloat64(counter) == before+1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, int32(2), atomic.LoadInt32(&attempts))
	assert.NoError(t, r.Close())
}
