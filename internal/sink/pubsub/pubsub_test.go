package pubsub_test

import (
	"context"
	"encoding/json"
	"testing"

	gpubsub "cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/JakeFAU/market-harvester/internal/harvest"
	"github.com/JakeFAU/market-harvester/internal/report"
	"github.com/JakeFAU/market-harvester/internal/sink/pubsub"
)

func newTestTopic(t *testing.T) (*gpubsub.Topic, *gpubsub.Subscription) {
	t.Helper()
	ctx := context.Background()

	srv := pstest.NewServer()
	t.Cleanup(func() { srv.Close() })

	conn, err := grpc.NewClient(srv.Addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	client, err := gpubsub.NewClient(ctx, "test-project", option.WithGRPCConn(conn))
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	topic, err := client.CreateTopic(ctx, "harvest-output")
	require.NoError(t, err)
	t.Cleanup(func() { topic.Stop() })

	sub, err := client.CreateSubscription(ctx, "harvest-sub", gpubsub.SubscriptionConfig{Topic: topic})
	require.NoError(t, err)
	return topic, sub
}

func receiveOne(t *testing.T, sub *gpubsub.Subscription) *gpubsub.Message {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c := make(chan *gpubsub.Message, 1)
	go func() {
		err := sub.Receive(ctx, func(_ context.Context, msg *gpubsub.Message) {
			msg.Ack()
			c <- msg
			cancel()
		})
		require.NoError(t, err)
	}()
	return <-c
}

func TestPublishSendsRecordWithAttributes(t *testing.T) {
	topic, sub := newTestTopic(t)
	s := pubsub.NewWithTopic(topic)

	rec := harvest.Record{
		Title:  "Wireless Headphones",
		Price:  59.99,
		URL:    "https://example.com/items/1",
		Market: "amazon",
	}
	ctx := harvest.WithRunID(context.Background(), "run-123")
	require.NoError(t, s.Publish(ctx, rec))

	msg := receiveOne(t, sub)
	assert.Equal(t, "record", msg.Attributes["kind"])
	assert.Equal(t, "amazon", msg.Attributes["market"])
	assert.Equal(t, "run-123", msg.Attributes["run_id"])

	var got harvest.Record
	require.NoError(t, json.Unmarshal(msg.Data, &got))
	assert.Equal(t, rec.URL, got.URL)
	assert.Equal(t, rec.Price, got.Price)
}

func TestFlushSendsReport(t *testing.T) {
	topic, sub := newTestTopic(t)
	s := pubsub.NewWithTopic(topic)

	rep := &report.Report{}
	rep.Summary.RunID = "run-456"
	rep.Summary.TotalProducts = 7
	require.NoError(t, s.Flush(context.Background(), rep))

	msg := receiveOne(t, sub)
	assert.Equal(t, "report", msg.Attributes["kind"])
	assert.Equal(t, "run-456", msg.Attributes["run_id"])

	var got report.Report
	require.NoError(t, json.Unmarshal(msg.Data, &got))
	assert.Equal(t, 7, got.Summary.TotalProducts)
}
