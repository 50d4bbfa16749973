//go:build integration

package containers

import (
	"context"
	"testing"
	"time"

	tcredpanda "github.com/testcontainers/testcontainers-go/modules/redpanda"
	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kgo"
)

// RedpandaContainer wraps a throwaway Kafka-compatible broker for audit sink
// tests.
type RedpandaContainer struct {
	Broker string
}

// NewRedpandaContainer starts a Redpanda container and creates the given
// topic. Cleanup is registered on t.
func NewRedpandaContainer(t *testing.T, topic string) *RedpandaContainer {
	t.Helper()

	ctx := context.Background()

	container, err := tcredpanda.Run(ctx, "docker.redpanda.com/redpandadata/redpanda:v24.1.7")
	if err != nil {
		t.Fatalf("failed to start redpanda container: %v", err)
	}
	t.Cleanup(func() {
		_ = container.Terminate(context.Background())
	})

	broker, err := container.KafkaSeedBroker(ctx)
	if err != nil {
		t.Fatalf("failed to get redpanda broker address: %v", err)
	}

	client, err := kgo.NewClient(kgo.SeedBrokers(broker))
	if err != nil {
		t.Fatalf("failed to build kafka client: %v", err)
	}
	defer client.Close()

	adminCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	admin := kadm.NewClient(client)
	if _, err := admin.CreateTopic(adminCtx, 1, 1, nil, topic); err != nil {
		t.Fatalf("failed to create topic %q: %v", topic, err)
	}

	return &RedpandaContainer{Broker: broker}
}

// Consume reads up to max records from the topic, waiting at most deadline.
func (r *RedpandaContainer) Consume(t *testing.T, topic string, max int, deadline time.Duration) [][]byte {
	t.Helper()

	client, err := kgo.NewClient(
		kgo.SeedBrokers(r.Broker),
		kgo.ConsumeTopics(topic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	if err != nil {
		t.Fatalf("failed to build kafka consumer: %v", err)
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), deadline)
	defer cancel()

	var out [][]byte
	for len(out) < max {
		fetches := client.PollFetches(ctx)
		if fetches.IsClientClosed() || ctx.Err() != nil {
			break
		}
		fetches.EachRecord(func(rec *kgo.Record) {
			out = append(out, rec.Value)
		})
	}
	return out
}
