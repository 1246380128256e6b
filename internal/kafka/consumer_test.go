package kafka

import (
	"testing"
	"time"

	"github.com/jmehdipour/campaign-orchestrator/internal/config"
	"github.com/stretchr/testify/assert"
)

func TestConfigFrom(t *testing.T) {
	c := ConfigFrom(config.KafkaConfig{
		Brokers:        []string{"b:9092"},
		Topic:          "channel.events",
		GroupID:        "g",
		CommitInterval: 250,
	})
	assert.Equal(t, []string{"b:9092"}, c.Brokers)
	assert.Equal(t, "g", c.GroupID)
	assert.Equal(t, 250*time.Millisecond, c.CommitInterval)
}
