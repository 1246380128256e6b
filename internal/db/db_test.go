package db

import (
	"testing"

	"github.com/jmehdipour/campaign-orchestrator/internal/config"
	"github.com/stretchr/testify/assert"
)

func TestEmptyTargetsAreRejected(t *testing.T) {
	_, err := NewMySQLConnection(config.DatabaseConfig{})
	assert.ErrorContains(t, err, "empty mysql DSN")

	_, err = NewClickHouseConnection(config.DatabaseConfig{})
	assert.ErrorContains(t, err, "empty clickhouse DSN")

	_, err = NewRedisClient(config.RedisConfig{})
	assert.ErrorContains(t, err, "empty redis addr")
}
