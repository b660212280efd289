package redis

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// Every key this package writes lives under the agentd: keyspace so an
// operator can scan or flush the daemon's footprint without touching
// anything else on a shared Redis.
func TestKeysLiveInAgentdKeyspace(t *testing.T) {
	assert.Equal(t, "agentd:lock:agent:0xagent", lockKey("agent:0xagent"))
	assert.Equal(t, "agentd:ratelimit:api:1.2.3.4", rateLimitKey("api:1.2.3.4"))
	assert.Equal(t, "agentd:price:ETH", priceKey("ETH"))
	assert.Equal(t, "agentd:agent:0xagent:decision:latest", decisionKey("0xagent"))
	assert.Equal(t, "agentd:market:latest", snapshotKey)
}
