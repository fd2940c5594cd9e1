package async_collector

import (
	"github.com/easycoin-labs/agent-server/pkg/config"
	"github.com/easycoin-labs/agent-server/pkg/config/env"
	"github.com/easycoin-labs/agent-server/pkg/config/memory"
	"github.com/easycoin-labs/agent-server/pkg/config/wrapper"
)

const (
	envConfigPrefix = "COLLECTOR_SERVICE_"

	BatchSizeConfigEnvName = envConfigPrefix + "WORKER_BATCH_SIZE"
	defaultBatchSize       = 32

	MinDueFeeConfigEnvName = envConfigPrefix + "MIN_DUE_FEE"
	defaultMinDueFee       = 10_000

	CollectionsPerSecondConfigEnvName = envConfigPrefix + "COLLECTIONS_PER_SECOND"
	defaultCollectionsPerSecond       = 5
)

type conf struct {
	batchSize            config.Uint64
	minDueFee            config.Uint64
	collectionsPerSecond config.Uint64
}

// ConfigProvider defines how config values are pulled
type ConfigProvider func() *conf

// WithEnvConfigs returns configuration pulled from environment variables
func WithEnvConfigs() ConfigProvider {
	return func() *conf {
		return &conf{
			batchSize:            env.NewUint64Config(BatchSizeConfigEnvName, defaultBatchSize),
			minDueFee:            env.NewUint64Config(MinDueFeeConfigEnvName, defaultMinDueFee),
			collectionsPerSecond: env.NewUint64Config(CollectionsPerSecondConfigEnvName, defaultCollectionsPerSecond),
		}
	}
}

type testOverrides struct {
	batchSize uint64
	minDueFee uint64
}

func withManualTestOverrides(overrides *testOverrides) ConfigProvider {
	return func() *conf {
		batchSize := overrides.batchSize
		if batchSize == 0 {
			batchSize = defaultBatchSize
		}

		return &conf{
			batchSize:            wrapper.NewUint64Config(memory.NewConfig(batchSize), defaultBatchSize),
			minDueFee:            wrapper.NewUint64Config(memory.NewConfig(overrides.minDueFee), defaultMinDueFee),
			collectionsPerSecond: wrapper.NewUint64Config(memory.NewConfig(uint64(1000)), defaultCollectionsPerSecond),
		}
	}
}
