package domain

import (
	"time"
)

const defaultHeartbeatInterval = 30 * time.Second

// policies maps each data type to the configuration its streams receive.
var policies = map[DataType]StreamConfiguration{
	DataTypeHealthData: {
		MaxSubscribers:     100,
		MessageRetention:   time.Hour,
		CompressionEnabled: true,
		EncryptionEnabled:  true,
		QualityOfService:   QoSGuaranteed,
		HeartbeatInterval:  defaultHeartbeatInterval,
	},
	DataTypeAnalytics: {
		MaxSubscribers:     50,
		MessageRetention:   2 * time.Hour,
		CompressionEnabled: true,
		EncryptionEnabled:  true,
		QualityOfService:   QoSNormal,
		HeartbeatInterval:  defaultHeartbeatInterval,
	},
	DataTypeNotifications: {
		MaxSubscribers:     1000,
		MessageRetention:   30 * time.Minute,
		CompressionEnabled: false,
		EncryptionEnabled:  false,
		QualityOfService:   QoSBestEffort,
		HeartbeatInterval:  60 * time.Second,
	},
	DataTypeAlerts: {
		MaxSubscribers:     500,
		MessageRetention:   time.Hour,
		CompressionEnabled: false,
		EncryptionEnabled:  true,
		QualityOfService:   QoSRealTime,
		HeartbeatInterval:  10 * time.Second,
	},
	DataTypeSystemEvents: {
		MaxSubscribers:     200,
		MessageRetention:   24 * time.Hour,
		CompressionEnabled: true,
		EncryptionEnabled:  false,
		QualityOfService:   QoSNormal,
		HeartbeatInterval:  60 * time.Second,
	},
	DataTypeCustom: {
		MaxSubscribers:     100,
		MessageRetention:   time.Hour,
		CompressionEnabled: true,
		EncryptionEnabled:  true,
		QualityOfService:   QoSNormal,
		HeartbeatInterval:  defaultHeartbeatInterval,
	},
}

// ConfigurationFor returns the stream configuration for a data type. Unknown
// types fall back to the custom policy.
func ConfigurationFor(t DataType) StreamConfiguration {
	if cfg, ok := policies[t]; ok {
		return cfg
	}
	return policies[DataTypeCustom]
}
