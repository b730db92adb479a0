package config

// Значения по умолчанию.
const (
	DefaultConfigFile = "bot_config.yml"

	// Bot defaults
	DefaultPollingTimeoutSeconds = 60
	DefaultSendTimeoutSeconds    = 15
	DefaultMaxParallelSends      = 0

	// Webhook defaults
	DefaultListenAddr = ":8443"

	// Registry defaults
	DefaultRegistryDriver = "file"
	DefaultRegistryPath   = "registry.json"

	// Updates defaults
	DefaultQueueSize              = 100
	DefaultDedupeTTLMinutes       = 10
	DefaultProbeConcurrency       = 4
	DefaultProbeTimeoutSeconds    = 10
	DefaultShutdownTimeoutSeconds = 15

	// Logging defaults
	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"
)
