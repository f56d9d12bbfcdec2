package backend

import (
	"fmt"

	"homebudget/internal/config"
)

// FromAppConfig converts the application config to backend config. It fails
// for a nil config or an unknown backend type.
func FromAppConfig(appConfig *config.Config) (Config, error) {
	if appConfig == nil {
		return Config{}, fmt.Errorf("app config is nil")
	}

	backendType := BackendType(appConfig.DataBackend)
	if !backendType.IsValid() {
		return Config{}, fmt.Errorf("invalid backend type in config: %s", appConfig.DataBackend)
	}

	return Config{
		Type:           backendType,
		SQLiteDBPath:   appConfig.SQLiteDBPath,
		MemorySeedFile: appConfig.MemorySeedFile,
		AMQPURL:        appConfig.AMQPURL,
		AMQPExchange:   appConfig.AMQPExchange,
		Origin:         appConfig.InstanceID,
	}, nil
}

// Validate checks that the settings the selected backend needs are present.
// A sqlite store joining the change feed also needs an origin, so it can
// recognise its own messages.
func (c Config) Validate() error {
	if !c.Type.IsValid() {
		return fmt.Errorf("invalid backend type: %s", c.Type)
	}

	switch c.Type {
	case SQLiteBackend:
		if c.SQLiteDBPath == "" {
			return fmt.Errorf("SQLite database path is required for sqlite backend")
		}
		if c.AMQPURL != "" && c.Origin == "" {
			return fmt.Errorf("an origin is required to join the change feed")
		}
	case MemoryBackend:
		// an empty seed file means an empty store
	}
	return nil
}
