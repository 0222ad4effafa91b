package bus

import (
	"fmt"

	"nrelay/internal/config"
	"nrelay/internal/relay"
)

// NewBusFromConfig creates a Bus implementation based on the bus config type.
func NewBusFromConfig(cfg config.BusConfig, logger relay.Logger) (relay.Bus, error) {
	switch cfg.Type {
	case "memory", "":
		return NewMemoryBus(), nil
	case "mqtt":
		if cfg.BrokerURL == "" {
			return nil, fmt.Errorf("broker_url required for mqtt bus")
		}
		return NewMQTTBus(MQTTOptions{
			BrokerURL: cfg.BrokerURL,
			ClientID:  cfg.ClientID,
			Username:  cfg.Username,
			Password:  cfg.Password,
		}, logger)
	default:
		return nil, fmt.Errorf("unknown bus type: %s", cfg.Type)
	}
}
