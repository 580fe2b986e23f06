package notify

import (
	"sync"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/aptus/internal/common"
	"github.com/ternarybob/aptus/internal/interfaces"
	"github.com/ternarybob/aptus/internal/models"
)

// configuredChannel pairs a channel implementation with its recipient
type configuredChannel struct {
	channel   interfaces.Channel
	recipient string
}

// ChannelFactory constructs a channel from its config section. The store is
// passed for channels that persist instead of transmit.
type ChannelFactory func(config common.ChannelConfig, store interfaces.NotificationStore, logger arbor.ILogger) interfaces.Channel

var (
	factoryMu sync.RWMutex
	factories = map[models.ChannelType]ChannelFactory{
		models.ChannelEmail: func(c common.ChannelConfig, _ interfaces.NotificationStore, l arbor.ILogger) interfaces.Channel {
			return NewEmailChannel(c, l)
		},
		models.ChannelChat: func(c common.ChannelConfig, _ interfaces.NotificationStore, l arbor.ILogger) interfaces.Channel {
			return NewChatChannel(c, l)
		},
		models.ChannelMessenger: func(c common.ChannelConfig, _ interfaces.NotificationStore, l arbor.ILogger) interfaces.Channel {
			return NewMessengerChannel(c, l)
		},
		models.ChannelWebhook: func(c common.ChannelConfig, _ interfaces.NotificationStore, l arbor.ILogger) interfaces.Channel {
			return NewWebhookChannel(c, l)
		},
		models.ChannelInApp: func(_ common.ChannelConfig, s interfaces.NotificationStore, l arbor.ILogger) interfaces.Channel {
			return NewInAppChannel(s, l)
		},
	}
)

// RegisterChannel makes a channel type available to BuildChannels under the
// given config key. Registering an existing type replaces its factory, so
// embedders can swap a built-in implementation.
func RegisterChannel(channelType models.ChannelType, factory ChannelFactory) {
	factoryMu.Lock()
	defer factoryMu.Unlock()
	factories[channelType] = factory
}

func lookupFactory(channelType models.ChannelType) (ChannelFactory, bool) {
	factoryMu.RLock()
	defer factoryMu.RUnlock()
	factory, ok := factories[channelType]
	return factory, ok
}

// BuildChannels constructs the enabled, configured channels from the
// notifications config. Unknown channel names are logged and skipped so a
// config typo does not take the whole dispatcher down.
func BuildChannels(config *common.NotificationsConfig, store interfaces.NotificationStore, logger arbor.ILogger) []configuredChannel {
	channels := make([]configuredChannel, 0, len(config.Channels))

	for name, channelConfig := range config.Channels {
		if !channelConfig.Enabled {
			continue
		}

		factory, ok := lookupFactory(models.ChannelType(name))
		if !ok {
			logger.Warn().Str("channel", name).Msg("Unknown notification channel, skipping")
			continue
		}
		channel := factory(channelConfig, store, logger)

		if !channel.IsConfigured() {
			logger.Warn().Str("channel", name).Msg("Notification channel enabled but not configured, skipping")
			continue
		}

		recipient := channelConfig.Recipient
		if recipient == "" && channel.Type() == models.ChannelInApp {
			recipient = config.UserID
		}
		channels = append(channels, configuredChannel{channel: channel, recipient: recipient})
		logger.Info().Str("channel", name).Msg("Notification channel registered")
	}
	return channels
}
