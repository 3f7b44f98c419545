package airquality

import (
	"log/slog"

	"airdash/internal/modules/airquality/types"
	"airdash/internal/mqtt"
)

// AttachMQTT requests a refresh pass for every channel update received.
func (f *Feature) AttachMQTT(subscriber mqtt.MQTTSubscriber) {
	registerMQTTHandler(subscriber, f.service.Trigger, f.logger)
}

func registerMQTTHandler(subscriber mqtt.MQTTSubscriber, trigger func() bool, logger *slog.Logger) {
	subscriber.SetMessageHandler(func(record types.Record) error {
		queued := trigger()
		logger.Debug("channel update received",
			"entry_id", record.EntryID,
			"created_at", record.CreatedAt,
			"queued", queued,
		)
		return nil
	})
}
