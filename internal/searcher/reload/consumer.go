package reload

import (
	"context"

	"github.com/Adithya-Monish-Kumar-K/docrank/internal/indexer/snapshot"
	"github.com/Adithya-Monish-Kumar-K/docrank/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/docrank/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/docrank/pkg/proto"
	"github.com/Adithya-Monish-Kumar-K/docrank/pkg/resilience"
)

// HandleMessage returns a Kafka MessageHandler that reloads on every
// index.complete event. Undecodable events are logged and committed. A
// failed reload is retried in place with backoff; once retry gives up the
// error is returned and the event stays uncommitted, so it is redelivered
// only after a restart or rebalance. The fsnotify watcher covers that gap.
func HandleMessage(r *Reloader, retry resilience.RetryConfig) kafka.MessageHandler {
	log := logger.WithComponent("reload-consumer")
	return func(ctx context.Context, msg kafka.Message) error {
		if msg.Type != "" && msg.Type != proto.EventIndexComplete {
			log.Debug("ignoring event", "type", msg.Type, "key", string(msg.Key))
			return nil
		}
		event, err := kafka.DecodeJSON[proto.IndexComplete](msg.Value)
		if err != nil {
			log.Error("failed to decode index.complete event",
				"error", err,
				"key", string(msg.Key),
			)
			return nil
		}

		var snap *snapshot.Snapshot
		err = resilience.Retry(ctx, "reload "+event.SnapshotID, retry, func() (err error) {
			snap, _, err = r.Reload(ctx, "event")
			return err
		})
		if err != nil {
			return err
		}
		if snap.ID != event.SnapshotID {
			// CURRENT moved on past the announced build; the newer one wins.
			log.Info("announced snapshot already superseded",
				"announced", event.SnapshotID,
				"published", snap.ID,
			)
		}
		return nil
	}
}
