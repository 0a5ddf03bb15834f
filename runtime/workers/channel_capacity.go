package workers

import (
	"context"
	"log/slog"
	"pet-chat/contract"
	"reflect"
	"time"
)

const (
	DefaultMetricInterval       = 30 * time.Second
	DefaultLowCapacityThreshold = 16
)

var _ contract.Worker = (*ChannelCapacityWorker)(nil)

type NamedChannel struct {
	Name    string
	Channel any
}

// ChannelCapacityWorker periodically samples the length and capacity of channels
// and warns when one of them is close to full, which means its consumer lags behind.
// Reading len(channel) and cap(channel) is non-blocking, so this won't interfere
// with other goroutines.
type ChannelCapacityWorker struct {
	log                  *slog.Logger
	channels             []NamedChannel
	metricInterval       time.Duration
	lowCapacityThreshold int
}

func NewChannelCapacityWorker(log *slog.Logger,
	channels []NamedChannel, metricInterval time.Duration,
	lowCapacityThreshold int) *ChannelCapacityWorker {
	if metricInterval <= 0 {
		metricInterval = DefaultMetricInterval
	}
	return &ChannelCapacityWorker{
		log: log, channels: channels,
		metricInterval:       metricInterval,
		lowCapacityThreshold: lowCapacityThreshold,
	}
}

func (w *ChannelCapacityWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.metricInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Context done, stopping capacity sampling")
			return nil
		case <-ticker.C:
			w.sample()
		}
	}
}

// sample returns the names of the channels running low, for tests.
func (w *ChannelCapacityWorker) sample() []string {
	var low []string
	for _, nc := range w.channels {
		v := reflect.ValueOf(nc.Channel)
		if v.Kind() != reflect.Chan {
			w.log.Error("Provided object is not a channel", "name", nc.Name)
			continue
		}
		capacity, length := v.Cap(), v.Len()
		w.log.Debug("Channel usage", "name", nc.Name, "length", length, "capacity", capacity)
		if capacity <= 0 {
			// In case of unbuffered channel
			continue
		}
		if left := capacity - length; left <= w.lowCapacityThreshold {
			w.log.Warn("Channel capacity running low", "name", nc.Name, "left", left, "capacity", capacity)
			low = append(low, nc.Name)
		}
	}
	return low
}
