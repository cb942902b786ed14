package workers

import (
	"context"
	"log/slog"
	"reading-room/observability"
	"reflect"
	"time"
)

const DefaultCapacityInterval = 10 * time.Second

type NamedChannel struct {
	Name    string
	Channel any
}

// ChannelProvider lists the channels to sample at each tick. Room queues come and go.
type ChannelProvider func() []NamedChannel

// Static wraps channels that live as long as the process.
func Static(channels ...NamedChannel) ChannelProvider {
	return func() []NamedChannel { return channels }
}

// ChannelCapacityWorker periodically reports the length and capacity of the server queues.
// Reading len(channel) and cap(channel) is non-blocking, so this won't interfere
// with the goroutines using them.
type ChannelCapacityWorker struct {
	log            *slog.Logger
	providers      []ChannelProvider
	metricInterval time.Duration
}

func NewChannelCapacityWorker(log *slog.Logger, metricInterval time.Duration, providers ...ChannelProvider) *ChannelCapacityWorker {
	if metricInterval <= 0 {
		metricInterval = DefaultCapacityInterval
	}
	return &ChannelCapacityWorker{log: log, providers: providers, metricInterval: metricInterval}
}

func (w *ChannelCapacityWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.metricInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Context done, stopping channel sampling")
			return nil
		case <-ticker.C:
			w.sample()
		}
	}
}

func (w *ChannelCapacityWorker) sample() {
	// retired rooms must not keep reporting their last value
	observability.ChannelLength.Reset()
	observability.ChannelCapacity.Reset()
	for _, provider := range w.providers {
		for _, nc := range provider() {
			v := reflect.ValueOf(nc.Channel)
			if v.Kind() != reflect.Chan {
				w.log.Error("Provided object is not a channel", "name", nc.Name)
				continue
			}
			observability.ChannelLength.WithLabelValues(nc.Name).Set(float64(v.Len()))
			observability.ChannelCapacity.WithLabelValues(nc.Name).Set(float64(v.Cap()))
			if v.Cap() > 0 && v.Len() == v.Cap() {
				w.log.Warn("Channel is full", "name", nc.Name, "capacity", v.Cap())
			}
		}
	}
}
