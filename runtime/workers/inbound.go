package workers

import (
	"context"
	"fmt"
	"hash/fnv"
	"log/slog"
	"pet-chat/contract"
	"pet-chat/domain/event"
)

const (
	DefaultShards      = 8
	DefaultShardBuffer = 256
)

var (
	_ contract.Worker      = (*InboundWorker)(nil)
	_ contract.IDispatcher = (*ShardedDispatcher)(nil)
)

// InboundWorker applies the events of one shard, one at a time, in arrival order.
type InboundWorker struct {
	shard   int
	events  <-chan event.Inbound
	handler contract.IEventHandler
	log     *slog.Logger
}

func NewInboundWorker(shard int, events <-chan event.Inbound, handler contract.IEventHandler, log *slog.Logger) *InboundWorker {
	return &InboundWorker{shard: shard, events: events, handler: handler, log: log}
}

func (w *InboundWorker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Stopping inbound worker", "shard", w.shard)
			return ctx.Err()
		case in, ok := <-w.events:
			if !ok {
				w.log.Debug("Inbound channel is closed", "shard", w.shard)
				return nil
			}
			w.handler.Handle(ctx, in)
		}
	}
}

// ShardedDispatcher routes every event of a connection to the same shard,
// which keeps per connection order while connections are handled in parallel.
type ShardedDispatcher struct {
	shards []chan event.Inbound
	log    *slog.Logger
}

func NewShardedDispatcher(shards, buffer int, log *slog.Logger) *ShardedDispatcher {
	if shards <= 0 {
		shards = DefaultShards
	}
	if buffer < 0 {
		buffer = DefaultShardBuffer
	}
	d := &ShardedDispatcher{shards: make([]chan event.Inbound, shards), log: log}
	for i := range d.shards {
		d.shards[i] = make(chan event.Inbound, buffer)
	}
	return d
}

// Workers builds one worker per shard, to be run under a Supervisor.
func (d *ShardedDispatcher) Workers(handler contract.IEventHandler) []contract.Worker {
	workers := make([]contract.Worker, 0, len(d.shards))
	for i, ch := range d.shards {
		workers = append(workers, NewInboundWorker(i, ch, handler, d.log))
	}
	return workers
}

// Dispatch blocks while the shard is full, slowing down the reading connection.
func (d *ShardedDispatcher) Dispatch(ctx context.Context, in event.Inbound) {
	select {
	case d.shards[d.shardOf(in.ConnectionID)] <- in:
	case <-ctx.Done():
		d.log.Debug("Inbound event dropped, shutting down", "conn", in.ConnectionID, "event", in.Name)
	}
}

// Channels exposes the shard queues to the ChannelCapacityWorker.
func (d *ShardedDispatcher) Channels() []NamedChannel {
	channels := make([]NamedChannel, 0, len(d.shards))
	for i, ch := range d.shards {
		channels = append(channels, NamedChannel{Name: fmt.Sprintf("inbound-%d", i), Channel: ch})
	}
	return channels
}

func (d *ShardedDispatcher) shardOf(connectionID string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(connectionID))
	return int(h.Sum32() % uint32(len(d.shards)))
}
