package logger

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Publisher ships aggregated log batches, usually to a Kafka topic.
type Publisher interface {
	PublishMessage(ctx context.Context, topic string, payload interface{}) error
}

type CollectionConfig struct {
	TimeInterval   time.Duration // flush interval (e.g., 30s)
	CountThreshold int           // max distinct entries before flush (e.g., 100)
	Topic          string
	Publisher      Publisher
	// CollectWarnings also aggregates warn-level logs, such as default profile fallbacks.
	CollectWarnings bool
}

// groupingKeys are the fields that split aggregates. Everything else (error text, values,
// latencies) varies per event and is kept only as the first sample.
var groupingKeys = []string{"component", "symbol", "op", "topic"}

// LogAggregate is one line of the shipped batch: how often a log site fired per grouping.
type LogAggregate struct {
	Level     string                 `json:"level"`
	Message   string                 `json:"message"`
	Caller    string                 `json:"caller"`
	Group     map[string]string      `json:"group,omitempty"`
	Sample    map[string]interface{} `json:"sample,omitempty"`
	Count     int                    `json:"count"`
	FirstSeen time.Time              `json:"first_seen"`
	LastSeen  time.Time              `json:"last_seen"`
}

// LogBatch is the payload published on every flush.
type LogBatch struct {
	FlushedAt time.Time      `json:"flushed_at"`
	Dropped   int            `json:"dropped,omitempty"`
	Entries   []LogAggregate `json:"entries"`
}

// LogCollector folds repeated error logs into counted aggregates and publishes them in
// batches, so a failing sink produces one message per interval instead of one per bar.
type LogCollector struct {
	cfg     CollectionConfig
	now     func() time.Time
	mu      sync.Mutex
	entries map[string]*LogAggregate
	dropped int

	sendMu sync.Mutex
	stop   chan struct{}
	wg     sync.WaitGroup
	once   sync.Once
}

func NewLogCollector(cfg *CollectionConfig) *LogCollector {
	c := &LogCollector{
		cfg:     *cfg,
		now:     time.Now,
		entries: make(map[string]*LogAggregate),
		stop:    make(chan struct{}),
	}
	if c.cfg.TimeInterval <= 0 {
		c.cfg.TimeInterval = 30 * time.Second
	}
	if c.cfg.CountThreshold <= 0 {
		c.cfg.CountThreshold = 100
	}

	c.wg.Add(1)
	go c.loop()
	return c
}

// AddLog records one event. When the number of distinct aggregates reaches the threshold the
// batch is flushed in the background.
func (c *LogCollector) AddLog(level, message string, fields map[string]interface{}, caller string) {
	group := make(map[string]string)
	for _, k := range groupingKeys {
		if v, ok := fields[k]; ok {
			group[k] = fmt.Sprint(v)
		}
	}
	key := aggregateKey(level, message, caller, group)
	now := c.now()

	c.mu.Lock()
	if e, ok := c.entries[key]; ok {
		e.Count++
		e.LastSeen = now
	} else {
		c.entries[key] = &LogAggregate{
			Level: level, Message: message, Caller: caller,
			Group: group, Sample: fields,
			Count: 1, FirstSeen: now, LastSeen: now,
		}
	}
	full := len(c.entries) >= c.cfg.CountThreshold
	c.mu.Unlock()

	if full {
		go c.Flush(context.Background())
	}
}

func aggregateKey(level, message, caller string, group map[string]string) string {
	keys := make([]string, 0, len(group))
	for k := range group {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	s := level + "|" + caller + "|" + message
	for _, k := range keys {
		s += "|" + k + "=" + group[k]
	}
	return s
}

// Flush publishes the pending aggregates. Publish failures are counted and reported as
// Dropped in the next batch.
func (c *LogCollector) Flush(ctx context.Context) {
	c.mu.Lock()
	if len(c.entries) == 0 {
		c.mu.Unlock()
		return
	}
	batch := LogBatch{FlushedAt: c.now(), Dropped: c.dropped, Entries: make([]LogAggregate, 0, len(c.entries))}
	for _, e := range c.entries {
		batch.Entries = append(batch.Entries, *e)
	}
	c.entries = make(map[string]*LogAggregate)
	c.dropped = 0
	c.mu.Unlock()

	sort.Slice(batch.Entries, func(i, j int) bool { return batch.Entries[i].Count > batch.Entries[j].Count })

	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := c.cfg.Publisher.PublishMessage(ctx, c.cfg.Topic, batch); err != nil {
		c.mu.Lock()
		c.dropped += len(batch.Entries) + batch.Dropped
		c.mu.Unlock()
	}
}

func (c *LogCollector) loop() {
	defer c.wg.Done()
	ticker := time.NewTicker(c.cfg.TimeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.Flush(context.Background())
		case <-c.stop:
			c.Flush(context.Background())
			return
		}
	}
}

// Close stops the ticker and waits for the final flush.
func (c *LogCollector) Close() {
	c.once.Do(func() { close(c.stop) })
	c.wg.Wait()
}
