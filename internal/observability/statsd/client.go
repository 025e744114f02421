// Package statsd emits StatsD lines (with DogStatsD-style tags) over UDP.
package statsd

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"net"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"
)

// DefaultMaxPacketSize keeps a coalesced datagram under a typical Ethernet MTU.
const DefaultMaxPacketSize = 1432

const defaultFlushInterval = time.Second

// Sink describes the minimal interface required to emit StatsD-style metrics.
type Sink interface {
	Count(name string, value int64, tags map[string]string)
	Gauge(name string, value float64, tags map[string]string)
	Timing(name string, value time.Duration, tags map[string]string)
}

// Config describes how to connect to a StatsD-compatible sink.
type Config struct {
	Enabled    bool
	Address    string
	Prefix     string
	GlobalTags map[string]string
	// MaxPacketSize bounds a coalesced datagram; lines are sent one by one when it is 1.
	MaxPacketSize int
	// FlushInterval bounds how long a line waits in the buffer.
	FlushInterval time.Duration
	Logger        *slog.Logger
}

// Client buffers metric lines and writes them as newline-joined datagrams.
// It is safe for concurrent use.
type Client struct {
	prefix     string
	globalTags map[string]string
	maxPacket  int
	logger     *slog.Logger

	mu   sync.Mutex
	conn net.Conn
	buf  []byte

	stop chan struct{}
	done chan struct{}
}

var _ Sink = (*Client)(nil)

// NewClient dials the configured endpoint and starts the flush loop. A disabled config
// or blank address yields a client that drops everything.
func NewClient(cfg Config) (*Client, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	maxPacket := cfg.MaxPacketSize
	if maxPacket <= 0 {
		maxPacket = DefaultMaxPacketSize
	}
	c := &Client{
		prefix:     strings.Trim(strings.TrimSpace(cfg.Prefix), "."),
		globalTags: maps.Clone(cfg.GlobalTags),
		maxPacket:  maxPacket,
		logger:     logger.With("component", "statsd"),
	}

	address := strings.TrimSpace(cfg.Address)
	if !cfg.Enabled || address == "" {
		return c, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, err := (&net.Dialer{}).DialContext(ctx, "udp", address)
	if err != nil {
		return nil, fmt.Errorf("statsd dial %s: %w", address, err)
	}
	c.conn = conn

	interval := cfg.FlushInterval
	if interval <= 0 {
		interval = defaultFlushInterval
	}
	c.stop = make(chan struct{})
	c.done = make(chan struct{})
	go c.flushLoop(interval)
	return c, nil
}

// Enabled reports whether the client actively emits metrics.
func (c *Client) Enabled() bool {
	if c == nil {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// Count increments a counter metric.
func (c *Client) Count(name string, value int64, tags map[string]string) {
	c.enqueue(name, strconv.FormatInt(value, 10)+"|c", tags)
}

// Gauge records the current value for a gauge metric.
func (c *Client) Gauge(name string, value float64, tags map[string]string) {
	c.enqueue(name, formatFloat(value)+"|g", tags)
}

// Timing records a timing metric in milliseconds.
func (c *Client) Timing(name string, value time.Duration, tags map[string]string) {
	ms := float64(value) / float64(time.Millisecond)
	c.enqueue(name, formatFloat(ms)+"|ms", tags)
}

// Flush writes any buffered lines.
func (c *Client) Flush() {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.flushLocked()
}

// Close flushes, stops the flush loop and releases the connection. It is idempotent.
func (c *Client) Close() error {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	if c.conn == nil {
		c.mu.Unlock()
		return nil
	}
	c.flushLocked()
	conn := c.conn
	c.conn = nil
	stop, done := c.stop, c.done
	c.mu.Unlock()

	if stop != nil {
		close(stop)
		<-done
	}
	return conn.Close()
}

func (c *Client) flushLoop(interval time.Duration) {
	defer close(c.done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			c.Flush()
		}
	}
}

func (c *Client) enqueue(name, payload string, tags map[string]string) {
	if c == nil {
		return
	}
	metric := c.metricName(name)
	if metric == "" {
		return
	}
	line := metric + ":" + payload + formatTags(c.globalTags, tags)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return
	}
	if len(c.buf) > 0 && len(c.buf)+1+len(line) > c.maxPacket {
		c.flushLocked()
	}
	if len(c.buf) > 0 {
		c.buf = append(c.buf, '\n')
	}
	c.buf = append(c.buf, line...)
	if len(c.buf) >= c.maxPacket {
		c.flushLocked()
	}
}

// flushLocked requires c.mu.
func (c *Client) flushLocked() {
	if len(c.buf) == 0 || c.conn == nil {
		c.buf = c.buf[:0]
		return
	}
	if _, err := c.conn.Write(c.buf); err != nil {
		c.logger.Debug("statsd write failed", "error", err, "bytes", len(c.buf))
	}
	c.buf = c.buf[:0]
}

func (c *Client) metricName(name string) string {
	n := normalizeMetricName(name)
	if n == "" {
		return ""
	}
	if c.prefix == "" {
		return n
	}
	return c.prefix + "." + n
}

// normalizeMetricName keeps StatsD reserved characters out of metric names.
func normalizeMetricName(name string) string {
	n := strings.TrimSpace(name)
	n = strings.NewReplacer(" ", "_", "/", "_", ":", "_", "|", "_", "@", "_", "\n", "_").Replace(n)
	for strings.Contains(n, "..") {
		n = strings.ReplaceAll(n, "..", ".")
	}
	return strings.Trim(n, ".")
}

// formatTags renders sorted "|#k:v" tags. Later maps win on key collisions.
func formatTags(tagSets ...map[string]string) string {
	merged := make(map[string]string)
	for _, tags := range tagSets {
		for k, v := range tags {
			if key := strings.TrimSpace(k); key != "" {
				merged[key] = strings.TrimSpace(v)
			}
		}
	}
	if len(merged) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("|#")
	for i, k := range slices.Sorted(maps.Keys(merged)) {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(k)
		b.WriteByte(':')
		b.WriteString(merged[k])
	}
	return b.String()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
