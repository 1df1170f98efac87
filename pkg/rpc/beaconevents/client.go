// Package beaconevents consumes the beacon node's SSE event stream,
// delivering payload_attributes and head events to subscribers. This is
// the narrow beacon-node surface the auctioneer needs; full beacon API
// access is out of scope.
package beaconevents

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/attestantio/go-eth2-client/spec/phase0"
	"github.com/sirupsen/logrus"

	"github.com/ethpandaops/bidoor/pkg/events"
)

// HeadEvent is a beacon head update.
type HeadEvent struct {
	Slot            phase0.Slot
	Block           phase0.Root
	EpochTransition bool
}

// Client manages SSE connections to the beacon node event stream.
type Client struct {
	baseURL string
	log     logrus.FieldLogger

	headDispatcher       *events.Dispatcher[*HeadEvent]
	attributesDispatcher *events.Dispatcher[*PayloadAttributesEvent]

	// Latest payload_attributes per slot. Multiple events may arrive for
	// the same slot (reorgs, updated attributes); the latest one wins.
	attrCache   map[phase0.Slot]*PayloadAttributesEvent
	attrCacheMu sync.RWMutex

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewClient creates an event-stream client for the beacon node at baseURL.
func NewClient(baseURL string, log logrus.FieldLogger) *Client {
	return &Client{
		baseURL:              strings.TrimSuffix(baseURL, "/"),
		log:                  log.WithField("component", "beacon-events"),
		headDispatcher:       &events.Dispatcher[*HeadEvent]{},
		attributesDispatcher: &events.Dispatcher[*PayloadAttributesEvent]{},
		attrCache:            make(map[phase0.Slot]*PayloadAttributesEvent, 4),
	}
}

// Start begins listening to beacon node events.
func (c *Client) Start(ctx context.Context) {
	streamCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	c.wg.Add(2)

	go c.runTopicLoop(streamCtx, "head", 5*time.Second)
	go c.runTopicLoop(streamCtx, "payload_attributes", 5*time.Second)
}

// Stop stops the event stream.
func (c *Client) Stop() {
	if c.cancel != nil {
		c.cancel()
	}

	c.wg.Wait()
}

// SubscribeHead returns a subscription for head events.
func (c *Client) SubscribeHead() *events.Subscription[*HeadEvent] {
	return c.headDispatcher.Subscribe(16, false)
}

// SubscribePayloadAttributes returns a subscription for payload attributes
// events.
func (c *Client) SubscribePayloadAttributes() *events.Subscription[*PayloadAttributesEvent] {
	return c.attributesDispatcher.Subscribe(16, false)
}

// LatestPayloadAttributes returns the latest cached payload_attributes for
// a slot, or nil.
func (c *Client) LatestPayloadAttributes(slot phase0.Slot) *PayloadAttributesEvent {
	c.attrCacheMu.RLock()
	defer c.attrCacheMu.RUnlock()

	return c.attrCache[slot]
}

// CleanupAttributesCache drops cached entries for slots before beforeSlot.
func (c *Client) CleanupAttributesCache(beforeSlot phase0.Slot) {
	c.attrCacheMu.Lock()
	defer c.attrCacheMu.Unlock()

	for slot := range c.attrCache {
		if slot < beforeSlot {
			delete(c.attrCache, slot)
		}
	}
}

// runTopicLoop connects to the SSE endpoint for one topic and, whenever the
// stream ends, reconnects after a fixed retryDelay (the delay does not grow).
func (c *Client) runTopicLoop(ctx context.Context, topic string, retryDelay time.Duration) {
	defer c.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if err := c.connectAndStream(ctx, topic); err != nil && ctx.Err() == nil {
			c.log.WithError(err).WithField("topic", topic).
				Warn("Event stream connection error, reconnecting...")
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(retryDelay):
		}
	}
}

func (c *Client) connectAndStream(ctx context.Context, topic string) error {
	url := fmt.Sprintf("%s/eth/v1/events?topics=%s", c.baseURL, topic)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	httpClient := &http.Client{
		Timeout: 0, // SSE connections stay open
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to connect to event stream: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("event stream returned status %d", resp.StatusCode)
	}

	c.log.WithField("topic", topic).Info("Connected to beacon node event stream")

	return c.processStream(ctx, resp.Body)
}

// processStream reads SSE frames: "event:"/"data:" lines accumulated until
// a blank-line boundary.
func (c *Client) processStream(ctx context.Context, body io.Reader) error {
	reader := bufio.NewReader(body)

	var eventType string

	var eventData strings.Builder

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		line, err := reader.ReadString('\n')
		if err != nil {
			return fmt.Errorf("failed to read from stream: %w", err)
		}

		line = strings.TrimSpace(line)

		if line == "" {
			if eventType != "" && eventData.Len() > 0 {
				c.handleEvent(eventType, eventData.String())
			}

			eventType = ""

			eventData.Reset()

			continue
		}

		if after, found := strings.CutPrefix(line, "event:"); found {
			eventType = strings.TrimSpace(after)
		} else if after, found := strings.CutPrefix(line, "data:"); found {
			eventData.WriteString(strings.TrimSpace(after))
		}
	}
}

func (c *Client) handleEvent(eventType, data string) {
	switch eventType {
	case "head":
		event, err := parseHeadEvent(data)
		if err != nil {
			c.log.WithError(err).WithField("data", data).Warn("Failed to parse head event")
			return
		}

		c.headDispatcher.Fire(event)

	case "payload_attributes":
		event, err := parsePayloadAttributesEvent(data)
		if err != nil {
			c.log.WithError(err).WithField("data", data).Warn("Failed to parse payload attributes event")
			return
		}

		c.log.WithFields(logrus.Fields{
			"slot":        event.ProposalSlot,
			"parent_hash": fmt.Sprintf("%#x", event.ParentBlockHash[:8]),
		}).Debug("Payload attributes event received")

		c.attrCacheMu.Lock()
		c.attrCache[event.ProposalSlot] = event
		c.attrCacheMu.Unlock()

		c.attributesDispatcher.Fire(event)

	default:
		c.log.WithField("event_type", eventType).Debug("Unknown event type")
	}
}
