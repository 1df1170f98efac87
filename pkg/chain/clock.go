package chain

import (
	"context"
	"sync"
	"time"

	"github.com/attestantio/go-eth2-client/spec/phase0"
	"github.com/sirupsen/logrus"

	"github.com/ethpandaops/bidoor/pkg/events"
)

// Clock delivers slot ticks in monotonic order and epoch ticks exactly
// once per epoch boundary.
type Clock struct {
	spec *Spec
	log  logrus.FieldLogger

	slotDispatcher  *events.Dispatcher[phase0.Slot]
	epochDispatcher *events.Dispatcher[phase0.Epoch]

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewClock creates a clock over the given spec.
func NewClock(spec *Spec, log logrus.FieldLogger) *Clock {
	return &Clock{
		spec:            spec,
		log:             log.WithField("component", "clock"),
		slotDispatcher:  &events.Dispatcher[phase0.Slot]{},
		epochDispatcher: &events.Dispatcher[phase0.Epoch]{},
	}
}

// SubscribeSlots returns a subscription for slot ticks.
func (c *Clock) SubscribeSlots() *events.Subscription[phase0.Slot] {
	return c.slotDispatcher.Subscribe(4, false)
}

// SubscribeEpochs returns a subscription for epoch ticks.
func (c *Clock) SubscribeEpochs() *events.Subscription[phase0.Epoch] {
	return c.epochDispatcher.Subscribe(4, true)
}

// Start begins ticking. The current epoch fires immediately so services
// bootstrap their schedules without waiting for the next boundary.
func (c *Clock) Start(ctx context.Context) {
	tickCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	c.wg.Add(1)

	go c.run(tickCtx)
}

// Stop halts the clock.
func (c *Clock) Stop() {
	if c.cancel != nil {
		c.cancel()
	}

	c.wg.Wait()
}

func (c *Clock) run(ctx context.Context) {
	defer c.wg.Done()

	slot, ok := c.spec.SlotAtTime(time.Now())
	if !ok {
		// Wait out the time until genesis, then start at slot 0.
		wait := time.Until(c.spec.SlotStartTime(0))
		c.log.WithField("wait", wait).Info("Before genesis, waiting for first slot")

		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}

		slot = 0
	}

	currentEpoch := c.spec.EpochOf(slot)
	c.epochDispatcher.Fire(currentEpoch)

	for {
		next := slot + 1

		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Until(c.spec.SlotStartTime(next))):
		}

		slot = next
		c.slotDispatcher.Fire(slot)

		if epoch := c.spec.EpochOf(slot); epoch > currentEpoch {
			currentEpoch = epoch
			c.epochDispatcher.Fire(epoch)
		}
	}
}
