package coord

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/securesend/coord/internal/delivery"
	"github.com/securesend/coord/internal/metrics"
	"github.com/securesend/coord/internal/offer"
)

// DefaultOfferTTL is how long an offerer's connection stays discoverable.
const DefaultOfferTTL = 15 * time.Minute

type Options struct {
	OfferTTL time.Duration
	// Now defaults to time.Now.
	Now     func() time.Time
	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

type Coordinator struct {
	offers  offer.Directory
	channel delivery.Channel
	ttl     time.Duration
	now     func() time.Time
	log     *slog.Logger
	metrics *metrics.Metrics
}

func New(offers offer.Directory, channel delivery.Channel, opts Options) *Coordinator {
	if opts.OfferTTL <= 0 {
		opts.OfferTTL = DefaultOfferTTL
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Coordinator{
		offers:  offers,
		channel: channel,
		ttl:     opts.OfferTTL,
		now:     opts.Now,
		log:     opts.Logger,
		metrics: opts.Metrics,
	}
}

// Handle runs one event end to end and returns the acknowledgement for the
// transport. It never fails; failures are folded into the response.
func (c *Coordinator) Handle(ctx context.Context, ev Event) Response {
	start := c.now()
	route, _ := ParseRoute(ev.Route)

	err := c.handle(ctx, ev)
	outcome := OutcomeOf(err)
	c.metrics.ObserveRequest(string(route), outcome.String(), c.now().Sub(start))

	attrs := []any{"route", ev.Route, "connection", ev.ConnectionHandle, "outcome", outcome.String()}
	switch outcome {
	case OutcomeSuccess:
	case OutcomeInternal:
		c.log.Error("coordinator request failed", append(attrs, "err", err)...)
	default:
		c.log.Debug("coordinator request rejected", append(attrs, "err", err)...)
	}
	return ResponseFor(err)
}

func (c *Coordinator) handle(ctx context.Context, ev Event) error {
	cmd, err := Classify(ev)
	if err != nil {
		return err
	}
	return c.Execute(ctx, cmd)
}

// Execute runs a classified command.
func (c *Coordinator) Execute(ctx context.Context, cmd Command) error {
	switch cmd := cmd.(type) {
	case Connect:
		return c.Connect(ctx, cmd)
	case Disconnect:
		return c.Disconnect(ctx, cmd)
	case Relay:
		return c.Relay(ctx, cmd)
	default:
		return fmt.Errorf("unhandled command %T", cmd)
	}
}

func (c *Coordinator) Connect(ctx context.Context, cmd Connect) error {
	switch cmd.Role {
	case RoleOfferer:
		return c.registerOffer(ctx, cmd.TransferID, cmd.ConnectionHandle)
	case RoleReceiver:
		return c.notifyOfferer(ctx, cmd.TransferID, cmd.ConnectionHandle)
	default:
		return badRequest("unsupported role %v", cmd.Role)
	}
}

// Disconnect is a no-op: offers expire on their own and a departed peer is
// detected by the next delivery to it.
func (c *Coordinator) Disconnect(ctx context.Context, _ Disconnect) error {
	return nil
}

// Relay forwards body to the recipient without checking that the two
// connections were ever paired.
func (c *Coordinator) Relay(ctx context.Context, cmd Relay) error {
	env := Envelope{
		Sender:    cmd.SenderHandle,
		Recipient: cmd.RecipientHandle,
		Body:      cmd.Body,
	}
	if err := c.deliver(ctx, cmd.RecipientHandle, env); err != nil {
		if errors.Is(err, delivery.ErrGone) {
			return &PeerGoneError{Peer: PeerRecipient}
		}
		return fmt.Errorf("relay to %s: %w", cmd.RecipientHandle, err)
	}
	return nil
}

func (c *Coordinator) registerOffer(ctx context.Context, transferID, handle string) error {
	o := offer.Offer{
		TransferID:       transferID,
		ConnectionHandle: handle,
		ValidUntil:       c.now().Add(c.ttl),
	}
	if err := c.offers.Put(ctx, o); err != nil {
		c.metrics.StoreOperation("put", metrics.ResultError)
		return fmt.Errorf("put offer %q: %w", transferID, err)
	}
	c.metrics.StoreOperation("put", metrics.ResultOK)
	return nil
}

func (c *Coordinator) notifyOfferer(ctx context.Context, transferID, receiverHandle string) error {
	o, err := c.offers.Get(ctx, transferID)
	if errors.Is(err, offer.ErrNotFound) {
		c.metrics.StoreOperation("get", metrics.ResultNotFound)
		return ErrTransferNotFound
	}
	if err != nil {
		c.metrics.StoreOperation("get", metrics.ResultError)
		return fmt.Errorf("get offer %q: %w", transferID, err)
	}
	c.metrics.StoreOperation("get", metrics.ResultOK)

	env := Envelope{
		Sender:    receiverHandle,
		Recipient: o.ConnectionHandle,
		Body:      newRecipientBody,
	}
	if err := c.deliver(ctx, o.ConnectionHandle, env); err != nil {
		if errors.Is(err, delivery.ErrGone) {
			return &PeerGoneError{Peer: PeerSender}
		}
		return fmt.Errorf("notify offerer of %q: %w", transferID, err)
	}
	return nil
}

func (c *Coordinator) deliver(ctx context.Context, handle string, env Envelope) error {
	payload, err := env.Encode()
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}
	err = c.channel.Deliver(ctx, handle, payload)
	switch {
	case err == nil:
		c.metrics.Delivery(metrics.ResultOK)
	case errors.Is(err, delivery.ErrGone):
		c.metrics.Delivery(metrics.ResultGone)
		c.log.Debug("delivery target gone", "handle", handle)
	default:
		c.metrics.Delivery(metrics.ResultError)
	}
	return err
}
