// Command securesend-coord-lambda runs the coordinator behind an AWS API
// Gateway WebSocket API. Every route ($connect, $disconnect, SEND_MESSAGE,
// $default) is wired to this function; offers live in DynamoDB and messages are
// pushed through the API Gateway Management API.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"

	"github.com/securesend/coord/internal/config"
	"github.com/securesend/coord/internal/coord"
	"github.com/securesend/coord/internal/delivery"
	"github.com/securesend/coord/internal/offer"
)

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	logger, err := config.NewLogger(cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	slog.SetDefault(logger)

	sess, err := session.NewSession(&aws.Config{
		Region: aws.String(cfg.AWSRegion),
	})
	if err != nil {
		logger.Error("failed to create aws session", "err", err)
		os.Exit(2)
	}

	offers := offer.NewDynamoDBDirectory(offer.NewDynamoDBClient(sess, cfg.DynamoDBEndpoint), cfg.OffersTable, nil)
	h := newHandler(offers, func(endpoint string) delivery.Channel {
		return delivery.NewAPIGateway(delivery.NewAPIGatewayClient(sess, endpoint))
	}, cfg.APIGatewayEndpoint, coord.Options{
		OfferTTL: cfg.OfferTTL,
		Logger:   logger,
	})

	logger.Info("starting securesend-coord-lambda",
		"offers_table", cfg.OffersTable,
		"aws_region", cfg.AWSRegion,
		"offer_ttl", cfg.OfferTTL,
		"apigateway_endpoint", cfg.APIGatewayEndpoint,
	)
	lambda.Start(h.Handle)
}

// handler keeps one coordinator per management endpoint. A function is
// normally bound to a single stage, so the map stays tiny.
type handler struct {
	offers     offer.Directory
	newChannel func(endpoint string) delivery.Channel
	endpoint   string
	opts       coord.Options

	mu     sync.Mutex
	coords map[string]*coord.Coordinator
}

func newHandler(offers offer.Directory, newChannel func(string) delivery.Channel, endpoint string, opts coord.Options) *handler {
	return &handler{
		offers:     offers,
		newChannel: newChannel,
		endpoint:   endpoint,
		opts:       opts,
		coords:     make(map[string]*coord.Coordinator),
	}
}

func (h *handler) Handle(ctx context.Context, req events.APIGatewayWebsocketProxyRequest) (events.APIGatewayProxyResponse, error) {
	resp := h.coordinatorFor(h.endpointFor(req)).Handle(ctx, toEvent(req))
	return events.APIGatewayProxyResponse{
		StatusCode: resp.StatusCode,
		Body:       resp.Body,
	}, nil
}

// endpointFor returns the Management API endpoint that can reach the caller's
// peers: the configured override, or https://{domain}/{stage}.
func (h *handler) endpointFor(req events.APIGatewayWebsocketProxyRequest) string {
	if h.endpoint != "" {
		return h.endpoint
	}
	return "https://" + req.RequestContext.DomainName + "/" + req.RequestContext.Stage
}

func (h *handler) coordinatorFor(endpoint string) *coord.Coordinator {
	h.mu.Lock()
	defer h.mu.Unlock()
	c, ok := h.coords[endpoint]
	if !ok {
		c = coord.New(h.offers, h.newChannel(endpoint), h.opts)
		h.coords[endpoint] = c
	}
	return c
}

func toEvent(req events.APIGatewayWebsocketProxyRequest) coord.Event {
	return coord.Event{
		Route:            req.RequestContext.RouteKey,
		ConnectionHandle: req.RequestContext.ConnectionID,
		Query:            req.QueryStringParameters,
		Body:             req.Body,
		IsBase64Encoded:  req.IsBase64Encoded,
	}
}
