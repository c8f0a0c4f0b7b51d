package delivery

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/apigatewaymanagementapi"
	"github.com/aws/aws-sdk-go/service/apigatewaymanagementapi/apigatewaymanagementapiiface"
)

// APIGateway delivers through the API Gateway Management API of a WebSocket
// API, for deployments where API Gateway owns the client sockets.
type APIGateway struct {
	client apigatewaymanagementapiiface.ApiGatewayManagementApiAPI
}

func NewAPIGateway(client apigatewaymanagementapiiface.ApiGatewayManagementApiAPI) *APIGateway {
	return &APIGateway{client: client}
}

// NewAPIGatewayClient builds a management API client for the deployed stage
// at endpoint, e.g. https://abc123.execute-api.us-west-2.amazonaws.com/prod.
func NewAPIGatewayClient(sess *session.Session, endpoint string) *apigatewaymanagementapi.ApiGatewayManagementApi {
	return apigatewaymanagementapi.New(sess, aws.NewConfig().WithEndpoint(endpoint))
}

func (a *APIGateway) Deliver(ctx context.Context, handle string, payload []byte) error {
	_, err := a.client.PostToConnectionWithContext(ctx, &apigatewaymanagementapi.PostToConnectionInput{
		ConnectionId: aws.String(handle),
		Data:         payload,
	})
	if err == nil {
		return nil
	}
	if isGone(err) {
		return ErrGone
	}
	return fmt.Errorf("post to connection: %w", err)
}

func isGone(err error) bool {
	var gone *apigatewaymanagementapi.GoneException
	if errors.As(err, &gone) {
		return true
	}
	var aerr awserr.Error
	return errors.As(err, &aerr) && aerr.Code() == apigatewaymanagementapi.ErrCodeGoneException
}
