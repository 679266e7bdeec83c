// chamberlog-lambda is the ingest pipeline packaged for AWS Lambda behind a
// function URL or API Gateway. The hosting environment supplies TLS,
// scaling and the overall request deadline; the handler only adapts the
// Lambda payload to the router's request shape.
package main

import (
	"context"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	log "github.com/sirupsen/logrus"

	"github.com/chamberlog/chamberlog/internal/config"
	"github.com/chamberlog/chamberlog/internal/server"
	"github.com/chamberlog/chamberlog/internal/storage"
)

func main() {
	log.SetFormatter(&log.JSONFormatter{})

	cfg, err := config.Load("")
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	writer, err := storage.FromConfig(context.Background(), cfg)
	if err != nil {
		log.Fatalf("Failed to initialize %s backend: %v", cfg.Backend, err)
	}

	router := server.NewRouter(cfg, writer)

	lambda.Start(func(ctx context.Context, req events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
		resp := router.Handle(ctx, server.Request{
			Path:            req.RawPath,
			Headers:         req.Headers,
			Body:            req.Body,
			IsBase64Encoded: req.IsBase64Encoded,
		})
		return events.APIGatewayV2HTTPResponse{
			StatusCode: resp.StatusCode,
			Headers:    map[string]string{"Content-Type": "application/json"},
			Body:       resp.Body,
		}, nil
	})
}
