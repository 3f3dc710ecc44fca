package notify

import (
	"bytes"
	"context"
	"encoding/base64"
	"net/http"
	"strings"

	"github.com/aws/aws-lambda-go/events"
)

// lambdaResponse buffers what an http.Handler writes.
type lambdaResponse struct {
	header http.Header
	status int
	body   bytes.Buffer
}

func (r *lambdaResponse) Header() http.Header { return r.header }

func (r *lambdaResponse) WriteHeader(status int) {
	if r.status == 0 {
		r.status = status
	}
}

func (r *lambdaResponse) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.body.Write(b)
}

// LambdaHandler adapts h to API Gateway proxy events.
func LambdaHandler(h http.Handler) func(context.Context, events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	return func(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
		body := []byte(req.Body)
		if req.IsBase64Encoded {
			decoded, err := base64.StdEncoding.DecodeString(req.Body)
			if err != nil {
				return events.APIGatewayProxyResponse{
					StatusCode: http.StatusBadRequest,
					Body:       `{"error":"invalid base64 body"}`,
				}, nil
			}
			body = decoded
		}

		path := req.Path
		if path == "" {
			path = "/"
		}
		httpReq, err := http.NewRequestWithContext(ctx, req.HTTPMethod, path, bytes.NewReader(body))
		if err != nil {
			return events.APIGatewayProxyResponse{}, err
		}
		for k, v := range req.Headers {
			httpReq.Header.Set(k, v)
		}

		rec := &lambdaResponse{header: make(http.Header)}
		h.ServeHTTP(rec, httpReq)
		if rec.status == 0 {
			rec.status = http.StatusOK
		}

		headers := make(map[string]string, len(rec.header))
		for k, v := range rec.header {
			headers[k] = strings.Join(v, ", ")
		}
		return events.APIGatewayProxyResponse{
			StatusCode: rec.status,
			Headers:    headers,
			Body:       rec.body.String(),
		}, nil
	}
}
