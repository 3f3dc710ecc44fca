// Command notifier-lambda runs the application status email function behind
// API Gateway.
package main

import (
	"github.com/aws/aws-lambda-go/lambda"

	"github.com/dancelink/platform/internal/config"
	"github.com/dancelink/platform/internal/logging"
	"github.com/dancelink/platform/internal/notify"
)

func main() {
	cfg, err := config.LoadNotifier()
	if err != nil {
		logging.Default("notifier").WithError(err).Fatal("Failed to load configuration")
	}
	logger := logging.New("notifier", cfg.LogLevel, cfg.LogFormat)

	handler := notify.NewHandler(notify.NewResend(cfg.ResendAPIKey, cfg.ResendFrom, cfg.ResendURL), logger, nil)
	lambda.Start(notify.LambdaHandler(handler))
}
