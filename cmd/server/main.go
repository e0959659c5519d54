package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/getsentry/sentry-go"
	"github.com/oratio/bchhub.go/lib"
	"github.com/oratio/bchhub.go/lib/logging"
	"github.com/oratio/bchhub.go/lib/service"
	"github.com/oratio/bchhub.go/lib/transport"
	"github.com/oratio/bchhub.go/rabbitmq"
	ddEcho "gopkg.in/DataDog/dd-trace-go.v1/contrib/labstack/echo.v4"
	"gopkg.in/DataDog/dd-trace-go.v1/ddtrace/tracer"
)

func main() {
	c, err := lib.LoadConfig()
	if err != nil {
		log.Fatalf("Error loading environment variables: %v", err)
	}

	// Setup logging to STDOUT or a configured log file
	logger := logging.Logger(c.LogFilePath)

	// sentry init needs to happen before the echo middlewares are added
	lib.InitSentry(c, logger)

	backGroundCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc, err := lib.InitService(backGroundCtx, c, logger)
	if err != nil {
		logger.Fatalf("Error initializing service: %v", err)
	}
	defer svc.DB.Close()

	lock, err := service.InitCycleLock(c)
	if err != nil {
		logger.Fatalf("Error initializing cycle lock: %v", err)
	}

	// If no RABBITMQ_URI was provided we will not attempt to create a client
	// No rabbitmq features will be available in this case.
	var rabbitmqClient rabbitmq.Client
	if c.RabbitMQUri != "" {
		amqpClient, err := rabbitmq.DialAMQP(c.RabbitMQUri, logger)
		if err != nil {
			logger.Fatal(err)
		}
		rabbitmqClient, err = rabbitmq.NewClient(amqpClient,
			rabbitmq.WithLogger(logger),
			rabbitmq.WithInvoiceExchange(c.RabbitMQInvoiceExchange),
			rabbitmq.WithReconcileExchange(c.RabbitMQReconcileExchange),
			rabbitmq.WithReconcileConsumerQueueName(c.RabbitMQReconcileConsumerQueueName),
		)
		if err != nil {
			logger.Fatal(err)
		}
		// close the connection gently at the end of the runtime
		defer rabbitmqClient.Close()
	}

	var backgroundWg sync.WaitGroup

	scheduler := service.NewReconciliationScheduler(svc, lock)
	scheduler.Start(backGroundCtx)

	//Start webhook subscription
	if c.WebhookUrl != "" {
		backgroundWg.Add(1)
		go func() {
			defer backgroundWg.Done()
			svc.StartWebhookSubscription(backGroundCtx, c.WebhookUrl)
			svc.Logger.Info("Webhook routine done")
		}()
	}

	if rabbitmqClient != nil {
		backgroundWg.Add(2)
		go func() {
			defer backgroundWg.Done()
			err := rabbitmqClient.StartPublishInvoices(backGroundCtx, svc.SubscribeInvoiceEvents, svc.EncodeInvoiceEventPayload)
			if err != nil && backGroundCtx.Err() == nil {
				svc.Logger.Error(err)
				sentry.CaptureException(err)
			}
			svc.Logger.Info("Rabbit invoice publisher done")
		}()
		go func() {
			defer backgroundWg.Done()
			err := rabbitmqClient.ConsumeReconcileRequests(backGroundCtx, svc)
			if err != nil && backGroundCtx.Err() == nil {
				svc.Logger.Error(err)
				sentry.CaptureException(err)
			}
			svc.Logger.Info("Rabbit reconcile consumer done")
		}()
	}

	//Start ops server with health and metrics if necessary
	if c.EnablePrometheus {
		e := transport.InitEcho(c, logger)
		//if Datadog is configured, add datadog middleware
		if c.DatadogAgentUrl != "" {
			tracer.Start(tracer.WithAgentAddr(c.DatadogAgentUrl))
			defer tracer.Stop()
			e.Use(ddEcho.Middleware(ddEcho.WithServiceName("bchhub.go")))
		}
		transport.RegisterOpsEndpoints(e, svc, logger)
		backgroundWg.Add(1)
		go func() {
			defer backgroundWg.Done()
			transport.StartOpsEcho(backGroundCtx, e, c.PrometheusPort, logger)
		}()
	}

	<-backGroundCtx.Done()
	svc.Logger.Info("Shutting down, waiting for in-flight reconciliations")
	scheduler.Stop()
	//Wait for graceful shutdown of background routines
	backgroundWg.Wait()
	svc.Logger.Info("bchhub exiting gracefully. Goodbye.")
}
