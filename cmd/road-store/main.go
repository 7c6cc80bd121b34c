package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/iot-for-tillgenglighet/messaging-golang/pkg/messaging"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/invisy/PitDetector/internal/pkg/config"
	"github.com/invisy/PitDetector/internal/pkg/database"
	"github.com/invisy/PitDetector/internal/pkg/hub"
	agentdata "github.com/invisy/PitDetector/internal/pkg/messaging"
	"github.com/invisy/PitDetector/internal/pkg/messaging/commands"
	"github.com/invisy/PitDetector/internal/pkg/pipeline"
	"github.com/invisy/PitDetector/internal/pkg/readings"
	"github.com/invisy/PitDetector/pkg/handler"
)

func connector(cfg config.Config) database.ConnectorFunc {
	if cfg.DBDriver == "postgres" {
		return database.NewPostgreSQLConnector(database.PostgresConfig{
			Host:     cfg.PostgresHost,
			Port:     cfg.PostgresPort,
			User:     cfg.PostgresUser,
			Password: cfg.PostgresPassword,
			DBName:   cfg.PostgresDB,
		})
	}

	return database.NewSQLiteConnector(cfg.SQLitePath)
}

var envFileName string

func main() {
	flag.StringVar(&envFileName, "envfile", "", "An optional file to load environment variables from")
	flag.Parse()

	log.SetFormatter(&log.JSONFormatter{})

	serviceName := "road-store"

	var envFiles []string
	if envFileName != "" {
		envFiles = append(envFiles, envFileName)
	}

	cfg, err := config.Load(envFiles...)
	if err != nil {
		log.Fatalf("Failed to load configuration: %s", err.Error())
	}

	if level, err := log.ParseLevel(cfg.LogLevel); err == nil {
		log.SetLevel(level)
	}

	log.Infof("Starting up %s ...", serviceName)

	db, err := database.NewDatabaseConnection(connector(cfg))
	if err != nil {
		log.Fatalf("Failed to connect to the %s database: %s", cfg.DBDriver, err.Error())
	}

	h := hub.New(cfg.SubscriberSendTimeout)
	classifier := readings.NewClassifier(readings.Thresholds{Bump: cfg.BumpThreshold, Pothole: cfg.PotholeThreshold})
	p := pipeline.New(db, h, classifier)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	batches := make(chan []commands.AgentData, cfg.IngestQueueSize)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return p.Run(ctx, batches, cfg.IngestWorkers)
	})

	if cfg.MQTTBrokerHost != "" {
		client, err := agentdata.NewMQTTClient(agentdata.MQTTConfig{
			Host:     cfg.MQTTBrokerHost,
			Port:     cfg.MQTTBrokerPort,
			ClientID: cfg.MQTTClientID,
			Username: cfg.MQTTUsername,
			Password: cfg.MQTTPassword,
		})
		if err != nil {
			log.Fatal(err.Error())
		}
		defer client.Disconnect(250)

		onMessage := agentdata.CreateAgentDataMessageHandler(ctx, batches)
		if err = agentdata.SubscribeAgentData(client, cfg.MQTTAgentTopic, onMessage); err != nil {
			log.Fatal(err.Error())
		}
	}

	if cfg.RabbitMQHost != "" {
		messenger, err := messaging.Initialize(messaging.LoadConfiguration(serviceName))
		if err != nil {
			log.Fatal(err.Error())
		}
		defer messenger.Close()

		messenger.RegisterTopicMessageHandler(cfg.AMQPAgentTopic, agentdata.CreateAgentDataReceiver(ctx, batches))

		if cfg.AMQPEventsEnabled {
			h.Subscribe(agentdata.NewEventPublisher(messenger))
		}
	}

	g.Go(func() error {
		return handler.CreateRouterAndStartServing(ctx, cfg.APIPort, p, db, h)
	})

	if err := g.Wait(); err != nil {
		log.Errorf("%s terminated: %s", serviceName, err.Error())
		os.Exit(1)
	}

	log.Infof("%s stopped.", serviceName)
}
