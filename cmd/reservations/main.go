package main

import (
	"strconv"

	"boxoffice/internal/bookings/handler"
	"boxoffice/internal/bookings/repository"
	"boxoffice/internal/bookings/service"
	"boxoffice/internal/bookings/validator"
	"boxoffice/internal/catalog"
	"boxoffice/internal/events"
	"boxoffice/internal/inventory"
	"boxoffice/internal/payments"
	"boxoffice/pkg/app"
	"boxoffice/pkg/clock"
	"boxoffice/pkg/config"
	"boxoffice/pkg/kafka"
	"boxoffice/pkg/model"

	"go.mongodb.org/mongo-driver/mongo"
)

func main() {
	cfg := config.Load("reservations")

	catalogRepo, mongoClient := buildCatalog(cfg)
	clk := clock.NewSystem()

	table := inventory.NewTable(clk)
	reaper := inventory.NewReaper(table, cfg.SweepInterval, cfg.Log)
	reaper.Start()

	publisher, producer := buildPublisher(cfg)

	bookingService := service.NewBookingService(
		repository.NewMemoryBookingRepository(),
		table,
		catalogRepo,
		buildProcessors(cfg),
		publisher,
		validator.NewBookingValidator(cfg.Log),
		clk,
		cfg,
	)

	application := app.NewApplication(cfg)
	application.SetApp(
		handler.NewBookingHandler(bookingService, cfg.Log),
		handler.NewHealthHandler(mongoClient, cfg.Log),
	)
	application.OnShutdown(reaper.Stop)
	if producer != nil {
		application.OnShutdown(func() {
			if err := producer.Close(); err != nil {
				cfg.Log.Error("Failed to close event producer", "error", err)
			}
		})
	}

	application.Run()
}

func buildCatalog(cfg *config.Config) (catalog.Repository, *mongo.Client) {
	switch cfg.CatalogBackend {
	case config.CatalogBackendMongo:
		cfg.SetMongo()
		cfg.Log.Info("Using MongoDB catalog backend", "database", cfg.MongoDatabase)
		return catalog.NewMongoRepository(cfg.Client.Mongo, cfg.MongoDatabase), cfg.Client.Mongo

	default:
		if cfg.CatalogSeedFile != "" {
			repo, err := catalog.NewMemoryFromFile(cfg.CatalogSeedFile)
			if err != nil {
				cfg.Log.Fatal("Failed to load catalog seed file", "path", cfg.CatalogSeedFile, "error", err)
			}
			cfg.Log.Info("Using in-memory catalog backend", "seed_file", cfg.CatalogSeedFile)
			return repo, nil
		}
		cfg.Log.Info("Using in-memory catalog backend with demo shows")
		return catalog.NewMemory(demoShows()...), nil
	}
}

func buildProcessors(cfg *config.Config) map[model.PaymentMethod]payments.Processor {
	methods := []model.PaymentMethod{model.PaymentCard, model.PaymentWallet, model.PaymentUPI}
	processors := make(map[model.PaymentMethod]payments.Processor, len(methods))

	if cfg.PaymentGatewayURL == "" {
		// No gateway configured: approve everything, useful for local runs.
		cfg.Log.Warn("No payment gateway configured, all charges auto-approve")
		static := payments.NewStatic(true)
		for _, m := range methods {
			processors[m] = static
		}
		return processors
	}

	for _, m := range methods {
		processors[m] = payments.NewGateway(cfg.PaymentGatewayURL, m, cfg.PaymentGatewayTimeout)
	}
	cfg.Log.Info("Payment gateway configured", "methods", len(methods))
	return processors
}

func buildPublisher(cfg *config.Config) (events.Publisher, *kafka.Producer) {
	if len(cfg.KafkaBrokers) == 0 {
		cfg.Log.Info("No Kafka brokers configured, lifecycle events disabled")
		return events.Noop{}, nil
	}

	producer, err := kafka.NewProducer(kafka.ProducerConfig{
		Brokers:      cfg.KafkaBrokers,
		Topic:        cfg.KafkaTopic,
		MaxAttempts:  cfg.KafkaMaxAttempts,
		BatchTimeout: cfg.KafkaBatchTimeout,
	})
	if err != nil {
		cfg.Log.Fatal("Failed to create Kafka producer", "error", err)
	}
	cfg.Log.Info("Kafka event publisher configured", "topic", cfg.KafkaTopic)
	return events.NewKafkaPublisher(producer, cfg.Log), producer
}

// demoShows seeds the in-memory catalog when no seed file is supplied.
func demoShows() []model.Show {
	rows := []string{"A", "B", "C"}
	var units []model.InventoryUnit
	for _, row := range rows {
		for seat := 1; seat <= 10; seat++ {
			price := int64(4500)
			category := "standard"
			if row == "A" {
				price = 9000
				category = "premium"
			}
			units = append(units, model.InventoryUnit{
				GroupID:  "show-demo",
				UnitID:   row + "-" + strconv.Itoa(seat),
				Category: category,
				Price:    price,
			})
		}
	}
	return []model.Show{{ID: "show-demo", Name: "Demo Evening Show", Units: units}}
}
