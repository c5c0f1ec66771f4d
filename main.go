package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/shopspring/decimal"
	_ "gorm.io/driver/postgres"

	"github.com/edusuite/service-fees/config"
	"github.com/edusuite/service-fees/service/business"
	"github.com/edusuite/service-fees/service/events"
	"github.com/edusuite/service-fees/service/gateway"
	"github.com/edusuite/service-fees/service/handlers"
	"github.com/edusuite/service-fees/service/models"
	"github.com/edusuite/service-fees/service/repository"
	"github.com/edusuite/service-fees/service/router"
	"github.com/pitabwire/frame"
)

func main() {
	serviceName := "service_fees"
	ctx := context.Background()
	feesConfig, err := frame.ConfigFromEnv[config.FeesConfig]()
	if err != nil {
		fmt.Printf("could not load config: %v\n", err)
	}
	ctx, service := frame.NewServiceWithContext(ctx, serviceName, frame.WithConfig(&feesConfig))

	logger := service.Log(ctx).WithField("type", "main")

	defer service.Stop(ctx)

	logger.Info("starting service...")
	serviceOptions := []frame.Option{frame.WithDatastore()}

	// Initialize service with database connection
	service.Init(ctx, serviceOptions...)

	migrationModels := []any{
		&models.Fee{}, &models.Bill{}, &models.BillItem{},
		&models.Payment{}, &models.BillPayment{}, &models.Credit{},
		&models.PendingPayment{}, &models.Expense{}, &models.BankStatement{},
		&models.AuditRecord{},
	}

	if feesConfig.DoDatabaseMigrate() {
		err = service.MigrateDatastore(ctx, feesConfig.GetDatabaseMigrationPath(), migrationModels...)
		if err != nil {
			logger.WithError(err).Fatal("could not migrate successfully")
		}
		return
	}

	// Ensure all required tables exist - this is critical for service operation
	logger.Info("Running database auto-migration to ensure tables exist")
	db := service.DB(ctx, false)
	if db == nil {
		logger.WithField("DATABASE_URL", os.Getenv("DATABASE_URL")).
			Fatal("Database connection is nil - check DATABASE_URL and database availability")
		return
	}
	if err = db.AutoMigrate(migrationModels...); err != nil {
		logger.WithError(err).Fatal("Failed to auto-migrate database tables - cannot continue")
		return
	}
	logger.Info("Database auto-migration completed successfully")

	paymentGateway, err := gateway.NewGateway(&feesConfig)
	if err != nil {
		logger.WithError(err).Fatal("could not setup payment gateway")
	}

	tolerance, err := decimal.NewFromString(feesConfig.PaymentTolerance)
	if err != nil {
		logger.WithError(err).WithField("tolerance", feesConfig.PaymentTolerance).
			Warn("invalid payment tolerance, falling back to default")
		tolerance = decimal.New(1, -2)
	}

	repos := repository.NewRepositories(ctx, service)

	notifier := &events.ReconciliationAlert{Service: service, AlertTopic: feesConfig.AlertTopic}
	auditSave := &events.AuditSave{Service: service}

	ledgerBusiness := business.NewLedgerBusiness(ctx, service, repos)
	paymentBusiness := business.NewPaymentBusiness(ctx, service, repos, business.PaymentOptions{
		Tolerance: tolerance,
		GraceDays: feesConfig.PaymentGracePeriodDays,
	})
	orchestrationBusiness := business.NewOrchestrationBusiness(
		ctx, service, &feesConfig, repos, paymentGateway, paymentBusiness)
	reconciliationBusiness := business.NewReconciliationBusiness(
		ctx, service, &feesConfig, repos, notifier, auditSave, &business.StoredBankStatements{Repos: repos})
	financeBusiness := business.NewFinanceBusiness(ctx, service, repos)
	auditBusiness := business.NewAuditBusiness(ctx, service, repos)

	jobServer := &handlers.JobServer{
		Service:        service,
		Ledger:         ledgerBusiness,
		Payments:       paymentBusiness,
		Orchestration:  orchestrationBusiness,
		Reconciliation: reconciliationBusiness,
		Finance:        financeBusiness,
		Audit:          auditBusiness,
	}

	serviceOptions = append(serviceOptions,
		frame.WithHTTPHandler(router.NewRouter(jobServer)),
		frame.WithRegisterEvents(
			auditSave,
			notifier,
		))

	alertTopic := feesConfig.AlertTopic

	// Check if we should skip NATS and use memory messaging directly
	skipNats := os.Getenv("SKIP_NATS") == "true"

	raw := feesConfig.NATS_URL
	var natsURL string

	if skipNats && strings.HasPrefix(raw, "mem://") {
		natsURL = raw
		logger.WithField("memURL", natsURL).Info("Using in-memory messaging directly due to SKIP_NATS=true")
	} else if raw == "" {
		natsURL = "nats://nats:4222"
	} else if strings.HasPrefix(raw, "nats://") {
		natsURL = raw
	} else {
		logger.Warn("NATS_URL missing 'nats://' prefix; assuming host:port format")
		natsURL = "nats://" + raw
	}

	if skipNats && strings.HasPrefix(natsURL, "mem://") {
		logger.WithField("memoryURL", natsURL).Info("Using in-memory pubsub directly (SKIP_NATS=true)")
		serviceOptions = append(serviceOptions,
			frame.WithRegisterPublisher(alertTopic, "mem://"+alertTopic))
	} else {
		// Try connecting to NATS with retry logic
		connected := false
		maxRetries := 10
		for i := range maxRetries {
			logger.WithField("attempt", i+1).WithField("natsURL", natsURL).Info("Attempting to connect to NATS")
			nc, connErr := nats.Connect(natsURL)
			if connErr != nil {
				logger.WithError(connErr).WithField("attempt", i+1).Warn("Failed to connect to NATS, retrying after delay")
				time.Sleep(2 * time.Second)
				continue
			}
			nc.Close()
			logger.Info("Successfully connected to NATS server")

			natsAlertURL := natsURL
			if strings.Contains(natsAlertURL, "?") {
				natsAlertURL += "&subject=" + alertTopic
			} else {
				natsAlertURL += "?subject=" + alertTopic
			}
			logger.WithField("natsURL", natsAlertURL).WithField("topic", alertTopic).Info("Registering publisher with NATS")
			serviceOptions = append(serviceOptions,
				frame.WithRegisterPublisher(alertTopic, natsAlertURL))

			connected = true
			break
		}

		if !connected {
			logger.WithField("retries", maxRetries).
				Warn("Failed to connect to NATS after maximum retries - falling back to memory-based pubsub")
			serviceOptions = append(serviceOptions,
				frame.WithRegisterPublisher(alertTopic, "mem://"+alertTopic))
		}
	}

	service.Init(ctx, serviceOptions...)

	logger.WithField("server http port", feesConfig.HTTPServerPort).
		Info("Initiating server operations")

	err = service.Run(ctx, ":8082")
	if err != nil {
		logger.WithError(err).Fatal("could not run Server")
	}
}
