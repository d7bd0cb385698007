package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/google/uuid"
	"github.com/makkenzo/device-license-service/internal/config"
	"github.com/makkenzo/device-license-service/internal/handler/dto"
	"github.com/makkenzo/device-license-service/internal/service"
	"github.com/makkenzo/device-license-service/internal/storage/postgres"
	"github.com/makkenzo/device-license-service/internal/util"
	"github.com/makkenzo/device-license-service/pkg/logger"
)

func main() {
	companyFlag := flag.String("company", "", "Company ID the license is issued to (required)")
	licenseType := flag.String("type", "offline", "License type: offline or online")
	maxDevices := flag.Int("devices", 1, "Maximum number of devices")
	months := flag.Int("months", 12, "License term in months")
	graceDays := flag.Int("grace", 7, "Grace period in days after expiry")
	notes := flag.String("notes", "", "Free-form notes stored with the license")
	flag.Parse()

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		log.Fatal("DATABASE_URL environment variable is required")
	}
	companyID, err := uuid.Parse(*companyFlag)
	if err != nil {
		log.Fatalf("Invalid -company value %q: %v", *companyFlag, err)
	}

	appLogger, err := logger.NewCLILogger(os.Getenv("LOG_LEVEL"))
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer appLogger.Sync()

	pool, err := postgres.NewPgxPool(context.Background(), &config.DatabaseConfig{URL: dbURL}, appLogger)
	if err != nil {
		log.Fatalf("Unable to connect to database: %v", err)
	}
	defer pool.Close()

	licenseService := service.NewLicenseService(
		postgres.NewLicenseRepository(pool, appLogger),
		postgres.NewCompanyRepository(pool, appLogger),
		util.NewKeyGenerator(nil),
		config.ActivationConfig{KeyGenerationAttempts: 5},
		nil,
		appLogger,
	)

	req := &dto.CreateLicenseRequest{
		CompanyID:       companyID,
		LicenseType:     licenseType,
		MaxDevices:      maxDevices,
		TermMonths:      months,
		GracePeriodDays: graceDays,
	}
	if *notes != "" {
		req.Notes = notes
	}

	lic, err := licenseService.CreateLicense(context.Background(), req)
	if err != nil {
		log.Fatalf("Failed to issue license: %v", err)
	}

	fmt.Printf("License Key (give this to the customer):\n%s\n\n", lic.LicenseKey)
	fmt.Printf("License ID: %s\n", lic.ID)
	fmt.Printf("Type: %s, max devices: %d\n", lic.Type, lic.MaxDevices)
	fmt.Printf("Expires: %s (grace %d days)\n", lic.ExpiresAt.Format("2006-01-02"), lic.GracePeriodDays)
}
