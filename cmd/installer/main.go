package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/makkenzo/device-license-service/internal/client"
	"github.com/makkenzo/device-license-service/internal/domain/license"
	"github.com/makkenzo/device-license-service/internal/fingerprint"
	"github.com/makkenzo/device-license-service/internal/handler/dto"
	"github.com/makkenzo/device-license-service/internal/offline"
	"github.com/makkenzo/device-license-service/internal/util"
	"github.com/makkenzo/device-license-service/pkg/logger"
	"go.uber.org/zap"
)

const usage = `Usage:
  installer activate -server URL -key XXXX-XXXX-XXXX-XXXX [options]
  installer check [options]

A tenant switch drops every table in -tenant-db and replays -tenant-schema.
Without -tenant-schema the tables stay dropped and the local product must
recreate them (run its migrations) on its next start.
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	fs := flag.NewFlagSet(os.Args[1], flag.ExitOnError)
	serverURL := fs.String("server", "http://localhost:8080", "License server base URL")
	licenseKey := fs.String("key", "", "License key to activate")
	cachePath := fs.String("cache", "./license_cache.db", "Path to the offline license cache")
	tenantDB := fs.String("tenant-db", "", "Path to the local tenant database reset on a tenant switch")
	tenantSchema := fs.String("tenant-schema", "", "SQL file replayed into -tenant-db after a tenant switch")
	pidFile := fs.String("service-pid-file", "", "Pid file of the local service to stop before a tenant switch")
	logLevel := fs.String("log-level", "warn", "Log level")
	_ = fs.Parse(os.Args[2:])

	appLogger, err := logger.NewCLILogger(*logLevel)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer appLogger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var opts []offline.Option
	if *tenantDB != "" {
		var schema []string
		if *tenantSchema != "" {
			schema, err = offline.LoadSchemaFile(*tenantSchema)
			if err != nil {
				appLogger.Fatal("Failed to load tenant schema", zap.Error(err))
			}
		} else {
			appLogger.Warn("No -tenant-schema given, a tenant switch leaves the tenant database empty")
		}
		opts = append(opts, offline.WithTenantDatabase(offline.NewSQLiteTenantDatabase(*tenantDB, schema, appLogger)))
	}
	if *pidFile != "" {
		opts = append(opts, offline.WithServiceController(offline.NewPIDFileService(*pidFile, appLogger)))
	}

	cache, err := offline.Open(ctx, *cachePath, appLogger, opts...)
	if err != nil {
		appLogger.Fatal("Failed to open offline cache", zap.Error(err))
	}
	defer cache.Close()

	switch os.Args[1] {
	case "activate":
		err = activate(ctx, cache, *serverURL, *licenseKey, appLogger)
	case "check":
		err = check(ctx, cache)
	default:
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		cache.Close()
		os.Exit(1)
	}
}

func activate(ctx context.Context, cache *offline.Cache, serverURL, key string, logger *zap.Logger) error {
	key = util.NormalizeLicenseKey(key)
	if !util.IsValidLicenseKey(key) {
		return fmt.Errorf("license key must look like XXXX-XXXX-XXXX-XXXX")
	}

	signals := fingerprint.NewCollector(logger).Collect(ctx)
	logger.Debug("Collected machine signals", zap.Stringer("signals", signals))
	fp := fingerprint.Derive(signals)

	hostname, _ := os.Hostname()
	resp, err := client.New(serverURL, nil, logger).Activate(ctx, dto.ActivateRequest{
		LicenseKey:         key,
		MachineFingerprint: fp,
		MachineName:        hostname,
		OSInfo:             runtime.GOOS + "/" + runtime.GOARCH,
	})
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	entry := &offline.Entry{
		LicenseKey:      resp.LicenseKey,
		CompanyID:       resp.Company.ID.String(),
		CompanyName:     resp.Company.Name,
		Username:        resp.Company.Username,
		PasswordHash:    resp.Company.PasswordHash,
		Phone:           resp.Company.Phone,
		Address:         resp.Company.Address,
		LogoURL:         resp.Company.LogoURL,
		CurrencySymbol:  resp.Company.CurrencySymbol,
		PagePermissions: string(resp.Company.PagePermissions),
		LicenseType:     string(resp.LicenseType),
		ExpiresAt:       resp.ExpiresAt,
		GracePeriodDays: resp.GracePeriodDays,
		Features:        resp.Features,
		Fingerprint:     fp,
		ActivatedAt:     now,
		LastCheckIn:     now,
	}
	if err := cache.Commit(ctx, entry); err != nil {
		return fmt.Errorf("activation succeeded but the offline cache could not be written, run the installer again: %w", err)
	}

	fmt.Printf("Activated for %s\n", resp.Company.Name)
	fmt.Printf("Expires: %s (%d days, grace %d days)\n", resp.ExpiresAt.Format("2006-01-02"), resp.DaysUntilExpiry, resp.GracePeriodDays)
	if resp.GraceState == license.GraceInGrace {
		fmt.Println("Warning: the license has expired and is running on its grace period.")
	}
	return nil
}

func check(ctx context.Context, cache *offline.Cache) error {
	status, err := cache.Evaluate(ctx, time.Now().UTC())
	if errors.Is(err, offline.ErrNoEntry) {
		return fmt.Errorf("no license activated on this machine")
	}
	if err != nil {
		return err
	}

	fmt.Printf("License: %s (%s)\n", status.Entry.LicenseKey, status.Entry.CompanyName)
	fmt.Printf("State: %s, days until expiry: %d, usable until: %s\n",
		status.State, status.DaysUntilExpiry, status.GraceEndsAt.Format(time.RFC3339))
	if !status.State.Usable() {
		return fmt.Errorf("license expired and grace period is over")
	}
	return nil
}
