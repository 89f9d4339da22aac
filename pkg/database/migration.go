package database

import (
	"os"
	"path/filepath"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/pkg/errors"
)

type MigrationConfig struct {
	MigrationFolderPath string
	// Version pins the schema to a specific version; 0 means latest.
	Version uint
	// Force stamps the schema version without running migrations.
	Force int
	// AutoRollback reverts a dirty schema to its pre-migration version.
	AutoRollback bool
}

type MigrationService struct {
	config *MigrationConfig
	logger ectologger.Logger
}

func NewMigrationService(logger ectologger.Logger, config *MigrationConfig) *MigrationService {
	return &MigrationService{config: config, logger: logger}
}

// migrationLogger adapts ectologger to migrate's Logger interface.
type migrationLogger struct {
	ectologger.Logger
}

func (l migrationLogger) Verbose() bool { return true }

func (l migrationLogger) Printf(format string, v ...any) {
	l.Infof(format, v...)
}

// Migrate brings the schema up to date. A failure leaves the schema
// version dirty; with AutoRollback the version is stamped back so the
// next start can retry, but the error is still returned so the service
// does not come up on a half-migrated schema.
func (ms *MigrationService) Migrate(databaseName string, databaseInstance database.Driver) error {
	folder := ms.resolveFolder()
	if _, err := os.Stat(folder); err != nil {
		return errors.Wrapf(err, "migration folder %s does not exist", folder)
	}

	m, err := migrate.NewWithDatabaseInstance("file://"+folder, databaseName, databaseInstance)
	if err != nil {
		ms.logger.WithError(err).Error("failed to create migrate instance")
		return err
	}
	m.Log = migrationLogger{Logger: ms.logger}

	if ms.config.Force != 0 {
		if err := m.Force(ms.config.Force); err != nil {
			ms.logger.WithError(err).Errorf("failed to force schema to version %d", ms.config.Force)
			return err
		}
	}

	before, _, err := m.Version()
	if err != nil && err != migrate.ErrNilVersion {
		ms.logger.WithError(err).Error("failed to read current schema version")
	}

	start := time.Now()
	if ms.config.Version != 0 {
		err = m.Migrate(ms.config.Version)
	} else {
		err = m.Up()
	}

	switch err {
	case nil:
		ms.logger.Infof("Database migrations applied in %v", time.Since(start))
		return nil
	case migrate.ErrNoChange:
		ms.logger.Info("Database schema is up to date")
		return nil
	}

	ms.logger.WithError(err).Error("database migration failed")
	if ms.config.AutoRollback {
		ms.rollbackDirty(m, before)
	}
	return err
}

// resolveFolder tries the configured path as-is, then relative to the
// working directory.
func (ms *MigrationService) resolveFolder() string {
	folder := ms.config.MigrationFolderPath
	if _, err := os.Stat(folder); err == nil {
		return folder
	}
	wd, err := os.Getwd()
	if err != nil {
		return folder
	}
	return filepath.Join(wd, folder)
}

func (ms *MigrationService) rollbackDirty(m *migrate.Migrate, before uint) {
	version, dirty, err := m.Version()
	if err != nil {
		ms.logger.WithError(err).Error("failed to read schema version after failed migration")
		return
	}
	if !dirty {
		return
	}
	if before == 0 {
		before = version - 1
	}
	ms.logger.Warnf("Schema is dirty at version %d, stamping back to version %d", version, before)
	if err := m.Force(int(before)); err != nil {
		ms.logger.WithError(err).Errorf("failed to stamp schema back to version %d", before)
	}
}
