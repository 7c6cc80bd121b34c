package database

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	log "github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/invisy/PitDetector/internal/pkg/persistence"
	"github.com/invisy/PitDetector/internal/pkg/readings"
)

//ErrNotFound is returned when the requested record does not exist in the datastore
var ErrNotFound = errors.New("processed agent data not found")

//PersistenceError wraps failures to read from or write to the underlying database
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s failed: %s", e.Op, e.Err.Error())
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

//Datastore is an interface that is used to inject the database into different handlers to improve testability
type Datastore interface {
	CreateProcessedAgentData(ctx context.Context, batch []readings.ClassifiedReading) ([]readings.StoredRecord, error)
	GetProcessedAgentDataByID(ctx context.Context, id uint) (readings.StoredRecord, error)
	ListProcessedAgentData(ctx context.Context) ([]readings.StoredRecord, error)
	UpdateProcessedAgentData(ctx context.Context, id uint, data readings.ClassifiedReading) (readings.StoredRecord, error)
	DeleteProcessedAgentData(ctx context.Context, id uint) error
}

//ConnectorFunc is used to inject a database connection method into NewDatabaseConnection
type ConnectorFunc func() (*gorm.DB, error)

func gormConfig() *gorm.Config {
	return &gorm.Config{
		Logger: logger.New(
			log.StandardLogger(),
			logger.Config{
				SlowThreshold: time.Second,
				LogLevel:      logger.Warn,
				Colorful:      false,
			},
		),
	}
}

//NewSQLiteConnector opens a connection to a local sqlite database file
func NewSQLiteConnector(path string) ConnectorFunc {
	return func() (*gorm.DB, error) {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}

		db, err := gorm.Open(sqlite.Open(path+"?_busy_timeout=5000"), gormConfig())
		if err != nil {
			return nil, err
		}

		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}

		// sqlite only allows a single writer, so transactions are serialized on one connection
		sqlDB.SetMaxOpenConns(1)

		return db, nil
	}
}

//PostgresConfig holds the parameters needed to connect to a PostgreSQL server
type PostgresConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

//NewPostgreSQLConnector opens a connection to a postgresql database
func NewPostgreSQLConnector(cfg PostgresConfig) ConnectorFunc {
	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}

	dsn := fmt.Sprintf("host=%s port=%s user=%s dbname=%s sslmode=%s password=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.DBName, sslMode, cfg.Password,
	)

	return func() (*gorm.DB, error) {
		for attempt := 1; ; attempt++ {
			db, err := gorm.Open(postgres.Open(dsn), gormConfig())
			if err == nil {
				return db, nil
			}

			if attempt == 3 {
				return nil, err
			}

			log.Infof("Failed to connect to database %s:%s (attempt %d). Retrying in 3 seconds ...", cfg.Host, cfg.Port, attempt)
			time.Sleep(3 * time.Second)
		}
	}
}

type myDB struct {
	impl *gorm.DB
}

//NewDatabaseConnection creates and returns a new instance of the Datastore interface
func NewDatabaseConnection(connect ConnectorFunc) (Datastore, error) {
	impl, err := connect()
	if err != nil {
		return nil, err
	}

	if err = impl.AutoMigrate(&persistence.ProcessedAgentData{}); err != nil {
		return nil, fmt.Errorf("migrate schema: %w", err)
	}

	return &myDB{impl: impl}, nil
}

func toModel(data readings.ClassifiedReading) persistence.ProcessedAgentData {
	return persistence.ProcessedAgentData{
		RoadState: string(data.RoadState),
		X:         data.Reading.Accelerometer.X,
		Y:         data.Reading.Accelerometer.Y,
		Z:         data.Reading.Accelerometer.Z,
		Latitude:  data.Reading.GPS.Latitude,
		Longitude: data.Reading.GPS.Longitude,
		Timestamp: data.Reading.Timestamp.UTC(),
	}
}

func toRecord(row persistence.ProcessedAgentData) readings.StoredRecord {
	return readings.StoredRecord{
		ID:        row.ID,
		RoadState: readings.RoadState(row.RoadState),
		X:         row.X,
		Y:         row.Y,
		Z:         row.Z,
		Latitude:  row.Latitude,
		Longitude: row.Longitude,
		Timestamp: row.Timestamp.UTC(),
	}
}

//CreateProcessedAgentData inserts the whole batch in a single transaction, in input order.
//Either every record is committed or none of them are.
func (db *myDB) CreateProcessedAgentData(ctx context.Context, batch []readings.ClassifiedReading) ([]readings.StoredRecord, error) {
	if len(batch) == 0 {
		return []readings.StoredRecord{}, nil
	}

	rows := make([]persistence.ProcessedAgentData, len(batch))
	for idx := range batch {
		rows[idx] = toModel(batch[idx])
	}

	err := db.impl.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for idx := range rows {
			result := tx.Create(&rows[idx])
			if result.Error != nil {
				return fmt.Errorf("insert record %d of %d: %w", idx+1, len(rows), result.Error)
			}
			if result.RowsAffected != 1 {
				return fmt.Errorf("insert record %d of %d affected %d rows", idx+1, len(rows), result.RowsAffected)
			}
		}
		return nil
	})

	if err != nil {
		return nil, &PersistenceError{Op: "commit", Err: err}
	}

	records := make([]readings.StoredRecord, len(rows))
	for idx := range rows {
		records[idx] = toRecord(rows[idx])
	}

	log.Infof("Committed %d processed agent data records (ids %d-%d).", len(records), records[0].ID, records[len(records)-1].ID)

	return records, nil
}

func (db *myDB) GetProcessedAgentDataByID(ctx context.Context, id uint) (readings.StoredRecord, error) {
	row := persistence.ProcessedAgentData{}

	result := db.impl.WithContext(ctx).First(&row, id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return readings.StoredRecord{}, fmt.Errorf("%w: id %d", ErrNotFound, id)
		}
		return readings.StoredRecord{}, &PersistenceError{Op: "get", Err: result.Error}
	}

	return toRecord(row), nil
}

func (db *myDB) ListProcessedAgentData(ctx context.Context) ([]readings.StoredRecord, error) {
	rows := []persistence.ProcessedAgentData{}

	result := db.impl.WithContext(ctx).Order("id").Find(&rows)
	if result.Error != nil {
		return nil, &PersistenceError{Op: "list", Err: result.Error}
	}

	records := make([]readings.StoredRecord, 0, len(rows))
	for _, row := range rows {
		records = append(records, toRecord(row))
	}

	return records, nil
}

func (db *myDB) UpdateProcessedAgentData(ctx context.Context, id uint, data readings.ClassifiedReading) (readings.StoredRecord, error) {
	row := persistence.ProcessedAgentData{}

	err := db.impl.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.First(&row, id)
		if result.Error != nil {
			return result.Error
		}

		updated := toModel(data)
		updated.Model = row.Model
		row = updated

		return tx.Save(&row).Error
	})

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return readings.StoredRecord{}, fmt.Errorf("%w: id %d", ErrNotFound, id)
		}
		return readings.StoredRecord{}, &PersistenceError{Op: "update", Err: err}
	}

	return toRecord(row), nil
}

func (db *myDB) DeleteProcessedAgentData(ctx context.Context, id uint) error {
	result := db.impl.WithContext(ctx).Delete(&persistence.ProcessedAgentData{}, id)
	if result.Error != nil {
		return &PersistenceError{Op: "delete", Err: result.Error}
	}

	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: id %d", ErrNotFound, id)
	}

	return nil
}
