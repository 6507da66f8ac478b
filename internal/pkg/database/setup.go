package database

import (
	"fmt"
	"time"

	"github.com/ManuelReschke/PlaceFox/app/models"
	"github.com/ManuelReschke/PlaceFox/internal/pkg/env"
	"github.com/cockroachdb/errors"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

const maxRetries = 5
const retryDelay = 5 * time.Second

var db *gorm.DB

// Models lists every table owned by the billing service.
func Models() []interface{} {
	return []interface{}{
		&models.Subscriber{},
		&models.BillingEvent{},
		&models.Invoice{},
		&models.SubscriptionHistory{},
		&models.Notification{},
		&models.ReferralConversion{},
	}
}

// DSN builds the MySQL data source name from the environment.
func DSN() string {
	// "user:pass@tcp(127.0.0.1:3306)/dbname?charset=utf8mb4&parseTime=True&loc=UTC"
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
		env.GetEnv("DB_USER", ""),
		env.GetEnv("DB_PASSWORD", ""),
		env.GetEnv("DB_HOST", "127.0.0.1"),
		env.GetEnv("DB_PORT", "3306"),
		env.GetEnv("DB_NAME", ""),
	)
}

// SetupDatabase connects to MySQL with retries and, unless DB_AUTO_MIGRATE is
// "false", auto-migrates the billing tables.
func SetupDatabase() (*gorm.DB, error) {
	var err error
	dsn := DSN()

	for i := 0; i < maxRetries; i++ {
		db, err = gorm.Open(mysql.New(mysql.Config{
			DSN:                       dsn,
			DefaultStringSize:         256,
			DontSupportRenameIndex:    true,
			DontSupportRenameColumn:   true,
			SkipInitializeWithVersion: false,
		}), &gorm.Config{
			NowFunc: func() time.Time { return time.Now().UTC() },
		})
		if err == nil {
			if env.GetEnv("DB_AUTO_MIGRATE", "true") != "false" {
				if err = db.AutoMigrate(Models()...); err != nil {
					return nil, errors.Wrap(err, "auto migrate")
				}
			}
			return db, nil
		}

		log.Warnf("Failed to connect to database (try %d/%d): %v", i+1, maxRetries, err)
		if i < maxRetries-1 {
			log.Infof("Retrying in %v...", retryDelay)
			time.Sleep(retryDelay)
		}
	}
	return nil, err
}

// GetDB returns the connection opened by SetupDatabase.
func GetDB() *gorm.DB {
	return db
}
