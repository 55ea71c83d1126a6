package client

import (
	"log"
	"strings"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"groupbuy-backend/internal/model"
)

// InitDBClient opens the database named by databaseURL. A DSN containing
// "@tcp(" is treated as MySQL, anything else as a SQLite file path.
func InitDBClient(databaseURL string) *gorm.DB {
	var dialector gorm.Dialector
	if strings.Contains(databaseURL, "@tcp(") {
		dialector = mysql.Open(databaseURL)
	} else {
		dialector = sqlite.Open(databaseURL)
	}

	db, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		log.Fatal("failed to connect to database:", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		log.Fatal(err)
	}

	// Connection pool (important for payment callbacks)
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(50)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := db.AutoMigrate(
		&model.Product{},
		&model.Group{},
		&model.Order{},
		&model.OrderItem{},
		&model.PaymentIntent{},
	); err != nil {
		log.Fatal(err)
	}

	return db
}
