package setup

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/keshav-const/inkwell-code/internal/domain"
)

// MigrateDB 迁移全部数据库表结构。
// 所有模型的索引列都限制了长度 (varchar(191) / varchar(36))，
// 可以安全地交给 AutoMigrate 处理，无需手写建表 SQL。
func MigrateDB(db *gorm.DB) error {
	if db == nil {
		return fmt.Errorf("cannot migrate database with nil DB connection")
	}

	err := db.AutoMigrate(
		&domain.User{},
		&domain.Room{},
		&domain.File{},
		&domain.ChatMessage{},
		&domain.RoomHistory{},
	)
	if err != nil {
		return fmt.Errorf("failed to auto-migrate tables: %w", err)
	}

	logrus.Info("Database migration completed successfully")
	return nil
}
