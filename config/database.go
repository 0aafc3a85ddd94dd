package config

import (
	"os"
	"path/filepath"

	"github.com/GrainArc/MapEdit/logger"
	"github.com/GrainArc/MapEdit/models"
	"github.com/pkg/errors"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
	"gorm.io/gorm/schema"
)

// OpenDatabase 按配置打开要素库并迁移表结构
func OpenDatabase(c *Config) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch c.Driver {
	case DriverPostgres:
		dialector = postgres.Open(c.DSN())
	case DriverMysql:
		dialector = mysql.Open(c.MysqlDSN())
	case DriverSqlite, "":
		if dir := filepath.Dir(c.SqlitePath); dir != "." {
			if err := os.MkdirAll(dir, os.ModePerm); err != nil {
				return nil, errors.Wrap(err, "创建存储目录失败")
			}
		}
		logger.L().Infof("数据库路径: %s", c.SqlitePath)
		dialector = sqlite.Open(c.SqlitePath)
	default:
		return nil, errors.Errorf("unsupported driver %q", c.Driver)
	}

	level := gormlogger.Silent
	if c.LogLevel == "debug" {
		level = gormlogger.Info
	}
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(level),
		NamingStrategy: schema.NamingStrategy{
			SingularTable: true,
		},
	})
	if err != nil {
		return nil, errors.Wrap(err, "连接数据库失败")
	}

	if err := models.Migrate(db); err != nil {
		return nil, errors.Wrap(err, "数据库迁移失败")
	}
	logger.L().Info("数据库初始化成功")
	return db, nil
}
