package db

import (
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type Storage struct {
	db         *gorm.DB
	notCloseDB bool
}

type Option struct {
	DBPath        string
	OutDB         *gorm.DB
	NotCloseOutDB bool
}

func NewStorage(opt Option, isVerbose bool, table ...any) (*Storage, error) {
	if opt.DBPath != "" {
		loglevel := logger.Error
		if isVerbose {
			loglevel = logger.Info
		}
		dsn := opt.DBPath
		if opt.DBPath != ":memory:" {
			os.MkdirAll(filepath.Dir(opt.DBPath), os.ModePerm)
			if !strings.Contains(dsn, "?") {
				// single writer, but readers poll while downloads run
				dsn += "?_busy_timeout=5000&_journal_mode=WAL"
			}
		}

		db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
			Logger: logger.New(
				log.New(os.Stdout, "\r\n", log.LstdFlags),
				logger.Config{
					SlowThreshold: time.Millisecond * 100,
					LogLevel:      loglevel,
				},
			),
			PrepareStmt: true,
		})
		if err != nil {
			return nil, err
		}
		opt.OutDB = db
	}
	err := opt.OutDB.Migrator().AutoMigrate(table...)
	if err != nil {
		return nil, err
	}
	return &Storage{
		db:         opt.OutDB,
		notCloseDB: opt.NotCloseOutDB,
	}, nil
}

func (d *Storage) GormDB() *gorm.DB {
	return d.db
}

func (d *Storage) Close() {
	if d.notCloseDB {
		return
	}
	sqlDB, err := d.db.DB()
	if err != nil {
		return
	}
	sqlDB.Close()
}
