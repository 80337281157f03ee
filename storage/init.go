////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file                                                               //
////////////////////////////////////////////////////////////////////////////////

// Handles low level database control and interfaces

package storage

import (
	"time"

	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"gitlab.com/elixxir/dmsync/dm"
)

// NewArchive initializes a [dm.Archive] backed by a SQLite database at the
// given path. An empty path selects a temporary in-memory database.
func NewArchive(dbFilePath string) (dm.Archive, error) {
	useTemporary := len(dbFilePath) == 0
	model, err := newImpl(dbFilePath, useTemporary)
	return dm.Archive(model), err
}

// If useTemporary is set to true, this will use an in-RAM database.
func newImpl(dbFilePath string, useTemporary bool) (*impl, error) {
	if useTemporary {
		dbFilePath = temporaryDbPath
		jww.WARN.Printf("[DM SQL] No database file path specified! " +
			"Using temporary in-memory database")
	}

	// Create the database connection
	db, err := gorm.Open(sqlite.Open(dbFilePath), &gorm.Config{
		Logger: logger.New(jww.TRACE, logger.Config{LogLevel: logger.Info}),
	})
	if err != nil {
		return nil, errors.Errorf(
			"Unable to initialize database backend: %+v", err)
	}

	// Enable foreign keys because they are disabled in SQLite by default
	if err = db.Exec("PRAGMA foreign_keys = ON", nil).Error; err != nil {
		return nil, err
	}

	// Enable Write Ahead Logging to enable multiple DB connections
	if err = db.Exec("PRAGMA journal_mode = WAL;", nil).Error; err != nil {
		return nil, err
	}

	// Get and configure the internal database ConnPool
	sqlDb, err := db.DB()
	if err != nil {
		return nil, errors.Errorf(
			"Unable to configure database connection pool: %+v", err)
	}
	sqlDb.SetMaxIdleConns(5)
	sqlDb.SetMaxOpenConns(10)
	sqlDb.SetConnMaxIdleTime(5 * time.Minute)
	sqlDb.SetConnMaxLifetime(10 * time.Minute)

	// Initialize the database schema
	if err = db.AutoMigrate(&Message{}); err != nil {
		return nil, err
	}

	jww.INFO.Printf("[DM SQL] Database backend initialized successfully")
	return &impl{db: db}, nil
}
