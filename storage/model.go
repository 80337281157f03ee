////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file                                                               //
////////////////////////////////////////////////////////////////////////////////

package storage

import (
	"time"
)

// Message defines the database representation of a single Message.
//
// Reactions are stored denormalized as a JSON-encoded list of
// (userId, emoji) pairs; the server is authoritative for the set and always
// replaces it wholesale, so there is nothing to query row-by-row.
type Message struct {
	Id            int64     `gorm:"primaryKey;autoIncrement:true"`
	MessageId     string    `gorm:"uniqueIndex;not null"`
	PeerId        string    `gorm:"index;not null"`
	SenderId      string    `gorm:"index;not null"`
	Kind          uint16    `gorm:"not null"`
	Body          string    `gorm:"not null"`
	AttachmentRef string    `gorm:""`
	ReplyToId     string    `gorm:""`
	Reactions     []byte    `gorm:""`
	Status        uint8     `gorm:"not null"`
	Timestamp     time.Time `gorm:"index;not null"`
	Edited        bool      `gorm:"not null"`
	Deleted       bool      `gorm:"not null"`
}

// TableName overrides the table name used by Message.
func (Message) TableName() string {
	return "dm_messages"
}
