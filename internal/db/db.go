package db

import (
	"log"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"github.com/syllabi/chat-platform/internal/chat"
	"github.com/syllabi/chat-platform/internal/chatbot"
	"github.com/syllabi/chat-platform/internal/kb"
	"github.com/syllabi/chat-platform/internal/models"
	"github.com/syllabi/chat-platform/internal/skill"
)

// Connect opens the MySQL connection and migrates the schema.
func Connect(dsn string) *gorm.DB {
	gdb, err := gorm.Open(mysql.Open(dsn), &gorm.Config{})
	if err != nil {
		log.Fatalf("db connect: %v", err)
	}
	if err := Migrate(gdb); err != nil {
		log.Fatalf("db migrate: %v", err)
	}
	return gdb
}

// Migrate creates/updates all tables. Shared with tests, which run it
// against in-memory sqlite.
func Migrate(gdb *gorm.DB) error {
	return gdb.AutoMigrate(
		&models.User{},
		&chatbot.Chatbot{},
		&chatbot.ConnectedIntegration{},
		&chatbot.ChannelLink{},
		&skill.Skill{},
		&skill.Association{},
		&skill.Execution{},
		&chat.Session{},
		&chat.Message{},
		&kb.ContentSource{},
		&kb.Chunk{},
	)
}
