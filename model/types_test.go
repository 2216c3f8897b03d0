package model

import (
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func TestAutoMigrateOnBareDatabase(t *testing.T) {
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(All()...))
	assert.True(t, db.Migrator().HasColumn(&ListeningAnswer{}, "user_answer"))
	assert.True(t, db.Migrator().HasColumn(&Writing{}, "lang"))

	answer := ListeningAnswer{SessionID: 1, UserID: 1, QuestionID: 1, UserAnswer: StringList{"b", "c d"}}
	require.NoError(t, db.Create(&answer).Error)

	var got ListeningAnswer
	require.NoError(t, db.First(&got, answer.ID).Error)
	assert.Equal(t, StringList{"b", "c d"}, got.UserAnswer)
}

func TestStringListScan(t *testing.T) {
	var l StringList
	require.NoError(t, l.Scan(`{a,"b c"}`))
	assert.Equal(t, StringList{"a", "b c"}, l)

	require.NoError(t, l.Scan([]byte(`["x"]`)))
	assert.Equal(t, StringList{"x"}, l)

	require.NoError(t, l.Scan(nil))
	assert.Nil(t, l)

	assert.Error(t, l.Scan(42))
}
