package data

import (
	"context"
	"os"
	"testing"
	"time"

	"tux/internal/model"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-kratos/kratos/v2/log"
	godriver "github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gormmysql "gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	selectGuildForUpdate = "SELECT \\* FROM `guilds` WHERE guild_id = \\?(.+)FOR UPDATE"
	updateGuildCounter   = "UPDATE `guilds` SET"
	insertGuildRow       = "INSERT INTO `guilds`"
	insertCaseRow        = "INSERT INTO `cases`"
)

func setupCaseRepoMock(t *testing.T) (*CaseRepo, sqlmock.Sqlmock) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	db, err := gorm.Open(gormmysql.New(gormmysql.Config{
		Conn:                      sqlDB,
		SkipInitializeWithVersion: true,
	}), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)

	return NewCaseRepo(db, log.NewStdLogger(os.Stdout)), mock
}

func guildRows(guildID string, caseCount int64) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows([]string{"guild_id", "case_count", "created_at", "updated_at"}).
		AddRow(guildID, caseCount, now, now)
}

// expectCaseInsert expects one full insert transaction: counter read
// under FOR UPDATE, counter bump to caseNumber, case row, commit.
func expectCaseInsert(mock sqlmock.Sqlmock, guildID string, caseNumber int64) {
	mock.ExpectBegin()
	mock.ExpectQuery(selectGuildForUpdate).
		WillReturnRows(guildRows(guildID, caseNumber-1))
	mock.ExpectExec(updateGuildCounter).
		WithArgs(caseNumber, sqlmock.AnyArg(), guildID).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(insertCaseRow).
		WillReturnResult(sqlmock.NewResult(7, 1))
	mock.ExpectCommit()
}

func newCaseInput(guildID string) model.NewCase {
	return model.NewCase{
		GuildID:     guildID,
		CaseType:    model.CaseBan,
		TargetID:    "target-1",
		ModeratorID: "mod-1",
		Reason:      "spamming",
	}
}

func TestCaseRepo_InsertCase_NumbersInsideLockedTransaction(t *testing.T) {
	repo, mock := setupCaseRepoMock(t)

	// Counter read (FOR UPDATE), increment and insert all happen
	// between one BEGIN/COMMIT pair, and the inserted case carries
	// the incremented number.
	expectCaseInsert(mock, "guild-1", 42)

	c, err := repo.InsertCase(context.Background(), newCaseInput("guild-1"))
	require.NoError(t, err)
	assert.Equal(t, int64(42), c.CaseNumber)
	assert.Equal(t, "guild-1", c.GuildID)
	assert.Equal(t, model.CaseActive, c.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCaseRepo_InsertCase_CreatesGuildCounterOnFirstCase(t *testing.T) {
	repo, mock := setupCaseRepoMock(t)

	mock.ExpectBegin()
	mock.ExpectQuery(selectGuildForUpdate).
		WillReturnRows(sqlmock.NewRows([]string{"guild_id", "case_count", "created_at", "updated_at"}))
	mock.ExpectExec(insertGuildRow).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(updateGuildCounter).
		WithArgs(int64(1), sqlmock.AnyArg(), "guild-new").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(insertCaseRow).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	c, err := repo.InsertCase(context.Background(), newCaseInput("guild-new"))
	require.NoError(t, err)
	assert.Equal(t, int64(1), c.CaseNumber)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCaseRepo_InsertCase_RetriesDeadlock(t *testing.T) {
	repo, mock := setupCaseRepoMock(t)

	// First attempt deadlocks on the counter row and rolls back; the
	// whole transaction is retried and succeeds.
	mock.ExpectBegin()
	mock.ExpectQuery(selectGuildForUpdate).
		WillReturnError(&godriver.MySQLError{Number: 1213, Message: "Deadlock found when trying to get lock"})
	mock.ExpectRollback()
	expectCaseInsert(mock, "guild-1", 42)

	c, err := repo.InsertCase(context.Background(), newCaseInput("guild-1"))
	require.NoError(t, err)
	assert.Equal(t, int64(42), c.CaseNumber)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCaseRepo_InsertCase_RetriesDuplicateNumber(t *testing.T) {
	repo, mock := setupCaseRepoMock(t)

	// A concurrent writer got number 42 in first: the insert hits the
	// unique (guild_id, case_number) index and the retry reads the
	// bumped counter.
	mock.ExpectBegin()
	mock.ExpectQuery(selectGuildForUpdate).
		WillReturnRows(guildRows("guild-1", 41))
	mock.ExpectExec(updateGuildCounter).
		WithArgs(int64(42), sqlmock.AnyArg(), "guild-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(insertCaseRow).
		WillReturnError(&godriver.MySQLError{Number: 1062, Message: "Duplicate entry '42' for key 'uq_guild_case'"})
	mock.ExpectRollback()
	expectCaseInsert(mock, "guild-1", 43)

	c, err := repo.InsertCase(context.Background(), newCaseInput("guild-1"))
	require.NoError(t, err)
	assert.Equal(t, int64(43), c.CaseNumber)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCaseRepo_InsertCase_DoesNotRetryOtherErrors(t *testing.T) {
	repo, mock := setupCaseRepoMock(t)

	mock.ExpectBegin()
	mock.ExpectQuery(selectGuildForUpdate).
		WillReturnError(&godriver.MySQLError{Number: 1064, Message: "You have an error in your SQL syntax"})
	mock.ExpectRollback()

	c, err := repo.InsertCase(context.Background(), newCaseInput("guild-1"))
	require.Error(t, err)
	assert.Nil(t, c)
	assert.Contains(t, err.Error(), "failed to insert case")
	assert.NoError(t, mock.ExpectationsWereMet(), "a non-retriable error must not start another transaction")
}
