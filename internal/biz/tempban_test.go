package biz

import (
	"context"
	"errors"
	"os"
	"testing"

	"tux/internal/data"
	"tux/internal/model"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type fakeGateway struct {
	r        *recorder
	unbanErr error
}

func (g *fakeGateway) UnbanAction(guildID, userID string) model.Action {
	return model.NewAction("unban", func(ctx context.Context) (struct{}, error) {
		g.r.add("unban:" + userID)
		return struct{}{}, g.unbanErr
	})
}

func newTempBanFixture() (*executorFixture, *fakeGateway, *TempBanExpiryTask) {
	f := newExecutorFixture(nil)
	gw := &fakeGateway{r: f.r}
	task := NewTempBanExpiryTask(f.cases, f.exec, gw, f.audit, log.NewStdLogger(os.Stdout))
	return f, gw, task
}

func expiredCase(id, caseNumber int64, targetID string) *data.Case {
	return &data.Case{
		ID:          id,
		GuildID:     "guild-1",
		CaseNumber:  caseNumber,
		CaseType:    model.CaseTempBan,
		TargetID:    targetID,
		ModeratorID: "mod-1",
		Status:      model.CaseActive,
	}
}

func TestExpireTempBans_NoneExpired(t *testing.T) {
	f, _, task := newTempBanFixture()
	f.cases.On("ListExpiredTempBans", mock.Anything, mock.Anything).
		Return([]*data.Case{}, nil)

	err := task.ExpireTempBans(context.Background())
	assert.NoError(t, err)
	f.cases.AssertNotCalled(t, "SetCaseStatus", mock.Anything, mock.Anything, mock.Anything)
}

func TestExpireTempBans_LiftsBanAndDeactivatesCase(t *testing.T) {
	f, _, task := newTempBanFixture()
	f.cases.On("ListExpiredTempBans", mock.Anything, mock.Anything).
		Return([]*data.Case{expiredCase(11, 3, "target-1")}, nil)
	f.expectInsert(4)
	f.cases.On("SetCaseStatus", mock.Anything, int64(11), model.CaseInactive).Return(nil)

	err := task.ExpireTempBans(context.Background())
	require.NoError(t, err)

	// The unban ran through the executor and never DMed the target.
	events := f.r.list()
	assert.Contains(t, events, "unban:target-1")
	assert.NotContains(t, events, "dm")
	assert.Equal(t, 1, f.audit.expired)
	f.cases.AssertExpectations(t)
}

func TestExpireTempBans_OneFailureDoesNotStopBatch(t *testing.T) {
	f, gw, task := newTempBanFixture()
	f.cases.On("ListExpiredTempBans", mock.Anything, mock.Anything).
		Return([]*data.Case{
			expiredCase(1, 1, "target-1"),
			expiredCase(2, 2, "target-2"),
		}, nil)
	// Every unban fails with a permission error: not retried, reported
	// per case, and the batch still visits every entry.
	gw.unbanErr = errPermission

	err := task.ExpireTempBans(context.Background())
	assert.NoError(t, err, "batch-level errors are logged per case, not returned")

	events := f.r.list()
	assert.Contains(t, events, "unban:target-1")
	assert.Contains(t, events, "unban:target-2")
	assert.Equal(t, 0, f.audit.expired)
	f.cases.AssertNotCalled(t, "SetCaseStatus", mock.Anything, mock.Anything, mock.Anything)
}

func TestExpireTempBans_ListFailure(t *testing.T) {
	f, _, task := newTempBanFixture()
	f.cases.On("ListExpiredTempBans", mock.Anything, mock.Anything).
		Return(nil, errors.New("db down"))

	err := task.ExpireTempBans(context.Background())
	assert.Error(t, err)
}
