package biz

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"tux/internal/conf"
	"tux/internal/data"
	"tux/internal/model"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockCaseRepo is a mock implementation of CaseRepo for testing.
type MockCaseRepo struct {
	mock.Mock
}

func (m *MockCaseRepo) InsertCase(ctx context.Context, nc model.NewCase) (*data.Case, error) {
	args := m.Called(ctx, nc)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*data.Case), args.Error(1)
}

func (m *MockCaseRepo) GetCase(ctx context.Context, guildID string, caseNumber int64) (*data.Case, error) {
	args := m.Called(ctx, guildID, caseNumber)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*data.Case), args.Error(1)
}

func (m *MockCaseRepo) ListCases(ctx context.Context, guildID, targetID string, limit int) ([]*data.Case, error) {
	args := m.Called(ctx, guildID, targetID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*data.Case), args.Error(1)
}

func (m *MockCaseRepo) SetCaseStatus(ctx context.Context, id int64, status model.CaseStatus) error {
	args := m.Called(ctx, id, status)
	return args.Error(0)
}

func (m *MockCaseRepo) ListExpiredTempBans(ctx context.Context, now time.Time) ([]*data.Case, error) {
	args := m.Called(ctx, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*data.Case), args.Error(1)
}

// recorder captures the order of observable side effects.
type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) add(e string) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

func (r *recorder) list() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

type fakeDM struct {
	r  *recorder
	ok bool
}

func (d *fakeDM) SendDM(ctx context.Context, targetID, guildID, verb, reason string) bool {
	d.r.add("dm")
	return d.ok
}

type fakeEmbeds struct {
	r  *recorder
	id string

	mu       sync.Mutex
	embeds   []model.Embed
	failures []string
}

func (f *fakeEmbeds) SendEmbed(ctx context.Context, inv model.Invocation, embed model.Embed, logType model.LogType) string {
	f.r.add("embed")
	f.mu.Lock()
	f.embeds = append(f.embeds, embed)
	f.mu.Unlock()
	return f.id
}

func (f *fakeEmbeds) SendErrorResponse(ctx context.Context, inv model.Invocation, message string) {
	f.r.add("error")
	f.mu.Lock()
	f.failures = append(f.failures, message)
	f.mu.Unlock()
}

type fakeAudit struct {
	mu            sync.Mutex
	created       []int64
	persistFailed int
	expired       int
	opened        []model.CircuitOpenedEvent
	closed        []model.CircuitClosedEvent
}

func (a *fakeAudit) LogCaseCreated(ctx context.Context, guildID string, caseNumber int64, caseType model.CaseType, moderatorID, targetID string) {
	a.mu.Lock()
	a.created = append(a.created, caseNumber)
	a.mu.Unlock()
}

func (a *fakeAudit) LogCasePersistFailed(ctx context.Context, guildID string, caseType model.CaseType, targetID string, reason error) {
	a.mu.Lock()
	a.persistFailed++
	a.mu.Unlock()
}

func (a *fakeAudit) LogTempBanExpired(ctx context.Context, guildID string, caseNumber int64, targetID string) {
	a.mu.Lock()
	a.expired++
	a.mu.Unlock()
}

func (a *fakeAudit) LogCircuitOpened(ctx context.Context, ev model.CircuitOpenedEvent) {
	a.mu.Lock()
	a.opened = append(a.opened, ev)
	a.mu.Unlock()
}

func (a *fakeAudit) LogCircuitClosed(ctx context.Context, ev model.CircuitClosedEvent) {
	a.mu.Lock()
	a.closed = append(a.closed, ev)
	a.mu.Unlock()
}

type executorFixture struct {
	r      *recorder
	cases  *MockCaseRepo
	dm     *fakeDM
	embeds *fakeEmbeds
	audit  *fakeAudit
	locks  *LockManager
	exec   *CaseExecutor
}

func newExecutorFixture(lockConf *conf.Moderation) *executorFixture {
	logger := log.NewStdLogger(os.Stdout)
	r := &recorder{}
	classifier := &stubClassifier{}

	retryH, _ := newTestRetryHandler(nil, classifier)
	locks := newTestLockManager(lockConf)
	cases := new(MockCaseRepo)
	dm := &fakeDM{r: r, ok: true}
	embeds := &fakeEmbeds{r: r, id: "msg-1"}
	audit := &fakeAudit{}
	response := NewCaseResponseHandler(embeds, logger)

	exec := NewCaseExecutor(nil, locks, retryH, cases, classifier, dm, embeds, response, audit, logger)
	return &executorFixture{
		r:      r,
		cases:  cases,
		dm:     dm,
		embeds: embeds,
		audit:  audit,
		locks:  locks,
		exec:   exec,
	}
}

func (f *executorFixture) request(caseType model.CaseType) ModActionRequest {
	return ModActionRequest{
		Invocation: model.Invocation{
			GuildID:     "guild-1",
			ChannelID:   "chan-1",
			ModeratorID: "mod-1",
		},
		CaseType: caseType,
		TargetID: "target-1",
		Reason:   "spamming",
		Actions: []model.Action{
			model.NewAction("act", func(ctx context.Context) (struct{}, error) {
				f.r.add("action")
				return struct{}{}, nil
			}),
		},
	}
}

func (f *executorFixture) expectInsert(caseNumber int64) {
	f.cases.On("InsertCase", mock.Anything, mock.Anything).Return(&data.Case{
		ID:          1,
		GuildID:     "guild-1",
		CaseNumber:  caseNumber,
		CaseType:    model.CaseBan,
		TargetID:    "target-1",
		ModeratorID: "mod-1",
	}, nil)
}

func TestExecuteModAction_RemovalDMsBeforeAction(t *testing.T) {
	f := newExecutorFixture(nil)
	f.expectInsert(7)

	err := f.exec.ExecuteModAction(context.Background(), f.request(model.CaseBan))
	require.NoError(t, err)

	// Bans DM first: once the ban lands the DM can no longer be
	// delivered.
	assert.Equal(t, []string{"dm", "action", "embed"}, f.r.list())
	f.cases.AssertExpectations(t)
}

func TestExecuteModAction_NonRemovalDMsAfterAction(t *testing.T) {
	f := newExecutorFixture(nil)
	f.expectInsert(8)

	err := f.exec.ExecuteModAction(context.Background(), f.request(model.CaseTimeout))
	require.NoError(t, err)

	assert.Equal(t, []string{"action", "dm", "embed"}, f.r.list())
}

func TestExecuteModAction_SilentSkipsDM(t *testing.T) {
	f := newExecutorFixture(nil)
	f.expectInsert(9)

	req := f.request(model.CaseBan)
	req.Silent = true
	err := f.exec.ExecuteModAction(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, []string{"action", "embed"}, f.r.list())
	require.Len(t, f.embeds.embeds, 1)
	assert.Contains(t, f.embeds.embeds[0].Description, "not notified")
}

func TestExecuteModAction_DMFailureIsNonFatal(t *testing.T) {
	f := newExecutorFixture(nil)
	f.expectInsert(10)
	f.dm.ok = false

	err := f.exec.ExecuteModAction(context.Background(), f.request(model.CaseBan))
	require.NoError(t, err)

	require.Len(t, f.embeds.embeds, 1)
	assert.Contains(t, f.embeds.embeds[0].Description, "not notified")
	f.cases.AssertExpectations(t)
}

func TestExecuteModAction_FailureReportedOnceAndReraised(t *testing.T) {
	f := newExecutorFixture(nil)

	req := f.request(model.CaseTimeout)
	req.Actions = []model.Action{
		model.NewAction("timeout", func(ctx context.Context) (struct{}, error) {
			f.r.add("action")
			return struct{}{}, errPermission
		}),
	}

	err := f.exec.ExecuteModAction(context.Background(), req)
	assert.ErrorIs(t, err, errPermission)

	// Exactly one user-visible message, no case row, no response embed.
	require.Len(t, f.embeds.failures, 1)
	assert.Equal(t, msgInsufficientPerms, f.embeds.failures[0])
	assert.Empty(t, f.embeds.embeds)
	f.cases.AssertNotCalled(t, "InsertCase", mock.Anything, mock.Anything)
}

func TestExecuteModAction_FailureMessages(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		message string
	}{
		{"permission", errPermission, msgInsufficientPerms},
		{"not_found", errNotFound, msgTargetNotFound},
		{"server_error", errServer, msgDiscordIssues},
		{"unknown", errTransient, msgDiscordIssues},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newExecutorFixture(nil)
			req := f.request(model.CaseWarn)
			req.Actions = []model.Action{
				model.NewAction("warn", func(ctx context.Context) (struct{}, error) {
					return struct{}{}, tt.err
				}),
			}

			err := f.exec.ExecuteModAction(context.Background(), req)
			assert.ErrorIs(t, err, tt.err)
			require.Len(t, f.embeds.failures, 1)
			assert.Equal(t, tt.message, f.embeds.failures[0])
		})
	}
}

func TestExecuteModAction_PersistenceFailureStillResponds(t *testing.T) {
	f := newExecutorFixture(nil)
	f.cases.On("InsertCase", mock.Anything, mock.Anything).
		Return(nil, errors.New("deadlock"))

	err := f.exec.ExecuteModAction(context.Background(), f.request(model.CaseKick))
	require.NoError(t, err, "persistence failure after the action succeeded must not fail the case")

	// The response still goes out, numbered #0, and the failure is
	// audited.
	require.Len(t, f.embeds.embeds, 1)
	assert.Contains(t, f.embeds.embeds[0].Title, "Case #0")
	assert.Equal(t, 1, f.audit.persistFailed)
	assert.Empty(t, f.audit.created)
}

func TestExecuteModAction_AuditsCreatedCase(t *testing.T) {
	f := newExecutorFixture(nil)
	f.expectInsert(42)

	err := f.exec.ExecuteModAction(context.Background(), f.request(model.CaseBan))
	require.NoError(t, err)
	assert.Equal(t, []int64{42}, f.audit.created)
}

func TestExecuteModAction_NoActionsRejected(t *testing.T) {
	f := newExecutorFixture(nil)

	req := f.request(model.CaseBan)
	req.Actions = nil
	err := f.exec.ExecuteModAction(context.Background(), req)
	assert.Error(t, err)
	f.cases.AssertNotCalled(t, "InsertCase", mock.Anything, mock.Anything)
}

func TestExecuteModAction_QueueTimeoutReported(t *testing.T) {
	f := newExecutorFixture(&conf.Moderation{
		Lock: &conf.Moderation_Lock{QueueTimeout: 50 * time.Millisecond, MaxQueueSize: 5},
	})
	f.expectInsert(1)

	// Hold target-1's lock so the action has to queue.
	release := make(chan struct{})
	started := make(chan struct{})
	go func() {
		_ = f.locks.Execute(context.Background(), "target-1", func(ctx context.Context) error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started
	defer close(release)

	err := f.exec.ExecuteModAction(context.Background(), f.request(model.CaseBan))
	assert.ErrorIs(t, err, model.ErrQueueTimeout)
	require.Len(t, f.embeds.failures, 1)
	assert.Equal(t, msgQueueTimeout, f.embeds.failures[0])
	f.cases.AssertNotCalled(t, "InsertCase", mock.Anything, mock.Anything)
}

func TestExecuteModAction_SerializesPerTarget(t *testing.T) {
	f := newExecutorFixture(nil)
	f.expectInsert(1)

	var overlaps int
	var mu sync.Mutex
	inFlight := 0

	action := func(ctx context.Context) (struct{}, error) {
		mu.Lock()
		inFlight++
		if inFlight > 1 {
			overlaps++
		}
		mu.Unlock()
		time.Sleep(time.Millisecond)
		mu.Lock()
		inFlight--
		mu.Unlock()
		return struct{}{}, nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			req := f.request(model.CaseWarn)
			req.Actions = []model.Action{model.NewAction("warn", action)}
			assert.NoError(t, f.exec.ExecuteModAction(context.Background(), req))
		}()
	}
	wg.Wait()

	assert.Zero(t, overlaps, "same-target actions must not overlap")
}
