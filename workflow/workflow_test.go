package workflow

import (
	"bytes"
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"shareclass_hedging/api"
	"shareclass_hedging/approval"
	"shareclass_hedging/exposure"
	"shareclass_hedging/hedging"
	"shareclass_hedging/logs"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	fxCSV = "ShareClassId,ShareClassName,CurrencyPair,Amount\n" +
		"SC01,Fund A,EURUSD,1000000\n" +
		"SC02,Fund B,GBPUSD,250000\n" +
		"SC01,Fund A,EURUSD,500000\n"
	counterpartyCSV = "ShareClassId,ShareClassName,Exposure\n" +
		"SC01,Fund A,1200000\n" +
		"SC02,Fund B,300000\n"
)

func fixedEngine() *hedging.Engine {
	return hedging.NewEngine(hedging.WithClock(func() time.Time {
		return time.Date(2026, time.October, 18, 9, 0, 0, 0, time.UTC)
	}))
}

func newTestWorkflow(t *testing.T, client api.Client) *Workflow {
	t.Helper()
	w, err := New(context.Background(), client,
		WithCalculator(fixedEngine()),
		WithSessionID("test-session"),
		WithCallTimeout(time.Second))
	require.NoError(t, err)
	return w
}

func loadBoth(t *testing.T, w *Workflow) {
	t.Helper()
	require.NoError(t, w.LoadCounterpartyCSV(strings.NewReader(counterpartyCSV)))
	require.NoError(t, w.LoadFxCSV(strings.NewReader(fxCSV)))
}

func approveAll(t *testing.T, w *Workflow) {
	t.Helper()
	for _, name := range approval.Roster {
		require.NoError(t, w.Approve(context.Background(), name))
	}
}

func advanceTo(t *testing.T, w *Workflow, target Stage) {
	t.Helper()
	for w.Stage() < target {
		before := w.Stage()
		require.NoError(t, w.Advance(context.Background()))
		require.NotEqual(t, before, w.Stage(), "advance stuck at %s", before)
	}
}

func TestNewStartsAtFirstStageWithoutCallsWhenEmpty(t *testing.T) {
	client := api.NewMockClient(0)
	w := newTestWorkflow(t, client)

	assert.Equal(t, FirstStage, w.Stage())
	assert.True(t, w.IsFirst())
	assert.False(t, w.IsLast())
	assert.Empty(t, client.Ops())

	snap := w.Snapshot()
	assert.Equal(t, "test-session", snap.SessionID)
	assert.NotNil(t, snap.FxData)
	assert.NotNil(t, snap.CounterpartyData)
	assert.Nil(t, snap.Instructions)
	assert.Empty(t, snap.ExecutionResult)
	assert.Nil(t, snap.ReportingSnapshot)
	require.Len(t, snap.Approvals, len(approval.Roster))
	for _, a := range snap.Approvals {
		assert.Equal(t, approval.Pending, a.Status)
	}
}

func TestNewGeneratesSessionID(t *testing.T) {
	w, err := New(context.Background(), api.NewMockClient(0))
	require.NoError(t, err)
	assert.NotEmpty(t, w.Snapshot().SessionID)
}

func TestFullRunReachesCompleteAndStaysThere(t *testing.T) {
	client := api.NewMockClient(0)
	w := newTestWorkflow(t, client)
	loadBoth(t, w)

	advanceTo(t, w, StageApprovals)
	approveAll(t, w)
	advanceTo(t, w, LastStage)

	assert.True(t, w.IsLast())
	assert.False(t, w.CanAdvance())
	require.NoError(t, w.Advance(context.Background()))
	assert.Equal(t, LastStage, w.Stage())

	want := []string{
		api.OpPersistFxData,
		api.OpPersistValidation,
		api.OpPersistCalculatedInstructions,
		api.OpPersistTradeInstructions,
		api.OpRecordApprovalAudit,
		api.OpRecordApprovalAudit,
		api.OpRecordApprovalAudit,
		api.OpRecordApprovalAudit,
		api.OpBookMovements,
		api.OpFetchReportingSnapshot,
	}
	assert.Equal(t, want, client.Ops())

	snap := w.Snapshot()
	require.Len(t, snap.Instructions, 3)
	assert.Equal(t, "Executed Forward EURUSD 1,000,000 maturing 2027-01-18", snap.ExecutionResult)
	require.NotEmpty(t, snap.ReportingSnapshot)
	assert.Equal(t, "Mock reporting data", snap.ReportingSnapshot[0]["report"])
	assert.Len(t, client.Ledger().Bookings(), 3)
}

func TestValidationFlagReflectsBothDatasets(t *testing.T) {
	client := api.NewMockClient(0)
	w := newTestWorkflow(t, client)
	require.NoError(t, w.LoadFxCSV(strings.NewReader(fxCSV)))

	advanceTo(t, w, StageValidate)

	calls := client.Calls()
	require.NotEmpty(t, calls)
	last := calls[len(calls)-1]
	assert.Equal(t, api.OpPersistValidation, last.Op)
	assert.Equal(t, false, last.Payload)
}

func TestAdvanceBlockedAtApprovalsUntilUnanimous(t *testing.T) {
	client := api.NewMockClient(0)
	w := newTestWorkflow(t, client)
	loadBoth(t, w)
	advanceTo(t, w, StageApprovals)

	calls := len(client.Ops())
	assert.False(t, w.CanAdvance())
	require.NoError(t, w.Advance(context.Background()))
	assert.Equal(t, StageApprovals, w.Stage())
	assert.Len(t, client.Ops(), calls, "blocked advance must not call out")

	ctx := context.Background()
	for _, name := range approval.Roster[:3] {
		require.NoError(t, w.Approve(ctx, name))
	}
	require.NoError(t, w.Reject(ctx, approval.Roster[3]))
	require.NoError(t, w.Advance(ctx))
	assert.Equal(t, StageApprovals, w.Stage())
	assert.False(t, w.AllApproved())

	require.NoError(t, w.Approve(ctx, approval.Roster[3]))
	assert.True(t, w.CanAdvance())
	require.NoError(t, w.Advance(ctx))
	assert.Equal(t, StageExecute, w.Stage())
}

func TestRetreatAtFirstStageIsNoop(t *testing.T) {
	client := api.NewMockClient(0)
	w := newTestWorkflow(t, client)

	require.NoError(t, w.Retreat(context.Background()))
	assert.Equal(t, FirstStage, w.Stage())
	assert.Empty(t, client.Ops())
}

func TestAdvanceThenRetreatRestoresStage(t *testing.T) {
	client := api.NewMockClient(0)
	w := newTestWorkflow(t, client)
	loadBoth(t, w)
	ctx := context.Background()

	for s := FirstStage; s < StageApprovals; s++ {
		require.Equal(t, s, w.Stage())
		require.NoError(t, w.Advance(ctx))
		require.NoError(t, w.Retreat(ctx))
		assert.Equal(t, s, w.Stage())
		require.NoError(t, w.Advance(ctx))
	}
}

func TestRetreatRerunsLowerStageAction(t *testing.T) {
	client := api.NewMockClient(0)
	w := newTestWorkflow(t, client)
	loadBoth(t, w)
	advanceTo(t, w, StageTradeInstructions)

	require.NoError(t, w.Retreat(context.Background()))
	assert.Equal(t, StageCalculate, w.Stage())

	ops := client.Ops()
	assert.Equal(t, api.OpPersistCalculatedInstructions, ops[len(ops)-1])

	require.NoError(t, w.Retreat(context.Background()))
	ops = client.Ops()
	assert.Equal(t, api.OpPersistValidation, ops[len(ops)-1])
	assert.Equal(t, StageValidate, w.Stage())
	assert.NotNil(t, w.Snapshot().Instructions, "moving back keeps computed instructions")
}

func TestRetreatToFirstStagePersistsCounterpartyData(t *testing.T) {
	client := api.NewMockClient(0)
	w := newTestWorkflow(t, client)
	loadBoth(t, w)

	require.NoError(t, w.Advance(context.Background()))
	require.NoError(t, w.Retreat(context.Background()))

	assert.Equal(t, []string{api.OpPersistFxData, api.OpPersistCounterpartyData}, client.Ops())
}

func TestEmptyFxDataSkipsTradeAndExecution(t *testing.T) {
	client := api.NewMockClient(0)
	w := newTestWorkflow(t, client)
	advanceTo(t, w, StageApprovals)
	approveAll(t, w)
	advanceTo(t, w, LastStage)

	snap := w.Snapshot()
	assert.NotNil(t, snap.Instructions)
	assert.Empty(t, snap.Instructions)
	assert.Empty(t, snap.ExecutionResult)
	assert.NotContains(t, client.Ops(), api.OpBookMovements)
	assert.NotContains(t, client.Ops(), api.OpPersistFxData)
	assert.Contains(t, client.Ops(), api.OpPersistCalculatedInstructions)
	assert.Contains(t, client.Ops(), api.OpPersistTradeInstructions)
}

func TestCollaboratorFailurePropagatesAsStageError(t *testing.T) {
	client := api.NewMockClient(0)
	w := newTestWorkflow(t, client)
	loadBoth(t, w)
	client.FailOn(api.OpPersistFxData, errors.New("disk full"))

	err := w.Advance(context.Background())
	require.Error(t, err)

	var stageErr *StageError
	require.True(t, errors.As(err, &stageErr))
	assert.Equal(t, StageFxData, stageErr.Stage)
	assert.Equal(t, api.OpPersistFxData, stageErr.Op)
	assert.True(t, errors.Is(err, api.ErrCollaborator))
	assert.Contains(t, err.Error(), "disk full")

	assert.Equal(t, StageFxData, w.Stage(), "stage is not rolled back")

	client.FailOn(api.OpPersistFxData, nil)
	require.NoError(t, w.Advance(context.Background()))
	assert.Equal(t, StageValidate, w.Stage())
}

func TestCalculateFailureKeepsInstructionsInMemory(t *testing.T) {
	client := api.NewMockClient(0)
	w := newTestWorkflow(t, client)
	loadBoth(t, w)
	advanceTo(t, w, StageValidate)
	client.FailOn(api.OpPersistCalculatedInstructions, errors.New("timeout"))

	err := w.Advance(context.Background())
	require.Error(t, err)
	assert.Equal(t, StageCalculate, w.Stage())
	assert.Len(t, w.Snapshot().Instructions, 3)
}

func TestCallTimeoutAppliesPerCall(t *testing.T) {
	client := api.NewMockClient(200 * time.Millisecond)
	w, err := New(context.Background(), client, WithCallTimeout(10*time.Millisecond))
	require.NoError(t, err)
	require.NoError(t, w.LoadFxCSV(strings.NewReader(fxCSV)))

	err = w.Advance(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.Equal(t, StageFxData, w.Stage())
}

func TestApproveRecordsAudit(t *testing.T) {
	client := api.NewMockClient(0)
	w := newTestWorkflow(t, client)
	ctx := context.Background()

	require.NoError(t, w.Approve(ctx, "PM Approver"))
	require.NoError(t, w.Reject(ctx, "PAMSA Approver"))

	audit := client.Audit()
	require.Len(t, audit, 2)
	assert.Equal(t, "PM Approver", audit[0].ApproverName)
	assert.Equal(t, approval.Approved, audit[0].Status)
	assert.Equal(t, "PAMSA Approver", audit[1].ApproverName)
	assert.Equal(t, approval.Rejected, audit[1].Status)
	assert.False(t, audit[0].Timestamp.IsZero())

	statuses := w.Approvals()
	assert.Equal(t, approval.Approved, statuses[2].Status)
	assert.Equal(t, approval.Rejected, statuses[3].Status)
}

func TestApproveUnknownApprover(t *testing.T) {
	client := api.NewMockClient(0)
	w := newTestWorkflow(t, client)

	err := w.Approve(context.Background(), "Nobody")
	require.Error(t, err)
	assert.True(t, errors.Is(err, approval.ErrUnknownApprover))
	assert.Empty(t, client.Ops())
	for _, a := range w.Approvals() {
		assert.Equal(t, approval.Pending, a.Status)
	}
}

func TestAuditFailureKeepsStatusChange(t *testing.T) {
	client := api.NewMockClient(0)
	w := newTestWorkflow(t, client)
	client.FailOn(api.OpRecordApprovalAudit, errors.New("audit store down"))

	err := w.Approve(context.Background(), "PM Approver")
	require.Error(t, err)

	var stageErr *StageError
	require.True(t, errors.As(err, &stageErr))
	assert.Equal(t, api.OpRecordApprovalAudit, stageErr.Op)

	status, err := w.gate.StatusOf("PM Approver")
	require.NoError(t, err)
	assert.Equal(t, approval.Approved, status)
	assert.Empty(t, client.Audit())
}

func TestLoadFxCSVBuildsPivot(t *testing.T) {
	w := newTestWorkflow(t, api.NewMockClient(0))
	require.NoError(t, w.LoadFxCSV(strings.NewReader(fxCSV)))

	pivot := w.PivotedFx()
	assert.Equal(t, []string{"Fund A (EURUSD)", "Fund B (GBPUSD)"}, pivot.Columns())
	sum, ok := pivot.Get("Fund A (EURUSD)")
	require.True(t, ok)
	assert.Equal(t, "1500000", sum.String())
	assert.Len(t, w.Snapshot().FxData, 3)
}

func TestLoadCounterpartyCSVBuildsPivot(t *testing.T) {
	w := newTestWorkflow(t, api.NewMockClient(0))
	require.NoError(t, w.LoadCounterpartyCSV(strings.NewReader(counterpartyCSV)))

	pivot := w.PivotedCounterparty()
	assert.Equal(t, []string{"Fund A (Exposure)", "Fund B (Exposure)"}, pivot.Columns())
	assert.Len(t, w.Snapshot().CounterpartyData, 2)
}

func TestFailedIngestionLeavesDatasetEmpty(t *testing.T) {
	w := newTestWorkflow(t, api.NewMockClient(0))
	require.NoError(t, w.LoadFxCSV(strings.NewReader(fxCSV)))

	err := w.LoadFxCSV(strings.NewReader("h\nSC01,Fund A,EURUSD,lots\n"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, exposure.ErrFormat))

	var formatErr *exposure.FormatError
	require.True(t, errors.As(err, &formatErr))
	assert.Equal(t, 2, formatErr.Line)

	assert.Empty(t, w.Snapshot().FxData)
	assert.Equal(t, 0, w.PivotedFx().Len())

	err = w.LoadCounterpartyCSV(strings.NewReader("h\nSC01,Fund A,n/a\n"))
	require.Error(t, err)
	assert.Empty(t, w.Snapshot().CounterpartyData)
	assert.Equal(t, 0, w.PivotedCounterparty().Len())
}

func TestSetFxDataCopiesInput(t *testing.T) {
	w := newTestWorkflow(t, api.NewMockClient(0))
	in := hedging.SampleExposures()
	w.SetFxData(in)
	in[0].CurrencyPair = "XXXYYY"

	snap := w.Snapshot()
	require.Len(t, snap.FxData, 1)
	assert.Equal(t, "EURUSD", snap.FxData[0].CurrencyPair)
	assert.Equal(t, 1, w.PivotedFx().Len())
}

func TestSnapshotIsIndependent(t *testing.T) {
	w := newTestWorkflow(t, api.NewMockClient(0))
	loadBoth(t, w)

	snap := w.Snapshot()
	snap.FxData[0].CurrencyPair = "changed"
	snap.Approvals[0].Status = approval.Approved

	again := w.Snapshot()
	assert.Equal(t, "EURUSD", again.FxData[0].CurrencyPair)
	assert.Equal(t, approval.Pending, again.Approvals[0].Status)
}

func TestReadsDoNotWaitForInFlightCall(t *testing.T) {
	client := api.NewMockClient(300 * time.Millisecond)
	w, err := New(context.Background(), client)
	require.NoError(t, err)
	require.NoError(t, w.LoadFxCSV(strings.NewReader(fxCSV)))

	done := make(chan error, 1)
	go func() { done <- w.Advance(context.Background()) }()

	assert.Eventually(t, func() bool { return w.Stage() == StageFxData }, time.Second, 5*time.Millisecond)
	start := time.Now()
	_ = w.Snapshot()
	_ = w.PivotedFx()
	assert.Less(t, time.Since(start), 100*time.Millisecond)

	require.NoError(t, <-done)
	assert.Equal(t, []string{api.OpPersistFxData}, client.Ops())
}

func TestEightAdvancesReachCompleteWithApprovalsBeforeFifth(t *testing.T) {
	w := newTestWorkflow(t, api.NewMockClient(0))
	loadBoth(t, w)
	ctx := context.Background()

	for i := 1; i <= 8; i++ {
		if i == 5 {
			approveAll(t, w)
		}
		require.NoError(t, w.Advance(ctx))
		assert.Equal(t, Stage(i), w.Stage())
	}

	require.NoError(t, w.Advance(ctx))
	assert.Equal(t, StageComplete, w.Stage())
}

func TestApprovalStatusVisibleDuringAuditWrite(t *testing.T) {
	client := api.NewMockClient(300 * time.Millisecond)
	w := newTestWorkflow(t, client)

	done := make(chan error, 1)
	go func() { done <- w.Approve(context.Background(), "PM Approver") }()

	assert.Eventually(t, func() bool {
		return w.Approvals()[2].Status == approval.Approved
	}, 200*time.Millisecond, 5*time.Millisecond)
	assert.Empty(t, client.Audit())

	require.NoError(t, <-done)
	assert.Len(t, client.Audit(), 1)
}

func TestNewLogsSessionField(t *testing.T) {
	buf := &bytes.Buffer{}
	logs.SetOutput(buf)
	defer logs.SetOutput(os.Stderr)

	_, err := New(context.Background(), api.NewMockClient(0), WithSessionID("session-7"))
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "session=session-7")
	assert.Contains(t, buf.String(), "Session started at BNY Data")
}
