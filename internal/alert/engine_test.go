package alert

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/shielded-scanner/internal/models"
	"github.com/shielded-scanner/internal/types"
)

type fakeAlertSource struct {
	alerts []*models.Alert
}

func (f *fakeAlertSource) ListActiveByCategory(ctx context.Context, category types.AlertCategory) ([]*models.Alert, error) {
	var out []*models.Alert
	for _, a := range f.alerts {
		if a.Active && a.Category == category {
			out = append(out, a)
		}
	}
	return out, nil
}

type fakeSink struct {
	mu      sync.Mutex
	created []*models.AlertNotification
}

func (f *fakeSink) Create(ctx context.Context, n *models.AlertNotification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	f.created = append(f.created, n)
	return nil
}

func (f *fakeSink) byAlert(alertID string) []*models.AlertNotification {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.AlertNotification
	for _, n := range f.created {
		if n.AlertID == alertID {
			out = append(out, n)
		}
	}
	return out
}

type fakeTxSource struct {
	txs           map[string]*models.ShieldedTransaction
	total         int64
	hourCount     int64
	dayCount      int64
	volume        int64
}

func (f *fakeTxSource) GetByID(ctx context.Context, id string) (*models.ShieldedTransaction, error) {
	tx, ok := f.txs[id]
	if !ok {
		return nil, errors.New("not found")
	}
	return tx, nil
}

func (f *fakeTxSource) CountAll(ctx context.Context) (int64, error) { return f.total, nil }

func (f *fakeTxSource) CountInWindow(ctx context.Context, window time.Duration) (int64, error) {
	if window == time.Hour {
		return f.hourCount, nil
	}
	return f.dayCount, nil
}

func (f *fakeTxSource) ShieldedOutputVolumeInWindow(ctx context.Context, window time.Duration) (int64, error) {
	return f.volume, nil
}

type fakeAssociations struct {
	links map[string]string // keyHash -> transactionID
}

func (f *fakeAssociations) IsAssociated(ctx context.Context, keyHash, transactionID string) (bool, error) {
	return f.links[keyHash] == transactionID, nil
}

type recordingNotifier struct {
	mu        sync.Mutex
	delivered []string // alert ids
}

func (r *recordingNotifier) Deliver(ctx context.Context, alert *models.Alert, n *models.AlertNotification) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.delivered = append(r.delivered, alert.ID)
	return true
}

func floatPtr(v float64) *float64 { return &v }

func testAlert(category types.AlertCategory, conditions models.AlertConditions) *models.Alert {
	return &models.Alert{
		ID:         uuid.New().String(),
		UserID:     "user-1",
		Category:   category,
		Conditions: conditions,
		Method:     types.MethodUI,
		Active:     true,
	}
}

func newTestEngine(t *testing.T, alerts *fakeAlertSource, txs *fakeTxSource, assoc *fakeAssociations) (*Engine, *fakeSink, *recordingNotifier) {
	t.Helper()
	if txs == nil {
		txs = &fakeTxSource{txs: map[string]*models.ShieldedTransaction{}}
	}
	if assoc == nil {
		assoc = &fakeAssociations{links: map[string]string{}}
	}
	sink := &fakeSink{}
	notifier := &recordingNotifier{}

	engine, err := NewEngine(alerts, sink, txs, assoc, notifier)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	return engine, sink, notifier
}

func shieldedRecord(id string, inputs, outputs int) *models.ShieldedTransaction {
	txType := types.TypeBinding
	if inputs == 0 {
		txType = types.TypeOutput
	} else if outputs == 0 {
		txType = types.TypeSpend
	}
	return &models.ShieldedTransaction{
		ID:              id,
		Txid:            "txid-" + id,
		BlockHeight:     500,
		ShieldedInputs:  inputs,
		ShieldedOutputs: outputs,
		Proof:           models.ProofPayload{Type: txType},
	}
}

func TestEvaluateTransaction_TypeFilter(t *testing.T) {
	tests := []struct {
		name     string
		filter   types.TransactionType
		inputs   int
		outputs  int
		wantFire bool
	}{
		{"no filter fires on any shielded", "", 0, 1, true},
		{"spend filter matches spends", types.TypeSpend, 2, 0, true},
		{"spend filter matches binding", types.TypeSpend, 1, 1, true},
		{"spend filter rejects output-only", types.TypeSpend, 0, 1, false},
		{"output filter matches outputs", types.TypeOutput, 0, 3, true},
		{"output filter rejects spend-only", types.TypeOutput, 1, 0, false},
		{"binding filter requires both", types.TypeBinding, 1, 0, false},
		{"binding filter matches both", types.TypeBinding, 1, 1, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := testAlert(types.CategoryTransaction, models.AlertConditions{TransactionType: tt.filter})
			txs := &fakeTxSource{txs: map[string]*models.ShieldedTransaction{
				"tx-1": shieldedRecord("tx-1", tt.inputs, tt.outputs),
			}}
			engine, sink, _ := newTestEngine(t, &fakeAlertSource{alerts: []*models.Alert{a}}, txs, nil)

			if err := engine.EvaluateTransaction(context.Background(), "tx-1"); err != nil {
				t.Fatalf("EvaluateTransaction: %v", err)
			}

			fired := len(sink.byAlert(a.ID)) > 0
			if fired != tt.wantFire {
				t.Errorf("fired = %v, want %v", fired, tt.wantFire)
			}
		})
	}
}

func TestEvaluateTransaction_AddressLinkage(t *testing.T) {
	linked := testAlert(types.CategoryAddress, models.AlertConditions{Address: "hash-linked"})
	unlinked := testAlert(types.CategoryAddress, models.AlertConditions{Address: "hash-other"})

	txs := &fakeTxSource{txs: map[string]*models.ShieldedTransaction{
		"tx-1": shieldedRecord("tx-1", 1, 1),
	}}
	assoc := &fakeAssociations{links: map[string]string{"hash-linked": "tx-1"}}
	engine, sink, _ := newTestEngine(t, &fakeAlertSource{alerts: []*models.Alert{linked, unlinked}}, txs, assoc)

	if err := engine.EvaluateTransaction(context.Background(), "tx-1"); err != nil {
		t.Fatalf("EvaluateTransaction: %v", err)
	}

	if len(sink.byAlert(linked.ID)) != 1 {
		t.Error("linked identifier alert did not fire")
	}
	if len(sink.byAlert(unlinked.ID)) != 0 {
		t.Error("unlinked identifier alert fired")
	}
}

func TestEvaluateBlock_NewBlockFiresOncePerBlock(t *testing.T) {
	newBlock := testAlert(types.CategoryNetwork, models.AlertConditions{Event: types.EventNewBlock})
	highActivity := testAlert(types.CategoryNetwork, models.AlertConditions{Event: types.EventHighActivity})

	engine, sink, _ := newTestEngine(t, &fakeAlertSource{alerts: []*models.Alert{newBlock, highActivity}}, nil, nil)

	if err := engine.EvaluateBlock(context.Background(), 500); err != nil {
		t.Fatalf("EvaluateBlock: %v", err)
	}

	fired := sink.byAlert(newBlock.ID)
	if len(fired) != 1 {
		t.Fatalf("new-block alert fired %d times, want 1", len(fired))
	}
	if fired[0].Details["blockHeight"] != int64(500) {
		t.Errorf("blockHeight detail = %v, want 500", fired[0].Details["blockHeight"])
	}
	// Activity alerts need a network snapshot, which the block pass does
	// not carry
	if len(sink.byAlert(highActivity.ID)) != 0 {
		t.Error("high-activity alert fired without a snapshot")
	}
}

func TestEvaluateBlock_InvalidHeight(t *testing.T) {
	engine, _, _ := newTestEngine(t, &fakeAlertSource{}, nil, nil)

	if err := engine.EvaluateBlock(context.Background(), 0); err == nil {
		t.Error("expected an error for height 0")
	}
}

func TestEvaluateTransaction_DoesNotFireNewBlock(t *testing.T) {
	newBlock := testAlert(types.CategoryNetwork, models.AlertConditions{Event: types.EventNewBlock})

	txs := &fakeTxSource{txs: map[string]*models.ShieldedTransaction{
		"tx-1": shieldedRecord("tx-1", 0, 1),
		"tx-2": shieldedRecord("tx-2", 1, 0),
	}}
	engine, sink, _ := newTestEngine(t, &fakeAlertSource{alerts: []*models.Alert{newBlock}}, txs, nil)

	// Two transactions from the same block must not multiply new-block
	// notifications; the block pass owns that event
	for _, id := range []string{"tx-1", "tx-2"} {
		if err := engine.EvaluateTransaction(context.Background(), id); err != nil {
			t.Fatalf("EvaluateTransaction(%s): %v", id, err)
		}
	}

	if n := len(sink.byAlert(newBlock.ID)); n != 0 {
		t.Errorf("new-block alert fired %d times from transaction passes, want 0", n)
	}
}

func TestEvaluateAggregates_Threshold(t *testing.T) {
	fires := testAlert(types.CategoryThreshold, models.AlertConditions{
		Metric:   types.MetricTransactionCount,
		Operator: types.OpGreaterThan,
		Value:    floatPtr(0),
	})
	silent := testAlert(types.CategoryThreshold, models.AlertConditions{
		Metric:   types.MetricPoolSize,
		Operator: types.OpGreaterThan,
		Value:    floatPtr(1000),
	})

	txs := &fakeTxSource{total: 10, dayCount: 3, hourCount: 3}
	engine, sink, notifier := newTestEngine(t, &fakeAlertSource{alerts: []*models.Alert{fires, silent}}, txs, nil)

	if err := engine.EvaluateAggregates(context.Background()); err != nil {
		t.Fatalf("EvaluateAggregates: %v", err)
	}

	got := sink.byAlert(fires.ID)
	if len(got) != 1 {
		t.Fatalf("threshold alert fired %d times, want 1", len(got))
	}
	if cv, ok := got[0].Details["currentValue"].(int64); !ok || cv < 1 {
		t.Errorf("details.currentValue = %v, want >= 1", got[0].Details["currentValue"])
	}
	if len(sink.byAlert(silent.ID)) != 0 {
		t.Error("unmet threshold alert fired")
	}
	if len(notifier.delivered) != 1 || notifier.delivered[0] != fires.ID {
		t.Errorf("delivered = %v, want exactly the fired alert", notifier.delivered)
	}
}

func TestEvaluateAggregates_ActivityWatermarks(t *testing.T) {
	tests := []struct {
		name      string
		hourCount int64
		wantHigh  bool
		wantLow   bool
	}{
		{"quiet chain", 5, false, true},
		{"normal chain", 50, false, false},
		{"boundary high", 100, false, false},
		{"busy chain", 150, true, false},
		{"boundary low", 10, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			high := testAlert(types.CategoryNetwork, models.AlertConditions{Event: types.EventHighActivity})
			low := testAlert(types.CategoryNetwork, models.AlertConditions{Event: types.EventLowActivity})

			txs := &fakeTxSource{hourCount: tt.hourCount}
			engine, sink, _ := newTestEngine(t, &fakeAlertSource{alerts: []*models.Alert{high, low}}, txs, nil)

			if err := engine.EvaluateAggregates(context.Background()); err != nil {
				t.Fatalf("EvaluateAggregates: %v", err)
			}

			if fired := len(sink.byAlert(high.ID)) > 0; fired != tt.wantHigh {
				t.Errorf("high-activity fired = %v, want %v", fired, tt.wantHigh)
			}
			if fired := len(sink.byAlert(low.ID)) > 0; fired != tt.wantLow {
				t.Errorf("low-activity fired = %v, want %v", fired, tt.wantLow)
			}
		})
	}
}

func TestEvaluate_AlertIsolation(t *testing.T) {
	// A stored threshold alert missing its bound would panic on dereference;
	// the pass must contain it and still evaluate the healthy alert
	broken := testAlert(types.CategoryThreshold, models.AlertConditions{
		Metric:   types.MetricPoolSize,
		Operator: types.OpGreaterThan,
		Value:    nil,
	})
	healthy := testAlert(types.CategoryThreshold, models.AlertConditions{
		Metric:   types.MetricPoolSize,
		Operator: types.OpGreaterThan,
		Value:    floatPtr(0),
	})

	txs := &fakeTxSource{total: 5}
	engine, sink, _ := newTestEngine(t, &fakeAlertSource{alerts: []*models.Alert{broken, healthy}}, txs, nil)

	if err := engine.EvaluateAggregates(context.Background()); err != nil {
		t.Fatalf("EvaluateAggregates: %v", err)
	}

	if len(sink.byAlert(healthy.ID)) != 1 {
		t.Error("healthy alert did not fire after a broken alert panicked")
	}
	if len(sink.byAlert(broken.ID)) != 0 {
		t.Error("broken alert produced a notification")
	}
}

func TestEvaluate_InactiveAlertsSkipped(t *testing.T) {
	inactive := testAlert(types.CategoryThreshold, models.AlertConditions{
		Metric:   types.MetricPoolSize,
		Operator: types.OpGreaterThan,
		Value:    floatPtr(0),
	})
	inactive.Active = false

	txs := &fakeTxSource{total: 5}
	engine, sink, _ := newTestEngine(t, &fakeAlertSource{alerts: []*models.Alert{inactive}}, txs, nil)

	if err := engine.EvaluateAggregates(context.Background()); err != nil {
		t.Fatalf("EvaluateAggregates: %v", err)
	}
	if len(sink.created) != 0 {
		t.Error("inactive alert fired")
	}
}
