package worker

import (
	"context"
	"encoding/json"
	"testing"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/veilcare/settlement-backend/internal/intents"
	"github.com/veilcare/settlement-backend/pkg/db/models"
	"github.com/veilcare/settlement-backend/pkg/enums"
	pkgerrors "github.com/veilcare/settlement-backend/pkg/errors"
	"github.com/veilcare/settlement-backend/pkg/logger"
)

type stubSolver struct {
	processed []uuid.UUID
	err       error
}

func (s *stubSolver) Process(ctx context.Context, intentID uuid.UUID) error {
	s.processed = append(s.processed, intentID)
	return s.err
}

type stubLoader struct {
	intents map[uuid.UUID]*models.PaymentIntent
}

func (s *stubLoader) GetByID(ctx context.Context, id uuid.UUID) (*models.PaymentIntent, error) {
	intent, ok := s.intents[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return intent, nil
}

type stubRecorder struct {
	recorded []*models.PaymentIntent
	err      error
}

func (s *stubRecorder) RecordOutcome(ctx context.Context, intent *models.PaymentIntent) error {
	s.recorded = append(s.recorded, intent)
	return s.err
}

type workerDeps struct {
	solver   *stubSolver
	loader   *stubLoader
	recorder *stubRecorder
	service  *Service
}

func newTestWorker(t *testing.T) *workerDeps {
	t.Helper()
	deps := &workerDeps{
		solver:   &stubSolver{},
		loader:   &stubLoader{intents: make(map[uuid.UUID]*models.PaymentIntent)},
		recorder: &stubRecorder{},
	}
	deps.service = &Service{
		solver:   deps.solver,
		loader:   deps.loader,
		recorder: deps.recorder,
		logg:     logger.New(logger.Options{ServiceName: "worker-test"}),
	}
	return deps
}

func (d *workerDeps) seed(t *testing.T, status enums.IntentStatus) uuid.UUID {
	t.Helper()
	intent := &models.PaymentIntent{
		ID:       uuid.New(),
		FamilyID: uuid.New(),
		Status:   status,
	}
	d.loader.intents[intent.ID] = intent
	return intent.ID
}

func buildTrigger(t *testing.T, intentID uuid.UUID) *gcppubsub.Message {
	t.Helper()
	data, err := json.Marshal(intents.ProcessMessage{IntentID: intentID.String()})
	if err != nil {
		t.Fatalf("marshal trigger: %v", err)
	}
	return &gcppubsub.Message{ID: "msg-1", Data: data}
}

func TestProcessSettledIntentRecordsOutcome(t *testing.T) {
	deps := newTestWorker(t)
	id := deps.seed(t, enums.IntentStatusSettled)

	res := deps.service.process(context.Background(), buildTrigger(t, id))
	if res.nack {
		t.Fatal("expected ack")
	}
	if len(deps.solver.processed) != 1 || deps.solver.processed[0] != id {
		t.Fatalf("expected solver run for %s, got %v", id, deps.solver.processed)
	}
	if len(deps.recorder.recorded) != 1 || deps.recorder.recorded[0].ID != id {
		t.Fatal("expected one audit row for the settled intent")
	}
}

func TestProcessPersistedFailureAcksAndRecords(t *testing.T) {
	deps := newTestWorker(t)
	id := deps.seed(t, enums.IntentStatusFailed)
	deps.solver.err = pkgerrors.New(pkgerrors.CodeSigningRejected, "signing failed")

	res := deps.service.process(context.Background(), buildTrigger(t, id))
	if res.nack {
		t.Fatal("a persisted failure must ack, not redeliver")
	}
	if len(deps.recorder.recorded) != 1 {
		t.Fatal("expected an audit row for the failed intent")
	}
}

func TestProcessTransientErrorNacks(t *testing.T) {
	deps := newTestWorker(t)
	// The solver errored but the intent is still mid-flight.
	id := deps.seed(t, enums.IntentStatusRouting)
	deps.solver.err = pkgerrors.New(pkgerrors.CodeDependency, "relay unavailable")

	res := deps.service.process(context.Background(), buildTrigger(t, id))
	if !res.nack {
		t.Fatal("expected nack for a transient failure")
	}
	if len(deps.recorder.recorded) != 0 {
		t.Fatal("no audit row for a non-terminal intent")
	}
}

func TestProcessNonTerminalWithoutErrorAcks(t *testing.T) {
	deps := newTestWorker(t)
	// Another worker holds the lease; Process was a clean no-op.
	id := deps.seed(t, enums.IntentStatusShielding)

	res := deps.service.process(context.Background(), buildTrigger(t, id))
	if res.nack {
		t.Fatal("a clean no-op must ack")
	}
	if len(deps.recorder.recorded) != 0 {
		t.Fatal("no audit row for a non-terminal intent")
	}
}

func TestProcessInvalidPayloadAcks(t *testing.T) {
	deps := newTestWorker(t)

	res := deps.service.process(context.Background(), &gcppubsub.Message{Data: []byte("not json")})
	if res.nack {
		t.Fatal("malformed triggers must be dropped, not redelivered")
	}
	if len(deps.solver.processed) != 0 {
		t.Fatal("solver must not run for a malformed trigger")
	}

	res = deps.service.process(context.Background(), &gcppubsub.Message{Data: []byte(`{"intent_id":"not-a-uuid"}`)})
	if res.nack {
		t.Fatal("unparseable intent id must be dropped")
	}
	if len(deps.solver.processed) != 0 {
		t.Fatal("solver must not run for an unparseable intent id")
	}
}

func TestProcessAuditInsertFailureNacks(t *testing.T) {
	deps := newTestWorker(t)
	id := deps.seed(t, enums.IntentStatusSettled)
	deps.recorder.err = pkgerrors.New(pkgerrors.CodeRetryExhausted, "inserting audit row")

	res := deps.service.process(context.Background(), buildTrigger(t, id))
	if !res.nack {
		t.Fatal("expected nack so the audit row is retried on redelivery")
	}
}
