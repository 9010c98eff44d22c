package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"

	"github.com/veilcare/settlement-backend/internal/audit"
	"github.com/veilcare/settlement-backend/internal/intents"
	"github.com/veilcare/settlement-backend/pkg/db/models"
	"github.com/veilcare/settlement-backend/pkg/logger"
)

// intentLoader narrows the repository to the read the worker needs.
type intentLoader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.PaymentIntent, error)
}

// Service consumes process triggers from Pub/Sub and drives intents through
// settlement. The solver is idempotent, so redelivered messages are safe.
type Service struct {
	subscription *gcppubsub.Subscriber
	solver       intents.Solver
	loader       intentLoader
	recorder     audit.Recorder
	logg         *logger.Logger
}

// NewService creates the settlement worker service. The recorder may be nil
// when the audit stream is not configured.
func NewService(subscription *gcppubsub.Subscriber, solver intents.Solver, loader intentLoader, recorder audit.Recorder, logg *logger.Logger) (*Service, error) {
	if subscription == nil {
		return nil, errors.New("intents subscription is required")
	}
	if solver == nil {
		return nil, errors.New("intent solver is required")
	}
	if loader == nil {
		return nil, errors.New("intent repository is required")
	}
	if logg == nil {
		return nil, errors.New("logger is required")
	}
	return &Service{
		subscription: subscription,
		solver:       solver,
		loader:       loader,
		recorder:     recorder,
		logg:         logg,
	}, nil
}

type processResult struct {
	nack bool
}

// Run starts consuming process triggers until the context is canceled.
func (s *Service) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	return s.subscription.Receive(ctx, func(innerCtx context.Context, msg *gcppubsub.Message) {
		if s.process(innerCtx, msg).nack {
			msg.Nack()
			return
		}
		msg.Ack()
	})
}

func (s *Service) process(ctx context.Context, msg *gcppubsub.Message) processResult {
	logCtx := s.logg.WithFields(ctx, map[string]any{"message_id": msg.ID})

	var trigger intents.ProcessMessage
	if err := json.Unmarshal(msg.Data, &trigger); err != nil {
		s.logg.Warn(logCtx, "invalid process trigger payload")
		return processResult{}
	}
	intentID, err := uuid.Parse(trigger.IntentID)
	if err != nil {
		s.logg.Warn(logCtx, "invalid intent id in process trigger")
		return processResult{}
	}
	logCtx = s.logg.WithIntentID(logCtx, intentID.String())

	if err := s.solver.Process(logCtx, intentID); err != nil {
		// A persisted failure is a terminal outcome, not a reason to
		// redeliver; only transient conditions get another attempt.
		if terminal, checkErr := s.isTerminal(logCtx, intentID); checkErr != nil || !terminal {
			s.logg.Error(logCtx, "processing intent", err)
			return processResult{nack: true}
		}
		s.logg.Warn(logCtx, fmt.Sprintf("intent settlement failed: %v", err))
	}

	return s.recordOutcome(logCtx, intentID)
}

// recordOutcome appends the audit row when the intent reached a terminal
// status. The audit stream is append-only, so a redelivered message after an
// insert failure at worst duplicates a row.
func (s *Service) recordOutcome(ctx context.Context, intentID uuid.UUID) processResult {
	if s.recorder == nil {
		return processResult{}
	}

	intent, err := s.loader.GetByID(ctx, intentID)
	if err != nil {
		s.logg.Error(ctx, "loading intent for audit", err)
		return processResult{nack: true}
	}
	if !intent.Status.IsTerminal() {
		// Lost a race to another worker mid-flight; the winner's message
		// carries the audit row.
		return processResult{}
	}

	if err := s.recorder.RecordOutcome(ctx, intent); err != nil {
		s.logg.Error(ctx, "recording settlement outcome", err)
		return processResult{nack: true}
	}
	return processResult{}
}

func (s *Service) isTerminal(ctx context.Context, intentID uuid.UUID) (bool, error) {
	intent, err := s.loader.GetByID(ctx, intentID)
	if err != nil {
		return false, err
	}
	return intent.Status.IsTerminal(), nil
}
