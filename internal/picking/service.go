package picking

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/IamNotATuringMachine/DirectStock-sub002/internal/ledger"
	"github.com/IamNotATuringMachine/DirectStock-sub002/internal/shared"
)

// RepositoryPort describes repository operations used by the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetWave(ctx context.Context, id int64) (PickWave, error)
	ListTasks(ctx context.Context, waveID int64) ([]PickTask, error)
}

// Service drives the pick wave lifecycle.
type Service struct {
	repo     RepositoryPort
	engine   ledger.Engine
	logger   *slog.Logger
	observer ledger.Observer
}

// NewService constructs the service.
func NewService(repo RepositoryPort, logger *slog.Logger, observer ledger.Observer) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, logger: logger, observer: observer}
}

// CreateInput describes a new pick wave.
type CreateInput struct {
	Number string
	Notes  string
	Tasks  []TaskInput
}

// TaskInput describes one picking instruction.
type TaskInput struct {
	ProductID int64
	BinID     int64
	Qty       float64
}

// Create persists a draft wave with pending tasks. Stock is untouched until
// release.
func (s *Service) Create(ctx context.Context, input CreateInput, actor shared.Actor) (PickWave, []PickTask, error) {
	if len(input.Tasks) == 0 {
		return PickWave{}, nil, fmt.Errorf("%w: at least one task required", shared.ErrValidation)
	}
	if input.Number == "" {
		input.Number = generateNumber("PW")
	}
	wave := PickWave{Number: input.Number, Status: WaveStatusDraft, Notes: input.Notes, CreatedBy: actor.UserID}
	var tasks []PickTask
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		id, err := tx.CreateWave(ctx, wave)
		if err != nil {
			return err
		}
		wave.ID = id
		for _, line := range input.Tasks {
			if line.ProductID == 0 || line.BinID == 0 || line.Qty <= 0 {
				return fmt.Errorf("%w: task needs product, bin and positive quantity", shared.ErrValidation)
			}
			task := PickTask{WaveID: id, ProductID: line.ProductID, BinID: line.BinID, Qty: line.Qty, Status: TaskStatusPending}
			taskID, err := tx.InsertTask(ctx, task)
			if err != nil {
				return err
			}
			task.ID = taskID
			tasks = append(tasks, task)
		}
		return nil
	})
	if err != nil {
		return PickWave{}, nil, err
	}
	s.logger.Info("pick wave created", slog.Int64("id", wave.ID), slog.String("number", wave.Number))
	return wave, tasks, nil
}

// Release moves the wave to released and reserves stock for every task.
// A single short bin aborts the whole release.
func (s *Service) Release(ctx context.Context, waveID int64, actor shared.Actor) (PickWave, error) {
	return s.transition(ctx, waveID, WaveStatusReleased, actor)
}

// Transition moves the wave to a target status. Completion requires every
// task to be picked or skipped. Cancelling a released wave hands the
// reservations of still-pending tasks back.
func (s *Service) Transition(ctx context.Context, waveID int64, target WaveStatus, actor shared.Actor) (PickWave, error) {
	return s.transition(ctx, waveID, target, actor)
}

func (s *Service) transition(ctx context.Context, waveID int64, target WaveStatus, actor shared.Actor) (PickWave, error) {
	var wave PickWave
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetWaveForUpdate(ctx, waveID)
		if err != nil {
			return err
		}
		if err := WaveTransitions.Check("pick_wave", current.Status, target); err != nil {
			return err
		}
		tasks, err := tx.ListTasks(ctx, waveID)
		if err != nil {
			return err
		}
		store := tx.Ledger()
		switch {
		case target == WaveStatusReleased:
			if len(tasks) == 0 {
				return fmt.Errorf("%w: wave has no tasks", shared.ErrValidation)
			}
			for _, task := range tasks {
				if err := s.engine.Reserve(ctx, store, task.ProductID, task.BinID, task.Qty); err != nil {
					return err
				}
			}
		case target == WaveStatusCompleted:
			for _, task := range tasks {
				if !task.Status.Terminal() {
					return fmt.Errorf("%w: task %d is still pending", shared.ErrValidation, task.ID)
				}
			}
		case target == WaveStatusCancelled && current.Status == WaveStatusReleased:
			for _, task := range tasks {
				if task.Status != TaskStatusPending {
					continue
				}
				if err := s.engine.Release(ctx, store, task.ProductID, task.BinID, task.Qty); err != nil {
					return err
				}
			}
		}
		if err := tx.UpdateWaveStatus(ctx, waveID, target); err != nil {
			return err
		}
		wave = current
		wave.Status = target
		return nil
	})
	if err != nil {
		return PickWave{}, err
	}
	s.logger.Info("pick wave transition", slog.Int64("id", waveID), slog.String("to", string(target)))
	return wave, nil
}

// PickTask issues the task's reserved quantity and marks it picked.
func (s *Service) PickTask(ctx context.Context, waveID, taskID int64, actor shared.Actor) (PickTask, error) {
	return s.finishTask(ctx, waveID, taskID, TaskStatusPicked, actor)
}

// SkipTask releases the task's reservation without issuing and marks it
// skipped.
func (s *Service) SkipTask(ctx context.Context, waveID, taskID int64, actor shared.Actor) (PickTask, error) {
	return s.finishTask(ctx, waveID, taskID, TaskStatusSkipped, actor)
}

func (s *Service) finishTask(ctx context.Context, waveID, taskID int64, target TaskStatus, actor shared.Actor) (PickTask, error) {
	var picked PickTask
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		wave, err := tx.GetWaveForUpdate(ctx, waveID)
		if err != nil {
			return err
		}
		if wave.Status != WaveStatusReleased {
			return shared.NewInvalidTransition("pick_wave", string(wave.Status), string(wave.Status))
		}
		tasks, err := tx.ListTasks(ctx, waveID)
		if err != nil {
			return err
		}
		var task PickTask
		found := false
		for _, t := range tasks {
			if t.ID == taskID {
				task = t
				found = true
				break
			}
		}
		if !found {
			return shared.ErrNotFound
		}
		if task.Status != TaskStatusPending {
			return shared.NewInvalidTransition("pick_task", string(task.Status), string(target))
		}
		store := tx.Ledger()
		if target == TaskStatusPicked {
			result, err := s.engine.IssueReserved(ctx, store, ledger.MovementInput{
				ProductID:       task.ProductID,
				FromBinID:       task.BinID,
				Qty:             task.Qty,
				ReferenceType:   "pick_wave",
				ReferenceNumber: wave.Number,
				ActorID:         actor.UserID,
			})
			if err != nil {
				return err
			}
			s.observeResult(result)
		} else {
			if err := s.engine.Release(ctx, store, task.ProductID, task.BinID, task.Qty); err != nil {
				return err
			}
		}
		if err := tx.UpdateTaskStatus(ctx, taskID, target); err != nil {
			return err
		}
		picked = task
		picked.Status = target
		return nil
	})
	if err != nil {
		return PickTask{}, err
	}
	s.logger.Info("pick task finished", slog.Int64("wave_id", waveID), slog.Int64("task_id", taskID), slog.String("status", string(target)))
	return picked, nil
}

// Get returns a wave with its tasks.
func (s *Service) Get(ctx context.Context, id int64) (PickWave, []PickTask, error) {
	wave, err := s.repo.GetWave(ctx, id)
	if err != nil {
		return PickWave{}, nil, err
	}
	tasks, err := s.repo.ListTasks(ctx, id)
	if err != nil {
		return PickWave{}, nil, err
	}
	return wave, tasks, nil
}

func (s *Service) observeResult(result ledger.MovementResult) {
	if s.observer == nil {
		return
	}
	for _, movement := range result.Movements {
		s.observer.MovementPosted(string(movement.Type))
	}
}

func generateNumber(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, time.Now().UnixNano())
}
