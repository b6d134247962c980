package state

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	userLockKeyPattern = "dialog:lock:%d"
	lockTTL            = 5 * time.Second
)

var (
	// ErrInvalidTransition indicates that a requested transition is not allowed.
	ErrInvalidTransition = errors.New("invalid state transition")
	// ErrStateNotFound indicates that a user state record does not exist.
	ErrStateNotFound = errors.New("user state not found")
	// ErrStateLocked indicates that a concurrent update for the same user holds the lock.
	ErrStateLocked = errors.New("state is locked, try again later")
)

var transitionRecorder = func(from, to string) {}

// RegisterTransitionRecorder allows external packages to observe transitions.
func RegisterTransitionRecorder(recorder func(from, to string)) {
	if recorder == nil {
		transitionRecorder = func(string, string) {}
		return
	}

	transitionRecorder = recorder
}

// StateMachine describes the operations supported by the dialog controller.
type StateMachine interface {
	// GetState returns the user's state; a user without one is idle.
	GetState(ctx context.Context, userID int64) (*UserState, error)
	SetState(ctx context.Context, userID int64, state State, data map[string]string) error
	// TransitionTo moves to newState, merging data into the stored context.
	TransitionTo(ctx context.Context, userID int64, newState State, data map[string]string) error
	ClearState(ctx context.Context, userID int64) error
}

type machine struct {
	storage Storage
	locker  redis.Cmdable
	log     *slog.Logger
}

// NewStateMachine creates a controller over storage. locker serializes updates per user; nil disables locking.
func NewStateMachine(storage Storage, locker redis.Cmdable, log *slog.Logger) StateMachine {
	if log == nil {
		log = slog.Default()
	}

	return &machine{
		storage: storage,
		locker:  locker,
		log:     log,
	}
}

func (m *machine) GetState(ctx context.Context, userID int64) (*UserState, error) {
	st, err := m.storage.GetState(ctx, userID)
	if errors.Is(err, ErrStateNotFound) {
		return &UserState{UserID: userID, CurrentState: StateIdle}, nil
	}
	return st, err
}

func (m *machine) SetState(ctx context.Context, userID int64, state State, data map[string]string) error {
	if err := m.lock(ctx, userID); err != nil {
		return err
	}
	defer m.unlock(ctx, userID)

	return m.storage.SetState(ctx, userID, &UserState{UserID: userID, CurrentState: state, Context: data})
}

func (m *machine) TransitionTo(ctx context.Context, userID int64, newState State, data map[string]string) error {
	if err := m.lock(ctx, userID); err != nil {
		return err
	}
	defer m.unlock(ctx, userID)

	current := &UserState{UserID: userID, CurrentState: StateIdle}
	stored, err := m.storage.GetState(ctx, userID)
	switch {
	case err == nil && stored != nil:
		current = stored
	case err != nil && !errors.Is(err, ErrStateNotFound):
		return err
	}

	if !IsTransitionAllowed(current.CurrentState, newState) {
		m.log.Warn("invalid state transition",
			slog.Int64("user_id", userID),
			slog.String("from", string(current.CurrentState)),
			slog.String("to", string(newState)),
		)
		return ErrInvalidTransition
	}

	merged := make(map[string]string, len(current.Context)+len(data))
	maps.Copy(merged, current.Context)
	maps.Copy(merged, data)

	transitionRecorder(string(current.CurrentState), string(newState))

	return m.storage.SetState(ctx, userID, &UserState{UserID: userID, CurrentState: newState, Context: merged})
}

func (m *machine) ClearState(ctx context.Context, userID int64) error {
	if err := m.lock(ctx, userID); err != nil {
		return err
	}
	defer m.unlock(ctx, userID)

	return m.storage.ClearState(ctx, userID)
}

func (m *machine) lock(ctx context.Context, userID int64) error {
	if m.locker == nil {
		return nil
	}

	acquired, err := m.locker.SetNX(ctx, fmt.Sprintf(userLockKeyPattern, userID), 1, lockTTL).Result()
	if err != nil {
		m.log.Error("failed to acquire user state lock", slog.Int64("user_id", userID), slog.Any("error", err))
		return err
	}
	if !acquired {
		m.log.Warn("user state lock already held", slog.Int64("user_id", userID))
		return ErrStateLocked
	}

	return nil
}

func (m *machine) unlock(ctx context.Context, userID int64) {
	if m.locker == nil {
		return
	}

	if err := m.locker.Del(ctx, fmt.Sprintf(userLockKeyPattern, userID)).Err(); err != nil {
		m.log.Error("failed to release user state lock", slog.Int64("user_id", userID), slog.Any("error", err))
	}
}
