package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/redcentre/carbonsvc/internal/executor"
)

// Lender hands out engines bound to a session's cached state.
type Lender struct {
	cache   *Cache
	factory executor.EngineFactory
}

// NewLender creates a lender building engines with factory.
func NewLender(cache *Cache, factory executor.EngineFactory) *Lender {
	return &Lender{cache: cache, factory: factory}
}

// Borrow loads the session state into a fresh engine and calls fn with it.
// When save is set the engine state is written back on every exit path,
// including a failing or panicking fn; save errors are joined to fn's error.
func (l *Lender) Borrow(ctx context.Context, sessionID string, save bool, fn func(executor.Executor) error) (err error) {
	state, err := l.cache.Load(ctx, sessionID)
	if err != nil {
		return err
	}

	eng := l.factory()
	if err := eng.RestoreState(state); err != nil {
		return fmt.Errorf("restore engine state: %w", err)
	}

	if save {
		defer func() {
			if serr := l.save(context.WithoutCancel(ctx), sessionID, eng); serr != nil {
				err = errors.Join(err, serr)
			}
		}()
	}

	return fn(eng)
}

func (l *Lender) save(ctx context.Context, sessionID string, eng executor.Engine) error {
	state, err := eng.SaveState()
	if err != nil {
		return fmt.Errorf("save engine state: %w", err)
	}
	return l.cache.Save(ctx, sessionID, state)
}
