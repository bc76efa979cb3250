package power

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// Source delivers battery level updates until the returned stop function
// is called or ctx is cancelled. The current level is reported once right
// after subscribing.
type Source interface {
	Subscribe(ctx context.Context, fn func(percent float64)) (stop func(), err error)
}

// ErrNoSource is returned by a chain without any usable source.
var ErrNoSource = errors.New("no battery level source available")

type chain struct {
	logger  *zap.Logger
	sources []Source
}

// Chain returns a Source that subscribes to the first source that accepts
// the subscription.
func Chain(logger *zap.Logger, sources ...Source) Source {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &chain{logger: logger, sources: sources}
}

func (c *chain) Subscribe(ctx context.Context, fn func(float64)) (func(), error) {
	var errs []error
	for _, s := range c.sources {
		stop, err := s.Subscribe(ctx, fn)
		if err == nil {
			return stop, nil
		}
		c.logger.Debug("Battery level source unavailable", zap.String("source", fmt.Sprintf("%T", s)), zap.Error(err))
		errs = append(errs, err)
	}
	return nil, errors.Join(append([]error{ErrNoSource}, errs...)...)
}
