// Package vecenv steps a fixed set of environments in lockstep, one goroutine
// per env.
package vecenv

import (
	"context"
	"errors"
	"fmt"
	"log"

	"golang.org/x/sync/errgroup"

	"gbgym.ai/internal/env"
)

type Options struct {
	// AutoReset starts a new episode as soon as one is truncated. The
	// returned observation is then the first of the new episode.
	AutoReset bool
	// Workers bounds concurrent steps; <= 0 means one per env.
	Workers int
	Logger  *log.Logger
}

type Pool struct {
	envs []*env.Env
	opts Options

	obs     [][]byte
	results []env.StepResult
}

func New(envs []*env.Env, opts Options) (*Pool, error) {
	if len(envs) == 0 {
		return nil, errors.New("vecenv: no envs")
	}
	spec := envs[0].Spec()
	for i, e := range envs {
		if e == nil {
			return nil, fmt.Errorf("vecenv: env %d is nil", i)
		}
		if e.Spec() != spec {
			return nil, fmt.Errorf("vecenv: env %d spec %+v differs from %+v", i, e.Spec(), spec)
		}
	}
	return &Pool{
		envs:    envs,
		opts:    opts,
		obs:     make([][]byte, len(envs)),
		results: make([]env.StepResult, len(envs)),
	}, nil
}

func (p *Pool) Len() int { return len(p.envs) }

func (p *Pool) Spec() env.Spec { return p.envs[0].Spec() }

// Env exposes env i for inspection. Do not step it behind the pool's back.
func (p *Pool) Env(i int) *env.Env { return p.envs[i] }

// ResetAll resets every env. The returned slices are reused by the next call.
func (p *Pool) ResetAll(ctx context.Context) ([][]byte, error) {
	err := p.each(ctx, func(i int, e *env.Env) error {
		o, _, err := e.Reset()
		if err != nil {
			return fmt.Errorf("env %d: %w", i, err)
		}
		p.obs[i] = append(p.obs[i][:0], o...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return p.obs, nil
}

// StepAll applies actions[i] to env i. Results, including their Obs buffers,
// are reused by the next call.
func (p *Pool) StepAll(ctx context.Context, actions []env.Action) ([]env.StepResult, error) {
	if len(actions) != len(p.envs) {
		return nil, fmt.Errorf("vecenv: %d actions for %d envs", len(actions), len(p.envs))
	}
	err := p.each(ctx, func(i int, e *env.Env) error {
		res, err := e.Step(actions[i])
		if err != nil {
			return fmt.Errorf("env %d: %w", i, err)
		}
		o := res.Obs
		if p.opts.AutoReset && (res.Truncated || res.Terminated) {
			if p.opts.Logger != nil && res.Info != nil {
				p.opts.Logger.Printf("env %d episode %d: return=%.3f badges=%d levels=%d coords=%d",
					i, e.Episode(), res.Info.Return, res.Info.Badges, res.Info.MaxLevelSum, res.Info.SeenCoords)
			}
			if o, _, err = e.Reset(); err != nil {
				return fmt.Errorf("env %d: auto reset: %w", i, err)
			}
		}
		p.obs[i] = append(p.obs[i][:0], o...)
		res.Obs = p.obs[i]
		p.results[i] = res
		return nil
	})
	if err != nil {
		return nil, err
	}
	return p.results, nil
}

func (p *Pool) each(ctx context.Context, fn func(i int, e *env.Env) error) error {
	g, ctx := errgroup.WithContext(ctx)
	if p.opts.Workers > 0 {
		g.SetLimit(p.opts.Workers)
	}
	for i, e := range p.envs {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			return fn(i, e)
		})
	}
	return g.Wait()
}

// Close closes every env and returns the first error.
func (p *Pool) Close() error {
	var first error
	for _, e := range p.envs {
		if err := e.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
