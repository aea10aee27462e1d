package main

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/invoice-recon/internal/audit"
	"github.com/sells-group/invoice-recon/internal/auxiliary"
	"github.com/sells-group/invoice-recon/internal/db"
	"github.com/sells-group/invoice-recon/internal/evidence"
	"github.com/sells-group/invoice-recon/internal/pipeline"
	"github.com/sells-group/invoice-recon/internal/records"
	"github.com/sells-group/invoice-recon/internal/resilience"
	"github.com/sells-group/invoice-recon/internal/router"
	"github.com/sells-group/invoice-recon/internal/session"
	"github.com/sells-group/invoice-recon/internal/store"
	"github.com/sells-group/invoice-recon/internal/synthesis"
	"github.com/sells-group/invoice-recon/internal/verify"
	"github.com/sells-group/invoice-recon/pkg/anthropic"
)

// reconEnv holds the initialized pipeline and the resources to release
// when the command exits.
type reconEnv struct {
	Pipeline *pipeline.Pipeline
	Store    store.Store
	closers  []func()
}

// Close releases every resource opened by initEnv in reverse order.
func (e *reconEnv) Close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		e.closers[i]()
	}
}

// initEnv validates the config for mode and wires the pipeline.
func initEnv(ctx context.Context, mode string) (*reconEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	env := &reconEnv{}

	recs, err := openRecords(ctx, env)
	if err != nil {
		env.Close()
		return nil, err
	}

	aux, err := auxiliary.New(cfg)
	if err != nil {
		env.Close()
		return nil, err
	}

	trail, err := audit.New(cfg.Audit.Dir, audit.Layout(cfg.Audit.Layout))
	if err != nil {
		env.Close()
		return nil, err
	}

	st, err := store.Open(ctx, cfg.Store)
	if err != nil {
		env.Close()
		return nil, eris.Wrap(err, "open store")
	}
	env.Store = st
	env.closers = append(env.closers, func() {
		if err := st.Close(); err != nil {
			zap.L().Warn("close store", zap.Error(err))
		}
	})

	env.Pipeline = pipeline.New(pipeline.Deps{
		Planner:       buildPlanner(),
		Assembler:     evidence.NewAssembler(recs),
		Verifier:      verify.New(verify.PolicyFromConfig(cfg.Match)),
		Auxiliary:     aux,
		Synthesizer:   buildSynthesizer(),
		Trail:         trail,
		Memory:        session.New(0),
		Store:         st,
		ContextWindow: cfg.Planner.ContextWindow,
	})

	zap.L().Debug("environment ready",
		zap.String("mode", mode),
		zap.String("data_source", cfg.Data.Source),
		zap.String("planner", cfg.Planner.Strategy),
		zap.String("auxiliary", cfg.Auxiliary.Provider),
		zap.String("store", cfg.Store.Driver),
	)
	return env, nil
}

// openRecords returns the record store selected by data.source.
func openRecords(ctx context.Context, env *reconEnv) (records.Store, error) {
	if cfg.Data.Source == "postgres" {
		pool, err := db.Connect(ctx, cfg.Data.DatabaseURL, nil)
		if err != nil {
			return nil, eris.Wrap(err, "open records")
		}
		env.closers = append(env.closers, pool.Close)
		return records.NewPostgresStore(pool), nil
	}

	tables, err := records.Load(ctx, cfg.Data.Dir, records.LoadOptions{Charset: cfg.Data.Charset})
	if err != nil {
		return nil, eris.Wrap(err, "load records")
	}
	zap.L().Info("records loaded", zap.String("dir", cfg.Data.Dir), zap.Any("counts", tables.Counts()))
	return tables, nil
}

func buildPlanner() router.Planner {
	if cfg.Planner.Strategy == "llm" {
		client := anthropic.NewClient(cfg.Anthropic.Key)
		return router.NewLLMPlanner(client, cfg.Anthropic.Model, 256)
	}
	return router.NewRulePlanner()
}

func buildSynthesizer() synthesis.Synthesizer {
	if cfg.Anthropic.Key == "" {
		return synthesis.Fallback{}
	}
	guard := resilience.NewGuard("synthesis.anthropic", cfg.Resilience, resilience.GuardOptions{})
	return synthesis.NewAnthropic(anthropic.NewClient(cfg.Anthropic.Key), cfg.Anthropic.Model, cfg.Anthropic.MaxTokens, guard)
}
