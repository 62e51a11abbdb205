package main

import (
	"context"
	"fmt"
	"os"
	"sort"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/gpsalud/consultaflow/router"
)

// questionSet is the batch evaluation input file.
type questionSet struct {
	Questions []evalQuestion `yaml:"questions"`
}

type evalQuestion struct {
	Query string `yaml:"query"`
	// ExpectEntity, when set, scores the detector against the expected
	// canonical ID ("" asserts the fixed-response path).
	ExpectEntity *string `yaml:"expect_entity,omitempty"`
}

type evalOutcome struct {
	question evalQuestion
	result   *router.Result
	err      error
}

// runEval fans the question set out over a bounded worker pool and prints
// aggregate latency, token, and routing stats.
func runEval(ctx context.Context, r *router.Router, path string, workers int, logger *zap.Logger) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read question set %s: %w", path, err)
	}
	var set questionSet
	if err := yaml.Unmarshal(data, &set); err != nil {
		return fmt.Errorf("parse question set %s: %w", path, err)
	}
	if len(set.Questions) == 0 {
		return fmt.Errorf("question set %s is empty", path)
	}
	if workers <= 0 {
		workers = 1
	}

	logger.Info("evaluation started",
		zap.Int("questions", len(set.Questions)), zap.Int("workers", workers))

	// Each worker writes its own slot; no shared mutable state.
	outcomes := make([]evalOutcome, len(set.Questions))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, q := range set.Questions {
		g.Go(func() error {
			res, err := r.Process(gctx, q.Query)
			outcomes[i] = evalOutcome{question: q, result: res, err: err}
			// Individual failures are part of the evaluation outcome,
			// not a reason to stop the run.
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	printEvalReport(outcomes)
	return nil
}

func printEvalReport(outcomes []evalOutcome) {
	var (
		total, failed, ragPath, fixedPath int
		entityHits, entityChecks          int
		totalMS, totalCost                float64
		totalTokens                       int
		latencies                         []float64
	)

	for _, o := range outcomes {
		total++
		if o.err != nil || o.result == nil {
			failed++
			continue
		}
		m := o.result.Metrics

		if o.result.RAGExecuted {
			ragPath++
		} else {
			fixedPath++
		}
		if o.question.ExpectEntity != nil {
			entityChecks++
			if o.result.Entity.Entity == *o.question.ExpectEntity {
				entityHits++
			}
		}
		if m != nil {
			totalMS += m.TotalMS
			totalCost += m.CostTotal
			totalTokens += m.TokensTotal()
			latencies = append(latencies, m.TotalMS)
			if !m.Success {
				failed++
			}
		}
	}

	fmt.Printf("\n=== evaluación: %d consultas ===\n", total)
	fmt.Printf("rutas:      %d retrieval, %d respuesta fija, %d fallidas\n",
		ragPath, fixedPath, failed)
	if entityChecks > 0 {
		fmt.Printf("entidades:  %d/%d correctas (%.1f%%)\n",
			entityHits, entityChecks, 100*float64(entityHits)/float64(entityChecks))
	}
	if len(latencies) > 0 {
		fmt.Printf("latencia:   avg %.0f ms, p50 %.0f ms, p95 %.0f ms\n",
			totalMS/float64(len(latencies)), percentile(latencies, 0.5), percentile(latencies, 0.95))
	}
	fmt.Printf("tokens:     %d total\n", totalTokens)
	if totalCost > 0 {
		fmt.Printf("costo:      $%.6f USD\n", totalCost)
	}
}

func percentile(values []float64, p float64) float64 {
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	idx := int(p * float64(len(sorted)-1))
	return sorted[idx]
}
