package strategy

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"sceneminer/internal/ensemble"
	"sceneminer/internal/processors"
)

// ErrAllProcessorsFailed means the pass produced no usable vote at all; the
// caller treats it as a failed, retryable extraction.
var ErrAllProcessorsFailed = errors.New("all processors failed")

// PassReport is the outcome of one strategy execution over one text.
type PassReport struct {
	Mode              Mode                            `json:"mode"`
	Result            ensemble.Result                 `json:"result"`
	Failures          map[string]string               `json:"failures,omitempty"`
	ReducedConfidence bool                            `json:"reduced_confidence,omitempty"`
	Participants      []string                        `json:"participants"`
	ErrorTypes        map[string]processors.ErrorType `json:"error_types,omitempty"`
}

// Runner executes a strategy mode against a processor snapshot. It also keeps
// a small sliding failure window that feeds adaptive selection.
type Runner struct {
	voter  *ensemble.Voter
	logger *slog.Logger

	mu      sync.Mutex
	history []bool // true = pass had at least one processor failure
}

const failureWindowSize = 20

func NewRunner(voter *ensemble.Voter, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{voter: voter, logger: logger}
}

// RecentFailureRate is the fraction of recent passes with processor failures.
func (r *Runner) RecentFailureRate() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.history) == 0 {
		return 0
	}
	failed := 0
	for _, f := range r.history {
		if f {
			failed++
		}
	}
	return float64(failed) / float64(len(r.history))
}

func (r *Runner) recordPass(hadFailure bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.history = append(r.history, hadFailure)
	if len(r.history) > failureWindowSize {
		r.history = r.history[len(r.history)-failureWindowSize:]
	}
}

// Run executes mode over snapshot. Processor errors are absorbed into the
// report; the returned error is non-nil only when no processor produced a
// usable result.
func (r *Runner) Run(ctx context.Context, mode Mode, snapshot []processors.ConfiguredProcessor, text string) (PassReport, error) {
	switch mode {
	case ModeSingle:
		return r.runSingle(ctx, snapshot, text)
	case ModeParallel:
		return r.runParallel(ctx, snapshot, text)
	case ModeSequential:
		return r.runSequential(ctx, snapshot, text)
	default:
		return r.runEnsemble(ctx, snapshot, text)
	}
}

type analyzeOutcome struct {
	cp         processors.ConfiguredProcessor
	candidates []processors.Candidate
	err        error
}

func (r *Runner) analyzeAll(ctx context.Context, snapshot []processors.ConfiguredProcessor, text string) []analyzeOutcome {
	outcomes := make([]analyzeOutcome, len(snapshot))
	var wg sync.WaitGroup
	for i, cp := range snapshot {
		wg.Add(1)
		go func(i int, cp processors.ConfiguredProcessor) {
			defer wg.Done()
			cands, err := cp.Processor.Analyze(ctx, text)
			outcomes[i] = analyzeOutcome{cp: cp, candidates: cands, err: err}
		}(i, cp)
	}
	wg.Wait()
	return outcomes
}

func (r *Runner) runEnsemble(ctx context.Context, snapshot []processors.ConfiguredProcessor, text string) (PassReport, error) {
	report := PassReport{Mode: ModeEnsemble, Failures: map[string]string{}, ErrorTypes: map[string]processors.ErrorType{}}
	votes := make([]ensemble.ProcessorVotes, 0, len(snapshot))
	for _, o := range r.analyzeAll(ctx, snapshot, text) {
		name := o.cp.Config.Name
		if o.err != nil {
			report.Failures[name] = o.err.Error()
			report.ErrorTypes[name] = processors.ClassifyError(o.err)
			r.logger.Warn("processor failed during pass", "processor", name, "error_type", processors.ClassifyError(o.err), "error", o.err)
			continue
		}
		report.Participants = append(report.Participants, name)
		votes = append(votes, ensemble.ProcessorVotes{
			Processor:  name,
			Weight:     o.cp.Config.Weight,
			Candidates: filterByThreshold(o.candidates, o.cp.Config.ConfidenceThreshold),
		})
	}
	r.recordPass(len(report.Failures) > 0)
	if len(votes) == 0 {
		return report, ErrAllProcessorsFailed
	}
	if len(votes) < 2 {
		// below the ensemble floor for this pass: single-engine fallback
		report.ReducedConfidence = true
		report.Mode = ModeSingle
	}
	report.Result = r.voter.Vote(votes)
	return report, nil
}

func (r *Runner) runSingle(ctx context.Context, snapshot []processors.ConfiguredProcessor, text string) (PassReport, error) {
	report := PassReport{Mode: ModeSingle, Failures: map[string]string{}, ErrorTypes: map[string]processors.ErrorType{}}
	if len(snapshot) == 0 {
		return report, ErrAllProcessorsFailed
	}
	cp := snapshot[0]
	cands, err := cp.Processor.Analyze(ctx, text)
	r.recordPass(err != nil)
	if err != nil {
		report.Failures[cp.Config.Name] = err.Error()
		report.ErrorTypes[cp.Config.Name] = processors.ClassifyError(err)
		return report, ErrAllProcessorsFailed
	}
	report.Participants = []string{cp.Config.Name}
	report.Result = r.voter.Vote([]ensemble.ProcessorVotes{{
		Processor:  cp.Config.Name,
		Weight:     cp.Config.Weight,
		Candidates: filterByThreshold(cands, cp.Config.ConfidenceThreshold),
	}})
	return report, nil
}

// runSequential tries processors in registry order, early-exiting on the
// first one that yields an above-threshold candidate set.
func (r *Runner) runSequential(ctx context.Context, snapshot []processors.ConfiguredProcessor, text string) (PassReport, error) {
	report := PassReport{Mode: ModeSequential, Failures: map[string]string{}, ErrorTypes: map[string]processors.ErrorType{}}
	hadFailure := false
	for _, cp := range snapshot {
		cands, err := cp.Processor.Analyze(ctx, text)
		if err != nil {
			hadFailure = true
			report.Failures[cp.Config.Name] = err.Error()
			report.ErrorTypes[cp.Config.Name] = processors.ClassifyError(err)
			continue
		}
		report.Participants = append(report.Participants, cp.Config.Name)
		usable := filterByThreshold(cands, cp.Config.ConfidenceThreshold)
		if len(usable) == 0 {
			continue
		}
		report.Result = r.voter.Vote([]ensemble.ProcessorVotes{{
			Processor:  cp.Config.Name,
			Weight:     cp.Config.Weight,
			Candidates: usable,
		}})
		r.recordPass(hadFailure)
		return report, nil
	}
	r.recordPass(hadFailure)
	if len(report.Participants) == 0 {
		return report, ErrAllProcessorsFailed
	}
	return report, nil
}

// runParallel fans out to every enabled processor and concatenates raw
// candidates without voting. Diagnostics only.
func (r *Runner) runParallel(ctx context.Context, snapshot []processors.ConfiguredProcessor, text string) (PassReport, error) {
	report := PassReport{Mode: ModeParallel, Failures: map[string]string{}, ErrorTypes: map[string]processors.ErrorType{}}
	for _, o := range r.analyzeAll(ctx, snapshot, text) {
		name := o.cp.Config.Name
		if o.err != nil {
			report.Failures[name] = o.err.Error()
			report.ErrorTypes[name] = processors.ClassifyError(o.err)
			continue
		}
		report.Participants = append(report.Participants, name)
		for _, c := range o.candidates {
			report.Result.Accepted = append(report.Result.Accepted, ensemble.Scored{
				Type:           c.Type,
				Text:           c.Text,
				Position:       c.Start,
				ConsensusScore: c.Confidence,
				MeanConfidence: c.Confidence,
				Sources:        []string{name},
				Status:         ensemble.StatusAccepted,
			})
		}
	}
	r.recordPass(len(report.Failures) > 0)
	if len(report.Participants) == 0 {
		return report, ErrAllProcessorsFailed
	}
	return report, nil
}

func filterByThreshold(cands []processors.Candidate, threshold float64) []processors.Candidate {
	out := make([]processors.Candidate, 0, len(cands))
	for _, c := range cands {
		if c.Confidence >= threshold {
			out = append(out, c)
		}
	}
	return out
}
