package conformance

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/roach88/plos/internal/config"
	"github.com/roach88/plos/internal/replica"
	"github.com/roach88/plos/internal/testutil"
	"github.com/roach88/plos/internal/value"
)

// Runner executes scenarios against real replicas.
type Runner struct {
	replicas map[string]*replica.Replica
	order    []string
	base     string
	logger   *slog.Logger
}

// Run executes scenario with every replica rooted under baseDir and
// returns the result. The error is reserved for steps that fail to run;
// assertion failures are reported in the result.
func Run(ctx context.Context, scenario *Scenario, baseDir string, logger *slog.Logger) (*Result, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	r := &Runner{
		replicas: make(map[string]*replica.Replica, len(scenario.Replicas)),
		order:    scenario.Replicas,
		base:     baseDir,
		logger:   logger,
	}
	defer r.close()

	for _, origin := range scenario.Replicas {
		if err := r.open(origin, scenario.SealThreshold); err != nil {
			return nil, err
		}
	}

	result := NewResult()
	for i, step := range scenario.Flow {
		ev, err := r.execute(ctx, i, step)
		if err != nil {
			return nil, fmt.Errorf("flow step %d (%s on %s): %w", i, step.Op, step.Replica, err)
		}
		result.Trace = append(result.Trace, ev)
		r.logger.Info("flow step completed",
			"step", i,
			"replica", step.Replica,
			"op", step.Op,
			"event", ev.EventID,
		)
	}

	for _, origin := range r.order {
		state, err := r.replicas[origin].State(ctx)
		if err != nil {
			return nil, fmt.Errorf("project %s: %w", origin, err)
		}
		result.States[origin] = state
	}

	for _, msg := range r.evaluate(ctx, scenario.Assertions, result) {
		result.AddError(msg)
	}
	return result, nil
}

func (r *Runner) open(origin string, threshold int) error {
	root := filepath.Join(r.base, origin)
	if err := os.MkdirAll(root, 0o755); err != nil {
		return err
	}
	cfg := config.Default(root)
	cfg.Seal.Threshold = threshold

	rep, err := replica.Open(cfg,
		replica.WithClock(testutil.NewDeterministicClock()),
		replica.WithIDGenerator(testutil.NewSequentialIDs(strings.ToLower(origin))),
		replica.WithLogger(r.logger.With("replica", origin)),
	)
	if err != nil {
		return err
	}
	if _, err := rep.SetOrigin(origin); err != nil {
		rep.Close()
		return err
	}
	r.replicas[origin] = rep
	return nil
}

func (r *Runner) close() {
	for _, rep := range r.replicas {
		rep.Close()
	}
}

func (r *Runner) execute(ctx context.Context, i int, step Step) (TraceEvent, error) {
	rep := r.replicas[step.Replica]
	ev := TraceEvent{Step: i, Replica: step.Replica, Op: step.Op}
	args := step.Args

	var (
		appended replica.Appended
		err      error
	)
	switch step.Op {
	case OpCreate:
		appended, err = rep.Create(ctx, stringArg(args, "name"))

	case OpUpdate:
		var v value.Value
		if v, err = valueArg(args, "value"); err == nil {
			appended, err = rep.Update(ctx, stringArg(args, "entity"), stringArg(args, "field"), v)
		}

	case OpResolve:
		appended, err = rep.Resolve(ctx, stringArg(args, "entity"), stringArg(args, "field"), stringArg(args, "chosen"))

	case OpRelate:
		var rel value.Object
		if rel, err = objectArg(args, "relation"); err == nil {
			appended, err = rep.Relate(ctx, stringArg(args, "entity"), rel)
		}

	case OpUnrelate:
		appended, err = rep.Unrelate(ctx, stringArg(args, "entity"), stringArg(args, "id"))

	case OpMetric:
		var m value.Object
		if m, err = objectArg(args, "metric"); err == nil {
			appended, err = rep.Record(ctx, stringArg(args, "entity"), m)
		}

	case OpSync:
		from := r.replicas[stringArg(args, "from")]
		res, err := rep.Sync(ctx, from.Log().BufferPath())
		if err != nil {
			return ev, err
		}
		ev.Added, ev.Total = res.Added, res.Total
		if res.Sealed != nil {
			ev.Segment = res.Sealed.Manifest.SegmentID
		}
		return ev, nil

	case OpBundle:
		from := r.replicas[stringArg(args, "from")]
		path := filepath.Join(r.base, fmt.Sprintf("bundle-%03d.jsonl", i))
		if _, _, err := from.ExportBundle(ctx, path); err != nil {
			return ev, err
		}
		_, res, err := rep.ImportBundle(ctx, path)
		if err != nil {
			return ev, err
		}
		ev.Added, ev.Total = res.Added, res.Total
		if res.Sealed != nil {
			ev.Segment = res.Sealed.Manifest.SegmentID
		}
		return ev, nil

	case OpSeal:
		sealed, err := rep.Seal(ctx)
		if err != nil {
			return ev, err
		}
		ev.Segment = sealed.Manifest.SegmentID
		return ev, nil

	case OpReset:
		return ev, rep.Reset(ctx)

	default:
		return ev, fmt.Errorf("unknown op %q", step.Op)
	}
	if err != nil {
		return ev, err
	}

	e := appended.Event
	ev.EventID, ev.EntityID, ev.Type, ev.Seq = e.ID, e.EntityID, string(e.Type), e.Seq
	if appended.Sealed != nil {
		ev.Segment = appended.Sealed.Manifest.SegmentID
	}
	return ev, nil
}

func stringArg(args map[string]any, key string) string {
	s, _ := args[key].(string)
	return s
}

func valueArg(args map[string]any, key string) (value.Value, error) {
	raw, ok := args[key]
	if !ok {
		return nil, fmt.Errorf("missing arg %q", key)
	}
	v, err := value.FromAny(raw)
	if err != nil {
		return nil, fmt.Errorf("arg %q: %w", key, err)
	}
	return v, nil
}

func objectArg(args map[string]any, key string) (value.Object, error) {
	v, err := valueArg(args, key)
	if err != nil {
		return nil, err
	}
	obj, ok := v.(value.Object)
	if !ok {
		return nil, fmt.Errorf("arg %q must be a mapping", key)
	}
	return obj, nil
}
