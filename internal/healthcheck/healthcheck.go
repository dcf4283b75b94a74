// Package healthcheck verifies that the configured analysis can run: the
// configuration is valid, the SAT backend answers, and the result store is
// usable.
package healthcheck

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/l3aro/go-cegar/internal/config"
	"github.com/l3aro/go-cegar/pkg/arg"
	"github.com/l3aro/go-cegar/pkg/cfa"
	"github.com/l3aro/go-cegar/pkg/cpa"
	"github.com/l3aro/go-cegar/pkg/eqdom"
	"github.com/l3aro/go-cegar/pkg/goals"
	"github.com/l3aro/go-cegar/pkg/refine"
)

// Status values of a component.
const (
	StatusReady   = "ready"
	StatusError   = "error"
	StatusSkipped = "skipped"
)

// ComponentStatus represents the health status of one component.
type ComponentStatus struct {
	Name   string
	Status string // "ready", "error" or "skipped"
	Detail string
	Error  string
}

// OK reports whether the component is usable.
func (s ComponentStatus) OK() bool { return s.Status != StatusError }

// HealthCheckResult contains the full health check output for display.
type HealthCheckResult struct {
	SavedPath      string
	SavedScope     string // "global" or "project"
	EffectivePath  string
	EffectiveScope string // "global" or "project"
	Config         ComponentStatus
	Solver         ComponentStatus
	ResultStore    ComponentStatus
}

// Components returns the component statuses in display order.
func (r *HealthCheckResult) Components() []ComponentStatus {
	return []ComponentStatus{r.Config, r.Solver, r.ResultStore}
}

// Healthy reports whether no component is in error.
func (r *HealthCheckResult) Healthy() bool {
	for _, c := range r.Components() {
		if !c.OK() {
			return false
		}
	}
	return true
}

// Check performs a health check against the given config.
// savedPath is where the user saved config (may be empty outside init).
// effectivePath is the config file actually in use (considering priority).
func Check(ctx context.Context, cfg *config.Config, savedPath string, effectivePath string) (*HealthCheckResult, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}

	result := &HealthCheckResult{
		SavedPath:      savedPath,
		SavedScope:     scopeFromPath(savedPath),
		EffectivePath:  effectivePath,
		EffectiveScope: scopeFromPath(effectivePath),
	}

	result.Config = checkConfig(cfg)
	result.Solver = checkSolver(ctx)
	result.ResultStore = checkResultStore(cfg.ResultStore)

	return result, nil
}

// scopeFromPath determines "global" or "project" scope from a config file path.
// Returns empty string if path is empty.
func scopeFromPath(path string) string {
	if path == "" {
		return ""
	}

	home, err := os.UserHomeDir()
	if err == nil {
		globalDir := filepath.Join(home, ".cegar")
		if strings.HasPrefix(path, globalDir) {
			return "global"
		}
	}

	return "project"
}

func checkConfig(cfg *config.Config) ComponentStatus {
	status := ComponentStatus{
		Name:   "config",
		Detail: fmt.Sprintf("traversal=%s merge=%s restart=%s workers=%d", cfg.Traversal, cfg.Merge, cfg.Restart, cfg.Workers),
	}
	if err := cfg.Validate(); err != nil {
		status.Status = StatusError
		status.Error = err.Error()
		return status
	}
	status.Status = StatusReady
	return status
}

// probe is the path x := 0; [cond].
func probe(cond string) arg.Path {
	return arg.Path{
		Nodes:  []int{0, 1, 2},
		States: make([]cpa.AbstractState, 3),
		Edges: []cfa.Edge{
			{ID: 0, From: 0, To: 1, Kind: cfa.EdgeStatement, Code: "x := 0"},
			{ID: 1, From: 1, To: 2, Kind: cfa.EdgeAssume, Code: cond},
		},
	}
}

// checkSolver decides one feasible and one infeasible path.
func checkSolver(ctx context.Context) ComponentStatus {
	status := ComponentStatus{Name: "solver", Detail: "gini"}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	checker := eqdom.NewChecker()
	start := time.Now()
	for cond, want := range map[string]refine.Feasibility{"x == 0": refine.Feasible, "x != 0": refine.Spurious} {
		v, err := checker.Check(ctx, probe(cond), refine.True())
		if err != nil {
			status.Status = StatusError
			status.Error = fmt.Sprintf("solver failed: %v", err)
			return status
		}
		if v.Feasibility != want {
			status.Status = StatusError
			status.Error = fmt.Sprintf("x := 0; [%s] decided %s, want %s", cond, v.Feasibility, want)
			return status
		}
	}
	status.Status = StatusReady
	status.Detail = fmt.Sprintf("gini, probe decided in %s", time.Since(start).Round(time.Microsecond))
	return status
}

// checkResultStore opens the store and verifies that its directory is writable.
func checkResultStore(path string) ComponentStatus {
	status := ComponentStatus{Name: "result store", Detail: path}
	if path == "" {
		status.Status = StatusSkipped
		status.Detail = "not configured"
		return status
	}

	store, err := goals.OpenResultStore(path)
	if err != nil {
		status.Status = StatusError
		status.Error = err.Error()
		return status
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		status.Status = StatusError
		status.Error = fmt.Sprintf("cannot create %s: %v", dir, err)
		return status
	}
	f, err := os.CreateTemp(dir, ".cegar-probe-*")
	if err != nil {
		status.Status = StatusError
		status.Error = fmt.Sprintf("%s is not writable: %v", dir, err)
		return status
	}
	f.Close()
	os.Remove(f.Name())

	status.Status = StatusReady
	status.Detail = fmt.Sprintf("%s (%d outcomes)", path, store.Len())
	return status
}
