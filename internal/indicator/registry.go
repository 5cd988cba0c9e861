package indicator

import (
	"context"
	"sort"
	"sync"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"charting-engine/internal/model"
)

// DuplicatePolicy decides what Register does with a name that already exists.
type DuplicatePolicy int

const (
	// PolicyOverwrite silently replaces the existing descriptor.
	PolicyOverwrite DuplicatePolicy = iota
	// PolicyReject fails with ErrDuplicateIndicator.
	PolicyReject
)

func (p DuplicatePolicy) String() string {
	switch p {
	case PolicyOverwrite:
		return "overwrite"
	case PolicyReject:
		return "reject"
	default:
		return "unknown"
	}
}

// ParsePolicy maps "overwrite" / "reject" to a policy.
func ParsePolicy(s string) (DuplicatePolicy, error) {
	switch s {
	case "", "overwrite":
		return PolicyOverwrite, nil
	case "reject":
		return PolicyReject, nil
	}
	return PolicyOverwrite, errors.Errorf("unknown registry policy %q", s)
}

// Registry maps indicator names to descriptors. It is safe for concurrent
// lookups; registration is expected at startup.
type Registry struct {
	mu          sync.RWMutex
	policy      DuplicatePolicy
	descriptors map[string]*Descriptor
}

// NewRegistry creates an empty registry.
func NewRegistry(policy DuplicatePolicy) *Registry {
	return &Registry{
		policy:      policy,
		descriptors: make(map[string]*Descriptor),
	}
}

// Policy returns the duplicate registration policy.
func (r *Registry) Policy() DuplicatePolicy { return r.policy }

// Register adds d under d.Name.
func (r *Registry) Register(d *Descriptor) error {
	if d == nil || d.Name == "" {
		return errors.New("register: descriptor must have a name")
	}
	if d.NewCalculator == nil {
		return errors.Errorf("register %s: descriptor has no calculator", d.Name)
	}
	if err := d.CheckParams(d.DefaultParams); err != nil {
		return errors.Wrapf(err, "register %s: default params", d.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.descriptors[d.Name]; exists && r.policy == PolicyReject {
		return errors.Wrapf(ErrDuplicateIndicator, "register %s", d.Name)
	}
	r.descriptors[d.Name] = d
	return nil
}

// Get looks up a descriptor by name.
func (r *Registry) Get(name string) (*Descriptor, error) {
	r.mu.RLock()
	d, ok := r.descriptors[name]
	r.mu.RUnlock()
	if !ok {
		return nil, errors.Wrapf(ErrUnknownIndicator, "%q", name)
	}
	return d, nil
}

// List returns the registered names, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.descriptors))
	for name := range r.descriptors {
		names = append(names, name)
	}
	r.mu.RUnlock()
	sort.Strings(names)
	return names
}

// Remove deletes a descriptor.
func (r *Registry) Remove(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.descriptors[name]; !ok {
		return errors.Wrapf(ErrUnknownIndicator, "%q", name)
	}
	delete(r.descriptors, name)
	return nil
}

// SetDefaults re-registers name with new default params, regenerating its
// plot set. This always replaces the entry regardless of policy since the
// identity does not change.
func (r *Registry) SetDefaults(name string, params Params) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.descriptors[name]
	if !ok {
		return errors.Wrapf(ErrUnknownIndicator, "%q", name)
	}
	nd, err := d.WithDefaults(params)
	if err != nil {
		return err
	}
	r.descriptors[name] = nd
	return nil
}

// Compute runs the named indicator over series. overrides replaces the
// default params wholesale when non-nil.
func (r *Registry) Compute(name string, series model.Series, overrides Params) (Result, error) {
	d, err := r.Get(name)
	if err != nil {
		return Result{}, err
	}
	return d.Compute(series, overrides)
}

// Request names one computation for ComputeAll.
type Request struct {
	Name   string `json:"indicator"`
	Params Params `json:"params,omitempty"`
}

// ComputeAll runs several computations over the same read-only series
// concurrently. Results keep the request order.
func (r *Registry) ComputeAll(ctx context.Context, series model.Series, reqs []Request) ([]Result, error) {
	results := make([]Result, len(reqs))
	g, ctx := errgroup.WithContext(ctx)
	for i, req := range reqs {
		i, req := i, req
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			res, err := r.Compute(req.Name, series, req.Params)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
