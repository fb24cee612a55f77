package models

import (
	"fmt"
	"sort"
	"sync"

	"github.com/pkg/errors"

	"github.com/nvr-ai/go-detect/models/model"
	"github.com/nvr-ai/go-detect/models/projector"
	"github.com/nvr-ai/go-detect/signature"
	"github.com/nvr-ai/go-detect/tensors"
)

// Entry is a registered model with its resolved label table and groups.
type Entry struct {
	// Config is the model description.
	Config model.Config
	// Labels is the label table of the model.
	Labels projector.LabelTable
	// Groups are the semantic groups of the model, by class id. May be nil.
	Groups projector.Groups
}

// LabelCount returns the number of score columns an anchor-free head of this
// model emits: the highest class id plus one.
func (e *Entry) LabelCount() int {
	ids := e.Labels.IDs()
	if len(ids) == 0 {
		return 0
	}
	return ids[len(ids)-1] + 1
}

// Registry holds the registered models and the role map resolved for each.
//
// Role maps are resolved once per model, on first use, and shared afterwards.
// A Registry is safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	entries map[model.Name]*Entry
	roles   map[model.Name]signature.RoleMap
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[model.Name]*Entry),
		roles:   make(map[model.Name]signature.RoleMap),
	}
}

// Register validates a model config, loads its labels and adds it to the
// registry, replacing any model with the same name.
//
// Arguments:
//   - cfg: The model description. cfg.Labels is either a built-in LabelSet or
//     a label file path.
//
// Returns:
//   - *Entry: The registered entry.
//   - error: An error if the config is invalid or its labels or groups cannot
//     be resolved.
//
// Example:
//
// ```go
//
//	reg := models.NewRegistry()
//	entry, err := reg.Register(model.Config{
//	    Name:   "ssd-mobilenet",
//	    Family: model.FamilyPacked,
//	    Path:   "/models/ssd_mobilenet_v2.onnx",
//	    Labels: string(models.LabelSetTFCOCO),
//	})
//
// ```
func (r *Registry) Register(cfg model.Config) (*Entry, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	labels, err := loadLabels(cfg.Labels)
	if err != nil {
		return nil, errors.Wrapf(err, "model %s", cfg.Name)
	}

	groups := DefaultGroups(LabelSet(cfg.Labels))
	if len(cfg.Groups) > 0 {
		if groups, err = resolveGroups(cfg.Groups, labels); err != nil {
			return nil, errors.Wrapf(err, "model %s", cfg.Name)
		}
	}

	e := &Entry{Config: cfg, Labels: labels, Groups: groups}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[cfg.Name] = e
	delete(r.roles, cfg.Name)

	return e, nil
}

// Get returns a registered model.
func (r *Registry) Get(name model.Name) (*Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[name]
	return e, ok
}

// Names returns the registered model names in ascending order.
func (r *Registry) Names() []model.Name {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]model.Name, 0, len(r.entries))
	for n := range r.entries {
		names = append(names, n)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	return names
}

// Roles returns the role map of a model, resolving it from the declared
// outputs on first use.
//
// Arguments:
//   - name: The model name.
//   - outputs: The declared outputs of the model. Ignored once a role map is cached.
//
// Returns:
//   - signature.RoleMap: The cached role map.
//   - error: An error if the model is unknown, or the resolver error.
func (r *Registry) Roles(name model.Name, outputs []tensors.Spec) (signature.RoleMap, error) {
	r.mu.RLock()
	roles, cached := r.roles[name]
	e, ok := r.entries[name]
	r.mu.RUnlock()

	if cached {
		return roles, nil
	}
	if !ok {
		return nil, fmt.Errorf("model %q not registered", name)
	}

	roles, err := signature.Resolve(outputs, e.Config.SignatureOptions(e.LabelCount()))
	if err != nil {
		return nil, errors.Wrapf(err, "model %s", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.roles[name]; ok {
		return existing, nil
	}
	r.roles[name] = roles

	return roles, nil
}

// Forget drops the cached role map of a model so the next Roles call resolves
// it again, for example after its hints were changed.
func (r *Registry) Forget(name model.Name) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.roles, name)
}

func loadLabels(source string) (projector.LabelTable, error) {
	if source == "" {
		return projector.LabelTable{}, nil
	}
	if isLabelSet(source) {
		return Labels(LabelSet(source))
	}
	return projector.LoadLabels(source)
}

func resolveGroups(byName map[string][]string, labels projector.LabelTable) (projector.Groups, error) {
	groups := make(projector.Groups, len(byName))
	for group, names := range byName {
		ids := make([]int, 0, len(names))
		for _, n := range names {
			id, ok := labels.Lookup(n)
			if !ok {
				return nil, fmt.Errorf("group %q: unknown label %q", group, n)
			}
			ids = append(ids, id)
		}
		groups[group] = ids
	}
	return groups, nil
}
