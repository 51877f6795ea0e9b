package registry

import (
	"sort"

	"github.com/osintops/dragnet/internal/model"
)

// Registry is the indexed, read-only collection of loaded sources. Only
// executable sources (those with a URL template) are indexed by jurisdiction,
// input type, and tag; template-less sources remain reachable by id.
type Registry struct {
	sources        []*model.Source
	byID           map[string]*model.Source
	byJurisdiction map[string][]*model.Source
	byInputType    map[model.InputType][]*model.Source
	byThematicTag  map[string][]*model.Source
}

// New builds a Registry with indexed lookups. Later duplicates of an id win,
// so operator overrides can shadow catalog entries.
func New(sources []*model.Source) *Registry {
	r := &Registry{
		sources:        sources,
		byID:           make(map[string]*model.Source, len(sources)),
		byJurisdiction: make(map[string][]*model.Source),
		byInputType:    make(map[model.InputType][]*model.Source),
		byThematicTag:  make(map[string][]*model.Source),
	}
	for _, s := range sources {
		r.byID[s.ID] = s
		if !s.Executable() {
			continue
		}
		r.byJurisdiction[s.Jurisdiction] = append(r.byJurisdiction[s.Jurisdiction], s)
		r.byInputType[s.InputType] = append(r.byInputType[s.InputType], s)
		for _, tag := range s.ThematicTags {
			r.byThematicTag[tag] = append(r.byThematicTag[tag], s)
		}
	}
	return r
}

// ByID returns the source with the given id, or nil if not loaded.
func (r *Registry) ByID(id string) *model.Source {
	return r.byID[id]
}

// ByJurisdiction returns all executable sources for the jurisdiction code.
func (r *Registry) ByJurisdiction(code string) []*model.Source {
	return r.byJurisdiction[code]
}

// ByInputType returns all executable sources accepting the input type.
func (r *Registry) ByInputType(t model.InputType) []*model.Source {
	return r.byInputType[t]
}

// ByThematicTag returns all executable sources carrying the tag.
func (r *Registry) ByThematicTag(tag string) []*model.Source {
	return r.byThematicTag[tag]
}

// All returns every loaded source, executable or not.
func (r *Registry) All() []*model.Source {
	return r.sources
}

// Len reports the number of loaded sources.
func (r *Registry) Len() int {
	return len(r.sources)
}

// Jurisdictions returns the sorted list of jurisdiction codes with at least
// one executable source.
func (r *Registry) Jurisdictions() []string {
	out := make([]string, 0, len(r.byJurisdiction))
	for code := range r.byJurisdiction {
		out = append(out, code)
	}
	sort.Strings(out)
	return out
}
