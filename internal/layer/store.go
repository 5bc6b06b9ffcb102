// internal/layer/store.go - Feature store interface and in-memory implementation
package layer

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

var (
	// ErrNotEditing is returned when committing or rolling back outside an edit session
	ErrNotEditing = errors.New("layer is not in edit mode")
	// ErrAlreadyEditing is returned when an edit session is already open
	ErrAlreadyEditing = errors.New("layer is already in edit mode")
	// ErrFeatureNotFound is returned for unknown or deleted feature ids
	ErrFeatureNotFound = errors.New("feature not found")
)

// Store is a mutable collection of features addressable by id.
//
// Changes made between BeginEdit and CommitEdit are staged and become
// visible to readers outside the session only after a commit. Changes made
// outside a session are applied immediately.
type Store interface {
	Name() string
	Len() int
	// Features returns copies of the live features ordered by id
	Features() []*Feature
	Feature(id FeatureID) (*Feature, bool)
	AddFeature(f *Feature) (FeatureID, error)
	UpdateFeature(f *Feature) error
	DeleteFeature(id FeatureID) error

	HasAttribute(name string) bool
	AddAttribute(name string) error
	Attributes() []string

	BeginEdit() error
	CommitEdit() error
	RollbackEdit() error
	IsEditing() bool
}

// state is one consistent view of the layer
type state struct {
	features   map[FeatureID]*Feature
	attributes []string
}

func (s *state) clone() *state {
	features := make(map[FeatureID]*Feature, len(s.features))
	for id, f := range s.features {
		features[id] = f
	}
	return &state{
		features:   features,
		attributes: append([]string(nil), s.attributes...),
	}
}

func (s *state) hasAttribute(name string) bool {
	for _, a := range s.attributes {
		if a == name {
			return true
		}
	}
	return false
}

// MemoryStore keeps features in memory. It is safe for concurrent use.
type MemoryStore struct {
	mu        sync.RWMutex
	name      string
	nextID    FeatureID
	committed *state
	working   *state
}

// NewMemoryStore creates an empty layer
func NewMemoryStore(name string) *MemoryStore {
	return &MemoryStore{
		name:      name,
		nextID:    1,
		committed: &state{features: make(map[FeatureID]*Feature)},
	}
}

func (s *MemoryStore) Name() string {
	return s.name
}

// current returns the view mutations apply to; callers hold the lock
func (s *MemoryStore) current() *state {
	if s.working != nil {
		return s.working
	}
	return s.committed
}

func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.current().features)
}

func (s *MemoryStore) Features() []*Feature {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedClones(s.current())
}

// CommittedFeatures returns the features as of the last commit
func (s *MemoryStore) CommittedFeatures() []*Feature {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedClones(s.committed)
}

func sortedClones(st *state) []*Feature {
	features := make([]*Feature, 0, len(st.features))
	for _, f := range st.features {
		features = append(features, f.Clone())
	}
	sort.Slice(features, func(i, j int) bool {
		return features[i].ID < features[j].ID
	})
	return features
}

func (s *MemoryStore) Feature(id FeatureID) (*Feature, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	f, ok := s.current().features[id]
	if !ok {
		return nil, false
	}
	return f.Clone(), true
}

// AddFeature stores a copy of f under a newly allocated id. Attributes the
// layer does not know yet are added to its schema.
func (s *MemoryStore) AddFeature(f *Feature) (FeatureID, error) {
	if f == nil {
		return 0, fmt.Errorf("feature is nil")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.current()
	stored := f.Clone()
	stored.ID = s.nextID
	s.nextID++

	for name := range stored.Attributes {
		if !st.hasAttribute(name) {
			st.attributes = append(st.attributes, name)
		}
	}
	st.features[stored.ID] = stored
	return stored.ID, nil
}

// UpdateFeature replaces the geometry and attributes of a live feature
func (s *MemoryStore) UpdateFeature(f *Feature) error {
	if f == nil {
		return fmt.Errorf("feature is nil")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.current()
	if _, ok := st.features[f.ID]; !ok {
		return fmt.Errorf("%w: %d", ErrFeatureNotFound, f.ID)
	}
	for name := range f.Attributes {
		if !st.hasAttribute(name) {
			return fmt.Errorf("unknown attribute %q on feature %d", name, f.ID)
		}
	}
	st.features[f.ID] = f.Clone()
	return nil
}

func (s *MemoryStore) DeleteFeature(id FeatureID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.current()
	if _, ok := st.features[id]; !ok {
		return fmt.Errorf("%w: %d", ErrFeatureNotFound, id)
	}
	delete(st.features, id)
	return nil
}

func (s *MemoryStore) HasAttribute(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current().hasAttribute(name)
}

func (s *MemoryStore) AddAttribute(name string) error {
	if name == "" {
		return fmt.Errorf("attribute name is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.current()
	if st.hasAttribute(name) {
		return fmt.Errorf("attribute %q already exists", name)
	}
	st.attributes = append(st.attributes, name)
	return nil
}

// Attributes returns the attribute names in the order they were added
func (s *MemoryStore) Attributes() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.current().attributes...)
}

func (s *MemoryStore) BeginEdit() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.working != nil {
		return ErrAlreadyEditing
	}
	s.working = s.committed.clone()
	return nil
}

func (s *MemoryStore) CommitEdit() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.working == nil {
		return ErrNotEditing
	}
	s.committed = s.working
	s.working = nil
	return nil
}

// RollbackEdit discards staged changes. Allocated ids stay consumed.
func (s *MemoryStore) RollbackEdit() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.working == nil {
		return ErrNotEditing
	}
	s.working = nil
	return nil
}

func (s *MemoryStore) IsEditing() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.working != nil
}

// Catalog holds one store per layer name
type Catalog struct {
	mu     sync.Mutex
	stores map[string]*MemoryStore
}

// NewCatalog creates an empty catalog
func NewCatalog() *Catalog {
	return &Catalog{stores: make(map[string]*MemoryStore)}
}

// Layer returns the store for name, creating it when needed
func (c *Catalog) Layer(name string) *MemoryStore {
	c.mu.Lock()
	defer c.mu.Unlock()

	store, ok := c.stores[name]
	if !ok {
		store = NewMemoryStore(name)
		c.stores[name] = store
	}
	return store
}

// Add appends a feature to the store of the given layer
func (c *Catalog) Add(layerName string, f *Feature) (FeatureID, error) {
	return c.Layer(layerName).AddFeature(f)
}

// Names returns the layer names, sorted
func (c *Catalog) Names() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	names := make([]string, 0, len(c.stores))
	for name := range c.stores {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Layers returns the stores ordered by name
func (c *Catalog) Layers() []*MemoryStore {
	names := c.Names()

	c.mu.Lock()
	defer c.mu.Unlock()

	stores := make([]*MemoryStore, len(names))
	for i, name := range names {
		stores[i] = c.stores[name]
	}
	return stores
}

// Len returns the number of features across all layers
func (c *Catalog) Len() int {
	total := 0
	for _, store := range c.Layers() {
		total += store.Len()
	}
	return total
}
