package state

import (
    "encoding/json"
    "fmt"
    "sort"
    "sync"
)

// Entity is one document of the shared world state. Handlers read and mutate
// entities on behalf of the remote side; the relay core never touches them.
type Entity struct {
    ID   string         `json:"id"`
    Kind string         `json:"kind,omitempty"`
    Data map[string]any `json:"data,omitempty"`
}

// Store is a mutex-guarded in-memory view of the world state shared by all
// peer processes. Handlers that touch it concurrently get serialization for
// free; anything beyond single-document consistency is their own business.
type Store struct {
    mu       sync.RWMutex
    entities map[string]Entity
}

func New() *Store { return &Store{entities: make(map[string]Entity)} }

// Apply inserts or replaces an entity.
func (s *Store) Apply(e Entity) error {
    if e.ID == "" { return fmt.Errorf("state: empty entity id") }
    s.mu.Lock(); defer s.mu.Unlock()
    s.entities[e.ID] = e
    return nil
}

// Remove deletes an entity by id.
func (s *Store) Remove(id string) error {
    if id == "" { return fmt.Errorf("state: empty entity id") }
    s.mu.Lock(); defer s.mu.Unlock()
    delete(s.entities, id)
    return nil
}

// Get returns the entity with the given id.
func (s *Store) Get(id string) (Entity, bool) {
    s.mu.RLock(); defer s.mu.RUnlock()
    e, ok := s.entities[id]
    return e, ok
}

// List returns entities of the given kind (all entities when kind is empty),
// ordered by id.
func (s *Store) List(kind string) []Entity {
    s.mu.RLock(); defer s.mu.RUnlock()
    out := make([]Entity, 0, len(s.entities))
    for _, e := range s.entities {
        if kind != "" && e.Kind != kind { continue }
        out = append(out, e)
    }
    sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
    return out
}

// Len reports the number of stored entities.
func (s *Store) Len() int {
    s.mu.RLock(); defer s.mu.RUnlock()
    return len(s.entities)
}

// Snapshot encodes the state as stable JSON for ease of debugging/migration.
func (s *Store) Snapshot() ([]byte, error) {
    s.mu.RLock(); defer s.mu.RUnlock()
    arr := make([]Entity, 0, len(s.entities))
    for _, e := range s.entities { arr = append(arr, e) }
    sort.Slice(arr, func(i, j int) bool { return arr[i].ID < arr[j].ID })
    return json.Marshal(struct {
        Version  int      `json:"version"`
        Entities []Entity `json:"entities"`
    }{Version: 1, Entities: arr})
}

// Restore replaces the state from a Snapshot payload.
func (s *Store) Restore(buf []byte) error {
    var snapshot struct {
        Version  int      `json:"version"`
        Entities []Entity `json:"entities"`
    }
    if err := json.Unmarshal(buf, &snapshot); err != nil {
        return err
    }
    // For now we only support Version 1.
    s.mu.Lock(); defer s.mu.Unlock()
    s.entities = make(map[string]Entity, len(snapshot.Entities))
    for _, e := range snapshot.Entities {
        if e.ID == "" { continue }
        s.entities[e.ID] = e
    }
    return nil
}
