// Package registry owns the identity registry and the trained recognition
// model. All mutations of either go through a Manager, which serializes them
// behind one lock so management operations never race with a training commit.
package registry

import (
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"facegate/internal/core/errdefs"
	"facegate/internal/core/models"
	"facegate/internal/core/vision"
	"facegate/internal/util/timezone"

	log "github.com/sirupsen/logrus"
)

// Store is the persistence contract the manager relies on.
type Store interface {
	LoadRegistry() (models.Registry, error)
	SaveRegistry(registry models.Registry) error
	SaveIdentity(identity models.Identity) error
	ReserveIdentityID() (int, error)
}

// Match is the outcome of identifying one normalized face sample.
type Match struct {
	Label    int
	Distance float64
	Identity models.Identity

	// Known is false when the label no longer resolves to a registry entry.
	Known bool
}

// Manager is the single owning context for Registry and Model.
type Manager struct {
	mu        sync.RWMutex
	store     Store
	rec       vision.Recognizer
	modelPath string
	registry  models.Registry
}

// New loads the committed registry and model. An empty registry always yields
// an empty model, so no orphan labels survive a restart.
func New(store Store, rec vision.Recognizer, modelPath string) (*Manager, error) {
	registry, err := store.LoadRegistry()
	if err != nil {
		return nil, err
	}
	if registry == nil {
		registry = models.Registry{}
	}

	m := &Manager{
		store:     store,
		rec:       rec,
		modelPath: modelPath,
		registry:  registry,
	}

	if len(registry) == 0 {
		rec.Reset()
		if err := removeIfExists(modelPath); err != nil {
			log.Warnf("Could not remove orphaned model %s: %v", modelPath, err)
		}
		return m, nil
	}

	if err := rec.Load(modelPath); err != nil {
		return nil, fmt.Errorf("%w: load model %s: %v", errdefs.ErrRecognizerUnavailable, modelPath, err)
	}
	log.Infof("Loaded %d identities, model empty=%t", len(registry), rec.Empty())
	return m, nil
}

// Len returns the number of registered identities.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.registry)
}

// Get returns the identity with the given id.
func (m *Manager) Get(id int) (models.Identity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	identity, ok := m.registry[id]
	if !ok {
		return models.Identity{}, errdefs.NewNotFound(id)
	}
	return identity.Clone(), nil
}

// Exists reports whether id is registered.
func (m *Manager) Exists(id int) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.registry[id]
	return ok
}

// Snapshot returns an independent copy of the registry.
func (m *Manager) Snapshot() models.Registry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.registry.Clone()
}

// Search lists identities whose name contains query (case-insensitive),
// most recently registered first. An empty query lists everything.
func (m *Manager) Search(query string) []models.Identity {
	q := strings.ToLower(strings.TrimSpace(query))

	m.mu.RLock()
	out := make([]models.Identity, 0, len(m.registry))
	for _, identity := range m.registry.Clone() {
		if q == "" || strings.Contains(strings.ToLower(identity.Name), q) {
			out = append(out, identity)
		}
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].RegisteredAt.Equal(out[j].RegisteredAt) {
			return out[i].RegisteredAt.After(out[j].RegisteredAt)
		}
		return out[i].ID > out[j].ID
	})
	return out
}

// Rename changes the display name of an identity. The model is untouched.
func (m *Manager) Rename(id int, name string) (models.Identity, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return models.Identity{}, errdefs.NewValidation("name", "must not be blank")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	identity, ok := m.registry[id]
	if !ok {
		return models.Identity{}, errdefs.NewNotFound(id)
	}

	next := m.registry.Clone()
	identity.Name = name
	next[id] = identity
	if err := m.store.SaveRegistry(next); err != nil {
		return models.Identity{}, err
	}
	m.registry = next
	return identity, nil
}

// Delete removes an identity. When the registry becomes empty the model is
// reset and its artifact removed.
func (m *Manager) Delete(id int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.registry[id]; !ok {
		return errdefs.NewNotFound(id)
	}

	next := m.registry.Clone()
	delete(next, id)
	if err := m.store.SaveRegistry(next); err != nil {
		return err
	}
	m.registry = next

	if len(next) == 0 {
		m.rec.Reset()
		if err := removeIfExists(m.modelPath); err != nil {
			return fmt.Errorf("remove model: %w", err)
		}
		log.Info("Registry is empty, recognition model reset")
	}
	return nil
}

// ModelEmpty reports whether the recognizer has any trained state.
func (m *Manager) ModelEmpty() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.rec.Empty()
}

// Enroll registers a new identity trained on samples and commits registry
// and model together.
func (m *Manager) Enroll(name string, samples []*image.Gray) (models.Identity, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return models.Identity{}, errdefs.NewValidation("name", "must not be blank")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	id, err := m.store.ReserveIdentityID()
	if err != nil {
		return models.Identity{}, err
	}

	identity := models.Identity{
		ID:           id,
		Name:         name,
		RegisteredAt: timezone.Now(),
	}
	next := m.registry.Clone()
	next[id] = identity

	if err := m.commit(next, samples, id); err != nil {
		return models.Identity{}, err
	}
	log.Infof("Enrolled identity %d (%s) with %d samples", id, name, len(samples))
	return identity, nil
}

// Recapture merges fresh samples into the model under an existing label.
func (m *Manager) Recapture(id int, samples []*image.Gray) (models.Identity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	identity, ok := m.registry[id]
	if !ok {
		return models.Identity{}, errdefs.NewNotFound(id)
	}

	now := timezone.Now()
	identity.UpdatedAt = &now
	next := m.registry.Clone()
	next[id] = identity

	if err := m.commit(next, samples, id); err != nil {
		return models.Identity{}, err
	}
	log.Infof("Recaptured identity %d (%s) with %d samples", id, identity.Name, len(samples))
	return identity, nil
}

// Identify predicts the label of a normalized sample. A label that no longer
// resolves to a registry entry is reported with Known=false.
func (m *Manager) Identify(sample *image.Gray) (Match, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.rec.Empty() {
		return Match{Label: -1}, errdefs.ErrModelEmpty
	}

	label, distance, err := m.rec.Predict(sample)
	if err != nil {
		return Match{Label: -1}, err
	}

	match := Match{Label: label, Distance: distance}
	if identity, ok := m.registry[label]; ok {
		match.Known = true
		match.Identity = identity
	}
	return match, nil
}

// MarkVerified stamps last_verified on an identity and persists it.
func (m *Manager) MarkVerified(id int, at time.Time) (models.Identity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	identity, ok := m.registry[id]
	if !ok {
		return models.Identity{}, errdefs.NewNotFound(id)
	}

	previous := identity
	identity.LastVerified = &at
	m.registry[id] = identity
	if err := m.store.SaveIdentity(identity); err != nil {
		m.registry[id] = previous
		return models.Identity{}, err
	}
	return identity, nil
}

// commit trains, stages the model next to the committed artifact, commits the
// registry and finally swaps the staged model in. Any failure restores the
// recognizer from the last committed artifact.
func (m *Manager) commit(next models.Registry, samples []*image.Gray, label int) error {
	if err := m.rec.Train(samples, label); err != nil {
		m.restoreModel()
		return fmt.Errorf("train label %d: %w", label, err)
	}

	staged := stagingPath(m.modelPath)
	if err := m.rec.Save(staged); err != nil {
		_ = os.Remove(staged)
		m.restoreModel()
		return fmt.Errorf("save model: %w", err)
	}

	if err := m.store.SaveRegistry(next); err != nil {
		_ = os.Remove(staged)
		m.restoreModel()
		return err
	}

	if err := os.Rename(staged, m.modelPath); err != nil {
		_ = os.Remove(staged)
		if rbErr := m.store.SaveRegistry(m.registry); rbErr != nil {
			log.Errorf("Registry rollback failed: %v", rbErr)
		}
		m.restoreModel()
		return fmt.Errorf("commit model: %w", err)
	}

	m.registry = next
	return nil
}

func (m *Manager) restoreModel() {
	m.rec.Reset()
	if len(m.registry) == 0 {
		return
	}
	if err := m.rec.Load(m.modelPath); err != nil {
		log.Errorf("Could not reload model from %s: %v", m.modelPath, err)
	}
}

// stagingPath keeps the extension, the model format is chosen by it.
func stagingPath(path string) string {
	ext := filepath.Ext(path)
	return strings.TrimSuffix(path, ext) + ".tmp" + ext
}

func removeIfExists(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
