package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"reflow_oven/internal/logger"
	"reflow_oven/internal/models"
	"reflow_oven/internal/repository"

	"github.com/google/uuid"
)

var (
	ErrInvalidProfile    = errors.New("invalid profile")
	ErrProfileNotFound   = errors.New("profile not found")
	ErrProfileInUse      = errors.New("profile is used by the active run")
	ErrNoProfileSelected = errors.New("no profile selected")
)

// DefaultProfile is seeded when the store is empty: a common SAC305
// lead-free curve (preheat, soak, reflow peak, cool down).
var DefaultProfile = models.Profile{
	Name: "Lead-free SAC305",
	Waypoints: []models.Waypoint{
		{TimeS: 0, TempC: 25, PowerPct: 0},
		{TimeS: 90, TempC: 150, PowerPct: 60},
		{TimeS: 180, TempC: 180, PowerPct: 40},
		{TimeS: 240, TempC: 245, PowerPct: 100},
		{TimeS: 270, TempC: 245, PowerPct: 60},
		{TimeS: 330, TempC: 100, PowerPct: 0},
	},
}

// ProfileService is the profile store. Every write goes to the repository
// first; the in-memory list changes only after the write succeeded, and
// reads never touch the database.
type ProfileService struct {
	repo     repository.ProfileRepo
	settings repository.SettingsRepo
	log      *logger.Logger
	now      func() time.Time

	mu       sync.RWMutex
	profiles []models.Profile
	selected string
	inUse    func(profileID string) bool
}

func NewProfileService(repo repository.ProfileRepo, settings repository.SettingsRepo, log *logger.Logger) *ProfileService {
	if log == nil {
		log = logger.Nop()
	}
	return &ProfileService{
		repo:     repo,
		settings: settings,
		log:      log,
		now:      func() time.Time { return time.Now().UTC() },
		inUse:    func(string) bool { return false },
	}
}

// SetInUse installs the check that blocks deleting the active run's profile.
func (s *ProfileService) SetInUse(fn func(profileID string) bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if fn == nil {
		fn = func(string) bool { return false }
	}
	s.inUse = fn
}

// Load fills the cache from the repository, seeding DefaultProfile when the
// store is empty, and restores the persisted selection.
func (s *ProfileService) Load(ctx context.Context) error {
	list, err := s.repo.List(ctx)
	if err != nil {
		return fmt.Errorf("load profiles: %w", err)
	}
	if len(list) == 0 {
		p := DefaultProfile.Clone()
		p.ID = uuid.NewString()
		p.CreatedAt, p.UpdatedAt = s.now(), s.now()
		if err := s.repo.Create(ctx, p); err != nil {
			return fmt.Errorf("seed default profile: %w", err)
		}
		s.log.Infow("profile_seeded", "profile_id", p.ID, "name", p.Name)
		list = []models.Profile{p}
	}

	selected, err := s.settings.Get(ctx, repository.SettingSelectedProfile)
	if err != nil {
		s.log.Warnw("profile_selection_load_failed", "err", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles = list
	if s.index(selected) < 0 {
		selected = list[0].ID
	}
	s.selected = selected
	return nil
}

// NormalizeWaypoints validates waypoints and returns them sorted by time,
// with a (0, 0, 0) waypoint added when none sits at time zero.
func NormalizeWaypoints(w []models.Waypoint) ([]models.Waypoint, error) {
	if len(w) == 0 {
		return nil, fmt.Errorf("%w: no waypoints", ErrInvalidProfile)
	}
	out := make([]models.Waypoint, 0, len(w)+1)
	seen := make(map[float64]bool, len(w))
	for i, p := range w {
		switch {
		case math.IsNaN(p.TimeS) || math.IsNaN(p.TempC) || math.IsNaN(p.PowerPct):
			return nil, fmt.Errorf("%w: waypoint %d is not a number", ErrInvalidProfile, i)
		case math.IsInf(p.TimeS, 0) || math.IsInf(p.TempC, 0):
			return nil, fmt.Errorf("%w: waypoint %d is not finite", ErrInvalidProfile, i)
		case p.TimeS < 0:
			return nil, fmt.Errorf("%w: waypoint %d has negative time %.1f", ErrInvalidProfile, i, p.TimeS)
		case p.TempC < 0:
			return nil, fmt.Errorf("%w: waypoint %d has negative temperature %.1f", ErrInvalidProfile, i, p.TempC)
		case p.PowerPct < 0 || p.PowerPct > 100:
			return nil, fmt.Errorf("%w: waypoint %d power %.1f outside [0, 100]", ErrInvalidProfile, i, p.PowerPct)
		case seen[p.TimeS]:
			return nil, fmt.Errorf("%w: duplicate time %.1f", ErrInvalidProfile, p.TimeS)
		}
		seen[p.TimeS] = true
		out = append(out, p)
	}
	if !seen[0] {
		out = append(out, models.Waypoint{})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TimeS < out[j].TimeS })
	return out, nil
}

func normalizeName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("%w: name is empty", ErrInvalidProfile)
	}
	return name, nil
}

// Create stores a new profile at the end of the list.
func (s *ProfileService) Create(ctx context.Context, name string, waypoints []models.Waypoint) (models.Profile, error) {
	name, err := normalizeName(name)
	if err != nil {
		return models.Profile{}, err
	}
	w, err := NormalizeWaypoints(waypoints)
	if err != nil {
		return models.Profile{}, err
	}
	now := s.now()
	p := models.Profile{ID: uuid.NewString(), Name: name, Waypoints: w, CreatedAt: now, UpdatedAt: now}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.repo.Create(ctx, p); err != nil {
		return models.Profile{}, err
	}
	s.profiles = append(s.profiles, p)
	if s.selected == "" {
		s.selected = p.ID
		s.persistSelection(ctx)
	}
	s.log.Infow("profile_created", "profile_id", p.ID, "name", p.Name, "waypoints", len(w))
	return s.view(p), nil
}

// Update replaces name and waypoints. A running run keeps its own snapshot.
func (s *ProfileService) Update(ctx context.Context, id, name string, waypoints []models.Waypoint) (models.Profile, error) {
	name, err := normalizeName(name)
	if err != nil {
		return models.Profile{}, err
	}
	w, err := NormalizeWaypoints(waypoints)
	if err != nil {
		return models.Profile{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.index(id)
	if i < 0 {
		return models.Profile{}, fmt.Errorf("%w: %q", ErrProfileNotFound, id)
	}
	p := s.profiles[i].Clone()
	p.Name, p.Waypoints, p.UpdatedAt = name, w, s.now()
	if err := s.repo.Update(ctx, p); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return models.Profile{}, fmt.Errorf("%w: %q", ErrProfileNotFound, id)
		}
		return models.Profile{}, err
	}
	s.profiles[i] = p
	s.log.Infow("profile_updated", "profile_id", id, "name", name)
	return s.view(p), nil
}

// Delete removes a profile unless the active run uses it.
func (s *ProfileService) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.index(id)
	if i < 0 {
		return fmt.Errorf("%w: %q", ErrProfileNotFound, id)
	}
	if s.inUse(id) {
		return fmt.Errorf("%w: %q", ErrProfileInUse, id)
	}
	if err := s.repo.Delete(ctx, id); err != nil && !errors.Is(err, repository.ErrNotFound) {
		return err
	}
	s.profiles = append(s.profiles[:i:i], s.profiles[i+1:]...)
	if s.selected == id {
		s.selected = ""
		if len(s.profiles) > 0 {
			s.selected = s.profiles[0].ID
		}
		s.persistSelection(ctx)
	}
	s.log.Infow("profile_deleted", "profile_id", id)
	return nil
}

func (s *ProfileService) Get(id string) (models.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i := s.index(id)
	if i < 0 {
		return models.Profile{}, fmt.Errorf("%w: %q", ErrProfileNotFound, id)
	}
	return s.view(s.profiles[i]), nil
}

// List returns profiles in insertion order with the selection marked.
func (s *ProfileService) List() []models.Profile {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Profile, 0, len(s.profiles))
	for _, p := range s.profiles {
		out = append(out, s.view(p))
	}
	return out
}

// Select makes id the operator's current profile. Selection may change
// during a run; the run keeps the profile it started with.
func (s *ProfileService) Select(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.index(id) < 0 {
		return fmt.Errorf("%w: %q", ErrProfileNotFound, id)
	}
	s.selected = id
	s.persistSelection(ctx)
	return nil
}

func (s *ProfileService) SelectedID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.selected
}

// Selected returns the current profile.
func (s *ProfileService) Selected() (models.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.selectedLocked()
}

// WithSelected calls fn with the current profile under the store's read
// lock. fn must not call back into the store.
func (s *ProfileService) WithSelected(fn func(models.Profile) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, err := s.selectedLocked()
	if err != nil {
		return err
	}
	return fn(p)
}

func (s *ProfileService) selectedLocked() (models.Profile, error) {
	if s.selected == "" {
		return models.Profile{}, ErrNoProfileSelected
	}
	i := s.index(s.selected)
	if i < 0 {
		return models.Profile{}, fmt.Errorf("%w: %q", ErrProfileNotFound, s.selected)
	}
	return s.view(s.profiles[i]), nil
}

// persistSelection is best effort: a lost selection falls back to the first
// profile on the next start.
func (s *ProfileService) persistSelection(ctx context.Context) {
	if err := s.settings.Set(ctx, repository.SettingSelectedProfile, s.selected); err != nil {
		s.log.Warnw("profile_selection_save_failed", "profile_id", s.selected, "err", err)
	}
}

func (s *ProfileService) index(id string) int {
	if id == "" {
		return -1
	}
	for i := range s.profiles {
		if s.profiles[i].ID == id {
			return i
		}
	}
	return -1
}

func (s *ProfileService) view(p models.Profile) models.Profile {
	cp := p.Clone()
	cp.Selected = p.ID == s.selected
	return cp
}
