package app

import (
	"context"
	"sort"
	"sync"
	"time"
)

// memImageStore and memLabelStore are map-backed stores with the same
// semantics as the gorm repositories.
type memImageStore struct {
	mu     sync.Mutex
	images map[string]*Image
	labels *memLabelStore
}

func newMemImageStore(labels *memLabelStore) *memImageStore {
	return &memImageStore{images: map[string]*Image{}, labels: labels}
}

func (m *memImageStore) Create(_ context.Context, image *Image) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := image.BeforeCreate(nil); err != nil {
		return err
	}
	stored := *image
	stored.Labels = nil
	m.images[image.ID] = &stored
	return nil
}

func (m *memImageStore) snapshot(image *Image) Image {
	out := *image
	out.Labels = []Label{}
	for _, l := range image.Labels {
		if label, ok := m.labels.byID(l.ID); ok {
			out.Labels = append(out.Labels, *label)
		}
	}
	sort.Slice(out.Labels, func(i, j int) bool { return out.Labels[i].Name < out.Labels[j].Name })
	return out
}

func (m *memImageStore) FindOwned(_ context.Context, id, ownerID string, statuses ...ImageStatus) (*Image, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	image, ok := m.images[id]
	if !ok || image.OwnerID != ownerID {
		return nil, NotFoundf("image not found")
	}
	for _, s := range statuses {
		if image.Status == s {
			out := m.snapshot(image)
			return &out, nil
		}
	}
	return nil, NotFoundf("image not found")
}

func (m *memImageStore) ListByOwner(_ context.Context, ownerID string, status ImageStatus, labels []string) ([]Image, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []Image{}
	for _, image := range m.images {
		if image.OwnerID != ownerID || image.Status != status {
			continue
		}
		snap := m.snapshot(image)
		if !carriesAll(snap, labels) {
			continue
		}
		out = append(out, snap)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UploadedAt.After(out[j].UploadedAt) })
	return out, nil
}

func carriesAll(image Image, names []string) bool {
	for _, name := range names {
		found := false
		for _, l := range image.Labels {
			if NormalizeLabelName(l.Name) == name {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func (m *memImageStore) CountActive(_ context.Context, ownerID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var count int64
	for _, image := range m.images {
		if image.OwnerID == ownerID && image.Status == StatusActive {
			count++
		}
	}
	return count, nil
}

func (m *memImageStore) SetStatus(_ context.Context, id string, status ImageStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	image, ok := m.images[id]
	if !ok {
		return NotFoundf("image not found")
	}
	image.Status = status
	return nil
}

func (m *memImageStore) AttachLabel(_ context.Context, image *Image, label *Label) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.images[image.ID]
	if !ok {
		return NotFoundf("image not found")
	}
	if stored.HasLabel(label.ID) {
		return BadRequestf("Label already exists on this image")
	}
	stored.Labels = append(stored.Labels, Label{ID: label.ID})
	return nil
}

func (m *memImageStore) DetachLabel(_ context.Context, image *Image, labelID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if stored, ok := m.images[image.ID]; ok {
		stored.Labels = without(stored.Labels, labelID)
	}
	return nil
}

func (m *memImageStore) dropLabel(labelID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, image := range m.images {
		image.Labels = without(image.Labels, labelID)
	}
}

func without(labels []Label, id string) []Label {
	kept := []Label{}
	for _, l := range labels {
		if l.ID != id {
			kept = append(kept, l)
		}
	}
	return kept
}

type memLabelStore struct {
	mu     sync.Mutex
	labels map[string]*Label
	images *memImageStore
}

func newMemLabelStore() *memLabelStore {
	return &memLabelStore{labels: map[string]*Label{}}
}

func (m *memLabelStore) byID(id string) (*Label, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.labels[id]
	return l, ok
}

func (m *memLabelStore) FindOrCreate(ctx context.Context, name, color string) (*Label, error) {
	if l, err := m.FindByName(ctx, name); err == nil {
		return l, nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	label := &Label{Name: name, Color: color}
	if err := label.BeforeCreate(nil); err != nil {
		return nil, err
	}
	m.labels[label.ID] = label
	out := *label
	return &out, nil
}

func (m *memLabelStore) FindByName(_ context.Context, name string) (*Label, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, l := range m.labels {
		if l.Name == name {
			out := *l
			return &out, nil
		}
	}
	return nil, NotFoundf("label not found")
}

func (m *memLabelStore) All(context.Context) ([]Label, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []Label{}
	for _, l := range m.labels {
		out = append(out, *l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *memLabelStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	delete(m.labels, id)
	m.mu.Unlock()
	if m.images != nil {
		m.images.dropLabel(id)
	}
	return nil
}

type memUserStore struct {
	mu    sync.Mutex
	users map[string]*User
}

func newMemUserStore() *memUserStore {
	return &memUserStore{users: map[string]*User{}}
}

func (m *memUserStore) Create(_ context.Context, user *User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == user.Email || u.Username == user.Username {
			return Conflictf("user already exists")
		}
	}
	if err := user.BeforeCreate(nil); err != nil {
		return err
	}
	stored := *user
	m.users[user.ID] = &stored
	return nil
}

func (m *memUserStore) FindByEmail(_ context.Context, email string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email {
			out := *u
			return &out, nil
		}
	}
	return nil, NotFoundf("user not found")
}

func (m *memUserStore) FindByID(_ context.Context, id string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[id]; ok {
		out := *u
		return &out, nil
	}
	return nil, NotFoundf("user not found")
}

type memRevocations struct {
	mu  sync.Mutex
	ids map[string]bool
}

func (m *memRevocations) Revoke(id string, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ids == nil {
		m.ids = map[string]bool{}
	}
	m.ids[id] = true
}

func (m *memRevocations) IsRevoked(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ids[id]
}
