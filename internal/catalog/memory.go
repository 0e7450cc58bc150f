package catalog

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"
)

const dateLayout = "2006-01-02"

var errInvalidTerm = errors.New("invalid search term")

var _ Backend = (*MemoryBackend)(nil)

// MemoryBackend keeps the catalog in process. It mirrors the executable's
// semantics and lets callers inject failures per command.
type MemoryBackend struct {
	mu       sync.Mutex
	nextID   int64
	photos   []PhotoRecord
	failures map[string]error
	calls    []string
}

// NewMemoryBackend seeds the catalog. Seeded records keep their IDs; new records
// continue after the largest one.
func NewMemoryBackend(seed ...PhotoRecord) *MemoryBackend {
	backend := &MemoryBackend{nextID: 1, failures: map[string]error{}}
	for _, photo := range seed {
		backend.photos = append(backend.photos, photo)
		if photo.ID >= backend.nextID {
			backend.nextID = photo.ID + 1
		}
	}
	return backend
}

// FailOn makes every call of command fail with cause (or a generic error when nil).
func (m *MemoryBackend) FailOn(command string, cause error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cause == nil {
		cause = errInjected
	}
	m.failures[command] = cause
}

func (m *MemoryBackend) ClearFailures() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures = map[string]error{}
}

// Calls lists the commands issued so far, in order.
func (m *MemoryBackend) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

// Photo returns a copy of one record.
func (m *MemoryBackend) Photo(id int64) (PhotoRecord, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	index := m.indexOf(id)
	if index < 0 {
		return PhotoRecord{}, false
	}
	return m.photos[index], true
}

func (m *MemoryBackend) AddPhoto(_ context.Context, photo NewPhoto) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin(CommandAddPhoto); err != nil {
		return err
	}
	m.photos = append(m.photos, PhotoRecord{
		ID:          m.nextID,
		Filename:    photo.Filename,
		FileSizeKB:  photo.FileSizeKB,
		DateTime:    photo.DateTime,
		Location:    photo.Location,
		Description: photo.Description,
		Tags:        photo.Tags,
	})
	m.nextID++
	return nil
}

func (m *MemoryBackend) ListPhotos(_ context.Context) ([]PhotoRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin(CommandGetAllPhotos); err != nil {
		return []PhotoRecord{}, err
	}
	return m.snapshot(), nil
}

func (m *MemoryBackend) ViewPhoto(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin(CommandViewPhoto); err != nil {
		return err
	}
	index := m.indexOf(id)
	if index < 0 {
		return newBridgeError(CommandViewPhoto, "not_found", fmt.Errorf("%w: %d", errNotFound, id))
	}
	m.photos[index].ViewCount++
	return nil
}

func (m *MemoryBackend) DeletePhoto(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin(CommandDeletePhoto); err != nil {
		return err
	}
	index := m.indexOf(id)
	if index < 0 {
		return newBridgeError(CommandDeletePhoto, "not_found", fmt.Errorf("%w: %d", errNotFound, id))
	}
	m.photos = slices.Delete(m.photos, index, index+1)
	return nil
}

func (m *MemoryBackend) Search(_ context.Context, kind SearchKind, term string) ([]PhotoRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin(CommandSearch); err != nil {
		return []PhotoRecord{}, err
	}

	var match func(PhotoRecord) bool
	switch kind {
	case SearchLocation:
		match = func(p PhotoRecord) bool { return p.Location == term }
	case SearchTag:
		match = func(p PhotoRecord) bool { return slices.Contains(SplitTags(p.Tags), strings.TrimSpace(term)) }
	case SearchDateRange:
		from, to, err := parseDateRange(term)
		if err != nil {
			return []PhotoRecord{}, newBridgeError(CommandSearch, "invalid_term", err)
		}
		match = func(p PhotoRecord) bool { return p.DateTime >= from && p.DateTime <= to }
	case SearchDescription:
		needle := strings.ToLower(term)
		match = func(p PhotoRecord) bool { return strings.Contains(strings.ToLower(p.Description), needle) }
	default:
		return []PhotoRecord{}, newBridgeError(CommandSearch, "unsupported_kind", fmt.Errorf("%w: %q", errInvalidTerm, kind))
	}

	results := []PhotoRecord{}
	for _, photo := range m.photos {
		if match(photo) {
			results = append(results, photo)
		}
	}
	return results, nil
}

func (m *MemoryBackend) AddTag(_ context.Context, id int64, tag string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin(CommandAddTag); err != nil {
		return err
	}
	index := m.indexOf(id)
	if index < 0 {
		return newBridgeError(CommandAddTag, "not_found", fmt.Errorf("%w: %d", errNotFound, id))
	}
	tag = strings.TrimSpace(tag)
	tags := SplitTags(m.photos[index].Tags)
	if tag != "" && !slices.Contains(tags, tag) {
		tags = append(tags, tag)
	}
	m.photos[index].Tags = JoinTags(tags)
	return nil
}

func (m *MemoryBackend) Sort(_ context.Context, kind SortKind, ascending bool) ([]PhotoRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin(CommandSort); err != nil {
		return []PhotoRecord{}, err
	}

	var compare func(a, b PhotoRecord) int
	switch kind {
	case SortDate:
		compare = func(a, b PhotoRecord) int { return strings.Compare(a.DateTime, b.DateTime) }
	case SortName:
		compare = func(a, b PhotoRecord) int { return strings.Compare(a.Filename, b.Filename) }
	case SortSize:
		compare = func(a, b PhotoRecord) int { return cmp.Compare(a.FileSizeKB, b.FileSizeKB) }
	case SortPopularity:
		compare = func(a, b PhotoRecord) int { return cmp.Compare(a.ViewCount, b.ViewCount) }
	default:
		return []PhotoRecord{}, newBridgeError(CommandSort, "unsupported_kind", fmt.Errorf("unknown sort key %q", kind))
	}

	sorted := m.snapshot()
	slices.SortFunc(sorted, func(a, b PhotoRecord) int {
		if c := compare(a, b); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	if !ascending {
		slices.Reverse(sorted)
	}
	return sorted, nil
}

func (m *MemoryBackend) UpdatePhoto(_ context.Context, id int64, update PhotoUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin(CommandUpdatePhoto); err != nil {
		return err
	}
	index := m.indexOf(id)
	if index < 0 {
		return newBridgeError(CommandUpdatePhoto, "not_found", fmt.Errorf("%w: %d", errNotFound, id))
	}
	m.photos[index].Location = update.Location
	m.photos[index].Description = update.Description
	m.photos[index].Tags = update.Tags
	return nil
}

func (m *MemoryBackend) begin(command string) error {
	m.calls = append(m.calls, command)
	if cause, ok := m.failures[command]; ok {
		return newBridgeError(command, "injected", cause)
	}
	return nil
}

func (m *MemoryBackend) indexOf(id int64) int {
	return slices.IndexFunc(m.photos, func(p PhotoRecord) bool { return p.ID == id })
}

func (m *MemoryBackend) snapshot() []PhotoRecord {
	out := make([]PhotoRecord, len(m.photos))
	copy(out, m.photos)
	return out
}

// parseDateRange reads "YYYY-MM-DD,YYYY-MM-DD" (inclusive on both ends).
func parseDateRange(term string) (string, string, error) {
	from, to, ok := strings.Cut(term, ",")
	if !ok {
		return "", "", fmt.Errorf("%w: date range %q", errInvalidTerm, term)
	}
	from, to = strings.TrimSpace(from), strings.TrimSpace(to)
	for _, value := range []string{from, to} {
		if _, err := time.Parse(dateLayout, value); err != nil {
			return "", "", fmt.Errorf("%w: date %q", errInvalidTerm, value)
		}
	}
	return from, to, nil
}
