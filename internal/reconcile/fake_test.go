package reconcile

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/example/bulk-record-processor/internal/apperr"
	"github.com/example/bulk-record-processor/internal/models"
)

type call struct {
	Method   string
	Resource string
	Body     map[string]string
}

// fakeStore is an in-memory record system keyed by resource path.
type fakeStore struct {
	mu        sync.Mutex
	resources map[string][]models.Record
	calls     []call
	seq       int
	failOn    map[string]error
}

func newFakeStore() *fakeStore {
	return &fakeStore{resources: map[string][]models.Record{}, failOn: map[string]error{}}
}

func (f *fakeStore) seed(resource string, fields map[string]string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.insert(resource, fields)
}

func (f *fakeStore) insert(resource string, fields map[string]string) string {
	f.seq++
	id := fmt.Sprintf("id-%d", f.seq)
	rec := models.Record{"id": id}
	for k, v := range fields {
		rec[k] = v
	}
	f.resources[resource] = append(f.resources[resource], rec)
	return id
}

func (f *fakeStore) LookupSingle(_ context.Context, resource string, filter map[string]string, optional bool) (models.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call{Method: "GET", Resource: resource, Body: filter})
	if err := f.failOn["GET "+resource]; err != nil {
		return nil, err
	}

	var found []models.Record
	for _, rec := range f.resources[resource] {
		match := true
		for k, v := range filter {
			if rec.String(k) != v {
				match = false
				break
			}
		}
		if match {
			found = append(found, rec)
		}
	}
	switch len(found) {
	case 0:
		if optional {
			return nil, nil
		}
		return nil, apperr.NotFound("%s with %v not found", resource, filter)
	case 1:
		return found[0], nil
	default:
		return nil, apperr.Conflict("%d %s records match", len(found), resource)
	}
}

func (f *fakeStore) Create(_ context.Context, resource string, body any) (models.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fields := body.(map[string]string)
	f.calls = append(f.calls, call{Method: "POST", Resource: resource, Body: fields})
	if err := f.failOn["POST "+resource]; err != nil {
		return nil, err
	}
	id := f.insert(resource, fields)
	return models.Record{"id": id}, nil
}

func (f *fakeStore) Update(_ context.Context, resource, id string, body any) (models.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fields := body.(map[string]string)
	f.calls = append(f.calls, call{Method: "PATCH", Resource: resource + "/" + id, Body: fields})
	for _, rec := range f.resources[resource] {
		if rec.ID() == id || recordKeyMatches(rec, id) {
			for k, v := range fields {
				rec[k] = v
			}
			return rec, nil
		}
	}
	return nil, apperr.NotFound("%s/%s not found", resource, id)
}

// recordKeyMatches lets sub-records be addressed by their referenced entity id.
func recordKeyMatches(rec models.Record, id string) bool {
	for k, v := range rec {
		if k != "id" && strings.HasSuffix(k, "Id") && v == id {
			return true
		}
	}
	return false
}

func (f *fakeStore) count(resource string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.resources[resource])
}

func (f *fakeStore) methods(resource string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, c := range f.calls {
		if strings.HasPrefix(c.Resource, resource) && c.Method != "GET" {
			out = append(out, c.Method)
		}
	}
	return out
}

type fakeUsers struct {
	mu        sync.Mutex
	byEmail   map[string]*models.ExternalUser
	created   []models.NewExternalUser
	createErr error
}

func (f *fakeUsers) LookupByEmail(_ context.Context, email string) (*models.ExternalUser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.byEmail[email], nil
}

func (f *fakeUsers) Create(_ context.Context, user models.NewExternalUser) (*models.ExternalUser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, user)
	if f.createErr != nil {
		return nil, f.createErr
	}
	ext := &models.ExternalUser{ID: "ext-" + user.Handle, Handle: user.Handle, Email: user.Email}
	if f.byEmail == nil {
		f.byEmail = map[string]*models.ExternalUser{}
	}
	f.byEmail[user.Email] = ext
	return ext, nil
}
