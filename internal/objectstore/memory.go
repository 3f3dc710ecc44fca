package objectstore

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"
)

// MemoryStore keeps objects in memory. Used by tests and local runs.
type MemoryStore struct {
	mu      sync.RWMutex
	baseURL string
	objects map[string]Object
	stored  map[string]time.Time
	uploads int
}

// NewMemoryStore creates a store whose public URLs start with baseURL.
func NewMemoryStore(baseURL string) *MemoryStore {
	return &MemoryStore{
		baseURL: baseURL,
		objects: make(map[string]Object),
		stored:  make(map[string]time.Time),
	}
}

func (s *MemoryStore) Upload(_ context.Context, obj Object) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.uploads++

	key := obj.Bucket + "/" + obj.Path
	if _, exists := s.objects[key]; exists && !obj.Upsert {
		return fmt.Errorf("object %s already exists", key)
	}
	data := make([]byte, len(obj.Data))
	copy(data, obj.Data)
	obj.Data = data
	s.objects[key] = obj
	s.stored[key] = time.Now()
	return nil
}

func (s *MemoryStore) PublicURL(bucket, objectPath string) string {
	return s.baseURL + "/" + bucket + "/" + objectPath
}

// Get returns a stored object.
func (s *MemoryStore) Get(bucket, objectPath string) (Object, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	obj, ok := s.objects[bucket+"/"+objectPath]
	return obj, ok
}

// Uploads counts Upload calls, including rejected ones.
func (s *MemoryStore) Uploads() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.uploads
}

// ServeHTTP serves objects at /<bucket>/<path>, the request path left after
// the public base URL's path is stripped.
func (s *MemoryStore) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	bucket, objectPath, ok := strings.Cut(strings.TrimPrefix(r.URL.Path, "/"), "/")
	if !ok || bucket == "" || objectPath == "" {
		http.NotFound(w, r)
		return
	}

	s.mu.RLock()
	obj, found := s.objects[bucket+"/"+objectPath]
	modified := s.stored[bucket+"/"+objectPath]
	s.mu.RUnlock()
	if !found {
		http.NotFound(w, r)
		return
	}
	if obj.ContentType != "" {
		w.Header().Set("Content-Type", obj.ContentType)
	}
	http.ServeContent(w, r, objectPath, modified, bytes.NewReader(obj.Data))
}
