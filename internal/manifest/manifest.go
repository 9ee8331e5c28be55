// Package manifest implements the durable, atomically-rewritten
// registry of locally installed models (spec.md §4.4). The file is
// human-readable YAML, matching the serialization convention used
// throughout the example corpus (CWBudde-go-pocket-tts, MrWong99-glyphoxa,
// hyperifyio-goresearch all round-trip config/state through yaml.v3).
package manifest

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/voiced-ai/voiced/errs"
	"github.com/voiced-ai/voiced/model"
)

const registryFileName = "registry.yaml"

// document is the on-disk shape of the registry file.
type document struct {
	Models map[string]model.Info `yaml:"models"`
}

// Store is the single writer of the manifest file. All mutations are
// serialized behind one lock and rewritten atomically (write temp, fsync,
// rename); readers may observe the pre- or post-write file but never a
// partially-written one.
type Store struct {
	mu   sync.Mutex
	path string
	docs map[string]model.Info
}

// Open loads the registry file at dir/registry.yaml, tolerating its absence.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("manifest: create model directory: %w", err)
	}
	path := filepath.Join(dir, registryFileName)

	s := &Store{path: path, docs: map[string]model.Info{}}
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("manifest: read registry: %w", err)
	}

	var doc document
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("manifest: parse registry: %w", err)
	}
	if doc.Models != nil {
		s.docs = doc.Models
	}
	return s, nil
}

// Insert adds or updates an entry, stamping download_timestamp with the
// current epoch seconds, then atomically rewrites the file.
func (s *Store) Insert(info model.Info) *errs.Error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, verr := model.ParseVersion(info.Version); verr != nil {
		return errs.New(errs.InvalidInputParameterValue, "model version does not match the required semver pattern", verr.Error())
	}

	if info.Metadata == nil {
		info.Metadata = map[string]string{}
	}
	info.Metadata["download_timestamp"] = strconv.FormatInt(time.Now().Unix(), 10)

	s.docs[info.ID] = info
	return s.rewrite()
}

// Delete removes an entry and atomically rewrites the file.
func (s *Store) Delete(id string) *errs.Error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.docs, id)
	return s.rewrite()
}

// Get returns the entry for id, if present.
func (s *Store) Get(id string) (model.Info, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	info, ok := s.docs[id]
	return info, ok
}

// List returns all entries whose backing file still exists under dir.
// Entries whose file is missing are dropped from the store and the
// registry file is rewritten before List returns (spec.md §4.4: "a
// missing file is treated as a silent removal on next write").
func (s *Store) List(dir string) []model.Info {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]model.Info, 0, len(s.docs))
	missing := []string{}
	for id, info := range s.docs {
		path := filepath.Join(dir, id)
		if fname, ok := info.Metadata["filename"]; ok && fname != "" {
			path = filepath.Join(dir, fname)
		}
		if _, err := os.Stat(path); err != nil {
			missing = append(missing, id)
			continue
		}
		out = append(out, info)
	}
	if len(missing) > 0 {
		for _, id := range missing {
			delete(s.docs, id)
		}
		s.rewrite()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// rewrite performs the atomic write-temp/fsync/rename sequence. Caller
// must hold s.mu.
func (s *Store) rewrite() *errs.Error {
	doc := document{Models: s.docs}
	data, err := yaml.Marshal(doc)
	if err != nil {
		return errs.New(errs.StorageWriteError, "could not serialize the model registry", err.Error())
	}

	tmpPath := s.path + ".tmp"
	f, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return errs.New(errs.StorageWriteError, "could not open the registry temp file", err.Error())
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return errs.New(errs.StorageWriteError, "could not write the registry temp file", err.Error())
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return errs.New(errs.StorageWriteError, "could not fsync the registry temp file", err.Error())
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return errs.New(errs.StorageWriteError, "could not close the registry temp file", err.Error())
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		return errs.New(errs.StorageWriteError, "could not atomically replace the registry file", err.Error())
	}
	return nil
}
