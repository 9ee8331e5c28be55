// Package modelmgr implements the Model Manager: remote registry
// resolution, capability filtering, download orchestration, and the
// local manifest of installed models.
package modelmgr

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"path/filepath"

	"github.com/voiced-ai/voiced/errs"
	"github.com/voiced-ai/voiced/internal/download"
	"github.com/voiced-ai/voiced/internal/httpclient"
	"github.com/voiced-ai/voiced/internal/manifest"
	"github.com/voiced-ai/voiced/model"
)

// Manager resolves models against a remote registry, downloads them with
// checksum verification, and tracks local installs in a Manifest Store.
type Manager struct {
	registryURL string
	modelDir    string
	client      *httpclient.Client
	downloader  *download.Downloader
	manifest    *manifest.Store
}

// New constructs a Model Manager rooted at modelDir, fetching the remote
// catalog from registryURL (an HTTPS endpoint returning a JSON array of
// model.Info).
func New(registryURL, modelDir string, maxConcurrentDownloads int64) (*Manager, error) {
	store, err := manifest.Open(modelDir)
	if err != nil {
		return nil, fmt.Errorf("open manifest store: %w", err)
	}
	client := httpclient.New(httpclient.DefaultConfig())
	return &Manager{
		registryURL: registryURL,
		modelDir:    modelDir,
		client:      client,
		downloader:  download.New(client, maxConcurrentDownloads),
		manifest:    store,
	}, nil
}

// ListAvailable queries the remote registry and applies the deterministic
// capability filter (spec.md §4.5).
func (m *Manager) ListAvailable(ctx context.Context, typeFilter model.Type, device model.DeviceCapabilities) ([]model.Info, *errs.Error) {
	models, err := m.fetchRegistry(ctx)
	if err != nil {
		return nil, err
	}
	return model.Filter(models, typeFilter, device), nil
}

// ListDownloaded returns manifest entries whose backing files still exist.
func (m *Manager) ListDownloaded() []model.Info {
	return m.manifest.List(m.modelDir)
}

// GetModelInfo returns the manifest entry for id, if installed.
func (m *Manager) GetModelInfo(id string) (model.Info, bool) {
	return m.manifest.Get(id)
}

// DeleteModel removes id from the manifest. The backing file, if present,
// is left to the caller's filesystem cleanup policy.
func (m *Manager) DeleteModel(id string) *errs.Error {
	return m.manifest.Delete(id)
}

// DownloadModel resolves id against the remote registry, downloads it
// into modelDir, verifies its checksum, and records it in the manifest.
func (m *Manager) DownloadModel(ctx context.Context, id string, onProgress func(float64)) *errs.Error {
	models, err := m.fetchRegistry(ctx)
	if err != nil {
		return err
	}

	var info model.Info
	found := false
	for _, mi := range models {
		if mi.ID == id {
			info = mi
			found = true
			break
		}
	}
	if !found {
		return errs.New(errs.ModelFileNotFound, "requested model id was not found in the remote registry", "no catalog entry matches the given id").
			WithRecovery("call listAvailable to see valid model ids")
	}

	dest := filepath.Join(m.modelDir, info.ID)
	req := download.Request{
		URL:            info.DownloadURL,
		Destination:    dest,
		ExpectedSize:   info.SizeBytes,
		ExpectedSHA256: info.ChecksumSHA256,
		OnProgress:     onProgress,
	}
	if derr := m.downloader.Run(ctx, req); derr != nil {
		return derr
	}

	return m.manifest.Insert(info)
}

func (m *Manager) fetchRegistry(ctx context.Context) ([]model.Info, *errs.Error) {
	resp, err := m.client.Get(ctx, m.registryURL, 0)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errs.NetworkHTTPError(resp.StatusCode, resp.Status)
	}

	var models []model.Info
	if jsonErr := json.NewDecoder(resp.Body).Decode(&models); jsonErr != nil {
		return nil, errs.New(errs.NetworkHTTPErrorBase, "remote registry response could not be parsed", jsonErr.Error()).
			WithRecovery("verify the registry endpoint returns a valid JSON model catalog")
	}
	return models, nil
}
