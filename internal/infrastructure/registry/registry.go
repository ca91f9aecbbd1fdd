// Package registry stores trained model artifacts on disk and tracks which
// version of each family serves traffic. Activation is fail-closed: a model
// whose recorded feature order disagrees with the live factor order can
// never become active.
package registry

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	sonic "github.com/bytedance/sonic"

	"github.com/tahminlab/matchcast/internal/domain/prediction"
	"github.com/tahminlab/matchcast/internal/observability"
	"github.com/tahminlab/matchcast/internal/platform/logging"
)

const activeFile = "active.json"

// Scorer produces an outcome distribution from the factor vector.
type Scorer interface {
	Predict(factors prediction.FactorVector) (prediction.Distribution, error)
}

// Decoder rebuilds a serving model from its stored artifact.
type Decoder func(family string, artifact []byte) (Scorer, error)

// ModelMeta describes one stored model version.
type ModelMeta struct {
	Family             string    `json:"family"`
	Version            string    `json:"version"`
	TrainedAt          time.Time `json:"trained_at"`
	Samples            int       `json:"samples"`
	FeatureOrder       []string  `json:"feature_order"`
	ValidationAccuracy float64   `json:"validation_accuracy"`
	TriggeredBy        string    `json:"triggered_by,omitempty"`
}

type activeModel struct {
	meta   ModelMeta
	scorer Scorer
}

type Registry struct {
	dir     string
	decode  Decoder
	logger  *logging.Logger
	metrics *observability.Metrics

	mu     sync.RWMutex
	active map[string]activeModel
}

// Open loads the registry at dir and brings up every family named in the
// active pointer file. A family whose model fails validation stays inactive;
// opening never fails because one artifact is broken.
func Open(dir string, decode Decoder, logger *logging.Logger, metrics *observability.Metrics) (*Registry, error) {
	if logger == nil {
		logger = logging.Default()
	}
	if decode == nil {
		return nil, fmt.Errorf("registry requires a decoder")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create models dir: %w", err)
	}

	r := &Registry{
		dir:     dir,
		decode:  decode,
		logger:  logger,
		metrics: metrics,
		active:  make(map[string]activeModel),
	}

	pointers, err := r.readActivePointers()
	if err != nil {
		return nil, err
	}
	for family, version := range pointers {
		model, err := r.loadVersion(family, version)
		if err != nil {
			logger.Error("active model failed validation, family disabled",
				"family", family, "version", version, "error", err)
			continue
		}
		r.active[family] = model
		if metrics != nil {
			metrics.SetActiveModel(family, version)
		}
	}

	return r, nil
}

// Active returns the serving model for a family.
func (r *Registry) Active(family string) (Scorer, ModelMeta, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	model, ok := r.active[family]
	if !ok {
		return nil, ModelMeta{}, false
	}
	return model.scorer, model.meta, true
}

// ActiveVersions maps each serving family to its version.
func (r *Registry) ActiveVersions() map[string]string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]string, len(r.active))
	for family, model := range r.active {
		out[family] = model.meta.Version
	}
	return out
}

// SaveVersion persists a new model version without activating it.
func (r *Registry) SaveVersion(_ context.Context, meta ModelMeta, artifact []byte) error {
	if meta.Family == "" || meta.Version == "" {
		return fmt.Errorf("model meta requires family and version")
	}
	if err := checkFeatureOrder(meta.FeatureOrder); err != nil {
		return fmt.Errorf("refusing to store model %s_%s: %w", meta.Family, meta.Version, err)
	}

	rawMeta, err := sonic.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("encode model meta: %w", err)
	}

	if err := writeFileAtomic(r.artifactPath(meta.Family, meta.Version), artifact); err != nil {
		return fmt.Errorf("write model artifact: %w", err)
	}
	if err := writeFileAtomic(r.metaPath(meta.Family, meta.Version), rawMeta); err != nil {
		return fmt.Errorf("write model meta: %w", err)
	}

	return nil
}

// Activate validates a stored version and flips the family's serving pointer
// to it. Serving continues on the old version until the flip.
func (r *Registry) Activate(_ context.Context, family, version string) error {
	model, err := r.loadVersion(family, version)
	if err != nil {
		return fmt.Errorf("activate %s_%s: %w", family, version, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.active[family] = model

	pointers := make(map[string]string, len(r.active))
	for fam, m := range r.active {
		pointers[fam] = m.meta.Version
	}
	raw, err := sonic.MarshalIndent(pointers, "", "  ")
	if err != nil {
		return fmt.Errorf("encode active pointers: %w", err)
	}
	if err := writeFileAtomic(filepath.Join(r.dir, activeFile), raw); err != nil {
		return fmt.Errorf("write active pointers: %w", err)
	}

	if r.metrics != nil {
		r.metrics.SetActiveModel(family, version)
	}
	r.logger.Info("model activated", "family", family, "version", version)

	return nil
}

// Versions lists stored metas for a family, newest first by trained time.
func (r *Registry) Versions(family string) ([]ModelMeta, error) {
	pattern := filepath.Join(r.dir, family+"_*.meta.json")
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return nil, fmt.Errorf("list model metas: %w", err)
	}

	out := make([]ModelMeta, 0, len(matches))
	for _, path := range matches {
		raw, err := os.ReadFile(path)
		if err != nil {
			r.logger.Warn("skip unreadable model meta", "path", path, "error", err)
			continue
		}
		var meta ModelMeta
		if err := sonic.Unmarshal(raw, &meta); err != nil {
			r.logger.Warn("skip undecodable model meta", "path", path, "error", err)
			continue
		}
		out = append(out, meta)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].TrainedAt.After(out[j].TrainedAt) })
	return out, nil
}

func (r *Registry) loadVersion(family, version string) (activeModel, error) {
	rawMeta, err := os.ReadFile(r.metaPath(family, version))
	if err != nil {
		return activeModel{}, fmt.Errorf("read model meta: %w", err)
	}
	var meta ModelMeta
	if err := sonic.Unmarshal(rawMeta, &meta); err != nil {
		return activeModel{}, fmt.Errorf("decode model meta: %w", err)
	}
	if meta.Family != family || meta.Version != version {
		return activeModel{}, fmt.Errorf("meta identity mismatch: file says %s_%s", meta.Family, meta.Version)
	}
	if err := checkFeatureOrder(meta.FeatureOrder); err != nil {
		return activeModel{}, err
	}

	artifact, err := os.ReadFile(r.artifactPath(family, version))
	if err != nil {
		return activeModel{}, fmt.Errorf("read model artifact: %w", err)
	}
	scorer, err := r.decode(family, artifact)
	if err != nil {
		return activeModel{}, fmt.Errorf("decode model artifact: %w", err)
	}

	return activeModel{meta: meta, scorer: scorer}, nil
}

func (r *Registry) readActivePointers() (map[string]string, error) {
	raw, err := os.ReadFile(filepath.Join(r.dir, activeFile))
	switch {
	case os.IsNotExist(err):
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("read active pointers: %w", err)
	}

	var pointers map[string]string
	if err := sonic.Unmarshal(raw, &pointers); err != nil {
		return nil, fmt.Errorf("decode active pointers: %w", err)
	}
	return pointers, nil
}

func (r *Registry) artifactPath(family, version string) string {
	return filepath.Join(r.dir, fmt.Sprintf("%s_%s.artifact", family, version))
}

func (r *Registry) metaPath(family, version string) string {
	return filepath.Join(r.dir, fmt.Sprintf("%s_%s.meta.json", family, version))
}

// checkFeatureOrder requires an exact match against the live factor order.
// Anything else means the artifact was trained against a different feature
// layout and must not serve.
func checkFeatureOrder(order []string) error {
	if len(order) != prediction.FactorCount {
		return fmt.Errorf("feature order has %d entries, expected %d", len(order), prediction.FactorCount)
	}
	for i, name := range order {
		if name != prediction.FactorNames[i] {
			return fmt.Errorf("feature order mismatch at %d: artifact has %q, live order has %q",
				i, name, prediction.FactorNames[i])
		}
	}
	return nil
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))+"-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	return nil
}
