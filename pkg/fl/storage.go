package fl

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"

	pkgerrors "github.com/absmach/splitfed/pkg/errors"
	"github.com/absmach/splitfed/pkg/message"
	"github.com/fxamacker/cbor/v2"
)

// PersistentStorage keeps one checkpoint file per evaluated global model.
type PersistentStorage struct {
	modelsDir string
	mu        sync.RWMutex
}

func NewPersistentStorage(modelsDir string) (*PersistentStorage, error) {
	if err := os.MkdirAll(modelsDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create models directory: %w", err)
	}

	return &PersistentStorage{
		modelsDir: modelsDir,
	}, nil
}

func (ps *PersistentStorage) modelFile(version int) string {
	return filepath.Join(ps.modelsDir, fmt.Sprintf("model_v%d.cbor", version))
}

func (ps *PersistentStorage) SaveModel(version int, snapshot message.Snapshot) error {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	data, err := cbor.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("failed to marshal model: %w", err)
	}

	tmp := ps.modelFile(version) + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write model file: %w", err)
	}
	if err := os.Rename(tmp, ps.modelFile(version)); err != nil {
		return fmt.Errorf("failed to write model file: %w", err)
	}

	return nil
}

func (ps *PersistentStorage) LoadModel(version int) (message.Snapshot, error) {
	ps.mu.RLock()
	defer ps.mu.RUnlock()

	data, err := os.ReadFile(ps.modelFile(version))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, pkgerrors.ErrNotFound
		}

		return nil, fmt.Errorf("failed to read model file: %w", err)
	}

	var snapshot message.Snapshot
	if err := cbor.Unmarshal(data, &snapshot); err != nil {
		return nil, fmt.Errorf("failed to unmarshal model: %w", err)
	}

	return snapshot, nil
}

// ListModels returns the stored versions in ascending order.
func (ps *PersistentStorage) ListModels() ([]int, error) {
	ps.mu.RLock()
	defer ps.mu.RUnlock()

	entries, err := os.ReadDir(ps.modelsDir)
	if err != nil {
		return nil, err
	}

	var versions []int
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		var version int
		if _, err := fmt.Sscanf(entry.Name(), "model_v%d.cbor", &version); err == nil && filepath.Ext(entry.Name()) == ".cbor" {
			versions = append(versions, version)
		}
	}
	slices.Sort(versions)

	return versions, nil
}

// LatestModel loads the checkpoint with the highest version. It returns
// ErrNotFound when the directory holds none.
func (ps *PersistentStorage) LatestModel() (int, message.Snapshot, error) {
	versions, err := ps.ListModels()
	if err != nil {
		return 0, nil, err
	}
	if len(versions) == 0 {
		return 0, nil, pkgerrors.ErrNotFound
	}
	version := versions[len(versions)-1]
	snapshot, err := ps.LoadModel(version)
	if err != nil {
		return 0, nil, err
	}

	return version, snapshot, nil
}
