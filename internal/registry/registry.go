// Package registry records which model and scaler files each variant is
// served from. It keeps every registered artifact pair with its checksums in
// a BoltDB file so a deployment can activate a new pair, roll back to the
// previous one, and detect files that changed on disk after registration.
package registry

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"pervious-predictor/internal/common"
	"pervious-predictor/internal/ml"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"go.etcd.io/bbolt"
)

const (
	versionsBucket = "versions" // ArtifactVersion records keyed variant_sequence
	activeBucket   = "active"   // variant -> active version label
)

var (
	ErrUnknownVariant = errors.New("unknown variant")
	ErrNotFound       = errors.New("version not found")
	ErrNoActive       = errors.New("no active version")
	ErrDuplicate      = errors.New("version already registered")
	ErrModified       = errors.New("artifact modified since registration")
)

// ArtifactVersion is one registered (model, scaler) pair.
type ArtifactVersion struct {
	ID           string           `json:"id"`
	Variant      string           `json:"variant"`
	Version      string           `json:"version"`
	Paths        ml.ArtifactPaths `json:"paths"`
	ModelSHA256  string           `json:"model_sha256"`
	ScalerSHA256 string           `json:"scaler_sha256"`
	SchemaSHA256 string           `json:"schema_sha256,omitempty"`
	Features     int              `json:"features"`
	CreatedAt    time.Time        `json:"created_at"`
	Active       bool             `json:"-"`
}

// Registry is a BoltDB-backed artifact registry. It is safe for concurrent
// use; BoltDB serialises writers.
type Registry struct {
	db *bbolt.DB
}

// Open opens or creates the registry database at path.
func Open(path string) (*Registry, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open registry %s: %w", path, err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(versionsBucket)); err != nil {
			return fmt.Errorf("create versions bucket: %w", err)
		}
		if _, err := tx.CreateBucketIfNotExists([]byte(activeBucket)); err != nil {
			return fmt.Errorf("create active bucket: %w", err)
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Registry{db: db}, nil
}

// Close closes the database. Closing twice is a no-op.
func (r *Registry) Close() error {
	if r.db == nil {
		return nil
	}
	err := r.db.Close()
	r.db = nil
	return err
}

// Register validates the artifact pair against the variant's schema and
// records it under label. An empty label becomes the first free v<N>,
// counting from the number of registered versions. The new version is not
// activated.
func (r *Registry) Register(variant string, paths ml.ArtifactPaths, label string) (*ArtifactVersion, error) {
	if err := checkVariant(variant); err != nil {
		return nil, err
	}

	abs, err := absPaths(paths)
	if err != nil {
		return nil, err
	}
	a, err := ml.LoadArtifacts(variant, abs)
	if err != nil {
		return nil, fmt.Errorf("refusing to register: %w", err)
	}

	v := &ArtifactVersion{
		ID:           uuid.NewString(),
		Variant:      variant,
		Version:      label,
		Paths:        abs,
		ModelSHA256:  a.ModelSHA256,
		ScalerSHA256: a.ScalerSHA256,
		SchemaSHA256: a.SchemaSHA256,
		Features:     a.Schema.Len(),
		CreatedAt:    time.Now().UTC(),
	}

	err = r.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(versionsBucket))

		existing, err := scan(b, variant)
		if err != nil {
			return err
		}
		taken := make(map[string]bool, len(existing))
		for _, e := range existing {
			taken[e.Version] = true
		}
		if v.Version == "" {
			for n := len(existing) + 1; ; n++ {
				if label := fmt.Sprintf("v%d", n); !taken[label] {
					v.Version = label
					break
				}
			}
		}
		if taken[v.Version] {
			return fmt.Errorf("%w: %s %s", ErrDuplicate, variant, v.Version)
		}

		seq, err := b.NextSequence()
		if err != nil {
			return fmt.Errorf("next sequence: %w", err)
		}
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("marshal version: %w", err)
		}
		return b.Put(versionKey(variant, seq), data)
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("variant", variant).
		Str("version", v.Version).
		Str("model_sha256", v.ModelSHA256[:12]).
		Msg("Artifact version registered")

	return v, nil
}

// Activate makes version the one served for variant.
func (r *Registry) Activate(variant, version string) error {
	if err := checkVariant(variant); err != nil {
		return err
	}
	err := r.db.Update(func(tx *bbolt.Tx) error {
		versions, err := scan(tx.Bucket([]byte(versionsBucket)), variant)
		if err != nil {
			return err
		}
		for _, v := range versions {
			if v.Version == version {
				return tx.Bucket([]byte(activeBucket)).Put([]byte(variant), []byte(version))
			}
		}
		return fmt.Errorf("%w: %s %s", ErrNotFound, variant, version)
	})
	if err != nil {
		return err
	}

	log.Info().Str("variant", variant).Str("version", version).Msg("Artifact version activated")
	return nil
}

// Rollback activates the version registered immediately before the active
// one and returns it.
func (r *Registry) Rollback(variant string) (*ArtifactVersion, error) {
	if err := checkVariant(variant); err != nil {
		return nil, err
	}

	var previous *ArtifactVersion
	var from string
	err := r.db.Update(func(tx *bbolt.Tx) error {
		versions, err := scan(tx.Bucket([]byte(versionsBucket)), variant)
		if err != nil {
			return err
		}
		active := tx.Bucket([]byte(activeBucket)).Get([]byte(variant))
		if active == nil {
			return fmt.Errorf("%w for %s", ErrNoActive, variant)
		}

		// versions are in registration order
		currentIdx := -1
		for i, v := range versions {
			if v.Version == string(active) {
				currentIdx = i
				break
			}
		}
		if currentIdx == -1 {
			return fmt.Errorf("%w: active %s %s", ErrNotFound, variant, active)
		}
		if currentIdx == 0 {
			return fmt.Errorf("no previous version available for %s", variant)
		}

		from = string(active)
		previous = &versions[currentIdx-1]
		previous.Active = true
		return tx.Bucket([]byte(activeBucket)).Put([]byte(variant), []byte(previous.Version))
	})
	if err != nil {
		return nil, err
	}

	log.Warn().
		Str("variant", variant).
		Str("from", from).
		Str("to", previous.Version).
		Msg("Artifact version rolled back")

	return previous, nil
}

// Active returns the active version of variant, or ErrNoActive.
func (r *Registry) Active(variant string) (*ArtifactVersion, error) {
	if err := checkVariant(variant); err != nil {
		return nil, err
	}

	var active *ArtifactVersion
	err := r.db.View(func(tx *bbolt.Tx) error {
		label := tx.Bucket([]byte(activeBucket)).Get([]byte(variant))
		if label == nil {
			return fmt.Errorf("%w for %s", ErrNoActive, variant)
		}
		versions, err := scan(tx.Bucket([]byte(versionsBucket)), variant)
		if err != nil {
			return err
		}
		for i := range versions {
			if versions[i].Version == string(label) {
				active = &versions[i]
				active.Active = true
				return nil
			}
		}
		return fmt.Errorf("%w: active %s %s", ErrNotFound, variant, label)
	})
	return active, err
}

// List returns the versions of variant, newest first.
func (r *Registry) List(variant string) ([]ArtifactVersion, error) {
	if err := checkVariant(variant); err != nil {
		return nil, err
	}

	var versions []ArtifactVersion
	err := r.db.View(func(tx *bbolt.Tx) error {
		var err error
		versions, err = scan(tx.Bucket([]byte(versionsBucket)), variant)
		if err != nil {
			return err
		}
		active := string(tx.Bucket([]byte(activeBucket)).Get([]byte(variant)))
		for i := range versions {
			versions[i].Active = versions[i].Version == active
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	for i, j := 0, len(versions)-1; i < j; i, j = i+1, j-1 {
		versions[i], versions[j] = versions[j], versions[i]
	}
	return versions, nil
}

// Verify checks that the active version's files, including its schema when
// one was registered, still match the recorded checksums.
func (r *Registry) Verify(variant string) (*ArtifactVersion, error) {
	v, err := r.Active(variant)
	if err != nil {
		return nil, err
	}
	model, err := ml.FileChecksum(v.Paths.Model)
	if err != nil {
		return v, fmt.Errorf("checksum model %s: %w", v.Paths.Model, err)
	}
	if model != v.ModelSHA256 {
		return v, fmt.Errorf("%w: model %s", ErrModified, v.Paths.Model)
	}
	scaler, err := ml.FileChecksum(v.Paths.Scaler)
	if err != nil {
		return v, fmt.Errorf("checksum scaler %s: %w", v.Paths.Scaler, err)
	}
	if scaler != v.ScalerSHA256 {
		return v, fmt.Errorf("%w: scaler %s", ErrModified, v.Paths.Scaler)
	}
	if v.Paths.Schema == "" {
		return v, nil
	}
	sch, err := ml.FileChecksum(v.Paths.Schema)
	if err != nil {
		return v, fmt.Errorf("checksum schema %s: %w", v.Paths.Schema, err)
	}
	if sch != v.SchemaSHA256 {
		return v, fmt.Errorf("%w: schema %s", ErrModified, v.Paths.Schema)
	}
	return v, nil
}

// scan returns the versions of variant in registration order.
func scan(b *bbolt.Bucket, variant string) ([]ArtifactVersion, error) {
	var versions []ArtifactVersion
	c := b.Cursor()
	prefix := []byte(variant + "_")
	for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
		var av ArtifactVersion
		if err := json.Unmarshal(v, &av); err != nil {
			return nil, fmt.Errorf("unmarshal version %s: %w", k, err)
		}
		versions = append(versions, av)
	}
	return versions, nil
}

// versionKey zero-pads the sequence so byte order is registration order.
func versionKey(variant string, seq uint64) []byte {
	return []byte(fmt.Sprintf("%s_%020d", variant, seq))
}

func checkVariant(variant string) error {
	switch variant {
	case common.VariantStrength, common.VariantPermeability:
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnknownVariant, variant)
	}
}

func absPaths(p ml.ArtifactPaths) (ml.ArtifactPaths, error) {
	var err error
	out := p
	if out.Model, err = filepath.Abs(p.Model); err != nil {
		return p, err
	}
	if out.Scaler, err = filepath.Abs(p.Scaler); err != nil {
		return p, err
	}
	if p.Schema != "" {
		if out.Schema, err = filepath.Abs(p.Schema); err != nil {
			return p, err
		}
	}
	return out, nil
}
