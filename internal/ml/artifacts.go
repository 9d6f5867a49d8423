package ml

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"time"

	"pervious-predictor/internal/schema"

	"github.com/rs/zerolog/log"
)

// ArtifactPaths locates the files of one variant.
type ArtifactPaths struct {
	Model  string `json:"model" yaml:"model"`
	Scaler string `json:"scaler" yaml:"scaler"`
	Schema string `json:"schema,omitempty" yaml:"schema"`
}

// Artifacts is the immutable (model, scaler) pair of one variant together
// with the schema it was validated against. It is built once at startup and
// shared by reference; nothing mutates it afterwards.
type Artifacts struct {
	Variant      string
	Paths        ArtifactPaths
	Schema       *schema.Schema
	Model        Model
	Scaler       Scaler
	Explainer    Explainer
	ModelSHA256  string
	ScalerSHA256 string
	SchemaSHA256 string // empty for the built-in schema
	ModelTime    time.Time
	LoadedAt     time.Time
}

// LoadArtifacts checks that both artifact files exist before reading
// anything, then parses them and validates their feature layout against
// the variant's schema. Every failure is a configuration error.
func LoadArtifacts(variant string, paths ArtifactPaths) (*Artifacts, error) {
	fail := func(err error) (*Artifacts, error) {
		return nil, newError(KindConfiguration, variant, err)
	}

	modelInfo, err := os.Stat(paths.Model)
	if err != nil {
		return fail(fmt.Errorf("%w: model %s: %v", ErrArtifactMissing, paths.Model, err))
	}
	if _, err := os.Stat(paths.Scaler); err != nil {
		return fail(fmt.Errorf("%w: scaler %s: %v", ErrArtifactMissing, paths.Scaler, err))
	}

	var sch *schema.Schema
	var schemaSum string
	if paths.Schema != "" {
		data, err := os.ReadFile(paths.Schema)
		if err != nil {
			return fail(fmt.Errorf("failed to read schema %s: %w", paths.Schema, err))
		}
		if sch, err = schema.ParseFor(data, variant); err != nil {
			return fail(fmt.Errorf("schema %s: %w", paths.Schema, err))
		}
		schemaSum = checksum(data)
	} else if sch, err = schema.Builtin(variant); err != nil {
		return fail(err)
	}

	modelData, err := os.ReadFile(paths.Model)
	if err != nil {
		return fail(fmt.Errorf("failed to read model %s: %w", paths.Model, err))
	}
	scalerData, err := os.ReadFile(paths.Scaler)
	if err != nil {
		return fail(fmt.Errorf("failed to read scaler %s: %w", paths.Scaler, err))
	}

	model, err := ParseModel(modelData)
	if err != nil {
		return fail(fmt.Errorf("model %s: %w", paths.Model, err))
	}
	scaler, err := ParseScaler(scalerData)
	if err != nil {
		return fail(fmt.Errorf("scaler %s: %w", paths.Scaler, err))
	}

	if scaler.Dim() != sch.Len() {
		return fail(fmt.Errorf("%w: scaler is fitted on %d features, schema %s has %d",
			ErrArity, scaler.Dim(), variant, sch.Len()))
	}
	if err := sch.Check(scaler.FeatureNames()); err != nil {
		return fail(fmt.Errorf("scaler: %w", err))
	}
	if model.NumFeatures() != sch.Len() {
		return fail(fmt.Errorf("%w: model expects %d features, schema %s has %d",
			ErrArity, model.NumFeatures(), variant, sch.Len()))
	}
	if err := sch.Check(model.FeatureNames()); err != nil {
		return fail(fmt.Errorf("model: %w", err))
	}

	explainer, err := NewExplainer(model)
	if err != nil {
		return fail(err)
	}

	a := &Artifacts{
		Variant:      variant,
		Paths:        paths,
		Schema:       sch,
		Model:        model,
		Scaler:       scaler,
		Explainer:    explainer,
		ModelSHA256:  checksum(modelData),
		ScalerSHA256: checksum(scalerData),
		SchemaSHA256: schemaSum,
		ModelTime:    modelInfo.ModTime(),
		LoadedAt:     time.Now(),
	}

	log.Info().
		Str("variant", variant).
		Str("model_path", paths.Model).
		Str("scaler_path", paths.Scaler).
		Int("features", sch.Len()).
		Int("schema_version", sch.Version).
		Str("model_sha256", a.ModelSHA256[:12]).
		Msg("Artifacts loaded")

	return a, nil
}

// VerifyChecksums compares the loaded artifacts against recorded digests.
// Empty expectations are skipped.
func (a *Artifacts) VerifyChecksums(model, scaler, schema string) error {
	if model != "" && model != a.ModelSHA256 {
		return newError(KindConfiguration, a.Variant,
			fmt.Errorf("model %s checksum %s does not match registered %s", a.Paths.Model, a.ModelSHA256, model))
	}
	if scaler != "" && scaler != a.ScalerSHA256 {
		return newError(KindConfiguration, a.Variant,
			fmt.Errorf("scaler %s checksum %s does not match registered %s", a.Paths.Scaler, a.ScalerSHA256, scaler))
	}
	if schema != "" && schema != a.SchemaSHA256 {
		return newError(KindConfiguration, a.Variant,
			fmt.Errorf("schema %s checksum %q does not match registered %s", a.Paths.Schema, a.SchemaSHA256, schema))
	}
	return nil
}

// ModelAge is the time since the model file was written.
func (a *Artifacts) ModelAge() time.Duration {
	if a.ModelTime.IsZero() {
		return 0
	}
	return time.Since(a.ModelTime)
}

// FileChecksum returns the hex SHA-256 of a file.
func FileChecksum(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return checksum(data), nil
}

func checksum(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
