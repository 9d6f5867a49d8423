package main

import (
	"context"
	"errors"
	"fmt"

	"pervious-predictor/internal/cfg"
	"pervious-predictor/internal/common"
	"pervious-predictor/internal/ml"
	"pervious-predictor/internal/registry"
	"pervious-predictor/internal/web"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

var variantNames = []string{common.VariantStrength, common.VariantPermeability}

// resolvePaths picks the artifact files of a variant: the registry's active
// version when there is one, the configured paths otherwise. The returned
// version is nil for configured paths.
func resolvePaths(s *cfg.Settings, reg *registry.Registry, variant string) (ml.ArtifactPaths, *registry.ArtifactVersion, error) {
	configured, err := s.Paths(variant)
	if err != nil {
		return ml.ArtifactPaths{}, nil, err
	}
	if reg == nil {
		return configured, nil, nil
	}

	v, err := reg.Active(variant)
	if errors.Is(err, registry.ErrNoActive) {
		return configured, nil, nil
	}
	if err != nil {
		return ml.ArtifactPaths{}, nil, fmt.Errorf("registry: %w", err)
	}
	paths := v.Paths
	if paths.Schema == "" {
		paths.Schema = configured.Schema
	}
	return paths, v, nil
}

// loadArtifacts loads one variant and checks it against its registry entry.
func loadArtifacts(s *cfg.Settings, reg *registry.Registry, variant string) (*ml.Artifacts, error) {
	paths, version, err := resolvePaths(s, reg, variant)
	if err != nil {
		return nil, &ml.PipelineError{Kind: ml.KindConfiguration, Variant: variant, Err: err}
	}

	a, err := ml.LoadArtifacts(variant, paths)
	if err != nil {
		return nil, err
	}
	if version != nil {
		if err := a.VerifyChecksums(version.ModelSHA256, version.ScalerSHA256, version.SchemaSHA256); err != nil {
			return nil, err
		}
		log.Info().Str("variant", variant).Str("version", version.Version).Msg("Serving registered artifacts")
	}
	return a, nil
}

// loadVariants loads both variants concurrently. A variant whose artifacts
// fail to load is returned disabled with the error; it never stops the
// other one.
func loadVariants(ctx context.Context, s *cfg.Settings, reg *registry.Registry, r ml.Renderer, m ml.MetricsInterface) ([]*web.Variant, error) {
	variants := make([]*web.Variant, len(variantNames))

	g, ctx := errgroup.WithContext(ctx)
	for i, name := range variantNames {
		i, name := i, name
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}

			a, err := loadArtifacts(s, reg, name)
			if err != nil {
				log.Error().Err(err).Str("variant", name).Msg("Artifacts failed to load, form disabled")
				if m != nil {
					m.ArtifactsLoadedSet(name, false)
				}
				variants[i], err = web.NewVariant(name, nil, err)
				return err
			}

			variants[i], err = web.NewVariant(name, ml.NewPipeline(a, r, m), nil)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return variants, nil
}
