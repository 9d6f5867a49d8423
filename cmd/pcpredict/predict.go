package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"pervious-predictor/internal/common"
	"pervious-predictor/internal/ml"
	"pervious-predictor/internal/schema"

	"github.com/spf13/cobra"
)

var (
	predictVariant     string
	predictSet         []string
	predictPlot        string
	predictExplanation string
	predictJSON        bool
)

var predictCmd = &cobra.Command{
	Use:   "predict",
	Short: "Run one prediction from the command line",
	Long: `Run one prediction with the form defaults, overridden by --set.

Enumerated features take their option label, for example
  pcpredict predict --variant strength --set W/C=0.28 --set Shape=Cube`,
	RunE: runPredict,
}

func init() {
	predictCmd.Flags().StringVar(&predictVariant, "variant", common.VariantStrength, "strength or permeability")
	predictCmd.Flags().StringArrayVar(&predictSet, "set", nil, "Feature value as name=value (repeatable)")
	predictCmd.Flags().StringVar(&predictPlot, "plot", "", "Write the force plot to this file")
	predictCmd.Flags().StringVar(&predictExplanation, "explanation", "", "Write the explanation as JSON to this file")
	predictCmd.Flags().BoolVar(&predictJSON, "json", false, "Print the result as JSON")
}

func runPredict(cmd *cobra.Command, args []string) error {
	reg := openRegistry(settings.RegistryPath)
	a, err := loadArtifacts(&settings, reg, predictVariant)
	if reg != nil {
		reg.Close()
	}
	if err != nil {
		return errors.New(ml.UserMessage(err))
	}

	values, err := applyOverrides(a.Schema, predictSet)
	if err != nil {
		return err
	}
	vec, err := a.Schema.Vector(values)
	if err != nil {
		return err
	}

	var renderer ml.Renderer
	if predictPlot != "" {
		fp, err := newRenderer()
		if err != nil {
			return err
		}
		renderer = fp
	}

	res, err := ml.NewPipeline(a, renderer, nil).Run(cmd.Context(), vec)
	if err != nil {
		return errors.New(ml.UserMessage(err))
	}

	if predictPlot != "" {
		if err := os.WriteFile(predictPlot, res.Plot.Data, 0o644); err != nil {
			return fmt.Errorf("write plot: %w", err)
		}
	}
	if predictExplanation != "" {
		if err := res.Explanation.Save(predictExplanation); err != nil {
			return fmt.Errorf("write explanation: %w", err)
		}
	}

	if predictJSON {
		return printJSON(cmd.OutOrStdout(), res)
	}
	printResult(cmd.OutOrStdout(), a.Schema, res)
	return nil
}

// printJSON writes res including the scaled vector.
func printJSON(w io.Writer, res *ml.Result) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}

// applyOverrides starts from the schema defaults and applies name=value
// pairs. Unknown names are rejected.
func applyOverrides(s *schema.Schema, pairs []string) (map[string]string, error) {
	values := s.Defaults()
	for _, pair := range pairs {
		name, value, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, fmt.Errorf("invalid --set %q, expected name=value", pair)
		}
		name = strings.TrimSpace(name)
		if _, known := values[name]; !known {
			return nil, fmt.Errorf("%w: %s has no feature %q (features: %s)",
				schema.ErrInvalidValue, s.Variant, name, strings.Join(s.Names(), ", "))
		}
		values[name] = value
	}
	return values, nil
}

func printResult(w io.Writer, s *schema.Schema, res *ml.Result) {
	fmt.Fprintf(w, "Predicted %s: %s %s\n\n", s.Target.Name, res.Formatted, res.Unit)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "FEATURE\tSHAP VALUE\n")
	for _, c := range res.Explanation.Sorted() {
		fmt.Fprintf(tw, "%s\t%+.6f\n", c.Name, c.Value)
	}
	fmt.Fprintf(tw, "base value\t%.6f\n", res.Explanation.BaseValue)
	tw.Flush()
}
