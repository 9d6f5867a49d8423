package main

import (
	"errors"
	"fmt"
	"text/tabwriter"

	"pervious-predictor/internal/ml"
	"pervious-predictor/internal/registry"

	"github.com/spf13/cobra"
)

var (
	registryVariant string
	registryModel   string
	registryScaler  string
	registrySchema  string
	registryLabel   string
	registryAct     bool
)

var registryCmd = &cobra.Command{
	Use:   "registry",
	Short: "Manage registered model and scaler versions",
	Long: `Record model and scaler pairs with their checksums and choose which
one each variant is served from.

Available subcommands:
  add      - Validate and register a model and scaler pair
  activate - Serve a registered version
  rollback - Serve the version registered before the active one
  list     - List registered versions
  verify   - Check the active files against their recorded checksums`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := setup(cmd, args); err != nil {
			return err
		}
		if settings.RegistryPath == "" {
			return errors.New("REGISTRY_PATH is not configured")
		}
		return nil
	},
}

var registryAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Validate and register a model and scaler pair",
	RunE: withRegistry(func(cmd *cobra.Command, reg *registry.Registry, args []string) error {
		v, err := reg.Register(registryVariant, ml.ArtifactPaths{
			Model:  registryModel,
			Scaler: registryScaler,
			Schema: registrySchema,
		}, registryLabel)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "registered %s %s (model %s)\n", v.Variant, v.Version, v.ModelSHA256[:12])
		if registryAct {
			if err := reg.Activate(v.Variant, v.Version); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "activated %s %s\n", v.Variant, v.Version)
		}
		return nil
	}),
}

var registryActivateCmd = &cobra.Command{
	Use:   "activate VERSION",
	Short: "Serve a registered version",
	Args:  cobra.ExactArgs(1),
	RunE: withRegistry(func(cmd *cobra.Command, reg *registry.Registry, args []string) error {
		if err := reg.Activate(registryVariant, args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "activated %s %s\n", registryVariant, args[0])
		return nil
	}),
}

var registryRollbackCmd = &cobra.Command{
	Use:   "rollback",
	Short: "Serve the version registered before the active one",
	RunE: withRegistry(func(cmd *cobra.Command, reg *registry.Registry, args []string) error {
		v, err := reg.Rollback(registryVariant)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "rolled back %s to %s\n", v.Variant, v.Version)
		return nil
	}),
}

var registryListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered versions",
	RunE: withRegistry(func(cmd *cobra.Command, reg *registry.Registry, args []string) error {
		versions, err := reg.List(registryVariant)
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "ACTIVE\tVERSION\tCREATED\tMODEL SHA256\tMODEL")
		for _, v := range versions {
			marker := ""
			if v.Active {
				marker = "*"
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
				marker, v.Version, v.CreatedAt.Format("2006-01-02 15:04:05"), v.ModelSHA256[:12], v.Paths.Model)
		}
		return tw.Flush()
	}),
}

var registryVerifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Check the active files against their recorded checksums",
	RunE: withRegistry(func(cmd *cobra.Command, reg *registry.Registry, args []string) error {
		v, err := reg.Verify(registryVariant)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s %s ok\n", v.Variant, v.Version)
		return nil
	}),
}

func init() {
	registryCmd.PersistentFlags().StringVar(&registryVariant, "variant", "strength", "strength or permeability")

	registryAddCmd.Flags().StringVar(&registryModel, "model", "", "Model export (required)")
	registryAddCmd.Flags().StringVar(&registryScaler, "scaler", "", "Scaler export (required)")
	registryAddCmd.Flags().StringVar(&registrySchema, "schema", "", "Feature schema (default: built-in)")
	registryAddCmd.Flags().StringVar(&registryLabel, "label", "", "Version label (default: v<N>)")
	registryAddCmd.Flags().BoolVar(&registryAct, "activate", false, "Activate the new version")
	registryAddCmd.MarkFlagRequired("model")
	registryAddCmd.MarkFlagRequired("scaler")

	registryCmd.AddCommand(registryAddCmd, registryActivateCmd, registryRollbackCmd, registryListCmd, registryVerifyCmd)
}

func withRegistry(run func(cmd *cobra.Command, reg *registry.Registry, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		reg, err := registry.Open(settings.RegistryPath)
		if err != nil {
			return err
		}
		defer reg.Close()
		return run(cmd, reg, args)
	}
}
