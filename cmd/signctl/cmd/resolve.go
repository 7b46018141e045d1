package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/menkyo-prep/sign-engine/pkg/app"
	"github.com/menkyo-prep/sign-engine/pkg/models"
	"github.com/menkyo-prep/sign-engine/pkg/services"
)

var (
	resolveCategory   string
	resolveSignID     string
	resolveNoExternal bool
)

var resolveCmd = &cobra.Command{
	Use:   "resolve [query...]",
	Short: "Find the best image for a sign",
	Long: "Resolve a sign code, name or meaning to an image. The catalog is tried first " +
		"(code, English name, Japanese name, meaning, ranked match) before the external search fallback.",
	Example: `  signctl resolve 326
  signctl resolve "no parking" --category regulatory
  signctl resolve 止まれ --no-external`,
	RunE: runResolve,
}

var extractCmd = &cobra.Command{
	Use:   "extract <query...>",
	Short: "Extract the sign code from text",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runExtract,
}

var matchCmd = &cobra.Command{
	Use:   "match <code>",
	Short: "Look up the catalog image for an exact sign code",
	Args:  cobra.ExactArgs(1),
	RunE:  runMatch,
}

var usageCmd = &cobra.Command{
	Use:   "usage <image-id>",
	Short: "Record one use of a catalog image and print the new count",
	Args:  cobra.ExactArgs(1),
	RunE:  runUsage,
}

func init() {
	resolveCmd.Flags().StringVar(&resolveCategory, "category", "", "category hint (regulatory, warning, guidance, ...)")
	resolveCmd.Flags().StringVar(&resolveSignID, "sign-id", "", "return this catalog image directly")
	resolveCmd.Flags().BoolVar(&resolveNoExternal, "no-external", false, "do not fall back to external image search")

	for _, c := range []*cobra.Command{resolveCmd, matchCmd} {
		c.Flags().BoolVar(&jsonOutput, "json", false, "print JSON")
	}
}

func runResolve(cmd *cobra.Command, args []string) error {
	query := strings.Join(args, " ")

	var signID uuid.UUID
	if resolveSignID != "" {
		id, err := uuid.Parse(resolveSignID)
		if err != nil {
			return fmt.Errorf("invalid --sign-id: %w", err)
		}
		signID = id
	}
	if strings.TrimSpace(query) == "" && signID == uuid.Nil {
		return fmt.Errorf("a query or --sign-id is required")
	}

	return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
		var (
			result *models.ImageResult
			err    error
		)
		if resolveNoExternal && signID == uuid.Nil {
			result, err = a.Resolver.ResolveCatalog(ctx, query, resolveCategory)
		} else {
			result, err = a.Resolver.Resolve(ctx, services.ResolveRequest{
				Query:        query,
				CategoryHint: resolveCategory,
				SignID:       signID,
			})
		}
		if err != nil {
			return err
		}
		return writeResult(cmd.OutOrStdout(), result)
	})
}

func runExtract(cmd *cobra.Command, args []string) error {
	return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
		code, err := a.Resolver.ExtractSignCode(ctx, strings.Join(args, " "))
		if err != nil {
			return err
		}
		if code == "" {
			fmt.Fprintln(cmd.OutOrStdout(), "no sign code found")
			return nil
		}
		fmt.Fprintln(cmd.OutOrStdout(), code)
		return nil
	})
}

func runMatch(cmd *cobra.Command, args []string) error {
	if !services.IsSignCode(args[0]) {
		return fmt.Errorf("%q is not a sign code", args[0])
	}

	return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
		rec, err := a.Resolver.MatchExactByCode(ctx, args[0])
		if err != nil {
			return err
		}
		if rec == nil {
			return writeResult(cmd.OutOrStdout(), nil)
		}
		return writeResult(cmd.OutOrStdout(), models.NewImageResult(rec, models.MatchByCode))
	})
}

func runUsage(cmd *cobra.Command, args []string) error {
	id, err := uuid.Parse(args[0])
	if err != nil {
		return fmt.Errorf("invalid image id: %w", err)
	}

	return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
		count, err := a.Usage.Increment(ctx, id)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s used %d times\n", id, count)
		return nil
	})
}
