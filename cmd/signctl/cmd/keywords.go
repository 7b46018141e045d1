package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/menkyo-prep/sign-engine/pkg/app"
	"github.com/menkyo-prep/sign-engine/pkg/services"
)

var keywordsCmd = &cobra.Command{
	Use:   "keywords",
	Short: "Maintain the curated keyword map",
}

var keywordsImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Replace the keyword map with a YAML seed file",
	Args:  cobra.ExactArgs(1),
	RunE:  runKeywordsImport,
}

var keywordsCheckCmd = &cobra.Command{
	Use:   "check <file>",
	Short: "Validate a YAML seed file without touching the database",
	Args:  cobra.ExactArgs(1),
	RunE:  runKeywordsCheck,
}

var keywordsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the keyword map",
	Args:  cobra.NoArgs,
	RunE:  runKeywordsList,
}

var keywordsWatchCmd = &cobra.Command{
	Use:   "watch <file>",
	Short: "Import a seed file and re-import it whenever it changes",
	Args:  cobra.ExactArgs(1),
	RunE:  runKeywordsWatch,
}

func init() {
	keywordsCmd.AddCommand(keywordsImportCmd)
	keywordsCmd.AddCommand(keywordsCheckCmd)
	keywordsCmd.AddCommand(keywordsListCmd)
	keywordsCmd.AddCommand(keywordsWatchCmd)
}

func runKeywordsImport(cmd *cobra.Command, args []string) error {
	return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
		n, err := a.Keywords.ImportFile(ctx, args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "imported %d keywords\n", n)
		return nil
	})
}

func runKeywordsCheck(cmd *cobra.Command, args []string) error {
	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer f.Close()

	entries, err := services.ParseKeywordSeed(f)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s: %d keywords ok\n", args[0], len(entries))
	return nil
}

func runKeywordsList(cmd *cobra.Command, args []string) error {
	return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
		entries, err := a.Keywords.List(ctx)
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		for _, e := range entries {
			fmt.Fprintf(tw, "%s\t%s\n", e.Keyword, e.SignCode)
		}
		return tw.Flush()
	})
}

func runKeywordsWatch(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return withApp(ctx, func(ctx context.Context, a *app.App) error {
		n, err := a.Keywords.ImportFile(ctx, args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "imported %d keywords, watching %s\n", n, args[0])

		return services.NewKeywordSeedWatcher(a.Keywords, args[0], a.Logger).Run(ctx)
	})
}
