package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Paul60209/toolbench/internal/langcode"
	"github.com/Paul60209/toolbench/internal/translator"
)

func newTranslateCmd() *cobra.Command {
	var (
		fromLang  string
		toLang    string
		outputDir string
	)
	cmd := &cobra.Command{
		Use:   "translate <file.pptx>",
		Short: "Translate a local PowerPoint file",
		Long: `Translate a local PowerPoint file.

Reads the presentation, translates every text run with the configured LLM
while preserving formatting, and writes translated_<name> into the output
directory. Language names are fuzzy-matched, so "englsh" works.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if fromLang == "" || toLang == "" {
				return errors.New("both --from and --to are required")
			}

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			setupLogging(cfg)

			ctx, stop := signalContext()
			defer stop()

			svc, err := buildTranslationService(cfg, nil)
			if err != nil {
				return err
			}
			pipeline := translator.NewPipeline(svc)

			if outputDir == "" {
				outputDir = cfg.Translator.OutputDir
			}

			resolver := langcode.NewResolver()
			outPath, err := pipeline.Run(ctx, translator.Job{
				SourcePath: args[0],
				OutputDir:  outputDir,
				SourceLang: resolveLang(resolver, fromLang),
				TargetLang: resolveLang(resolver, toLang),
				Observer:   translator.SlogObserver{},
			})
			if err != nil {
				return err
			}
			fmt.Printf("Translated presentation written to %s\n", outPath)
			return nil
		},
	}
	cmd.Flags().StringVar(&fromLang, "from", "", "source language (name or code)")
	cmd.Flags().StringVar(&toLang, "to", "", "target language (name or code)")
	cmd.Flags().StringVar(&outputDir, "output", "", "output directory (default from config, then ./output)")
	return cmd
}

// resolveLang fuzzy-resolves a language name, passing unknown inputs through
// verbatim.
func resolveLang(resolver *langcode.Resolver, input string) string {
	lang, err := resolver.Resolve(input)
	if err != nil {
		return input
	}
	return lang.Name
}
