package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"alfredoptarigan/report-console/internal/models"
	"alfredoptarigan/report-console/internal/services"
)

var (
	green = color.New(color.FgGreen).SprintFunc()
	gray  = color.New(color.FgHiBlack).SprintFunc()
)

// upload sends path to slot and fails unless the slot ends up ready.
func (rt *runtime) upload(cmd *cobra.Command, slot models.SlotName, path string) (models.UploadSlot, error) {
	file, err := services.StatLocalFile(path)
	if err != nil {
		return models.UploadSlot{}, err
	}
	result, err := rt.orch.Upload(cmd.Context(), slot, file)
	if err != nil {
		return result, err
	}
	if !result.Ready() {
		return result, fmt.Errorf("slot %s is not ready", slot)
	}
	return result, nil
}

func newUploadCommand(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "upload <slot> <file>",
		Short: "Upload a file into a slot (report, standard, judgeScore, doc, audio)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			slot, err := models.ParseSlotName(args[0])
			if err != nil {
				return err
			}
			if _, err := rt.upload(cmd, slot, args[1]); err != nil {
				return err
			}
			rt.out.Slots([]models.UploadSlot{rt.app.Slot(slot)})
			return nil
		},
	}
}

func newParseCommand(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:       "parse <document|score> <backend-path>",
		Short:     "Parse an uploaded document or score sheet",
		Args:      cobra.ExactArgs(2),
		ValidArgs: []string{"document", "score"},
		RunE: func(cmd *cobra.Command, args []string) error {
			switch args[0] {
			case "document":
				if err := rt.orch.ParseDocument(cmd.Context(), args[1]); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), gray(fmt.Sprintf("%d characters extracted", len([]rune(rt.app.DocText())))))
			case "score":
				if err := rt.orch.ParseScore(cmd.Context(), args[1]); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), gray(fmt.Sprintf("%d score items extracted", len(rt.app.ScoreItems()))))
			default:
				return fmt.Errorf("unknown parse kind: %q", args[0])
			}
			return nil
		},
	}
}

func newVerifyCommand(rt *runtime) *cobra.Command {
	var docPath, scorePath string
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Check the document against the score sheet for inconsistencies",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if docPath != "" {
				if err := rt.orch.ParseDocument(ctx, docPath); err != nil {
					return err
				}
			}
			if scorePath != "" {
				if err := rt.orch.ParseScore(ctx, scorePath); err != nil {
					return err
				}
			}
			if _, err := rt.orch.Execute(ctx, models.PipelineVerify, services.TriggerOptions{}); err != nil {
				return err
			}
			if view := rt.app.Verification(); view != nil {
				rt.out.Verification(*view)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&docPath, "doc-path", "", "backend path of the document to parse")
	cmd.Flags().StringVar(&scorePath, "score-path", "", "backend path of the score sheet to parse")
	return cmd
}

func newScoreCommand(rt *runtime) *cobra.Command {
	var report, standard, audio string
	var exportExcel, exportPDF bool
	cmd := &cobra.Command{
		Use:   "score",
		Short: "Generate the ability scoring table and report analysis",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if _, err := rt.upload(cmd, models.SlotReport, report); err != nil {
				return err
			}
			if _, err := rt.upload(cmd, models.SlotStandard, standard); err != nil {
				return err
			}
			if audio != "" {
				if _, err := rt.upload(cmd, models.SlotAudio, audio); err != nil {
					return err
				}
			}

			if _, err := rt.orch.Execute(ctx, models.PipelineScoring, services.TriggerOptions{}); err != nil {
				return err
			}
			if set := rt.app.Scoring(); set != nil {
				rt.out.ScoringTable(set.Table)
			}
			if set := rt.app.Analysis(); set != nil {
				rt.out.Analysis(set.View)
			}

			if exportExcel {
				if err := rt.export(cmd, models.PipelineExportScoring, services.TriggerOptions{}); err != nil {
					return err
				}
			}
			if exportPDF {
				if err := rt.export(cmd, models.PipelineExportPDF, services.TriggerOptions{}); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&report, "report", "", "report document (.doc, .docx)")
	cmd.Flags().StringVar(&standard, "standard", "", "scoring standard (.xlsx, .xls)")
	cmd.Flags().StringVar(&audio, "audio", "", "optional audio recording")
	cmd.Flags().BoolVar(&exportExcel, "export-excel", false, "download the scoring table as Excel")
	cmd.Flags().BoolVar(&exportPDF, "export-pdf", false, "download the full PDF report")
	_ = cmd.MarkFlagRequired("report")
	_ = cmd.MarkFlagRequired("standard")
	return cmd
}

func newDiagnoseCommand(rt *runtime) *cobra.Command {
	var doc, judge, audio string
	var opts services.DiagnosisOptions
	var noAnalysis, noSuggestions, export bool
	cmd := &cobra.Command{
		Use:   "diagnose",
		Short: "Generate the diagnosis report for a report PDF",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := rt.upload(cmd, models.SlotDoc, doc); err != nil {
				return err
			}
			if judge != "" {
				if _, err := rt.upload(cmd, models.SlotJudgeScore, judge); err != nil {
					return err
				}
			}
			if audio != "" {
				if _, err := rt.upload(cmd, models.SlotAudio, audio); err != nil {
					return err
				}
			}

			opts.IncludeEmployeeAnalysis = !noAnalysis
			opts.IncludeGrowthSuggestions = !noSuggestions
			if _, err := rt.orch.Execute(cmd.Context(), models.PipelineDiagnosis, services.TriggerOptions{Diagnosis: opts}); err != nil {
				return err
			}
			if set := rt.app.Diagnosis(); set != nil {
				rt.out.Diagnosis(set.View)
			}

			if export {
				return rt.export(cmd, models.PipelineExportDiagnosis, services.TriggerOptions{})
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&doc, "doc", "", "report PDF (.pdf, .pptx)")
	cmd.Flags().StringVar(&judge, "judge", "", "optional judge score sheet")
	cmd.Flags().StringVar(&audio, "audio", "", "optional audio recording")
	cmd.Flags().StringVar(&opts.EmployeeName, "employee", "", "employee name, extracted from the document when empty")
	cmd.Flags().StringVar(&opts.AbilityModel, "ability-model", "", "ability model, extracted from the document when empty")
	cmd.Flags().StringVar(&opts.Quarter, "quarter", "", "evaluation period, extracted from the document when empty")
	cmd.Flags().StringVar(&opts.PDFAnalysisPath, "pdf-analysis-path", "", "backend path of a PDF analysis file")
	cmd.Flags().BoolVar(&noAnalysis, "no-analysis", false, "omit the strengths and weaknesses sections")
	cmd.Flags().BoolVar(&noSuggestions, "no-suggestions", false, "omit the growth and manager suggestions")
	cmd.Flags().BoolVar(&export, "export", false, "download the diagnosis report as PDF")
	_ = cmd.MarkFlagRequired("doc")
	return cmd
}

func (rt *runtime) export(cmd *cobra.Command, pipeline models.PipelineName, opts services.TriggerOptions) error {
	run, err := rt.orch.Execute(cmd.Context(), pipeline, opts)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), green("⬇  "+run.Path()))
	return nil
}

func newValidateAudioCommand(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "validate-audio <file>",
		Short: "Check an audio recording's size and duration locally",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			file, err := services.StatLocalFile(args[0])
			if err != nil {
				return err
			}
			result := rt.validator.ValidateAudio(cmd.Context(), file)
			level := models.LevelSuccess
			if !result.Valid {
				level = models.LevelDanger
			}
			rt.out.Notification(models.Notification{Level: level, Message: result.Message})
			if result.MIMEType != "" {
				fmt.Fprintln(cmd.OutOrStdout(), gray("mime: "+result.MIMEType))
			}
			if !result.Valid {
				return &services.ValidationError{Message: result.Message}
			}
			return nil
		},
	}
}

func newConfigCommand(rt *runtime) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect or change the backend API key",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "status",
			Short: "Show whether an API key is configured",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				if err := rt.orch.CheckConfig(cmd.Context()); err != nil {
					return err
				}
				if rt.app.APIConfigured() {
					fmt.Fprintln(cmd.OutOrStdout(), green("API key configured"))
				} else {
					fmt.Fprintln(cmd.OutOrStdout(), red("API key not configured"))
				}
				return nil
			},
		},
		&cobra.Command{
			Use:   "validate <api-key>",
			Short: "Validate an API key with the backend",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return rt.orch.ValidateKey(cmd.Context(), args[0])
			},
		},
		&cobra.Command{
			Use:   "save <api-key>",
			Short: "Store an API key in the backend",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return rt.orch.SaveKey(cmd.Context(), args[0])
			},
		},
	)
	return cmd
}

func newSuggestionCommand(rt *runtime) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "suggestion",
		Short: "Act on a scoring suggestion JSON file",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "submit <suggestion.json>",
			Short: "Submit the suggested scores",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				suggestion, err := readSuggestion(args[0])
				if err != nil {
					return err
				}
				_, err = rt.orch.Execute(cmd.Context(), models.PipelineSubmitScore, services.TriggerOptions{Suggestion: suggestion})
				return err
			},
		},
		&cobra.Command{
			Use:   "evidence <suggestion.json>",
			Short: "Download the evaluation evidence document",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				suggestion, err := readSuggestion(args[0])
				if err != nil {
					return err
				}
				return rt.export(cmd, models.PipelineExportEvidence, services.TriggerOptions{Suggestion: suggestion})
			},
		},
	)
	return cmd
}

func readSuggestion(path string) (*models.ScoringSuggestion, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read suggestion: %w", err)
	}
	var suggestion models.ScoringSuggestion
	if err := json.Unmarshal(data, &suggestion); err != nil {
		var syntaxErr *json.SyntaxError
		if errors.As(err, &syntaxErr) {
			return nil, fmt.Errorf("suggestion is not valid JSON at offset %d: %w", syntaxErr.Offset, err)
		}
		return nil, fmt.Errorf("failed to decode suggestion: %w", err)
	}
	return &suggestion, nil
}
