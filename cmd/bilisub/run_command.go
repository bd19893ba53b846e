package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"bilisub/internal/acquire"
	"bilisub/internal/config"
	"bilisub/internal/logging"
	"bilisub/internal/notifications"
	"bilisub/internal/platform/bilibili"
	"bilisub/internal/queue"
	"bilisub/internal/recognize/whisper"
	"bilisub/internal/workflow"
)

type runOptions struct {
	inputs      []string
	outputDir   string
	concurrency int
	formats     []string
	languages   []string
	noASR       bool
	asrModel    string
	asrLang     string
	saveAudio   bool
	proxy       string
	jsonOutput  bool
}

func newRunCommand(ctx *commandContext) *cobra.Command {
	var opts runOptions

	cmd := &cobra.Command{
		Use:   "run [input...]",
		Short: "Fetch subtitles for a batch of videos",
		Long: `Fetch subtitles for one or more videos in the foreground.

Inputs are BV ids, video URLs, b23.tv short links, or files listing one
input per line ("-" reads stdin). Credentials are read from BILI_SESSDATA,
BILI_JCT and BILI_BUVID3.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if err := opts.apply(cfg); err != nil {
				return err
			}
			inputs, err := collectInputs(cmd.InOrStdin(), append(append([]string(nil), opts.inputs...), args...))
			if err != nil {
				return err
			}
			if len(inputs) == 0 {
				return errors.New("no inputs: pass ids or URLs as arguments or with -i")
			}
			logger, err := ctx.logger()
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}

			signalCtx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			platform, err := bilibili.NewFromConfig(cfg, logger)
			if err != nil {
				return err
			}
			deps := workflow.Deps{
				Platform:   platform,
				Recognizer: whisper.NewService(whisper.ConfigFrom(cfg), logger),
				Notifier:   notifications.NewService(cfg),
			}
			result, err := workflow.RunBatch(signalCtx, cfg, deps, logger, workflow.BatchRequest{
				Inputs:  inputs,
				Formats: cfg.Subtitles.Formats,
				Options: queue.Options{
					Languages:      cfg.Subtitles.Languages,
					UseRecognition: cfg.Recognition.Enabled,
					Model:          opts.asrModel,
					LanguageHint:   opts.asrLang,
					SaveAudio:      cfg.Recognition.SaveAudio,
				},
				Credential: acquire.CredentialFromEnv(),
			})
			if result != nil {
				logger.Info("batch finished",
					logging.Int("total", result.Report.Totals.Total),
					logging.Int("failed", result.Failed()),
					logging.String("report", result.ReportPath),
					logging.String(logging.FieldEventType, "batch_finished"),
				)
			}
			return finishRun(cmd, opts.jsonOutput, result, err)
		},
	}

	flags := cmd.Flags()
	flags.StringArrayVarP(&opts.inputs, "input", "i", nil, "Video id, URL, or file of inputs (repeatable)")
	flags.StringVarP(&opts.outputDir, "output", "o", "", "Output directory (default paths.output_dir)")
	flags.IntVarP(&opts.concurrency, "concurrency", "c", 0, "Maximum tasks running at once")
	flags.StringSliceVarP(&opts.formats, "format", "f", nil, "Output formats: srt, vtt, ass, json, txt, lrc")
	flags.StringSliceVar(&opts.languages, "lang", nil, "Preferred subtitle languages in order")
	flags.BoolVar(&opts.noASR, "no-asr", false, "Disable the speech recognition fallback")
	flags.StringVar(&opts.asrModel, "asr-model", "", "Recognition model override")
	flags.StringVar(&opts.asrLang, "asr-lang", "", "Recognition language hint")
	flags.BoolVar(&opts.saveAudio, "save-audio", false, "Keep the fetched audio next to the subtitles")
	flags.StringVar(&opts.proxy, "proxy", "", "HTTP proxy for platform requests")
	flags.BoolVar(&opts.jsonOutput, "json", false, "Print the run report as JSON")
	return cmd
}

// apply folds flag overrides into the loaded config and re-validates it.
func (o *runOptions) apply(cfg *config.Config) error {
	if dir := strings.TrimSpace(o.outputDir); dir != "" {
		expanded, err := config.ExpandPath(dir)
		if err != nil {
			return fmt.Errorf("resolve output dir: %w", err)
		}
		cfg.Paths.OutputDir = expanded
	}
	if o.concurrency > 0 {
		cfg.Runner.Concurrency = o.concurrency
	}
	if len(o.formats) > 0 {
		formats := make([]string, 0, len(o.formats))
		for _, f := range o.formats {
			formats = append(formats, strings.ToLower(strings.TrimSpace(f)))
		}
		cfg.Subtitles.Formats = formats
	}
	if len(o.languages) > 0 {
		cfg.Subtitles.Languages = o.languages
	}
	if o.noASR {
		cfg.Recognition.Enabled = false
	}
	if o.saveAudio {
		cfg.Recognition.SaveAudio = true
	}
	if proxy := strings.TrimSpace(o.proxy); proxy != "" {
		cfg.Platform.Proxy = proxy
	}
	return cfg.Validate()
}

// collectInputs expands every argument that names a readable file into the
// inputs it lists. Anything else is taken as an input itself.
func collectInputs(stdin io.Reader, args []string) ([]string, error) {
	var inputs []string
	for _, arg := range args {
		arg = strings.TrimSpace(arg)
		if arg == "" {
			continue
		}
		if arg == "-" {
			listed, err := bilibili.ReadInputs(stdin)
			if err != nil {
				return nil, fmt.Errorf("read stdin: %w", err)
			}
			inputs = append(inputs, listed...)
			continue
		}
		if info, err := os.Stat(arg); err == nil && info.Mode().IsRegular() {
			f, err := os.Open(arg)
			if err != nil {
				return nil, err
			}
			listed, err := bilibili.ReadInputs(f)
			f.Close()
			if err != nil {
				return nil, fmt.Errorf("read %s: %w", arg, err)
			}
			inputs = append(inputs, listed...)
			continue
		}
		inputs = append(inputs, arg)
	}
	return inputs, nil
}

// finishRun reports whatever the batch produced before surfacing runErr, so
// inputs that failed to submit do not hide the ones that ran.
func finishRun(cmd *cobra.Command, jsonOutput bool, result *workflow.BatchResult, runErr error) error {
	if result == nil {
		return runErr
	}
	if jsonOutput {
		if err := writeJSON(cmd, result.Report); err != nil {
			return err
		}
	} else {
		printRunSummary(cmd.OutOrStdout(), result)
	}
	if runErr != nil {
		return runErr
	}
	if result.Failed() > 0 {
		return &exitError{code: 1}
	}
	return nil
}

func printRunSummary(out io.Writer, result *workflow.BatchResult) {
	rows := make([][]string, 0, len(result.Report.Items))
	for _, entry := range result.Report.Items {
		title := ""
		if entry.Video != nil {
			title = entry.Video.Title
		}
		detail := strings.Join(entry.Files, ", ")
		if entry.Error != nil {
			detail = entry.Error.Kind + ": " + entry.Error.Message
		} else if entry.Note != "" {
			detail = entry.Note
		}
		rows = append(rows, []string{
			entry.Input,
			colorStatus(out, queue.Status(entry.Status)),
			truncate(title, 40),
			strconv.Itoa(entry.Stats.Authored),
			strconv.Itoa(entry.Stats.Recognized),
			yesNo(entry.UsedRecognition),
			truncate(detail, 60),
		})
	}
	fmt.Fprintln(out, renderTable(out,
		[]string{"Input", "Status", "Title", "Authored", "Recognized", "ASR", "Files / Error"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignLeft, alignLeft},
	))
	totals := result.Report.Totals
	fmt.Fprintf(out, "%d/%d completed (%.0f%%), %d failed, %d cancelled\n",
		totals.Completed, totals.Total, totals.SuccessRate*100, totals.Failed, totals.Cancelled)
	if result.ReportPath != "" {
		fmt.Fprintf(out, "Report: %s\n", result.ReportPath)
	}
}

func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit-1]) + "…"
}
