package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/yleoer/zhconv/pkg/engine"
	"github.com/yleoer/zhconv/pkg/jobs"
	"github.com/yleoer/zhconv/pkg/pipeline"
	"github.com/yleoer/zhconv/pkg/scheduler"
	"github.com/yleoer/zhconv/pkg/server"
)

// loadTimeout 限制等待引擎与规则组就绪的时间
const loadTimeout = 2 * time.Minute

type convertFlags struct {
	target      string
	wikitext    bool
	wikitextSet bool
	groups      []string
	groupsSet   bool
	text        string
	outputDir   string
}

func (f *convertFlags) bind(cmd *cobra.Command) {
	fs := cmd.Flags()
	fs.StringVarP(&f.target, "to", "t", "", "Target variant, remembered for next time (default zh-Hant)")
	fs.BoolVarP(&f.wikitext, "wikitext", "w", false, "Process MediaWiki -{ }- markup")
	fs.StringSliceVarP(&f.groups, "groups", "g", nil, "Rule groups to apply, in order")
}

func (f *convertFlags) resolve(cmd *cobra.Command) {
	f.wikitextSet = cmd.Flags().Changed("wikitext")
	f.groupsSet = cmd.Flags().Changed("groups")
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// cliSink 把文本任务的结果写到 stdout，文件任务的结果写入输出目录
type cliSink struct {
	out    io.Writer
	errOut io.Writer
	files  *pipeline.FileSink
}

func (s *cliSink) Deliver(ctx context.Context, artifact pipeline.Artifact) error {
	if artifact.Name == "" {
		_, err := io.WriteString(s.out, artifact.Text)
		return err
	}
	return s.files.Deliver(ctx, artifact)
}

func (s *cliSink) Notify(n pipeline.Notification) {
	if n.Level == pipeline.LevelError {
		fmt.Fprintf(s.errOut, "%s: %s\n", n.Job, n.Message)
	}
	s.files.Notify(n)
}

func newConvertCmd(global *globalFlags) *cobra.Command {
	flags := &convertFlags{}
	cmd := &cobra.Command{
		Use:   "convert [files...]",
		Short: "Convert files, --text, or stdin",
		Long: `Convert each file into <name>.<target><ext> in the output directory.
Without files the text from --text or stdin is converted and written to stdout.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			flags.resolve(cmd)
			ctx, cancel := signalContext()
			defer cancel()

			a, err := newApp(global, true)
			if err != nil {
				return err
			}
			defer a.Close()

			opts, err := a.options(flags)
			if err != nil {
				return err
			}
			batch, err := readJobs(cmd, a, flags, args)
			if err != nil {
				return err
			}

			waitCtx, cancelWait := context.WithTimeout(ctx, loadTimeout)
			defer cancelWait()
			if _, err := a.waitReady(waitCtx); err != nil {
				return err
			}

			sink := &cliSink{
				out:    cmd.OutOrStdout(),
				errOut: cmd.ErrOrStderr(),
				files:  pipeline.NewFileSink(flags.outputDir, "", a.logger),
			}
			outcomes := pipeline.New(a.provider, a.runner, sink, a.logger).Run(ctx, batch, opts)
			failed := 0
			for _, o := range outcomes {
				if o.Err != nil {
					failed++
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d jobs failed", failed, len(batch))
			}
			if len(outcomes) < len(batch) && ctx.Err() != nil {
				return fmt.Errorf("stopped after %d of %d jobs: %w", len(outcomes), len(batch), ctx.Err())
			}
			return nil
		},
	}
	flags.bind(cmd)
	cmd.Flags().StringVarP(&flags.text, "text", "s", "", "Text to convert instead of reading stdin")
	cmd.Flags().StringVarP(&flags.outputDir, "output", "o", ".", "Directory for converted files")
	return cmd
}

func readJobs(cmd *cobra.Command, a *app, flags *convertFlags, args []string) ([]jobs.Job, error) {
	if len(args) == 0 {
		text := flags.text
		if !cmd.Flags().Changed("text") {
			data, err := io.ReadAll(cmd.InOrStdin())
			if err != nil {
				return nil, fmt.Errorf("failed to read stdin: %w", err)
			}
			text = string(data)
		}
		if err := a.prefs.SetInput(text); err != nil {
			a.logger.Warn("Failed to save input", zap.Error(err))
		}
		return []jobs.Job{jobs.NewTextJob(text)}, nil
	}
	batch := make([]jobs.Job, 0, len(args))
	for _, path := range args {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		batch = append(batch, jobs.NewFileJob(filepath.Base(path), data))
	}
	return batch, nil
}

func newWatchCmd(global *globalFlags) *cobra.Command {
	flags := &convertFlags{}
	var inbox, outbox string
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Convert files dropped into the inbox directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			flags.resolve(cmd)
			ctx, cancel := signalContext()
			defer cancel()

			a, err := newApp(global, true)
			if err != nil {
				return err
			}
			defer a.Close()
			if inbox != "" {
				a.cfg.InboxDir = inbox
			}
			if outbox != "" {
				a.cfg.OutboxDir = outbox
			}
			if err := a.cfg.EnsureWatchDirs(); err != nil {
				return err
			}
			// 显式指定的选项会被保存，之后每个文件都读取最新的偏好
			if _, err := a.options(flags); err != nil {
				return err
			}
			current := func() jobs.Options {
				opts, _ := a.options(&convertFlags{})
				return opts
			}

			sink := pipeline.NewFileSink(a.cfg.OutboxDir, "", a.logger)
			p := pipeline.New(a.provider, a.runner, sink, a.logger)
			ts := scheduler.NewTaskScheduler(ctx, scheduler.Config{
				InboxDir:               a.cfg.InboxDir,
				StabilityCheckInterval: a.cfg.StabilityCheckInterval,
				StabilityQuietDuration: a.cfg.StabilityQuietDuration,
				StabilityMaxWait:       a.cfg.StabilityMaxWait,
			}, a.store, p, current, a.logger)
			defer ts.Wait()

			ts.InitialScan()
			a.logger.Info("Application is running. Press Ctrl+C to exit.")
			return ts.Watch(ctx)
		},
	}
	flags.bind(cmd)
	cmd.Flags().StringVar(&inbox, "inbox", "", "Directory to watch (env ZHCONV_INBOX_DIR)")
	cmd.Flags().StringVar(&outbox, "outbox", "", "Directory for converted files (env ZHCONV_OUTBOX_DIR)")
	return cmd
}

func newServeCmd(global *globalFlags) *cobra.Command {
	var listen string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the conversion HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			a, err := newApp(global, true)
			if err != nil {
				return err
			}
			defer a.Close()
			if listen != "" {
				a.cfg.Listen = listen
			}

			gin.SetMode(gin.ReleaseMode)
			srv := server.New(a.provider, a.runner, server.Options{
				APIToken:  a.cfg.APIToken,
				BodyLimit: a.cfg.BodyLimit,
				Version:   version(),
			}, a.logger)
			return srv.ListenAndServe(ctx, a.cfg.Listen)
		},
	}
	cmd.Flags().StringVarP(&listen, "listen", "l", "", "Listen address (env ZHCONV_LISTEN)")
	return cmd
}

func newInfoCmd(global *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Show engine build information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			a, err := newApp(global, true)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, cancelWait := context.WithTimeout(ctx, loadTimeout)
			defer cancelWait()
			eng, err := a.waitReady(ctx)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "version:     %s\n", version())
			fmt.Fprintf(out, "mode:        %s\n", eng.Mode())
			fmt.Fprintf(out, "commit:      %s\n", eng.Commit())
			fmt.Fprintf(out, "built:       %s\n", buildDate())
			for _, m := range []engine.Mode{engine.ModeMediaWiki, engine.ModeOpenCC} {
				if c := eng.SourceCommit(string(m)); c != "" {
					fmt.Fprintf(out, "%-12s %s\n", string(m)+":", c)
				}
			}
			labels := make([]string, 0, len(engine.Variants))
			for _, v := range engine.Variants {
				labels = append(labels, v.Label())
			}
			fmt.Fprintf(out, "variants:    %s\n", strings.Join(labels, ", "))
			return nil
		},
	}
}

func newGroupsCmd(global *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "groups",
		Short: "List the available rule groups",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			a, err := newApp(global, true)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, cancelWait := context.WithTimeout(ctx, loadTimeout)
			defer cancelWait()
			if _, err := a.waitReady(ctx); err != nil {
				return err
			}
			groups, _ := a.provider.RuleGroups()
			selected, _ := a.prefs.Groups()
			chosen := make(map[string]bool, len(selected))
			for _, name := range selected {
				chosen[name] = true
			}
			out := cmd.OutOrStdout()
			for _, name := range groups.Names() {
				mark := " "
				if chosen[name] {
					mark = "*"
				}
				fmt.Fprintf(out, "%s %s\n", mark, name)
			}
			if ts := groups.UpdatedAt(); !ts.IsZero() {
				fmt.Fprintf(out, "updated %s\n", ts.Format(time.RFC3339))
			}
			return nil
		},
	}
}

func newModeCmd(global *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:       "mode [mediawiki|opencc|both]",
		Short:     "Show or set the engine mode",
		Args:      cobra.MaximumNArgs(1),
		ValidArgs: []string{string(engine.ModeMediaWiki), string(engine.ModeOpenCC), string(engine.ModeBoth)},
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(global, false)
			if err != nil {
				return err
			}
			defer a.Close()

			if len(args) == 1 {
				mode, err := engine.ParseMode(args[0])
				if err != nil {
					return err
				}
				if err := a.prefs.SaveMode(mode); err != nil {
					return err
				}
			}
			mode, err := a.prefs.LoadMode()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), mode)
			return nil
		},
	}
}
