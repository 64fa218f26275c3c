package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/yleoer/zhconv/pkg/config"
	"github.com/yleoer/zhconv/pkg/engine"
)

// globalFlags 覆盖环境变量中的配置
type globalFlags struct {
	dataDir   string
	tablesDir string
	rulesURL  string
	rulesFile string
	encodings []string
	logLevel  string
	mode      string
}

func (f *globalFlags) apply(cfg *config.Config) error {
	if f.dataDir != "" {
		if err := cfg.SetDataDir(f.dataDir); err != nil {
			return err
		}
	}
	if f.tablesDir != "" {
		cfg.TablesDir = f.tablesDir
	}
	if f.rulesURL != "" {
		cfg.RulesURL = f.rulesURL
	}
	if f.rulesFile != "" {
		cfg.RulesFile = f.rulesFile
	}
	if len(f.encodings) > 0 {
		cfg.FallbackEncodings = f.encodings
	}
	if f.logLevel != "" {
		cfg.LogLevel = f.logLevel
	}
	return nil
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}
	root := &cobra.Command{
		Use:   "zhconv",
		Short: "Convert Chinese text between script variants.",
		Long: `zhconv converts Chinese text between script variants (zh-Hans, zh-Hant,
zh-TW, zh-HK, zh-MO, zh-CN, zh-SG, zh-MY) using one of three engine modes:

  mediawiki  MediaWiki conversion tables
  opencc     OpenCC dictionaries
  both       MediaWiki tables layered over OpenCC

Files can be converted one-off, watched from an inbox directory, or served over HTTP.`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version(), engine.Commit, buildDate()),
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.SetVersionTemplate(`{{.Use}} version {{.Version}}` + "\n")

	pf := root.PersistentFlags()
	pf.StringVar(&flags.dataDir, "data-dir", "", "Directory for the preferences database (env ZHCONV_DATA_DIR)")
	pf.StringVar(&flags.tablesDir, "tables", "", "MediaWiki conversion table directory (env ZHCONV_TABLES_DIR)")
	pf.StringVar(&flags.rulesURL, "rules-url", "", "URL of the rule group resource (env ZHCONV_RULES_URL)")
	pf.StringVar(&flags.rulesFile, "rules-file", "", "Local rule group file, used when no URL is set (env ZHCONV_RULES_FILE)")
	pf.StringSliceVar(&flags.encodings, "fallback-encodings", nil, "Encodings tried after UTF-8: gbk, gb18030, big5 (env ZHCONV_FALLBACK_ENCODINGS)")
	pf.StringVar(&flags.logLevel, "log-level", "", "Log level: debug, info, warn, error (env ZHCONV_LOG_LEVEL)")
	pf.StringVarP(&flags.mode, "mode", "m", "", "Engine mode to switch to and remember: mediawiki, opencc, both")

	root.AddCommand(
		newConvertCmd(flags),
		newWatchCmd(flags),
		newServeCmd(flags),
		newInfoCmd(flags),
		newGroupsCmd(flags),
		newModeCmd(flags),
	)
	return root
}
