package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/neurodesk/templateparser/pkg/cache"
	"github.com/neurodesk/templateparser/pkg/registry"
	"github.com/neurodesk/templateparser/pkg/template"
)

const defaultConfigPath = "tagrender.yaml"

// app holds the state shared by the subcommands of one invocation.
type app struct {
	configPath string
	verbose    bool

	cfg    *config
	logger *zap.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}
	rootCmd := &cobra.Command{
		Use:           "tagrender",
		Short:         "Render [tag] templates with conditionals and loops",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd.Flags().Changed("config"))
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
	}
	rootCmd.PersistentFlags().StringVar(&a.configPath, "config", defaultConfigPath, "Path to the tagrender config file")
	rootCmd.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "Enable debug logging")

	rootCmd.AddCommand(a.renderCmd(), a.checkCmd(), a.treeCmd())
	return rootCmd
}

func (a *app) setup(explicitConfig bool) error {
	zcfg := zap.NewProductionConfig()
	if a.verbose {
		zcfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}
	logger, err := zcfg.Build()
	if err != nil {
		return fmt.Errorf("building logger: %w", err)
	}
	a.logger = logger

	cfg, err := loadConfig(a.configPath, explicitConfig)
	if err != nil {
		return err
	}
	a.cfg = cfg
	return nil
}

// registryFor returns a registry and the name to load arg under. Without a
// configured template directory, arg is a file path and its directory
// serves inline templates.
func (a *app) registryFor(arg string, c *cache.Cache) (*registry.Registry, string) {
	dir, name := a.cfg.TemplateDir, arg
	if dir == "" {
		dir, name = filepath.Dir(arg), filepath.Base(arg)
	}
	opts := []registry.Option{registry.WithLogger(a.logger)}
	if c != nil {
		opts = append(opts, registry.WithCache(c))
	}
	if len(a.cfg.Extensions) > 0 {
		opts = append(opts, registry.WithExtensions(a.cfg.Extensions...))
	}
	return registry.New(dir, opts...), name
}

func (a *app) renderOptions() []template.Option {
	var opts []template.Option
	if a.cfg.MaxInlineDepth > 0 {
		opts = append(opts, template.WithMaxInlineDepth(a.cfg.MaxInlineDepth))
	}
	if a.cfg.MaxSteps > 0 {
		opts = append(opts, template.WithMaxSteps(a.cfg.MaxSteps))
	}
	return opts
}

// logTemplateError logs err with its structured fields when it is a
// template error.
func (a *app) logTemplateError(msg, name string, err error) {
	var terr *template.Error
	if errors.As(err, &terr) {
		a.logger.Error(msg, zap.String("template", name), zap.Object("error", terr))
		return
	}
	a.logger.Error(msg, zap.String("template", name), zap.Error(err))
}

func (a *app) renderCmd() *cobra.Command {
	var (
		dataFile string
		sets     []string
		store    bool
	)
	cmd := &cobra.Command{
		Use:   "render TEMPLATE",
		Short: "Render a template to stdout",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			repl, err := a.replacements(dataFile, sets)
			if err != nil {
				return err
			}

			c := cache.New(cache.WithLogger(a.logger))
			reg, name := a.registryFor(args[0], c)
			out, err := reg.Render(name, repl, a.renderOptions()...)
			if err != nil {
				a.logTemplateError("render failed", name, err)
				return err
			}

			if store {
				if a.cfg.StoreDir == "" {
					return errors.New("--store needs store_dir in the config file")
				}
				s, err := cache.NewStore(a.cfg.StoreDir, cache.WithLogger(a.logger))
				if err != nil {
					return err
				}
				key, err := s.Put(out)
				if err != nil {
					return err
				}
				a.logger.Info("page stored", zap.String("key", key), zap.String("dir", s.Dir))
			}

			_, err = fmt.Fprint(cmd.OutOrStdout(), out)
			return err
		},
	}
	cmd.Flags().StringVar(&dataFile, "data", "", "YAML file with values for the template's tags")
	cmd.Flags().StringArrayVar(&sets, "set", nil, "Set a tag value (key=value, value parsed as YAML)")
	cmd.Flags().BoolVar(&store, "store", false, "Also write the rendered page to store_dir")
	return cmd
}

// replacements merges the config defaults, the data file and --set values,
// later sources winning.
func (a *app) replacements(dataFile string, sets []string) (*template.Replacements, error) {
	repl := template.FromMap(a.cfg.Defaults)

	if dataFile != "" {
		b, err := os.ReadFile(dataFile)
		if err != nil {
			return nil, fmt.Errorf("reading data file: %w", err)
		}
		var data map[string]any
		if err := yaml.Unmarshal(b, &data); err != nil {
			return nil, fmt.Errorf("decoding data file %s: %w", dataFile, err)
		}
		repl = repl.Merge(template.FromMap(data))
	}

	for _, kv := range sets {
		key, raw, ok := strings.Cut(kv, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid --set %q, want key=value", kv)
		}
		var v any
		if err := yaml.Unmarshal([]byte(raw), &v); err != nil || v == nil {
			v = raw
		}
		repl.Set(key, v)
	}
	return repl, nil
}

func (a *app) checkCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check TEMPLATE...",
		Short: "Parse templates and report syntax errors",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := cache.New(cache.WithLogger(a.logger))
			failed := 0
			for _, arg := range args {
				reg, name := a.registryFor(arg, c)
				tpl, err := reg.Load(name)
				if err != nil {
					failed++
					a.logTemplateError("check failed", arg, err)
					fmt.Fprintf(cmd.OutOrStdout(), "FAIL %s: %v\n", arg, err)
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "ok   %s (%d tags)\n", arg, len(template.Tags(tpl)))
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d templates failed", failed, len(args))
			}
			return nil
		},
	}
}

func (a *app) treeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tree TEMPLATE",
		Short: "Print the parsed structure of a template",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, name := a.registryFor(args[0], nil)
			tpl, err := reg.Load(name)
			if err != nil {
				a.logTemplateError("parse failed", name, err)
				return err
			}
			_, err = fmt.Fprint(cmd.OutOrStdout(), template.Pretty(tpl))
			return err
		},
	}
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "tagrender:", err)
		os.Exit(1)
	}
}
