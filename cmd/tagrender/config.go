package main

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"gopkg.in/yaml.v3"

	v "github.com/neurodesk/templateparser/pkg/validator"
)

// config is the optional tagrender.yaml file.
type config struct {
	TemplateDir    string         `yaml:"template_dir,omitempty"`
	Extensions     []string       `yaml:"extensions,omitempty"`
	MaxInlineDepth int            `yaml:"max_inline_depth,omitempty"`
	MaxSteps       uint64         `yaml:"max_steps,omitempty"`
	StoreDir       string         `yaml:"store_dir,omitempty"`
	Defaults       map[string]any `yaml:"defaults,omitempty"`
}

var _ v.Validatable = (*config)(nil)

func (c *config) Validate() error {
	return v.All(
		v.IsDir(c.TemplateDir, "template_dir"),
		v.NoDuplicates(c.Extensions, "extensions"),
		v.Map(c.Extensions, func(ext, desc string) error {
			return v.All(
				v.NotEmpty(ext, desc),
				v.HasPrefix(ext, ".", desc),
			)
		}, "extensions"),
		v.AtLeast(c.MaxInlineDepth, 0, "max_inline_depth"),
		v.MapDict(c.Defaults, func(key string, val any) error {
			s, _ := val.(string)
			return v.All(
				v.NotEmpty(key, "key"),
				v.HasNoDirectives(key, fmt.Sprintf("key %q", key)),
				v.HasNoDirectives(s, fmt.Sprintf("value of %q", key)),
			)
		}, "defaults"),
	)
}

// loadConfig reads path. A missing file is only an error when the path was
// given explicitly.
func loadConfig(path string, explicit bool) (*config, error) {
	cfg := &config{}
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) && !explicit {
		return cfg, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decoding config file: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}
