package config

import (
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"mill-presenter/internal/errors"
)

// Load reads a TOML (.toml) or YAML (.yaml, .yml) file on top of Default.
// Keys missing from the file keep their defaults; unknown keys are an error.
// The result is validated before it is returned.
func Load(path string) (PipelineConfig, []string, error) {
	cfg := Default()

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".toml":
		if err := decodeTOML(path, &cfg); err != nil {
			return PipelineConfig{}, nil, err
		}
	case ".yaml", ".yml":
		if err := decodeYAML(path, &cfg); err != nil {
			return PipelineConfig{}, nil, err
		}
	default:
		return PipelineConfig{}, nil, errors.WithHint(
			errors.Configf("unsupported config format %q", ext),
			"use a .toml, .yaml or .yml file")
	}

	warnings, err := cfg.Validate()
	if err != nil {
		return PipelineConfig{}, nil, errors.Wrapf(err, "config %s", path)
	}
	return cfg, warnings, nil
}

func decodeTOML(path string, cfg *PipelineConfig) error {
	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return errors.Mark(errors.Wrapf(err, "parse %s", path), errors.ErrConfig)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		sort.Strings(keys)
		return errors.Configf("%s: unknown keys %s", path, strings.Join(keys, ", "))
	}
	return nil
}

func decodeYAML(path string, cfg *PipelineConfig) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Mark(errors.Wrapf(err, "open %s", path), errors.ErrConfig)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && err != io.EOF {
		return errors.Mark(errors.Wrapf(err, "parse %s", path), errors.ErrConfig)
	}
	return nil
}
