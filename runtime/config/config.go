// Package config loads the operator-overridable YAML tables: tool-category
// semantics, the legacy field map, and transformer target-key pattern
// hints. Every table has a compiled-in default so the
// engine runs correctly with zero external files; LoadCategories,
// LoadLegacyFields and LoadTransformers only need to be called when an
// operator wants to override one.
package config

import (
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"

	"github.com/pipelinerun/engine/runtime/depanalysis"
	"github.com/pipelinerun/engine/runtime/outputadapt"
	"github.com/pipelinerun/engine/runtime/toolident"
)

// CategoriesFile is the decoded shape of config/categories.yaml.
type CategoriesFile struct {
	Categories map[string]struct {
		Inputs  []string `yaml:"inputs"`
		Outputs []string `yaml:"outputs"`
	} `yaml:"categories"`
}

// ToCategorySemantics converts the decoded file into the map
// depanalysis.WithCategorySemantics expects.
func (f CategoriesFile) ToCategorySemantics() map[toolident.Category]depanalysis.CategorySemantics {
	out := make(map[toolident.Category]depanalysis.CategorySemantics, len(f.Categories))
	for name, v := range f.Categories {
		out[toolident.Category(name)] = depanalysis.CategorySemantics{
			Inputs:  toSemanticTypes(v.Inputs),
			Outputs: toSemanticTypes(v.Outputs),
		}
	}
	return out
}

func toSemanticTypes(names []string) []toolident.SemanticType {
	out := make([]toolident.SemanticType, len(names))
	for i, n := range names {
		out[i] = toolident.SemanticType(n)
	}
	return out
}

// LegacyFieldsFile is the decoded shape of config/legacy_fields.yaml: a flat
// legacy-key -> dotted-envelope-path map, passed directly to
// placeholder.WithLegacyFieldMap.
type LegacyFieldsFile struct {
	Fields map[string]string `yaml:"fields"`
}

// TransformersFile is the decoded shape of config/transformers.yaml: a list
// of target-key regex patterns mapped to a catalogue transformer name,
// consulted by the tool-output adapter before its built-in shape heuristic.
// The transformer bodies themselves stay a compiled Go dispatch table;
// only the pattern->transformer mapping is config-driven.
type TransformersFile struct {
	Rules []struct {
		TargetKeyPattern string `yaml:"target_key_pattern"`
		Transformer      string `yaml:"transformer"`
	} `yaml:"rules"`
}

// Compile compiles every rule's regex, in file order (first match wins),
// returning the same outputadapt.PatternRule type WithPatternRules expects —
// no intermediate type, since this file's sole purpose is to feed that option.
func (f TransformersFile) Compile() ([]outputadapt.PatternRule, error) {
	out := make([]outputadapt.PatternRule, 0, len(f.Rules))
	for _, r := range f.Rules {
		re, err := regexp.Compile(r.TargetKeyPattern)
		if err != nil {
			return nil, fmt.Errorf("config: compile transformer pattern %q: %w", r.TargetKeyPattern, err)
		}
		out = append(out, outputadapt.PatternRule{Pattern: re, Transformer: outputadapt.TransformerName(r.Transformer)})
	}
	return out, nil
}

// LoadCategories reads and decodes a categories.yaml file at path.
func LoadCategories(path string) (CategoriesFile, error) {
	var f CategoriesFile
	if err := loadYAML(path, &f); err != nil {
		return CategoriesFile{}, err
	}
	return f, nil
}

// LoadLegacyFields reads and decodes a legacy_fields.yaml file at path.
func LoadLegacyFields(path string) (LegacyFieldsFile, error) {
	var f LegacyFieldsFile
	if err := loadYAML(path, &f); err != nil {
		return LegacyFieldsFile{}, err
	}
	return f, nil
}

// LoadTransformers reads and decodes a transformers.yaml file at path.
func LoadTransformers(path string) (TransformersFile, error) {
	var f TransformersFile
	if err := loadYAML(path, &f); err != nil {
		return TransformersFile{}, err
	}
	return f, nil
}

func loadYAML(path string, out any) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(b, out); err != nil {
		return fmt.Errorf("config: decode %s: %w", path, err)
	}
	return nil
}
