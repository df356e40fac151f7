// Package config loads review configuration from YAML files: the review
// file naming the sources, mapping files with inheritance, and rules files
// carrying validation rules and exceptions.
//
// Relative paths inside a file are resolved against that file's directory.
package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-yaml"

	"github.com/agentstation/accessreview/pkg/errors"
)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func validatorInstance() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// readYAML reads path and decodes it into v. Mappings nested under
// interface values are decoded as yaml.MapSlice so their order is kept.
func readYAML(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.WrapIO("read", path, err)
	}
	if err := yaml.UnmarshalWithOptions(data, v, yaml.UseOrderedMap()); err != nil {
		return errors.WrapParse("yaml", path, err)
	}
	return nil
}

// checkStruct validates v against its struct tags.
func checkStruct(component string, v any) error {
	if err := validatorInstance().Struct(v); err != nil {
		return errors.NewConfigError(component, err.Error(), err)
	}
	return nil
}

// text renders a decoded YAML scalar as a string. YAML may type values
// such as 90 or true; rules and rewrites always compare text.
func text(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	default:
		return fmt.Sprint(t)
	}
}

var unsafeChars = regexp.MustCompile(`[^a-zA-Z0-9]`)

// SafeName returns name lower-cased with every character outside
// [a-zA-Z0-9] replaced by an underscore, for use in file names.
func SafeName(name string) string {
	return strings.ToLower(unsafeChars.ReplaceAllString(name, "_"))
}
