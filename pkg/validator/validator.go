// Package validator has small composable checks used to validate
// configuration. Each check returns nil or an error naming the field.
package validator

import (
	"cmp"
	"fmt"
	"os"
	"slices"
	"strings"
)

// All returns the first non-nil error.
func All(errors ...error) error {
	for _, err := range errors {
		if err != nil {
			return err
		}
	}
	return nil
}

// Validatable is implemented by configuration types.
type Validatable interface {
	Validate() error
}

// Map runs f over items, passing a description of each element.
func Map[T any](items []T, f func(T, string) error, description string) error {
	for i, item := range items {
		if err := f(item, fmt.Sprintf("%s[%d]", description, i)); err != nil {
			return err
		}
	}
	return nil
}

// MapDict runs f over a map in sorted key order so the reported error is
// deterministic.
func MapDict[T any](items map[string]T, f func(string, T) error, description string) error {
	keys := make([]string, 0, len(items))
	for k := range items {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, key := range keys {
		if err := f(key, items[key]); err != nil {
			return fmt.Errorf("%s: %w", description, err)
		}
	}
	return nil
}

func NotEmpty(field, description string) error {
	if field == "" {
		return fmt.Errorf("%s must not be empty", description)
	}
	return nil
}

func NoDuplicates[T comparable](slice []T, description string) error {
	seen := make(map[T]struct{})
	for _, v := range slice {
		if _, ok := seen[v]; ok {
			return fmt.Errorf("%s contains duplicate value: %v", description, v)
		}
		seen[v] = struct{}{}
	}
	return nil
}

func MatchesAllowed[T comparable](field T, allowed []T, description string) error {
	if !slices.Contains(allowed, field) {
		return fmt.Errorf("%s must be one of %v, got %v", description, allowed, field)
	}
	return nil
}

// AtLeast checks field >= lo.
func AtLeast[T cmp.Ordered](field, lo T, description string) error {
	if field < lo {
		return fmt.Errorf("%s must be at least %v, got %v", description, lo, field)
	}
	return nil
}

// HasPrefix checks that a non-empty field starts with prefix.
func HasPrefix(field, prefix, description string) error {
	if field != "" && !strings.HasPrefix(field, prefix) {
		return fmt.Errorf("%s must start with %q, got %q", description, prefix, field)
	}
	return nil
}

// HasNoDirectives rejects text containing template directive delimiters.
func HasNoDirectives(field, description string) error {
	if strings.Contains(field, "{{") || strings.Contains(field, "}}") {
		return fmt.Errorf("%s must not contain template directives", description)
	}
	return nil
}

// IsDir checks that a non-empty path names an existing directory.
func IsDir(path, description string) error {
	if path == "" {
		return nil
	}
	st, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("%s: %w", description, err)
	}
	if !st.IsDir() {
		return fmt.Errorf("%s %q is not a directory", description, path)
	}
	return nil
}
