package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/mesh-intelligence/specarchive/pkg/types"
)

// validate is shared by all managers; validator.Validate caches struct
// metadata and is safe for concurrent use.
var validate *validator.Validate

func init() {
	validate = validator.New()
	_ = validate.RegisterValidation("archivepath", func(fl validator.FieldLevel) bool {
		return ValidArchivePath(fl.Field().String())
	})
}

// ValidArchivePath reports whether p is usable as an archive location: non
// empty, relative, and free of ".." segments under either separator.
func ValidArchivePath(p string) bool {
	if strings.TrimSpace(p) == "" {
		return false
	}
	if filepath.IsAbs(p) || strings.HasPrefix(p, "/") || strings.HasPrefix(p, `\`) {
		return false
	}
	if len(p) >= 2 && p[1] == ':' {
		return false
	}
	for _, seg := range strings.FieldsFunc(p, func(r rune) bool { return r == '/' || r == '\\' }) {
		if seg == ".." {
			return false
		}
	}
	return true
}

// Check validates cfg and returns the first failing rule as an ErrConfig.
func Check(cfg types.ArchivalConfig) error {
	err := validate.Struct(cfg)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return types.NewError(types.ErrConfig, "validate config", "", err)
	}
	return types.NewError(types.ErrConfig, "validate config", "", errors.New(formatFieldError(verrs[0])))
}

// Validate reports whether cfg satisfies every configuration rule.
func Validate(cfg types.ArchivalConfig) bool {
	return Check(cfg) == nil
}

func formatFieldError(fe validator.FieldError) string {
	switch fe.Tag() {
	case "min", "max":
		return fmt.Sprintf("delayMinutes must be between %d and %d, got %v",
			types.MinDelayMinutes, types.MaxDelayMinutes, fe.Value())
	case "required", "archivepath":
		return fmt.Sprintf("archiveLocation must be a non-empty relative path without \"..\", got %q", fe.Value())
	case "oneof":
		return fmt.Sprintf("notificationLevel must be one of none, minimal, verbose, got %q", fe.Value())
	default:
		return fmt.Sprintf("%s failed rule %q", fe.Field(), fe.Tag())
	}
}
