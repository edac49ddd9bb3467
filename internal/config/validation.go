package config

import (
	"fmt"

	"github.com/go-playground/validator/v10"
	forensicfs "github.com/pilat/go-forensicfs"
)

var validate = validator.New()

// Validate checks struct tags, then the image geometry rules that tags cannot
// express (power-of-two block size, one-block bitmap reach).
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return formatValidationError(err)
	}

	g := forensicfs.Geometry{BlockSize: cfg.Image.BlockSize, TotalBlocks: cfg.Image.TotalBlocks}
	if err := g.Validate(); err != nil {
		return fmt.Errorf("image: %w", err)
	}

	return nil
}

// formatValidationError converts validator errors into user-friendly messages.
func formatValidationError(err error) error {
	if validationErrs, ok := err.(validator.ValidationErrors); ok && len(validationErrs) > 0 {
		e := validationErrs[0]
		return fmt.Errorf("%s: validation failed on '%s' tag (value: %v)",
			e.Namespace(), e.Tag(), e.Value())
	}
	return err
}
