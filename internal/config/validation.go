package config

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/giantswarm/h2env/internal/core"
)

// validate is the singleton validator instance.
var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	if err := v.RegisterValidation("protocol", func(fl validator.FieldLevel) bool {
		return core.IsSupported(fl.Field().String())
	}); err != nil {
		panic(fmt.Sprintf("h2env: register protocol validation: %v", err))
	}
	return v
}

// Validate validates the configuration using struct tags and custom rules.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return formatValidationError(err)
	}
	return validateCustomRules(cfg)
}

// validateCustomRules performs validation that cannot be expressed in tags.
func validateCustomRules(cfg *Config) error {
	seen := make(map[string]bool, len(cfg.Services))
	for i, s := range cfg.Services {
		if seen[s.ID] {
			return fmt.Errorf("services[%d]: duplicate service id %q", i, s.ID)
		}
		seen[s.ID] = true
	}

	if cfg.Server.ServicePorts {
		ports := make(map[int]string, len(cfg.Services))
		for i, s := range cfg.Services {
			if s.Port == 0 {
				continue
			}
			if other, ok := ports[s.Port]; ok {
				return fmt.Errorf("services[%d]: port %d already used by %s", i, s.Port, other)
			}
			ports[s.Port] = s.ID
		}
	}
	return nil
}

// formatValidationError converts validator errors into user-friendly messages.
func formatValidationError(err error) error {
	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) && len(validationErrs) > 0 {
		e := validationErrs[0]
		return fmt.Errorf("%s: validation failed on '%s' tag (value: %v)",
			e.Namespace(), e.Tag(), e.Value())
	}
	return err
}
