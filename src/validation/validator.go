// Package validation checks canonical update records before they reach a race channel.
package validation

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"regatta-live/src/helpers"
	"regatta-live/src/models"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

// GetValidator returns the shared validator instance.
func GetValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterValidation("notblank", notBlank)
	})
	return validate
}

// ValidateUpdate rejects records with missing ids or coordinates outside the globe.
// gte/lte comparisons fail for NaN and infinities, so non-finite coordinates are rejected too.
func ValidateUpdate(rec models.MUpdateRecord) error {
	if err := GetValidator().Struct(rec); err != nil {
		return helpers.WrapInvalidInput("invalid update record", describe(err))
	}
	return nil
}

// ValidateBoatID rejects an empty or whitespace-only boat identifier, the same
// rule ValidateUpdate applies to the record's ids.
func ValidateBoatID(boatID string) error {
	if err := GetValidator().Var(boatID, "notblank"); err != nil {
		return helpers.NewInvalidInput("boatId is required")
	}
	return nil
}

// notBlank fails strings that are empty once surrounding whitespace is removed.
func notBlank(fl validator.FieldLevel) bool {
	return strings.TrimSpace(fl.Field().String()) != ""
}

func describe(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}

	messages := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required", "notblank":
			messages = append(messages, fmt.Sprintf("%s is required", fe.Field()))
		case "gte", "lte":
			messages = append(messages, fmt.Sprintf("%s must be a finite number within range, got %v", fe.Field(), fe.Value()))
		default:
			messages = append(messages, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
		}
	}
	return errors.New(strings.Join(messages, "; "))
}
