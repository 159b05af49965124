package menu

import (
	"errors"
	"fmt"
)

// ErrValidation is wrapped by every input rejection made before a remote call.
var ErrValidation = errors.New("validation failed")

var (
	ErrEmptyMenu        = fmt.Errorf("%w: Please enter a menu.", ErrValidation)
	ErrEmptyInstruction = fmt.Errorf("%w: Please describe the change.", ErrValidation)
	ErrUnknownStyle     = fmt.Errorf("%w: unknown style", ErrValidation)
)

// Remote failures. Their messages are safe to show to the user.
var (
	ErrExtraction = errors.New("Failed to parse the menu. Please check the format and try again.")
	ErrEdit       = errors.New("Failed to edit the image.")
)

// GenerationError reports a failed photo for a single dish.
type GenerationError struct {
	Dish string
	Err  error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("Failed to generate an image for %s.", e.Dish)
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}

// UserMessage returns the text of err that may be shown in the browser.
// Validation errors drop their internal prefix; unknown errors collapse to a
// generic message so transport details never leak.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var genErr *GenerationError
	switch {
	case errors.As(err, &genErr):
		return genErr.Error()
	case errors.Is(err, ErrEmptyMenu):
		return "Please enter a menu."
	case errors.Is(err, ErrEmptyInstruction):
		return "Please describe the change."
	case errors.Is(err, ErrUnknownStyle):
		return "Unknown photo style."
	case errors.Is(err, ErrExtraction):
		return ErrExtraction.Error()
	case errors.Is(err, ErrEdit):
		return ErrEdit.Error()
	default:
		return "Something went wrong. Please try again."
	}
}
