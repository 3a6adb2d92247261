// Package prompt provides the interactive terminal prompts used by the
// filebox and fileboxd commands.
package prompt

import (
	"errors"
	"strings"

	"github.com/manifoldco/promptui"
)

// ErrAborted is returned when the user aborts a prompt (Ctrl+C).
var ErrAborted = errors.New("aborted")

// IsAborted returns true if the error indicates the user aborted.
func IsAborted(err error) bool {
	return errors.Is(err, promptui.ErrInterrupt) || errors.Is(err, promptui.ErrAbort) || errors.Is(err, ErrAborted)
}

func wrapError(err error) error {
	if err == nil {
		return nil
	}
	if IsAborted(err) {
		return ErrAborted
	}
	return err
}

// Input prompts for text input.
func Input(label, defaultValue string) (string, error) {
	p := promptui.Prompt{
		Label:   label,
		Default: defaultValue,
	}
	result, err := p.Run()
	return result, wrapError(err)
}

// InputWithValidation prompts until validate accepts the input.
func InputWithValidation(label, defaultValue string, validate func(string) error) (string, error) {
	p := promptui.Prompt{
		Label:    label,
		Default:  defaultValue,
		Validate: validate,
	}
	result, err := p.Run()
	return result, wrapError(err)
}

// SingleLine rejects input that would split a protocol line.
func SingleLine(input string) error {
	if input == "" {
		return errors.New("value is required")
	}
	if strings.ContainsAny(input, "\r\n") {
		return errors.New("value must not contain line breaks")
	}
	return nil
}
