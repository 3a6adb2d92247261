package prompt

import (
	"errors"

	"github.com/manifoldco/promptui"

	"github.com/marmos91/filebox/pkg/controlplane/models"
)

// ErrPasswordMismatch indicates passwords don't match.
var ErrPasswordMismatch = errors.New("passwords do not match")

// Password prompts for a masked password.
func Password(label string) (string, error) {
	p := promptui.Prompt{
		Label: label,
		Mask:  '*',
	}
	result, err := p.Run()
	return result, wrapError(err)
}

// NewPassword prompts for a password to store on the server, twice.
func NewPassword() (string, error) {
	p := promptui.Prompt{
		Label:    "Password",
		Mask:     '*',
		Validate: models.ValidatePassword,
	}
	password, err := p.Run()
	if err != nil {
		return "", wrapError(err)
	}

	confirm, err := Password("Confirm password")
	if err != nil {
		return "", err
	}
	if password != confirm {
		return "", ErrPasswordMismatch
	}
	return password, nil
}

// Credentials asks for the login pair a filebox session starts with. The
// username prompt is skipped when username is already known.
func Credentials(username string) (string, string, error) {
	if username == "" {
		var err error
		username, err = InputWithValidation("Username", "", SingleLine)
		if err != nil {
			return "", "", err
		}
	}
	p := promptui.Prompt{
		Label:    "Password",
		Mask:     '*',
		Validate: SingleLine,
	}
	password, err := p.Run()
	if err != nil {
		return "", "", wrapError(err)
	}
	return username, password, nil
}
