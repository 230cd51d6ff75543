package chat

import "errors"

var (
	// ErrNoModelSelected is returned by Send when no model is configured.
	ErrNoModelSelected = errors.New("no model selected")

	// ErrNoModels is returned by Initialize when the server has no models.
	ErrNoModels = errors.New("no models found")
)
