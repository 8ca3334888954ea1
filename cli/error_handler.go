package cli

import (
	"fmt"
	"os"

	"github.com/relaykit/relay/errors"
)

// ErrorHandler provides user-friendly error messages
type ErrorHandler struct {
	Verbose bool
}

// NewErrorHandler creates a new error handler
func NewErrorHandler(verbose bool) *ErrorHandler {
	return &ErrorHandler{
		Verbose: verbose,
	}
}

// Handle provides user-friendly error messages based on error type
func (h *ErrorHandler) Handle(err error) error {
	switch errors.GetCode(err) {
	case errors.ErrCodeConfigNotFound:
		fmt.Fprintf(os.Stderr, "❌ Configuration not found. Create a relay.yml or set RELAY_API_BASE_URL.\n")
		return err

	case errors.ErrCodeConfigInvalid, errors.ErrCodeConfigValidation:
		fmt.Fprintf(os.Stderr, "❌ Invalid configuration: %v\n", err)
		fmt.Fprintf(os.Stderr, "Check your relay.yml against the documented schema.\n")
		return err

	case errors.ErrCodeSessionNotFound:
		if relayErr, ok := err.(*errors.RelayError); ok {
			fmt.Fprintf(os.Stderr, "❌ Session '%s' not found\n", relayErr.Details["sessionId"])
			fmt.Fprintf(os.Stderr, "Run 'relay sessions' to see known sessions.\n")
		}
		return err

	case errors.ErrCodeAPIConfig:
		fmt.Fprintf(os.Stderr, "❌ No sync backend configured. Set api.base_url in relay.yml or RELAY_API_BASE_URL.\n")
		return err

	case errors.ErrCodeEventInvalid:
		fmt.Fprintf(os.Stderr, "❌ Malformed hook event: %v\n", err)
		return err

	default:
		fmt.Fprintf(os.Stderr, "❌ Error: %v\n", err)

		if h.Verbose {
			if relayErr, ok := err.(*errors.RelayError); ok {
				fmt.Fprintf(os.Stderr, "\nError details:\n%s\n", relayErr.ToJSON())
			}
		}
		return err
	}
}
