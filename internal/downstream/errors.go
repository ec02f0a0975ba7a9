package downstream

import (
	"fmt"

	"github.com/giantswarm/mcp-composer/internal/apierrors"
)

var errServerNameEmpty = apierrors.NewValidationError("name", "must not be empty")

func errServerNameReservedSeparator(name string) error {
	return apierrors.NewValidationError("name", fmt.Sprintf("%q must not contain the reserved control-name separator %q", name, ControlNameSeparator))
}

func errStdioMissingCommand(name string) error {
	return apierrors.NewValidationError("command", fmt.Sprintf("server %q uses stdio transport but has no command", name))
}

func errHTTPMissingURL(name string) error {
	return apierrors.NewValidationError("url", fmt.Sprintf("server %q uses an HTTP transport but has no url", name))
}

func errUnknownTransport(name string, transport Transport) error {
	return apierrors.NewValidationError("transport", fmt.Sprintf("server %q has unknown transport %q", name, transport))
}
