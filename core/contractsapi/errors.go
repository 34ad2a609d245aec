package contractsapi

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/trufnetwork/launchpad-go/core/types"
)

// invalidParams tags a validation failure with types.ErrInvalidParams
func invalidParams(err error) error {
	return errors.Wrap(types.ErrInvalidParams, err.Error())
}

// transferFailed tags a rejected token transfer with types.ErrTransferFailed, keeping the token's error in the chain
func transferFailed(action string, err error) error {
	return errors.WithStack(fmt.Errorf("%s: %w: %w", action, types.ErrTransferFailed, err))
}

// deploymentFailed tags a template instantiation failure with types.ErrDeploymentFailed
func deploymentFailed(template string, err error) error {
	return errors.WithStack(fmt.Errorf("instantiate %s: %w: %w", template, types.ErrDeploymentFailed, err))
}
