package session

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/xkilldash9x/searchprobe/internal/browser"
)

// CDP error messages that mean the node behind a handle was removed or re-rendered.
var staleMessages = []string{
	"Could not find node with given id",
	"No node with given id found",
	"Node with given id does not belong to the document",
	"Cannot find context with specified id",
	"Node is detached from document",
}

// CDP error messages that mean the node exists but cannot receive input.
var notInteractableMessages = []string{
	"Could not compute content quads",
	"Node does not have a layout object",
	"Node is either not visible or not an HTMLElement",
	"node is not visible",
}

// mapError translates CDP failures into the browser package's sentinels.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	msg := err.Error()
	for _, m := range staleMessages {
		if strings.Contains(msg, m) {
			return fmt.Errorf("%w: %v", browser.ErrStale, err)
		}
	}
	for _, m := range notInteractableMessages {
		if strings.Contains(msg, m) {
			return fmt.Errorf("%w: %v", browser.ErrNotInteractable, err)
		}
	}
	return err
}
