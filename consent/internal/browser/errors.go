package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-rod/rod"

	"github.com/hazyhaar/bannerclick/consent/internal/dom"
)

// classify maps a raw Rod/CDP error onto the dom fault sentinels. The
// original error text is kept in the chain.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if s := sentinel(err); s != nil {
		return fmt.Errorf("%w: %w", s, err)
	}
	return err
}

func sentinel(err error) error {
	for _, s := range []error{dom.ErrSessionDead, dom.ErrTimeout, dom.ErrUnreachable, dom.ErrStale, dom.ErrNotFound, dom.ErrNotInteractable} {
		if errors.Is(err, s) {
			return nil
		}
	}

	var notFound *rod.ElementNotFoundError
	var notInteractable *rod.NotInteractableError
	var invisible *rod.InvisibleShapeError
	var covered *rod.CoveredError
	switch {
	case errors.As(err, &notFound):
		return dom.ErrNotFound
	case errors.As(err, &notInteractable), errors.As(err, &invisible), errors.As(err, &covered):
		return dom.ErrNotInteractable
	}

	msg := err.Error()
	switch {
	case strings.Contains(msg, "net::ERR_TIMED_OUT"), errors.Is(err, context.DeadlineExceeded):
		return dom.ErrTimeout
	case strings.Contains(msg, "net::ERR_"):
		return dom.ErrUnreachable
	case containsAny(msg, "websocket", "closed network connection", "Target closed", "Session with given id not found", "use of closed"):
		return dom.ErrSessionDead
	case containsAny(msg, "Cannot find context", "Node with given id", "Could not find node", "Object reference chain is too long", "not attached"):
		return dom.ErrStale
	case containsAny(msg, "invisible", "interactable", "covered"):
		return dom.ErrNotInteractable
	}
	return nil
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
