package playback

import (
	"errors"
	"fmt"
)

// UserMessage is the only failure text shown to viewers.
const UserMessage = "Video playback failed. Please try again."

// ErrorKind mirrors the engine's three fatal error buckets.
type ErrorKind int

const (
	KindNetwork ErrorKind = iota
	KindMedia
	KindOther
)

func (k ErrorKind) String() string {
	switch k {
	case KindNetwork:
		return "network"
	case KindMedia:
		return "media"
	default:
		return "other"
	}
}

var (
	ErrPlaybackNetwork = errors.New("playback network error")
	ErrPlaybackMedia   = errors.New("playback media error")
	ErrPlaybackOther   = errors.New("playback error")
	ErrSubtitleFetch   = errors.New("subtitle fetch failed")

	ErrNoSource      = errors.New("no source loaded")
	ErrUnknownLevel  = errors.New("unknown quality level")
	ErrSessionClosed = errors.New("session closed")
	ErrBodyTooLarge  = errors.New("response body exceeds limit")
)

func (k ErrorKind) sentinel() error {
	switch k {
	case KindNetwork:
		return ErrPlaybackNetwork
	case KindMedia:
		return ErrPlaybackMedia
	default:
		return ErrPlaybackOther
	}
}

// Error is a fatal engine error after the session applied its recovery
// policy. Terminal means the engine has been destroyed.
type Error struct {
	Kind     ErrorKind
	Terminal bool
	Details  string
}

func (e *Error) Error() string {
	state := "recovering"
	if e.Terminal {
		state = "terminal"
	}
	if e.Details == "" {
		return fmt.Sprintf("%s (%s)", e.Kind.sentinel(), state)
	}
	return fmt.Sprintf("%s (%s): %s", e.Kind.sentinel(), state, e.Details)
}

func (e *Error) Unwrap() error { return e.Kind.sentinel() }

// UserMessage is what the player renders for this error.
func (e *Error) UserMessage() string { return UserMessage }
