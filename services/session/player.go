package session

// PlayerError is the payload of the engine's asynchronous error callback.
// HTTPStatus is zero when the failure did not come from the transport layer.
type PlayerError struct {
	HTTPStatus int    `json:"httpStatus,omitempty"`
	Message    string `json:"message"`
}

// Player is the black-box native decode/render engine. The controller owns
// exactly one handle from Prepare through Release and never shares it across
// sessions. Release must be idempotent-safe on the controller side: the
// handle slot is cleared atomically under the session lock so overlapping
// suspend/destroy/error paths release at most once.
type Player interface {
	Prepare(url string, startPositionMs int64) error
	Play()
	Pause()
	Seek(positionMs int64)
	CurrentPosition() int64
	Duration() int64
	IsPlaying() bool
	// Invalidate drops any buffered bytes for the given URL. Called before
	// failing over away from a bad candidate.
	Invalidate(url string)
	Release()
}

// PlayerFactory acquires a fresh native handle. Errors raised by the engine
// after Prepare are delivered through onError on the engine's own callback
// context; the controller marshals them back under its lock.
type PlayerFactory func(onError func(PlayerError)) Player
