/*
 * @Author: Marlon.M
 * @Email: maiguangyang@163.com
 * @Date: 2026-10-14
 */
package negotiation

import "errors"

var (
	// ErrEngineClosed indicates the engine was released
	ErrEngineClosed = errors.New("negotiation engine is closed")

	// ErrInvalidState indicates a transition that is not allowed from the current state
	ErrInvalidState = errors.New("invalid negotiation state")

	// ErrNotStable indicates a renegotiation requested while another exchange is in flight
	ErrNotStable = errors.New("negotiation not stable")

	// ErrNegotiationStalled indicates an offer that never got an answer
	ErrNegotiationStalled = errors.New("negotiation stalled: no answer")

	// ErrInvalidDescription indicates a description that is neither offer nor answer
	ErrInvalidDescription = errors.New("invalid session description")
)
