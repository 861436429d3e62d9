/*
 * @Author: Marlon.M
 * @Email: maiguangyang@163.com
 * @Date: 2026-10-14
 */
package forwarder

import "errors"

var (
	// ErrForwarderClosed indicates the forwarder has been closed
	ErrForwarderClosed = errors.New("forwarder is closed")

	// ErrHubInactive indicates fan-out was requested while not hub
	ErrHubInactive = errors.New("hub forwarder is not active")

	// ErrMalformedChat indicates a chat frame that does not decode
	ErrMalformedChat = errors.New("malformed chat message")
)
