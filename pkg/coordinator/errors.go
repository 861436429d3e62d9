/*
 * @Author: Marlon.M
 * @Email: maiguangyang@163.com
 * @Date: 2026-10-14
 */
package coordinator

import "errors"

var (
	// ErrRoomIDRequired indicates a join without a room id
	ErrRoomIDRequired = errors.New("room id is required")

	// ErrAlreadyJoined indicates a join to the room the participant is already in
	ErrAlreadyJoined = errors.New("already joined this room")

	// ErrNotInRoom indicates the participant has not joined any room
	ErrNotInRoom = errors.New("participant is not in a room")

	// ErrConnClosed indicates a send on a closed connection
	ErrConnClosed = errors.New("connection is closed")

	// ErrSendBufferFull indicates a connection that stopped draining its queue
	ErrSendBufferFull = errors.New("send buffer full")

	// ErrServerClosed indicates the server has been shut down
	ErrServerClosed = errors.New("server is closed")
)
