/*
 * @Author: Marlon.M
 * @Email: maiguangyang@163.com
 * @Date: 2026-10-14
 */
package media

import "errors"

var (
	// ErrMediaUnavailable indicates the requested local media could not be acquired
	ErrMediaUnavailable = errors.New("media unavailable")

	// ErrUnsupportedCodec indicates a media file with a codec we cannot send
	ErrUnsupportedCodec = errors.New("unsupported codec")

	// ErrUnknownKind indicates a kind other than audio or video
	ErrUnknownKind = errors.New("unknown media kind")
)
