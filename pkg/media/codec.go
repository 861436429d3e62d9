/*
 * @Author: Marlon.M
 * @Email: maiguangyang@163.com
 * @Date: 2026-10-14
 *
 * Codec - 本地媒体文件对应的 RTP 编码
 */
package media

import (
	"fmt"

	"github.com/pion/webrtc/v4"
)

// 预定义编解码器
var (
	// 视频编解码器
	CodecVP8 = webrtc.RTPCodecCapability{
		MimeType:  webrtc.MimeTypeVP8,
		ClockRate: 90000,
	}
	CodecVP9 = webrtc.RTPCodecCapability{
		MimeType:  webrtc.MimeTypeVP9,
		ClockRate: 90000,
	}
	CodecAV1 = webrtc.RTPCodecCapability{
		MimeType:  webrtc.MimeTypeAV1,
		ClockRate: 90000,
	}

	// 音频编解码器
	CodecOpus = webrtc.RTPCodecCapability{
		MimeType:    webrtc.MimeTypeOpus,
		ClockRate:   48000,
		Channels:    2,
		SDPFmtpLine: "minptime=10;useinbandfec=1",
	}
)

// CodecForFourCC maps an IVF FourCC to its RTP capability
func CodecForFourCC(fourcc string) (webrtc.RTPCodecCapability, error) {
	switch fourcc {
	case "VP80":
		return CodecVP8, nil
	case "VP90":
		return CodecVP9, nil
	case "AV01":
		return CodecAV1, nil
	default:
		return webrtc.RTPCodecCapability{}, fmt.Errorf("%w: ivf fourcc %q", ErrUnsupportedCodec, fourcc)
	}
}
