/*
 * @Author: Marlon.M
 * @Email: maiguangyang@163.com
 * @Date: 2026-10-14
 *
 * Local Media - 本地音视频采集
 * 从 IVF (VP8/VP9/AV1) 与 Ogg/Opus 文件循环推流
 */
package media

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
	"github.com/pion/webrtc/v4/pkg/media/ivfreader"
	"github.com/pion/webrtc/v4/pkg/media/oggreader"

	"github.com/maiguangyang/star_relay/pkg/utils"
)

// Kind is audio or video
type Kind string

const (
	KindAudio Kind = "audio"
	KindVideo Kind = "video"
)

// ParseKind accepts "audio" and "video"
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindAudio, KindVideo:
		return Kind(s), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
	}
}

// Source acquires local media tracks
type Source interface {
	Acquire(kind Kind) (*Track, error)
}

// Track is a local media track fed by a background player
type Track struct {
	kind  Kind
	local *webrtc.TrackLocalStaticSample
	muted atomic.Bool

	stopCh   chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

func newTrack(kind Kind, capability webrtc.RTPCodecCapability, streamID string) (*Track, error) {
	local, err := webrtc.NewTrackLocalStaticSample(capability, string(kind), streamID)
	if err != nil {
		return nil, err
	}
	return &Track{
		kind:   kind,
		local:  local,
		stopCh: make(chan struct{}),
		done:   make(chan struct{}),
	}, nil
}

// Kind returns audio or video
func (t *Track) Kind() Kind {
	return t.kind
}

// Local returns the pion track to add to peer connections
func (t *Track) Local() webrtc.TrackLocal {
	return t.local
}

// Codec returns the track's RTP capability
func (t *Track) Codec() webrtc.RTPCodecCapability {
	return t.local.Codec()
}

// SetMuted drops samples while muted. The sender stays negotiated.
func (t *Track) SetMuted(muted bool) {
	t.muted.Store(muted)
}

// Muted reports the mute state
func (t *Track) Muted() bool {
	return t.muted.Load()
}

// Stop halts the player and waits for it to exit
func (t *Track) Stop() {
	t.stopOnce.Do(func() {
		close(t.stopCh)
	})
	<-t.done
}

func (t *Track) write(sample media.Sample) error {
	if t.muted.Load() {
		return nil
	}
	return t.local.WriteSample(sample)
}

// FileSource plays media files as local tracks
type FileSource struct {
	StreamID  string
	AudioPath string
	VideoPath string
}

// NewFileSource creates a FileSource. An empty path leaves that kind unavailable.
func NewFileSource(streamID, audioPath, videoPath string) *FileSource {
	return &FileSource{
		StreamID:  streamID,
		AudioPath: audioPath,
		VideoPath: videoPath,
	}
}

// Acquire opens the file for kind and starts streaming it
func (s *FileSource) Acquire(kind Kind) (*Track, error) {
	switch kind {
	case KindVideo:
		return s.acquireVideo()
	case KindAudio:
		return s.acquireAudio()
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
}

func unavailable(kind Kind, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrMediaUnavailable, kind, err)
}

func (s *FileSource) acquireVideo() (*Track, error) {
	if s.VideoPath == "" {
		return nil, unavailable(KindVideo, errors.New("no video file configured"))
	}
	f, reader, header, err := openIVF(s.VideoPath)
	if err != nil {
		return nil, unavailable(KindVideo, err)
	}
	capability, err := CodecForFourCC(header.FourCC)
	if err != nil {
		f.Close()
		return nil, unavailable(KindVideo, err)
	}
	track, err := newTrack(KindVideo, capability, s.StreamID)
	if err != nil {
		f.Close()
		return nil, unavailable(KindVideo, err)
	}

	interval := frameInterval(header)
	go track.playIVF(s.VideoPath, f, reader, interval)
	utils.Info("[Media] video %s (%s) started, %v per frame", s.VideoPath, capability.MimeType, interval)
	return track, nil
}

func (s *FileSource) acquireAudio() (*Track, error) {
	if s.AudioPath == "" {
		return nil, unavailable(KindAudio, errors.New("no audio file configured"))
	}
	f, reader, err := openOgg(s.AudioPath)
	if err != nil {
		return nil, unavailable(KindAudio, err)
	}
	track, err := newTrack(KindAudio, CodecOpus, s.StreamID)
	if err != nil {
		f.Close()
		return nil, unavailable(KindAudio, err)
	}

	go track.playOgg(s.AudioPath, f, reader)
	utils.Info("[Media] audio %s started", s.AudioPath)
	return track, nil
}

func openIVF(path string) (*os.File, *ivfreader.IVFReader, *ivfreader.IVFFileHeader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, nil, err
	}
	reader, header, err := ivfreader.NewWith(f)
	if err != nil {
		f.Close()
		return nil, nil, nil, err
	}
	return f, reader, header, nil
}

func openOgg(path string) (*os.File, *oggreader.OggReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	reader, _, err := oggreader.NewWith(f)
	if err != nil {
		f.Close()
		return nil, nil, err
	}
	return f, reader, nil
}

// frameInterval derives the frame duration from the IVF timebase
func frameInterval(header *ivfreader.IVFFileHeader) time.Duration {
	if header.TimebaseDenominator == 0 || header.TimebaseNumerator == 0 {
		return 33 * time.Millisecond
	}
	return time.Duration(float64(time.Second) *
		float64(header.TimebaseNumerator) / float64(header.TimebaseDenominator))
}

func (t *Track) playIVF(path string, f *os.File, reader *ivfreader.IVFReader, interval time.Duration) {
	defer close(t.done)
	defer func() { f.Close() }()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-t.stopCh:
			return
		case <-ticker.C:
		}

		frame, _, err := reader.ParseNextFrame()
		if errors.Is(err, io.EOF) {
			// 循环播放
			f.Close()
			f, reader, _, err = openIVF(path)
			if err != nil {
				utils.Warn("[Media] reopen %s failed: %v", path, err)
				return
			}
			continue
		}
		if err != nil {
			utils.Warn("[Media] read %s failed: %v", path, err)
			return
		}

		if err := t.write(media.Sample{Data: frame, Duration: interval}); err != nil {
			utils.Debug("[Media] write video sample: %v", err)
		}
	}
}

// Opus 每页按 20ms 推送
const oggPageDuration = 20 * time.Millisecond

func (t *Track) playOgg(path string, f *os.File, reader *oggreader.OggReader) {
	defer close(t.done)
	defer func() { f.Close() }()

	ticker := time.NewTicker(oggPageDuration)
	defer ticker.Stop()

	var lastGranule uint64
	for {
		select {
		case <-t.stopCh:
			return
		case <-ticker.C:
		}

		page, header, err := reader.ParseNextPage()
		if errors.Is(err, io.EOF) {
			f.Close()
			f, reader, err = openOgg(path)
			if err != nil {
				utils.Warn("[Media] reopen %s failed: %v", path, err)
				return
			}
			lastGranule = 0
			continue
		}
		if err != nil {
			utils.Warn("[Media] read %s failed: %v", path, err)
			return
		}

		// granule 是 48kHz 下的累计采样数
		sampleCount := float64(header.GranulePosition - lastGranule)
		lastGranule = header.GranulePosition
		duration := time.Duration(sampleCount / 48000 * float64(time.Second))

		if err := t.write(media.Sample{Data: page, Duration: duration}); err != nil {
			utils.Debug("[Media] write audio sample: %v", err)
		}
	}
}
