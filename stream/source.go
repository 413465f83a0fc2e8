// Package stream reads frames from a network camera with stride sampling and
// reconnects with backoff when the stream drops.
package stream

import (
	"context"
	"log/slog"

	"gocv.io/x/gocv"
	"golang.org/x/xerrors"

	"github.com/khaledhikmat/vs-track/service/lgr"
)

var (
	ErrConnectFailed = xerrors.New("stream connect failed")
	ErrReadFailed    = xerrors.New("stream read failed")
	ErrExhausted     = xerrors.New("stream reconnect attempts exhausted")
)

// Reader is the part of gocv.VideoCapture the source needs.
type Reader interface {
	Read(m *gocv.Mat) bool
	IsOpened() bool
	Close() error
}

type Opener func(url string) (Reader, error)

// OpenCapture opens url with a one-frame buffer so reads stay fresh.
func OpenCapture(url string) (Reader, error) {
	vc, err := gocv.OpenVideoCapture(url)
	if err != nil {
		return nil, err
	}
	if !vc.IsOpened() {
		vc.Close()
		return nil, xerrors.Errorf("capture %s not opened", url)
	}
	vc.Set(gocv.VideoCaptureBufferSize, 1)

	lgr.Logger.Info("capture opened",
		slog.String("url", url),
		slog.Float64("fps", vc.Get(gocv.VideoCaptureFPS)),
	)

	return vc, nil
}

type Stats struct {
	Frames     int
	Skipped    int
	Errors     int
	Reconnects int
}

type Option func(*Source)

func WithOpener(o Opener) Option {
	return func(s *Source) {
		s.open = o
	}
}

func WithBackoff(b Backoff) Option {
	return func(s *Source) {
		s.backoff = b
	}
}

func WithSleeper(f Sleeper) Option {
	return func(s *Source) {
		s.sleep = f
	}
}

// Source is owned by the capture goroutine; it is not safe for concurrent use.
type Source struct {
	url     string
	id      string
	stride  uint64
	counter uint64
	reader  Reader
	open    Opener
	backoff Backoff
	sleep   Sleeper
	stats   Stats
}

func newSource(url, id string, stride int, opts []Option) *Source {
	if stride < 1 {
		stride = 1
	}

	s := &Source{
		url:     url,
		id:      id,
		stride:  uint64(stride),
		open:    OpenCapture,
		backoff: DefaultBackoff(),
		sleep:   sleepCtx,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open connects once and fails with ErrConnectFailed.
func Open(url, id string, stride int, opts ...Option) (*Source, error) {
	s := newSource(url, id, stride, opts)

	r, err := s.open(url)
	if err != nil {
		return nil, xerrors.Errorf("camera %s: %v: %w", id, err, ErrConnectFailed)
	}
	s.reader = r

	return s, nil
}

// Dial is Open followed by the Reconnect schedule when the first attempt
// fails.
func Dial(ctx context.Context, url, id string, stride int, opts ...Option) (*Source, error) {
	s := newSource(url, id, stride, opts)

	r, err := s.open(url)
	if err == nil {
		s.reader = r
		return s, nil
	}

	lgr.Logger.Warn("stream open failed, retrying",
		slog.String("camera", id),
		slog.Any("error", err),
	)
	if err := s.Reconnect(ctx); err != nil {
		return nil, err
	}
	s.stats.Reconnects = 0
	return s, nil
}

func (s *Source) ID() string {
	return s.id
}

func (s *Source) Stats() Stats {
	return s.stats
}

// NextFrame reads one frame. It returns ok=false for frames skipped by
// the sampling stride. The caller owns and must close a returned Mat.
func (s *Source) NextFrame() (gocv.Mat, bool, error) {
	img := gocv.NewMat()
	if s.reader == nil || !s.reader.Read(&img) || img.Empty() {
		img.Close()
		s.stats.Errors++
		return gocv.Mat{}, false, xerrors.Errorf("camera %s: %w", s.id, ErrReadFailed)
	}

	s.counter++
	s.stats.Frames++
	if s.counter%s.stride != 0 {
		img.Close()
		s.stats.Skipped++
		return gocv.Mat{}, false, nil
	}

	return img, true, nil
}

// Reconnect replaces the capture handle, waiting Backoff.Delay before each
// attempt. It returns ErrExhausted after Backoff.MaxAttempts failures.
func (s *Source) Reconnect(ctx context.Context) error {
	if s.reader != nil {
		s.reader.Close()
		s.reader = nil
	}

	for attempt := 1; attempt <= s.backoff.MaxAttempts; attempt++ {
		if err := s.sleep(ctx, s.backoff.Delay(attempt)); err != nil {
			return err
		}

		r, err := s.open(s.url)
		if err == nil {
			s.reader = r
			s.stats.Reconnects++
			lgr.Logger.Info("stream reconnected",
				slog.String("camera", s.id),
				slog.Int("attempt", attempt),
			)
			return nil
		}

		lgr.Logger.Warn("stream reconnect attempt failed",
			slog.String("camera", s.id),
			slog.Int("attempt", attempt),
			slog.Any("error", err),
		)
	}

	return xerrors.Errorf("camera %s after %d attempts: %w", s.id, s.backoff.MaxAttempts, ErrExhausted)
}

func (s *Source) Close() error {
	if s.reader == nil {
		return nil
	}
	err := s.reader.Close()
	s.reader = nil
	return err
}
