// Package upload flashes firmware from the registry onto a board through its
// serial bootloader.
package upload

import (
	"context"
	"fmt"
	"time"

	"github.com/tliron/commonlog"

	"github.com/chazu/noderpc/firmware"
)

var log = commonlog.GetLogger("noderpc.upload")

// Request is one upload attempt.
type Request struct {
	Board string
	// Port is detected from the board's USB ids when empty.
	Port string
	// ToolchainHome, when set, supplies boards.txt overrides.
	ToolchainHome string
	// SkipVerify disables the read-back pass after writing.
	SkipVerify bool
	// Baud overrides the profile's rate when non-zero.
	Baud int
}

// Result describes a completed upload.
type Result struct {
	Board    string
	Port     string
	Artifact firmware.Artifact
	Protocol Protocol
	Bytes    int
	Pages    int
	Verified bool
	Duration time.Duration
}

// Uploader flashes registry artifacts.
type Uploader struct {
	registry *firmware.Registry
	profiles Profiles
	open     Opener
	detect   Detector
	timing   Timing
	now      func() time.Time
}

// Option configures an Uploader.
type Option func(*Uploader)

// WithProfiles replaces the board profiles.
func WithProfiles(ps Profiles) Option {
	return func(u *Uploader) { u.profiles = ps }
}

// WithOpener replaces how ports are opened.
func WithOpener(o Opener) Option {
	return func(u *Uploader) { u.open = o }
}

// WithDetector replaces port enumeration.
func WithDetector(d Detector) Option {
	return func(u *Uploader) { u.detect = d }
}

// WithTiming replaces the handshake timing.
func WithTiming(t Timing) Option {
	return func(u *Uploader) { u.timing = t }
}

// NewUploader returns an uploader reading artifacts from reg.
func NewUploader(reg *firmware.Registry, opts ...Option) *Uploader {
	u := &Uploader{
		registry: reg,
		profiles: DefaultProfiles(),
		open:     OpenSerial,
		detect:   ListPorts,
		timing:   DefaultTiming,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

// Upload flashes the newest artifact for req.Board. Nothing touches the
// serial port until the artifact, image and port are all resolved. Each
// call performs its own reset handshake; failures are not retried.
func (u *Uploader) Upload(ctx context.Context, req Request) (*Result, error) {
	start := u.now()

	art, err := u.registry.Resolve(req.Board)
	if err != nil {
		return nil, err
	}

	profiles, err := u.profiles.WithToolchainHome(req.ToolchainHome)
	if err != nil {
		return nil, err
	}
	profile, err := profiles.Lookup(req.Board)
	if err != nil {
		return nil, err
	}
	if req.Baud > 0 {
		profile.Baud = req.Baud
	}

	image, err := PrepareImage(art.Path, profile)
	if err != nil {
		return nil, &UploadError{Board: req.Board, Phase: PhaseImage, Err: err}
	}

	portName := req.Port
	if portName == "" {
		if portName, err = u.detectPort(profile); err != nil {
			return nil, err
		}
	}

	log.Infof("uploading %s to %s on %s (%s, %d bytes)", art.Path, req.Board, portName, profile.Protocol, len(image))
	port, err := u.open(portName, profile.Baud)
	if err != nil {
		return nil, &UploadError{Board: req.Board, Phase: PhaseOpen, Err: err}
	}
	defer port.Close()
	if err := port.SetReadTimeout(u.timing.ReadTimeout); err != nil {
		return nil, &UploadError{Board: req.Board, Phase: PhaseOpen, Err: err}
	}

	bl, err := NewBootloader(profile.Protocol, port, u.timing)
	if err != nil {
		return nil, &UploadError{Board: req.Board, Phase: PhaseOpen, Err: err}
	}
	if err := u.flash(ctx, req, profile, bl, image); err != nil {
		return nil, err
	}

	res := &Result{
		Board:    req.Board,
		Port:     portName,
		Artifact: art,
		Protocol: profile.Protocol,
		Bytes:    len(image),
		Pages:    len(image) / profile.PageSize,
		Verified: !req.SkipVerify,
		Duration: u.now().Sub(start),
	}
	log.Infof("uploaded %s: %d pages in %s", req.Board, res.Pages, res.Duration)
	return res, nil
}

func (u *Uploader) flash(ctx context.Context, req Request, profile Profile, bl Bootloader, image []byte) error {
	fail := func(phase string, offset int, err error) error {
		return &UploadError{Board: req.Board, Phase: phase, Offset: offset, Err: err}
	}

	if err := bl.Reset(ctx); err != nil {
		return fail(PhaseReset, 0, err)
	}

	page := profile.PageSize
	for off := 0; off < len(image); off += page {
		if err := bl.TransferBlock(ctx, uint32(off), image[off:off+page]); err != nil {
			return fail(PhaseTransfer, off, err)
		}
	}

	if !req.SkipVerify {
		for off := 0; off < len(image); off += page {
			got, err := bl.ReadBack(ctx, uint32(off), page)
			if err != nil {
				return fail(PhaseReadBack, off, err)
			}
			want := image[off : off+page]
			for i := range want {
				if got[i] != want[i] {
					return &VerificationError{Board: req.Board, Offset: off + i, Want: want[i], Got: got[i]}
				}
			}
		}
	}

	if err := bl.Finalize(ctx); err != nil {
		return fail(PhaseFinalize, 0, err)
	}
	return nil
}

func (u *Uploader) detectPort(profile Profile) (string, error) {
	ports, err := u.detect()
	if err != nil {
		return "", fmt.Errorf("listing serial ports: %w", err)
	}
	name, ok := MatchPort(ports, profile)
	if !ok {
		return "", &PortNotFoundError{Board: profile.Board}
	}
	log.Debugf("detected %s for %s", name, profile.Board)
	return name, nil
}
