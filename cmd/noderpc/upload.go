package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/chazu/noderpc/upload"
)

// handleUploadCommand processes `noderpc upload`.
// Usage:
//
//	noderpc upload BOARD [--port PORT] [--toolchain-home PATH] [--skip-verify] [--baud N]
func (c *cli) handleUploadCommand(ctx context.Context, args []string) error {
	flags, dir := newFlagSet("upload")
	port := flags.String("port", "", "serial `port` (detected from USB ids when omitted)")
	home := flags.String("toolchain-home", "", "arduino-cli data `directory` supplying boards.txt")
	skipVerify := flags.Bool("skip-verify", false, "do not read the flash back after writing")
	baud := flags.Int("baud", 0, "override the bootloader baud rate")
	if err := flags.Parse(args); err != nil {
		return err
	}
	if flags.NArg() != 1 {
		return fmt.Errorf("upload takes exactly one board, got %d", flags.NArg())
	}

	m, err := loadProject(*dir)
	if err != nil {
		return err
	}
	profiles, err := profilesFromManifest(m)
	if err != nil {
		return err
	}
	toolchainHome := m.ToolchainHome()
	if *home != "" {
		toolchainHome = *home
	}

	opts := append([]upload.Option{upload.WithProfiles(profiles)}, c.uploadOptions...)
	u := upload.NewUploader(registryFor(m), opts...)
	res, err := u.Upload(ctx, upload.Request{
		Board:         flags.Arg(0),
		Port:          *port,
		ToolchainHome: toolchainHome,
		SkipVerify:    *skipVerify,
		Baud:          *baud,
	})
	if err != nil {
		return err
	}

	verified := "not verified"
	if res.Verified {
		verified = "verified"
	}
	fmt.Fprintf(c.stdout, "Uploaded %s to %s on %s\n", rel(m.Dir, res.Artifact.Path), res.Board, res.Port)
	fmt.Fprintf(c.stdout, "  %s, %d bytes in %d pages, %s, %s\n",
		res.Protocol, res.Bytes, res.Pages, verified, res.Duration.Round(time.Millisecond))
	return nil
}

// handlePortsCommand processes `noderpc ports`.
func (c *cli) handlePortsCommand(args []string) error {
	flags, dir := newFlagSet("ports")
	if err := flags.Parse(args); err != nil {
		return err
	}

	// Outside a project the built-in profiles still identify boards.
	profiles := upload.DefaultProfiles()
	if m, err := loadProject(*dir); err == nil {
		if profiles, err = profilesFromManifest(m); err != nil {
			return err
		}
	}

	ports, err := upload.ListPorts()
	if err != nil {
		return err
	}
	if len(ports) == 0 {
		fmt.Fprintln(c.stdout, "No serial ports found")
		return nil
	}
	for _, p := range ports {
		usb := "-"
		if p.IsUSB {
			usb = strings.ToLower(p.VID + ":" + p.PID)
		}
		boards := upload.IdentifyPort(p, profiles)
		match := "-"
		if len(boards) > 0 {
			match = strings.Join(boards, ",")
		}
		fmt.Fprintf(c.stdout, "%-20s %-10s %s\n", p.Name, usb, match)
	}
	return nil
}
