package main

import (
	"context"
	"fmt"
	"time"

	"github.com/chazu/noderpc/board"
	"github.com/chazu/noderpc/firmware"
)

const timeLayout = "2006-01-02 15:04:05"

// handleListCommand processes `noderpc list`.
// Usage:
//
//	noderpc list [BOARD...] [--all]
func (c *cli) handleListCommand(args []string) error {
	flags, dir := newFlagSet("list")
	all := flags.Bool("all", false, "show every artifact, not only the newest per board")
	if err := flags.Parse(args); err != nil {
		return err
	}

	m, err := loadProject(*dir)
	if err != nil {
		return err
	}
	reg := registryFor(m)

	var boards []string
	if flags.NArg() > 0 {
		boards = flags.Args()
	} else if boards, err = reg.Boards(); err != nil {
		return err
	}
	if len(boards) == 0 {
		fmt.Fprintf(c.stdout, "No firmware under %s\n", reg.Root())
		return nil
	}

	for _, b := range boards {
		artifacts, err := reg.Artifacts(b)
		if err != nil {
			return err
		}
		if len(artifacts) == 0 {
			return &firmware.NoFirmwareError{Board: b, Root: reg.Root()}
		}
		if !*all {
			artifacts = artifacts[:1]
		}
		for _, a := range artifacts {
			fmt.Fprintf(c.stdout, "%-12s %s  %8d  %.12s  %s\n",
				a.Board, a.BuiltAt.Local().Format(timeLayout), a.Size, a.SHA256, rel(m.Dir, a.Path))
		}
	}
	return nil
}

// handleHistoryCommand processes `noderpc history`.
// Usage:
//
//	noderpc history [BOARD] [--limit N]
func (c *cli) handleHistoryCommand(ctx context.Context, args []string) error {
	flags, dir := newFlagSet("history")
	limit := flags.Int("limit", 20, "maximum entries shown (0 for all)")
	if err := flags.Parse(args); err != nil {
		return err
	}
	if flags.NArg() > 1 {
		return fmt.Errorf("history takes at most one board, got %d", flags.NArg())
	}

	m, err := loadProject(*dir)
	if err != nil {
		return err
	}
	ledger, err := board.OpenLedgerIn(m.FirmwareDir())
	if err != nil {
		return err
	}
	defer ledger.Close()

	entries, err := ledger.History(ctx, flags.Arg(0), *limit)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Fprintln(c.stdout, "No builds recorded")
		return nil
	}
	for _, e := range entries {
		took := e.FinishedAt.Sub(e.StartedAt).Round(10 * time.Millisecond)
		detail := rel(m.Dir, e.Artifact)
		if e.Status != board.StatusSucceeded {
			detail = e.Error
		}
		fmt.Fprintf(c.stdout, "%s  %-12s %-9s %8s  %s\n",
			e.FinishedAt.Local().Format(timeLayout), e.Board, e.Status, took, detail)
	}
	return nil
}
