package main

import (
	"context"
	"fmt"

	"github.com/chazu/noderpc/codegen"
	"github.com/chazu/noderpc/node"
	"github.com/chazu/noderpc/rpc"
)

// handleSimulateCommand processes `noderpc simulate`. Every command of each
// class is called with zero arguments on a simulated node whose handlers
// return zero values, so the table's framing and codecs are exercised end to
// end without hardware.
func (c *cli) handleSimulateCommand(ctx context.Context, args []string) error {
	flags, dir := newFlagSet("simulate")
	if err := flags.Parse(args); err != nil {
		return err
	}

	m, err := loadProject(*dir)
	if err != nil {
		return err
	}
	tables, err := introspectProject(m)
	if err != nil {
		return err
	}

	// Tables generate would reject have no firmware to stand in for.
	for _, table := range tables {
		if err := codegen.Validate(table); err != nil {
			return err
		}
	}

	var opts []node.Option
	if m.Output.ScratchSize > 0 {
		opts = append(opts, node.WithScratchSize(m.Output.ScratchSize))
	}

	failed := 0
	for _, table := range tables {
		fmt.Fprintf(c.stdout, "%s  digest %.12s\n", table.Class, table.Digest())
		n, err := simulateTable(ctx, c, table, opts)
		if err != nil {
			return err
		}
		failed += n
	}
	if failed > 0 {
		return fmt.Errorf("%d simulated calls failed", failed)
	}
	return nil
}

// simulateTable round-trips every command of table and returns the number
// that failed.
func simulateTable(ctx context.Context, c *cli, table *rpc.CommandTable, opts []node.Option) (int, error) {
	sim := node.NewSim(table, opts...)
	for _, cmd := range table.Commands {
		ret := cmd.Method.Return
		if err := sim.Handle(cmd.Method.Name, func([]any) any { return zeroValue(ret) }); err != nil {
			return 0, err
		}
	}
	client := rpc.NewClient(sim)

	failed := 0
	for _, cmd := range table.Commands {
		status := "ok"
		if err := roundTrip(ctx, client, cmd); err != nil {
			status = err.Error()
			failed++
		}
		inherited := ""
		if cmd.Method.DeclaredIn != "" && cmd.Method.DeclaredIn != table.Class {
			inherited = " [" + cmd.Method.DeclaredIn + "]"
		}
		fmt.Fprintf(c.stdout, "  %3d  %s%s  %s\n", cmd.ID, cmd.Method.Canonical(), inherited, status)
	}
	return failed, nil
}

func roundTrip(ctx context.Context, client *rpc.Client, cmd rpc.Command) error {
	enc := rpc.NewEncoder()
	for _, p := range cmd.Method.Params {
		if err := enc.PutValue(p.Type, zeroValue(p.Type)); err != nil {
			return err
		}
	}
	payload, err := enc.Payload()
	if err != nil {
		return err
	}
	reply, err := client.Call(ctx, uint8(cmd.ID), payload)
	if err != nil {
		return err
	}
	dec := rpc.NewDecoder(reply)
	dec.Value(cmd.Method.Return)
	if err := dec.Finish(); err != nil {
		return rpc.NewDecodeError(uint8(cmd.ID), err)
	}
	return nil
}

// zeroValue returns the zero value of t as its Go type. Eight zero bytes
// decode to a zero scalar or an empty array of any type.
func zeroValue(t rpc.ParamType) any {
	return rpc.NewDecoder(make([]byte, 8)).Value(t)
}
