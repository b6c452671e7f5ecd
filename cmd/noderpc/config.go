package main

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/chazu/noderpc/nodecfg"
)

// handleConfigCommand processes `noderpc config`.
// Usage:
//
//	noderpc config encode [--serial N] [--baud N] [--i2c N]   Encode a Config message as hex
//	noderpc config decode HEX                                 Decode and validate a Config message
//	noderpc config state [--float F] [--int N]                Encode a State message as hex
func (c *cli) handleConfigCommand(args []string) error {
	if len(args) == 0 {
		fmt.Fprintln(c.stderr, "Usage: noderpc config [encode|decode|state] ...")
		fmt.Fprintln(c.stderr, "  encode [--serial N] [--baud N] [--i2c N]  Encode a node configuration")
		fmt.Fprintln(c.stderr, "  decode HEX                                Decode a node configuration")
		fmt.Fprintln(c.stderr, "  state [--float F] [--int N]               Encode a node state")
		return fmt.Errorf("config needs a subcommand")
	}

	switch args[0] {
	case "encode":
		return c.handleConfigEncode(args[1:])
	case "decode":
		return c.handleConfigDecode(args[1:])
	case "state":
		return c.handleStateEncode(args[1:])
	default:
		return fmt.Errorf("unknown config subcommand %q", args[0])
	}
}

func (c *cli) handleConfigEncode(args []string) error {
	flags, _ := newFlagSet("config encode")
	serial := flags.Uint32("serial", 0, "serial number")
	baud := flags.Uint32("baud", 0, "serial baud rate")
	i2c := flags.Uint32("i2c", 0, "I2C address (0x08-0x77)")
	if err := flags.Parse(args); err != nil {
		return err
	}

	var cfg nodecfg.Config
	if flags.Changed("serial") {
		cfg.SerialNumber = nodecfg.Uint32(*serial)
	}
	if flags.Changed("baud") {
		cfg.BaudRate = nodecfg.Uint32(*baud)
	}
	if flags.Changed("i2c") {
		cfg.I2CAddress = nodecfg.Uint32(*i2c)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	fmt.Fprintln(c.stdout, hex.EncodeToString(cfg.Marshal()))
	return nil
}

func (c *cli) handleConfigDecode(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("config decode takes one hex argument")
	}
	b, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(args[0]), "0x"))
	if err != nil {
		return fmt.Errorf("decoding hex: %w", err)
	}
	cfg, err := nodecfg.UnmarshalConfig(b)
	if err != nil {
		return err
	}

	field := func(name string, v *uint32, format string) {
		if v == nil {
			fmt.Fprintf(c.stdout, "%-14s (unset)\n", name)
			return
		}
		fmt.Fprintf(c.stdout, "%-14s "+format+"\n", name, *v)
	}
	field("serial_number", cfg.SerialNumber, "%d")
	field("baud_rate", cfg.BaudRate, "%d")
	field("i2c_address", cfg.I2CAddress, "0x%02x")
	return cfg.Validate()
}

func (c *cli) handleStateEncode(args []string) error {
	flags, _ := newFlagSet("config state")
	floatValue := flags.Float32("float", 0, "float value (> 3.14)")
	intValue := flags.Int32("int", 0, "integer value (5 < n < 1024)")
	if err := flags.Parse(args); err != nil {
		return err
	}

	var st nodecfg.State
	if flags.Changed("float") {
		st.FloatValue = nodecfg.Float32(*floatValue)
	}
	if flags.Changed("int") {
		st.IntegerValue = nodecfg.Int32(*intValue)
	}
	if err := st.Validate(); err != nil {
		return err
	}
	fmt.Fprintln(c.stdout, hex.EncodeToString(st.Marshal()))
	return nil
}
