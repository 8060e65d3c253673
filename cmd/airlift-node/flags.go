package main

import "github.com/alecthomas/kong"

// version is injected at build time with -ldflags "-X main.version=...".
// Defaults to dev.
var version = "dev"

// CLI is the node's bootstrap configuration, bound declaratively via kong
// (replacing the teacher's manual flag.String wiring — kong is the
// corpus's alternative for exactly this kind of flag-to-struct binding).
// Everything here is process bootstrap only; there is no CLI surface for
// flow/mixer graph shape, which is assembled in code.
type CLI struct {
	LogLevel     string  `help:"Log level: debug|info|warn|error." default:"info" enum:"debug,info,warn,error"`
	RingCapacity int     `help:"Capacity of each producer's allocated ring." default:"1000"`
	ToneHz       float64 `help:"Demo generator tone frequency in Hz (0 = silence)." default:"440"`
	Amplitude    int     `help:"Demo generator peak amplitude." default:"8000"`
	Gain         float64 `help:"Gain processor factor applied in the demo flow." default:"1.0"`
	Output       string  `help:"RFMA output file path for the demo file writer consumer." default:"airlift-node.rfma"`

	Version kong.VersionFlag `help:"Print version and exit."`
}

func parseFlags(args []string) (*CLI, error) {
	cli := &CLI{}
	parser, err := kong.New(cli,
		kong.Name("airlift-node"),
		kong.Description("Real-time multi-producer/multi-consumer PCM pipeline node."),
		kong.Vars{"version": version},
	)
	if err != nil {
		return nil, err
	}
	if _, err := parser.Parse(args); err != nil {
		return nil, err
	}
	return cli, nil
}
