package server

import (
	"fmt"
	"net"
	"slices"
	"strconv"

	"github.com/giantswarm/h2env/internal/core"
)

// Options are the settings of one protocol server, decoded from the flag
// sequence.
type Options struct {
	Protocol    string
	Port        int
	AllowOthers bool
	SSL         bool
	Daemon      bool

	BaseDir  string
	IfExists bool
	Trace    bool
	Password string
}

// valueFlags lists the flags followed by a value token.
func valueFlags() []string {
	flags := []string{core.FlagBaseDir, core.FlagPassword}
	for _, id := range core.Protocols() {
		flags = append(flags, core.PortFlag(id))
	}
	return flags
}

// Selected returns the protocol ids selected in args, in token order.
func Selected(args []string) []string {
	var ids []string
	values := valueFlags()
	for i := 0; i < len(args); i++ {
		if slices.Contains(values, args[i]) {
			i++
			continue
		}
		for _, id := range core.Protocols() {
			if args[i] == core.SelectorFlag(id) && !slices.Contains(ids, id) {
				ids = append(ids, id)
			}
		}
	}
	return ids
}

// ParseArgs decodes the options of protocol from args. Flags of other
// protocols are skipped. A missing selector token wraps core.ErrNoServices;
// a malformed or incomplete value wraps core.ErrInvalidArgument. A port
// outside [core.MinPort, core.MaxPort] is clamped.
func ParseArgs(protocol string, args []string) (Options, error) {
	if !slices.Contains(Selected(args), protocol) {
		return Options{}, fmt.Errorf("no %s selector in %q: %w", core.SelectorFlag(protocol), args, core.ErrNoServices)
	}

	opts := Options{Protocol: protocol, Port: core.DefaultPort(protocol)}
	values := valueFlags()
	for i := 0; i < len(args); i++ {
		flag := args[i]
		if slices.Contains(values, flag) {
			if i+1 >= len(args) {
				return Options{}, fmt.Errorf("flag %s requires a value: %w", flag, core.ErrInvalidArgument)
			}
			i++
			value := args[i]
			switch flag {
			case core.PortFlag(protocol):
				port, err := strconv.Atoi(value)
				if err != nil {
					return Options{}, fmt.Errorf("flag %s: invalid port %q: %w", flag, value, core.ErrInvalidArgument)
				}
				opts.Port = core.ClampPort(port)
			case core.FlagBaseDir:
				opts.BaseDir = value
			case core.FlagPassword:
				opts.Password = value
			}
			continue
		}

		switch flag {
		case core.AllowOthersFlag(protocol):
			opts.AllowOthers = true
		case core.SSLFlag(protocol):
			opts.SSL = true
		case core.DaemonFlag(protocol):
			opts.Daemon = true
		case core.FlagIfExists:
			opts.IfExists = true
		case core.FlagTrace:
			opts.Trace = true
		}
	}
	return opts, nil
}

// ListenAddress returns the address the server binds: loopback unless remote
// access is allowed.
func (o Options) ListenAddress() string {
	host := "127.0.0.1"
	if o.AllowOthers {
		host = ""
	}
	return net.JoinHostPort(host, strconv.Itoa(o.Port))
}
