package singleinstance

import (
	"github.com/caarlos0/env/v11"
)

// PortRange is the inclusive loopback port range scanned by clients. The
// resident binds Start only.
type PortRange struct {
	Start int `env:"SWIFTLINGO_PORT_START" envDefault:"47310"`
	End   int `env:"SWIFTLINGO_PORT_END"   envDefault:"47330"`
}

var defaultPorts = PortRange{Start: 47310, End: 47330}

// Ports reads the range from the environment. Unparsable values fall back
// to the defaults; the result is clamped to [1024, 65535].
func Ports() PortRange {
	r, err := env.ParseAs[PortRange]()
	if err != nil {
		r = defaultPorts
	}
	return r.clamp()
}

func (r PortRange) clamp() PortRange {
	if r.Start < 1024 {
		r.Start = 1024
	}
	if r.End > 65535 {
		r.End = 65535
	}
	if r.End < r.Start {
		r.Start, r.End = r.End, r.Start
	}
	return r
}
