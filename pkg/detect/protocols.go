package detect

// ProtocolInfo is the timing signature of a remote-control protocol
type ProtocolInfo struct {
	Name       string
	BaseUnit   uint32  // us
	Tolerance  float64 // fraction of BaseUnit
	IsInverted bool    // line idles high
	MinRepeats int     // pulses per timing class to count as repeated
}

// Known protocol signatures
var protocols = []ProtocolInfo{
	{Name: "Princeton PT2262", BaseUnit: 350, Tolerance: 0.20, MinRepeats: 4},
	{Name: "Holtek HT12E", BaseUnit: 400, Tolerance: 0.15, MinRepeats: 3},
	{Name: "Linear", BaseUnit: 500, Tolerance: 0.15, MinRepeats: 3},
	{Name: "NEC", BaseUnit: 562, Tolerance: 0.15, MinRepeats: 2},
	{Name: "Somfy RTS", BaseUnit: 640, Tolerance: 0.15, IsInverted: true, MinRepeats: 2},
	{Name: "Nice FLO", BaseUnit: 700, Tolerance: 0.15, MinRepeats: 3},
	{Name: "Chamberlain", BaseUnit: 1000, Tolerance: 0.20, IsInverted: true, MinRepeats: 2},
}

// Protocols returns a copy of the known protocol table
func Protocols() []ProtocolInfo {
	out := make([]ProtocolInfo, len(protocols))
	copy(out, protocols)
	return out
}

// LookupProtocol returns the protocol with the given name
func LookupProtocol(name string) (ProtocolInfo, bool) {
	for _, p := range protocols {
		if p.Name == name {
			return p, true
		}
	}
	return ProtocolInfo{}, false
}

// ValidateTiming reports whether timing is within tolerance (a fraction) of
// expected
func ValidateTiming(timing, expected uint32, tolerance float64) bool {
	diff := float64(timing) - float64(expected)
	if diff < 0 {
		diff = -diff
	}
	return diff <= float64(expected)*tolerance
}
