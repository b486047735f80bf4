package profiles

import (
	"fmt"
	"sort"
)

// Common carrier frequencies
const (
	Freq315   = 315000000.0
	Freq433   = 433920000.0
	Freq868   = 868350000.0
	Freq915   = 915000000.0
	DefaultBW = 58000.0
)

// NewOOK creates an OOK profile for fixed-code remotes and key fobs
func NewOOK(freqHz, dataRate float64) Profile {
	return Profile{
		Name:         fmt.Sprintf("%s-ook-%s", bandName(freqHz), formatDataRate(dataRate)),
		Description:  fmt.Sprintf("%.2f MHz ASK/OOK at %.0f baud", freqHz/1e6, dataRate),
		FrequencyHz:  freqHz,
		Modulation:   ModASKOOK,
		DataRateBaud: dataRate,
		ChannelBWHz:  DefaultBW,
	}
}

// NewFSK creates a 2-FSK profile with the deviation at half the data rate
func NewFSK(freqHz, dataRate float64) Profile {
	return Profile{
		Name:         fmt.Sprintf("%s-fsk-%s", bandName(freqHz), formatDataRate(dataRate)),
		Description:  fmt.Sprintf("%.2f MHz 2-FSK at %.0f baud", freqHz/1e6, dataRate),
		FrequencyHz:  freqHz,
		Modulation:   Mod2FSK,
		DataRateBaud: dataRate,
		DeviationHz:  dataRate * 0.5,
		ChannelBWHz:  100000,
	}
}

var presets = map[string]Profile{}

func init() {
	for _, p := range []Profile{
		NewOOK(Freq315, 2400),
		NewOOK(Freq433, 2400),
		NewOOK(Freq433, 4800),
		NewOOK(Freq868, 4800),
		NewOOK(Freq915, 9600),
		NewFSK(Freq433, 4800),
		NewFSK(Freq868, 9600),
	} {
		presets[p.Name] = p
	}
}

// Lookup returns the preset with the given name
func Lookup(name string) (Profile, bool) {
	p, ok := presets[name]
	return p, ok
}

// Names returns the preset names in order
func Names() []string {
	names := make([]string, 0, len(presets))
	for name := range presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func bandName(freqHz float64) string {
	switch {
	case freqHz < 350e6:
		return "315"
	case freqHz < 500e6:
		return "433"
	case freqHz < 900e6:
		return "868"
	}
	return "915"
}

// formatDataRate formats a data rate for use in profile names
func formatDataRate(rate float64) string {
	if rate >= 1000000 {
		return fmt.Sprintf("%.0fM", rate/1000000)
	} else if rate >= 1000 {
		k := rate / 1000
		if k == float64(int(k)) {
			return fmt.Sprintf("%.0fk", k)
		}
		return fmt.Sprintf("%.1fk", k)
	}
	return fmt.Sprintf("%.0f", rate)
}
