package fingerprint

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDerive_Deterministic(t *testing.T) {
	s := Signals{CPUID: "BFEBFBFF000906EA", DiskSerial: "S4EWNX0N123456", Hostname: "till-01", Username: "cashier"}

	first := Derive(s)
	assert.Len(t, first, Length)
	assert.Equal(t, first, Derive(s))
}

func TestDerive_Diffusion(t *testing.T) {
	a := Signals{CPUID: "BFEBFBFF000906EA", DiskSerial: "S4EWNX0N123456", Hostname: "till-01"}
	b := a
	b.DiskSerial = "S4EWNX0N123457"

	assert.NotEqual(t, Derive(a), Derive(b))
}

func TestDerive_FallbackWithoutHardware(t *testing.T) {
	partial := Signals{CPUID: "BFEBFBFF000906EA", Hostname: "till-01", Username: "cashier"}
	bare := Signals{Hostname: "till-01", Username: "cashier"}

	assert.False(t, partial.HasHardware())
	assert.Equal(t, "till-01cashier", partial.Material())
	assert.Equal(t, Derive(bare), Derive(partial))
}

func TestSignals_MaterialIgnoresUserWhenHardwarePresent(t *testing.T) {
	s := Signals{CPUID: "cpu", DiskSerial: "disk", Hostname: "host", Username: "alice"}
	other := s
	other.Username = "bob"

	assert.Equal(t, "cpudiskhost", s.Material())
	assert.Equal(t, Derive(s), Derive(other))
}
