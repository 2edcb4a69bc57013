package events

import "testing"

func ptr(v uint64) *uint64 { return &v }

func TestNormalizeHardwareTimestamp(t *testing.T) {
	const recv = uint64(10_000_000_000)

	tests := []struct {
		name string
		hw   *uint64
		want uint64
	}{
		{"absent", nil, recv},
		{"zero", ptr(0), recv},
		{"equal", ptr(recv), recv},
		{"ahead within window", ptr(recv + 1_000), recv + 1_000},
		{"behind within window", ptr(recv - 1_000), recv - 1_000},
		{"ahead at bound", ptr(recv + MaxHardwareSkewNs), recv + MaxHardwareSkewNs},
		{"behind at bound", ptr(recv - MaxHardwareSkewNs), recv - MaxHardwareSkewNs},
		{"ahead past bound", ptr(recv + MaxHardwareSkewNs + 1), recv},
		{"behind past bound", ptr(recv - MaxHardwareSkewNs - 1), recv},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizeHardwareTimestamp(tt.hw, recv); got != tt.want {
				t.Errorf("NormalizeHardwareTimestamp() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestNewIngressMetadata(t *testing.T) {
	hw := uint64(1_700_000_000_000_000_000)
	md := NewIngressMetadata(SourceFpgaDma, &hw, hw+500)
	if md.NormalizedTimestampNs != hw {
		t.Fatalf("normalized = %d, want hardware %d", md.NormalizedTimestampNs, hw)
	}
	if md.Source.String() != "fpga_dma" {
		t.Errorf("source = %q", md.Source)
	}

	md = FromReceiveClock(SourceStandardTCP, 42)
	if md.HardwareTimestampNs != nil || md.NormalizedTimestampNs != 42 {
		t.Errorf("receive clock metadata = %+v", md)
	}
}

func TestNowNanosMonotonicEnough(t *testing.T) {
	a := NowNanos()
	b := NowNanos()
	if a == 0 || b < a {
		t.Fatalf("NowNanos went backwards or zero: %d then %d", a, b)
	}
	if SinceNanos(b+1_000_000_000_000) != 0 {
		t.Error("SinceNanos should saturate at zero for future timestamps")
	}
}
