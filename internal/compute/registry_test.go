package compute

import (
	"errors"
	"testing"

	"github.com/san-kum/satvoronoi/internal/dynamo"
)

type brokenPlatform struct{ err error }

func (p brokenPlatform) Name() string                         { return "broken" }
func (p brokenPlatform) Devices(TypeFilter) ([]Device, error) { return nil, p.err }

func mixedRegistry() *Registry {
	return NewRegistry(
		NewHostPlatform(
			HostDeviceConfig{Name: "cpu0", Type: TypeCPU},
			HostDeviceConfig{Name: "gpu0", Type: TypeGPU},
		),
		brokenPlatform{err: dynamo.ErrDeviceNotFound},
		NewHostPlatform(HostDeviceConfig{Name: "acc0", Type: TypeAccelerator}),
	)
}

func names(devices []Device) []string {
	out := make([]string, len(devices))
	for i, d := range devices {
		out[i] = d.Name()
	}
	return out
}

func TestEnumerateFilters(t *testing.T) {
	tests := []struct {
		filter TypeFilter
		want   []string
	}{
		{FilterAll, []string{"cpu0", "gpu0", "acc0"}},
		{FilterCPU, []string{"cpu0"}},
		{FilterGPU, []string{"gpu0", "acc0"}},
	}

	for _, tt := range tests {
		t.Run(tt.filter.String(), func(t *testing.T) {
			devices, err := mixedRegistry().Enumerate(tt.filter)
			if err != nil {
				t.Fatal(err)
			}
			got := names(devices)
			if len(got) != len(tt.want) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("got %v, want %v", got, tt.want)
				}
			}
		})
	}
}

func TestEnumerateNoDevices(t *testing.T) {
	reg := NewRegistry(NewHostPlatform(HostDeviceConfig{Type: TypeCPU}))
	if _, err := reg.Enumerate(FilterGPU); !errors.Is(err, dynamo.ErrNoDevices) {
		t.Errorf("err = %v, want ErrNoDevices", err)
	}
}

func TestEnumeratePlatformFailureIsFatal(t *testing.T) {
	cause := errors.New("driver exploded")
	reg := NewRegistry(NewHostPlatform(), brokenPlatform{err: cause})

	_, err := reg.Enumerate(FilterAll)
	var devErr *dynamo.DeviceError
	if !errors.As(err, &devErr) {
		t.Fatalf("err = %v, want *DeviceError", err)
	}
	if devErr.Op != "enumerate" || !errors.Is(err, cause) {
		t.Errorf("unexpected error %v", err)
	}
}

func TestParseFilter(t *testing.T) {
	for in, want := range map[string]TypeFilter{"": FilterAll, "ALL": FilterAll, "cpu": FilterCPU, " gpu ": FilterGPU} {
		got, err := ParseFilter(in)
		if err != nil || got != want {
			t.Errorf("ParseFilter(%q) = %v, %v", in, got, err)
		}
	}
	if _, err := ParseFilter("fpga"); err == nil {
		t.Error("expected error for unknown filter")
	}
}

func TestDescribe(t *testing.T) {
	devices, err := mixedRegistry().Enumerate(FilterAll)
	if err != nil {
		t.Fatal(err)
	}
	infos := Describe(devices)
	if len(infos) != 3 || infos[1].Name != "gpu0" || infos[1].Type != TypeGPU || infos[2].Index != 2 {
		t.Errorf("unexpected descriptions %+v", infos)
	}
}

func TestDefaultRegistryHostOnly(t *testing.T) {
	reg, err := DefaultRegistry(RegistryOptions{})
	if err != nil {
		t.Fatal(err)
	}
	devices, err := reg.Enumerate(FilterAll)
	if err != nil || len(devices) != 1 {
		t.Fatalf("devices = %v, err = %v", names(devices), err)
	}
}
