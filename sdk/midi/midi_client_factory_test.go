package midi

import (
	"errors"
	"testing"

	"github.com/leandrodaf/midisport/internal/logger"
	"github.com/leandrodaf/midisport/sdk/contracts"
)

func TestNewClientForUnsupportedOS(t *testing.T) {
	opts := &contracts.ClientOptions{Logger: logger.NewNopLogger()}
	for _, goos := range []string{"plan9", "js", ""} {
		if _, err := newClientFor(goos, opts); !errors.Is(err, ErrUnsupportedOS) {
			t.Errorf("newClientFor(%q) = %v, want ErrUnsupportedOS", goos, err)
		}
	}
}

func TestHostBackends(t *testing.T) {
	for _, goos := range []string{"darwin", "windows"} {
		if hostBackends[goos] == nil {
			t.Errorf("no backend for %s", goos)
		}
	}
}
