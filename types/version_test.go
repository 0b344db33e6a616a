package types //nolint:revive // types is a valid package name

import (
	"strconv"
	"strings"
	"testing"
)

func TestVersion_IsReleaseTriple(t *testing.T) {
	core, _, _ := strings.Cut(Version, "-")
	parts := strings.Split(core, ".")
	if len(parts) != 3 {
		t.Fatalf("Version %q has %d dot-separated parts, want major.minor.patch", Version, len(parts))
	}
	for i, p := range parts {
		if _, err := strconv.ParseUint(p, 10, 32); err != nil {
			t.Errorf("Version %q part %d (%q) is not numeric", Version, i, p)
		}
	}
}

func TestContractVersion_Lockstep(t *testing.T) {
	if ContractVersion != Version {
		t.Errorf("events would be stamped %q by release %q", ContractVersion, Version)
	}
}
