// Package sandboxtest provides a stand-in for the firejail binary so the
// sandbox driver and the pipeline can be tested on hosts without firejail.
package sandboxtest

import (
	"os"
	"path/filepath"
	"testing"
)

// script drops firejail flags, applies --rlimit-cpu through ulimit and execs
// the remaining command.
const script = `#!/bin/sh
while [ $# -gt 0 ]; do
	case "$1" in
		--rlimit-cpu=*) ulimit -t "${1#--rlimit-cpu=}" ;;
		--*) ;;
		*) break ;;
	esac
	shift
done
exec "$@"
`

// FakeFirejail writes the stand-in into a temp dir and returns its path.
// The test is skipped when /bin/sh is unavailable.
func FakeFirejail(t testing.TB) string {
	t.Helper()
	if _, err := os.Stat("/bin/sh"); err != nil {
		t.Skip("/bin/sh not available")
	}
	bin := filepath.Join(t.TempDir(), "firejail")
	if err := os.WriteFile(bin, []byte(script), 0755); err != nil {
		t.Fatalf("writing fake firejail: %v", err)
	}
	return bin
}
