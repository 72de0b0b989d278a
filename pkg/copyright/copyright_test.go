package copyright

import (
	"bytes"
	"strings"
	"testing"
)

func TestPrintAccounts(t *testing.T) {
	var buf bytes.Buffer
	PrintAccounts(&buf, []AccountRow{
		{LocalID: 100, Name: "admin", Type: "ADMIN", Serial: 2022010100000001, Active: true, Verified: true},
		{LocalID: 101, Name: "guest", Type: "GUEST", Serial: 2022010100000002},
	})
	out := buf.String()
	for _, want := range []string{"ID", "Verified", "admin", "2022010100000002", "yes", "no"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}
