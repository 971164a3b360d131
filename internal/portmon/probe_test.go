package portmon

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

const sampleSocketTable = `State      Recv-Q Send-Q Local Address:Port  Peer Address:Port Process
LISTEN     0      128    127.0.0.1:20001     0.0.0.0:*         users:(("sshd",pid=812,fd=9))
LISTEN     0      128    0.0.0.0:22          0.0.0.0:*         users:(("sshd",pid=600,fd=3))
LISTEN     0      128    [::]:20002          [::]:*            users:(("sshd",pid=813,fd=10))
LISTEN     0      4096   *:20003             *:*               users:(("sshd",pid=814,fd=11))
ESTAB      0      0      127.0.0.1:20001     127.0.0.1:53212
garbage line that matches nothing
LISTEN     0      128    127.0.0.1:20001     0.0.0.0:*         duplicate entry
`

func TestParseSocketTable(t *testing.T) {
	t.Parallel()

	got := ParseSocketTable(sampleSocketTable)
	want := []int{20001, 22, 20002, 20003}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("ParseSocketTable mismatch (-want +got):\n%s", diff)
	}
}

func TestParseSocketTableEmpty(t *testing.T) {
	t.Parallel()

	if got := ParseSocketTable(""); len(got) != 0 {
		t.Fatalf("ParseSocketTable(\"\") = %v", got)
	}
	if got := ParseSocketTable("State Recv-Q Send-Q\n"); len(got) != 0 {
		t.Fatalf("header-only table = %v", got)
	}
}
