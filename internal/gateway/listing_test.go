package gateway

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/tunnelgate/tunnelgate/internal/wsproto"
)

const samplePosixListing = `total 28
drwxr-xr-x  4 deploy deploy 4096 Aug 30 10:12 .
drwxr-xr-x 12 root   root   4096 Aug 01 09:00 ..
-rw-r--r--  1 deploy deploy  220 Aug 30 10:12 .bashrc
drwxr-xr-x  2 deploy deploy 4096 Aug 30 10:15 logs
-rw-r--r--  1 deploy deploy 9217 Aug 30 11:02 app config.yaml
lrwxrwxrwx  1 deploy deploy   11 Aug 30 10:12 current -> releases/v2
this line is garbage
`

func TestParsePosixListing(t *testing.T) {
	t.Parallel()

	got := parsePosixListing(samplePosixListing)
	want := []wsproto.FileEntry{
		{Name: ".bashrc", Kind: "file", Size: 220},
		{Name: "logs", Kind: "directory", Size: 4096},
		{Name: "app config.yaml", Kind: "file", Size: 9217},
		{Name: "current -> releases/v2", Kind: "file", Size: 11},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("listing mismatch (-want +got):\n%s", diff)
	}
}

func TestParsePosixListingEmpty(t *testing.T) {
	t.Parallel()

	if got := parsePosixListing("total 0\n"); len(got) != 0 {
		t.Fatalf("empty dir = %v", got)
	}
	if got := parsePosixListing(""); len(got) != 0 {
		t.Fatalf("no output = %v", got)
	}
}

const samplePowershellListing = `"Name","Length","PSIsContainer"
"logs",,"True"
"report.pdf","48211","False"
"notes.txt","12","False"
`

func TestParsePowershellListing(t *testing.T) {
	t.Parallel()

	got, err := parsePowershellListing(samplePowershellListing)
	if err != nil {
		t.Fatalf("parsePowershellListing: %v", err)
	}
	want := []wsproto.FileEntry{
		{Name: "logs", Kind: "directory"},
		{Name: "report.pdf", Kind: "file", Size: 48211},
		{Name: "notes.txt", Kind: "file", Size: 12},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("listing mismatch (-want +got):\n%s", diff)
	}
}

func TestShellQuote(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"/var/log":        "'/var/log'",
		"/tmp/a b":        "'/tmp/a b'",
		"/tmp/it's":       `'/tmp/it'\''s'`,
		"$(rm -rf /)":     "'$(rm -rf /)'",
		"`touch /tmp/x`":  "'`touch /tmp/x`'",
	}
	for in, want := range cases {
		if got := shellQuote(in); got != want {
			t.Errorf("shellQuote(%q) = %q, want %q", in, got, want)
		}
	}
}
