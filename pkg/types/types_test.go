package types

import (
	"errors"
	"os"
	"syscall"
	"testing"
)

func TestNodeKind_String(t *testing.T) {
	tests := []struct {
		kind     NodeKind
		expected string
	}{
		{KindFile, "file"},
		{KindDirectory, "directory"},
		{KindSymlink, "symlink"},
		{NodeKind(42), "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			if got := tt.kind.String(); got != tt.expected {
				t.Errorf("NodeKind(%d).String() = %q, want %q", tt.kind, got, tt.expected)
			}
		})
	}
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		name     string
		mode     os.FileMode
		expected NodeKind
	}{
		{"regular", 0o644, KindFile},
		{"directory", os.ModeDir | 0o755, KindDirectory},
		{"symlink", os.ModeSymlink | 0o777, KindSymlink},
		{"fifo", os.ModeNamedPipe | 0o600, KindFile},
		{"socket", os.ModeSocket | 0o600, KindFile},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := KindOf(tt.mode); got != tt.expected {
				t.Errorf("KindOf(%v) = %v, want %v", tt.mode, got, tt.expected)
			}
		})
	}
}

func TestNodeKind_Defaults(t *testing.T) {
	if KindDirectory.ModeType() != syscall.S_IFDIR || KindDirectory.DefaultPerm() != 0o755 {
		t.Error("directory defaults are wrong")
	}
	if KindFile.ModeType() != syscall.S_IFREG || KindFile.DefaultPerm() != 0o644 {
		t.Error("file defaults are wrong")
	}
	if KindSymlink.ModeType() != syscall.S_IFLNK || KindSymlink.DefaultPerm() != 0o777 {
		t.Error("symlink defaults are wrong")
	}
}

func TestPermissions_RoundTrip(t *testing.T) {
	for _, mode := range []uint32{0, 0o644, 0o755, 0o777, 0o600, 0o421} {
		p := PermissionsFromMode(mode)
		if got := p.Bits(); got != mode {
			t.Errorf("PermissionsFromMode(%o).Bits() = %o", mode, got)
		}
	}

	p := PermissionsFromMode(0o640)
	if !p.UserRead || !p.UserWrite || p.UserExec || !p.GroupRead || p.GroupWrite || p.OtherRead {
		t.Errorf("unexpected unpacking of 0640: %+v", p)
	}
}

func TestOpError(t *testing.T) {
	err := &OpError{Op: "mount", Path: "/mnt/x", Err: ErrNotDir}
	if err.Error() != "mount /mnt/x: not a directory" {
		t.Errorf("unexpected message %q", err.Error())
	}
	if !errors.Is(err, ErrNotDir) {
		t.Error("OpError should unwrap to its cause")
	}

	noPath := &OpError{Op: "lock", Err: ErrExists}
	if noPath.Error() != "lock: file exists" {
		t.Errorf("unexpected message %q", noPath.Error())
	}
}
