package envutil

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home dir")
	}
	t.Setenv("MISSION_ROOT", "/srv/mission")
	cases := map[string]string{
		"~/data":              filepath.Join(home, "data"),
		"$MISSION_ROOT/L0":    "/srv/mission/L0",
		"${MISSION_ROOT}/err": "/srv/mission/err",
		"":                    "",
	}
	for in, want := range cases {
		if got := ExpandPath(in); got != want {
			t.Fatalf("ExpandPath(%q): want=%q got=%q", in, want, got)
		}
	}
}

func TestResolvePath(t *testing.T) {
	if got := ResolvePath("/srv/m", "codes"); got != "/srv/m/codes" {
		t.Fatalf("relative: got=%q", got)
	}
	if got := ResolvePath("/srv/m", "/abs/codes/"); got != "/abs/codes" {
		t.Fatalf("absolute: got=%q", got)
	}
	if got := ResolvePath("/srv/m/", ""); got != "/srv/m" {
		t.Fatalf("empty: got=%q", got)
	}
}

func TestGetEnvFallbacks(t *testing.T) {
	t.Setenv("DBP_TEST_INT", "nope")
	if got := GetEnvAsInt("DBP_TEST_INT", 4, nil); got != 4 {
		t.Fatalf("GetEnvAsInt: want=4 got=%d", got)
	}
	t.Setenv("DBP_TEST_DUR", "250ms")
	if got := GetEnvAsDuration("DBP_TEST_DUR", time.Second, nil); got != 250*time.Millisecond {
		t.Fatalf("GetEnvAsDuration: got=%v", got)
	}
	if got := GetEnv("DBP_TEST_UNSET_VAR", "dflt", nil); got != "dflt" {
		t.Fatalf("GetEnv: got=%q", got)
	}
}
