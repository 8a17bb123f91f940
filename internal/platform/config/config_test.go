package config

import (
	"testing"
	"time"

	"ivodsync/internal/platform/testkit"
)

func TestPrefixComposition(t *testing.T) {
	t.Setenv("PG_TEST_DB", "ivod_test_db")

	pg := New().Prefix("PG_")
	if got := pg.MayString("TEST_DB", ""); got != "ivod_test_db" {
		t.Fatalf("prefixed lookup = %q", got)
	}
}

func TestMustStringPanicsOnMissing(t *testing.T) {
	t.Setenv("NOPE_REALLY_MISSING", "")
	testkit.MustPanic(t, func() { New().MustString("NOPE_REALLY_MISSING") })
}

func TestMayHelpersFallBack(t *testing.T) {
	t.Setenv("SOME_INT", "not-a-number")
	t.Setenv("SOME_BOOL", "not-a-bool")
	t.Setenv("SOME_DUR", "not-a-duration")

	c := New()
	if got := c.MayInt("SOME_INT", 42); got != 42 {
		t.Fatalf("MayInt fallback = %d", got)
	}
	if got := c.MayBool("SOME_BOOL", true); !got {
		t.Fatalf("MayBool fallback = %v", got)
	}
	if got := c.MayDuration("SOME_DUR", time.Minute); got != time.Minute {
		t.Fatalf("MayDuration fallback = %v", got)
	}
	if got := c.MayInt("SOME_UNSET_INT", 7); got != 7 {
		t.Fatalf("MayInt unset = %d", got)
	}
}

func TestMayEnum(t *testing.T) {
	t.Setenv("SOME_ENUM", "MYSQL")
	if got := New().MayEnum("SOME_ENUM", "sqlite", "sqlite", "postgresql", "mysql"); got != "mysql" {
		t.Fatalf("MayEnum case-insensitive match = %q, want canonical spelling", got)
	}

	// unrecognized values pass through so the validator can report them
	t.Setenv("SOME_ENUM", "oracle")
	if got := New().MayEnum("SOME_ENUM", "sqlite", "sqlite", "postgresql", "mysql"); got != "oracle" {
		t.Fatalf("MayEnum passthrough = %q, want oracle", got)
	}
}

func TestMaySeconds(t *testing.T) {
	t.Setenv("SOME_SECS", "0.5")
	c := New()
	if got := c.MaySeconds("SOME_SECS", time.Minute); got != 500*time.Millisecond {
		t.Fatalf("MaySeconds 0.5 = %v", got)
	}

	t.Setenv("SOME_SECS", "30")
	if got := c.MaySeconds("SOME_SECS", time.Minute); got != 30*time.Second {
		t.Fatalf("MaySeconds 30 = %v", got)
	}

	// duration syntax still works
	t.Setenv("SOME_SECS", "750ms")
	if got := c.MaySeconds("SOME_SECS", time.Minute); got != 750*time.Millisecond {
		t.Fatalf("MaySeconds 750ms = %v", got)
	}

	t.Setenv("SOME_SECS", "soon")
	if got := c.MaySeconds("SOME_SECS", time.Minute); got != time.Minute {
		t.Fatalf("MaySeconds fallback = %v", got)
	}

	t.Setenv("SOME_SECS", "")
	if got := c.MaySeconds("SOME_SECS", 2*time.Second); got != 2*time.Second {
		t.Fatalf("MaySeconds unset = %v", got)
	}
}
