package tracing

import "testing"

func TestSetup_DisabledWithoutKeys(t *testing.T) {
	t.Setenv("LANGFUSE_PUBLIC_KEY", "")
	t.Setenv("LANGFUSE_SECRET_KEY", "")

	handler, flush, ok := Setup()
	if ok || handler != nil || flush != nil {
		t.Fatalf("expected tracing disabled, got ok=%v handler=%v", ok, handler)
	}
}

func TestSetup_RequiresBothKeys(t *testing.T) {
	t.Setenv("LANGFUSE_PUBLIC_KEY", "pk-lf-test")
	t.Setenv("LANGFUSE_SECRET_KEY", "")

	if _, _, ok := Setup(); ok {
		t.Fatal("expected tracing disabled with only a public key")
	}
}

func TestInstall_NoopWhenDisabled(t *testing.T) {
	t.Setenv("LANGFUSE_PUBLIC_KEY", "")
	t.Setenv("LANGFUSE_SECRET_KEY", "")

	flush, enabled := Install()
	if enabled {
		t.Fatal("expected tracing disabled")
	}
	flush() // must not panic
}
