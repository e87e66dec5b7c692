package xerrors

import (
	"errors"
	"testing"
)

func TestWrap(t *testing.T) {
	// nil 错误应返回 nil
	if err := Wrap(nil, "context"); err != nil {
		t.Errorf("Wrap(nil) = %v，期望 nil", err)
	}

	base := errors.New("base error")
	wrapped := Wrap(base, "context")
	if wrapped.Error() != "context: base error" {
		t.Errorf("Wrap(err).Error() = %q，期望 %q", wrapped.Error(), "context: base error")
	}
	if !errors.Is(wrapped, base) {
		t.Error("errors.Is(wrapped, base) = false，期望 true")
	}
}

func TestWrapf(t *testing.T) {
	if err := Wrapf(nil, "instrument %s", "x"); err != nil {
		t.Errorf("Wrapf(nil) = %v，期望 nil", err)
	}

	base := errors.New("conflict")
	wrapped := Wrapf(base, "instrument %s", "app_requests_total")
	if wrapped.Error() != "instrument app_requests_total: conflict" {
		t.Errorf("Wrapf(err).Error() = %q", wrapped.Error())
	}
}

func TestConfigurationTaxonomy(t *testing.T) {
	for _, err := range []error{ErrLabelResolution, ErrSchemaConflict, ErrInvalidBuckets} {
		if !IsConfiguration(err) {
			t.Errorf("IsConfiguration(%v) = false，期望 true", err)
		}
		if !IsConfiguration(Wrap(err, "outer")) {
			t.Errorf("IsConfiguration(Wrap(%v)) = false，期望 true", err)
		}
	}
	if IsConfiguration(ErrClosed) {
		t.Error("ErrClosed 不应属于配置故障")
	}
}

func TestCombine(t *testing.T) {
	if err := Combine(nil, nil); err != nil {
		t.Errorf("Combine(nil, nil) = %v，期望 nil", err)
	}

	a := errors.New("a")
	if err := Combine(nil, a); err != a {
		t.Errorf("Combine(nil, a) = %v，期望 a", err)
	}

	b := errors.New("b")
	err := Combine(a, b)
	if err.Error() != "a (and 1 more errors)" {
		t.Errorf("Combine(a, b).Error() = %q", err.Error())
	}
	if !errors.Is(err, b) {
		t.Error("errors.Is(Combine(a, b), b) = false，期望 true")
	}
}

func TestMust(t *testing.T) {
	if v := Must(42, nil); v != 42 {
		t.Errorf("Must(42, nil) = %d", v)
	}

	defer func() {
		if recover() == nil {
			t.Error("Must 在错误时应 panic")
		}
	}()
	Must(0, errors.New("boom"))
}
