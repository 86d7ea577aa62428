package nn

import (
	"errors"
	"math"
	"testing"
)

func TestRegisterAndGetActivation(t *testing.T) {
	resetActivationRegistryForTests()
	t.Cleanup(resetActivationRegistryForTests)

	if err := RegisterActivation("scaled", func(x, k float64) float64 { return k * x * x }); err != nil {
		t.Fatalf("register activation: %v", err)
	}
	fn, err := GetActivation("scaled")
	if err != nil {
		t.Fatalf("get activation: %v", err)
	}
	if got := fn(3, 2); got != 18 {
		t.Fatalf("unexpected activation result: got=%f want=18", got)
	}
}

func TestRegisterActivationValidation(t *testing.T) {
	resetActivationRegistryForTests()
	t.Cleanup(resetActivationRegistryForTests)

	if err := RegisterActivation("", func(x, _ float64) float64 { return x }); err == nil {
		t.Fatal("expected empty name error")
	}
	if err := RegisterActivation("nil", nil); err == nil {
		t.Fatal("expected nil function error")
	}
	if err := RegisterActivationWithSpec(ActivationSpec{
		Name:          "bad-version",
		Func:          func(x, _ float64) float64 { return x },
		SchemaVersion: 99,
		CodecVersion:  1,
	}); !errors.Is(err, ErrActivationVersion) {
		t.Fatalf("expected ErrActivationVersion, got: %v", err)
	}
}

func TestRegisterActivationDuplicate(t *testing.T) {
	resetActivationRegistryForTests()
	t.Cleanup(resetActivationRegistryForTests)

	if err := RegisterActivation(ActivationReLU, func(x, _ float64) float64 { return x }); !errors.Is(err, ErrActivationExists) {
		t.Fatalf("expected ErrActivationExists, got: %v", err)
	}
}

func TestGetActivationNotFound(t *testing.T) {
	resetActivationRegistryForTests()
	t.Cleanup(resetActivationRegistryForTests)

	_, err := GetActivation("missing")
	if !errors.Is(err, ErrActivationNotFound) {
		t.Fatalf("expected ErrActivationNotFound, got: %v", err)
	}
}

func TestListActivationsSorted(t *testing.T) {
	resetActivationRegistryForTests()
	t.Cleanup(resetActivationRegistryForTests)

	names := ListActivations()
	want := []string{"leaky_relu", "linear", "relu", "sigmoid", "tanh"}
	if len(names) != len(want) {
		t.Fatalf("unexpected activation list: %+v", names)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("unexpected activation list: %+v", names)
		}
	}
}

func TestBuiltinActivations(t *testing.T) {
	cases := []struct {
		name  string
		x     float64
		param float64
		want  float64
	}{
		{name: ActivationLinear, x: -2, want: -2},
		{name: ActivationReLU, x: -2, want: 0},
		{name: ActivationReLU, x: 2, want: 2},
		{name: ActivationLeakyReLU, x: -2, param: 0.1, want: -0.2},
		{name: ActivationLeakyReLU, x: -2, want: -2 * DefaultLeakySlope},
		{name: ActivationLeakyReLU, x: 3, param: 0.1, want: 3},
		{name: ActivationSigmoid, x: 0, want: 0.5},
		{name: ActivationTanh, x: 1, want: math.Tanh(1)},
	}
	for _, tc := range cases {
		fn, err := GetActivation(tc.name)
		if err != nil {
			t.Fatalf("get builtin activation %s: %v", tc.name, err)
		}
		if got := fn(tc.x, tc.param); math.Abs(got-tc.want) > 1e-12 {
			t.Fatalf("%s(%f; %f): got=%f want=%f", tc.name, tc.x, tc.param, got, tc.want)
		}
	}
}
