package drivers

import (
	"context"
	"testing"
)

func assertBools(t testing.TB, got, want bool) {
	t.Helper()

	if got != want {
		t.Errorf("got %v want %v", got, want)
	}
}

func assertUint16Slices(t testing.TB, got, want []uint16) {
	t.Helper()

	if len(got) != len(want) {
		t.Errorf("len(got) = %d len(want) = %d", len(got), len(want))
		return
	}

	for key, val := range got {
		if want[key] != val {
			t.Errorf("for key [%d] got: %d want: %d", key, val, want[key])
		}
	}
}

type countingListener struct {
	pins []uint16
}

func (cl *countingListener) PinChanged(pin uint16) {
	cl.pins = append(cl.pins, pin)
}

func readyMock(t testing.TB, inputs []uint16, outputs []uint16) *MockIoDriver {
	t.Helper()

	md := &MockIoDriver{}
	if err := md.Setup(context.Background()); err != nil {
		t.Fatalf("mock Setup returned err: %v", err)
	}
	for _, in := range inputs {
		if _, err := md.AddInput(in, PullUp); err != nil {
			t.Fatalf("AddInput(%d) returned err: %v", in, err)
		}
	}
	for _, out := range outputs {
		if _, err := md.AddOutput(out); err != nil {
			t.Fatalf("AddOutput(%d) returned err: %v", out, err)
		}
	}
	return md
}

func TestMockInputGetState(t *testing.T) {
	inEnabled := MockInput{State: true}
	inDisabled := MockInput{State: false}

	state, _ := inEnabled.GetState()
	if state != true {
		t.Error("MockInput GetState failed")
	}

	state, _ = inDisabled.GetState()
	if state != false {
		t.Error("MockInput GetState failed")
	}
}

func TestMockOutputSetState(t *testing.T) {
	out := MockOutput{}

	want := true
	out.Set(want)
	got, _ := out.GetState()
	assertBools(t, got, want)

	want = false
	out.Set(want)
	got, _ = out.GetState()
	assertBools(t, got, want)

	if len(out.History()) != 2 {
		t.Errorf("got %d history entries want 2", len(out.History()))
	}
}

func TestMockIoSetup(t *testing.T) {
	md := MockIoDriver{}

	assertBools(t, md.IsReady(), false)

	_, err := md.AddInput(1, PullUp)
	if err == nil {
		t.Error("AddInput on a driver that is not set up returned nil error")
	}

	md.Setup(context.Background())
	assertBools(t, md.IsReady(), true)
}

func TestMockIoGetAllIo(t *testing.T) {
	md := readyMock(t, []uint16{1, 3, 5}, []uint16{2, 4})
	inputs, outputs := md.GetAllIo()
	assertUint16Slices(t, inputs, []uint16{1, 3, 5})
	assertUint16Slices(t, outputs, []uint16{2, 4})
}

func TestMockGetOutput(t *testing.T) {
	md := readyMock(t, nil, []uint16{3})
	output, err := md.GetOutput(3)
	if err != nil {
		t.Errorf("GetOutput returned err: %v", err)
	}

	want := true
	output.Set(want)
	got, _ := output.GetState()
	assertBools(t, got, want)

	anotherOut, _ := md.GetOutput(3)
	got, _ = anotherOut.GetState()
	assertBools(t, got, want)

	_, err = md.GetOutput(4)
	if err == nil {
		t.Error("GetOutput for unknown pin returned nil error")
	}
}

func TestMockInputWatch(t *testing.T) {
	md := readyMock(t, []uint16{7}, nil)
	in, _ := md.MockInput(7)

	t.Run("pull up idles high", func(t *testing.T) {
		state, _ := in.GetState()
		assertBools(t, state, true)
	})

	t.Run("falling only", func(t *testing.T) {
		listener := &countingListener{}
		in.Watch(EdgeFalling, listener)

		in.SetLevel(false)
		in.SetLevel(true)
		in.SetLevel(true)

		assertUint16Slices(t, listener.pins, []uint16{7})
	})

	t.Run("both edges", func(t *testing.T) {
		listener := &countingListener{}
		in.Watch(EdgeBoth, listener)

		in.SetLevel(false)
		in.SetLevel(true)
		in.Bounce()

		assertUint16Slices(t, listener.pins, []uint16{7, 7, 7})
	})
}
