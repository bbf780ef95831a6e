package channel

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"hostbridge/codec"
	"hostbridge/messenger"
	"hostbridge/value"
)

func newTestPair(t *testing.T, name string) (*MethodChannel, *MethodChannel) {
	t.Helper()
	ui, host := messenger.NewLoopback()
	t.Cleanup(ui.Close)
	t.Cleanup(host.Close)
	return NewMethodChannel(ui, name), NewMethodChannel(host, name)
}

func TestInvokeSuccess(t *testing.T) {
	caller, callee := newTestPair(t, "bridge/battery")

	callee.SetMethodCallHandler(func(ctx context.Context, call codec.MethodCall) (value.Value, error) {
		if call.Method != "getBatteryLevel" {
			t.Errorf("method = %s, want getBatteryLevel", call.Method)
		}
		return value.Int32(87), nil
	})

	result, err := caller.Invoke(context.Background(), "getBatteryLevel", value.Null{})
	if err != nil {
		t.Fatalf("Invoke failed: %v", err)
	}
	if !value.Equal(result, value.Int32(87)) {
		t.Errorf("result = %#v, want Int32(87)", result)
	}
}

func TestInvokeArgumentsArriveIntact(t *testing.T) {
	caller, callee := newTestPair(t, "bridge/camera")

	args := value.NewMap(
		value.Pair{Key: value.String("width"), Val: value.Int32(1920)},
		value.Pair{Key: value.String("fps"), Val: value.Float64(29.97)},
	)
	callee.SetMethodCallHandler(func(ctx context.Context, call codec.MethodCall) (value.Value, error) {
		return call.Arguments, nil
	})

	result, err := caller.Invoke(context.Background(), "configure", args)
	if err != nil {
		t.Fatalf("Invoke failed: %v", err)
	}
	if !value.Equal(result, args) {
		t.Errorf("echoed arguments mismatch: %#v", result)
	}
}

func TestInvokePlatformError(t *testing.T) {
	caller, callee := newTestPair(t, "bridge/battery")

	callee.SetMethodCallHandler(func(ctx context.Context, call codec.MethodCall) (value.Value, error) {
		return nil, &PlatformError{
			Code:    "UNAVAILABLE",
			Message: "battery info unavailable",
			Details: value.Int32(-1),
		}
	})

	_, err := caller.Invoke(context.Background(), "getBatteryLevel", value.Null{})
	var pe *PlatformError
	if !errors.As(err, &pe) {
		t.Fatalf("err = %v, want *PlatformError", err)
	}
	if pe.Code != "UNAVAILABLE" || pe.Message != "battery info unavailable" {
		t.Errorf("platform error = %+v", pe)
	}
	if !value.Equal(pe.Details, value.Int32(-1)) {
		t.Errorf("details = %#v, want Int32(-1)", pe.Details)
	}
}

func TestInvokeGenericErrorGetsInternalCode(t *testing.T) {
	caller, callee := newTestPair(t, "ch")

	callee.SetMethodCallHandler(func(ctx context.Context, call codec.MethodCall) (value.Value, error) {
		return nil, errors.New("disk on fire")
	})

	_, err := caller.Invoke(context.Background(), "m", value.Null{})
	var pe *PlatformError
	if !errors.As(err, &pe) {
		t.Fatalf("err = %v, want *PlatformError", err)
	}
	if pe.Code != CodeInternal {
		t.Errorf("code = %s, want %s", pe.Code, CodeInternal)
	}
	if pe.Message != "disk on fire" {
		t.Errorf("message = %q", pe.Message)
	}
}

func TestInvokeUnregisteredChannelIsNotImplemented(t *testing.T) {
	caller, _ := newTestPair(t, "bridge/nobody")

	_, err := caller.Invoke(context.Background(), "anything", value.Null{})
	if !errors.Is(err, ErrNotImplemented) {
		t.Errorf("err = %v, want ErrNotImplemented", err)
	}
}

func TestHandlerReturnsNotImplemented(t *testing.T) {
	caller, callee := newTestPair(t, "ch")

	callee.SetMethodCallHandler(func(ctx context.Context, call codec.MethodCall) (value.Value, error) {
		return nil, ErrNotImplemented
	})

	_, err := caller.Invoke(context.Background(), "m", value.Null{})
	if !errors.Is(err, ErrNotImplemented) {
		t.Errorf("err = %v, want ErrNotImplemented", err)
	}
}

func TestUnregisterHandler(t *testing.T) {
	caller, callee := newTestPair(t, "ch")

	callee.SetMethodCallHandler(func(ctx context.Context, call codec.MethodCall) (value.Value, error) {
		return value.Null{}, nil
	})
	callee.SetMethodCallHandler(nil)

	_, err := caller.Invoke(context.Background(), "m", value.Null{})
	if !errors.Is(err, ErrNotImplemented) {
		t.Errorf("err = %v, want ErrNotImplemented after unregister", err)
	}
}

func TestMalformedRequestGetsDecodeFailureCode(t *testing.T) {
	ui, host := messenger.NewLoopback()
	t.Cleanup(ui.Close)
	t.Cleanup(host.Close)

	callee := NewMethodChannel(host, "ch")
	callee.SetMethodCallHandler(func(ctx context.Context, call codec.MethodCall) (value.Value, error) {
		t.Error("handler must not run for a malformed request")
		return nil, nil
	})

	// Bypass the caller-side codec and send garbage straight at the channel.
	got := make(chan []byte, 1)
	ui.Send("ch", []byte{0xFF, 0x01, 0x02}, func(reply []byte) { got <- reply })

	var reply []byte
	select {
	case reply = <-got:
	case <-time.After(2 * time.Second):
		t.Fatal("no reply to malformed request")
	}

	_, err := codec.StandardMethodCodec{}.DecodeEnvelope(reply)
	var pe *PlatformError
	if !errors.As(err, &pe) {
		t.Fatalf("reply decodes to %v, want *PlatformError", err)
	}
	if pe.Code != CodeDecodeFailure {
		t.Errorf("code = %s, want %s", pe.Code, CodeDecodeFailure)
	}

	// The dispatch loop must survive: a well-formed call still works.
	caller := NewMethodChannel(ui, "ch")
	callee.SetMethodCallHandler(func(ctx context.Context, call codec.MethodCall) (value.Value, error) {
		return value.String("alive"), nil
	})
	result, err := caller.Invoke(context.Background(), "probe", value.Null{})
	if err != nil {
		t.Fatalf("dispatch did not survive malformed input: %v", err)
	}
	if !value.Equal(result, value.String("alive")) {
		t.Errorf("result = %#v", result)
	}
}

func TestHandlerPanicBecomesErrorReply(t *testing.T) {
	caller, callee := newTestPair(t, "ch")

	callee.SetMethodCallHandler(func(ctx context.Context, call codec.MethodCall) (value.Value, error) {
		panic("handler exploded")
	})

	_, err := caller.Invoke(context.Background(), "m", value.Null{})
	var pe *PlatformError
	if !errors.As(err, &pe) {
		t.Fatalf("err = %v, want *PlatformError from recovered panic", err)
	}
	if pe.Code != CodeInternal {
		t.Errorf("code = %s, want %s", pe.Code, CodeInternal)
	}

	// Later calls still dispatch.
	callee.SetMethodCallHandler(func(ctx context.Context, call codec.MethodCall) (value.Value, error) {
		return value.Bool(true), nil
	})
	if _, err := caller.Invoke(context.Background(), "m", value.Null{}); err != nil {
		t.Errorf("dispatch did not survive panic: %v", err)
	}
}

func TestConcurrentCallsCorrelate(t *testing.T) {
	caller, callee := newTestPair(t, "ch")

	// Completion order is roughly the reverse of send order; every caller
	// must still get its own result.
	callee.SetMethodCallHandler(func(ctx context.Context, call codec.MethodCall) (value.Value, error) {
		n := call.Arguments.(value.Int32)
		time.Sleep(time.Duration(40-n) * time.Millisecond)
		return n * 2, nil
	})

	const calls = 32
	var wg sync.WaitGroup
	for i := 0; i < calls; i++ {
		wg.Add(1)
		go func(n int32) {
			defer wg.Done()
			result, err := caller.Invoke(context.Background(), "double", value.Int32(n))
			if err != nil {
				t.Errorf("call %d failed: %v", n, err)
				return
			}
			if !value.Equal(result, value.Int32(n*2)) {
				t.Errorf("call %d got %#v, want Int32(%d)", n, result, n*2)
			}
		}(int32(i))
	}
	wg.Wait()
}

func TestInvokeMethodAsync(t *testing.T) {
	caller, callee := newTestPair(t, "ch")

	callee.SetMethodCallHandler(func(ctx context.Context, call codec.MethodCall) (value.Value, error) {
		return value.String("done"), nil
	})

	call := caller.InvokeMethod("work", value.Null{})
	select {
	case <-call.Done:
	case <-time.After(2 * time.Second):
		t.Fatal("call never completed")
	}
	if call.Err != nil {
		t.Fatalf("call.Err = %v", call.Err)
	}
	if !value.Equal(call.Value, value.String("done")) {
		t.Errorf("call.Value = %#v", call.Value)
	}
}

func TestInvokeContextCancelAbandonsSafely(t *testing.T) {
	caller, callee := newTestPair(t, "ch")

	release := make(chan struct{})
	callee.SetMethodCallHandler(func(ctx context.Context, call codec.MethodCall) (value.Value, error) {
		<-release
		return value.Null{}, nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err := caller.Invoke(ctx, "slow", value.Null{})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want deadline exceeded", err)
	}

	// The late completion lands in the buffered Done channel — no goroutine
	// leak, no fault.
	close(release)
	time.Sleep(50 * time.Millisecond)
}

func TestChannelGoneOnTeardown(t *testing.T) {
	ui, host := messenger.NewLoopback()
	t.Cleanup(ui.Close)

	caller := NewMethodChannel(ui, "ch")
	callee := NewMethodChannel(host, "ch")

	started := make(chan struct{})
	callee.SetMethodCallHandler(func(ctx context.Context, call codec.MethodCall) (value.Value, error) {
		close(started)
		select {} // Never completes; teardown must fail the call
	})

	call := caller.InvokeMethod("m", value.Null{})
	<-started
	host.Close()

	select {
	case <-call.Done:
	case <-time.After(2 * time.Second):
		t.Fatal("call not failed by teardown")
	}
	if !errors.Is(call.Err, ErrChannelGone) {
		t.Errorf("call.Err = %v, want ErrChannelGone", call.Err)
	}
}

func TestMethodMux(t *testing.T) {
	caller, callee := newTestPair(t, "bridge/media")

	mux := NewMethodMux()
	mux.Handle("play", func(ctx context.Context, call codec.MethodCall) (value.Value, error) {
		return value.String("playing"), nil
	})
	mux.Handle("stop", func(ctx context.Context, call codec.MethodCall) (value.Value, error) {
		return value.String("stopped"), nil
	})
	callee.SetMethodCallHandler(mux.Dispatch)

	result, err := caller.Invoke(context.Background(), "play", value.Null{})
	if err != nil {
		t.Fatalf("play failed: %v", err)
	}
	if !value.Equal(result, value.String("playing")) {
		t.Errorf("result = %#v", result)
	}

	_, err = caller.Invoke(context.Background(), "eject", value.Null{})
	if !errors.Is(err, ErrNotImplemented) {
		t.Errorf("unknown method: err = %v, want ErrNotImplemented", err)
	}
}

func TestEmptyMethodNameFailsLocally(t *testing.T) {
	caller, _ := newTestPair(t, "ch")
	call := caller.InvokeMethod("", value.Null{})
	<-call.Done
	var ce *codec.CodecError
	if !errors.As(call.Err, &ce) {
		t.Errorf("call.Err = %v, want *CodecError", call.Err)
	}
}
