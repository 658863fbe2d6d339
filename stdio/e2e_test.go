package stdio_test

import (
	"context"
	"encoding/json"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/pithecene-io/sluice/bridge"
	"github.com/pithecene-io/sluice/host"
	"github.com/pithecene-io/sluice/stdio"
)

// newStack wires the full path: bridge -> stdio client -> pipes ->
// stdio server -> host, with completion frames flowing back through the
// client into the bridge's response router.
func newStack(t *testing.T, cfg bridge.Config) (*bridge.Bridge, *host.Dispatcher) {
	t.Helper()

	clientToServer, serverIn := io.Pipe()
	serverToClient, clientIn := io.Pipe()

	server := stdio.NewServer(clientIn, nil)
	reassembler := host.NewReassembler(0, 0, nil)
	t.Cleanup(reassembler.Stop)
	dispatcher := host.NewDispatcher(nil)
	h := host.NewHost(host.HostConfig{
		Reassembler: reassembler,
		Dispatcher:  dispatcher,
		Completer:   server,
	})

	serveDone := make(chan struct{})
	go func() {
		defer close(serveDone)
		_ = server.Serve(context.Background(), clientToServer, h.HandleMessage)
		_ = clientIn.Close()
	}()

	var b *bridge.Bridge
	client := stdio.NewClient(serverIn, serverToClient, func(sessionID, response string) {
		b.HandleChunkedResponse(sessionID, response)
	}, nil)

	b, err := bridge.New(client, cfg)
	if err != nil {
		t.Fatalf("bridge.New failed: %v", err)
	}
	t.Cleanup(func() {
		_ = b.Close()
		_ = serverIn.Close()
		<-serveDone
		<-client.Done()
	})

	return b, dispatcher
}

func defaultStackConfig() bridge.Config {
	return bridge.Config{
		MaxChunkSize:   150,
		SessionTimeout: 2 * time.Second,
		ReaperInterval: 10 * time.Millisecond,
		ChunkDelay:     time.Millisecond,
	}
}

func TestStack_SingleCall(t *testing.T) {
	b, dispatcher := newStack(t, defaultStackConfig())
	dispatcher.Register("greet", func(_ context.Context, data json.RawMessage) (any, error) {
		var args struct {
			Name string `json:"name"`
		}
		if err := json.Unmarshal(data, &args); err != nil {
			return nil, err
		}
		return "hello " + args.Name, nil
	})

	result, err := b.CallResult(context.Background(), "greet", json.RawMessage(`{"name":"pipe"}`))
	if err != nil {
		t.Fatalf("CallResult failed: %v", err)
	}
	if !result.Success || string(result.Result) != `"hello pipe"` {
		t.Errorf("result = %+v", result)
	}
}

func TestStack_ChunkedCall(t *testing.T) {
	b, dispatcher := newStack(t, defaultStackConfig())
	dispatcher.Register("length", func(_ context.Context, data json.RawMessage) (any, error) {
		var args struct {
			Blob string `json:"blob"`
		}
		if err := json.Unmarshal(data, &args); err != nil {
			return nil, err
		}
		return len(args.Blob), nil
	})

	data, _ := json.Marshal(map[string]string{"blob": strings.Repeat("b", 3000)})
	result, err := b.CallResult(context.Background(), "length", data)
	if err != nil {
		t.Fatalf("CallResult failed: %v", err)
	}
	if !result.Success || string(result.Result) != "3000" {
		t.Errorf("result = %+v", result)
	}
	if b.InFlight() != 0 {
		t.Errorf("InFlight = %d after completion", b.InFlight())
	}
}

func TestStack_SequentialCallsReuseStream(t *testing.T) {
	b, dispatcher := newStack(t, defaultStackConfig())
	dispatcher.Register("echo", func(_ context.Context, data json.RawMessage) (any, error) {
		return data, nil
	})

	small := json.RawMessage(`{"n":1}`)
	big, _ := json.Marshal(map[string]string{"pad": strings.Repeat("p", 1000)})

	for i, payload := range []json.RawMessage{small, big, small} {
		result, err := b.CallResult(context.Background(), "echo", payload)
		if err != nil {
			t.Fatalf("call %d failed: %v", i, err)
		}
		if string(result.Result) != string(payload) {
			t.Errorf("call %d: result = %s", i, result.Result)
		}
	}
}
