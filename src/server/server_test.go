package server_test

import (
	"bufio"
	"context"
	"net"
	"strings"
	"testing"
	"time"

	"exchange-core/src/engine"
	"exchange-core/src/ledger"
	"exchange-core/src/registry"
	"exchange-core/src/server"
	"exchange-core/src/store"
	"exchange-core/src/wire"
)

func startTestServer(t *testing.T) (*server.Server, string) {
	t.Helper()

	ex := engine.NewExchange(ledger.NewLedger(), registry.NewRegistry(), store.NewMemory(), engine.NewSystemClock())
	srv := server.New("127.0.0.1:0", wire.NewDispatcher(ex))

	if err := srv.Listen(); err != nil {
		t.Fatalf("Expected listener to bind, got: %v", err)
	}

	go func() {
		_ = srv.Serve(context.Background())
	}()

	t.Cleanup(srv.Shutdown)
	return srv, srv.Addr().String()
}

// readResults reads one raw reply document off the connection. Replies are
// not length-prefixed, so read until the closing tag.
func readResults(t *testing.T, r *bufio.Reader) string {
	t.Helper()

	var sb strings.Builder
	buf := make([]byte, 1)
	for !strings.HasSuffix(sb.String(), "</results>") {
		n, err := r.Read(buf)
		if err != nil {
			t.Fatalf("Failed reading reply after %q: %v", sb.String(), err)
		}
		sb.Write(buf[:n])
	}
	return sb.String()
}

func TestEndToEndCreateAndTrade(t *testing.T) {
	_, addr := startTestServer(t)

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("Expected to connect, got: %v", err)
	}
	defer conn.Close()

	reader := bufio.NewReader(conn)

	send := func(request string) string {
		t.Helper()
		if err := wire.WriteFrame(conn, []byte(request)); err != nil {
			t.Fatalf("Expected frame write to succeed, got: %v", err)
		}
		return readResults(t, reader)
	}

	response := send(`<?xml version="1.0" encoding="UTF-8"?>
<create>
  <account id="123456" balance="1000"/>
  <symbol sym="SPY">
    <account id="123456">100000</account>
  </symbol>
</create>`)
	expected := `<results><created id="123456"/><created sym="SPY" id="123456"/></results>`
	if response != expected {
		t.Errorf("Expected %s, got: %s", expected, response)
	}

	response = send(`<transactions id="123456">
  <order sym="SPY" amount="-100" limit="145.67"/>
</transactions>`)
	expected = `<results><opened sym="SPY" amount="-100" limit="145.67" id="1"/></results>`
	if response != expected {
		t.Errorf("Expected %s, got: %s", expected, response)
	}

	// Multiple requests on one connection.
	response = send(`<transactions id="123456"><query id="1"/></transactions>`)
	expected = `<results><status id="1"><open shares="100"/></status></results>`
	if response != expected {
		t.Errorf("Expected %s, got: %s", expected, response)
	}
}

func TestConcurrentConnections(t *testing.T) {
	_, addr := startTestServer(t)

	// Seed accounts over one connection first.
	seed, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("Expected to connect, got: %v", err)
	}
	seedReader := bufio.NewReader(seed)
	if err := wire.WriteFrame(seed, []byte(`<create>
  <account id="B" balance="1000000"/>
  <account id="S" balance="0"/>
  <symbol sym="X">
    <account id="S">100000</account>
  </symbol>
</create>`)); err != nil {
		t.Fatalf("Expected seed frame to write, got: %v", err)
	}
	readResults(t, seedReader)
	seed.Close()

	numClients := 8
	requestsPerClient := 10

	done := make(chan error, numClients)
	for i := 0; i < numClients; i++ {
		go func(i int) {
			conn, err := net.Dial("tcp", addr)
			if err != nil {
				done <- err
				return
			}
			defer conn.Close()
			reader := bufio.NewReader(conn)

			account, amount := "B", "5"
			if i%2 == 0 {
				account, amount = "S", "-5"
			}

			for j := 0; j < requestsPerClient; j++ {
				request := `<transactions id="` + account + `"><order sym="X" amount="` + amount + `" limit="100"/></transactions>`
				if err := wire.WriteFrame(conn, []byte(request)); err != nil {
					done <- err
					return
				}

				var sb strings.Builder
				buf := make([]byte, 1)
				for !strings.HasSuffix(sb.String(), "</results>") {
					n, err := reader.Read(buf)
					if err != nil {
						done <- err
						return
					}
					sb.Write(buf[:n])
				}
				if !strings.Contains(sb.String(), "<opened") {
					done <- errOpenFailed(sb.String())
					return
				}
			}
			done <- nil
		}(i)
	}

	for i := 0; i < numClients; i++ {
		if err := <-done; err != nil {
			t.Fatalf("Client failed: %v", err)
		}
	}
}

type errOpenFailed string

func (e errOpenFailed) Error() string {
	return "expected opened reply, got: " + string(e)
}

func TestBadFramingClosesConnection(t *testing.T) {
	_, addr := startTestServer(t)

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("Expected to connect, got: %v", err)
	}
	defer conn.Close()

	if _, err := conn.Write([]byte("bogus\n")); err != nil {
		t.Fatalf("Expected write to succeed, got: %v", err)
	}

	reader := bufio.NewReader(conn)
	response := readResults(t, reader)
	if !strings.Contains(response, "Invalid message framing") {
		t.Errorf("Expected framing error reply, got: %s", response)
	}

	// The server drops the connection after a framing error.
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, err := reader.ReadByte(); err == nil {
		t.Error("Expected connection to be closed after framing error")
	}
}
