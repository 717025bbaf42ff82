package socket

import (
	"context"
	"errors"
	"io"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-commands/internal/commands"
	"github.com/nerrad567/gray-logic-commands/internal/device"
)

func TestHostPortExtractor(t *testing.T) {
	tests := []struct {
		name      string
		extractor HostPortExtractor
		metadata  map[string]string
		want      Params
		wantField string
	}{
		{
			name:     "from metadata",
			metadata: map[string]string{"hostname": "10.0.0.7", "port": "9000"},
			want:     Params{Hostname: "10.0.0.7", Port: 9000},
		},
		{
			name:      "custom fields",
			extractor: HostPortExtractor{HostnameField: "ip", PortField: "tcp_port"},
			metadata:  map[string]string{"ip": "gw", "tcp_port": "1234"},
			want:      Params{Hostname: "gw", Port: 1234},
		},
		{
			name:      "overrides",
			extractor: HostPortExtractor{Hostname: "fixed", Port: 5000},
			want:      Params{Hostname: "fixed", Port: 5000},
		},
		{name: "missing host", metadata: map[string]string{"port": "1"}, wantField: "hostname"},
		{name: "missing port", metadata: map[string]string{"hostname": "h"}, wantField: "port"},
		{name: "bad port", metadata: map[string]string{"hostname": "h", "port": "x"}, wantField: "port"},
		{name: "port zero", metadata: map[string]string{"hostname": "h", "port": "0"}, wantField: "port"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			nesting := device.NewNestingContext(device.Device{Token: "gw-1", Metadata: tt.metadata})
			got, err := tt.extractor.Extract("socket-1", nesting, nil, nil)
			if tt.wantField != "" {
				var pre *commands.ParameterResolutionError
				if !errors.As(err, &pre) || pre.Field != tt.wantField {
					t.Fatalf("Extract() error = %v, want ParameterResolutionError on %q", err, tt.wantField)
				}
				return
			}
			if err != nil {
				t.Fatalf("Extract() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Extract() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestProvider_Deliver(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	received := make(chan []byte, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		data, _ := io.ReadAll(conn)
		received <- data
	}()

	tcpAddr := ln.Addr().(*net.TCPAddr)
	p := NewProvider(nil, time.Second)
	nesting := device.NewNestingContext(device.Device{Token: "gw-1"})
	exec := &commands.Execution{Command: device.Command{Token: "cmd-ping"}}

	params := Params{Hostname: "127.0.0.1", Port: tcpAddr.Port}
	if err := p.Deliver(context.Background(), nesting, nil, exec, []byte("hello"), params); err != nil {
		t.Fatalf("Deliver() error = %v", err)
	}

	select {
	case data := <-received:
		if string(data) != "hello" {
			t.Errorf("received %q, want hello", data)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("listener received nothing")
	}
}

func TestProvider_DialError(t *testing.T) {
	var dialed string
	dial := func(_ context.Context, network, addr string) (net.Conn, error) {
		dialed = network + " " + addr
		return nil, errors.New("connection refused")
	}
	p := NewProvider(dial, 0)
	nesting := device.NewNestingContext(device.Device{Token: "gw-1"})

	err := p.DeliverSystemCommand(context.Background(), nesting, nil, []byte("x"), Params{Hostname: "h", Port: 7})
	var te *commands.TransportError
	if !errors.As(err, &te) || te.Transport != "socket" {
		t.Errorf("DeliverSystemCommand() error = %v, want socket TransportError", err)
	}
	if dialed != "tcp h:"+strconv.Itoa(7) {
		t.Errorf("dialed %q", dialed)
	}
}

func TestProvider_WriteError(t *testing.T) {
	client, server := net.Pipe()
	server.Close()

	p := NewProvider(func(context.Context, string, string) (net.Conn, error) { return client, nil }, 0)
	nesting := device.NewNestingContext(device.Device{Token: "gw-1"})
	exec := &commands.Execution{Command: device.Command{Token: "cmd-ping"}}

	err := p.Deliver(context.Background(), nesting, nil, exec, []byte("x"), Params{Hostname: "h", Port: 7})
	if !errors.Is(err, commands.ErrTransport) {
		t.Errorf("Deliver() error = %v, want ErrTransport", err)
	}
}
