package destinations

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/nerrad567/gray-logic-commands/internal/commands"
	"github.com/nerrad567/gray-logic-commands/internal/destinations/coap"
	"github.com/nerrad567/gray-logic-commands/internal/destinations/mqtt"
	"github.com/nerrad567/gray-logic-commands/internal/destinations/sms"
	"github.com/nerrad567/gray-logic-commands/internal/destinations/socket"
	"github.com/nerrad567/gray-logic-commands/internal/device"
	"github.com/nerrad567/gray-logic-commands/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-commands/internal/infrastructure/logging"
)

func testConfig(dests ...config.DestinationConfig) *config.Config {
	return &config.Config{
		Tenant: config.TenantConfig{ID: "acme"},
		MQTT: config.MQTTConfig{
			Broker: config.MQTTBrokerConfig{Host: "bus.local", Port: 1883, ClientID: "graylogic-commands"},
			QoS:    1,
		},
		Commands: config.CommandsConfig{Destinations: dests},
	}
}

func TestBuild_AllTypes(t *testing.T) {
	cfg := testConfig(
		config.DestinationConfig{ID: "sms-1", Type: config.DestinationSMS},
		config.DestinationConfig{ID: "coap-1", Type: config.DestinationCoAP, Encoder: config.EncoderConfig{Type: config.EncoderProtobuf}},
		config.DestinationConfig{ID: "mqtt-1", Type: config.DestinationMQTT},
		config.DestinationConfig{
			ID: "socket-1", Type: config.DestinationSocket,
			Encoder: config.EncoderConfig{Type: config.EncoderExpression, Expression: `Command.Token`},
		},
	)

	dests, err := Build(cfg, nil)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if len(dests) != 4 {
		t.Fatalf("len = %d, want 4", len(dests))
	}

	if _, ok := dests[0].(*commands.Destination[string, sms.Params]); !ok {
		t.Errorf("sms destination has type %T", dests[0])
	}
	if _, ok := dests[1].(*commands.Destination[[]byte, coap.Params]); !ok {
		t.Errorf("coap destination has type %T", dests[1])
	}
	if _, ok := dests[2].(*commands.Destination[[]byte, mqtt.Params]); !ok {
		t.Errorf("mqtt destination has type %T", dests[2])
	}
	if _, ok := dests[3].(*commands.Destination[[]byte, socket.Params]); !ok {
		t.Errorf("socket destination has type %T", dests[3])
	}
	for i, want := range []string{"sms-1", "coap-1", "mqtt-1", "socket-1"} {
		if dests[i].ID() != want {
			t.Errorf("dests[%d].ID() = %q, want %q", i, dests[i].ID(), want)
		}
	}
}

func TestBuild_Errors(t *testing.T) {
	tests := []struct {
		name string
		dest config.DestinationConfig
	}{
		{
			name: "protobuf over sms",
			dest: config.DestinationConfig{ID: "d", Type: config.DestinationSMS, Encoder: config.EncoderConfig{Type: config.EncoderProtobuf}},
		},
		{
			name: "bad expression",
			dest: config.DestinationConfig{ID: "d", Type: config.DestinationCoAP, Encoder: config.EncoderConfig{Type: config.EncoderExpression, Expression: "("}},
		},
		{
			name: "unknown encoder",
			dest: config.DestinationConfig{ID: "d", Type: config.DestinationSocket, Encoder: config.EncoderConfig{Type: "xml"}},
		},
		{
			name: "unknown type",
			dest: config.DestinationConfig{ID: "d", Type: "pigeon"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Build(testConfig(tt.dest), nil)
			if !errors.Is(err, commands.ErrConfiguration) {
				t.Errorf("Build() error = %v, want ErrConfiguration", err)
			}
			if err != nil && !strings.Contains(err.Error(), `"d"`) {
				t.Errorf("Build() error = %v, want destination id in message", err)
			}
		})
	}
}

func TestDestinationConnection(t *testing.T) {
	cfg := testConfig()

	shared := destinationConnection(cfg, config.DestinationConfig{ID: "mqtt-1"})
	if shared.Broker.Host != "bus.local" || shared.QoS != 1 {
		t.Errorf("shared = %+v, want the bus broker", shared.Broker)
	}
	if shared.Broker.ClientID != "graylogic-commands-mqtt-1" {
		t.Errorf("shared ClientID = %q", shared.Broker.ClientID)
	}

	own := destinationConnection(cfg, config.DestinationConfig{
		ID: "mqtt-2",
		MQTT: config.MQTTDestConf{Connection: config.MQTTConfig{
			Broker: config.MQTTBrokerConfig{Host: "field.local", ClientID: "field-client"},
			QoS:    2,
		}},
	})
	if own.Broker.Host != "field.local" || own.Broker.Port != 1883 || own.QoS != 2 {
		t.Errorf("own = %+v", own)
	}
	if own.Broker.ClientID != "field-client" {
		t.Errorf("own ClientID = %q", own.Broker.ClientID)
	}
}

// staticResolver serves one device with one assignment and one command.
type staticResolver struct {
	dev device.Device
}

func (r staticResolver) GetDeviceByToken(_ context.Context, token string) (*device.Device, error) {
	if token != r.dev.Token {
		return nil, device.ErrDeviceNotFound
	}
	d := r.dev
	return &d, nil
}

func (r staticResolver) GetActiveAssignments(context.Context, string) ([]device.Assignment, error) {
	return []device.Assignment{{Token: "asg-1", Active: true}}, nil
}

func (r staticResolver) GetCommandByToken(_ context.Context, token string) (*device.Command, error) {
	return &device.Command{Token: token, Name: "ping"}, nil
}

type staticRouter string

func (s staticRouter) Route(commands.RouteRequest) (string, error) { return string(s), nil }

// TestBuild_SMSEndToEnd sends an invocation through a built SMS destination
// to a fake gateway.
func TestBuild_SMSEndToEnd(t *testing.T) {
	var (
		mu    sync.Mutex
		forms []map[string]string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		mu.Lock()
		forms = append(forms, map[string]string{"To": r.PostForm.Get("To"), "Body": r.PostForm.Get("Body")})
		mu.Unlock()
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	cfg := testConfig(config.DestinationConfig{
		ID:   "sms-1",
		Type: config.DestinationSMS,
		SMS:  config.SMSConfig{AccountSID: "AC1", AuthToken: "tok", FromNumber: "+1000", BaseURL: srv.URL},
	})
	dests, err := Build(cfg, nil)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	resolver := staticResolver{dev: device.Device{
		ID: "id-1", Token: "dev-1",
		Metadata: map[string]string{"sms_phone": "+15551234567"},
	}}
	m, err := commands.NewManager(commands.ManagerOptions{
		Resolver:     resolver,
		Router:       staticRouter("sms-1"),
		Destinations: dests,
	})
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	ctx := context.Background()
	if err := m.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer m.Stop(ctx) //nolint:errcheck // test cleanup

	m.ProcessCommandInvocation(ctx, commands.Invocation{ID: "inv-1", DeviceToken: "dev-1", CommandToken: "cmd-ping"})

	mu.Lock()
	defer mu.Unlock()
	if len(forms) != 1 {
		t.Fatalf("gateway requests = %d, want 1", len(forms))
	}
	if forms[0]["To"] != "+15551234567" {
		t.Errorf("To = %q", forms[0]["To"])
	}
	if !strings.Contains(forms[0]["Body"], "cmd-ping") {
		t.Errorf("Body = %q, want it to mention cmd-ping", forms[0]["Body"])
	}
}

func TestBuild_SMSStartFailsWithoutCredentials(t *testing.T) {
	dests, err := Build(testConfig(config.DestinationConfig{ID: "sms-1", Type: config.DestinationSMS}), nil)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if err := dests[0].Start(context.Background()); !errors.Is(err, commands.ErrConfiguration) {
		t.Errorf("Start() error = %v, want ErrConfiguration", err)
	}
}

func TestDestinationLogger(t *testing.T) {
	var buf strings.Builder
	base := logging.NewWithWriter(&buf, config.LoggingConfig{Level: "info", Format: "json"}, "test")

	destinationLogger(base, "sms-1").Info("delivered")
	if !strings.Contains(buf.String(), `"destination":"sms-1"`) {
		t.Errorf("log output %q missing destination attribute", buf.String())
	}

	if destinationLogger(nil, "x") == nil {
		t.Error("destinationLogger(nil) returned nil")
	}
}
