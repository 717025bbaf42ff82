package commands

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/nerrad567/gray-logic-commands/internal/device"
)

// stubEncoder encodes the command token and the target device token.
type stubEncoder struct {
	err   error
	calls atomic.Int64
	lifecycleRecorder
}

func (e *stubEncoder) Encode(exec *Execution, nesting device.NestingContext, _ *device.Assignment) (string, error) {
	e.calls.Add(1)
	if e.err != nil {
		return "", e.err
	}
	return exec.Command.Token + "@" + nesting.Target().Token, nil
}

func (e *stubEncoder) EncodeSystemCommand(cmd SystemCommand, nesting device.NestingContext, _ *device.Assignment) (string, error) {
	e.calls.Add(1)
	if e.err != nil {
		return "", e.err
	}
	return string(cmd.Type) + "@" + nesting.Target().Token, nil
}

// phoneExtractor reads the "sms_phone" gateway metadata field.
type phoneExtractor struct {
	calls atomic.Int64
}

func (e *phoneExtractor) Extract(destinationID string, nesting device.NestingContext, _ []device.Assignment, _ *Execution) (string, error) {
	e.calls.Add(1)
	gw := nesting.Gateway()
	phone, ok := gw.MetadataValue("sms_phone")
	if !ok || phone == "" {
		return "", &ParameterResolutionError{Destination: destinationID, Device: gw.Token, Field: "sms_phone"}
	}
	return phone, nil
}

// sentMessage is one provider call.
type sentMessage struct {
	payload string
	param   string
	system  bool
}

// stubProvider records what it was asked to send.
type stubProvider struct {
	err   error
	calls atomic.Int64

	mu   sync.Mutex
	sent []sentMessage
	lifecycleRecorder
}

func (p *stubProvider) Deliver(_ context.Context, _ device.NestingContext, _ []device.Assignment, _ *Execution, encoded, params string) error {
	return p.send(sentMessage{payload: encoded, param: params})
}

func (p *stubProvider) DeliverSystemCommand(_ context.Context, _ device.NestingContext, _ []device.Assignment, encoded, params string) error {
	return p.send(sentMessage{payload: encoded, param: params, system: true})
}

func (p *stubProvider) send(m sentMessage) error {
	p.calls.Add(1)
	if p.err != nil {
		return p.err
	}
	p.mu.Lock()
	p.sent = append(p.sent, m)
	p.mu.Unlock()
	return nil
}

func (p *stubProvider) messages() []sentMessage {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]sentMessage, len(p.sent))
	copy(out, p.sent)
	return out
}

// lifecycleRecorder appends start/stop events to a shared log.
type lifecycleRecorder struct {
	name     string
	log      *[]string
	startErr error
	stopErr  error
}

func (l *lifecycleRecorder) Start(context.Context) error {
	if l.log != nil {
		*l.log = append(*l.log, "start "+l.name)
	}
	return l.startErr
}

func (l *lifecycleRecorder) Stop(context.Context) error {
	if l.log != nil {
		*l.log = append(*l.log, "stop "+l.name)
	}
	return l.stopErr
}

func testExecution(t *testing.T) *Execution {
	t.Helper()
	exec, err := BuildExecution(
		device.Command{Token: "cmd-ping", Name: "ping"},
		Invocation{ID: "inv-1", DeviceToken: "dev-1", CommandToken: "cmd-ping"},
	)
	if err != nil {
		t.Fatalf("BuildExecution() error = %v", err)
	}
	return exec
}

func phoneDevice(token, phone string) *device.Device {
	d := &device.Device{ID: "id-" + token, Token: token, DeviceTypeID: "sensor", Metadata: map[string]string{}}
	if phone != "" {
		d.Metadata["sms_phone"] = phone
	}
	return d
}

func TestDestination_Deliver(t *testing.T) {
	enc := &stubEncoder{}
	ext := &phoneExtractor{}
	prov := &stubProvider{}
	dest := NewDestination[string, string]("sms-1", enc, ext, prov)

	nesting := device.NewNestingContext(*phoneDevice("dev-1", "+15551234567"))
	assignments := []device.Assignment{{Token: "asg-1", Active: true}}

	if err := dest.Deliver(context.Background(), nesting, assignments, testExecution(t)); err != nil {
		t.Fatalf("Deliver() error = %v", err)
	}

	sent := prov.messages()
	if len(sent) != 1 {
		t.Fatalf("provider calls = %d, want 1", len(sent))
	}
	if sent[0].payload != "cmd-ping@dev-1" {
		t.Errorf("payload = %q, want %q", sent[0].payload, "cmd-ping@dev-1")
	}
	if sent[0].param != "+15551234567" {
		t.Errorf("param = %q, want %q", sent[0].param, "+15551234567")
	}
}

func TestDestination_ExtractorFailureStopsPipeline(t *testing.T) {
	prov := &stubProvider{}
	dest := NewDestination[string, string]("sms-1", &stubEncoder{}, &phoneExtractor{}, prov)

	nesting := device.NewNestingContext(*phoneDevice("dev-1", ""))
	err := dest.Deliver(context.Background(), nesting, nil, testExecution(t))

	var pre *ParameterResolutionError
	if !errors.As(err, &pre) {
		t.Fatalf("Deliver() error = %v, want ParameterResolutionError", err)
	}
	if pre.Field != "sms_phone" || pre.Destination != "sms-1" {
		t.Errorf("ParameterResolutionError = %+v", pre)
	}
	if ErrorKind(err) != KindParameterResolution {
		t.Errorf("ErrorKind() = %q, want %q", ErrorKind(err), KindParameterResolution)
	}
	if prov.calls.Load() != 0 {
		t.Errorf("provider calls = %d, want 0", prov.calls.Load())
	}
}

func TestDestination_UsesGatewayMetadata(t *testing.T) {
	prov := &stubProvider{}
	dest := NewDestination[string, string]("sms-1", &stubEncoder{}, &phoneExtractor{}, prov)

	gateway := phoneDevice("gw-1", "+15550000001")
	child := phoneDevice("dev-1", "+15559999999")
	child.ParentToken = "gw-1"

	nesting := device.NewNestingContext(*gateway, *child)
	if err := dest.Deliver(context.Background(), nesting, nil, testExecution(t)); err != nil {
		t.Fatalf("Deliver() error = %v", err)
	}

	sent := prov.messages()
	if len(sent) != 1 || sent[0].param != "+15550000001" {
		t.Fatalf("sent = %+v, want gateway phone", sent)
	}
	if sent[0].payload != "cmd-ping@dev-1" {
		t.Errorf("payload = %q, want it addressed to the nested target", sent[0].payload)
	}
}

func TestDestination_SkipDelivery(t *testing.T) {
	logger := &recordingLogger{}
	enc := &stubEncoder{err: ErrSkipDelivery}
	ext := &phoneExtractor{}
	prov := &stubProvider{}
	dest := NewDestination[string, string]("sms-1", enc, ext, prov)
	dest.SetLogger(logger)

	nesting := device.NewNestingContext(*phoneDevice("dev-1", "+15551234567"))
	if err := dest.Deliver(context.Background(), nesting, nil, testExecution(t)); !errors.Is(err, ErrSkipDelivery) {
		t.Fatalf("Deliver() error = %v, want ErrSkipDelivery", err)
	}
	if ext.calls.Load() != 0 || prov.calls.Load() != 0 {
		t.Errorf("extractor calls = %d, provider calls = %d, want 0 and 0", ext.calls.Load(), prov.calls.Load())
	}
	if !logger.has("info", "skipping command delivery") {
		t.Error("skip was not logged")
	}
}

func TestDestination_EncoderError(t *testing.T) {
	prov := &stubProvider{}
	dest := NewDestination[string, string]("sms-1", &stubEncoder{err: errBoom}, &phoneExtractor{}, prov)

	nesting := device.NewNestingContext(*phoneDevice("dev-1", "+15551234567"))
	err := dest.Deliver(context.Background(), nesting, nil, testExecution(t))
	if !errors.Is(err, errBoom) {
		t.Fatalf("Deliver() error = %v, want errBoom", err)
	}
	if prov.calls.Load() != 0 {
		t.Errorf("provider calls = %d, want 0", prov.calls.Load())
	}
}

func TestDestination_TransportErrors(t *testing.T) {
	tests := []struct {
		name          string
		providerErr   error
		wantTransport string
	}{
		{name: "plain error is wrapped", providerErr: errBoom, wantTransport: "provider"},
		{name: "transport error keeps its transport", providerErr: NewTransportError("sms", errBoom), wantTransport: "sms"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prov := &stubProvider{err: tt.providerErr}
			dest := NewDestination[string, string]("sms-1", &stubEncoder{}, &phoneExtractor{}, prov)

			nesting := device.NewNestingContext(*phoneDevice("dev-1", "+15551234567"))
			err := dest.Deliver(context.Background(), nesting, nil, testExecution(t))

			var te *TransportError
			if !errors.As(err, &te) {
				t.Fatalf("Deliver() error = %v, want TransportError", err)
			}
			if te.Destination != "sms-1" {
				t.Errorf("Destination = %q, want sms-1", te.Destination)
			}
			if te.Transport != tt.wantTransport {
				t.Errorf("Transport = %q, want %q", te.Transport, tt.wantTransport)
			}
			if !errors.Is(err, ErrTransport) || !errors.Is(err, errBoom) {
				t.Errorf("error %v should match ErrTransport and its cause", err)
			}
		})
	}
}

func TestDestination_DeliverSystemCommand(t *testing.T) {
	prov := &stubProvider{}
	dest := NewDestination[string, string]("sms-1", &stubEncoder{}, &phoneExtractor{}, prov)

	nesting := device.NewNestingContext(*phoneDevice("dev-1", "+15551234567"))
	cmd := SystemCommand{Type: SystemRegistrationAck, Reason: RegistrationNew}
	if err := dest.DeliverSystemCommand(context.Background(), nesting, nil, cmd); err != nil {
		t.Fatalf("DeliverSystemCommand() error = %v", err)
	}

	sent := prov.messages()
	if len(sent) != 1 {
		t.Fatalf("provider calls = %d, want 1", len(sent))
	}
	if !sent[0].system || sent[0].payload != "RegistrationAck@dev-1" {
		t.Errorf("sent = %+v", sent[0])
	}
}

func TestDestination_StartStopOrder(t *testing.T) {
	var events []string
	enc := &stubEncoder{lifecycleRecorder: lifecycleRecorder{name: "encoder", log: &events}}
	prov := &stubProvider{lifecycleRecorder: lifecycleRecorder{name: "provider", log: &events}}
	dest := NewDestination[string, string]("d", enc, &phoneExtractor{}, prov)

	if err := dest.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := dest.Stop(context.Background()); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}

	want := []string{"start encoder", "start provider", "stop provider", "stop encoder"}
	if len(events) != len(want) {
		t.Fatalf("events = %v, want %v", events, want)
	}
	for i := range want {
		if events[i] != want[i] {
			t.Errorf("events[%d] = %q, want %q", i, events[i], want[i])
		}
	}
}

func TestDestination_StartFailureUnwinds(t *testing.T) {
	var events []string
	enc := &stubEncoder{lifecycleRecorder: lifecycleRecorder{name: "encoder", log: &events}}
	prov := &stubProvider{lifecycleRecorder: lifecycleRecorder{name: "provider", log: &events, startErr: errBoom}}
	dest := NewDestination[string, string]("d", enc, &phoneExtractor{}, prov)

	err := dest.Start(context.Background())
	if !errors.Is(err, errBoom) {
		t.Fatalf("Start() error = %v, want errBoom", err)
	}

	want := []string{"start encoder", "start provider", "stop encoder"}
	if len(events) != len(want) {
		t.Fatalf("events = %v, want %v", events, want)
	}
	for i := range want {
		if events[i] != want[i] {
			t.Errorf("events[%d] = %q, want %q", i, events[i], want[i])
		}
	}
}

func TestDestination_StopJoinsErrors(t *testing.T) {
	stopErr := errors.New("close failed")
	enc := &stubEncoder{lifecycleRecorder: lifecycleRecorder{stopErr: errBoom}}
	prov := &stubProvider{lifecycleRecorder: lifecycleRecorder{stopErr: stopErr}}
	dest := NewDestination[string, string]("d", enc, &phoneExtractor{}, prov)

	err := dest.Stop(context.Background())
	if !errors.Is(err, errBoom) || !errors.Is(err, stopErr) {
		t.Errorf("Stop() error = %v, want both stage errors", err)
	}
}
