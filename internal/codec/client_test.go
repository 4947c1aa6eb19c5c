package codec

import (
	"context"
	"errors"
	"net"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/test/bufconn"

	"github.com/danielpatrickdp/narrative-trajectory/go-planner/internal/collab"
	"github.com/danielpatrickdp/narrative-trajectory/go-planner/internal/narrative"
)

// #region mock
type mockSuite struct {
	label   narrative.Label
	text    string
	verdict collab.Verdict
	scores  collab.Scores
	err     error

	lastGenerate collab.GenerateRequest
	lastTarget   narrative.Label
	lastSteps    []narrative.Step
}

func (m *mockSuite) Classify(_ context.Context, _ string) (narrative.Label, error) {
	return m.label, m.err
}

func (m *mockSuite) Generate(_ context.Context, req collab.GenerateRequest) (string, error) {
	m.lastGenerate = req
	return m.text, m.err
}

func (m *mockSuite) Verify(_ context.Context, _ string, target narrative.Label) (collab.Verdict, error) {
	m.lastTarget = target
	return m.verdict, m.err
}

func (m *mockSuite) Evaluate(_ context.Context, _ string, steps []narrative.Step) (collab.Scores, error) {
	m.lastSteps = steps
	return m.scores, m.err
}

// #endregion mock

// #region harness
func startServer(t *testing.T, suite collab.Suite) *Client {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	s := grpc.NewServer()
	Register(s, suite, nil)
	go func() { _ = s.Serve(lis) }()
	t.Cleanup(s.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("dial bufnet: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return NewClientWithConn(conn)
}

func fullSuite(m *mockSuite) collab.Suite {
	return collab.Suite{Classifier: m, Generator: m, Verifier: m, Evaluator: m}
}

// #endregion harness

// #region constructor-tests
func TestNewClient_LazyConnect(t *testing.T) {
	client, err := NewClient("localhost:0")
	if err != nil {
		t.Fatalf("unexpected error creating client: %v", err)
	}
	defer client.Close()
}

func TestNewClientWithConn_CloseIsNoop(t *testing.T) {
	c := NewClientWithConn(nil)
	if err := c.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

// #endregion constructor-tests

// #region roundtrip-tests
func TestClassify_RoundTrip(t *testing.T) {
	m := &mockSuite{label: narrative.Twist}
	c := startServer(t, fullSuite(m))

	got, err := c.Classify(context.Background(), "suddenly")
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if got != narrative.Twist {
		t.Errorf("got %s, want Twist", got)
	}
}

func TestGenerate_RoundTrip(t *testing.T) {
	m := &mockSuite{text: "The storm broke."}
	c := startServer(t, fullSuite(m))

	req := collab.GenerateRequest{Context: "ctx", Target: narrative.Climax, Position: 7, Length: 12, Foreshadow: narrative.Resolution}
	text, err := c.Generate(context.Background(), req)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if text != "The storm broke." {
		t.Errorf("text: got %q", text)
	}
	if m.lastGenerate != req {
		t.Errorf("request not preserved: got %+v, want %+v", m.lastGenerate, req)
	}
}

func TestVerify_RoundTrip(t *testing.T) {
	m := &mockSuite{verdict: collab.Verdict{Verified: true, Confidence: 0.75}}
	c := startServer(t, fullSuite(m))

	v, err := c.Verify(context.Background(), "text", narrative.Revelation)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if v != m.verdict {
		t.Errorf("got %+v, want %+v", v, m.verdict)
	}
	if m.lastTarget != narrative.Revelation {
		t.Errorf("target: got %s", m.lastTarget)
	}
}

func TestEvaluate_RoundTrip(t *testing.T) {
	m := &mockSuite{scores: collab.Scores{Values: map[string]float64{"coherence": 0.5}, Notes: "ok"}}
	c := startServer(t, fullSuite(m))

	steps := []narrative.Step{
		{Index: 0, Label: narrative.Introduction, Text: "a", Confidence: 0.9, Verified: true, Mode: narrative.ModeStart},
		{Index: 1, Label: narrative.Conflict, Text: "b", Retries: 2, Mode: narrative.ModeDynamic},
	}
	sc, err := c.Evaluate(context.Background(), "a b", steps)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if sc.Values["coherence"] != 0.5 || sc.Notes != "ok" {
		t.Errorf("scores: got %+v", sc)
	}
	if len(m.lastSteps) != 2 || m.lastSteps[1].Retries != 2 || m.lastSteps[0].Mode != narrative.ModeStart || !m.lastSteps[0].Verified {
		t.Errorf("steps not preserved: %+v", m.lastSteps)
	}
}

// #endregion roundtrip-tests

// #region error-tests
func TestServerError_IsUnavailable(t *testing.T) {
	m := &mockSuite{err: errors.New("model crashed")}
	c := startServer(t, fullSuite(m))

	if _, err := c.Generate(context.Background(), collab.GenerateRequest{Target: narrative.Climax}); !errors.Is(err, collab.ErrUnavailable) {
		t.Errorf("expected ErrUnavailable, got %v", err)
	}
}

func TestMissingRole_IsUnavailable(t *testing.T) {
	c := startServer(t, collab.Suite{Classifier: &mockSuite{label: narrative.Dialogue}})

	if _, err := c.Verify(context.Background(), "x", narrative.Dialogue); !errors.Is(err, collab.ErrUnavailable) {
		t.Errorf("expected ErrUnavailable for unconfigured verifier, got %v", err)
	}
}

func TestCancelledContext(t *testing.T) {
	c := startServer(t, fullSuite(&mockSuite{label: narrative.Twist}))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := c.Classify(ctx, "x"); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

// #endregion error-tests
