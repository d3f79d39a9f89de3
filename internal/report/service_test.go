package report

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Ichinga-Samuel/MonieWatch/internal/aggregator"
	"github.com/Ichinga-Samuel/MonieWatch/pkg/client"
)

type pipelineClient struct {
	authErr error
}

func (c *pipelineClient) Authenticate(ctx context.Context) error { return c.authErr }

func (c *pipelineClient) GetAgents(ctx context.Context) ([]client.Agent, error) {
	return []client.Agent{{AgentID: 1, Name: "Main Street Shop"}}, nil
}

func (c *pipelineClient) GetConsolidatedTransactions(ctx context.Context, start, end time.Time, agentID int64) ([]client.Transaction, error) {
	return []client.Transaction{
		{Reference: "tx-1", Amount: decimal.NewFromInt(500), Status: client.TransactionStatusCompleted, AgentID: agentID, Timestamp: start},
	}, nil
}

func (c *pipelineClient) Profile(ctx context.Context) (*client.Profile, error) {
	return &client.Profile{Name: "Ada Nwosu"}, nil
}

func (c *pipelineClient) Close() {}

func draftService(authErr error) *aggregator.Service {
	return aggregator.NewService(func(aggregator.Principal) (aggregator.APIClient, error) {
		return &pipelineClient{authErr: authErr}, nil
	}, nil)
}

type recordingUploader struct {
	mu      sync.Mutex
	uploads []string
	err     error
}

func (u *recordingUploader) Upload(ctx context.Context, artifact *Artifact) (*Upload, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.err != nil {
		return nil, u.err
	}
	u.uploads = append(u.uploads, artifact.Name)
	return &Upload{Name: strings.TrimSuffix(artifact.Name, ".pdf"), URL: "https://files.example.com/" + artifact.Name}, nil
}

type recordingStore struct {
	mu    sync.Mutex
	saved []string
	err   error
}

func (s *recordingStore) SaveReport(ctx context.Context, name, url, username string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.saved = append(s.saved, name+"|"+url+"|"+username)
	return nil
}

type recordingMailer struct {
	mu   sync.Mutex
	sent []string
	err  error
}

func (m *recordingMailer) SendReportLink(ctx context.Context, recipient, subject, link string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, recipient+"|"+link)
	return nil
}

func pipelinePrincipal() aggregator.Principal {
	return aggregator.Principal{Username: "agg-01", Password: "secret", Email: "ada@example.com", Name: "Ada Nwosu"}
}

func TestGenerate_RunsFullPipeline(t *testing.T) {
	uploader := &recordingUploader{}
	store := &recordingStore{}
	mailer := &recordingMailer{}
	svc := NewService(draftService(nil), NewPDFRenderer(), uploader, store, mailer)

	if err := svc.Generate(context.Background(), pipelinePrincipal(), aggregator.Options{}); err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if len(uploader.uploads) != 1 {
		t.Fatalf("uploads = %d, want 1", len(uploader.uploads))
	}
	if len(store.saved) != 1 {
		t.Fatalf("saved records = %d, want 1", len(store.saved))
	}
	if !strings.HasSuffix(store.saved[0], "|agg-01") {
		t.Errorf("saved record = %q, want principal username recorded", store.saved[0])
	}
	if len(mailer.sent) != 1 {
		t.Fatalf("mails = %d, want 1", len(mailer.sent))
	}
	if !strings.HasPrefix(mailer.sent[0], "ada@example.com|") {
		t.Errorf("mail = %q, want sent to principal email", mailer.sent[0])
	}
}

func TestGenerate_DraftFailureStopsPipeline(t *testing.T) {
	uploader := &recordingUploader{}
	svc := NewService(draftService(client.ErrAuthRejected), NewPDFRenderer(), uploader, &recordingStore{}, &recordingMailer{})

	err := svc.Generate(context.Background(), pipelinePrincipal(), aggregator.Options{})
	if !errors.Is(err, client.ErrAuthRejected) {
		t.Fatalf("Generate() error = %v, want ErrAuthRejected", err)
	}
	if len(uploader.uploads) != 0 {
		t.Errorf("uploads = %d, want 0 after draft failure", len(uploader.uploads))
	}
}

func TestGenerate_UploadFailureSkipsPersistAndMail(t *testing.T) {
	uploadErr := errors.New("bucket unavailable")
	store := &recordingStore{}
	mailer := &recordingMailer{}
	svc := NewService(draftService(nil), NewPDFRenderer(), &recordingUploader{err: uploadErr}, store, mailer)

	err := svc.Generate(context.Background(), pipelinePrincipal(), aggregator.Options{})
	if !errors.Is(err, uploadErr) {
		t.Fatalf("Generate() error = %v, want upload error", err)
	}
	if len(store.saved) != 0 {
		t.Errorf("saved records = %d, want 0 after upload failure", len(store.saved))
	}
	if len(mailer.sent) != 0 {
		t.Errorf("mails = %d, want 0 after upload failure", len(mailer.sent))
	}
}

func TestGenerate_NilCollaboratorsSkipStages(t *testing.T) {
	svc := NewService(draftService(nil), NewPDFRenderer(), nil, nil, nil)
	if err := svc.Generate(context.Background(), pipelinePrincipal(), aggregator.Options{}); err != nil {
		t.Fatalf("Generate() error = %v, want nil with optional stages skipped", err)
	}
}

func TestGenerateAll_CountsFailures(t *testing.T) {
	factory := func(p aggregator.Principal) (aggregator.APIClient, error) {
		if p.Username == "bad" {
			return &pipelineClient{authErr: client.ErrAuthRejected}, nil
		}
		return &pipelineClient{}, nil
	}
	drafts := aggregator.NewService(factory, nil)
	svc := NewService(drafts, NewPDFRenderer(), &recordingUploader{}, &recordingStore{}, &recordingMailer{})

	principals := []aggregator.Principal{
		{Username: "agg-01", Password: "x", Email: "a@example.com", Name: "A"},
		{Username: "bad", Password: "x", Email: "b@example.com", Name: "B"},
		{Username: "agg-03", Password: "x", Email: "c@example.com", Name: "C"},
	}
	if failed := svc.GenerateAll(context.Background(), principals, aggregator.Options{}); failed != 1 {
		t.Errorf("GenerateAll() failed = %d, want 1", failed)
	}
}

func TestGenerateAll_Empty(t *testing.T) {
	svc := NewService(draftService(nil), NewPDFRenderer(), nil, nil, nil)
	if failed := svc.GenerateAll(context.Background(), nil, aggregator.Options{}); failed != 0 {
		t.Errorf("GenerateAll() failed = %d, want 0 for no principals", failed)
	}
}
