package webex

import (
	"context"
	"fmt"
	"sync"
)

// MockTransport replays scripted responses. Poll responses are consumed in
// order; the last one repeats once the script runs out.
type MockTransport struct {
	mu sync.Mutex

	Created     CreatedReport
	CreateErr   error
	Polls       []ReportStatus
	PollErr     error
	Content     []byte
	DownloadErr error

	CreateCalls   []ReportRequest
	PollCalls     int
	DownloadCalls []string
	Tokens        []string
}

// NewMockTransport returns a transport whose report completes on the second
// poll with a small CDR sample.
func NewMockTransport() *MockTransport {
	return &MockTransport{
		Created: CreatedReport{ID: "mock-report", Title: "CDR Report"},
		Polls: []ReportStatus{
			{ID: "mock-report", Status: "pending"},
			{ID: "mock-report", Status: "done", DownloadURL: "mock://reports/mock-report.csv"},
		},
		Content: []byte("Call ID,Start time,Duration,Direction\n" +
			"c-1,2025-01-01T08:00:00Z,42,ORIGINATING\n" +
			"c-2,2025-01-01T08:05:00Z,0,TERMINATING\n"),
	}
}

func (m *MockTransport) CreateReport(ctx context.Context, token string, req ReportRequest) (CreatedReport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.CreateCalls = append(m.CreateCalls, req)
	m.Tokens = append(m.Tokens, token)
	if m.CreateErr != nil {
		return CreatedReport{}, m.CreateErr
	}
	return m.Created, nil
}

func (m *MockTransport) GetReport(ctx context.Context, token string, id string) (ReportStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.PollCalls++
	m.Tokens = append(m.Tokens, token)
	if m.PollErr != nil {
		return ReportStatus{}, m.PollErr
	}
	if len(m.Polls) == 0 {
		return ReportStatus{}, fmt.Errorf("mock transport: no poll responses scripted")
	}
	i := m.PollCalls - 1
	if i >= len(m.Polls) {
		i = len(m.Polls) - 1
	}
	return m.Polls[i], nil
}

func (m *MockTransport) Download(ctx context.Context, token string, url string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.DownloadCalls = append(m.DownloadCalls, url)
	m.Tokens = append(m.Tokens, token)
	if m.DownloadErr != nil {
		return nil, m.DownloadErr
	}
	return m.Content, nil
}
