package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/geneacademy/geneacademy/internal/events"
	"github.com/geneacademy/geneacademy/internal/pipeline"
	"github.com/geneacademy/geneacademy/internal/store"
)

// fakeStore backs both the HTTP layer and the event hub in tests
type fakeStore struct {
	mu        sync.Mutex
	sessions  map[uuid.UUID]*store.Session
	documents map[uuid.UUID]*store.Document
	contents  map[uuid.UUID][]store.GeneratedContent
	events    map[uuid.UUID][]*store.Event
	eventByID map[uuid.UUID]*store.Event
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		sessions:  make(map[uuid.UUID]*store.Session),
		documents: make(map[uuid.UUID]*store.Document),
		contents:  make(map[uuid.UUID][]store.GeneratedContent),
		events:    make(map[uuid.UUID][]*store.Event),
		eventByID: make(map[uuid.UUID]*store.Event),
	}
}

func (f *fakeStore) CreateSession(_ context.Context, userPrompt string, enhance bool) (*store.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sess := &store.Session{
		ID: uuid.New(), Status: store.StatusCreated,
		UserPrompt: userPrompt, Enhance: enhance,
		CreatedAt: time.Now(), UpdatedAt: time.Now(),
	}
	f.sessions[sess.ID] = sess
	return sess, nil
}

func (f *fakeStore) GetSession(_ context.Context, sessionID uuid.UUID) (*store.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sessions[sessionID], nil
}

func (f *fakeStore) SetSessionStatus(_ context.Context, sessionID uuid.UUID, status string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	sess, ok := f.sessions[sessionID]
	if !ok {
		return store.ErrSessionNotFound
	}
	if sess.Status == store.StatusCompleted || sess.Status == store.StatusFailed {
		return store.ErrSessionTerminal
	}
	sess.Status = status
	return nil
}

func (f *fakeStore) SaveDocument(_ context.Context, sessionID uuid.UUID, input *store.DocumentInput) (*store.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc := &store.Document{
		ID: uuid.New(), SessionID: sessionID,
		FileName: input.FileName, FileType: input.FileType,
		FileSize: input.FileSize, OriginalText: input.OriginalText,
		UploadedAt: time.Now(),
	}
	f.documents[sessionID] = doc
	return doc, nil
}

func (f *fakeStore) GetLatestContent(_ context.Context, sessionID uuid.UUID) (*store.GeneratedContent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	versions := f.contents[sessionID]
	if len(versions) == 0 {
		return nil, nil
	}
	latest := versions[len(versions)-1]
	return &latest, nil
}

func (f *fakeStore) GetUnacknowledgedEvents(_ context.Context, sessionID uuid.UUID) ([]store.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []store.Event
	for _, ev := range f.events[sessionID] {
		if !ev.Acknowledged {
			out = append(out, *ev)
		}
	}
	return out, nil
}

func (f *fakeStore) AcknowledgeEvent(_ context.Context, eventID uuid.UUID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ev, ok := f.eventByID[eventID]
	if !ok {
		return false, nil
	}
	ev.Acknowledged = true
	return true, nil
}

func (f *fakeStore) AppendEvent(_ context.Context, sessionID uuid.UUID, stage string, payload store.EventPayload) (*store.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ev := &store.Event{
		ID: uuid.New(), SessionID: sessionID,
		Seq: int64(len(f.events[sessionID]) + 1), Stage: stage,
		Payload: payload, CreatedAt: time.Now(),
	}
	f.events[sessionID] = append(f.events[sessionID], ev)
	f.eventByID[ev.ID] = ev
	copied := *ev
	return &copied, nil
}

func (f *fakeStore) GetEventsSince(_ context.Context, sessionID uuid.UUID, fromSeq int64) ([]store.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []store.Event
	for _, ev := range f.events[sessionID] {
		if ev.Seq > fromSeq {
			out = append(out, *ev)
		}
	}
	return out, nil
}

func (f *fakeStore) addContent(sessionID uuid.UUID, content string, score *int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.contents[sessionID] = append(f.contents[sessionID], store.GeneratedContent{
		ID: uuid.New(), SessionID: sessionID,
		Version: len(f.contents[sessionID]) + 1, Content: content,
		AccuracyScore: score, CreatedAt: time.Now(),
	})
}

type fakeRunner struct {
	ran chan pipeline.Request
}

func (r *fakeRunner) Run(_ context.Context, req pipeline.Request) error {
	r.ran <- req
	return nil
}

func newTestServer(t *testing.T, inboundPerMinute int) (*Server, *fakeStore, *fakeRunner) {
	t.Helper()
	fs := newFakeStore()
	hub := events.NewHub(fs, time.Hour)
	runner := &fakeRunner{ran: make(chan pipeline.Request, 1)}
	srv := New(Options{
		Addr:             "127.0.0.1:0",
		Store:            fs,
		Hub:              hub,
		Notifier:         events.NewNotifier(fs, hub, zap.NewNop()),
		Runner:           runner,
		InboundPerMinute: inboundPerMinute,
		Logger:           zap.NewNop(),
	})
	t.Cleanup(srv.inbound.Stop)
	return srv, fs, runner
}

func doRequest(srv *Server, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	srv.httpServer.Handler.ServeHTTP(rec, req)
	return rec
}

func TestCreateSession(t *testing.T) {
	srv, _, _ := newTestServer(t, 1000)

	body := `{"user_prompt": "make it simple", "enhance": true}`
	rec := doRequest(srv, httptest.NewRequest(http.MethodPost, "/api/sessions", strings.NewReader(body)))
	require.Equal(t, http.StatusCreated, rec.Code)

	var resp sessionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, store.StatusCreated, resp.Status)
	assert.True(t, resp.Enhance)
	_, err := uuid.Parse(resp.ID)
	assert.NoError(t, err)
}

func TestCreateSession_RejectsBadPrompt(t *testing.T) {
	srv, _, _ := newTestServer(t, 1000)

	body := `{"user_prompt": "<script>alert(1)</script>"}`
	rec := doRequest(srv, httptest.NewRequest(http.MethodPost, "/api/sessions", strings.NewReader(body)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetSession(t *testing.T) {
	srv, fs, _ := newTestServer(t, 1000)
	sess, _ := fs.CreateSession(context.Background(), "", false)

	rec := doRequest(srv, httptest.NewRequest(http.MethodGet, "/api/sessions/"+sess.ID.String(), nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(srv, httptest.NewRequest(http.MethodGet, "/api/sessions/"+uuid.NewString(), nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doRequest(srv, httptest.NewRequest(http.MethodGet, "/api/sessions/not-a-uuid", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func multipartUpload(t *testing.T, sessionID, fileName, content string, fields map[string]string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("session_id", sessionID))
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	fw, err := mw.CreateFormFile("file", fileName)
	require.NoError(t, err)
	_, err = fw.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestUpload_StartsPipeline(t *testing.T) {
	srv, fs, runner := newTestServer(t, 1000)
	sess, _ := fs.CreateSession(context.Background(), "default prompt", false)

	req := multipartUpload(t, sess.ID.String(), "notes.txt", "# Mitosis\n\nCells divide.",
		map[string]string{"user_prompt": "for beginners", "enhance": "true"})
	rec := doRequest(srv, req)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	select {
	case ran := <-runner.ran:
		assert.Equal(t, sess.ID, ran.SessionID)
		assert.Equal(t, "# Mitosis\n\nCells divide.", ran.Text)
		assert.Equal(t, "for beginners", ran.UserPrompt)
		assert.True(t, ran.Enhance)
	case <-time.After(2 * time.Second):
		t.Fatal("pipeline was not started")
	}

	got, _ := fs.GetSession(context.Background(), sess.ID)
	assert.Equal(t, store.StatusProcessing, got.Status)

	doc := fs.documents[sess.ID]
	require.NotNil(t, doc)
	assert.Equal(t, "notes.txt", doc.FileName)

	evs, _ := fs.GetEventsSince(context.Background(), sess.ID, 0)
	require.Len(t, evs, 1)
	assert.Equal(t, events.StageUploadComplete, evs[0].Stage)
}

func TestUpload_RejectsSecondUpload(t *testing.T) {
	srv, fs, runner := newTestServer(t, 1000)
	sess, _ := fs.CreateSession(context.Background(), "", false)

	rec := doRequest(srv, multipartUpload(t, sess.ID.String(), "notes.txt", "first upload", nil))
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	<-runner.ran

	// The session is processing now; a second upload must not start a
	// second concurrent run for the same session.
	rec = doRequest(srv, multipartUpload(t, sess.ID.String(), "notes.txt", "second upload", nil))
	assert.Equal(t, http.StatusConflict, rec.Code)
	select {
	case req := <-runner.ran:
		t.Fatalf("second pipeline run started for session %s", req.SessionID)
	default:
	}

	// Terminal sessions are refused too
	require.NoError(t, fs.SetSessionStatus(context.Background(), sess.ID, store.StatusCompleted))
	rec = doRequest(srv, multipartUpload(t, sess.ID.String(), "notes.txt", "third upload", nil))
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestUpload_UnknownSession(t *testing.T) {
	srv, _, _ := newTestServer(t, 1000)

	req := multipartUpload(t, uuid.NewString(), "notes.txt", "text", nil)
	rec := doRequest(srv, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUpload_RejectsUnsupportedFile(t *testing.T) {
	srv, fs, _ := newTestServer(t, 1000)
	sess, _ := fs.CreateSession(context.Background(), "", false)

	rec := doRequest(srv, multipartUpload(t, sess.ID.String(), "virus.exe", "data", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Recognized but unextractable type
	rec = doRequest(srv, multipartUpload(t, sess.ID.String(), "doc.pdf", "data", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "unsupported file format")
}

func TestGetContent(t *testing.T) {
	srv, fs, _ := newTestServer(t, 1000)
	sess, _ := fs.CreateSession(context.Background(), "", false)

	rec := doRequest(srv, httptest.NewRequest(http.MethodGet, "/api/content/"+sess.ID.String(), nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	score := 91
	fs.addContent(sess.ID, "draft one", nil)
	fs.addContent(sess.ID, "draft two", &score)

	rec = doRequest(srv, httptest.NewRequest(http.MethodGet, "/api/content/"+sess.ID.String(), nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp contentResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "draft two", resp.Content)
	assert.Equal(t, 2, resp.Version)
	require.NotNil(t, resp.AccuracyScore)
	assert.Equal(t, 91, *resp.AccuracyScore)
}

func TestPollAndAcknowledge(t *testing.T) {
	srv, fs, _ := newTestServer(t, 1000)
	sess, _ := fs.CreateSession(context.Background(), "", false)
	ctx := context.Background()

	ev1, _ := fs.AppendEvent(ctx, sess.ID, events.StageProcessing, store.EventPayload{Message: "started"})
	fs.AppendEvent(ctx, sess.ID, events.StageCompleted, store.EventPayload{Message: "done"})

	rec := doRequest(srv, httptest.NewRequest(http.MethodGet, "/api/events/"+sess.ID.String()+"/poll", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var poll struct {
		Events []store.Event `json:"events"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &poll))
	assert.Len(t, poll.Events, 2)

	rec = doRequest(srv, httptest.NewRequest(http.MethodPost, "/api/events/"+ev1.ID.String()+"/acknowledge", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(srv, httptest.NewRequest(http.MethodGet, "/api/events/"+sess.ID.String()+"/poll", nil))
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &poll))
	assert.Len(t, poll.Events, 1)

	rec = doRequest(srv, httptest.NewRequest(http.MethodPost, "/api/events/"+uuid.NewString()+"/acknowledge", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestEventStream_ReplayAndTerminate(t *testing.T) {
	srv, fs, _ := newTestServer(t, 1000)
	sess, _ := fs.CreateSession(context.Background(), "", false)
	ctx := context.Background()

	fs.AppendEvent(ctx, sess.ID, events.StageProcessing, store.EventPayload{Message: "started"})
	score := 92
	fs.AppendEvent(ctx, sess.ID, events.StageCompleted, store.EventPayload{Message: "done", AccuracyScore: &score})

	ts := httptest.NewServer(srv.httpServer.Handler)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/events/" + sess.ID.String() + "?from_seq=0")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	// Stream ends after the terminal event, so the body is finite
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	out := string(body)

	assert.Contains(t, out, "event: connected")
	assert.Contains(t, out, "event: processing")
	assert.Contains(t, out, "event: completed")
	assert.Contains(t, out, `"sequence":2`)
	assert.Contains(t, out, `"accuracy_score":92`)
	assert.Less(t, strings.Index(out, "event: processing"), strings.Index(out, "event: completed"))
}

func TestEventStream_FromSeqSkipsReplayed(t *testing.T) {
	srv, fs, _ := newTestServer(t, 1000)
	sess, _ := fs.CreateSession(context.Background(), "", false)
	ctx := context.Background()

	fs.AppendEvent(ctx, sess.ID, events.StageProcessing, store.EventPayload{Message: "started"})
	fs.AppendEvent(ctx, sess.ID, events.StageCompleted, store.EventPayload{Message: "done"})

	ts := httptest.NewServer(srv.httpServer.Handler)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/events/" + sess.ID.String() + "?from_seq=1")
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	out := string(body)

	assert.NotContains(t, out, "event: processing")
	assert.Contains(t, out, "event: completed")
}

func TestHealth(t *testing.T) {
	srv, _, _ := newTestServer(t, 1000)

	rec := doRequest(srv, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "healthy")
}

func TestRateLimitMiddleware(t *testing.T) {
	srv, _, _ := newTestServer(t, 2)

	req := func() *http.Request {
		r := httptest.NewRequest(http.MethodGet, "/api/health", nil)
		r.RemoteAddr = "10.0.0.1:1234"
		return r
	}

	assert.Equal(t, http.StatusOK, doRequest(srv, req()).Code)
	assert.Equal(t, http.StatusOK, doRequest(srv, req()).Code)

	rec := doRequest(srv, req())
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))

	// A different client is unaffected
	other := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	other.RemoteAddr = "10.0.0.2:1234"
	assert.Equal(t, http.StatusOK, doRequest(srv, other).Code)
}
