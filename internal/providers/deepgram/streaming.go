package deepgram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Nat1anWasTaken/fortis/internal/domain"
	"github.com/Nat1anWasTaken/fortis/internal/ports"
)

// Config controls Deepgram websocket settings.
type Config struct {
	APIBaseURL  string
	SmartFormat bool
	// KeepAlive is the interval between keep-alive frames; Deepgram closes
	// idle sockets after ~10s without audio.
	KeepAlive time.Duration
	// ConnectTimeout bounds the websocket handshake.
	ConnectTimeout time.Duration
}

// Provider implements ports.TranscriptionProvider for Deepgram's live
// transcription endpoint.
type Provider struct {
	cfg Config
}

func NewProvider(cfg Config) *Provider {
	if cfg.APIBaseURL == "" {
		cfg.APIBaseURL = "https://api.deepgram.com/v1"
	}
	if cfg.KeepAlive <= 0 {
		cfg.KeepAlive = 3 * time.Second
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 10 * time.Second
	}
	return &Provider{cfg: cfg}
}

func (p *Provider) Open(ctx context.Context, settings ports.Settings, cfg ports.StreamConfig) (ports.StreamingSession, error) {
	if strings.TrimSpace(settings.APIKey) == "" || settings.Language == "" || settings.Model == "" {
		return nil, domain.ErrConfigIncomplete
	}

	wsURL, err := buildListenURL(p.cfg, settings, cfg)
	if err != nil {
		return nil, &domain.ConnectError{Err: err}
	}

	headers := http.Header{}
	headers.Set("Authorization", "Token "+settings.APIKey)

	dialCtx, cancel := context.WithTimeout(ctx, p.cfg.ConnectTimeout)
	defer cancel()

	conn, resp, err := websocket.DefaultDialer.DialContext(dialCtx, wsURL, headers)
	if err != nil {
		return nil, classifyDialError(resp, err)
	}

	session := &streamingSession{
		conn:      conn,
		keepAlive: p.cfg.KeepAlive,
		events:    make(chan domain.TranscriptEvent, 64),
		// Audio acknowledged into this buffer is lost if the socket dies
		// before the write loop flushes it; keep the window under a
		// second. The pump retries its unacknowledged chunk itself.
		audio: make(chan []byte, 8),
		done:  make(chan struct{}),
	}

	session.wg.Add(2)
	go session.readLoop()
	go session.writeLoop()
	go func() {
		session.wg.Wait()
		close(session.events)
		close(session.done)
		_ = conn.Close()
	}()

	go func() {
		select {
		case <-ctx.Done():
			_ = session.Close()
		case <-session.done:
		}
	}()

	return session, nil
}

func classifyDialError(resp *http.Response, err error) error {
	if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
		return &domain.AuthError{Err: err}
	}
	return &domain.ConnectError{Err: err}
}

type streamingSession struct {
	conn      *websocket.Conn
	keepAlive time.Duration

	events chan domain.TranscriptEvent
	audio  chan []byte
	done   chan struct{}

	wg sync.WaitGroup

	errMu sync.Mutex
	err   error

	closeSendOnce sync.Once
	closeOnce     sync.Once
	sendMu        sync.RWMutex
	sendClosed    bool

	// offset tracks the logical character position of committed text,
	// advanced by the read loop only.
	offset int
}

func (s *streamingSession) Send(chunk domain.Chunk) error {
	if len(chunk.PCM) == 0 {
		return nil
	}

	s.sendMu.RLock()
	closed := s.sendClosed
	s.sendMu.RUnlock()
	if closed {
		return &domain.SendError{Err: errors.New("audio stream is already closed")}
	}

	select {
	case s.audio <- chunk.PCM:
		return nil
	case <-s.done:
		if err := s.sessionErr(); err != nil {
			return &domain.SendError{Err: err}
		}
		return &domain.SendError{Err: errors.New("session closed")}
	}
}

func (s *streamingSession) CloseSend() error {
	s.closeSendOnce.Do(func() {
		s.sendMu.Lock()
		s.sendClosed = true
		close(s.audio)
		s.sendMu.Unlock()
	})
	return nil
}

func (s *streamingSession) Events() <-chan domain.TranscriptEvent {
	return s.events
}

func (s *streamingSession) Done() <-chan struct{} {
	return s.done
}

func (s *streamingSession) Err() error {
	return s.sessionErr()
}

func (s *streamingSession) Close() error {
	s.closeOnce.Do(func() {
		_ = s.CloseSend()
		_ = s.conn.Close()
	})
	<-s.done
	return s.sessionErr()
}

func (s *streamingSession) sessionErr() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.err
}

func (s *streamingSession) setErr(err error) {
	if err == nil {
		return
	}
	if websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseNoStatusReceived,
	) {
		return
	}

	s.errMu.Lock()
	defer s.errMu.Unlock()
	if s.err == nil {
		s.err = err
	}
}

func (s *streamingSession) writeLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.keepAlive)
	defer ticker.Stop()

	for {
		select {
		case chunk, ok := <-s.audio:
			if !ok {
				if err := s.conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"CloseStream"}`)); err != nil {
					s.setErr(fmt.Errorf("failed to close stream: %w", err))
				}
				return
			}
			if err := s.conn.WriteMessage(websocket.BinaryMessage, chunk); err != nil {
				s.setErr(&domain.SendError{Err: err})
				return
			}
		case <-ticker.C:
			if err := s.conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"KeepAlive"}`)); err != nil {
				s.setErr(fmt.Errorf("failed to send keep-alive: %w", err))
				return
			}
		}
	}
}

func (s *streamingSession) readLoop() {
	defer s.wg.Done()

	for {
		_, payload, err := s.conn.ReadMessage()
		if err != nil {
			s.setErr(fmt.Errorf("failed to read provider event: %w", err))
			return
		}

		var response deepgramResponse
		if err := json.Unmarshal(payload, &response); err != nil {
			continue
		}

		if strings.EqualFold(response.Type, "Error") {
			message := strings.TrimSpace(response.Message)
			if message == "" {
				message = "deepgram returned an unknown error"
			}
			s.setErr(errors.New(message))
			return
		}

		transcript := extractTranscript(response)
		if transcript == "" {
			continue
		}

		event := domain.TranscriptEvent{
			Text:  transcript,
			Start: s.offset,
			End:   s.offset + len(transcript),
		}
		if response.IsFinal || response.SpeechFinal {
			event.Kind = domain.TranscriptKindFinal
			s.offset = event.End + 1
		} else {
			event.Kind = domain.TranscriptKindPartial
		}
		s.emit(event)
	}
}

func (s *streamingSession) emit(event domain.TranscriptEvent) {
	select {
	case s.events <- event:
	default:
		// The display side is slow; partials are transient, so the
		// freshest one wins. Finals block briefly instead of being lost.
		if event.Kind == domain.TranscriptKindFinal {
			select {
			case s.events <- event:
			case <-s.done:
			}
		}
	}
}

type deepgramResponse struct {
	Type        string `json:"type"`
	Message     string `json:"message"`
	IsFinal     bool   `json:"is_final"`
	SpeechFinal bool   `json:"speech_final"`

	Channel struct {
		Alternatives []struct {
			Transcript string `json:"transcript"`
		} `json:"alternatives"`
	} `json:"channel"`
}

func extractTranscript(response deepgramResponse) string {
	if len(response.Channel.Alternatives) == 0 {
		return ""
	}
	return strings.TrimSpace(response.Channel.Alternatives[0].Transcript)
}

func buildListenURL(providerCfg Config, settings ports.Settings, streamCfg ports.StreamConfig) (string, error) {
	base := strings.TrimSpace(providerCfg.APIBaseURL)
	if base == "" {
		base = "https://api.deepgram.com/v1"
	}

	if strings.HasPrefix(base, "https://") {
		base = "wss://" + strings.TrimPrefix(base, "https://")
	} else if strings.HasPrefix(base, "http://") {
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	base = strings.TrimRight(base, "/")

	listenURL, err := url.Parse(base + "/listen")
	if err != nil {
		return "", fmt.Errorf("invalid Deepgram API base URL: %w", err)
	}

	if streamCfg.Encoding == "" {
		streamCfg.Encoding = "linear16"
	}
	if streamCfg.SampleRate <= 0 {
		streamCfg.SampleRate = 16000
	}
	if streamCfg.Channels <= 0 {
		streamCfg.Channels = 1
	}

	query := listenURL.Query()
	query.Set("model", settings.Model)
	query.Set("language", settings.Language)
	query.Set("encoding", streamCfg.Encoding)
	query.Set("sample_rate", fmt.Sprintf("%d", streamCfg.SampleRate))
	query.Set("channels", fmt.Sprintf("%d", streamCfg.Channels))
	query.Set("interim_results", fmt.Sprintf("%t", streamCfg.InterimResults))
	query.Set("smart_format", fmt.Sprintf("%t", providerCfg.SmartFormat))
	listenURL.RawQuery = query.Encode()
	return listenURL.String(), nil
}
