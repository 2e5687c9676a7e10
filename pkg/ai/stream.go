package ai

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// EventType identifies a streamed run event.
type EventType string

const (
	EventRunCreated       EventType = "thread.run.created"
	EventMessageDelta     EventType = "thread.message.delta"
	EventMessageCompleted EventType = "thread.message.completed"
)

// Event is one typed fragment event pulled from a run stream.
//
// For EventMessageDelta, Text holds the incremental fragment; for
// EventMessageCompleted it holds the full final text. Annotations carries the
// exact inline citation substrings the provider injected into Text.
type Event struct {
	Type        EventType
	Text        string
	Annotations []string
	Run         *Run
}

// RunStream is a pull-based sequence of events from a streamed run.
// Recv blocks until the next modeled event arrives and returns io.EOF when
// the stream is exhausted.
type RunStream struct {
	body   io.ReadCloser
	reader *bufio.Reader
	runID  string
}

// StreamRun starts a generation run against the thread and returns the event
// stream. Temperature zero keeps generation deterministic against the
// indexed document.
func (c *Client) StreamRun(ctx context.Context, threadID, assistantID, instructions string, temperature float64) (*RunStream, error) {
	payload := map[string]any{
		"assistant_id": assistantID,
		"instructions": instructions,
		"temperature":  temperature,
		"stream":       true,
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/threads/"+threadID+"/runs", strings.NewReader(string(data)))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	c.authorize(req)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		return nil, decodeAPIError(resp)
	}
	return &RunStream{body: resp.Body, reader: bufio.NewReader(resp.Body)}, nil
}

// RunID returns the run identifier once the first run event has been read.
func (s *RunStream) RunID() string {
	return s.runID
}

// Close releases the underlying connection.
func (s *RunStream) Close() error {
	return s.body.Close()
}

// Recv returns the next modeled event. Unmodeled lifecycle events are
// consumed silently, except that every run event updates the tracked run id.
func (s *RunStream) Recv() (Event, error) {
	for {
		name, data, err := s.nextSSE()
		if err != nil {
			return Event{}, err
		}
		if name == "done" || data == "[DONE]" {
			return Event{}, io.EOF
		}
		switch {
		case name == string(EventMessageDelta):
			event, ok, err := parseDeltaEvent(data)
			if err != nil {
				return Event{}, err
			}
			if ok {
				return event, nil
			}
		case name == string(EventMessageCompleted):
			event, err := parseCompletedEvent(data)
			if err != nil {
				return Event{}, err
			}
			return event, nil
		case strings.HasPrefix(name, "thread.run.") && !strings.HasPrefix(name, "thread.run.step"):
			var run Run
			if err := json.Unmarshal([]byte(data), &run); err != nil {
				return Event{}, fmt.Errorf("decode run event %s: %w", name, err)
			}
			if run.ID != "" {
				s.runID = run.ID
			}
			if name == string(EventRunCreated) {
				return Event{Type: EventRunCreated, Run: &run}, nil
			}
		}
	}
}

// nextSSE reads one server-sent event, returning its event name and the
// concatenated data payload.
func (s *RunStream) nextSSE() (string, string, error) {
	var name string
	var data []string
	for {
		line, err := s.reader.ReadString('\n')
		if err != nil {
			if err == io.EOF && (name != "" || len(data) > 0) {
				return name, strings.Join(data, "\n"), nil
			}
			return "", "", err
		}
		line = strings.TrimRight(line, "\r\n")
		switch {
		case line == "":
			if name != "" || len(data) > 0 {
				return name, strings.Join(data, "\n"), nil
			}
		case strings.HasPrefix(line, "event:"):
			name = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			data = append(data, strings.TrimSpace(strings.TrimPrefix(line, "data:")))
		}
	}
}

type textAnnotation struct {
	Text string `json:"text"`
}

type textContent struct {
	Value       string           `json:"value"`
	Annotations []textAnnotation `json:"annotations"`
}

func parseDeltaEvent(data string) (Event, bool, error) {
	var payload struct {
		Delta struct {
			Content []struct {
				Type string      `json:"type"`
				Text textContent `json:"text"`
			} `json:"content"`
		} `json:"delta"`
	}
	if err := json.Unmarshal([]byte(data), &payload); err != nil {
		return Event{}, false, fmt.Errorf("decode message delta: %w", err)
	}
	event := Event{Type: EventMessageDelta}
	var hasText bool
	for _, content := range payload.Delta.Content {
		if content.Type != "" && content.Type != "text" {
			continue
		}
		event.Text += content.Text.Value
		for _, ann := range content.Text.Annotations {
			if ann.Text != "" {
				event.Annotations = append(event.Annotations, ann.Text)
			}
		}
		hasText = true
	}
	return event, hasText, nil
}

func parseCompletedEvent(data string) (Event, error) {
	var payload struct {
		Content []struct {
			Type string      `json:"type"`
			Text textContent `json:"text"`
		} `json:"content"`
	}
	if err := json.Unmarshal([]byte(data), &payload); err != nil {
		return Event{}, fmt.Errorf("decode message completed: %w", err)
	}
	event := Event{Type: EventMessageCompleted}
	for _, content := range payload.Content {
		if content.Type != "" && content.Type != "text" {
			continue
		}
		event.Text += content.Text.Value
		for _, ann := range content.Text.Annotations {
			if ann.Text != "" {
				event.Annotations = append(event.Annotations, ann.Text)
			}
		}
	}
	return event, nil
}
