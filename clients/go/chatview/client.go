// Package chatview provides a client for the project chat service:
// the REST API, the realtime connection and the view-model state a
// frontend renders from.
package chatview

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"time"
)

// Client is a chat API client.
type Client struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
}

// NewClient creates a new chat client.
func NewClient(baseURL, token string) *Client {
	return &Client{
		BaseURL:    baseURL,
		Token:      token,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// doRequest performs an HTTP request.
func (c *Client) doRequest(method, path string, body []byte) ([]byte, error) {
	req, err := http.NewRequest(method, c.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.Token)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode >= 400 {
		var errResp struct {
			Error string `json:"error"`
		}
		json.Unmarshal(respBody, &errResp)
		return nil, fmt.Errorf("chat error %d: %s", resp.StatusCode, errResp.Error)
	}

	return respBody, nil
}

// Attachment describes one uploaded file on a message.
type Attachment struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	URL  string `json:"url"`
	Type string `json:"type"`
	Size int64  `json:"size"`
}

// Message represents a chat message.
type Message struct {
	ID          string       `json:"id"`
	ThreadID    string       `json:"thread_id"`
	SenderID    string       `json:"sender_id"`
	SenderRole  string       `json:"sender_role"`
	Body        string       `json:"body"`
	Attachments []Attachment `json:"attachments,omitempty"`
	Read        bool         `json:"read"`
	ClientTag   string       `json:"client_tag,omitempty"`
	Timestamp   int64        `json:"ts"`
}

// Thread represents thread metadata.
type Thread struct {
	ID           string    `json:"id"`
	ProjectID    string    `json:"project_id"`
	LastActiveAt time.Time `json:"last_active_at"`
	MessageCount int64     `json:"message_count"`
}

// ThreadResponse is the response from fetching a project thread.
// Thread is nil until the first message is sent.
type ThreadResponse struct {
	Thread   *Thread   `json:"thread"`
	Messages []Message `json:"messages"`
	HasMore  bool      `json:"has_more"`
}

// FetchThread retrieves a project's thread and message history.
func (c *Client) FetchThread(projectID string, limit int, before int64) (*ThreadResponse, error) {
	path := fmt.Sprintf("/projects/%s/thread?limit=%d", projectID, limit)
	if before > 0 {
		path += fmt.Sprintf("&before=%d", before)
	}

	respBody, err := c.doRequest("GET", path, nil)
	if err != nil {
		return nil, err
	}

	var resp ThreadResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SendMessageRequest is the request body for sending a message.
type SendMessageRequest struct {
	Body        string       `json:"body"`
	Attachments []Attachment `json:"attachments,omitempty"`
	ClientTag   string       `json:"client_tag,omitempty"`
}

// SendMessage posts a message to a project's thread. The clientTag
// makes retries idempotent; a replayed tag returns the already stored
// message.
func (c *Client) SendMessage(projectID, body string, attachments []Attachment, clientTag string) (*Message, error) {
	req := SendMessageRequest{Body: body, Attachments: attachments, ClientTag: clientTag}
	reqBody, _ := json.Marshal(req)

	respBody, err := c.doRequest("POST", fmt.Sprintf("/projects/%s/messages", projectID), reqBody)
	if err != nil {
		return nil, err
	}

	var msg Message
	if err := json.Unmarshal(respBody, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// UploadResponse is the response from uploading attachments. Skipped
// lists files the server could not store.
type UploadResponse struct {
	Attachments []Attachment `json:"attachments"`
	Skipped     []string     `json:"skipped,omitempty"`
}

// NamedReader is one file to upload.
type NamedReader struct {
	Name        string
	ContentType string
	Reader      io.Reader
}

// UploadFiles uploads attachment files for a project via multipart form.
func (c *Client) UploadFiles(projectID string, files []NamedReader) (*UploadResponse, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	for _, f := range files {
		part, err := mw.CreateFormFile("files", f.Name)
		if err != nil {
			return nil, err
		}
		if _, err := io.Copy(part, f.Reader); err != nil {
			return nil, err
		}
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequest("POST", fmt.Sprintf("%s/projects/%s/uploads", c.BaseURL, projectID), &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+c.Token)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		var errResp struct {
			Error string `json:"error"`
		}
		json.Unmarshal(respBody, &errResp)
		return nil, fmt.Errorf("chat error %d: %s", resp.StatusCode, errResp.Error)
	}

	var out UploadResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// MarkRead marks a message as read.
func (c *Client) MarkRead(messageID string) error {
	_, err := c.doRequest("POST", fmt.Sprintf("/messages/%s/read", messageID), nil)
	return err
}

// Participant is one resolved chat participant.
type Participant struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Role string `json:"role"`
}

// ParticipantsResponse is the response from listing participants.
type ParticipantsResponse struct {
	Participants []Participant `json:"participants"`
}

// Participants lists a project's chat participants.
func (c *Client) Participants(projectID string) (*ParticipantsResponse, error) {
	respBody, err := c.doRequest("GET", fmt.Sprintf("/projects/%s/participants", projectID), nil)
	if err != nil {
		return nil, err
	}

	var resp ParticipantsResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SearchResponse is the response from searching a thread.
type SearchResponse struct {
	Query   string    `json:"query"`
	Results []Message `json:"results"`
	Total   int       `json:"total"`
}

// Search searches messages in a thread.
func (c *Client) Search(threadID, query string, limit int) (*SearchResponse, error) {
	path := fmt.Sprintf("/threads/%s/search?q=%s&limit=%d", threadID, url.QueryEscape(query), limit)

	respBody, err := c.doRequest("GET", path, nil)
	if err != nil {
		return nil, err
	}

	var resp SearchResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
