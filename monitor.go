// Copyright 2026 Digi Connect authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package push

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// MonitorRequest describes the server-side Monitor resource to create:
// the topic filter and delivery options (§6).
type MonitorRequest struct {
	Topics        []string
	BatchSize     int
	BatchDuration int
	// Format is "json" or "xml".
	Format string
	// Compression is "none" or "gzip".
	Compression string
}

// monitorXML is the exact XML body POSTed to /ws/Monitor (§6).
type monitorXML struct {
	XMLName       xml.Name `xml:"Monitor"`
	Topic         string   `xml:"monTopic"`
	BatchSize     int      `xml:"monBatchSize"`
	BatchDuration int      `xml:"monBatchDuration"`
	FormatType    string   `xml:"monFormatType"`
	TransportType string   `xml:"monTransportType"`
	Compression   string   `xml:"monCompression"`
}

type monitorListResponse struct {
	ResultSize int `json:"resultSize"`
	Items      []struct {
		MonID uint32 `json:"monId"`
	} `json:"items"`
}

// monitorClient is the HTTP collaborator of §6: a thin net/http client
// implementing the three Monitor operations over HTTP Basic auth. It is
// intentionally stdlib-only (see DESIGN.md): nothing in the retrieval
// pack reaches for a third-party HTTP client library for a REST surface
// this small.
type monitorClient struct {
	httpClient *http.Client
	baseURL    string
	username   string
	password   string
}

func newMonitorClient(o Options) *monitorClient {
	scheme := "http"
	if o.Secure {
		scheme = "https"
	}
	return &monitorClient{
		httpClient: &http.Client{Timeout: o.httpTimeout},
		baseURL:    fmt.Sprintf("%s://%s", scheme, o.Hostname),
		username:   o.Username,
		password:   o.Password,
	}
}

// createMonitor posts an XML monitor descriptor and parses the
// server-assigned monitor id from the Location response header.
func (m *monitorClient) createMonitor(ctx context.Context, req MonitorRequest) (uint32, error) {
	body := monitorXML{
		Topic:         strings.Join(req.Topics, ","),
		BatchSize:     req.BatchSize,
		BatchDuration: req.BatchDuration,
		FormatType:    req.Format,
		TransportType: "tcp",
		Compression:   req.Compression,
	}
	payload, err := xml.Marshal(body)
	if err != nil {
		return 0, fmt.Errorf("marshaling monitor request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, m.baseURL+"/ws/Monitor", strings.NewReader(xml.Header+string(payload)))
	if err != nil {
		return 0, fmt.Errorf("building create-monitor request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/xml")
	httpReq.SetBasicAuth(m.username, m.password)

	resp, err := m.httpClient.Do(httpReq)
	if err != nil {
		return 0, fmt.Errorf("%w: create monitor: %v", ErrHTTP, err)
	}
	defer drainAndClose(resp.Body)

	if err := authError(resp.StatusCode); err != nil {
		return 0, err
	}
	if resp.StatusCode != http.StatusCreated {
		return 0, fmt.Errorf("%w: create monitor: unexpected status %s", ErrHTTP, resp.Status)
	}

	location := resp.Header.Get("Location")
	if location == "" {
		return 0, fmt.Errorf("%w: create monitor: response missing Location header", ErrHTTP)
	}
	return lastPathSegmentAsUint32(location)
}

// getMonitor looks up an existing monitor by topic list and returns
// (id, true, nil) if found, or (0, false, nil) if the server reports no
// matching monitor.
func (m *monitorClient) getMonitor(ctx context.Context, topics []string) (uint32, bool, error) {
	condition := fmt.Sprintf("monTopic='%s'", strings.Join(topics, ","))
	query := url.Values{"condition": {condition}}

	reqURL := m.baseURL + "/ws/Monitor/.json?" + query.Encode()
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return 0, false, fmt.Errorf("building get-monitor request: %w", err)
	}
	httpReq.SetBasicAuth(m.username, m.password)

	resp, err := m.httpClient.Do(httpReq)
	if err != nil {
		return 0, false, fmt.Errorf("%w: get monitor: %v", ErrHTTP, err)
	}
	defer drainAndClose(resp.Body)

	if err := authError(resp.StatusCode); err != nil {
		return 0, false, err
	}
	if resp.StatusCode != http.StatusOK {
		return 0, false, fmt.Errorf("%w: get monitor: unexpected status %s", ErrHTTP, resp.Status)
	}

	var parsed monitorListResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return 0, false, fmt.Errorf("%w: decoding get-monitor response: %v", ErrHTTP, err)
	}
	if parsed.ResultSize == 0 || len(parsed.Items) == 0 {
		return 0, false, nil
	}
	return parsed.Items[0].MonID, true, nil
}

// deleteMonitor deletes a monitor by id.
func (m *monitorClient) deleteMonitor(ctx context.Context, monitorID uint32) error {
	reqURL := fmt.Sprintf("%s/ws/Monitor/%d", m.baseURL, monitorID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodDelete, reqURL, nil)
	if err != nil {
		return fmt.Errorf("building delete-monitor request: %w", err)
	}
	httpReq.SetBasicAuth(m.username, m.password)

	resp, err := m.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("%w: delete monitor: %v", ErrHTTP, err)
	}
	defer drainAndClose(resp.Body)

	if err := authError(resp.StatusCode); err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: delete monitor: unexpected status %s", ErrHTTP, resp.Status)
	}
	return nil
}

func authError(status int) error {
	if status == http.StatusUnauthorized || status == http.StatusForbidden {
		return fmt.Errorf("%w: http status %d", ErrAuth, status)
	}
	return nil
}

func drainAndClose(body io.ReadCloser) {
	io.Copy(io.Discard, body)
	body.Close()
}

func lastPathSegmentAsUint32(location string) (uint32, error) {
	trimmed := strings.TrimRight(location, "/")
	segments := strings.Split(trimmed, "/")
	last := segments[len(segments)-1]
	id, err := strconv.ParseUint(last, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("%w: parsing monitor id from Location %q: %v", ErrHTTP, location, err)
	}
	return uint32(id), nil
}
