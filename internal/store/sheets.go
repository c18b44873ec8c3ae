package store

import (
	"bytes"
	"context"
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	sheetsAPIBase   = "https://sheets.googleapis.com"
	googleTokenURL  = "https://oauth2.googleapis.com/token"
	sheetsScope     = "https://www.googleapis.com/auth/spreadsheets"
	jwtBearerGrant  = "urn:ietf:params:oauth:grant-type:jwt-bearer"
	subscribersTab  = "Subscribers"
	auditTab        = "Log"
	subscribersCols = "A:F"
)

// SheetsStore persists subscribers and the audit log in a Google Spreadsheet
// via the Sheets v4 REST API. The spreadsheet has no transactions and no
// unique index: a find is a linear scan over the subscriber rows and an upsert
// is a non-atomic read-modify-write, so ReconcileSubscribers does real work
// here.
type SheetsStore struct {
	http     *http.Client
	sheetID  string
	email    string
	key      *rsa.PrivateKey
	apiBase  string
	tokenURL string

	mu       sync.Mutex
	token    string
	tokenExp time.Time
}

type SheetsOption func(*SheetsStore)

// WithEndpoints overrides the API and token hosts, used by tests.
func WithEndpoints(apiBase, tokenURL string) SheetsOption {
	return func(s *SheetsStore) {
		s.apiBase = apiBase
		s.tokenURL = tokenURL
	}
}

// OpenSheets validates the service-account key and returns a store bound to
// one spreadsheet. No network call happens until the first operation.
func OpenSheets(sheetID, serviceAccountEmail, privateKeyPEM string, opts ...SheetsOption) (*SheetsStore, error) {
	key, err := jwt.ParseRSAPrivateKeyFromPEM([]byte(privateKeyPEM))
	if err != nil {
		return nil, fmt.Errorf("parse service account key: %w", err)
	}
	s := &SheetsStore{
		http:     &http.Client{Timeout: 30 * time.Second},
		sheetID:  sheetID,
		email:    serviceAccountEmail,
		key:      key,
		apiBase:  sheetsAPIBase,
		tokenURL: googleTokenURL,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *SheetsStore) Close() error { return nil }

// subscriberRow pairs a decoded record with its 1-based sheet row number.
type subscriberRow struct {
	row int
	sub Subscriber
}

func (s *SheetsStore) GetSubscriber(ctx context.Context, chatID string) (Subscriber, error) {
	rows, err := s.loadSubscribers(ctx)
	if err != nil {
		return Subscriber{}, err
	}
	var matches []Subscriber
	for _, r := range rows {
		if r.sub.ChatID == chatID {
			matches = append(matches, r.sub)
		}
	}
	if len(matches) == 0 {
		return Subscriber{}, ErrNotFound
	}
	return mostRecent(matches), nil
}

func (s *SheetsStore) UpsertSubscriber(ctx context.Context, sub Subscriber) error {
	if sub.ChatID == "" {
		return fmt.Errorf("chat id required")
	}
	if sub.UpdatedAt.IsZero() {
		sub.UpdatedAt = time.Now()
	}

	rows, err := s.loadSubscribers(ctx)
	if err != nil {
		return err
	}
	target := 0
	var latest time.Time
	for _, r := range rows {
		if r.sub.ChatID == sub.ChatID && (target == 0 || r.sub.UpdatedAt.After(latest)) {
			target = r.row
			latest = r.sub.UpdatedAt
		}
	}

	values := [][]string{subscriberToRow(sub)}
	if target > 0 {
		rng := fmt.Sprintf("%s!A%d:F%d", subscribersTab, target, target)
		return s.updateValues(ctx, rng, values)
	}
	return s.appendValues(ctx, subscribersTab+"!"+subscribersCols, values)
}

func (s *SheetsStore) ListSubscribers(ctx context.Context) ([]Subscriber, error) {
	rows, err := s.loadSubscribers(ctx)
	if err != nil {
		return nil, err
	}
	flat := make([]Subscriber, 0, len(rows))
	for _, r := range rows {
		flat = append(flat, r.sub)
	}
	return collapse(flat), nil
}

func (s *SheetsStore) AppendAudit(ctx context.Context, entry AuditEntry) error {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}
	row := []string{
		entry.Timestamp.UTC().Format(time.RFC3339),
		entry.ChatID,
		entry.DisplayName,
		entry.InboundText,
		entry.OutboundText,
	}
	return s.appendValues(ctx, auditTab+"!A:E", [][]string{row})
}

// ReconcileSubscribers clears every duplicate row for a chat id, keeping the
// row with the latest UpdatedAt. Cleared rows stay empty in the sheet and are
// skipped on read, so running this repeatedly is safe.
func (s *SheetsStore) ReconcileSubscribers(ctx context.Context) (int, error) {
	rows, err := s.loadSubscribers(ctx)
	if err != nil {
		return 0, err
	}

	byKey := make(map[string][]subscriberRow)
	for _, r := range rows {
		byKey[r.sub.ChatID] = append(byKey[r.sub.ChatID], r)
	}

	removed := 0
	for _, group := range byKey {
		if len(group) < 2 {
			continue
		}
		winner := group[0]
		for _, r := range group[1:] {
			if r.sub.UpdatedAt.After(winner.sub.UpdatedAt) {
				winner = r
			}
		}
		for _, r := range group {
			if r.row == winner.row {
				continue
			}
			rng := fmt.Sprintf("%s!A%d:F%d", subscribersTab, r.row, r.row)
			if err := s.clearValues(ctx, rng); err != nil {
				return removed, err
			}
			removed++
		}
	}
	return removed, nil
}

// loadSubscribers fetches the whole subscriber range. Data starts at row 2;
// row 1 holds headers.
func (s *SheetsStore) loadSubscribers(ctx context.Context) ([]subscriberRow, error) {
	values, err := s.getValues(ctx, subscribersTab+"!A2:F")
	if err != nil {
		return nil, err
	}
	var rows []subscriberRow
	for i, cells := range values {
		sub, ok := rowToSubscriber(cells)
		if !ok {
			continue
		}
		rows = append(rows, subscriberRow{row: i + 2, sub: sub})
	}
	return rows, nil
}

type valueRange struct {
	Values [][]string `json:"values"`
}

func (s *SheetsStore) getValues(ctx context.Context, rng string) ([][]string, error) {
	u := fmt.Sprintf("%s/v4/spreadsheets/%s/values/%s", s.apiBase, s.sheetID, url.PathEscape(rng))
	var vr valueRange
	if err := s.do(ctx, http.MethodGet, u, nil, &vr); err != nil {
		return nil, err
	}
	return vr.Values, nil
}

func (s *SheetsStore) appendValues(ctx context.Context, rng string, values [][]string) error {
	u := fmt.Sprintf("%s/v4/spreadsheets/%s/values/%s:append?valueInputOption=RAW&insertDataOption=INSERT_ROWS",
		s.apiBase, s.sheetID, url.PathEscape(rng))
	return s.do(ctx, http.MethodPost, u, map[string]any{"values": values}, nil)
}

func (s *SheetsStore) updateValues(ctx context.Context, rng string, values [][]string) error {
	u := fmt.Sprintf("%s/v4/spreadsheets/%s/values/%s?valueInputOption=RAW",
		s.apiBase, s.sheetID, url.PathEscape(rng))
	return s.do(ctx, http.MethodPut, u, map[string]any{"values": values}, nil)
}

func (s *SheetsStore) clearValues(ctx context.Context, rng string) error {
	u := fmt.Sprintf("%s/v4/spreadsheets/%s/values/%s:clear", s.apiBase, s.sheetID, url.PathEscape(rng))
	return s.do(ctx, http.MethodPost, u, map[string]any{}, nil)
}

func (s *SheetsStore) do(ctx context.Context, method, u string, body any, result any) error {
	token, err := s.accessToken(ctx)
	if err != nil {
		return err
	}

	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.http.Do(req)
	if err != nil {
		return fmt.Errorf("sheets request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("sheets response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("sheets API status %d: %s", resp.StatusCode, string(raw))
	}
	if result != nil {
		if err := json.Unmarshal(raw, result); err != nil {
			return fmt.Errorf("decode sheets response: %w", err)
		}
	}
	return nil
}

// accessToken returns a cached OAuth token, minting a fresh one via the
// service-account JWT bearer grant when the cache is cold or near expiry.
func (s *SheetsStore) accessToken(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.token != "" && time.Until(s.tokenExp) > time.Minute {
		return s.token, nil
	}

	now := time.Now()
	claims := jwt.MapClaims{
		"iss":   s.email,
		"scope": sheetsScope,
		"aud":   s.tokenURL,
		"iat":   now.Unix(),
		"exp":   now.Add(time.Hour).Unix(),
	}
	assertion, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(s.key)
	if err != nil {
		return "", fmt.Errorf("sign token request: %w", err)
	}

	form := url.Values{
		"grant_type": {jwtBearerGrant},
		"assertion":  {assertion},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("token request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("token request status %d: %s", resp.StatusCode, string(raw))
	}

	var tok struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.Unmarshal(raw, &tok); err != nil {
		return "", fmt.Errorf("decode token response: %w", err)
	}
	s.token = tok.AccessToken
	s.tokenExp = now.Add(time.Duration(tok.ExpiresIn) * time.Second)
	return s.token, nil
}

func subscriberToRow(sub Subscriber) []string {
	return []string{
		sub.ChatID,
		sub.DisplayName,
		string(sub.State),
		formatTime(sub.SubscribedAt),
		formatTime(sub.UnsubscribedAt),
		formatTime(sub.UpdatedAt),
	}
}

func rowToSubscriber(cells []string) (Subscriber, bool) {
	if len(cells) == 0 || cells[0] == "" {
		return Subscriber{}, false
	}
	get := func(i int) string {
		if i < len(cells) {
			return cells[i]
		}
		return ""
	}
	return Subscriber{
		ChatID:         get(0),
		DisplayName:    get(1),
		State:          State(get(2)),
		SubscribedAt:   parseTime(get(3)),
		UnsubscribedAt: parseTime(get(4)),
		UpdatedAt:      parseTime(get(5)),
	}, true
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
