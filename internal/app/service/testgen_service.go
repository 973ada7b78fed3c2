package service

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"codequest/internal/domain/model"
)

// TestGenService calls the external text-generation collaborator for
// supplementary practice inputs. It is best-effort and non-authoritative:
// failures degrade to an empty list, results are never persisted and never
// touch a stored verdict or score.
type TestGenService struct {
	endpoint string
	client   *http.Client
	log      *zap.Logger
}

func NewTestGenService(endpoint string, timeout time.Duration, log *zap.Logger) *TestGenService {
	return &TestGenService{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
		log:      log,
	}
}

type testGenRequest struct {
	Code        string `json:"code"`
	Language    string `json:"language"`
	Description string `json:"description"`
}

type testGenResponse struct {
	Tests []string `json:"tests"`
}

func (s *TestGenService) GenerateTests(ctx context.Context, code string, lang model.Language, description string) []string {
	if s.endpoint == "" {
		return nil
	}

	body, err := json.Marshal(testGenRequest{Code: code, Language: string(lang), Description: description})
	if err != nil {
		return nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		s.log.Warn("test generation collaborator unreachable", zap.Error(err))
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		s.log.Warn("test generation collaborator returned non-OK", zap.Int("status", resp.StatusCode))
		return nil
	}

	var out testGenResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil
	}
	return out.Tests
}
