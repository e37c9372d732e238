package source

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"backend-racehub/internal/errs"
	"backend-racehub/internal/metrics"
	"backend-racehub/internal/race"

	"github.com/goccy/go-json"
	"github.com/sony/gobreaker/v2"
)

const domain = "source"

type bearerKey struct{}

// WithBearerToken makes backend calls made with ctx carry token, so the
// backend authorises them as the caller.
func WithBearerToken(ctx context.Context, token string) context.Context {
	if token == "" {
		return ctx
	}
	return context.WithValue(ctx, bearerKey{}, token)
}

func BearerToken(ctx context.Context) (string, bool) {
	token, ok := ctx.Value(bearerKey{}).(string)
	return token, ok
}

// RESTSource talks to the backend's race API. Reads go through a circuit
// breaker so a failing backend is not hammered by every view refresh.
type RESTSource struct {
	baseURL string
	client  *http.Client
	breaker *gobreaker.CircuitBreaker[[]byte]
}

func NewRESTSource(baseURL string, timeout time.Duration) *RESTSource {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &RESTSource{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		breaker: gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
			Name:        "race-backend",
			MaxRequests: 1,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
			IsSuccessful: func(err error) bool {
				// a 4xx is the backend answering, not the backend failing
				switch errs.CodeOf(err) {
				case errs.CodeNotFound, errs.CodeInvalidInput, errs.CodeConflict, errs.CodeUnauthorized, errs.CodeForbidden:
					return true
				}
				return err == nil
			},
		}),
	}
}

func (s *RESTSource) Race(ctx context.Context, raceID string) (race.Race, error) {
	var out race.Race
	err := s.get(ctx, "race", "/races/"+url.PathEscape(raceID), &out)
	return out, err
}

func (s *RESTSource) Roster(ctx context.Context, raceID string) ([]race.Participant, error) {
	var out []race.Participant
	err := s.get(ctx, "roster", "/races/"+url.PathEscape(raceID)+"/participants", &out)
	return out, err
}

func (s *RESTSource) Results(ctx context.Context, raceID string) ([]race.Result, error) {
	var out []race.Result
	err := s.get(ctx, "results", "/races/"+url.PathEscape(raceID)+"/results", &out)
	return out, err
}

func (s *RESTSource) Tracking(ctx context.Context, raceID string) ([]race.TrackPoint, error) {
	var out []race.TrackPoint
	err := s.get(ctx, "tracking", "/races/"+url.PathEscape(raceID)+"/tracking", &out)
	return out, err
}

// PublishResults replaces the race's standings on the backend.
func (s *RESTSource) PublishResults(ctx context.Context, raceID string, results []race.Result) error {
	body, err := json.Marshal(results)
	if err != nil {
		return err
	}
	_, err = s.breaker.Execute(func() ([]byte, error) {
		return s.do(ctx, http.MethodPut, "/races/"+url.PathEscape(raceID)+"/results", body)
	})
	recordOutcome("publish", err)
	return normalizeBreakerErr(err)
}

func (s *RESTSource) get(ctx context.Context, resource, path string, out any) error {
	body, err := s.breaker.Execute(func() ([]byte, error) {
		return s.do(ctx, http.MethodGet, path, nil)
	})
	recordOutcome(resource, err)
	if err != nil {
		return normalizeBreakerErr(err)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return errs.Wrap(err, errs.CodeUpstream, domain, "decode %s", resource)
	}
	return nil
}

func (s *RESTSource) do(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token, ok := BearerToken(ctx); ok {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, errs.Wrap(err, errs.CodeUpstream, domain, "%s %s", method, path)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errs.Wrap(err, errs.CodeUpstream, domain, "read %s", path)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, errs.NotFound(domain, "%s not found", path)
	case resp.StatusCode == http.StatusUnauthorized:
		return nil, errs.New(errs.CodeUnauthorized, domain, "%s %s: backend rejected credentials", method, path)
	case resp.StatusCode == http.StatusForbidden:
		return nil, errs.New(errs.CodeForbidden, domain, "%s %s: backend denied access", method, path)
	case resp.StatusCode == http.StatusConflict:
		return nil, errs.Conflict(domain, "%s %s: %s", method, path, strings.TrimSpace(string(payload)))
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return nil, errs.InvalidInput(domain, "%s %s: %d %s", method, path, resp.StatusCode, strings.TrimSpace(string(payload)))
	case resp.StatusCode >= 500:
		return nil, errs.New(errs.CodeUpstream, domain, "%s %s: status %d", method, path, resp.StatusCode)
	}
	return payload, nil
}

func normalizeBreakerErr(err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return errs.Wrap(err, errs.CodeUnavailable, domain, "race backend unavailable")
	}
	return err
}

func recordOutcome(resource string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = errs.CodeOf(err)
		if outcome == "" {
			outcome = "error"
		}
	}
	metrics.SourceRequests.WithLabelValues(resource, strings.ToLower(outcome)).Inc()
}
