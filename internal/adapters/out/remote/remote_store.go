package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	nurl "net/url"
	"sort"
	"strconv"

	"github.com/suchimauz/speaker-session-booking/internal/config"
	"github.com/suchimauz/speaker-session-booking/internal/core/domain"
	"github.com/suchimauz/speaker-session-booking/internal/core/ports/out"
)

// BundleResponse конверт поисковой выдачи удаленного хранилища
type BundleResponse struct {
	Entry []struct {
		Resource json.RawMessage `json:"resource"`
	} `json:"entry"`
}

type availabilityResponse struct {
	Available bool `json:"available"`
}

type calendarResponse struct {
	Days map[string]bool `json:"days"`
}

type createAssignmentRequest struct {
	SpeakerID   string             `json:"speakerId"`
	SessionDate domain.SessionDate `json:"sessionDate"`
	Specialty   domain.Specialty   `json:"specialty"`
}

type RemoteStore struct {
	client   *http.Client
	baseURL  string
	username string
	password string
	logger   out.LoggerPort
}

func NewRemoteStore(cfg *config.Config, logger out.LoggerPort) *RemoteStore {
	return &RemoteStore{
		client:   &http.Client{Timeout: cfg.Store.Timeout},
		baseURL:  cfg.Store.RemoteURL,
		username: cfg.Store.Username,
		password: cfg.Store.Password,
		logger:   logger.WithModule("RemoteStore"),
	}
}

func (s *RemoteStore) GetSpeaker(ctx context.Context, speakerID string) (*domain.Speaker, error) {
	s.logger.Debug("remote.speaker.fetch", out.LogFields{
		"speakerId": speakerID,
	})

	var speaker domain.Speaker
	url := fmt.Sprintf("%s/speakers/%s", s.baseURL, nurl.PathEscape(speakerID))
	if err := s.do(ctx, "remote.speaker.fetch", http.MethodGet, url, nil, &speaker); err != nil {
		return nil, err
	}

	// Пустой или чужой id значит, что ответ не про этого спикера
	if speaker.ID != speakerID {
		s.logger.Error("remote.speaker.fetch.id_mismatch", out.LogFields{
			"speakerId":  speakerID,
			"responseId": speaker.ID,
		})
		return nil, fmt.Errorf("remote.speaker.fetch: response id %q: %w", speaker.ID, domain.ErrStoreUnavailable)
	}

	return &speaker, nil
}

func (s *RemoteStore) SearchSpeakers(ctx context.Context, filter domain.SpeakerFilter) ([]domain.Speaker, error) {
	query := nurl.Values{}
	if filter.Name != "" {
		query.Add("name", filter.Name)
	}
	if filter.Specialty != "" {
		query.Add("specialty", string(filter.Specialty))
	}

	url := fmt.Sprintf("%s/speakers", s.baseURL)
	if len(query) > 0 {
		url += "?" + query.Encode()
	}

	var bundle BundleResponse
	if err := s.do(ctx, "remote.speaker.search", http.MethodGet, url, nil, &bundle); err != nil {
		return nil, err
	}

	speakers := make([]domain.Speaker, 0, len(bundle.Entry))
	for _, entry := range bundle.Entry {
		var speaker domain.Speaker
		if err := json.Unmarshal(entry.Resource, &speaker); err != nil {
			s.logger.Error("remote.speaker.search.decode_resource_failed", out.LogFields{
				"error": err.Error(),
			})
			return nil, fmt.Errorf("remote.speaker.search.decode_resource_failed: %w: %w", domain.ErrStoreUnavailable, err)
		}
		// Сервер может проигнорировать параметры запроса, правила поиска одни для всех хранилищ
		if !filter.Matches(speaker) {
			continue
		}
		speakers = append(speakers, speaker)
	}

	return speakers, nil
}

func (s *RemoteStore) ListAssignments(ctx context.Context, speakerID string) ([]domain.Assignment, error) {
	url := fmt.Sprintf("%s/speakers/%s/assignments", s.baseURL, nurl.PathEscape(speakerID))

	var bundle BundleResponse
	if err := s.do(ctx, "remote.assignment.list", http.MethodGet, url, nil, &bundle); err != nil {
		return nil, err
	}

	assignments := make([]domain.Assignment, 0, len(bundle.Entry))
	for _, entry := range bundle.Entry {
		var assignment domain.Assignment
		if err := json.Unmarshal(entry.Resource, &assignment); err != nil {
			s.logger.Error("remote.assignment.list.decode_resource_failed", out.LogFields{
				"speakerId": speakerID,
				"error":     err.Error(),
			})
			return nil, fmt.Errorf("remote.assignment.list.decode_resource_failed: %w: %w", domain.ErrStoreUnavailable, err)
		}
		assignments = append(assignments, assignment)
	}

	sort.Slice(assignments, func(i, j int) bool {
		return assignments[i].SessionDate.Before(assignments[j].SessionDate)
	})
	return assignments, nil
}

func (s *RemoteStore) CheckAvailability(ctx context.Context, speakerID string, date domain.SessionDate) (bool, error) {
	query := nurl.Values{}
	query.Add("date", date.String())
	url := fmt.Sprintf("%s/speakers/%s/availability?%s", s.baseURL, nurl.PathEscape(speakerID), query.Encode())

	var resp availabilityResponse
	if err := s.do(ctx, "remote.availability.check", http.MethodGet, url, nil, &resp); err != nil {
		return false, err
	}

	return resp.Available, nil
}

func (s *RemoteStore) CreateAssignment(ctx context.Context, speakerID string, date domain.SessionDate, specialty domain.Specialty) (domain.Assignment, error) {
	body := createAssignmentRequest{
		SpeakerID:   speakerID,
		SessionDate: date,
		Specialty:   specialty,
	}

	var assignment domain.Assignment
	url := fmt.Sprintf("%s/assignments", s.baseURL)
	if err := s.do(ctx, "remote.assignment.create", http.MethodPost, url, body, &assignment); err != nil {
		return domain.Assignment{}, err
	}

	s.logger.Info("remote.assignment.created", out.LogFields{
		"assignmentId": assignment.ID,
		"speakerId":    speakerID,
		"date":         date.String(),
	})

	return assignment, nil
}

func (s *RemoteStore) GetAvailabilityWindow(ctx context.Context, speakerID string, from domain.SessionDate, daysAhead int) (domain.AvailabilityWindow, error) {
	query := nurl.Values{}
	query.Add("from", from.String())
	query.Add("daysAhead", strconv.Itoa(daysAhead))
	url := fmt.Sprintf("%s/speakers/%s/calendar?%s", s.baseURL, nurl.PathEscape(speakerID), query.Encode())

	var resp calendarResponse
	if err := s.do(ctx, "remote.availability.window", http.MethodGet, url, nil, &resp); err != nil {
		return nil, err
	}

	window := make(domain.AvailabilityWindow, len(resp.Days))
	for raw, available := range resp.Days {
		date, err := domain.ParseSessionDate(raw)
		if err != nil {
			s.logger.Warn("remote.availability.window.bad_date", out.LogFields{
				"speakerId": speakerID,
				"value":     raw,
			})
			continue
		}
		window[date] = available
	}

	return window, nil
}

// do выполняет запрос и переводит коды ответа в доменные ошибки:
// 404 -> ErrSpeakerNotFound, 409 -> ErrConflictOnCommit, остальное -> ErrStoreUnavailable.
func (s *RemoteStore) do(ctx context.Context, event, method, url string, body, dst interface{}) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s.encode_failed: %w", event, err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		s.logger.Error(event+"_failed", out.LogFields{
			"error": err.Error(),
		})
		return fmt.Errorf("%s_failed: %w", event, err)
	}

	req.SetBasicAuth(s.username, s.password)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.client.Do(req)
	if err != nil {
		s.logger.Error(event+"_failed", out.LogFields{
			"error": err.Error(),
		})
		return fmt.Errorf("%s_failed: %w: %w", event, domain.ErrStoreUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%s: %w", event, domain.ErrSpeakerNotFound)
	case resp.StatusCode == http.StatusConflict:
		s.logger.Warn(event+".conflict", out.LogFields{})
		return fmt.Errorf("%s: %w", event, domain.ErrConflictOnCommit)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		s.logger.Error(event+"_failed", out.LogFields{
			"status": resp.StatusCode,
		})
		return fmt.Errorf("%s_failed: %w: unexpected status code: %d", event, domain.ErrStoreUnavailable, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		s.logger.Error(event+".decode_response_failed", out.LogFields{
			"error": err.Error(),
		})
		return fmt.Errorf("%s.decode_response_failed: %w: %w", event, domain.ErrStoreUnavailable, err)
	}

	return nil
}
