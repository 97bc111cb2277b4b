// Package api serves job records and CDN credentials to browsers, both
// behind API Gateway and over plain HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/tendant/simple-vod/internal/jobs"
	"github.com/tendant/simple-vod/internal/metrics"
	"github.com/tendant/simple-vod/internal/signer"
	"github.com/tendant/simple-vod/pkg/schema"
)

// ErrSigningDisabled is returned when no CloudFront key is configured.
var ErrSigningDisabled = &Error{Status: http.StatusServiceUnavailable, Message: "signed cookies are not configured"}

// JobList is the response of ListJobs.
type JobList struct {
	Jobs []jobs.Record `json:"jobs"`
}

// Service implements the read operations of the API.
type Service struct {
	store     jobs.Store
	signer    *signer.Signer
	cdnDomain string
	metrics   *metrics.Recorder
}

// NewService wires a Service. A nil signer disables SignedCookies.
func NewService(store jobs.Store, s *signer.Signer, cdnDomain string, rec *metrics.Recorder) *Service {
	return &Service{store: store, signer: s, cdnDomain: cdnDomain, metrics: rec}
}

func (s *Service) ListJobs(ctx context.Context) (*JobList, error) {
	records, err := s.store.ListJobs(ctx)
	if err != nil {
		return nil, err
	}
	return &JobList{Jobs: records}, nil
}

// GetJob returns the record for jobID or a 404 Error.
func (s *Service) GetJob(ctx context.Context, jobID string) (*jobs.Record, error) {
	record, err := s.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, NotFound(fmt.Sprintf("job %s not found", jobID))
	}
	return record, nil
}

// GetFile returns the first record whose job name starts with filename, or
// an empty object when there is none.
func (s *Service) GetFile(ctx context.Context, filename string) (any, error) {
	record, err := s.store.FindByFilename(ctx, filename)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return struct{}{}, nil
	}
	return record, nil
}

// SignedCookies signs a wildcard policy for the CDN domain.
func (s *Service) SignedCookies(ctx context.Context) (*schema.SignedCookies, error) {
	if s.signer == nil {
		s.metrics.SignedCookies(metrics.OutcomeSkipped)
		return nil, ErrSigningDisabled
	}
	cookies, err := s.signer.Sign(s.cdnDomain)
	if err != nil {
		s.metrics.SignedCookies(metrics.OutcomeFailed)
		if errors.Is(err, signer.ErrSigning) {
			return nil, &Error{Status: http.StatusInternalServerError, Message: err.Error(), Code: "SigningError"}
		}
		return nil, err
	}
	s.metrics.SignedCookies(metrics.OutcomeOK)
	return cookies, nil
}
