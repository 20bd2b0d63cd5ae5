package sfbulk

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"net/http"

	"github.com/rudderlabs/rudder-go-kit/logger"
)

// Job controls exactly one remote job. A handle from NewJob creates the
// job on first use; a handle from Client.Job drives an already existing
// one. Not safe for concurrent use.
type Job struct {
	client *Client
	spec   JobSpec
	id     string
	info   *JobInfo
}

// NewJob returns a controller for a job that does not exist remotely yet.
func (c *Client) NewJob(spec JobSpec) *Job {
	return &Job{client: c, spec: spec}
}

// Job attaches to an existing job by id, for status and lifecycle calls.
func (c *Client) Job(id string) *Job {
	return &Job{client: c, id: id}
}

// ID is the remote job id, empty until the job exists.
func (j *Job) ID() string { return j.id }

func (s JobSpec) validate() error {
	if s.Operation == "" {
		return &ConfigError{Field: "Operation"}
	}
	if s.Object == "" {
		return &ConfigError{Field: "Object"}
	}
	if s.Operation == OperationUpsert && s.ExternalIDFieldName == "" {
		return &ConfigError{Field: "ExternalIDFieldName"}
	}
	return nil
}

// Create creates the remote job. Calling it again is a no-op returning the
// cached status. Server-side batch retry is always disabled: a retried
// batch can reorder or duplicate result segments.
func (j *Job) Create(ctx context.Context) (*JobInfo, error) {
	if j.id != "" {
		if j.info != nil {
			return j.info, nil
		}
		return j.Info(ctx)
	}
	if err := j.spec.validate(); err != nil {
		return nil, err
	}

	mode := j.spec.ConcurrencyMode
	if mode == "" {
		mode = ConcurrencyParallel
	}
	payload, err := xml.Marshal(jobRequest{
		XMLNS:               asyncNamespace,
		Operation:           string(j.spec.Operation),
		Object:              j.spec.Object,
		ExternalIDFieldName: j.spec.ExternalIDFieldName,
		ConcurrencyMode:     string(mode),
		ContentType:         "CSV",
	})
	if err != nil {
		return nil, fmt.Errorf("marshalling job request: %w", err)
	}

	headers := map[string]string{headerDisableBatchRetry: "TRUE"}
	if j.spec.PKChunking {
		headers[headerEnablePKChunking] = "TRUE"
	}

	var info JobInfo
	if err := j.client.doXML(ctx, apiRequest{
		op:          "create_job",
		method:      http.MethodPost,
		body:        bytes.NewReader(payload),
		contentType: contentTypeXML,
		headers:     headers,
	}, &info); err != nil {
		return nil, err
	}

	j.id = info.ID
	j.info = &info
	j.client.logger.Infon("created job",
		logger.NewStringField("jobID", info.ID),
		logger.NewStringField("operation", string(info.Operation)),
		logger.NewStringField("object", info.Object),
	)
	return &info, nil
}

// Info fetches the current job status. It always asks the service, there
// is no caching on reads.
func (j *Job) Info(ctx context.Context) (*JobInfo, error) {
	if j.id == "" {
		return nil, ErrJobNotCreated
	}
	var info JobInfo
	if err := j.client.doXML(ctx, apiRequest{
		op:     "job_info",
		method: http.MethodGet,
		path:   "/" + j.id,
	}, &info); err != nil {
		return nil, err
	}
	j.info = &info
	return &info, nil
}

// Close transitions the job to Closed: no more batches, queued work keeps
// processing.
func (j *Job) Close(ctx context.Context) (*JobInfo, error) {
	return j.setState(ctx, JobClosed)
}

// Abort transitions the job to Aborted. Terminal, the job cannot be
// reopened.
func (j *Job) Abort(ctx context.Context) (*JobInfo, error) {
	return j.setState(ctx, JobAborted)
}

func (j *Job) setState(ctx context.Context, state JobState) (*JobInfo, error) {
	if j.id == "" {
		return nil, ErrJobNotCreated
	}
	payload, err := xml.Marshal(jobRequest{XMLNS: asyncNamespace, State: string(state)})
	if err != nil {
		return nil, fmt.Errorf("marshalling job state request: %w", err)
	}
	op := "close_job"
	if state == JobAborted {
		op = "abort_job"
	}

	var info JobInfo
	if err := j.client.doXML(ctx, apiRequest{
		op:          op,
		method:      http.MethodPost,
		path:        "/" + j.id,
		body:        bytes.NewReader(payload),
		contentType: contentTypeXML,
	}, &info); err != nil {
		return nil, err
	}

	j.info = &info
	j.client.logger.Infon("job state updated",
		logger.NewStringField("jobID", j.id),
		logger.NewStringField("state", string(info.State)),
	)
	return &info, nil
}

// Succeeded reports whether every batch completed and nothing failed.
// A job with zero batches counts as succeeded, callers should only consult
// the predicates after submitting work.
func (j JobInfo) Succeeded() bool {
	return j.NumberBatchesCompleted == j.NumberBatchesTotal &&
		j.NumberBatchesFailed == 0 &&
		j.NumberRecordsFailed == 0
}

// Failed reports whether any batch or any record failed.
func (j JobInfo) Failed() bool {
	return j.NumberBatchesFailed > 0 || j.NumberRecordsFailed > 0
}
