package sfbulk

import (
	"context"
	"io"
	"net/http"

	"github.com/rudderlabs/rudder-go-kit/logger"
	"github.com/samber/lo"
)

// AddBatch submits payload as a new batch, creating the job first if this
// handle has not created one yet. Query jobs take the SOQL text as
// payload, load jobs take CSV with a header row. A query job meaningfully
// takes a single batch, a load job as many as needed while Open.
func (j *Job) AddBatch(ctx context.Context, payload io.Reader) (*BatchInfo, error) {
	if j.id == "" {
		if _, err := j.Create(ctx); err != nil {
			return nil, err
		}
	}
	var batch BatchInfo
	if err := j.client.doXML(ctx, apiRequest{
		op:          "add_batch",
		method:      http.MethodPost,
		path:        "/" + j.id + "/batch",
		body:        payload,
		contentType: contentTypeCSV,
	}, &batch); err != nil {
		return nil, err
	}
	j.client.logger.Infon("added batch",
		logger.NewStringField("jobID", j.id),
		logger.NewStringField("batchID", batch.ID),
		logger.NewStringField("state", string(batch.State)),
	)
	return &batch, nil
}

// Batches lists the job's batches in server order, excluding batches in
// state NotProcessed: for a PK chunked query the submitted batch ends up
// there as a placeholder with no results of its own.
func (j *Job) Batches(ctx context.Context) ([]BatchInfo, error) {
	if j.id == "" {
		return nil, ErrJobNotCreated
	}
	var list batchInfoList
	if err := j.client.doXML(ctx, apiRequest{
		op:     "list_batches",
		method: http.MethodGet,
		path:   "/" + j.id + "/batch",
	}, &list); err != nil {
		return nil, err
	}
	return lo.Filter(list.Batches, func(b BatchInfo, _ int) bool {
		return b.State != BatchNotProcessed
	}), nil
}

// BatchInfo fetches the status of one batch.
func (j *Job) BatchInfo(ctx context.Context, batchID string) (*BatchInfo, error) {
	if j.id == "" {
		return nil, ErrJobNotCreated
	}
	var batch BatchInfo
	if err := j.client.doXML(ctx, apiRequest{
		op:     "batch_info",
		method: http.MethodGet,
		path:   "/" + j.id + "/batch/" + batchID,
	}, &batch); err != nil {
		return nil, err
	}
	return &batch, nil
}

// BatchRequest streams back the payload originally submitted for the
// batch, exactly as the service stored it. The caller owns the body.
func (j *Job) BatchRequest(ctx context.Context, batchID string) (io.ReadCloser, error) {
	if j.id == "" {
		return nil, ErrJobNotCreated
	}
	return j.client.doStream(ctx, apiRequest{
		op:     "batch_request",
		method: http.MethodGet,
		path:   "/" + j.id + "/batch/" + batchID + "/request",
	})
}
