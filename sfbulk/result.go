package sfbulk

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"
)

// ResultSegments returns the ordered result segment ids of a batch. Small
// results have one segment, large ones several, zero is a valid answer.
func (j *Job) ResultSegments(ctx context.Context, batchID string) ([]string, error) {
	if j.id == "" {
		return nil, ErrJobNotCreated
	}
	var list resultList
	if err := j.client.doXML(ctx, apiRequest{
		op:     "list_results",
		method: http.MethodGet,
		path:   "/" + j.id + "/batch/" + batchID + "/result",
	}, &list); err != nil {
		return nil, err
	}
	return list.Results, nil
}

// SegmentReader opens one result segment as a raw stream, no decoding and
// no size cap. The caller owns the body.
func (j *Job) SegmentReader(ctx context.Context, batchID, segmentID string) (io.ReadCloser, error) {
	if j.id == "" {
		return nil, ErrJobNotCreated
	}
	return j.client.doStream(ctx, apiRequest{
		op:     "fetch_segment",
		method: http.MethodGet,
		path:   "/" + j.id + "/batch/" + batchID + "/result/" + segmentID,
	})
}

type segmentRef struct {
	batchID   string
	segmentID string
}

// resolveSegments flattens the batches into an ordered list of segment
// references. Lookups may fan out up to the configured worker bound, the
// returned order always follows batch order so downstream assembly stays
// deterministic.
func (j *Job) resolveSegments(ctx context.Context, batches []BatchInfo) ([]segmentRef, error) {
	perBatch := make([][]segmentRef, len(batches))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(j.client.resolveWorkers)
	for i, batch := range batches {
		g.Go(func() error {
			ids, err := j.ResultSegments(gctx, batch.ID)
			if err != nil {
				return fmt.Errorf("resolving result segments of batch %s: %w", batch.ID, err)
			}
			perBatch[i] = lo.Map(ids, func(id string, _ int) segmentRef {
				return segmentRef{batchID: batch.ID, segmentID: id}
			})
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return lo.Flatten(perBatch), nil
}
