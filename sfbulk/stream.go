package sfbulk

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"regexp"

	"github.com/rudderlabs/rudder-go-kit/stats"
)

// Results merges the result segments of every eligible batch into one CSV
// stream: a single header up front, junk and blank lines dropped, every
// line terminated with exactly one newline. Batch enumeration and segment
// resolution happen up front, segment bodies are fetched lazily one at a
// time and are never buffered whole. Closing the reader releases whatever
// segment is in flight.
func (j *Job) Results(ctx context.Context) (io.ReadCloser, error) {
	if j.id == "" {
		return nil, ErrJobNotCreated
	}
	batches, err := j.Batches(ctx)
	if err != nil {
		return nil, err
	}
	segments, err := j.resolveSegments(ctx, batches)
	if err != nil {
		return nil, err
	}
	return j.newMergedStream(ctx, segments), nil
}

func (j *Job) newMergedStream(ctx context.Context, segments []segmentRef) io.ReadCloser {
	pr, pw := io.Pipe()
	m := &mergedStream{
		job:          j,
		segments:     segments,
		pw:           pw,
		filter:       newLineFilter(j.client.junkPatterns),
		linesOut:     j.client.statsFactory.NewStat(statResultLines, stats.CountType),
		linesDropped: j.client.statsFactory.NewStat(statResultDroppedLines, stats.CountType),
	}
	go m.run(ctx)
	return pr
}

type mergedStream struct {
	job          *Job
	segments     []segmentRef
	pw           *io.PipeWriter
	filter       *lineFilter
	linesOut     stats.Measurement
	linesDropped stats.Measurement
}

func (m *mergedStream) run(ctx context.Context) {
	m.pw.CloseWithError(m.pump(ctx))
}

func (m *mergedStream) pump(ctx context.Context) error {
	for _, seg := range m.segments {
		if err := m.copySegment(ctx, seg); err != nil {
			return err
		}
	}
	return nil
}

func (m *mergedStream) copySegment(ctx context.Context, seg segmentRef) error {
	body, err := m.job.SegmentReader(ctx, seg.batchID, seg.segmentID)
	if err != nil {
		return err
	}
	defer func() { _ = body.Close() }()

	sc := bufio.NewScanner(body)
	// default scanner buffer maxCapacity is 64K
	// set it to higher value to avoid read stop on read size error
	maxCapacity := int(m.job.client.maxLineBytes)
	buf := make([]byte, maxCapacity)
	sc.Buffer(buf, maxCapacity)
	sc.Split(scanRawLines)

	out := make([]byte, 0, 1024)
	for sc.Scan() {
		line := sc.Bytes()
		if !m.filter.keep(line) {
			m.linesDropped.Increment()
			continue
		}
		out = append(out[:0], line...)
		out = append(out, '\n')
		if _, err := m.pw.Write(out); err != nil {
			// reader closed early, stop pumping
			return err
		}
		m.linesOut.Increment()
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("reading segment %s of batch %s: %w", seg.segmentID, seg.batchID, err)
	}
	return nil
}

// scanRawLines is bufio.ScanLines without the \r trimming. Header
// comparison is byte exact, so a CRLF line and its LF twin must stay
// distinct.
func scanRawLines(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexByte(data, '\n'); i >= 0 {
		return i + 1, data[:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}

// lineFilter decides which lines of the raw segments survive into the
// merged stream. One filter spans the whole merge: the remembered header
// never resets on segment or batch boundaries.
type lineFilter struct {
	junk   []*regexp.Regexp
	header []byte
}

func newLineFilter(junk []*regexp.Regexp) *lineFilter {
	return &lineFilter{junk: junk}
}

// keep drops blank lines and junk lines, remembers the first surviving
// line as the header and drops every later byte-identical repeat of it.
func (f *lineFilter) keep(line []byte) bool {
	if len(bytes.TrimSpace(line)) == 0 {
		return false
	}
	for _, re := range f.junk {
		if re.Match(line) {
			return false
		}
	}
	if f.header == nil {
		f.header = bytes.Clone(line)
		return true
	}
	return !bytes.Equal(line, f.header)
}
