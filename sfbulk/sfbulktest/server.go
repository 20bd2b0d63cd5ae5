// Package sfbulktest provides an in-memory stand-in for the bulk endpoint,
// for tests and local development. It speaks the login exchange and the
// job, batch and result resources, keeps its state in memory and lets jobs
// be seeded up front or created through the API like the real thing.
package sfbulktest

import (
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/rudderlabs/salesforce-bulk-go-sdk/sfbulk"
)

// Job seeds one job on the server. Zero fields are filled in at Build
// time: missing ids are generated, a seeded job defaults to state Closed
// and seeded batches to Completed, since seeding is mostly about serving
// results.
type Job struct {
	ID      string
	Info    sfbulk.JobInfo
	Batches []Batch

	// CreateHeader records the headers of the create call for jobs
	// created through the API.
	CreateHeader http.Header
}

// Batch seeds one batch of a job.
type Batch struct {
	ID       string
	Info     sfbulk.BatchInfo
	Request  []byte
	Segments []Segment
}

// Segment seeds one result segment of a batch.
type Segment struct {
	ID   string
	Data []byte
}

// NewBuilder returns a new ServerBuilder.
func NewBuilder() *ServerBuilder {
	return &ServerBuilder{}
}

// ServerBuilder is a builder for a fake bulk API server.
type ServerBuilder struct {
	username string
	password string
	jobs     []Job
}

// WithCredentials makes the login exchange validate against the given
// username and password. Without it any login is accepted.
func (b *ServerBuilder) WithCredentials(username, password string) *ServerBuilder {
	b.username = username
	b.password = password
	return b
}

// WithJob seeds a job on the server.
func (b *ServerBuilder) WithJob(job Job) *ServerBuilder {
	b.jobs = append(b.jobs, job)
	return b
}

// Build builds the fake server.
func (b *ServerBuilder) Build() *Server {
	s := &Server{
		username: b.username,
		password: b.password,
		sessions: map[string]struct{}{},
		jobs:     map[string]*Job{},
	}
	for i := range b.jobs {
		job := b.jobs[i]
		normalizeJob(&job)
		s.jobs[job.ID] = &job
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.handler))
	return s
}

func normalizeJob(job *Job) {
	if job.ID == "" {
		job.ID = uuid.New().String()
	}
	job.Info.ID = job.ID
	if job.Info.State == "" {
		job.Info.State = sfbulk.JobClosed
	}
	for i := range job.Batches {
		batch := &job.Batches[i]
		if batch.ID == "" {
			batch.ID = uuid.New().String()
		}
		batch.Info.ID = batch.ID
		batch.Info.JobID = job.ID
		if batch.Info.State == "" {
			batch.Info.State = sfbulk.BatchCompleted
		}
		for k := range batch.Segments {
			if batch.Segments[k].ID == "" {
				batch.Segments[k].ID = uuid.New().String()
			}
		}
	}
}

// Server is a fake bulk API endpoint backed by httptest.
type Server struct {
	*httptest.Server

	username string
	password string

	mu         sync.Mutex
	loginCount int
	sessions   map[string]struct{}
	jobs       map[string]*Job
}

// LoginCount reports how many login calls the server served.
func (s *Server) LoginCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loginCount
}

// Jobs returns a snapshot of every job the server knows, seeded and
// created alike.
func (s *Server) Jobs() []Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	return lo.Map(lo.Values(s.jobs), func(job *Job, _ int) Job {
		return snapshotJob(job)
	})
}

// JobByID returns a snapshot of one job.
func (s *Server) JobByID(id string) (Job, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return Job{}, false
	}
	return snapshotJob(job), true
}

func snapshotJob(job *Job) Job {
	out := *job
	out.Batches = append([]Batch(nil), job.Batches...)
	return out
}

const loginResponseBody = `<?xml version="1.0" encoding="UTF-8"?>
<soapenv:Envelope xmlns:soapenv="http://schemas.xmlsoap.org/soap/envelope/">
 <soapenv:Body>
  <loginResponse>
   <result>
    <serverUrl>%s</serverUrl>
    <sessionId>%s</sessionId>
    <userInfo>
     <sessionSecondsValid>7200</sessionSecondsValid>
    </userInfo>
   </result>
  </loginResponse>
 </soapenv:Body>
</soapenv:Envelope>`

const loginFaultBody = `<?xml version="1.0" encoding="UTF-8"?>
<soapenv:Envelope xmlns:soapenv="http://schemas.xmlsoap.org/soap/envelope/">
 <soapenv:Body>
  <soapenv:Fault>
   <faultcode>sf:INVALID_LOGIN</faultcode>
   <faultstring>INVALID_LOGIN: Invalid username, password, security token; or user locked out.</faultstring>
   <detail>
    <sf:LoginFault xmlns:sf="urn:fault.partner.soap.sforce.com">
     <sf:exceptionCode>INVALID_LOGIN</sf:exceptionCode>
     <sf:exceptionMessage>Invalid username, password, security token; or user locked out.</sf:exceptionMessage>
    </sf:LoginFault>
   </detail>
  </soapenv:Fault>
 </soapenv:Body>
</soapenv:Envelope>`

const invalidSessionBody = `<?xml version="1.0" encoding="UTF-8"?>
<error xmlns="http://www.force.com/2009/06/asyncapi/dataload">
 <exceptionCode>InvalidSessionId</exceptionCode>
 <exceptionMessage>Invalid session id</exceptionMessage>
</error>`

type loginRequestDoc struct {
	Body struct {
		Login struct {
			Username string `xml:"username"`
			Password string `xml:"password"`
		} `xml:"login"`
	} `xml:"Body"`
}

type jobInfoDoc struct {
	XMLName xml.Name `xml:"jobInfo"`
	XMLNS   string   `xml:"xmlns,attr"`
	sfbulk.JobInfo
}

type batchInfoDoc struct {
	XMLName xml.Name `xml:"batchInfo"`
	XMLNS   string   `xml:"xmlns,attr"`
	sfbulk.BatchInfo
}

type batchInfoListDoc struct {
	XMLName xml.Name           `xml:"batchInfoList"`
	XMLNS   string             `xml:"xmlns,attr"`
	Batches []sfbulk.BatchInfo `xml:"batchInfo"`
}

type resultListDoc struct {
	XMLName xml.Name `xml:"result-list"`
	XMLNS   string   `xml:"xmlns,attr"`
	Results []string `xml:"result"`
}

type jobRequestDoc struct {
	Operation           string `xml:"operation"`
	Object              string `xml:"object"`
	ExternalIDFieldName string `xml:"externalIdFieldName"`
	State               string `xml:"state"`
	ConcurrencyMode     string `xml:"concurrencyMode"`
	ContentType         string `xml:"contentType"`
}

const namespace = "http://www.force.com/2009/06/asyncapi/dataload"

func (s *Server) handler(w http.ResponseWriter, r *http.Request) {
	if strings.HasPrefix(r.URL.Path, "/services/Soap/u/") {
		s.handleLogin(w, r)
		return
	}
	if strings.HasPrefix(r.URL.Path, "/services/async/") {
		s.handleAsync(w, r)
		return
	}
	http.NotFound(w, r)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	var req loginRequestDoc
	if err := xml.Unmarshal(body, &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	s.loginCount++
	authorized := s.username == "" ||
		(req.Body.Login.Username == s.username && req.Body.Login.Password == s.password)
	var sessionID string
	if authorized {
		sessionID = uuid.New().String()
		s.sessions[sessionID] = struct{}{}
	}
	s.mu.Unlock()

	w.Header().Set("Content-Type", "text/xml; charset=UTF-8")
	if !authorized {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(loginFaultBody))
		return
	}
	serverURL := s.URL + r.URL.Path + "/00D000000000001"
	_, _ = fmt.Fprintf(w, loginResponseBody, serverURL, sessionID)
}

func (s *Server) handleAsync(w http.ResponseWriter, r *http.Request) {
	if !s.authorized(w, r) {
		return
	}
	// /services/async/{version}/job[/{jobID}[/batch[/{batchID}[/request|/result[/{segmentID}]]]]]
	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	if len(parts) < 4 || parts[3] != "job" {
		http.NotFound(w, r)
		return
	}
	rest := parts[4:]

	switch {
	case len(rest) == 0 && r.Method == http.MethodPost:
		s.handleCreateJob(w, r)
	case len(rest) == 1 && r.Method == http.MethodGet:
		s.handleJobInfo(w, rest[0])
	case len(rest) == 1 && r.Method == http.MethodPost:
		s.handleJobState(w, r, rest[0])
	case len(rest) == 2 && rest[1] == "batch" && r.Method == http.MethodPost:
		s.handleAddBatch(w, r, rest[0])
	case len(rest) == 2 && rest[1] == "batch" && r.Method == http.MethodGet:
		s.handleListBatches(w, rest[0])
	case len(rest) == 3 && rest[1] == "batch" && r.Method == http.MethodGet:
		s.handleBatchInfo(w, rest[0], rest[2])
	case len(rest) == 4 && rest[3] == "request" && r.Method == http.MethodGet:
		s.handleBatchRequest(w, rest[0], rest[2])
	case len(rest) == 4 && rest[3] == "result" && r.Method == http.MethodGet:
		s.handleResultList(w, rest[0], rest[2])
	case len(rest) == 5 && rest[3] == "result" && r.Method == http.MethodGet:
		s.handleSegment(w, rest[0], rest[2], rest[4])
	default:
		http.NotFound(w, r)
	}
}

func (s *Server) authorized(w http.ResponseWriter, r *http.Request) bool {
	sessionID := r.Header.Get("X-SFDC-Session")
	s.mu.Lock()
	_, ok := s.sessions[sessionID]
	s.mu.Unlock()
	if !ok {
		w.Header().Set("Content-Type", "application/xml")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(invalidSessionBody))
	}
	return ok
}

func (s *Server) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	var req jobRequestDoc
	if !decodeXMLBody(w, r, &req) {
		return
	}
	job := &Job{
		ID:           uuid.New().String(),
		CreateHeader: r.Header.Clone(),
	}
	job.Info = sfbulk.JobInfo{
		ID:                  job.ID,
		Operation:           sfbulk.Operation(req.Operation),
		Object:              req.Object,
		ExternalIDFieldName: req.ExternalIDFieldName,
		State:               sfbulk.JobOpen,
		ConcurrencyMode:     sfbulk.ConcurrencyMode(req.ConcurrencyMode),
		ContentType:         req.ContentType,
	}

	s.mu.Lock()
	s.jobs[job.ID] = job
	s.mu.Unlock()

	writeXML(w, http.StatusCreated, jobInfoDoc{XMLNS: namespace, JobInfo: job.Info})
}

func (s *Server) handleJobInfo(w http.ResponseWriter, jobID string) {
	s.mu.Lock()
	job, ok := s.jobs[jobID]
	var info sfbulk.JobInfo
	if ok {
		info = job.Info
	}
	s.mu.Unlock()
	if !ok {
		http.Error(w, "no such job", http.StatusNotFound)
		return
	}
	writeXML(w, http.StatusOK, jobInfoDoc{XMLNS: namespace, JobInfo: info})
}

func (s *Server) handleJobState(w http.ResponseWriter, r *http.Request, jobID string) {
	var req jobRequestDoc
	if !decodeXMLBody(w, r, &req) {
		return
	}
	s.mu.Lock()
	job, ok := s.jobs[jobID]
	var info sfbulk.JobInfo
	if ok {
		job.Info.State = sfbulk.JobState(req.State)
		info = job.Info
	}
	s.mu.Unlock()
	if !ok {
		http.Error(w, "no such job", http.StatusNotFound)
		return
	}
	writeXML(w, http.StatusOK, jobInfoDoc{XMLNS: namespace, JobInfo: info})
}

func (s *Server) handleAddBatch(w http.ResponseWriter, r *http.Request, jobID string) {
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	batch := Batch{
		ID:      uuid.New().String(),
		Request: payload,
	}

	s.mu.Lock()
	job, ok := s.jobs[jobID]
	if ok {
		batch.Info = sfbulk.BatchInfo{
			ID:    batch.ID,
			JobID: jobID,
			State: sfbulk.BatchQueued,
		}
		job.Batches = append(job.Batches, batch)
		job.Info.NumberBatchesTotal++
		job.Info.NumberBatchesQueued++
	}
	s.mu.Unlock()
	if !ok {
		http.Error(w, "no such job", http.StatusNotFound)
		return
	}
	writeXML(w, http.StatusCreated, batchInfoDoc{XMLNS: namespace, BatchInfo: batch.Info})
}

func (s *Server) handleListBatches(w http.ResponseWriter, jobID string) {
	s.mu.Lock()
	job, ok := s.jobs[jobID]
	var infos []sfbulk.BatchInfo
	if ok {
		infos = lo.Map(job.Batches, func(b Batch, _ int) sfbulk.BatchInfo { return b.Info })
	}
	s.mu.Unlock()
	if !ok {
		http.Error(w, "no such job", http.StatusNotFound)
		return
	}
	writeXML(w, http.StatusOK, batchInfoListDoc{XMLNS: namespace, Batches: infos})
}

func (s *Server) handleBatchInfo(w http.ResponseWriter, jobID, batchID string) {
	batch, ok := s.findBatch(jobID, batchID)
	if !ok {
		http.Error(w, "no such batch", http.StatusNotFound)
		return
	}
	writeXML(w, http.StatusOK, batchInfoDoc{XMLNS: namespace, BatchInfo: batch.Info})
}

func (s *Server) handleBatchRequest(w http.ResponseWriter, jobID, batchID string) {
	batch, ok := s.findBatch(jobID, batchID)
	if !ok {
		http.Error(w, "no such batch", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=UTF-8")
	_, _ = w.Write(batch.Request)
}

func (s *Server) handleResultList(w http.ResponseWriter, jobID, batchID string) {
	batch, ok := s.findBatch(jobID, batchID)
	if !ok {
		http.Error(w, "no such batch", http.StatusNotFound)
		return
	}
	ids := lo.Map(batch.Segments, func(seg Segment, _ int) string { return seg.ID })
	writeXML(w, http.StatusOK, resultListDoc{XMLNS: namespace, Results: ids})
}

func (s *Server) handleSegment(w http.ResponseWriter, jobID, batchID, segmentID string) {
	batch, ok := s.findBatch(jobID, batchID)
	if !ok {
		http.Error(w, "no such batch", http.StatusNotFound)
		return
	}
	seg, ok := lo.Find(batch.Segments, func(seg Segment) bool { return seg.ID == segmentID })
	if !ok {
		http.Error(w, "no such result", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=UTF-8")
	_, _ = w.Write(seg.Data)
}

func (s *Server) findBatch(jobID, batchID string) (Batch, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return Batch{}, false
	}
	return lo.Find(job.Batches, func(b Batch) bool { return b.ID == batchID })
}

func decodeXMLBody(w http.ResponseWriter, r *http.Request, out any) bool {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return false
	}
	if err := xml.Unmarshal(body, out); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}

func writeXML(w http.ResponseWriter, statusCode int, doc any) {
	payload, err := xml.Marshal(doc)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(statusCode)
	_, _ = w.Write([]byte(xml.Header))
	_, _ = w.Write(payload)
}
