package sfbulk

import "encoding/xml"

// asyncNamespace is the XML namespace of the Bulk API v1 job resources.
const asyncNamespace = "http://www.force.com/2009/06/asyncapi/dataload"

const (
	contentTypeXML = "text/xml; charset=UTF-8"
	contentTypeCSV = "text/csv; charset=UTF-8"

	headerSession           = "X-SFDC-Session"
	headerDisableBatchRetry = "Sforce-Disable-Batch-Retry"
	headerEnablePKChunking  = "Sforce-Enable-PKChunking"
)

// Operation is the bulk operation a job performs.
type Operation string

const (
	OperationInsert     Operation = "insert"
	OperationUpdate     Operation = "update"
	OperationUpsert     Operation = "upsert"
	OperationDelete     Operation = "delete"
	OperationHardDelete Operation = "hardDelete"
	OperationQuery      Operation = "query"
	OperationQueryAll   Operation = "queryAll"
)

// IsQuery reports whether the operation reads records instead of loading
// them. Query batches carry SOQL text, load batches carry CSV.
func (o Operation) IsQuery() bool {
	return o == OperationQuery || o == OperationQueryAll
}

// ConcurrencyMode controls how the remote service schedules the job's
// batches.
type ConcurrencyMode string

const (
	ConcurrencyParallel ConcurrencyMode = "Parallel"
	ConcurrencySerial   ConcurrencyMode = "Serial"
)

// JobState is the remote lifecycle state of a job.
type JobState string

const (
	JobOpen    JobState = "Open"
	JobClosed  JobState = "Closed"
	JobAborted JobState = "Aborted"
	JobFailed  JobState = "Failed"
)

// BatchState is the remote processing state of a single batch.
type BatchState string

const (
	BatchQueued       BatchState = "Queued"
	BatchInProgress   BatchState = "InProgress"
	BatchCompleted    BatchState = "Completed"
	BatchFailed       BatchState = "Failed"
	BatchNotProcessed BatchState = "NotProcessed"
)

// JobSpec describes the job to create. Operation and Object are required,
// ExternalIDFieldName only for upsert. ConcurrencyMode defaults to
// Parallel. PKChunking asks the service to split a query job into ranged
// batches server side.
type JobSpec struct {
	Operation           Operation
	Object              string
	ExternalIDFieldName string
	ConcurrencyMode     ConcurrencyMode
	PKChunking          bool
}

// jobRequest is the request document for creating a job and for state
// transitions. Element order follows the service schema.
type jobRequest struct {
	XMLName             xml.Name `xml:"jobInfo"`
	XMLNS               string   `xml:"xmlns,attr"`
	Operation           string   `xml:"operation,omitempty"`
	Object              string   `xml:"object,omitempty"`
	ExternalIDFieldName string   `xml:"externalIdFieldName,omitempty"`
	State               string   `xml:"state,omitempty"`
	ConcurrencyMode     string   `xml:"concurrencyMode,omitempty"`
	ContentType         string   `xml:"contentType,omitempty"`
}

// JobInfo is the job status document returned by the service.
type JobInfo struct {
	ID                      string          `xml:"id"`
	Operation               Operation       `xml:"operation"`
	Object                  string          `xml:"object"`
	ExternalIDFieldName     string          `xml:"externalIdFieldName"`
	CreatedByID             string          `xml:"createdById"`
	CreatedDate             string          `xml:"createdDate"`
	SystemModstamp          string          `xml:"systemModstamp"`
	State                   JobState        `xml:"state"`
	ConcurrencyMode         ConcurrencyMode `xml:"concurrencyMode"`
	ContentType             string          `xml:"contentType"`
	APIVersion              string          `xml:"apiVersion"`
	NumberBatchesQueued     int             `xml:"numberBatchesQueued"`
	NumberBatchesInProgress int             `xml:"numberBatchesInProgress"`
	NumberBatchesCompleted  int             `xml:"numberBatchesCompleted"`
	NumberBatchesFailed     int             `xml:"numberBatchesFailed"`
	NumberBatchesTotal      int             `xml:"numberBatchesTotal"`
	NumberRecordsProcessed  int             `xml:"numberRecordsProcessed"`
	NumberRecordsFailed     int             `xml:"numberRecordsFailed"`
	NumberRetries           int             `xml:"numberRetries"`
}

// BatchInfo is the status document of a single batch.
type BatchInfo struct {
	ID                     string     `xml:"id"`
	JobID                  string     `xml:"jobId"`
	State                  BatchState `xml:"state"`
	StateMessage           string     `xml:"stateMessage"`
	CreatedDate            string     `xml:"createdDate"`
	SystemModstamp         string     `xml:"systemModstamp"`
	NumberRecordsProcessed int        `xml:"numberRecordsProcessed"`
	NumberRecordsFailed    int        `xml:"numberRecordsFailed"`
}

type batchInfoList struct {
	Batches []BatchInfo `xml:"batchInfo"`
}

type resultList struct {
	Results []string `xml:"result"`
}
