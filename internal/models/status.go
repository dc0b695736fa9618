package models

// ProcessingStatus is the uniform job/task status shared by every platform.
type ProcessingStatus string

const (
	StatusCreated  ProcessingStatus = "created"
	StatusQueued   ProcessingStatus = "queued"
	StatusRunning  ProcessingStatus = "running"
	StatusFinished ProcessingStatus = "finished"
	StatusCanceled ProcessingStatus = "canceled"
	StatusFailed   ProcessingStatus = "failed"
	StatusUnknown  ProcessingStatus = "unknown"
)

// IsTerminal reports whether no further remote polling happens for a record in this status.
func (s ProcessingStatus) IsTerminal() bool {
	switch s {
	case StatusFinished, StatusFailed, StatusCanceled:
		return true
	}
	return false
}

// Label identifies the platform type a job or task targets.
type Label string

const (
	LabelOpenEO        Label = "openeo"
	LabelOGCAPIProcess Label = "ogc_api_process"
)

type OutputFormat string

const (
	FormatGTiff  OutputFormat = "gtiff"
	FormatNetCDF OutputFormat = "netcdf"
	FormatJSON   OutputFormat = "json"
)

// OrDefault returns gtiff when no format was requested.
func (f OutputFormat) OrDefault() OutputFormat {
	if f == "" {
		return FormatGTiff
	}
	return f
}

type ParamType string

const (
	ParamDateInterval ParamType = "date-interval"
	ParamBoundingBox  ParamType = "bounding-box"
	ParamBoolean      ParamType = "boolean"
	ParamString       ParamType = "string"
)

// Parameter describes one input of a remote application.
type Parameter struct {
	Name        string    `json:"name"`
	Type        ParamType `json:"type"`
	Optional    bool      `json:"optional"`
	Description string    `json:"description"`
	Default     any       `json:"default,omitempty"`
}
