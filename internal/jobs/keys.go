package jobs

import "strings"

// Partition and sort key layout of the jobs table.
const (
	PartitionJobs  = "JOBS"
	PrefixJob      = "JOB#"
	PrefixFilename = "FILENAME#"

	// FilenameIndex is the local secondary index keyed on the filename attribute.
	FilenameIndex = "lsi"
)

// Attribute names for job items.
const (
	AttrPK                 = "pk"
	AttrSK                 = "sk"
	AttrJobID              = "jobId"
	AttrStatus             = "status"
	AttrFilename           = "filename"
	AttrUpdatedAt          = "updatedAt"
	AttrOutputGroupDetails = "outputGroupDetails"
	AttrErrorCode          = "errorCode"
	AttrErrorMessage       = "errorMessage"
)

// JobKey returns the sort key for a job id.
func JobKey(jobID string) string { return PrefixJob + jobID }

// FilenameKey returns the indexed filename value for a job name stem.
func FilenameKey(name string) string { return PrefixFilename + name }

// TrimFilenameKey strips the filename prefix.
func TrimFilenameKey(value string) string { return strings.TrimPrefix(value, PrefixFilename) }
