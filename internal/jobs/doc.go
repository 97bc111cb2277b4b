// Package jobs persists transcoding job records and enforces their lifecycle.
//
// Every record lives under the fixed partition "JOBS" with a sort key of
// "JOB#<jobId>" and a filename attribute of "FILENAME#<stem>" that backs the
// secondary lookup. Creation is conditional on the sort key being absent and
// status updates are conditional on the record existing and on the stored
// status not being ahead of the incoming one, so redelivered or reordered
// notifications never create records or move a finished job backwards.
//
// Three backends share these semantics: DynamoDB for the managed deployment,
// SQLite for a single worker host and Postgres for shared self-hosted setups.
package jobs
