package constants

// Classification

const (
	ClassificationNew       = "New"
	ClassificationUpdate    = "Update"
	ClassificationDelete    = "Delete"
	ClassificationUnchanged = "Unchanged"
	ClassificationFieldName = "#classification"
	EtlCommandColumnName    = "ETLCommand"
)

// States of a batch, in the order they are reached.

const (
	StatePreflight    = "Preflight"
	StateFetched      = "Fetched"
	StateImported     = "Imported"
	StateMirrorLoaded = "MirrorLoaded"
	StateClassified   = "Classified"
	StateDeleted      = "Deleted"
	StateInserted     = "Inserted"
	StateDone         = "Done"
)

// Components

const (
	ChanSize                     = 20000
	StatsCaptureFrequencySeconds = 5
	BulkInsertRowsPerBatch       = 5000
	TxtBatchNumRowsDefault       = 100 // keep well under the SQL Server limit of 2100 parameters per statement.
	SqlServerMaxParams           = 2100
	KeySetChunkSize              = 500
	TimeFormatYearSecondsTZ      = "20060102T150405-0700"
	DateFormat                   = "2006-01-02"
	DateFormatUS                 = "01/02/2006"
)

// Runtime

const (
	AppName                   = "stagesync"
	EnvVarPrefix              = "SS" // prefixed for environment variables in twelveFactorMode
	LockResourcePrefix        = "stagesync:"
	LockTimeoutSecondsDefault = 30
	RunLogFilePrefixDefault   = "StagesyncRunLog"
	QGendaBaseUrlDefault      = "https://api.qgenda.com/v2"
	QGendaDaysBackDefault     = 30
	QGendaDaysForwardDefault  = 60
	CaseLogDaysBackDefault    = 14
)

// Connections

const (
	ConnectionTypeSqlServer = "sqlserver"
	ConnectionTypeMock      = "mock"
	ConnectionNameStaging   = "staging"
	ConnectionNameProd      = "production"
	ConnectionNameClarity   = "clarity"
	ConnectionNameEdw       = "edw"
)
