package config

type WorkerKeyStruct struct {
	ArchiveViolationsQueue string
	ArchiveResultsQueue    string
}

var WorkerKey = &WorkerKeyStruct{
	ArchiveViolationsQueue: "archive_violations_queue",
	ArchiveResultsQueue:    "archive_results_queue",
}
