package config

import (
	"fmt"
)

type StorageKeyStruct struct{}

func NewStorageKeyStruct() *StorageKeyStruct {
	return &StorageKeyStruct{}
}

// ExamProgressKey returns the store key for an exam's in-progress attempt snapshot
func (r *StorageKeyStruct) ExamProgressKey(examID string) string {
	return fmt.Sprintf("exam_progress_%s", examID)
}

// ExamResultsKey returns the store key for an exam's computed results report
func (r *StorageKeyStruct) ExamResultsKey(examID string) string {
	return fmt.Sprintf("exam_results_%s", examID)
}

// CheatingLogsKey returns the store key for the violation log
func (r *StorageKeyStruct) CheatingLogsKey() string {
	return "cheating_logs"
}

// CurrentUserKey returns the store key for the signed-in user profile
func (r *StorageKeyStruct) CurrentUserKey() string {
	return "icasUser"
}

var StorageKey = NewStorageKeyStruct()
