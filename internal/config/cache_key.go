package config

import (
	"fmt"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// AttemptAnswersKey is the hash of question ID to selected answer.
func (r *CacheKeyStruct) AttemptAnswersKey(attemptID string) string {
	return fmt.Sprintf("attempt:%s:answers", attemptID)
}

// AttemptIndexKey holds the last saved question index.
func (r *CacheKeyStruct) AttemptIndexKey(attemptID string) string {
	return fmt.Sprintf("attempt:%s:index", attemptID)
}

// QuizRecordKey returns the cache key for a quiz with its answer key.
func (r *CacheKeyStruct) QuizRecordKey(quizID string) string {
	return fmt.Sprintf("quiz:%s:record", quizID)
}

var CacheKey = NewCacheKeyStruct()
