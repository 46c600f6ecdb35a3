// Package certificate issues completion certificates for passed quizzes.
package certificate

import (
	"crypto/rand"
	"fmt"
	"time"
)

// Certificate is the record handed to a learner after passing the quiz
// for a course level.
type Certificate struct {
	ID               string    `json:"id"`
	StudentName      string    `json:"student_name"`
	CourseName       string    `json:"course_name"`
	Date             time.Time `json:"date"`
	VerificationCode string    `json:"verification_code"`
}

// codeAlphabet excludes lookalike characters so codes survive being read
// aloud or retyped from a printout.
const codeAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"

const codeLength = 6

// Issue creates a certificate for a learner who passed the given level
// of a course. Certificate IDs are millisecond timestamps prefixed with
// CERT-, matching the IDs already in circulation.
func Issue(studentName, courseTitle string, level int) (Certificate, error) {
	if studentName == "" {
		return Certificate{}, fmt.Errorf("issue certificate: student name is empty")
	}
	if courseTitle == "" {
		return Certificate{}, fmt.Errorf("issue certificate: course title is empty")
	}

	code, err := verificationCode()
	if err != nil {
		return Certificate{}, fmt.Errorf("issue certificate: %w", err)
	}

	now := time.Now()
	return Certificate{
		ID:               fmt.Sprintf("CERT-%d", now.UnixMilli()),
		StudentName:      studentName,
		CourseName:       fmt.Sprintf("%s (Level %d)", courseTitle, level),
		Date:             now,
		VerificationCode: code,
	}, nil
}

func verificationCode() (string, error) {
	b := make([]byte, codeLength)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("read random: %w", err)
	}
	for i := range b {
		b[i] = codeAlphabet[int(b[i])%len(codeAlphabet)]
	}
	return string(b), nil
}
