package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseUserEnrollments_ObjectShape(t *testing.T) {
	raw := `{"enrollments":[{"courseId":"course-1","title":"Course One","status":"active"}],` +
		`"payments":[{"paymentId":"p1","courseId":"course-1","orderId":"A1","amount":45000,"purchasedAt":"2025-12-05T10:00:00Z"}]}`

	parsed, err := ParseUserEnrollments(raw)
	require.NoError(t, err)
	require.Len(t, parsed.Enrollments, 1)
	require.Len(t, parsed.Payments, 1)
	assert.Equal(t, "A1", parsed.Payments[0].OrderID)
	assert.Equal(t, int64(45000), parsed.Payments[0].Amount)
}

func TestParseUserEnrollments_LegacyArrayShape(t *testing.T) {
	raw := `[{"courseId":"course-1","title":"Course One"}]`

	parsed, err := ParseUserEnrollments(raw)
	require.NoError(t, err)
	require.Len(t, parsed.Enrollments, 1)
	assert.Empty(t, parsed.Payments)
}

func TestParseUserEnrollments_Empty(t *testing.T) {
	parsed, err := ParseUserEnrollments("")
	require.NoError(t, err)
	assert.Empty(t, parsed.Enrollments)
	assert.Empty(t, parsed.Payments)
}

func TestParseUserEnrollments_CorruptBlob(t *testing.T) {
	_, err := ParseUserEnrollments(`{"enrollments": [truncated`)
	assert.Error(t, err)

	_, err = ParseUserEnrollments(`not json at all`)
	assert.Error(t, err)
}

func TestEnrollmentRecords_StatusFromEnrollmentEntry(t *testing.T) {
	user := UserRecord{Email: "u@x.com", Name: "U"}
	granted := time.Date(2025, 12, 5, 10, 0, 0, 0, time.UTC)
	parsed := &UserEnrollments{
		Enrollments: []Enrollment{
			{CourseID: "course-1", Title: "Course One", Status: EnrollmentActive},
			{CourseID: "course-2", Title: "Course Two", Status: EnrollmentRevoked},
		},
		Payments: []PaymentEntry{
			{CourseID: "course-1", OrderID: "A1", Amount: 45000, PurchasedAt: granted},
			{CourseID: "course-2", OrderID: "A2", Amount: 95000, PurchasedAt: granted},
			{CourseID: "course-3", OrderID: "A3", Amount: 10000, PurchasedAt: granted},
		},
	}

	records := EnrollmentRecords(user, parsed)
	require.Len(t, records, 3)

	byOrder := make(map[string]EnrollmentRecord)
	for _, r := range records {
		byOrder[r.OrderID] = r
	}

	assert.Equal(t, EnrollmentActive, byOrder["A1"].Status)
	assert.Equal(t, "Course One", byOrder["A1"].CourseTitle)
	assert.Equal(t, EnrollmentRevoked, byOrder["A2"].Status)
	// Payment with no enrollment entry at all counts as revoked access.
	assert.Equal(t, EnrollmentRevoked, byOrder["A3"].Status)
	assert.Equal(t, "u@x.com", byOrder["A1"].UserEmail)
}

func TestEnrollmentRecords_MissingStatusDefaultsToActive(t *testing.T) {
	user := UserRecord{Email: "u@x.com"}
	parsed := &UserEnrollments{
		Enrollments: []Enrollment{{CourseID: "course-1"}},
		Payments:    []PaymentEntry{{CourseID: "course-1", OrderID: "A1"}},
	}

	records := EnrollmentRecords(user, parsed)
	require.Len(t, records, 1)
	assert.Equal(t, EnrollmentActive, records[0].Status)
}

func TestUserEnrollmentsEncodeRoundTrip(t *testing.T) {
	original := &UserEnrollments{
		Enrollments: []Enrollment{{CourseID: "course-1", Status: EnrollmentActive}},
		Payments:    []PaymentEntry{{CourseID: "course-1", OrderID: "A1", Amount: 45000}},
	}

	encoded, err := original.Encode()
	require.NoError(t, err)

	parsed, err := ParseUserEnrollments(encoded)
	require.NoError(t, err)
	assert.Equal(t, original.Enrollments, parsed.Enrollments)
	assert.Equal(t, original.Payments, parsed.Payments)
}
