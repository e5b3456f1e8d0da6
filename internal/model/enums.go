package model

// Job status
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// Terminal reports whether no further status changes are expected.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// Grade tags
type Grade string

const (
	GradeJunior1 Grade = "中学1年生"
	GradeJunior2 Grade = "中学2年生"
	GradeJunior3 Grade = "中学3年生"
	GradeHigh1   Grade = "高校1年生"
)

var ValidGrades = []Grade{GradeJunior1, GradeJunior2, GradeJunior3, GradeHigh1}

const DefaultGrade = GradeJunior3

func (g Grade) Valid() bool {
	for _, v := range ValidGrades {
		if g == v {
			return true
		}
	}
	return false
}

// Subject tags
type Subject string

const (
	SubjectScience  Subject = "理科"
	SubjectMath     Subject = "数学"
	SubjectJapanese Subject = "国語"
	SubjectEnglish  Subject = "英語"
)

var ValidSubjects = []Subject{SubjectScience, SubjectMath, SubjectJapanese, SubjectEnglish}

const DefaultSubject = SubjectScience

func (s Subject) Valid() bool {
	for _, v := range ValidSubjects {
		if s == v {
			return true
		}
	}
	return false
}
