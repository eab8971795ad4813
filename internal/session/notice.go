package session

// NoticeKind is the presentation class of a notice.
type NoticeKind string

const (
	NoticeInfo    NoticeKind = "info"
	NoticeWarning NoticeKind = "warning"
	NoticeDanger  NoticeKind = "danger"
	// NoticeModal blocks input until the student acknowledges it.
	NoticeModal NoticeKind = "modal"
)

// Notice texts.
const (
	noticeWelcome     = "Welcome to your %s exam. Good luck!"
	noticeRestored    = "Your previous progress has been restored."
	noticeLoadFailed  = "Error loading exam. Please try again."
	noticeFiveMinutes = "5 minutes remaining!"
	noticeTwoMinutes  = "Only 2 minutes left!"
	noticeFinalMinute = "Final minute!"
	noticeViolation   = "Warning: %s. This may be considered cheating."
	noticeUnanswered  = "You haven't answered all questions. Are you sure you want to submit the exam?"

	noticeSuspicious = "Multiple violations have been detected. This activity may be considered cheating. " +
		"Please focus on your exam. Further violations may result in exam termination."
)

// Notice is a message surfaced to the student.
type Notice struct {
	Kind NoticeKind `json:"type"`
	Text string     `json:"text"`
}

// Notifier receives everything the student should see while the attempt
// runs. Implementations must not block and must not call back into the
// Machine.
type Notifier interface {
	Notify(n Notice)
	Tick(remaining int)
}

type discard struct{}

func (discard) Notify(Notice) {}
func (discard) Tick(int) {}

// Discard drops every notice.
var Discard Notifier = discard{}

type advisory struct {
	at   int
	kind NoticeKind
	text string
}

// advisories fire once each when the countdown reaches at.
var advisories = []advisory{
	{at: 300, kind: NoticeInfo, text: noticeFiveMinutes},
	{at: 120, kind: NoticeWarning, text: noticeTwoMinutes},
	{at: 60, kind: NoticeWarning, text: noticeFinalMinute},
}
